package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockKey serialises concurrent migrators (e.g. several replicas
// starting at once).
const migrationLockKey int64 = 0x61676e64 // "agnd"

// Migration is one versioned SQL file pair. Files are named
// NNN_name.up.sql / NNN_name.down.sql; a bare NNN_name.sql is treated as up.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// MigrationStatus represents the status of a migration (applied or pending).
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// Migrator applies SQL migrations from a directory to the public schema.
type Migrator struct {
	pool *pgxpool.Pool
	dir  string
}

func NewMigrator(pool *pgxpool.Pool, migrationsDir string) *Migrator {
	return &Migrator{pool: pool, dir: migrationsDir}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       VARCHAR(255) NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

// LoadMigrations reads the migration directory and returns migrations sorted
// by version. Files without a numeric prefix are skipped.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory %s: %w", m.dir, err)
	}

	byVersion := map[int]*Migration{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}

		content, err := os.ReadFile(filepath.Join(m.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", name, err)
		}

		mig, ok := byVersion[version]
		if !ok {
			mig = &Migration{Version: version}
			byVersion[version] = mig
		}

		base := strings.TrimSuffix(rest, ".sql")
		switch {
		case strings.HasSuffix(base, ".down"):
			mig.Down = string(content)
			base = strings.TrimSuffix(base, ".down")
		default:
			mig.Up = string(content)
			base = strings.TrimSuffix(base, ".up")
		}
		mig.Name = base
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.Up == "" {
			return nil, fmt.Errorf("migration %03d_%s has no up script", mig.Version, mig.Name)
		}
		migrations = append(migrations, *mig)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.pool.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var v int
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		out[v] = at
	}
	return out, rows.Err()
}

// Up applies all pending migrations, each in its own transaction, and returns
// how many were applied.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	var count int
	err := m.locked(ctx, func(ctx context.Context) error {
		migrations, err := m.LoadMigrations()
		if err != nil {
			return err
		}
		applied, err := m.applied(ctx)
		if err != nil {
			return err
		}
		for _, mig := range migrations {
			if _, ok := applied[mig.Version]; ok {
				continue
			}
			if err := m.run(ctx, mig.Up, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name); err != nil {
				return fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
			}
			count++
		}
		return nil
	})
	return count, err
}

// Down reverts the latest steps applied migrations.
func (m *Migrator) Down(ctx context.Context, steps int) (int, error) {
	var count int
	err := m.locked(ctx, func(ctx context.Context) error {
		migrations, err := m.LoadMigrations()
		if err != nil {
			return err
		}
		applied, err := m.applied(ctx)
		if err != nil {
			return err
		}
		for i := len(migrations) - 1; i >= 0 && count < steps; i-- {
			mig := migrations[i]
			if _, ok := applied[mig.Version]; !ok {
				continue
			}
			if mig.Down == "" {
				return fmt.Errorf("migration %d (%s) is irreversible", mig.Version, mig.Name)
			}
			if err := m.run(ctx, mig.Down, `DELETE FROM schema_migrations WHERE version = $1 AND name = $2`, mig.Version, mig.Name); err != nil {
				return fmt.Errorf("revert migration %d (%s): %w", mig.Version, mig.Name, err)
			}
			count++
		}
		return nil
	})
	return count, err
}

// Status returns every known migration with whether it has been applied.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		st := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if at, ok := applied[mig.Version]; ok {
			st.Applied = true
			st.AppliedAt = &at
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func (m *Migrator) run(ctx context.Context, script, record string, version int, name string) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, script); err != nil {
		return fmt.Errorf("execute SQL: %w", err)
	}
	if _, err := tx.Exec(ctx, record, version, name); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit(ctx)
}

func (m *Migrator) locked(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockKey) //nolint:errcheck

	return fn(ctx)
}
