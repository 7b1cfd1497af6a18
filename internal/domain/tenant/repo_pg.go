package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odontoclinic/agenda/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *repoPG) Create(ctx context.Context, t *Tenant, modules []string) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO tenants (id, name, active) VALUES ($1, $2, TRUE)
			RETURNING active, created_at`, t.ID, t.Name).Scan(&t.Active, &t.CreatedAt)
		if db.ErrorCode(err) == db.CodeUniqueViolation {
			return ErrExists
		}
		if err != nil {
			return fmt.Errorf("insert tenant: %w", err)
		}
		for _, m := range modules {
			if _, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO tenant_modules (tenant_id, module, enabled) VALUES ($1, $2, TRUE)`,
				t.ID, m); err != nil {
				return fmt.Errorf("enable module %s: %w", m, err)
			}
		}
		return nil
	})
}

func (r *repoPG) Get(ctx context.Context, id string) (*Tenant, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, name, active, created_at FROM tenants WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[Tenant])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	return t, nil
}

func (r *repoPG) ListModules(ctx context.Context, tenantID string) ([]Module, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT module, enabled FROM tenant_modules WHERE tenant_id = $1 ORDER BY module`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	mods, err := pgx.CollectRows(rows, pgx.RowToStructByName[Module])
	if err != nil {
		return nil, fmt.Errorf("scan modules: %w", err)
	}
	return mods, nil
}

func (r *repoPG) SetModule(ctx context.Context, tenantID, module string, enabled bool) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO tenant_modules (tenant_id, module, enabled, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id, module) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = NOW()`,
		tenantID, module, enabled)
	if db.ErrorCode(err) == db.CodeForeignKeyViolation {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("set module: %w", err)
	}
	return nil
}
