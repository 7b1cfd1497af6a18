package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/odontoclinic/agenda/internal/config"
	"github.com/odontoclinic/agenda/internal/domain/tenant"
	"github.com/odontoclinic/agenda/internal/platform/auth"
	"github.com/odontoclinic/agenda/internal/platform/cache"
	"github.com/odontoclinic/agenda/internal/platform/db"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "agenda-server",
		Short: "Dental clinic agenda API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the agenda API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.MigrationsDir
		}

		ctx := context.Background()
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, db.NewMigrator(pool, dir))
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Print(formatStatus(statuses))
				return nil
			})
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Down(ctx, steps)
				if err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				fmt.Printf("Rolled back %d migration(s).\n", count)
				return nil
			})
		},
	}
	downCmd.Flags().Int("steps", 1, "Number of migrations to roll back")

	for _, c := range []*cobra.Command{upCmd, statusCmd, downCmd} {
		c.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
		cmd.AddCommand(c)
	}
	return cmd
}

func formatStatus(statuses []db.MigrationStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(&b, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(&b, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
	return b.String()
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage clinics",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a clinic with every module enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			display, _ := cmd.Flags().GetString("display-name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := tenant.NewService(tenant.NewRepoPG(pool), cache.NewLRU(cache.Options{}), newLogger(cfg.Env))
			t, err := svc.Create(ctx, name, display)
			if err != nil {
				return err
			}
			fmt.Printf("Tenant %s (%s) created.\n", t.ID, t.Name)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (letters, digits, underscore)")
	createCmd.Flags().String("display-name", "", "Clinic display name")

	cmd.AddCommand(createCmd)
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if len(cfg.JWTSecret) < 32 {
				return fmt.Errorf("JWT_SECRET must be at least 32 characters")
			}
			subject, _ := cmd.Flags().GetString("subject")
			tenantID, _ := cmd.Flags().GetString("tenant")
			roles, _ := cmd.Flags().GetStringSlice("roles")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			tok, err := auth.IssueToken([]byte(cfg.JWTSecret), cfg.AuthIssuer, subject, tenantID, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("subject", "cli-user", "Token subject")
	cmd.Flags().String("tenant", "default", "Tenant id claim")
	cmd.Flags().StringSlice("roles", []string{auth.RoleReceptionist}, "Role claims")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}
