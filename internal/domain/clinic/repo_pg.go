package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odontoclinic/agenda/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *repoPG) Get(ctx context.Context, tenantID string) (*Settings, error) {
	s := Settings{TenantID: tenantID}
	var lunchStart, lunchEnd *string
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT time_zone, slot_minutes, buffer_minutes, horizon_days, suggestion_count,
			lunch_start, lunch_end, updated_at
		FROM clinic_settings WHERE tenant_id = $1`, tenantID).
		Scan(&s.TimeZone, &s.SlotMinutes, &s.BufferMinutes, &s.HorizonDays, &s.SuggestionCount,
			&lunchStart, &lunchEnd, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get clinic settings: %w", err)
	}
	if lunchStart != nil && lunchEnd != nil {
		s.LunchStart, s.LunchEnd = *lunchStart, *lunchEnd
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT day_of_week, start_time, end_time FROM working_hours
		WHERE tenant_id = $1 ORDER BY day_of_week, start_time`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list working hours: %w", err)
	}
	s.WorkingHours, err = pgx.CollectRows(rows, pgx.RowToStructByName[WorkingHours])
	if err != nil {
		return nil, fmt.Errorf("scan working hours: %w", err)
	}

	rows, err = r.conn(ctx).Query(ctx, `
		SELECT to_char(date, 'YYYY-MM-DD') AS date, name, recurring FROM holidays
		WHERE tenant_id = $1 ORDER BY date`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	s.Holidays, err = pgx.CollectRows(rows, pgx.RowToStructByName[Holiday])
	if err != nil {
		return nil, fmt.Errorf("scan holidays: %w", err)
	}
	return &s, nil
}

// Save replaces the tenant's settings, hours and holidays atomically.
func (r *repoPG) Save(ctx context.Context, s *Settings) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		var lunchStart, lunchEnd *string
		if s.LunchStart != "" {
			lunchStart, lunchEnd = &s.LunchStart, &s.LunchEnd
		}
		s.UpdatedAt = time.Now().UTC()
		if _, err := q.Exec(ctx, `
			INSERT INTO clinic_settings (tenant_id, time_zone, slot_minutes, buffer_minutes,
				horizon_days, suggestion_count, lunch_start, lunch_end, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (tenant_id) DO UPDATE SET
				time_zone = EXCLUDED.time_zone, slot_minutes = EXCLUDED.slot_minutes,
				buffer_minutes = EXCLUDED.buffer_minutes, horizon_days = EXCLUDED.horizon_days,
				suggestion_count = EXCLUDED.suggestion_count, lunch_start = EXCLUDED.lunch_start,
				lunch_end = EXCLUDED.lunch_end, updated_at = EXCLUDED.updated_at`,
			s.TenantID, s.TimeZone, s.SlotMinutes, s.BufferMinutes, s.HorizonDays,
			s.SuggestionCount, lunchStart, lunchEnd, s.UpdatedAt); err != nil {
			return fmt.Errorf("upsert clinic settings: %w", err)
		}

		if _, err := q.Exec(ctx, `DELETE FROM working_hours WHERE tenant_id = $1`, s.TenantID); err != nil {
			return fmt.Errorf("clear working hours: %w", err)
		}
		for _, wh := range s.WorkingHours {
			if _, err := q.Exec(ctx, `
				INSERT INTO working_hours (tenant_id, day_of_week, start_time, end_time)
				VALUES ($1,$2,$3,$4)`, s.TenantID, wh.DayOfWeek, wh.Start, wh.End); err != nil {
				return fmt.Errorf("insert working hours: %w", err)
			}
		}

		if _, err := q.Exec(ctx, `DELETE FROM holidays WHERE tenant_id = $1`, s.TenantID); err != nil {
			return fmt.Errorf("clear holidays: %w", err)
		}
		for _, h := range s.Holidays {
			if _, err := q.Exec(ctx, `
				INSERT INTO holidays (tenant_id, date, name, recurring)
				VALUES ($1,$2::date,$3,$4)`, s.TenantID, h.Date, h.Name, h.Recurring); err != nil {
				return fmt.Errorf("insert holiday: %w", err)
			}
		}
		return nil
	})
}
