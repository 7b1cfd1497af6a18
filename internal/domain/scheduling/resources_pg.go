package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odontoclinic/agenda/internal/platform/db"
)

type resourceRepoPG struct{ pool *pgxpool.Pool }

func NewResourceRepoPG(pool *pgxpool.Pool) ResourceRepository { return &resourceRepoPG{pool: pool} }

func (r *resourceRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const profCols = `id, tenant_id, name, specialty, active, created_at`

func scanProfessional(row pgx.Row) (*Professional, error) {
	var p Professional
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Specialty, &p.Active, &p.CreatedAt)
	return &p, err
}

func (r *resourceRepoPG) GetProfessional(ctx context.Context, tenantID string, id uuid.UUID) (*Professional, error) {
	p, err := scanProfessional(r.conn(ctx).QueryRow(ctx,
		`SELECT `+profCols+` FROM professionals WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get professional: %w", err)
	}
	return p, nil
}

func (r *resourceRepoPG) ListProfessionals(ctx context.Context, tenantID string, activeOnly bool) ([]Professional, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+profCols+` FROM professionals
		WHERE tenant_id = $1 AND (active OR NOT $2) ORDER BY name, id`, tenantID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list professionals: %w", err)
	}
	defer rows.Close()
	var out []Professional
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			return nil, fmt.Errorf("scan professional: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *resourceRepoPG) CreateProfessional(ctx context.Context, p *Professional) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO professionals (id, tenant_id, name, specialty, active)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		p.ID, p.TenantID, p.Name, p.Specialty, p.Active).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert professional: %w", err)
	}
	return nil
}

const roomCols = `id, tenant_id, name, description, active, created_at`

func scanRoom(row pgx.Row) (*Room, error) {
	var rm Room
	err := row.Scan(&rm.ID, &rm.TenantID, &rm.Name, &rm.Description, &rm.Active, &rm.CreatedAt)
	return &rm, err
}

func (r *resourceRepoPG) GetRoom(ctx context.Context, tenantID string, id uuid.UUID) (*Room, error) {
	rm, err := scanRoom(r.conn(ctx).QueryRow(ctx,
		`SELECT `+roomCols+` FROM rooms WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return rm, nil
}

// ListRooms orders by id so alternative-room suggestions are deterministic.
func (r *resourceRepoPG) ListRooms(ctx context.Context, tenantID string, activeOnly bool) ([]Room, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+roomCols+` FROM rooms
		WHERE tenant_id = $1 AND (active OR NOT $2) ORDER BY id`, tenantID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()
	var out []Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		out = append(out, *rm)
	}
	return out, rows.Err()
}

func (r *resourceRepoPG) CreateRoom(ctx context.Context, rm *Room) error {
	rm.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO rooms (id, tenant_id, name, description, active)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		rm.ID, rm.TenantID, rm.Name, rm.Description, rm.Active).Scan(&rm.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (r *resourceRepoPG) GetPatient(ctx context.Context, tenantID string, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, tenant_id, name, phone, created_at
		FROM patients WHERE tenant_id = $1 AND id = $2`, tenantID, id).
		Scan(&p.ID, &p.TenantID, &p.Name, &p.Phone, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}

func (r *resourceRepoPG) ListPatients(ctx context.Context, tenantID string, limit, offset int) ([]Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, tenant_id, name, phone, created_at
		FROM patients WHERE tenant_id = $1 ORDER BY name, id LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()
	var out []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Phone, &p.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *resourceRepoPG) CreatePatient(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, tenant_id, name, phone) VALUES ($1, $2, $3, $4)
		RETURNING created_at`, p.ID, p.TenantID, p.Name, p.Phone).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}
