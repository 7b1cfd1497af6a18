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

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *appointmentRepoPG) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.InTx(ctx, r.pool, fn)
}

func (r *appointmentRepoPG) LockCalendars(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if _, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, k); err != nil {
			return fmt.Errorf("lock calendar %s: %w", k, err)
		}
	}
	return nil
}

const apptSelect = `SELECT a.id, a.tenant_id, a.patient_id, a.professional_id, a.room_id,
	a.title, a.notes, a.start_time, a.end_time, a.status, a.type,
	a.cancellation_reason, a.version, a.created_by, a.created_at, a.updated_at,
	COALESCE(pt.name, ''), pr.name, COALESCE(rm.name, '')
	FROM appointments a
	JOIN professionals pr ON pr.tenant_id = a.tenant_id AND pr.id = a.professional_id
	LEFT JOIN rooms rm ON rm.tenant_id = a.tenant_id AND rm.id = a.room_id
	LEFT JOIN patients pt ON pt.tenant_id = a.tenant_id AND pt.id = a.patient_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.TenantID, &a.PatientID, &a.ProfessionalID, &a.RoomID,
		&a.Title, &a.Notes, &a.StartTime, &a.EndTime, &a.Status, &a.Type,
		&a.CancellationReason, &a.Version, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
		&a.PatientName, &a.ProfessionalName, &a.RoomName)
	return &a, err
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *appointmentRepoPG) Active(ctx context.Context, q CalendarQuery) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, apptSelect+`
		WHERE a.tenant_id = $1
		  AND a.status <> 'cancelled'
		  AND a.start_time < $3 AND a.end_time > $2
		  AND (a.professional_id = $4 OR a.room_id = ANY($5::uuid[]))
		  AND ($6::uuid IS NULL OR a.id <> $6)
		ORDER BY a.start_time, a.id`,
		q.TenantID, q.From, q.To, q.ProfessionalID, q.RoomIDs, q.Exclude)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}
	appts, err := collectAppointments(rows)
	if err != nil {
		return nil, fmt.Errorf("scan calendar: %w", err)
	}
	return appts, nil
}

func (r *appointmentRepoPG) Get(ctx context.Context, tenantID string, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, apptSelect+` WHERE a.tenant_id = $1 AND a.id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f ListFilter) ([]Appointment, int, error) {
	where := ` WHERE a.tenant_id = $1`
	args := []interface{}{f.TenantID}
	idx := 2

	if !f.From.IsZero() {
		where += fmt.Sprintf(` AND a.end_time > $%d`, idx)
		args = append(args, f.From)
		idx++
	}
	if !f.To.IsZero() {
		where += fmt.Sprintf(` AND a.start_time < $%d`, idx)
		args = append(args, f.To)
		idx++
	}
	if f.ProfessionalID != nil {
		where += fmt.Sprintf(` AND a.professional_id = $%d`, idx)
		args = append(args, *f.ProfessionalID)
		idx++
	}
	if f.RoomID != nil {
		where += fmt.Sprintf(` AND a.room_id = $%d`, idx)
		args = append(args, *f.RoomID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND a.status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	query := apptSelect + where + fmt.Sprintf(` ORDER BY a.start_time, a.id LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, f.Limit, f.Offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	appts, err := collectAppointments(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("scan appointments: %w", err)
	}
	return appts, total, nil
}

func (r *appointmentRepoPG) Insert(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, tenant_id, patient_id, professional_id, room_id,
			title, notes, start_time, end_time, status, type, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING version, created_at, updated_at`,
		a.ID, a.TenantID, a.PatientID, a.ProfessionalID, a.RoomID,
		a.Title, a.Notes, a.StartTime, a.EndTime, a.Status, a.Type, a.CreatedBy,
	).Scan(&a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET patient_id = $3, professional_id = $4, room_id = $5,
			title = $6, notes = $7, start_time = $8, end_time = $9,
			version = version + 1, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND version = $10
		RETURNING version, updated_at`,
		a.TenantID, a.ID, a.PatientID, a.ProfessionalID, a.RoomID,
		a.Title, a.Notes, a.StartTime, a.EndTime, a.Version,
	).Scan(&a.Version, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return errStaleVersion
	}
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) SetStatus(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET status = $3, cancellation_reason = $4,
			version = version + 1, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND version = $5
		RETURNING version, updated_at`,
		a.TenantID, a.ID, a.Status, a.CancellationReason, a.Version,
	).Scan(&a.Version, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return errStaleVersion
	}
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	return nil
}
