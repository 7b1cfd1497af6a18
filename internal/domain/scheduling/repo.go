package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// ResourceRepository stores the bookable resources of a tenant. Lookups are
// always tenant scoped and return ErrNotFound for ids of other tenants.
type ResourceRepository interface {
	GetProfessional(ctx context.Context, tenantID string, id uuid.UUID) (*Professional, error)
	ListProfessionals(ctx context.Context, tenantID string, activeOnly bool) ([]Professional, error)
	CreateProfessional(ctx context.Context, p *Professional) error

	GetRoom(ctx context.Context, tenantID string, id uuid.UUID) (*Room, error)
	ListRooms(ctx context.Context, tenantID string, activeOnly bool) ([]Room, error)
	CreateRoom(ctx context.Context, r *Room) error

	GetPatient(ctx context.Context, tenantID string, id uuid.UUID) (*Patient, error)
	ListPatients(ctx context.Context, tenantID string, limit, offset int) ([]Patient, int, error)
	CreatePatient(ctx context.Context, p *Patient) error
}

// AppointmentRepository is the tenant calendar.
type AppointmentRepository interface {
	// InTx runs fn in a transaction; repository calls made with the ctx
	// passed to fn join it.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	// LockCalendars takes transaction-scoped locks on keys in the given order.
	LockCalendars(ctx context.Context, keys ...string) error

	Active(ctx context.Context, q CalendarQuery) ([]Appointment, error)
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, f ListFilter) ([]Appointment, int, error)

	Insert(ctx context.Context, a *Appointment) error
	// Update and SetStatus only apply when a.Version still matches the
	// stored row, returning errStaleVersion otherwise.
	Update(ctx context.Context, a *Appointment) error
	SetStatus(ctx context.Context, a *Appointment) error
}
