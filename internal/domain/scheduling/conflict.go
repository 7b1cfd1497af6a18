package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Overlaps reports whether the half-open intervals [s1, e1) and [s2, e2)
// intersect. Touching endpoints do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// Check returns the conflicts between c and a calendar snapshot. The
// professional is checked when c.ProfessionalID is set, the room when
// c.RoomID is set. Cancelled appointments, appointments of other tenants and
// c.ExcludeAppointmentID never conflict. An appointment clashing on both
// resources yields two conflicts, professional first.
func Check(c Candidate, existing []Appointment) []Conflict {
	var out []Conflict
	for i := range existing {
		a := &existing[i]
		if a.TenantID != c.TenantID || a.Status == StatusCancelled {
			continue
		}
		if c.ExcludeAppointmentID != nil && a.ID == *c.ExcludeAppointmentID {
			continue
		}
		if !Overlaps(c.StartTime, c.EndTime, a.StartTime, a.EndTime) {
			continue
		}
		if c.ProfessionalID != uuid.Nil && a.ProfessionalID == c.ProfessionalID {
			out = append(out, conflictFrom(ConflictProfessional, a))
		}
		if c.RoomID != nil && a.RoomID != nil && *a.RoomID == *c.RoomID {
			out = append(out, conflictFrom(ConflictRoom, a))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].Type < out[j].Type
	})
	return out
}

func conflictFrom(kind string, a *Appointment) Conflict {
	return Conflict{
		Type:             kind,
		AppointmentID:    a.ID,
		PatientName:      a.PatientName,
		ProfessionalName: a.ProfessionalName,
		RoomName:         a.RoomName,
		StartTime:        a.StartTime,
		EndTime:          a.EndTime,
	}
}

// Detector answers conflict queries against the stored calendar.
type Detector struct {
	resources ResourceRepository
	calendar  AppointmentRepository
}

func NewDetector(resources ResourceRepository, calendar AppointmentRepository) *Detector {
	return &Detector{resources: resources, calendar: calendar}
}

// DetectConflicts validates c, verifies its references belong to c.TenantID
// and returns the active appointments it would overlap.
func (d *Detector) DetectConflicts(ctx context.Context, c Candidate) ([]Conflict, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := d.Authorize(ctx, c); err != nil {
		return nil, err
	}
	return d.recheck(ctx, c)
}

// Authorize fails with an AuthorizationError when the professional or room
// of c is unknown to its tenant.
func (d *Detector) Authorize(ctx context.Context, c Candidate) error {
	if _, err := d.resources.GetProfessional(ctx, c.TenantID, c.ProfessionalID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return &AuthorizationError{Resource: "professional", ID: c.ProfessionalID}
		}
		return fmt.Errorf("authorize professional: %w", err)
	}
	if c.RoomID != nil {
		if _, err := d.resources.GetRoom(ctx, c.TenantID, *c.RoomID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return &AuthorizationError{Resource: "room", ID: *c.RoomID}
			}
			return fmt.Errorf("authorize room: %w", err)
		}
	}
	return nil
}

// recheck runs the query and kernel without validation; callers inside a
// booking transaction have already validated c.
func (d *Detector) recheck(ctx context.Context, c Candidate) ([]Conflict, error) {
	q := CalendarQuery{
		TenantID:       c.TenantID,
		ProfessionalID: &c.ProfessionalID,
		From:           c.StartTime,
		To:             c.EndTime,
		Exclude:        c.ExcludeAppointmentID,
	}
	if c.RoomID != nil {
		q.RoomIDs = []uuid.UUID{*c.RoomID}
	}
	existing, err := d.calendar.Active(ctx, q)
	if err != nil {
		return nil, err
	}
	return Check(c, existing), nil
}
