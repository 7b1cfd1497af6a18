package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/odontoclinic/agenda/internal/platform/auth"
	"github.com/odontoclinic/agenda/internal/platform/db"
	"github.com/odontoclinic/agenda/internal/platform/events"
)

// maxCommitAttempts bounds the booking loop: one retry after a race.
const maxCommitAttempts = 2

type Service struct {
	resources    ResourceRepository
	appointments AppointmentRepository
	detector     *Detector
	generator    *Generator
	publisher    events.Publisher
	logger       zerolog.Logger
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now for suggestion generation.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func NewService(resources ResourceRepository, appointments AppointmentRepository, rules RulesProvider,
	publisher events.Publisher, logger zerolog.Logger, opts ...Option) *Service {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		resources:    resources,
		appointments: appointments,
		detector:     NewDetector(resources, appointments),
		generator:    NewGenerator(resources, appointments, rules, o.now),
		publisher:    publisher,
		logger:       logger.With().Str("component", "scheduling").Logger(),
	}
}

// -- Detection --

func (s *Service) DetectConflicts(ctx context.Context, c Candidate) ([]Conflict, error) {
	return s.detector.DetectConflicts(ctx, c)
}

func (s *Service) GenerateSuggestions(ctx context.Context, c Candidate, conflicts []Conflict) (*Suggestions, error) {
	return s.generator.GenerateSuggestions(ctx, c, conflicts)
}

// CheckAvailability runs detection and, when something clashes, suggestion
// generation. Nothing is written.
func (s *Service) CheckAvailability(ctx context.Context, c Candidate) (*Availability, error) {
	conflicts, err := s.detector.DetectConflicts(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(conflicts) == 0 {
		return &Availability{Available: true, Conflicts: []Conflict{}}, nil
	}
	sugg, err := s.generator.GenerateSuggestions(ctx, c, conflicts)
	if err != nil {
		return nil, err
	}
	return &Availability{Conflicts: conflicts, Suggestions: sugg}, nil
}

// -- Booking --

// plan is one attempt at a calendar write: the candidate to recheck under
// lock and the write to perform when it is free.
type plan struct {
	candidate Candidate
	recheck   bool
	write     func(ctx context.Context) error
}

// Book creates an appointment unless it clashes with the calendar, in which
// case the result carries the conflicts and suggestions instead.
func (s *Service) Book(ctx context.Context, tenantID string, d Draft) (*BookingResult, error) {
	appt := &Appointment{
		TenantID:       tenantID,
		PatientID:      d.PatientID,
		ProfessionalID: d.ProfessionalID,
		RoomID:         d.RoomID,
		Title:          strings.TrimSpace(d.Title),
		Notes:          d.Notes,
		StartTime:      d.StartTime.UTC(),
		EndTime:        d.EndTime.UTC(),
		Status:         d.Status,
		Type:           d.Type,
	}
	if appt.Status == "" {
		appt.Status = StatusScheduled
	}
	if appt.Type == "" {
		appt.Type = TypeAppointment
	}
	if uid := auth.UserIDFromContext(ctx); uid != "" {
		appt.CreatedBy = &uid
	}
	if err := validateAppointment(appt); err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled && appt.Status != StatusConfirmed {
		return nil, &ValidationError{Field: "status", Reason: "new appointments must be scheduled or confirmed"}
	}
	c := candidateFor(appt)
	if err := s.authorize(ctx, appt, c); err != nil {
		return nil, err
	}

	res, err := s.commit(ctx, func(context.Context) (*plan, error) {
		return &plan{candidate: c, recheck: true, write: func(ctx context.Context) error {
			return s.appointments.Insert(ctx, appt)
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(res.Conflicts) == 0 {
		res.Appointment = s.reload(ctx, appt)
		s.publish(ctx, events.AppointmentCreated, res.Appointment)
	}
	return res, nil
}

// Reschedule applies p to an existing appointment. Moves in time or between
// resources are checked like a new booking that ignores the appointment
// itself.
func (s *Service) Reschedule(ctx context.Context, tenantID string, id uuid.UUID, p Patch) (*BookingResult, error) {
	var updated *Appointment
	res, err := s.commit(ctx, func(ctx context.Context) (*plan, error) {
		current, err := s.appointments.Get(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		if IsTerminal(current.Status) {
			return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("%s appointments cannot be changed", current.Status)}
		}
		next := applyPatch(current, p)
		if err := validateAppointment(next); err != nil {
			return nil, err
		}
		c := candidateFor(next)
		if err := s.authorize(ctx, next, c); err != nil {
			return nil, err
		}
		updated = next
		return &plan{candidate: c, recheck: p.movesCalendar(), write: func(ctx context.Context) error {
			return s.appointments.Update(ctx, next)
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(res.Conflicts) == 0 {
		res.Appointment = s.reload(ctx, updated)
		if p.movesCalendar() {
			s.publish(ctx, events.AppointmentRescheduled, res.Appointment)
		}
	}
	return res, nil
}

// commit runs Lock, Recheck and Commit for the plan built by prepare. A write
// that loses a race against a concurrent booking is retried once with a fresh
// plan; a second race surfaces as ErrPersistenceRace.
func (s *Service) commit(ctx context.Context, prepare func(ctx context.Context) (*plan, error)) (*BookingResult, error) {
	for attempt := 1; ; attempt++ {
		p, err := prepare(ctx)
		if err != nil {
			return nil, err
		}

		var conflicts []Conflict
		err = s.appointments.InTx(ctx, func(ctx context.Context) error {
			if !p.recheck {
				return p.write(ctx)
			}
			if err := s.appointments.LockCalendars(ctx, lockKeys(p.candidate)...); err != nil {
				return err
			}
			found, err := s.detector.recheck(ctx, p.candidate)
			if err != nil {
				return err
			}
			if len(found) > 0 {
				conflicts = found
				return nil
			}
			return p.write(ctx)
		})

		if isRace(err) {
			if attempt < maxCommitAttempts {
				s.logger.Warn().Err(err).Str("tenant_id", p.candidate.TenantID).Int("attempt", attempt).Msg("booking race, retrying")
				continue
			}
			s.logger.Warn().Err(err).Str("tenant_id", p.candidate.TenantID).Msg("booking race persisted after retry")
			return nil, fmt.Errorf("%w: %v", ErrPersistenceRace, err)
		}
		if err != nil {
			return nil, err
		}

		if len(conflicts) == 0 {
			return &BookingResult{}, nil
		}
		sugg, err := s.generator.GenerateSuggestions(ctx, p.candidate, conflicts)
		if err != nil {
			return nil, err
		}
		return &BookingResult{Conflicts: conflicts, Suggestions: sugg}, nil
	}
}

func isRace(err error) bool {
	return err != nil && (db.IsRace(err) || errors.Is(err, errStaleVersion))
}

// lockKeys returns the advisory lock keys for c in sorted order, so that
// concurrent bookings touching the same pair cannot deadlock.
func lockKeys(c Candidate) []string {
	keys := []string{c.TenantID + ":professional:" + c.ProfessionalID.String()}
	if c.RoomID != nil {
		keys = append(keys, c.TenantID+":room:"+c.RoomID.String())
	}
	sort.Strings(keys)
	return keys
}

// -- Status --

// Cancel marks the appointment cancelled, freeing its time for new bookings.
func (s *Service) Cancel(ctx context.Context, tenantID string, id uuid.UUID, reason string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)
	return s.setStatus(ctx, tenantID, id, StatusCancelled, reason)
}

// Transition moves the appointment to status if the lifecycle allows it.
func (s *Service) Transition(ctx context.Context, tenantID string, id uuid.UUID, status string) (*Appointment, error) {
	if !validStatuses[status] {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}
	return s.setStatus(ctx, tenantID, id, status, "")
}

func (s *Service) setStatus(ctx context.Context, tenantID string, id uuid.UUID, status, reason string) (*Appointment, error) {
	for attempt := 1; ; attempt++ {
		a, err := s.appointments.Get(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		if !CanTransition(a.Status, status) {
			return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("cannot change from %s to %s", a.Status, status)}
		}
		from := a.Status
		a.Status = status
		if status == StatusCancelled && reason != "" {
			a.CancellationReason = &reason
		}

		err = s.appointments.SetStatus(ctx, a)
		if errors.Is(err, errStaleVersion) && attempt < maxCommitAttempts {
			continue
		}
		if errors.Is(err, errStaleVersion) {
			return nil, fmt.Errorf("%w: %v", ErrPersistenceRace, err)
		}
		if err != nil {
			return nil, err
		}

		s.logger.Info().Str("tenant_id", tenantID).Str("appointment_id", id.String()).
			Str("from", from).Str("to", status).Msg("appointment status changed")
		if status == StatusCancelled {
			s.publish(ctx, events.AppointmentCancelled, a)
		} else {
			s.publish(ctx, events.AppointmentStatusChanged, a)
		}
		return a, nil
	}
}

// -- Reads --

func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (*Appointment, error) {
	return s.appointments.Get(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Appointment, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", f.Status)}
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return nil, 0, &ValidationError{Field: "to", Reason: "must be after from"}
	}
	return s.appointments.List(ctx, f)
}

// -- Resources --

func (s *Service) ListProfessionals(ctx context.Context, tenantID string, activeOnly bool) ([]Professional, error) {
	return s.resources.ListProfessionals(ctx, tenantID, activeOnly)
}

func (s *Service) CreateProfessional(ctx context.Context, p *Professional) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	return s.resources.CreateProfessional(ctx, p)
}

func (s *Service) ListRooms(ctx context.Context, tenantID string, activeOnly bool) ([]Room, error) {
	return s.resources.ListRooms(ctx, tenantID, activeOnly)
}

func (s *Service) CreateRoom(ctx context.Context, r *Room) error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	return s.resources.CreateRoom(ctx, r)
}

func (s *Service) ListPatients(ctx context.Context, tenantID string, limit, offset int) ([]Patient, int, error) {
	return s.resources.ListPatients(ctx, tenantID, limit, offset)
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	return s.resources.CreatePatient(ctx, p)
}

// -- helpers --

func validateAppointment(a *Appointment) error {
	if !validTypes[a.Type] {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown type %q", a.Type)}
	}
	if !validStatuses[a.Status] {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", a.Status)}
	}
	if a.Type == TypeAppointment && a.PatientID == nil {
		return &ValidationError{Field: "patientId", Reason: "is required for appointments"}
	}
	return candidateFor(a).Validate()
}

func candidateFor(a *Appointment) Candidate {
	c := Candidate{
		TenantID:       a.TenantID,
		ProfessionalID: a.ProfessionalID,
		RoomID:         a.RoomID,
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
	}
	if a.ID != uuid.Nil {
		id := a.ID
		c.ExcludeAppointmentID = &id
	}
	return c
}

func (s *Service) authorize(ctx context.Context, a *Appointment, c Candidate) error {
	if err := s.detector.Authorize(ctx, c); err != nil {
		return err
	}
	if a.PatientID != nil {
		if _, err := s.resources.GetPatient(ctx, a.TenantID, *a.PatientID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return &AuthorizationError{Resource: "patient", ID: *a.PatientID}
			}
			return fmt.Errorf("authorize patient: %w", err)
		}
	}
	return nil
}

func applyPatch(current *Appointment, p Patch) *Appointment {
	next := *current
	if p.PatientID != nil {
		next.PatientID = p.PatientID
	}
	if p.ProfessionalID != nil {
		next.ProfessionalID = *p.ProfessionalID
	}
	if p.ClearRoom {
		next.RoomID = nil
	} else if p.RoomID != nil {
		next.RoomID = p.RoomID
	}
	if p.Title != nil {
		next.Title = strings.TrimSpace(*p.Title)
	}
	if p.Notes != nil {
		next.Notes = p.Notes
	}
	if p.StartTime != nil {
		next.StartTime = p.StartTime.UTC()
	}
	if p.EndTime != nil {
		next.EndTime = p.EndTime.UTC()
	}
	return &next
}

// reload returns the stored row with joined names, falling back to a when
// the read fails.
func (s *Service) reload(ctx context.Context, a *Appointment) *Appointment {
	fresh, err := s.appointments.Get(ctx, a.TenantID, a.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("reload after write failed")
		return a
	}
	return fresh
}

func (s *Service) publish(ctx context.Context, eventType string, a *Appointment) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.New(eventType, a.TenantID, a)); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Str("appointment_id", a.ID.String()).Msg("event publish failed")
	}
}
