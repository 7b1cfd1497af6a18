package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Appointment statuses.
const (
	StatusScheduled  = "scheduled"
	StatusConfirmed  = "confirmed"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no_show"
)

// Appointment types. Every non-cancelled type occupies the calendar.
const (
	TypeAppointment = "appointment"
	TypeBlock       = "block"
	TypeReminder    = "reminder"
)

// Conflict types, in emission order.
const (
	ConflictProfessional = "professional"
	ConflictRoom         = "room"
)

var validStatuses = map[string]bool{
	StatusScheduled: true, StatusConfirmed: true, StatusInProgress: true,
	StatusCompleted: true, StatusCancelled: true, StatusNoShow: true,
}

var validTypes = map[string]bool{
	TypeAppointment: true, TypeBlock: true, TypeReminder: true,
}

// transitions lists the statuses reachable from each non-terminal status.
var transitions = map[string][]string{
	StatusScheduled:  {StatusConfirmed, StatusInProgress, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether an appointment may move from one status to
// another.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions leave status.
func IsTerminal(status string) bool {
	return len(transitions[status]) == 0
}

type Appointment struct {
	ID                 uuid.UUID  `json:"id"`
	TenantID           string     `json:"tenantId"`
	PatientID          *uuid.UUID `json:"patientId,omitempty"`
	ProfessionalID     uuid.UUID  `json:"professionalId"`
	RoomID             *uuid.UUID `json:"roomId,omitempty"`
	Title              string     `json:"title"`
	Notes              *string    `json:"notes,omitempty"`
	StartTime          time.Time  `json:"startTime"`
	EndTime            time.Time  `json:"endTime"`
	Status             string     `json:"status"`
	Type               string     `json:"type"`
	CancellationReason *string    `json:"cancellationReason,omitempty"`
	Version            int        `json:"version"`
	CreatedBy          *string    `json:"createdBy,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`

	// Display names joined on read.
	PatientName      string `json:"patientName,omitempty"`
	ProfessionalName string `json:"professionalName,omitempty"`
	RoomName         string `json:"roomName,omitempty"`
}

type Professional struct {
	ID        uuid.UUID `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name"`
	Specialty *string   `json:"specialty,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

type Room struct {
	ID          uuid.UUID `json:"id"`
	TenantID    string    `json:"tenantId"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Patient struct {
	ID        uuid.UUID `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TimeSlot is a half-open interval [StartTime, EndTime).
type TimeSlot struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// Conflict describes an existing appointment overlapping a candidate.
type Conflict struct {
	Type             string    `json:"type"`
	AppointmentID    uuid.UUID `json:"appointmentId"`
	PatientName      string    `json:"patientName,omitempty"`
	ProfessionalName string    `json:"professionalName,omitempty"`
	RoomName         string    `json:"roomName,omitempty"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
}

// Candidate is a proposed calendar occupation that has not been persisted.
type Candidate struct {
	TenantID             string     `json:"-"`
	ProfessionalID       uuid.UUID  `json:"professionalId"`
	RoomID               *uuid.UUID `json:"roomId,omitempty"`
	StartTime            time.Time  `json:"startTime"`
	EndTime              time.Time  `json:"endTime"`
	ExcludeAppointmentID *uuid.UUID `json:"excludeAppointmentId,omitempty"`
}

func (c Candidate) Duration() time.Duration { return c.EndTime.Sub(c.StartTime) }

// Validate rejects candidates that cannot be checked at all.
func (c Candidate) Validate() error {
	switch {
	case c.TenantID == "":
		return &ValidationError{Field: "tenantId", Reason: "is required"}
	case c.ProfessionalID == uuid.Nil:
		return &ValidationError{Field: "professionalId", Reason: "is required"}
	case c.StartTime.IsZero() || c.EndTime.IsZero():
		return &ValidationError{Field: "startTime", Reason: "startTime and endTime are required"}
	case !c.StartTime.Before(c.EndTime):
		return &ValidationError{Field: "endTime", Reason: "must be after startTime"}
	}
	return nil
}

type AlternativeRoom struct {
	RoomID   uuid.UUID `json:"roomId"`
	RoomName string    `json:"roomName"`
}

// Suggestions are alternatives offered for a conflicting candidate. Both
// lists empty means the caller has to pick a slot manually.
type Suggestions struct {
	NextAvailableSlots []TimeSlot        `json:"nextAvailableSlots"`
	AlternativeRooms   []AlternativeRoom `json:"alternativeRooms"`
	Message            string            `json:"message,omitempty"`
}

func (s *Suggestions) Empty() bool {
	return len(s.NextAvailableSlots) == 0 && len(s.AlternativeRooms) == 0
}

// Availability is the answer to a read-only availability check.
type Availability struct {
	Available   bool         `json:"available"`
	Conflicts   []Conflict   `json:"conflicts"`
	Suggestions *Suggestions `json:"suggestions,omitempty"`
}

// BookingResult is the outcome of a write. Exactly one of Appointment or
// Conflicts is set.
type BookingResult struct {
	Appointment *Appointment `json:"appointment,omitempty"`
	Conflicts   []Conflict   `json:"conflicts,omitempty"`
	Suggestions *Suggestions `json:"suggestions,omitempty"`
}

func (r *BookingResult) Booked() bool { return r.Appointment != nil && len(r.Conflicts) == 0 }

// Draft is the input of Book.
type Draft struct {
	PatientID      *uuid.UUID `json:"patientId,omitempty"`
	ProfessionalID uuid.UUID  `json:"professionalId"`
	RoomID         *uuid.UUID `json:"roomId,omitempty"`
	Title          string     `json:"title"`
	Notes          *string    `json:"notes,omitempty"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        time.Time  `json:"endTime"`
	Type           string     `json:"type,omitempty"`
	Status         string     `json:"status,omitempty"`
}

// Patch is the input of Reschedule. Nil fields keep their current value;
// ClearRoom detaches the room.
type Patch struct {
	PatientID      *uuid.UUID `json:"patientId,omitempty"`
	ProfessionalID *uuid.UUID `json:"professionalId,omitempty"`
	RoomID         *uuid.UUID `json:"roomId,omitempty"`
	ClearRoom      bool       `json:"clearRoom,omitempty"`
	Title          *string    `json:"title,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	StartTime      *time.Time `json:"startTime,omitempty"`
	EndTime        *time.Time `json:"endTime,omitempty"`
}

func (p Patch) movesCalendar() bool {
	return p.ProfessionalID != nil || p.RoomID != nil || p.ClearRoom || p.StartTime != nil || p.EndTime != nil
}

// ListFilter narrows List. Zero values are ignored.
type ListFilter struct {
	TenantID       string
	From, To       time.Time
	ProfessionalID *uuid.UUID
	RoomID         *uuid.UUID
	Status         string
	Limit, Offset  int
}

// CalendarQuery selects the active appointments of one tenant that overlap
// [From, To) and belong to the professional or to any of the rooms.
type CalendarQuery struct {
	TenantID       string
	ProfessionalID *uuid.UUID
	RoomIDs        []uuid.UUID
	From, To       time.Time
	Exclude        *uuid.UUID
}
