package scheduling

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/odontoclinic/agenda/internal/domain/clinic"
	"github.com/odontoclinic/agenda/internal/platform/events"
)

const (
	tenantA = "clinic_1"
	tenantB = "clinic_2"
)

// 2024-06-10 is a Monday.
var (
	day     = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

// -- resources --

type mockResources struct {
	professionals map[uuid.UUID]*Professional
	rooms         map[uuid.UUID]*Room
	patients      map[uuid.UUID]*Patient
}

func newMockResources() *mockResources {
	return &mockResources{
		professionals: map[uuid.UUID]*Professional{},
		rooms:         map[uuid.UUID]*Room{},
		patients:      map[uuid.UUID]*Patient{},
	}
}

func (m *mockResources) GetProfessional(_ context.Context, tenantID string, id uuid.UUID) (*Professional, error) {
	p, ok := m.professionals[id]
	if !ok || p.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockResources) ListProfessionals(_ context.Context, tenantID string, activeOnly bool) ([]Professional, error) {
	var out []Professional
	for _, p := range m.professionals {
		if p.TenantID == tenantID && (p.Active || !activeOnly) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockResources) CreateProfessional(_ context.Context, p *Professional) error {
	p.ID = uuid.New()
	cp := *p
	m.professionals[p.ID] = &cp
	return nil
}

func (m *mockResources) GetRoom(_ context.Context, tenantID string, id uuid.UUID) (*Room, error) {
	r, ok := m.rooms[id]
	if !ok || r.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *mockResources) ListRooms(_ context.Context, tenantID string, activeOnly bool) ([]Room, error) {
	var out []Room
	for _, r := range m.rooms {
		if r.TenantID == tenantID && (r.Active || !activeOnly) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	return out, nil
}

func (m *mockResources) CreateRoom(_ context.Context, r *Room) error {
	r.ID = uuid.New()
	cp := *r
	m.rooms[r.ID] = &cp
	return nil
}

func (m *mockResources) GetPatient(_ context.Context, tenantID string, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok || p.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockResources) ListPatients(_ context.Context, tenantID string, limit, offset int) ([]Patient, int, error) {
	var out []Patient
	for _, p := range m.patients {
		if p.TenantID == tenantID {
			out = append(out, *p)
		}
	}
	total := len(out)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockResources) CreatePatient(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

// -- calendar --

type mockCalendar struct {
	appts       map[uuid.UUID]*Appointment
	locks       [][]string
	activeCalls int
	inserts     int
	// insertHook runs before every insert; a non-nil error aborts it.
	insertHook func(a *Appointment) error
	updateHook func(a *Appointment) error
}

func newMockCalendar() *mockCalendar {
	return &mockCalendar{appts: map[uuid.UUID]*Appointment{}}
}

func (m *mockCalendar) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *mockCalendar) LockCalendars(_ context.Context, keys ...string) error {
	m.locks = append(m.locks, append([]string(nil), keys...))
	return nil
}

func (m *mockCalendar) Active(_ context.Context, q CalendarQuery) ([]Appointment, error) {
	m.activeCalls++
	var out []Appointment
	for _, a := range m.appts {
		if a.TenantID != q.TenantID || a.Status == StatusCancelled {
			continue
		}
		if q.Exclude != nil && a.ID == *q.Exclude {
			continue
		}
		if !Overlaps(a.StartTime, a.EndTime, q.From, q.To) {
			continue
		}
		match := q.ProfessionalID != nil && a.ProfessionalID == *q.ProfessionalID
		if a.RoomID != nil {
			for _, id := range q.RoomIDs {
				if id == *a.RoomID {
					match = true
				}
			}
		}
		if match {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

func (m *mockCalendar) Get(_ context.Context, tenantID string, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok || a.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockCalendar) List(_ context.Context, f ListFilter) ([]Appointment, int, error) {
	var out []Appointment
	for _, a := range m.appts {
		if a.TenantID != f.TenantID || (f.Status != "" && a.Status != f.Status) {
			continue
		}
		if f.ProfessionalID != nil && a.ProfessionalID != *f.ProfessionalID {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, len(out), nil
}

func (m *mockCalendar) Insert(_ context.Context, a *Appointment) error {
	m.inserts++
	if m.insertHook != nil {
		if err := m.insertHook(a); err != nil {
			return err
		}
	}
	a.ID = uuid.New()
	a.Version = 1
	a.CreatedAt = testNow
	a.UpdatedAt = testNow
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockCalendar) Update(_ context.Context, a *Appointment) error {
	if m.updateHook != nil {
		if err := m.updateHook(a); err != nil {
			return err
		}
	}
	stored, ok := m.appts[a.ID]
	if !ok || stored.Version != a.Version {
		return errStaleVersion
	}
	a.Version++
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockCalendar) SetStatus(_ context.Context, a *Appointment) error {
	stored, ok := m.appts[a.ID]
	if !ok || stored.Version != a.Version {
		return errStaleVersion
	}
	stored.Status = a.Status
	stored.CancellationReason = a.CancellationReason
	stored.Version++
	a.Version = stored.Version
	return nil
}

// -- collaborators --

type staticRules struct{ settings *clinic.Settings }

func (s *staticRules) Rules(context.Context, string) (*clinic.Rules, error) {
	return s.settings.Compile()
}

type recordingPublisher struct {
	events []events.Event
	fail   bool
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// -- fixture --

type fixture struct {
	svc      *Service
	res      *mockResources
	cal      *mockCalendar
	pub      *recordingPublisher
	settings *clinic.Settings

	prof, prof2, foreignProf uuid.UUID
	roomR, roomS, roomT      uuid.UUID
	foreignRoom              uuid.UUID
	patient, foreignPatient  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	settings := clinic.DefaultSettings(tenantA)
	settings.TimeZone = "UTC"

	f := &fixture{
		res:      newMockResources(),
		cal:      newMockCalendar(),
		pub:      &recordingPublisher{},
		settings: settings,

		prof:           uuid.New(),
		prof2:          uuid.New(),
		foreignProf:    uuid.New(),
		roomR:          uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		roomS:          uuid.MustParse("00000000-0000-0000-0000-000000000002"),
		roomT:          uuid.MustParse("00000000-0000-0000-0000-000000000003"),
		foreignRoom:    uuid.MustParse("00000000-0000-0000-0000-000000000009"),
		patient:        uuid.New(),
		foreignPatient: uuid.New(),
	}
	f.res.professionals[f.prof] = &Professional{ID: f.prof, TenantID: tenantA, Name: "Dra. Ana", Active: true}
	f.res.professionals[f.prof2] = &Professional{ID: f.prof2, TenantID: tenantA, Name: "Dr. Bruno", Active: true}
	f.res.professionals[f.foreignProf] = &Professional{ID: f.foreignProf, TenantID: tenantB, Name: "Dr. Caio", Active: true}
	f.res.rooms[f.roomR] = &Room{ID: f.roomR, TenantID: tenantA, Name: "Sala R", Active: true}
	f.res.rooms[f.roomS] = &Room{ID: f.roomS, TenantID: tenantA, Name: "Sala S", Active: true}
	f.res.rooms[f.roomT] = &Room{ID: f.roomT, TenantID: tenantA, Name: "Sala T", Active: true}
	f.res.rooms[f.foreignRoom] = &Room{ID: f.foreignRoom, TenantID: tenantB, Name: "Sala X", Active: true}
	f.res.patients[f.patient] = &Patient{ID: f.patient, TenantID: tenantA, Name: "Maria"}
	f.res.patients[f.foreignPatient] = &Patient{ID: f.foreignPatient, TenantID: tenantB, Name: "João"}

	f.svc = NewService(f.res, f.cal, &staticRules{settings: settings}, f.pub, zerolog.Nop(),
		WithClock(func() time.Time { return testNow }))
	return f
}

// seed stores an active appointment directly in the calendar.
func (f *fixture) seed(prof uuid.UUID, room *uuid.UUID, start, end time.Time) *Appointment {
	a := &Appointment{
		ID:             uuid.New(),
		TenantID:       tenantA,
		PatientID:      &f.patient,
		ProfessionalID: prof,
		RoomID:         room,
		StartTime:      start,
		EndTime:        end,
		Status:         StatusScheduled,
		Type:           TypeAppointment,
		Version:        1,
		PatientName:    "Maria",
	}
	if p, ok := f.res.professionals[prof]; ok {
		a.TenantID = p.TenantID
		a.ProfessionalName = p.Name
	}
	if room != nil {
		a.RoomName = f.res.rooms[*room].Name
	}
	f.cal.appts[a.ID] = a
	return a
}

func (f *fixture) candidate(prof uuid.UUID, room *uuid.UUID, start, end time.Time) Candidate {
	return Candidate{TenantID: tenantA, ProfessionalID: prof, RoomID: room, StartTime: start, EndTime: end}
}

func (f *fixture) draft(room *uuid.UUID, start, end time.Time) Draft {
	return Draft{
		PatientID:      &f.patient,
		ProfessionalID: f.prof,
		RoomID:         room,
		Title:          "Limpeza",
		StartTime:      start,
		EndTime:        end,
	}
}

func ptr[T any](v T) *T { return &v }
