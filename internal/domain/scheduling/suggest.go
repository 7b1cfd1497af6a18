package scheduling

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/odontoclinic/agenda/internal/domain/clinic"
)

// MaxSearchSteps caps the slot walk regardless of the configured horizon.
const MaxSearchSteps = 4032

const manualSelectionMessage = "no free slot or room found nearby, select a time manually"

// RulesProvider supplies the compiled clinic rules of a tenant.
type RulesProvider interface {
	Rules(ctx context.Context, tenantID string) (*clinic.Rules, error)
}

// Generator computes alternatives for a conflicting candidate from a
// calendar snapshot and the clinic rules.
type Generator struct {
	resources ResourceRepository
	calendar  AppointmentRepository
	rules     RulesProvider
	now       func() time.Time
}

func NewGenerator(resources ResourceRepository, calendar AppointmentRepository, rules RulesProvider, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{resources: resources, calendar: calendar, rules: rules, now: now}
}

// GenerateSuggestions returns up to rules.Count later slots for the same
// professional and, when the requested room is taken, the other rooms free
// for the exact candidate range.
func (g *Generator) GenerateSuggestions(ctx context.Context, c Candidate, conflicts []Conflict) (*Suggestions, error) {
	rules, err := g.rules.Rules(ctx, c.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load clinic rules: %w", err)
	}

	out := &Suggestions{NextAvailableSlots: []TimeSlot{}, AlternativeRooms: []AlternativeRoom{}}

	slots, err := g.nextSlots(ctx, c, rules)
	if err != nil {
		return nil, err
	}
	out.NextAvailableSlots = append(out.NextAvailableSlots, slots...)

	if c.RoomID != nil && hasConflict(conflicts, ConflictRoom) {
		rooms, err := g.alternativeRooms(ctx, c)
		if err != nil {
			return nil, err
		}
		out.AlternativeRooms = append(out.AlternativeRooms, rooms...)
	}

	if out.Empty() {
		out.Message = manualSelectionMessage
	}
	return out, nil
}

// SearchSteps is the number of probes walked for rules.
func SearchSteps(rules *clinic.Rules) int {
	if rules.Granularity <= 0 {
		return 0
	}
	steps := int(rules.Horizon / rules.Granularity)
	if steps > MaxSearchSteps {
		steps = MaxSearchSteps
	}
	return steps
}

func (g *Generator) nextSlots(ctx context.Context, c Candidate, rules *clinic.Rules) ([]TimeSlot, error) {
	steps := SearchSteps(rules)
	if steps == 0 || rules.Count <= 0 {
		return nil, nil
	}
	dur := c.Duration()
	step := rules.Granularity

	// One snapshot covers every probe of the walk.
	snapshot, err := g.calendar.Active(ctx, CalendarQuery{
		TenantID:       c.TenantID,
		ProfessionalID: &c.ProfessionalID,
		From:           c.StartTime.Add(step - rules.Buffer),
		To:             c.StartTime.Add(time.Duration(steps)*step + dur + rules.Buffer),
		Exclude:        c.ExcludeAppointmentID,
	})
	if err != nil {
		return nil, err
	}

	now := g.now()
	var found []TimeSlot
	for i := 1; i <= steps && len(found) < rules.Count; i++ {
		start := c.StartTime.Add(time.Duration(i) * step)
		end := start.Add(dur)
		if start.Before(now) || !rules.Fits(start, end) {
			continue
		}
		probe := Candidate{
			TenantID:             c.TenantID,
			ProfessionalID:       c.ProfessionalID,
			StartTime:            start.Add(-rules.Buffer),
			EndTime:              end.Add(rules.Buffer),
			ExcludeAppointmentID: c.ExcludeAppointmentID,
		}
		if len(Check(probe, snapshot)) == 0 {
			found = append(found, TimeSlot{StartTime: start, EndTime: end})
		}
	}
	return found, nil
}

func (g *Generator) alternativeRooms(ctx context.Context, c Candidate) ([]AlternativeRoom, error) {
	rooms, err := g.resources.ListRooms(ctx, c.TenantID, true)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for _, r := range rooms {
		if r.ID != *c.RoomID {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	snapshot, err := g.calendar.Active(ctx, CalendarQuery{
		TenantID: c.TenantID,
		RoomIDs:  ids,
		From:     c.StartTime,
		To:       c.EndTime,
		Exclude:  c.ExcludeAppointmentID,
	})
	if err != nil {
		return nil, err
	}

	var out []AlternativeRoom
	for _, r := range rooms {
		if r.ID == *c.RoomID {
			continue
		}
		roomID := r.ID
		probe := Candidate{
			TenantID:             c.TenantID,
			RoomID:               &roomID,
			StartTime:            c.StartTime,
			EndTime:              c.EndTime,
			ExcludeAppointmentID: c.ExcludeAppointmentID,
		}
		if len(Check(probe, snapshot)) == 0 {
			out = append(out, AlternativeRoom{RoomID: r.ID, RoomName: r.Name})
		}
	}
	sortRooms(out)
	return out, nil
}

func hasConflict(conflicts []Conflict, kind string) bool {
	for _, c := range conflicts {
		if c.Type == kind {
			return true
		}
	}
	return false
}

// sortRooms orders by id bytes, matching the uuid ordering of PostgreSQL.
func sortRooms(rooms []AlternativeRoom) {
	sort.Slice(rooms, func(i, j int) bool {
		return bytes.Compare(rooms[i].RoomID[:], rooms[j].RoomID[:]) < 0
	})
}
