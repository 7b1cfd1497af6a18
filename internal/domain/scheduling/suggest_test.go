package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/odontoclinic/agenda/internal/domain/clinic"
)

func suggest(t *testing.T, f *fixture, c Candidate) *Suggestions {
	t.Helper()
	ctx := context.Background()
	conflicts, err := f.svc.DetectConflicts(ctx, c)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	s, err := f.svc.GenerateSuggestions(ctx, c, conflicts)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	return s
}

func assertSlots(t *testing.T, got []TimeSlot, starts ...time.Time) {
	t.Helper()
	if len(got) != len(starts) {
		t.Fatalf("expected %d slots, got %d: %+v", len(starts), len(got), got)
	}
	for i, s := range starts {
		if !got[i].StartTime.Equal(s) {
			t.Errorf("slot %d: got %s, want %s", i, got[i].StartTime, s)
		}
	}
}

func TestGenerator_NextSlotAfterOverlap(t *testing.T) {
	f := newFixture(t)
	f.seed(f.prof, nil, at(9, 0), at(10, 0))

	s := suggest(t, f, f.candidate(f.prof, nil, at(9, 30), at(10, 30)))
	assertSlots(t, s.NextAvailableSlots, at(10, 0), at(10, 30), at(11, 0))
	first := s.NextAvailableSlots[0]
	if !first.EndTime.Equal(at(11, 0)) {
		t.Errorf("expected first slot to end at 11:00, got %s", first.EndTime)
	}
	if s.Message != "" {
		t.Errorf("unexpected message %q", s.Message)
	}
}

func TestGenerator_RespectsWorkingHours(t *testing.T) {
	f := newFixture(t)
	f.seed(f.prof, nil, at(17, 0), at(18, 0))

	s := suggest(t, f, f.candidate(f.prof, nil, at(17, 0), at(18, 0)))
	tuesday := day.AddDate(0, 0, 1)
	assertSlots(t, s.NextAvailableSlots,
		tuesday.Add(8*time.Hour), tuesday.Add(8*time.Hour+30*time.Minute), tuesday.Add(9*time.Hour))

	rules, err := f.settings.Compile()
	if err != nil {
		t.Fatal(err)
	}
	for _, slot := range s.NextAvailableSlots {
		if !rules.Fits(slot.StartTime, slot.EndTime) {
			t.Errorf("slot %s-%s outside working hours", slot.StartTime, slot.EndTime)
		}
	}
}

func TestGenerator_SkipsSundaysAndHolidays(t *testing.T) {
	f := newFixture(t)
	f.settings.Holidays = []clinic.Holiday{{Date: "2024-06-17", Name: "Feriado"}}
	saturday := day.AddDate(0, 0, 5)
	f.seed(f.prof, nil, saturday.Add(17*time.Hour), saturday.Add(18*time.Hour))

	s := suggest(t, f, f.candidate(f.prof, nil, saturday.Add(17*time.Hour), saturday.Add(18*time.Hour)))
	tuesday := day.AddDate(0, 0, 8)
	if len(s.NextAvailableSlots) == 0 || !s.NextAvailableSlots[0].StartTime.Equal(tuesday.Add(8*time.Hour)) {
		t.Fatalf("expected first slot on Tuesday 08:00, got %+v", s.NextAvailableSlots)
	}
}

func TestGenerator_NeverInThePast(t *testing.T) {
	f := newFixture(t)
	f.svc.generator.now = func() time.Time { return at(10, 45) }
	f.seed(f.prof, nil, at(9, 0), at(10, 0))

	s := suggest(t, f, f.candidate(f.prof, nil, at(9, 30), at(10, 30)))
	for _, slot := range s.NextAvailableSlots {
		if slot.StartTime.Before(at(10, 45)) {
			t.Errorf("slot %s starts in the past", slot.StartTime)
		}
	}
	assertSlots(t, s.NextAvailableSlots, at(11, 0), at(11, 30), at(12, 0))
}

func TestGenerator_AppliesBuffer(t *testing.T) {
	f := newFixture(t)
	f.settings.BufferMinutes = 15
	f.seed(f.prof, nil, at(9, 0), at(10, 0))

	s := suggest(t, f, f.candidate(f.prof, nil, at(9, 30), at(10, 30)))
	if !s.NextAvailableSlots[0].StartTime.Equal(at(10, 30)) {
		t.Errorf("expected buffer to push the first slot to 10:30, got %s", s.NextAvailableSlots[0].StartTime)
	}
}

func TestGenerator_AvoidsLunch(t *testing.T) {
	f := newFixture(t)
	f.settings.LunchStart, f.settings.LunchEnd = "12:00", "13:00"
	f.seed(f.prof, nil, at(11, 0), at(12, 0))

	s := suggest(t, f, f.candidate(f.prof, nil, at(11, 0), at(12, 0)))
	assertSlots(t, s.NextAvailableSlots, at(13, 0), at(13, 30), at(14, 0))
}

func TestGenerator_UsesClinicTimeZone(t *testing.T) {
	f := newFixture(t)
	f.settings.TimeZone = "America/Sao_Paulo"
	// 17:00-18:00 local is 20:00-21:00 UTC.
	f.seed(f.prof, nil, at(20, 0), at(21, 0))

	s := suggest(t, f, f.candidate(f.prof, nil, at(20, 0), at(21, 0)))
	// Tuesday 08:00 local is 11:00 UTC.
	want := day.AddDate(0, 0, 1).Add(11 * time.Hour)
	if len(s.NextAvailableSlots) == 0 || !s.NextAvailableSlots[0].StartTime.Equal(want) {
		t.Fatalf("expected first slot at %s, got %+v", want, s.NextAvailableSlots)
	}
}

func TestGenerator_ExcludesEditedAppointment(t *testing.T) {
	f := newFixture(t)
	self := f.seed(f.prof, nil, at(10, 0), at(11, 0))
	f.seed(f.prof, nil, at(9, 0), at(10, 0))

	c := f.candidate(f.prof, nil, at(9, 30), at(10, 30))
	c.ExcludeAppointmentID = &self.ID
	s := suggest(t, f, c)
	if !s.NextAvailableSlots[0].StartTime.Equal(at(10, 0)) {
		t.Errorf("edited appointment must not block its own slot, got %s", s.NextAvailableSlots[0].StartTime)
	}
}

func TestGenerator_AlternativeRooms(t *testing.T) {
	f := newFixture(t)
	f.seed(f.prof2, &f.roomS, at(14, 0), at(15, 0))
	f.seed(f.prof2, &f.roomT, at(14, 30), at(15, 30))

	c := f.candidate(f.prof, &f.roomS, at(14, 0), at(15, 0))
	conflicts, err := f.svc.DetectConflicts(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if len(conflicts) != 1 || conflicts[0].Type != ConflictRoom {
		t.Fatalf("expected a room conflict, got %+v", conflicts)
	}

	s, err := f.svc.GenerateSuggestions(context.Background(), c, conflicts)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.AlternativeRooms) != 1 || s.AlternativeRooms[0].RoomID != f.roomR {
		t.Fatalf("expected only room R, got %+v", s.AlternativeRooms)
	}
	for _, r := range s.AlternativeRooms {
		if r.RoomID == f.roomS {
			t.Error("requested room offered as alternative")
		}
	}
}

func TestGenerator_AlternativeRoomsOrderedByID(t *testing.T) {
	f := newFixture(t)
	f.seed(f.prof2, &f.roomT, at(14, 0), at(15, 0))

	c := f.candidate(f.prof, &f.roomT, at(14, 0), at(15, 0))
	s := suggest(t, f, c)
	if len(s.AlternativeRooms) != 2 {
		t.Fatalf("expected 2 rooms, got %+v", s.AlternativeRooms)
	}
	if s.AlternativeRooms[0].RoomID != f.roomR || s.AlternativeRooms[1].RoomID != f.roomS {
		t.Errorf("expected R then S, got %+v", s.AlternativeRooms)
	}
}

func TestGenerator_SkipsInactiveRooms(t *testing.T) {
	f := newFixture(t)
	f.res.rooms[f.roomR].Active = false
	f.seed(f.prof2, &f.roomS, at(14, 0), at(15, 0))

	s := suggest(t, f, f.candidate(f.prof, &f.roomS, at(14, 0), at(15, 0)))
	for _, r := range s.AlternativeRooms {
		if r.RoomID == f.roomR {
			t.Error("inactive room offered as alternative")
		}
	}
}

func TestGenerator_NoRoomsForProfessionalOnlyConflict(t *testing.T) {
	f := newFixture(t)
	f.seed(f.prof, &f.roomR, at(9, 0), at(10, 0))

	s := suggest(t, f, f.candidate(f.prof, &f.roomS, at(9, 0), at(10, 0)))
	if len(s.AlternativeRooms) != 0 {
		t.Errorf("requested room is free, expected no alternatives, got %+v", s.AlternativeRooms)
	}
}

func TestGenerator_EmptyMeansManualSelection(t *testing.T) {
	f := newFixture(t)
	f.settings.HorizonDays = 1
	f.seed(f.prof, nil, at(8, 0), day.AddDate(0, 0, 3))

	s := suggest(t, f, f.candidate(f.prof, nil, at(9, 0), at(10, 0)))
	if !s.Empty() {
		t.Fatalf("expected no suggestions, got %+v", s)
	}
	if s.NextAvailableSlots == nil || s.AlternativeRooms == nil {
		t.Error("expected empty lists, not nil")
	}
	if s.Message == "" {
		t.Error("expected a manual selection message")
	}
}

func TestSearchSteps(t *testing.T) {
	tests := []struct {
		slot, horizon int
		want          int
	}{
		{30, 14, 14 * 24 * 2},
		{5, 90, MaxSearchSteps},
		{60, 1, 24},
	}
	for _, tt := range tests {
		s := clinic.DefaultSettings(tenantA)
		s.SlotMinutes, s.HorizonDays = tt.slot, tt.horizon
		rules, err := s.Compile()
		if err != nil {
			t.Fatal(err)
		}
		if got := SearchSteps(rules); got != tt.want {
			t.Errorf("slot=%d horizon=%d: got %d, want %d", tt.slot, tt.horizon, got, tt.want)
		}
	}
}

func TestGenerator_SingleSnapshotQuery(t *testing.T) {
	f := newFixture(t)
	f.seed(f.prof, nil, at(9, 0), at(10, 0))
	c := f.candidate(f.prof, nil, at(9, 30), at(10, 30))

	before := f.cal.activeCalls
	if _, err := f.svc.GenerateSuggestions(context.Background(), c, nil); err != nil {
		t.Fatal(err)
	}
	if got := f.cal.activeCalls - before; got != 1 {
		t.Errorf("expected one calendar query for the slot walk, got %d", got)
	}
}
