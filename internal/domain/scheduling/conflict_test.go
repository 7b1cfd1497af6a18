package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name           string
		s1, e1, s2, e2 time.Time
		want           bool
	}{
		{"back to back", at(9, 0), at(10, 0), at(10, 0), at(11, 0), false},
		{"back to back reversed", at(10, 0), at(11, 0), at(9, 0), at(10, 0), false},
		{"partial overlap", at(9, 0), at(10, 0), at(9, 30), at(10, 30), true},
		{"contained", at(9, 0), at(12, 0), at(10, 0), at(11, 0), true},
		{"identical", at(9, 0), at(10, 0), at(9, 0), at(10, 0), true},
		{"disjoint", at(8, 0), at(9, 0), at(10, 0), at(11, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.s1, tt.e1, tt.s2, tt.e2); got != tt.want {
				t.Errorf("Overlaps = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheck_ProfessionalOverlap(t *testing.T) {
	f := newFixture(t)
	existing := f.seed(f.prof, nil, at(9, 0), at(10, 0))

	got := Check(f.candidate(f.prof, nil, at(9, 30), at(10, 30)), []Appointment{*existing})
	if len(got) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(got))
	}
	c := got[0]
	if c.Type != ConflictProfessional || c.AppointmentID != existing.ID {
		t.Errorf("unexpected conflict %+v", c)
	}
	if !c.StartTime.Equal(at(9, 0)) || !c.EndTime.Equal(at(10, 0)) {
		t.Errorf("expected 09:00-10:00, got %s-%s", c.StartTime, c.EndTime)
	}
	if c.ProfessionalName != "Dra. Ana" || c.PatientName != "Maria" {
		t.Errorf("expected display names, got %+v", c)
	}
}

func TestCheck_BackToBackIsFree(t *testing.T) {
	f := newFixture(t)
	before := f.seed(f.prof, &f.roomR, at(8, 0), at(9, 0))
	after := f.seed(f.prof, &f.roomR, at(10, 0), at(11, 0))

	got := Check(f.candidate(f.prof, &f.roomR, at(9, 0), at(10, 0)), []Appointment{*before, *after})
	if len(got) != 0 {
		t.Errorf("touching endpoints must not conflict, got %+v", got)
	}
}

func TestCheck_ExcludeSelf(t *testing.T) {
	f := newFixture(t)
	existing := f.seed(f.prof, &f.roomR, at(9, 0), at(10, 0))

	c := f.candidate(f.prof, &f.roomR, at(9, 0), at(10, 0))
	c.ExcludeAppointmentID = &existing.ID
	if got := Check(c, []Appointment{*existing}); len(got) != 0 {
		t.Errorf("excluded appointment conflicted with itself: %+v", got)
	}
}

func TestCheck_IgnoresCancelled(t *testing.T) {
	f := newFixture(t)
	existing := f.seed(f.prof, nil, at(9, 0), at(10, 0))
	existing.Status = StatusCancelled

	if got := Check(f.candidate(f.prof, nil, at(9, 0), at(10, 0)), []Appointment{*existing}); len(got) != 0 {
		t.Errorf("cancelled appointment conflicted: %+v", got)
	}
}

func TestCheck_IgnoresOtherTenants(t *testing.T) {
	f := newFixture(t)
	existing := f.seed(f.prof, nil, at(9, 0), at(10, 0))
	existing.TenantID = tenantB

	if got := Check(f.candidate(f.prof, nil, at(9, 0), at(10, 0)), []Appointment{*existing}); len(got) != 0 {
		t.Errorf("appointment of another tenant conflicted: %+v", got)
	}
}

func TestCheck_NoRoomChecksOnlyProfessional(t *testing.T) {
	f := newFixture(t)
	other := f.seed(f.prof2, &f.roomR, at(9, 0), at(10, 0))

	if got := Check(f.candidate(f.prof, nil, at(9, 0), at(10, 0)), []Appointment{*other}); len(got) != 0 {
		t.Errorf("candidate without room conflicted on room: %+v", got)
	}
}

func TestCheck_BothTypesOrdered(t *testing.T) {
	f := newFixture(t)
	both := f.seed(f.prof, &f.roomS, at(10, 0), at(11, 0))
	roomOnly := f.seed(f.prof2, &f.roomS, at(9, 0), at(10, 0))

	got := Check(f.candidate(f.prof, &f.roomS, at(9, 30), at(10, 30)), []Appointment{*both, *roomOnly})
	if len(got) != 3 {
		t.Fatalf("expected 3 conflicts, got %d: %+v", len(got), got)
	}
	want := []struct {
		typ string
		id  uuid.UUID
	}{
		{ConflictRoom, roomOnly.ID},
		{ConflictProfessional, both.ID},
		{ConflictRoom, both.ID},
	}
	for i, w := range want {
		if got[i].Type != w.typ || got[i].AppointmentID != w.id {
			t.Errorf("conflict %d: got %s/%s, want %s/%s", i, got[i].Type, got[i].AppointmentID, w.typ, w.id)
		}
	}
}

func TestCandidate_Validate(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name  string
		c     Candidate
		field string
	}{
		{"zero duration", f.candidate(f.prof, nil, at(9, 0), at(9, 0)), "endTime"},
		{"negative duration", f.candidate(f.prof, nil, at(10, 0), at(9, 0)), "endTime"},
		{"missing times", f.candidate(f.prof, nil, time.Time{}, at(9, 0)), "startTime"},
		{"missing professional", f.candidate(uuid.Nil, nil, at(9, 0), at(10, 0)), "professionalId"},
		{"missing tenant", Candidate{ProfessionalID: f.prof, StartTime: at(9, 0), EndTime: at(10, 0)}, "tenantId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("expected ValidationError on %s, got %v", tt.field, err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Error("expected error to match ErrValidation")
			}
		})
	}
}

func TestDetector_ZeroDurationRejectedBeforeQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.DetectConflicts(context.Background(), f.candidate(f.prof, nil, at(9, 0), at(9, 0)))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.cal.activeCalls != 0 {
		t.Errorf("expected no calendar query, got %d", f.cal.activeCalls)
	}
}

func TestDetector_CrossTenantReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		c        Candidate
		resource string
	}{
		{"foreign professional", f.candidate(f.foreignProf, nil, at(9, 0), at(10, 0)), "professional"},
		{"foreign room", f.candidate(f.prof, &f.foreignRoom, at(9, 0), at(10, 0)), "room"},
		{"unknown professional", f.candidate(uuid.New(), nil, at(9, 0), at(10, 0)), "professional"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.DetectConflicts(ctx, tt.c)
			var ae *AuthorizationError
			if !errors.As(err, &ae) || ae.Resource != tt.resource {
				t.Fatalf("expected AuthorizationError on %s, got %v", tt.resource, err)
			}
			if !errors.Is(err, ErrUnauthorized) {
				t.Error("expected error to match ErrUnauthorized")
			}
		})
	}
}

func TestDetector_RoomConflictFromAnotherProfessional(t *testing.T) {
	f := newFixture(t)
	busy := f.seed(f.prof2, &f.roomS, at(14, 0), at(15, 0))

	got, err := f.svc.DetectConflicts(context.Background(), f.candidate(f.prof, &f.roomS, at(14, 0), at(15, 0)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Type != ConflictRoom || got[0].AppointmentID != busy.ID {
		t.Fatalf("expected a single room conflict, got %+v", got)
	}
	if got[0].RoomName != "Sala S" {
		t.Errorf("expected room name, got %q", got[0].RoomName)
	}
}

func TestDetector_CancelledNoLongerConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing := f.seed(f.prof, nil, at(9, 0), at(10, 0))
	c := f.candidate(f.prof, nil, at(9, 0), at(10, 0))

	got, _ := f.svc.DetectConflicts(ctx, c)
	if len(got) != 1 {
		t.Fatalf("expected conflict before cancelling, got %d", len(got))
	}
	if _, err := f.svc.Cancel(ctx, tenantA, existing.ID, "paciente desmarcou"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ = f.svc.DetectConflicts(ctx, c)
	if len(got) != 0 {
		t.Errorf("expected no conflict after cancelling, got %+v", got)
	}
}
