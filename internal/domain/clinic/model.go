package clinic

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
	_ "time/tzdata" // embedded IANA zones
)

var (
	ErrInvalidSettings = errors.New("invalid clinic settings")
	ErrNotFound        = errors.New("clinic settings not found")
)

const (
	DefaultTimeZone        = "America/Sao_Paulo"
	DefaultSlotMinutes     = 30
	DefaultHorizonDays     = 14
	DefaultSuggestionCount = 3
)

// WorkingHours is one open interval on a weekday (0 = Sunday).
type WorkingHours struct {
	DayOfWeek int    `json:"dayOfWeek" db:"day_of_week"`
	Start     string `json:"start" db:"start_time"`
	End       string `json:"end" db:"end_time"`
}

// Holiday closes the clinic for a whole local day. Recurring holidays match
// the month and day of every year.
type Holiday struct {
	Date      string `json:"date" db:"date"`
	Name      string `json:"name" db:"name"`
	Recurring bool   `json:"recurring" db:"recurring"`
}

type Settings struct {
	TenantID        string         `json:"tenantId" db:"tenant_id"`
	TimeZone        string         `json:"timeZone" db:"time_zone"`
	SlotMinutes     int            `json:"slotMinutes" db:"slot_minutes"`
	BufferMinutes   int            `json:"bufferMinutes" db:"buffer_minutes"`
	HorizonDays     int            `json:"horizonDays" db:"horizon_days"`
	SuggestionCount int            `json:"suggestionCount" db:"suggestion_count"`
	LunchStart      string         `json:"lunchStart,omitempty" db:"lunch_start"`
	LunchEnd        string         `json:"lunchEnd,omitempty" db:"lunch_end"`
	WorkingHours    []WorkingHours `json:"workingHours"`
	Holidays        []Holiday      `json:"holidays"`
	UpdatedAt       time.Time      `json:"updatedAt" db:"updated_at"`
}

// DefaultSettings opens the clinic 08:00-18:00 Monday to Saturday.
func DefaultSettings(tenantID string) *Settings {
	s := &Settings{
		TenantID:        tenantID,
		TimeZone:        DefaultTimeZone,
		SlotMinutes:     DefaultSlotMinutes,
		HorizonDays:     DefaultHorizonDays,
		SuggestionCount: DefaultSuggestionCount,
		Holidays:        []Holiday{},
	}
	for d := time.Monday; d <= time.Saturday; d++ {
		s.WorkingHours = append(s.WorkingHours, WorkingHours{DayOfWeek: int(d), Start: "08:00", End: "18:00"})
	}
	return s
}

// ParseTimeOfDay parses "HH:MM" into minutes after midnight. "24:00" is
// accepted as the end of the day.
func ParseTimeOfDay(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid time format %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(s[:2])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(s[3:])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if hour == 24 && minute == 0 {
		return 24 * 60, nil
	}
	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("hour out of range in %q", s)
	}
	if minute < 0 || minute > 59 {
		return 0, fmt.Errorf("minute out of range in %q", s)
	}
	return hour*60 + minute, nil
}

type span struct{ start, end int }

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

// Rules is the compiled, validated form of Settings used on hot paths.
type Rules struct {
	Location    *time.Location
	Granularity time.Duration
	Buffer      time.Duration
	Horizon     time.Duration
	Count       int

	days     [7][]span
	lunch    *span
	fixed    map[string]bool // "2006-01-02"
	annually map[string]bool // "01-02"
}

// Compile validates s and returns its Rules.
func (s *Settings) Compile() (*Rules, error) {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, fmt.Sprintf(format, args...))
	}

	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil || s.TimeZone == "" {
		return nil, invalid("unknown time zone %q", s.TimeZone)
	}
	if s.SlotMinutes < 5 || s.SlotMinutes > 240 {
		return nil, invalid("slotMinutes must be between 5 and 240, got %d", s.SlotMinutes)
	}
	if s.BufferMinutes < 0 || s.BufferMinutes > 120 {
		return nil, invalid("bufferMinutes must be between 0 and 120, got %d", s.BufferMinutes)
	}
	if s.HorizonDays < 1 || s.HorizonDays > 90 {
		return nil, invalid("horizonDays must be between 1 and 90, got %d", s.HorizonDays)
	}
	if s.SuggestionCount < 1 || s.SuggestionCount > 20 {
		return nil, invalid("suggestionCount must be between 1 and 20, got %d", s.SuggestionCount)
	}

	r := &Rules{
		Location:    loc,
		Granularity: time.Duration(s.SlotMinutes) * time.Minute,
		Buffer:      time.Duration(s.BufferMinutes) * time.Minute,
		Horizon:     time.Duration(s.HorizonDays) * 24 * time.Hour,
		Count:       s.SuggestionCount,
		fixed:       map[string]bool{},
		annually:    map[string]bool{},
	}

	for _, wh := range s.WorkingHours {
		if wh.DayOfWeek < 0 || wh.DayOfWeek > 6 {
			return nil, invalid("dayOfWeek must be 0-6, got %d", wh.DayOfWeek)
		}
		start, err := ParseTimeOfDay(wh.Start)
		if err != nil || start == 24*60 {
			return nil, invalid("working hours start %q", wh.Start)
		}
		end, err := ParseTimeOfDay(wh.End)
		if err != nil {
			return nil, invalid("working hours end %q", wh.End)
		}
		if start >= end {
			return nil, invalid("working hours %s-%s must start before they end", wh.Start, wh.End)
		}
		sp := span{start, end}
		for _, other := range r.days[wh.DayOfWeek] {
			if sp.overlaps(other) {
				return nil, invalid("overlapping working hours on day %d", wh.DayOfWeek)
			}
		}
		r.days[wh.DayOfWeek] = append(r.days[wh.DayOfWeek], sp)
	}
	for d := range r.days {
		sort.Slice(r.days[d], func(i, j int) bool { return r.days[d][i].start < r.days[d][j].start })
	}

	if (s.LunchStart == "") != (s.LunchEnd == "") {
		return nil, invalid("lunchStart and lunchEnd must be set together")
	}
	if s.LunchStart != "" {
		ls, err1 := ParseTimeOfDay(s.LunchStart)
		le, err2 := ParseTimeOfDay(s.LunchEnd)
		if err1 != nil || err2 != nil || ls >= le {
			return nil, invalid("lunch break %s-%s", s.LunchStart, s.LunchEnd)
		}
		r.lunch = &span{ls, le}
	}

	for _, h := range s.Holidays {
		d, err := time.Parse("2006-01-02", h.Date)
		if err != nil {
			return nil, invalid("holiday date %q: expected YYYY-MM-DD", h.Date)
		}
		if h.Recurring {
			r.annually[d.Format("01-02")] = true
		} else {
			r.fixed[h.Date] = true
		}
	}

	return r, nil
}

// IsHoliday reports whether the local date of t is a holiday.
func (r *Rules) IsHoliday(t time.Time) bool {
	local := t.In(r.Location)
	return r.fixed[local.Format("2006-01-02")] || r.annually[local.Format("01-02")]
}

// Fits reports whether [start, end) lies on a single local working day,
// inside one working-hours interval, clear of the lunch break and not on a
// holiday.
func (r *Rules) Fits(start, end time.Time) bool {
	if !start.Before(end) {
		return false
	}
	ls, le := start.In(r.Location), end.In(r.Location)

	sy, sm, sd := ls.Date()
	startMin := ls.Hour()*60 + ls.Minute()
	endMin := le.Hour()*60 + le.Minute()

	ey, em, ed := le.Date()
	if ey != sy || em != sm || ed != sd {
		// Only an end at exactly the next local midnight stays on the same day.
		next := time.Date(sy, sm, sd+1, 0, 0, 0, 0, r.Location)
		if !le.Equal(next) {
			return false
		}
		endMin = 24 * 60
	} else if le.Second() != 0 || le.Nanosecond() != 0 {
		endMin++ // partial minutes round outwards
	}

	if r.IsHoliday(ls) {
		return false
	}
	slot := span{startMin, endMin}
	if r.lunch != nil && slot.overlaps(*r.lunch) {
		return false
	}
	for _, wh := range r.days[ls.Weekday()] {
		if startMin >= wh.start && endMin <= wh.end {
			return true
		}
	}
	return false
}

// OpenOn reports whether the clinic has any working hours on the local
// weekday of t.
func (r *Rules) OpenOn(t time.Time) bool {
	return len(r.days[t.In(r.Location).Weekday()]) > 0
}
