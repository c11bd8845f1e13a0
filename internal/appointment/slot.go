package appointment

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	WorkdayStartHour = 9
	WorkdayEndHour   = 16

	DefaultScheduleDays = 7
	MaxScheduleDays     = 31

	DateLayout = "2006-01-02"
)

// Period is a one-hour slot inside the working day.
type Period struct {
	Start int
	End   int
}

func (p Period) String() string {
	return fmt.Sprintf("%d-%d", p.Start, p.End)
}

// Periods returns the canonical periods in day order: "9-10" through "15-16".
func Periods() []string {
	out := make([]string, 0, WorkdayEndHour-WorkdayStartHour)
	for h := WorkdayStartHour; h < WorkdayEndHour; h++ {
		out = append(out, Period{Start: h, End: h + 1}.String())
	}
	return out
}

func ParsePeriod(s string) (Period, error) {
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return Period{}, fmt.Errorf("period %q must look like 9-10", s)
	}
	a, err := parseHour(start)
	if err != nil {
		return Period{}, fmt.Errorf("period %q: %w", s, err)
	}
	b, err := parseHour(end)
	if err != nil {
		return Period{}, fmt.Errorf("period %q: %w", s, err)
	}
	if b != a+1 {
		return Period{}, fmt.Errorf("period %q must span exactly one hour", s)
	}
	if a < WorkdayStartHour || b > WorkdayEndHour {
		return Period{}, fmt.Errorf("period %q is outside working hours", s)
	}
	p := Period{Start: a, End: b}
	if p.String() != s {
		return Period{}, fmt.Errorf("period %q must be written as %s", s, p)
	}
	return p, nil
}

func PeriodValid(s string) bool {
	_, err := ParsePeriod(s)
	return err == nil
}

// parseHour accepts plain decimal digits only; signs and spaces are rejected.
func parseHour(s string) (int, error) {
	if s == "" || len(s) > 2 {
		return 0, fmt.Errorf("hour %q is not a number", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("hour %q is not a number", s)
		}
	}
	return strconv.Atoi(s)
}

// periodIndex orders periods by their start hour. Unknown periods sort last.
func periodIndex(s string) int {
	p, err := ParsePeriod(s)
	if err != nil {
		return WorkdayEndHour
	}
	return p.Start - WorkdayStartHour
}

func WorkingTime() string {
	return fmt.Sprintf("from %d:00 to %d:00", WorkdayStartHour, WorkdayEndHour)
}

// Slot is a (date, period) cell of a doctor's calendar.
type Slot struct {
	Date   time.Time
	Period string
}

// Key identifies the slot for one doctor, e.g. for a lock name.
func (s Slot) Key(doctorID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", doctorID, s.Date.Format(DateLayout), s.Period)
}

// DayOf returns the calendar day t falls on in loc, as midnight UTC.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// ScheduleWindow returns the days after today up to and including today+days.
func ScheduleWindow(today time.Time, days int) []time.Time {
	y, m, d := today.Date()
	out := make([]time.Time, 0, days)
	for i := 1; i <= days; i++ {
		out = append(out, time.Date(y, m, d+i, 0, 0, 0, 0, time.UTC))
	}
	return out
}
