package services

import (
	"log"
	"os"
	"time"
)

// DateKeyLayout is the canonical key format for calendar days ("2006-01-02").
// ISO dates compare correctly as strings, which the watermark logic relies on.
const DateKeyLayout = "2006-01-02"

// Calendar converts wall-clock time to date keys and week keys in one fixed
// reference timezone, so every session agrees on what "today" and "this week"
// mean regardless of the device's local zone. Weeks start Monday 00:00
// reference time.
type Calendar struct {
	loc *time.Location
	now func() time.Time // test hook
}

// NewCalendar loads the reference timezone from REFERENCE_TIMEZONE
// (default America/Sao_Paulo, the app's home market).
func NewCalendar() *Calendar {
	tz := os.Getenv("REFERENCE_TIMEZONE")
	if tz == "" {
		tz = "America/Sao_Paulo"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Fatalf("invalid REFERENCE_TIMEZONE %q: %v", tz, err)
	}
	return &Calendar{loc: loc, now: time.Now}
}

// NewCalendarAt returns a calendar pinned to a fixed instant (tests).
func NewCalendarAt(loc *time.Location, at time.Time) *Calendar {
	return &Calendar{loc: loc, now: func() time.Time { return at }}
}

// SetNow replaces the clock source. Used by tests to move time forward.
func (c *Calendar) SetNow(now func() time.Time) { c.now = now }

// Today returns the current date key in the reference timezone.
func (c *Calendar) Today() string {
	return c.now().In(c.loc).Format(DateKeyLayout)
}

// DayIndex maps a date key to its weekday index, 0 = Monday … 6 = Sunday.
func (c *Calendar) DayIndex(dateKey string) int {
	t := c.parse(dateKey)
	return (int(t.Weekday()) + 6) % 7
}

// WeekStart returns the date key of the Monday of dateKey's week.
func (c *Calendar) WeekStart(dateKey string) string {
	t := c.parse(dateKey)
	return t.AddDate(0, 0, -((int(t.Weekday()) + 6) % 7)).Format(DateKeyLayout)
}

// NextWeekStart returns the Monday after dateKey's week.
func (c *Calendar) NextWeekStart(dateKey string) string {
	return c.AddDays(c.WeekStart(dateKey), 7)
}

// AddDays shifts a date key by n calendar days.
func (c *Calendar) AddDays(dateKey string, n int) string {
	return c.parse(dateKey).AddDate(0, 0, n).Format(DateKeyLayout)
}

// ValidDateKey reports whether s is a well-formed date key.
func (c *Calendar) ValidDateKey(s string) bool {
	_, err := time.ParseInLocation(DateKeyLayout, s, c.loc)
	return err == nil
}

func (c *Calendar) parse(dateKey string) time.Time {
	t, err := time.ParseInLocation(DateKeyLayout, dateKey, c.loc)
	if err != nil {
		// Date keys are produced by this package or validated at the API
		// boundary, so a parse failure is a programming error.
		log.Printf("calendar: malformed date key %q", dateKey)
		return time.Unix(0, 0).In(c.loc)
	}
	return t
}
