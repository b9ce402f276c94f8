package marketdata

import (
	"time"
)

// Calendar knows NYSE full-day holidays and regular trading hours
type Calendar struct {
	loc *time.Location
}

// NewCalendar creates a calendar in the exchange time zone
func NewCalendar(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{loc: loc}
}

// LoadCalendar creates a calendar for the named zone, e.g. America/New_York
func LoadCalendar(zone string) (*Calendar, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, err
	}
	return NewCalendar(loc), nil
}

// Location returns the exchange time zone
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsSession reports whether the exchange trades on the calendar day of t
func (c *Calendar) IsSession(t time.Time) bool {
	d := dateOf(t)
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}
	_, holiday := holidays(d.Year())[d]
	return !holiday
}

// Sessions returns the trading days from start to end inclusive
func (c *Calendar) Sessions(start, end time.Time) []time.Time {
	var out []time.Time
	for d := dateOf(start); !d.After(dateOf(end)); d = d.AddDate(0, 0, 1) {
		if c.IsSession(d) {
			out = append(out, d)
		}
	}
	return out
}

// IsOpen reports whether regular trading hours are in progress at t
func (c *Calendar) IsOpen(t time.Time) bool {
	local := t.In(c.loc)
	if !c.IsSession(local) {
		return false
	}
	open := time.Date(local.Year(), local.Month(), local.Day(), 9, 30, 0, 0, c.loc)
	closing := time.Date(local.Year(), local.Month(), local.Day(), 16, 0, 0, 0, c.loc)
	return !local.Before(open) && local.Before(closing)
}

// dateOf strips the clock, keeping the calendar day of t in its own zone
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func holidays(year int) map[time.Time]struct{} {
	days := []time.Time{
		newYears(year),
		nthWeekday(year, time.January, time.Monday, 3),
		nthWeekday(year, time.February, time.Monday, 3),
		easter(year).AddDate(0, 0, -2),
		lastWeekday(year, time.May, time.Monday),
		observed(dateOf(time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC))),
		nthWeekday(year, time.September, time.Monday, 1),
		nthWeekday(year, time.November, time.Thursday, 4),
		observed(dateOf(time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC))),
	}
	if year >= 2022 {
		days = append(days, observed(dateOf(time.Date(year, time.June, 19, 0, 0, 0, 0, time.UTC))))
	}

	out := make(map[time.Time]struct{}, len(days))
	for _, d := range days {
		if !d.IsZero() {
			out[d] = struct{}{}
		}
	}
	return out
}

// newYears is not moved back into December when it falls on a Saturday
func newYears(year int) time.Time {
	d := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	switch d.Weekday() {
	case time.Saturday:
		return time.Time{}
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != wd {
		d = d.AddDate(0, 0, 1)
	}
	return d.AddDate(0, 0, 7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	d := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	for d.Weekday() != wd {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// easter returns Easter Sunday (anonymous Gregorian algorithm)
func easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
