// Package datekey converts instants to calendar-day keys and does day arithmetic on them.
//
// Keys carry no time-of-day, so day differences are computed on UTC midnights and are
// never skewed by DST transitions in the configured zone.
package datekey

import (
	"fmt"
	"time"
)

// Layout is the canonical key format.
const Layout = "2006-01-02"

// Key is a calendar day in YYYY-MM-DD form.
type Key string

// FromTime returns the calendar day t falls on in loc.
func FromTime(t time.Time, loc *time.Location) Key {
	if loc == nil {
		loc = time.UTC
	}
	return Key(t.In(loc).Format(Layout))
}

// Parse validates s and returns it as a Key.
func Parse(s string) (Key, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return "", fmt.Errorf("parse date key %q: %w", s, err)
	}
	return Key(t.Format(Layout)), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Key {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

// Date returns the key as midnight UTC. Invalid keys yield the zero time.
func (k Key) Date() time.Time {
	t, err := time.Parse(Layout, string(k))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Valid reports whether k is a well-formed key.
func (k Key) Valid() bool {
	_, err := Parse(string(k))
	return err == nil
}

// AddDays returns the key n calendar days after k (n may be negative).
func (k Key) AddDays(n int) Key {
	return Key(k.Date().AddDate(0, 0, n).Format(Layout))
}

func (k Key) String() string { return string(k) }

// DayDiff returns the number of whole calendar days from a to b, positive when b is after a.
func DayDiff(a, b Key) int {
	return int(dayNumber(b) - dayNumber(a))
}

// dayNumber counts days since the Unix epoch. Keys are UTC midnights, so the
// division is exact; time.Duration would overflow past about 292 years.
func dayNumber(k Key) int64 {
	return k.Date().Unix() / secondsPerDay
}

const secondsPerDay = 24 * 60 * 60

// Clock resolves "today" in a single fixed location.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock returns a Clock for loc using the wall clock.
func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc, now: time.Now}
}

// NewFixedClock returns a Clock frozen at t, for tests.
func NewFixedClock(t time.Time, loc *time.Location) *Clock {
	c := NewClock(loc)
	c.now = func() time.Time { return t }
	return c
}

// LoadLocation resolves an IANA name; "" and "Local" map to the process zone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

func (c *Clock) Location() *time.Location { return c.loc }

// Now returns the current instant in the clock's location.
func (c *Clock) Now() time.Time { return c.now().In(c.loc) }

// Today returns the current calendar day.
func (c *Clock) Today() Key { return FromTime(c.now(), c.loc) }
