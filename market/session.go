package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock anchor within a session, e.g. the 09:30 cash open.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("bad time of day %q (want HH:MM)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("bad hour in %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("bad minute in %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// At pins the time of day onto t's calendar date and location.
func (d TimeOfDay) At(t time.Time) time.Time {
	y, m, day := t.Date()
	return time.Date(y, m, day, d.Hour, d.Minute, 0, 0, t.Location())
}

func (d TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", d.Hour, d.Minute)
}

// Session is one trading day, derived from a bar timestamp's local calendar
// date plus the configured open and close anchors.
type Session struct {
	Date  time.Time // midnight, session-local
	Open  time.Time
	Close time.Time
}

// NewSession builds the session covering t's calendar date.
func NewSession(t time.Time, open, close TimeOfDay) Session {
	y, m, d := t.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return Session{
		Date:  date,
		Open:  open.At(date),
		Close: close.At(date),
	}
}

// SameDay reports whether t falls on this session's calendar date.
func (s Session) SameDay(t time.Time) bool {
	y1, m1, d1 := s.Date.Date()
	y2, m2, d2 := t.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func (s Session) String() string {
	return s.Date.Format("2006-01-02")
}
