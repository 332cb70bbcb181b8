// Package session classifies a strictly time-ordered bar stream into
// session-lifecycle events: a new trading day, the range-anchor moment, and
// the close-and-flatten moment. It holds no price data beyond the single
// anchor bar needed to hand off range capture.
package session

import (
	"github.com/TheRealDxRed/backtesting/market"
)

// State is the clock's position within the current session.
type State int

const (
	PreOpen State = iota
	AwaitingRange
	Trading
	Closed
)

func (s State) String() string {
	switch s {
	case PreOpen:
		return "pre-open"
	case AwaitingRange:
		return "awaiting-range"
	case Trading:
		return "trading"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Mode selects the anchor semantics.
type Mode int

const (
	// OpeningRange anchors on the first bar at or after the configured open
	// time; the range is drawn from that bar alone.
	OpeningRange Mode = iota
	// PriorDay anchors on the session open of each new calendar date; the
	// range is drawn from the previous completed day, never from the current
	// session's own bars.
	PriorDay
)

type EventKind int

const (
	NewSession EventKind = iota
	RangeAnchor
	SessionClose
)

func (k EventKind) String() string {
	switch k {
	case NewSession:
		return "new-session"
	case RangeAnchor:
		return "range-anchor"
	case SessionClose:
		return "session-close"
	}
	return "unknown"
}

// Event is emitted by Observe. NewSession fires exactly once per calendar
// date, RangeAnchor at most once per session, SessionClose at most once per
// session.
type Event struct {
	Kind    EventKind
	Session market.Session
	Anchor  market.Candle // the range-capture bar; set for RangeAnchor only
}

type Clock struct {
	mode  Mode
	open  market.TimeOfDay
	close market.TimeOfDay

	state       State
	session     market.Session
	haveSession bool
	anchored    bool
	closed      bool
}

func NewClock(mode Mode, open, close market.TimeOfDay) *Clock {
	return &Clock{
		mode:  mode,
		open:  open,
		close: close,
		state: PreOpen,
	}
}

func (c *Clock) State() State { return c.state }

// Session returns the session currently in effect. Only valid after the
// first Observe call.
func (c *Clock) Session() market.Session { return c.session }

// Observe classifies one bar and returns the lifecycle events it triggers,
// in order. Bars must arrive in strictly ascending time order.
func (c *Clock) Observe(bar market.Candle) []Event {
	var evs []Event

	if !c.haveSession || !c.session.SameDay(bar.Time) {
		// Data for a day can run out before its close bar (half days, feed
		// gaps). The outgoing session still ends before the new one starts.
		if c.haveSession && !c.closed {
			evs = append(evs, Event{Kind: SessionClose, Session: c.session})
		}
		c.session = market.NewSession(bar.Time, c.open, c.close)
		c.haveSession = true
		c.anchored = false
		c.closed = false
		c.state = PreOpen
		evs = append(evs, Event{Kind: NewSession, Session: c.session})
	}

	if c.closed {
		return evs
	}

	// Close takes precedence: a bar at or past the close never opens ranges.
	if !bar.Time.Before(c.session.Close) {
		c.closed = true
		c.state = Closed
		evs = append(evs, Event{Kind: SessionClose, Session: c.session})
		return evs
	}

	if !c.anchored {
		if bar.Time.Before(c.session.Open) {
			c.state = PreOpen
			return evs
		}
		// First bar at or after the open anchors the session. For
		// OpeningRange the bar itself is the range source; for PriorDay the
		// anchor only marks the moment levels become actionable.
		c.state = AwaitingRange
		c.anchored = true
		evs = append(evs, Event{Kind: RangeAnchor, Session: c.session, Anchor: bar})
		c.state = Trading
		return evs
	}

	c.state = Trading
	return evs
}
