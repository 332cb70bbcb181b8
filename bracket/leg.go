// Package bracket owns the order/position lifecycle: paired entry/stop/target
// legs per side, manual one-cancels-other between the sides, and end-of-day
// flattening. It is the only writer of leg, group, and position state.
package bracket

import (
	"time"

	"github.com/TheRealDxRed/backtesting/broker"
	"github.com/TheRealDxRed/backtesting/market"
)

// LegState is the per-leg lifecycle. Filled, Canceled, Rejected and
// MarginBlocked are terminal; a terminal leg never changes state again.
type LegState int

const (
	Pending LegState = iota
	Submitted
	Filled
	Canceled
	Rejected
	MarginBlocked
)

func (s LegState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Submitted:
		return "submitted"
	case Filled:
		return "filled"
	case Canceled:
		return "canceled"
	case Rejected:
		return "rejected"
	case MarginBlocked:
		return "margin-blocked"
	}
	return "unknown"
}

func (s LegState) Terminal() bool {
	switch s {
	case Filled, Canceled, Rejected, MarginBlocked:
		return true
	}
	return false
}

type Role int

const (
	Entry Role = iota
	StopLoss
	TakeProfit
	Flatten // end-of-session market close, not part of a group
)

func (r Role) String() string {
	switch r {
	case Entry:
		return "entry"
	case StopLoss:
		return "stop-loss"
	case TakeProfit:
		return "take-profit"
	case Flatten:
		return "flatten"
	}
	return "unknown"
}

// Leg is one order of a bracket group. Units are signed as submitted to the
// venue: the entry leg trades toward the group side, stop and target legs
// trade away from it.
type Leg struct {
	ID    string
	Role  Role
	Units int
	Type  broker.OrderType
	Price float64
	State LegState
}

// Group is one side's bracket: entry plus attached stop and target. At most
// one group per side is outstanding per session.
type Group struct {
	Side    market.Side
	Session market.Session
	Entry   *Leg
	Stop    *Leg
	Take    *Leg
}

func (g *Group) Legs() []*Leg {
	return []*Leg{g.Entry, g.Stop, g.Take}
}

// Outstanding reports whether any leg is still working.
func (g *Group) Outstanding() bool {
	if g == nil {
		return false
	}
	for _, l := range g.Legs() {
		if !l.State.Terminal() {
			return true
		}
	}
	return false
}

// Position is the single open position the manager allows per instrument.
// Units are always positive; direction lives in Side.
type Position struct {
	Side       market.Side
	Units      int
	EntryPrice float64
	OpenTime   time.Time
}
