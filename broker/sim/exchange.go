// Package sim is a deterministic in-process execution venue. Orders carry
// day validity, fills are derived from bar extremes with gap-through-open
// handling, and every acknowledgment is queued as an event so the engine can
// apply it through its serialized queue exactly like a live feed.
package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TheRealDxRed/backtesting/broker"
	"github.com/TheRealDxRed/backtesting/market"
)

type workingOrder struct {
	spec     broker.OrderSpec
	day      time.Time // calendar date of the first bar the order worked against
	filled   bool
	canceled bool
}

func (o *workingOrder) done() bool {
	return o.filled || o.canceled
}

// Exchange simulates the venue for one instrument. Not goroutine safe; the
// engine owns it from a single thread.
type Exchange struct {
	balance float64

	orders map[string]*workingOrder
	seq    []string // submission order, for deterministic trigger evaluation

	pending  []broker.Event
	lastBar  market.Candle
	haveBar  bool
	clock    time.Time
	rejected map[string]string // leg id -> reason, test hook for forced rejects
	margin   map[string]bool   // leg id -> forced margin block
}

func NewExchange(balance float64) *Exchange {
	return &Exchange{
		balance:  balance,
		orders:   make(map[string]*workingOrder),
		rejected: make(map[string]string),
		margin:   make(map[string]bool),
	}
}

// Balance returns current account balance.
func (x *Exchange) Balance() float64 { return x.balance }

// SetBalance overwrites the account balance; the engine credits realized PnL
// after each event drain.
func (x *Exchange) SetBalance(v float64) { x.balance = v }

func (x *Exchange) AccountValue(ctx context.Context) (float64, error) {
	return x.balance, nil
}

// MarkTime advances the venue clock without evaluating a bar. Fills booked at
// submission (market orders) are stamped with the current clock, so the engine
// sets it to the moment that triggered the submission.
func (x *Exchange) MarkTime(t time.Time) { x.clock = t }

// ForceReject makes the next submit of the given leg id come back rejected.
func (x *Exchange) ForceReject(legID, reason string) {
	x.rejected[legID] = reason
}

// ForceMarginBlock makes the next submit of the given leg id come back
// margin blocked.
func (x *Exchange) ForceMarginBlock(legID string) {
	x.margin[legID] = true
}

// Submit registers orders. Market orders fill immediately at the last seen
// close; limit and stop orders start working against subsequent bars.
func (x *Exchange) Submit(ctx context.Context, specs []broker.OrderSpec) error {
	for _, spec := range specs {
		if spec.LegID == "" {
			return fmt.Errorf("sim: order without leg id")
		}
		if _, exists := x.orders[spec.LegID]; exists {
			return fmt.Errorf("sim: duplicate leg id %s", spec.LegID)
		}

		if reason, ok := x.rejected[spec.LegID]; ok {
			delete(x.rejected, spec.LegID)
			x.push(broker.Event{
				LegID:  spec.LegID,
				Kind:   broker.EventReject,
				Time:   x.now(),
				Reason: reason,
			})
			continue
		}
		if x.margin[spec.LegID] {
			delete(x.margin, spec.LegID)
			x.push(broker.Event{
				LegID:  spec.LegID,
				Kind:   broker.EventMarginBlock,
				Time:   x.now(),
				Reason: "insufficient margin",
			})
			continue
		}

		// Day validity is stamped at the first MarkBar; orders are often
		// submitted mid-step before the current bar reaches the venue.
		o := &workingOrder{spec: spec}
		x.orders[spec.LegID] = o
		x.seq = append(x.seq, spec.LegID)

		if spec.Type == broker.Market {
			if !x.haveBar {
				o.canceled = true
				x.push(broker.Event{
					LegID:  spec.LegID,
					Kind:   broker.EventReject,
					Time:   x.now(),
					Reason: "no market price",
				})
				continue
			}
			o.filled = true
			x.push(broker.Event{
				LegID: spec.LegID,
				Kind:  broker.EventFill,
				Price: x.lastBar.Close,
				Units: spec.Units,
				Time:  x.now(),
			})
		}
	}
	return nil
}

func (x *Exchange) Cancel(ctx context.Context, legID string) error {
	o, ok := x.orders[legID]
	if !ok || o.done() {
		// Canceling unknown or terminal orders is a no-op.
		return nil
	}
	o.canceled = true
	x.push(broker.Event{
		LegID:  legID,
		Kind:   broker.EventCancelAck,
		Time:   x.now(),
		Reason: "canceled",
	})
	return nil
}

// MarkBar advances the venue one bar: day-validity expiry first, then
// limit/stop triggers in submission order. Contingent legs stay dormant until
// their parent fills, and at most one trigger fill is booked per bar; the
// intra-bar order of touches is unknowable, so the earliest-submitted working
// order wins. Acknowledgments accumulate until TakeEvents drains them.
func (x *Exchange) MarkBar(c market.Candle) {
	x.lastBar = c
	x.haveBar = true
	x.clock = c.Time
	today := dateOf(c.Time)

	filledThisBar := false
	for _, legID := range x.seq {
		o := x.orders[legID]
		if o.done() {
			continue
		}

		if o.day.IsZero() {
			o.day = today
		}
		if !o.day.Equal(today) {
			o.canceled = true
			x.push(broker.Event{
				LegID:  legID,
				Kind:   broker.EventCancelAck,
				Time:   c.Time,
				Reason: "day validity expired",
			})
			continue
		}

		if filledThisBar {
			continue
		}
		if o.spec.ParentID != "" {
			parent, ok := x.orders[o.spec.ParentID]
			if !ok || !parent.filled {
				continue
			}
		}

		price, hit := fillPrice(o.spec, c)
		if !hit {
			continue
		}
		o.filled = true
		filledThisBar = true
		x.push(broker.Event{
			LegID: legID,
			Kind:  broker.EventFill,
			Price: price,
			Units: o.spec.Units,
			Time:  c.Time,
		})
	}
}

// TakeEvents drains and returns queued acknowledgments in order. Applying
// them may enqueue more (cancel-acks, flatten fills); the engine loops until
// the queue is empty.
func (x *Exchange) TakeEvents() []broker.Event {
	evs := x.pending
	x.pending = nil
	return evs
}

func (x *Exchange) push(ev broker.Event) {
	ev.ID = uuid.New().String()
	x.pending = append(x.pending, ev)
}

func (x *Exchange) now() time.Time {
	if !x.clock.IsZero() {
		return x.clock
	}
	if x.haveBar {
		return x.lastBar.Time
	}
	return time.Time{}
}

// fillPrice models intra-bar execution. A limit fills when the bar trades
// through it, a stop when the bar trades up (buy) or down (sell) to it; a bar
// that opens beyond the level fills at the open (gap).
func fillPrice(spec broker.OrderSpec, c market.Candle) (float64, bool) {
	buy := spec.Units > 0

	switch spec.Type {
	case broker.Limit:
		if buy {
			if c.Low <= spec.Price {
				if c.Open <= spec.Price {
					return c.Open, true
				}
				return spec.Price, true
			}
		} else {
			if c.High >= spec.Price {
				if c.Open >= spec.Price {
					return c.Open, true
				}
				return spec.Price, true
			}
		}

	case broker.Stop:
		if buy {
			if c.High >= spec.Price {
				if c.Open >= spec.Price {
					return c.Open, true
				}
				return spec.Price, true
			}
		} else {
			if c.Low <= spec.Price {
				if c.Open <= spec.Price {
					return c.Open, true
				}
				return spec.Price, true
			}
		}
	}
	return 0, false
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
