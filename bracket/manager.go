package bracket

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TheRealDxRed/backtesting/broker"
	"github.com/TheRealDxRed/backtesting/internal/id"
	"github.com/TheRealDxRed/backtesting/journal"
	"github.com/TheRealDxRed/backtesting/market"
	"github.com/TheRealDxRed/backtesting/signal"
)

// Manager drives the bracket state machine for one instrument. All calls
// happen on the engine's single event thread; events are applied exactly
// once, in arrival order, with duplicates dropped by event id.
type Manager struct {
	exec   broker.Execution
	ledger *journal.Ledger
	log    *zap.Logger

	symbol            string
	commissionPerUnit float64
	longOnly          bool

	session market.Session
	long    *Group
	short   *Group
	flatten *Leg
	pos     *Position

	legs map[string]*legRef
	seen map[string]struct{}
}

type legRef struct {
	leg   *Leg
	group *Group // nil for the flatten leg
}

type Option func(*Manager)

// WithCommission charges the given per-unit rate on each closed trade
// (applied round turn, entry and exit).
func WithCommission(perUnit float64) Option {
	return func(m *Manager) { m.commissionPerUnit = perUnit }
}

// WithLongOnly suppresses the short-side group, submitting a single-sided
// bracket per session.
func WithLongOnly() Option {
	return func(m *Manager) { m.longOnly = true }
}

func NewManager(exec broker.Execution, ledger *journal.Ledger, log *zap.Logger, symbol string, opts ...Option) *Manager {
	m := &Manager{
		exec:   exec,
		ledger: ledger,
		log:    log,
		symbol: symbol,
		legs:   make(map[string]*legRef),
		seen:   make(map[string]struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Position returns the current open position, or nil when flat.
func (m *Manager) Position() *Position { return m.pos }

// Outstanding reports whether any bracket leg of the current session is
// still working.
func (m *Manager) Outstanding() bool {
	return m.long.Outstanding() || m.short.Outstanding() ||
		(m.flatten != nil && !m.flatten.State.Terminal())
}

// StartSession resets per-session order state. Prior-session legs must all
// be terminal by now; CloseSession guarantees that.
func (m *Manager) StartSession(s market.Session) {
	m.session = s
	m.long = nil
	m.short = nil
	m.flatten = nil
}

// SubmitBrackets places both sides' bracket groups for the current session.
// It is a no-op when a position is open, a group is already outstanding, or
// qty is zero. A submit transport error is unrecoverable for the run.
func (m *Manager) SubmitBrackets(ctx context.Context, p signal.Pair, qty int) error {
	if qty <= 0 {
		m.log.Debug("zero quantity, no brackets submitted",
			zap.String("session", m.session.String()))
		return nil
	}
	if m.pos != nil {
		m.log.Debug("position open, no brackets submitted",
			zap.String("session", m.session.String()))
		return nil
	}
	if m.Outstanding() {
		m.log.Debug("brackets already outstanding",
			zap.String("session", m.session.String()))
		return nil
	}

	if err := validatePair(p); err != nil {
		return err
	}

	long := m.buildGroup(market.Long, p.Long, p.EntryType, qty)
	if err := m.submitGroup(ctx, long); err != nil {
		return fmt.Errorf("submit long bracket: %w", err)
	}
	m.long = long

	if !m.longOnly {
		short := m.buildGroup(market.Short, p.Short, p.EntryType, qty)
		if err := m.submitGroup(ctx, short); err != nil {
			return fmt.Errorf("submit short bracket: %w", err)
		}
		m.short = short
	}

	m.log.Info("brackets submitted",
		zap.String("session", m.session.String()),
		zap.Int("qty", qty),
		zap.Float64("long_entry", p.Long.Entry),
		zap.Float64("short_entry", p.Short.Entry),
		zap.Bool("long_only", m.longOnly))
	return nil
}

// validatePair enforces role/price consistency: for a long group
// stop < entry < target, mirrored for the short group.
func validatePair(p signal.Pair) error {
	if !(p.Long.Stop < p.Long.Entry && p.Long.Entry < p.Long.Target) {
		return fmt.Errorf("long bracket misordered: stop=%.5f entry=%.5f target=%.5f",
			p.Long.Stop, p.Long.Entry, p.Long.Target)
	}
	if !(p.Short.Target < p.Short.Entry && p.Short.Entry < p.Short.Stop) {
		return fmt.Errorf("short bracket misordered: target=%.5f entry=%.5f stop=%.5f",
			p.Short.Target, p.Short.Entry, p.Short.Stop)
	}
	return nil
}

func (m *Manager) buildGroup(side market.Side, lv signal.Levels, entryType broker.OrderType, qty int) *Group {
	in := qty * int(side)   // entry trades toward the side
	out := -qty * int(side) // stop/target trade away from it

	g := &Group{
		Side:    side,
		Session: m.session,
		Entry:   &Leg{ID: id.New(), Role: Entry, Units: in, Type: entryType, Price: lv.Entry},
		Stop:    &Leg{ID: id.New(), Role: StopLoss, Units: out, Type: broker.Stop, Price: lv.Stop},
		Take:    &Leg{ID: id.New(), Role: TakeProfit, Units: out, Type: broker.Limit, Price: lv.Target},
	}
	for _, l := range g.Legs() {
		m.legs[l.ID] = &legRef{leg: l, group: g}
	}
	return g
}

func (m *Manager) submitGroup(ctx context.Context, g *Group) error {
	specs := make([]broker.OrderSpec, 0, 3)
	for _, l := range g.Legs() {
		spec := broker.OrderSpec{
			LegID:      l.ID,
			Instrument: m.symbol,
			Units:      l.Units,
			Type:       l.Type,
			Price:      l.Price,
		}
		if l.Role != Entry {
			spec.ParentID = g.Entry.ID
		}
		specs = append(specs, spec)
	}
	if err := m.exec.Submit(ctx, specs); err != nil {
		return err
	}
	for _, l := range g.Legs() {
		l.State = Submitted
	}
	return nil
}

// Apply consumes one venue event. Duplicate event ids and events against
// already-terminal legs are dropped; a fill arriving for a leg the manager
// already canceled is logged as an anomaly, never re-applied.
func (m *Manager) Apply(ctx context.Context, ev broker.Event) error {
	if _, dup := m.seen[ev.ID]; dup {
		m.log.Debug("duplicate event dropped", zap.String("event", ev.ID))
		return nil
	}
	m.seen[ev.ID] = struct{}{}

	ref, ok := m.legs[ev.LegID]
	if !ok {
		m.log.Warn("event for unknown leg",
			zap.String("event", ev.ID), zap.String("leg", ev.LegID))
		return nil
	}
	leg := ref.leg

	if leg.State.Terminal() {
		if ev.Kind == broker.EventFill {
			m.log.Warn("late fill for terminal leg, ignored",
				zap.String("leg", leg.ID),
				zap.String("role", leg.Role.String()),
				zap.String("state", leg.State.String()))
		} else {
			m.log.Debug("ack for terminal leg",
				zap.String("leg", leg.ID), zap.String("kind", ev.Kind.String()))
		}
		return nil
	}

	switch ev.Kind {
	case broker.EventFill:
		return m.applyFill(ctx, ref, ev)

	case broker.EventCancelAck:
		leg.State = Canceled

	case broker.EventReject:
		leg.State = Rejected
		m.log.Warn("leg rejected",
			zap.String("leg", leg.ID),
			zap.String("role", leg.Role.String()),
			zap.String("reason", ev.Reason))

	case broker.EventMarginBlock:
		leg.State = MarginBlocked
		m.log.Warn("leg margin blocked",
			zap.String("leg", leg.ID),
			zap.String("role", leg.Role.String()))
	}
	return nil
}

func (m *Manager) applyFill(ctx context.Context, ref *legRef, ev broker.Event) error {
	leg := ref.leg
	leg.State = Filled

	switch leg.Role {
	case Entry:
		if m.pos != nil {
			m.log.Warn("entry fill while position open, ignored",
				zap.String("leg", leg.ID))
			return nil
		}
		g := ref.group
		units := ev.Units * int(g.Side)
		if units < 0 {
			units = -units
		}
		m.pos = &Position{
			Side:       g.Side,
			Units:      units,
			EntryPrice: ev.Price,
			OpenTime:   ev.Time,
		}
		m.log.Info("entry filled",
			zap.String("side", g.Side.String()),
			zap.Int("units", units),
			zap.Float64("price", ev.Price))

		// OCO: the opposing side dies the moment one entry fills.
		other := m.short
		if g.Side == market.Short {
			other = m.long
		}
		m.cancelGroup(ctx, other)

	case StopLoss:
		m.closePosition(ev, "StopLoss")
		m.cancelLeg(ctx, ref.group.Take)

	case TakeProfit:
		m.closePosition(ev, "TakeProfit")
		m.cancelLeg(ctx, ref.group.Stop)

	case Flatten:
		m.closePosition(ev, "EndOfDay")
	}
	return nil
}

func (m *Manager) closePosition(ev broker.Event, reason string) {
	if m.pos == nil {
		m.log.Warn("exit fill with no open position, ignored",
			zap.String("leg", ev.LegID), zap.String("reason", reason))
		return
	}
	p := m.pos
	m.pos = nil

	pnl := float64(p.Side) * (ev.Price - p.EntryPrice) * float64(p.Units)
	commission := float64(p.Units) * m.commissionPerUnit * 2

	m.ledger.Record(journal.Trade{
		ID:         id.New(),
		Symbol:     m.symbol,
		Side:       p.Side,
		Units:      p.Units,
		EntryPrice: p.EntryPrice,
		ExitPrice:  ev.Price,
		OpenTime:   p.OpenTime,
		CloseTime:  ev.Time,
		PnL:        pnl,
		Commission: commission,
		Reason:     reason,
	})

	m.log.Info("position closed",
		zap.String("side", p.Side.String()),
		zap.Int("units", p.Units),
		zap.Float64("exit", ev.Price),
		zap.Float64("pnl", pnl),
		zap.String("reason", reason))
}

// cancelGroup optimistically marks every working leg Canceled, then asks the
// venue. The later cancel-ack reconciles against the already-terminal state.
func (m *Manager) cancelGroup(ctx context.Context, g *Group) {
	if g == nil {
		return
	}
	for _, l := range g.Legs() {
		m.cancelLeg(ctx, l)
	}
}

func (m *Manager) cancelLeg(ctx context.Context, l *Leg) {
	if l == nil || l.State.Terminal() {
		return
	}
	l.State = Canceled
	if err := m.exec.Cancel(ctx, l.ID); err != nil {
		m.log.Warn("cancel request failed",
			zap.String("leg", l.ID), zap.Error(err))
	}
}

// CloseSession cancels every working leg of both groups and, if a position is
// still open, submits an immediate market order to flatten it. After the
// flatten fill is applied no position or working order survives the session.
func (m *Manager) CloseSession(ctx context.Context, now time.Time) error {
	m.cancelGroup(ctx, m.long)
	m.cancelGroup(ctx, m.short)

	if m.pos == nil {
		return nil
	}
	if m.flatten != nil && !m.flatten.State.Terminal() {
		return nil
	}

	units := -m.pos.Units * int(m.pos.Side)
	leg := &Leg{
		ID:    id.New(),
		Role:  Flatten,
		Units: units,
		Type:  broker.Market,
	}
	m.legs[leg.ID] = &legRef{leg: leg}

	if err := m.exec.Submit(ctx, []broker.OrderSpec{{
		LegID:      leg.ID,
		Instrument: m.symbol,
		Units:      units,
		Type:       broker.Market,
	}}); err != nil {
		return fmt.Errorf("submit session flatten: %w", err)
	}
	leg.State = Submitted
	m.flatten = leg

	m.log.Info("session flatten submitted",
		zap.String("session", m.session.String()),
		zap.Time("at", now),
		zap.Int("units", units))
	return nil
}
