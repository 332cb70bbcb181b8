// Package backtest replays a candle feed through the signal-to-bracket
// pipeline against the simulated exchange. The run advances strictly in bar
// order on one goroutine; venue acknowledgments are drained and applied
// through a single serialized queue after every bar.
package backtest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/TheRealDxRed/backtesting/bracket"
	"github.com/TheRealDxRed/backtesting/broker/sim"
	"github.com/TheRealDxRed/backtesting/feed"
	"github.com/TheRealDxRed/backtesting/journal"
	"github.com/TheRealDxRed/backtesting/market"
	"github.com/TheRealDxRed/backtesting/ranges"
	"github.com/TheRealDxRed/backtesting/risk"
	"github.com/TheRealDxRed/backtesting/session"
	"github.com/TheRealDxRed/backtesting/signal"
)

// maxFeedErrors bounds consecutive bad rows before the run is abandoned
// rather than spinning on a dead feed.
const maxFeedErrors = 100

type Config struct {
	Symbol    string
	Mode      session.Mode
	Open      market.TimeOfDay
	Close     market.TimeOfDay
	Generator signal.Generator

	InitialBalance float64
	RiskFraction   float64
	Commission     float64 // per unit, charged round turn

	// LongOnly submits only the long bracket; FixedUnits overrides
	// risk-based sizing when non-zero.
	LongOnly   bool
	FixedUnits int
}

type Runner struct {
	cfg    Config
	feed   feed.Feed
	log    *zap.Logger
	exch   *sim.Exchange
	ledger *journal.Ledger
	mgr    *bracket.Manager
	clock  *session.Clock
	daily  *ranges.DailyAggregator

	skipSession bool
}

func NewRunner(cfg Config, fd feed.Feed, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}

	exch := sim.NewExchange(cfg.InitialBalance)
	ledger := journal.NewLedger()

	opts := []bracket.Option{bracket.WithCommission(cfg.Commission)}
	if cfg.LongOnly {
		opts = append(opts, bracket.WithLongOnly())
	}

	return &Runner{
		cfg:    cfg,
		feed:   fd,
		log:    log,
		exch:   exch,
		ledger: ledger,
		mgr:    bracket.NewManager(exch, ledger, log, cfg.Symbol, opts...),
		clock:  session.NewClock(cfg.Mode, cfg.Open, cfg.Close),
		daily:  ranges.NewDailyAggregator(),
	}
}

func (r *Runner) Ledger() *journal.Ledger { return r.ledger }

// Exchange exposes the simulated venue, mainly for tests that inject
// rejects or inspect balances.
func (r *Runner) Exchange() *sim.Exchange { return r.exch }

// Run replays the feed to exhaustion. Context cancellation stops new
// sessions, flattens any open position, and returns cleanly; only transport
// failures and internal invariant violations are fatal.
func (r *Runner) Run(ctx context.Context) error {
	defer r.feed.Close()

	var last market.Candle
	var have bool
	feedErrs := 0

loop:
	for {
		select {
		case <-ctx.Done():
			r.log.Info("shutdown requested, closing out")
			break loop
		default:
		}

		c, ok, err := r.feed.Next()
		if err != nil {
			feedErrs++
			if feedErrs >= maxFeedErrors {
				return fmt.Errorf("feed failing persistently: %w", err)
			}
			r.log.Warn("feed error, skipping session", zap.Error(err))
			r.skipSession = true
			continue
		}
		feedErrs = 0
		if !ok {
			break
		}
		last, have = c, true

		if err := r.step(ctx, c); err != nil {
			return err
		}
	}

	// The stream may end mid-session; nothing survives past its day.
	if have {
		if err := r.mgr.CloseSession(ctx, last.Time); err != nil {
			return err
		}
		if err := r.drain(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) step(ctx context.Context, c market.Candle) error {
	r.daily.Add(c)
	r.exch.MarkTime(c.Time)

	for _, ev := range r.clock.Observe(c) {
		switch ev.Kind {
		case session.NewSession:
			r.skipSession = false
			r.mgr.StartSession(ev.Session)
			r.log.Debug("new session", zap.String("session", ev.Session.String()))

		case session.RangeAnchor:
			if r.skipSession {
				r.log.Info("session marked bad, no signal",
					zap.String("session", ev.Session.String()))
				continue
			}
			if err := r.onAnchor(ctx, ev); err != nil {
				return err
			}

		case session.SessionClose:
			// The flatten belongs to the outgoing session even when its
			// close is only noticed on the next day's first bar.
			r.exch.MarkTime(ev.Session.Close)
			if err := r.mgr.CloseSession(ctx, ev.Session.Close); err != nil {
				return err
			}
			if err := r.drain(ctx); err != nil {
				return err
			}
			r.exch.MarkTime(c.Time)
		}
	}

	r.exch.MarkBar(c)
	if err := r.drain(ctx); err != nil {
		return err
	}

	r.exch.SetBalance(r.cfg.InitialBalance + r.ledger.NetPnL())
	return nil
}

func (r *Runner) onAnchor(ctx context.Context, ev session.Event) error {
	var lv ranges.Levels
	var err error

	switch r.cfg.Mode {
	case session.OpeningRange:
		lv, err = ranges.FromAnchorBar(ev.Anchor, ev.Session)
	case session.PriorDay:
		lv, err = ranges.FromPriorDay(r.daily.Completed(), ev.Session)
	default:
		return fmt.Errorf("unknown session mode %d", r.cfg.Mode)
	}
	if err != nil {
		if errors.Is(err, ranges.ErrUnavailable) {
			r.log.Info("range unavailable, skipping session",
				zap.String("session", ev.Session.String()))
			return nil
		}
		r.log.Warn("range computation failed, skipping session",
			zap.String("session", ev.Session.String()), zap.Error(err))
		return nil
	}

	pair, err := r.cfg.Generator.Derive(lv)
	if err != nil {
		if errors.Is(err, signal.ErrDegenerateRange) {
			r.log.Info("degenerate range, skipping session",
				zap.String("session", ev.Session.String()))
			return nil
		}
		return err
	}

	qty := r.cfg.FixedUnits
	if qty == 0 {
		equity, err := r.exch.AccountValue(ctx)
		if err != nil {
			return fmt.Errorf("account value: %w", err)
		}
		qty, err = risk.Size(equity, r.cfg.RiskFraction, pair.Long.Entry-pair.Long.Stop)
		if err != nil {
			r.log.Warn("sizing failed, skipping session",
				zap.String("session", ev.Session.String()), zap.Error(err))
			return nil
		}
	}
	if qty == 0 {
		r.log.Debug("sized to zero units, no brackets",
			zap.String("session", ev.Session.String()))
		return nil
	}

	r.log.Debug("signal derived",
		zap.String("strategy", r.cfg.Generator.Name()),
		zap.Float64("range_high", lv.High),
		zap.Float64("range_low", lv.Low),
		zap.Float64("rr_long", risk.RR(pair.Long.Entry, pair.Long.Stop, pair.Long.Target)),
		zap.Int("qty", qty))

	return r.mgr.SubmitBrackets(ctx, pair, qty)
}

func (r *Runner) drain(ctx context.Context) error {
	for {
		evs := r.exch.TakeEvents()
		if len(evs) == 0 {
			return nil
		}
		for _, ev := range evs {
			if err := r.mgr.Apply(ctx, ev); err != nil {
				return err
			}
		}
	}
}
