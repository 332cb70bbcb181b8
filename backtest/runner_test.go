package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheRealDxRed/backtesting/feed"
	"github.com/TheRealDxRed/backtesting/journal"
	"github.com/TheRealDxRed/backtesting/market"
	"github.com/TheRealDxRed/backtesting/session"
	"github.com/TheRealDxRed/backtesting/signal"
)

func mkbar(t *testing.T, ts string, o, h, l, c float64) market.Candle {
	t.Helper()
	tm, err := time.Parse("2006-01-02 15:04", ts)
	require.NoError(t, err)
	return market.Candle{Time: tm, Open: o, High: h, Low: l, Close: c}
}

func breakoutConfig() Config {
	return Config{
		Symbol:         "US30_USD",
		Mode:           session.OpeningRange,
		Open:           market.TimeOfDay{Hour: 9, Minute: 30},
		Close:          market.TimeOfDay{Hour: 16, Minute: 0},
		Generator:      signal.Breakout{Offset: 5, R: 1.5},
		InitialBalance: 100000,
		RiskFraction:   0.01,
	}
}

func TestRunBreakoutTakeProfit(t *testing.T) {
	t.Parallel()

	// Anchor range 100/95 gives a long bracket of 105/100/112.5; the third
	// bar trades through the target.
	bars := []market.Candle{
		mkbar(t, "2026-03-02 09:30", 97, 100, 95, 98),
		mkbar(t, "2026-03-02 09:31", 98, 106, 97, 105),
		mkbar(t, "2026-03-02 09:32", 105, 113, 104, 112),
		mkbar(t, "2026-03-02 16:00", 112, 112, 112, 112),
	}

	r := NewRunner(breakoutConfig(), feed.NewSlice(bars), nil)
	require.NoError(t, r.Run(context.Background()))

	trades := r.Ledger().All()
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, market.Long, tr.Side)
	assert.Equal(t, 200, tr.Units) // 100000 * 0.01 / 5-point stop
	assert.InDelta(t, 105.0, tr.EntryPrice, 1e-9)
	assert.InDelta(t, 112.5, tr.ExitPrice, 1e-9)
	assert.InDelta(t, 1500.0, tr.PnL, 1e-9)
	assert.Equal(t, "TakeProfit", tr.Reason)

	assert.InDelta(t, 101500.0, r.Exchange().Balance(), 1e-9)
}

func TestRunBreakoutEndOfDayFlatten(t *testing.T) {
	t.Parallel()

	// Entry fills but neither exit level trades; the close bar must flatten
	// at the last seen close.
	cfg := breakoutConfig()
	cfg.FixedUnits = 2

	bars := []market.Candle{
		mkbar(t, "2026-03-02 09:30", 97, 100, 95, 98),
		mkbar(t, "2026-03-02 09:31", 98, 106, 97, 105),
		mkbar(t, "2026-03-02 12:00", 105, 106, 103, 104),
		mkbar(t, "2026-03-02 16:00", 104, 104, 104, 104),
	}

	r := NewRunner(cfg, feed.NewSlice(bars), nil)
	require.NoError(t, r.Run(context.Background()))

	trades := r.Ledger().All()
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, "EndOfDay", tr.Reason)
	assert.Equal(t, 2, tr.Units)
	assert.InDelta(t, 104.0, tr.ExitPrice, 1e-9)
	assert.InDelta(t, -2.0, tr.PnL, 1e-9)
}

func TestRunFlattensBeforeNextSession(t *testing.T) {
	t.Parallel()

	// Day one's data stops before its close bar. The open position must
	// still flatten against day one, and day two's brackets must submit.
	cfg := breakoutConfig()
	cfg.FixedUnits = 2

	bars := []market.Candle{
		mkbar(t, "2026-03-02 09:30", 97, 100, 95, 98),
		mkbar(t, "2026-03-02 09:31", 98, 106, 97, 105),
		mkbar(t, "2026-03-02 12:00", 105, 106, 103, 104),

		// Range 107/103 gives a long bracket of 112/108/118.
		mkbar(t, "2026-03-03 09:30", 104, 107, 103, 106),
		mkbar(t, "2026-03-03 09:31", 106, 113, 105, 112.5),
		mkbar(t, "2026-03-03 09:32", 112, 119, 111, 118),
		mkbar(t, "2026-03-03 16:00", 118, 118, 118, 118),
	}

	r := NewRunner(cfg, feed.NewSlice(bars), nil)
	require.NoError(t, r.Run(context.Background()))

	trades := r.Ledger().All()
	require.Len(t, trades, 2)

	first := trades[0]
	assert.Equal(t, "EndOfDay", first.Reason)
	assert.InDelta(t, 104.0, first.ExitPrice, 1e-9)
	assert.InDelta(t, -2.0, first.PnL, 1e-9)
	assert.Equal(t, "2026-03-02 16:00", first.CloseTime.Format("2006-01-02 15:04"))

	second := trades[1]
	assert.Equal(t, "TakeProfit", second.Reason)
	assert.InDelta(t, 112.0, second.EntryPrice, 1e-9)
	assert.InDelta(t, 118.0, second.ExitPrice, 1e-9)
	assert.InDelta(t, 12.0, second.PnL, 1e-9)
}

func TestRunBreakoutShortSide(t *testing.T) {
	t.Parallel()

	// Price collapses through the short entry at 90, then to its target 82.5.
	cfg := breakoutConfig()
	cfg.FixedUnits = 1

	bars := []market.Candle{
		mkbar(t, "2026-03-02 09:30", 97, 100, 95, 96),
		mkbar(t, "2026-03-02 09:31", 95, 95, 89, 89.5),
		mkbar(t, "2026-03-02 09:32", 89, 89, 82, 83),
		mkbar(t, "2026-03-02 16:00", 83, 83, 83, 83),
	}

	r := NewRunner(cfg, feed.NewSlice(bars), nil)
	require.NoError(t, r.Run(context.Background()))

	trades := r.Ledger().All()
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, market.Short, tr.Side)
	assert.InDelta(t, 90.0, tr.EntryPrice, 1e-9)
	assert.InDelta(t, 82.5, tr.ExitPrice, 1e-9)
	assert.InDelta(t, 7.5, tr.PnL, 1e-9)
	assert.Equal(t, "TakeProfit", tr.Reason)
}

func TestRunReversalPriorDay(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Symbol:         "US30_USD",
		Mode:           session.PriorDay,
		Open:           market.TimeOfDay{Hour: 9, Minute: 30},
		Close:          market.TimeOfDay{Hour: 16, Minute: 0},
		Generator:      signal.Reversal{StopFrac: 0.5, TargetFrac: 0.5},
		InitialBalance: 100000,
		FixedUnits:     1,
	}

	bars := []market.Candle{
		// Day one only establishes the prior range 110/100; no completed
		// prior day exists yet, so no orders.
		mkbar(t, "2026-03-02 09:30", 105, 110, 100, 108),
		mkbar(t, "2026-03-02 16:00", 108, 108, 108, 108),

		// Day two fades the tap of the prior low at 100.
		mkbar(t, "2026-03-03 09:30", 106, 107, 105, 106),
		mkbar(t, "2026-03-03 09:31", 106, 106, 99.5, 101),
		mkbar(t, "2026-03-03 09:32", 101, 105.5, 101, 105),
		mkbar(t, "2026-03-03 16:00", 105, 105, 105, 105),
	}

	r := NewRunner(cfg, feed.NewSlice(bars), nil)
	require.NoError(t, r.Run(context.Background()))

	trades := r.Ledger().All()
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, market.Long, tr.Side)
	assert.InDelta(t, 100.0, tr.EntryPrice, 1e-9) // prior day low
	assert.InDelta(t, 105.0, tr.ExitPrice, 1e-9)  // low + 0.5 * range
	assert.InDelta(t, 5.0, tr.PnL, 1e-9)
	assert.Equal(t, "2026-03-03", tr.CloseTime.Format("2006-01-02"))
}

func TestRunDegenerateRangeSkipsSession(t *testing.T) {
	t.Parallel()

	cfg := breakoutConfig()
	bars := []market.Candle{
		mkbar(t, "2026-03-02 09:30", 100, 100, 100, 100), // zero-size range
		mkbar(t, "2026-03-02 09:31", 100, 120, 90, 110),
		mkbar(t, "2026-03-02 16:00", 110, 110, 110, 110),
	}

	r := NewRunner(cfg, feed.NewSlice(bars), nil)
	require.NoError(t, r.Run(context.Background()))
	assert.Zero(t, r.Ledger().Len())
}

func TestRunDeterministic(t *testing.T) {
	t.Parallel()

	bars := []market.Candle{
		mkbar(t, "2026-03-02 09:30", 97, 100, 95, 98),
		mkbar(t, "2026-03-02 09:31", 98, 106, 97, 105),
		mkbar(t, "2026-03-02 12:00", 105, 107, 99, 100.5),
		mkbar(t, "2026-03-02 16:00", 100, 100, 100, 100),
		mkbar(t, "2026-03-03 09:30", 100, 103, 98, 102),
		mkbar(t, "2026-03-03 09:31", 102, 109, 101, 108),
		mkbar(t, "2026-03-03 16:00", 108, 108, 108, 108),
	}

	run := func() []journal.Trade {
		r := NewRunner(breakoutConfig(), feed.NewSlice(bars), nil)
		require.NoError(t, r.Run(context.Background()))
		return r.Ledger().All()
	}

	a, b := run(), run()
	require.Equal(t, len(a), len(b))
	for i := range a {
		// Record ids are random; everything else must match exactly.
		a[i].ID = ""
		b[i].ID = ""
	}
	assert.Equal(t, a, b)
}

// scriptedFeed interleaves candles with transient read failures.
type scriptedFeed struct {
	steps []scriptedStep
	i     int
}

type scriptedStep struct {
	c   market.Candle
	err error
}

func (f *scriptedFeed) Next() (market.Candle, bool, error) {
	if f.i >= len(f.steps) {
		return market.Candle{}, false, nil
	}
	st := f.steps[f.i]
	f.i++
	return st.c, st.err == nil, st.err
}

func (f *scriptedFeed) Close() error { return nil }

// brokenFeed fails every read.
type brokenFeed struct{ err error }

func (f brokenFeed) Next() (market.Candle, bool, error) { return market.Candle{}, false, f.err }
func (f brokenFeed) Close() error                       { return nil }

func TestRunFeedErrorSkipsSession(t *testing.T) {
	t.Parallel()

	// A bad row inside day one poisons that session: its anchor produces no
	// orders. Day two is clean and trades normally.
	cfg := breakoutConfig()
	cfg.FixedUnits = 1

	steps := []scriptedStep{
		{c: mkbar(t, "2026-03-02 09:00", 97, 98, 96, 97)},
		{err: errors.New("short row")},
		{c: mkbar(t, "2026-03-02 09:30", 97, 100, 95, 98)},
		{c: mkbar(t, "2026-03-02 09:31", 98, 106, 97, 105)},
		{c: mkbar(t, "2026-03-02 16:00", 105, 105, 105, 105)},

		{c: mkbar(t, "2026-03-03 09:30", 97, 100, 95, 98)},
		{c: mkbar(t, "2026-03-03 09:31", 98, 106, 97, 105)},
		{c: mkbar(t, "2026-03-03 09:32", 105, 113, 104, 112)},
		{c: mkbar(t, "2026-03-03 16:00", 112, 112, 112, 112)},
	}

	r := NewRunner(cfg, &scriptedFeed{steps: steps}, nil)
	require.NoError(t, r.Run(context.Background()))

	trades := r.Ledger().All()
	require.Len(t, trades, 1)
	assert.Equal(t, "2026-03-03", trades[0].OpenTime.Format("2006-01-02"))
	assert.Equal(t, "TakeProfit", trades[0].Reason)
}

func TestRunPersistentFeedFailure(t *testing.T) {
	t.Parallel()

	r := NewRunner(breakoutConfig(), brokenFeed{err: errors.New("disk gone")}, nil)

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed failing persistently")
	assert.Zero(t, r.Ledger().Len())
}

func TestRunCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bars := []market.Candle{mkbar(t, "2026-03-02 09:30", 97, 100, 95, 98)}
	r := NewRunner(breakoutConfig(), feed.NewSlice(bars), nil)

	require.NoError(t, r.Run(ctx))
	assert.Zero(t, r.Ledger().Len())
}
