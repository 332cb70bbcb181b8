package bracket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TheRealDxRed/backtesting/broker"
	"github.com/TheRealDxRed/backtesting/journal"
	"github.com/TheRealDxRed/backtesting/market"
	"github.com/TheRealDxRed/backtesting/signal"
)

type stubExec struct {
	specs     []broker.OrderSpec
	cancels   []string
	submitErr error
}

func (s *stubExec) Submit(ctx context.Context, specs []broker.OrderSpec) error {
	if s.submitErr != nil {
		return s.submitErr
	}
	s.specs = append(s.specs, specs...)
	return nil
}

func (s *stubExec) Cancel(ctx context.Context, legID string) error {
	s.cancels = append(s.cancels, legID)
	return nil
}

func (s *stubExec) AccountValue(ctx context.Context) (float64, error) {
	return 100000, nil
}

func newManager(t *testing.T, opts ...Option) (*Manager, *stubExec, *journal.Ledger) {
	t.Helper()
	exec := &stubExec{}
	ledger := journal.NewLedger()
	m := NewManager(exec, ledger, zap.NewNop(), "US30_USD", opts...)

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	m.StartSession(market.NewSession(day,
		market.TimeOfDay{Hour: 9, Minute: 30},
		market.TimeOfDay{Hour: 16, Minute: 0}))
	return m, exec, ledger
}

func testPair() signal.Pair {
	return signal.Pair{
		Long:      signal.Levels{Entry: 105, Stop: 100, Target: 112.5},
		Short:     signal.Levels{Entry: 90, Stop: 95, Target: 82.5},
		EntryType: broker.Stop,
	}
}

func fill(id, legID string, price float64, units int) broker.Event {
	return broker.Event{
		ID:    id,
		LegID: legID,
		Kind:  broker.EventFill,
		Price: price,
		Units: units,
		Time:  time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestSubmitBrackets(t *testing.T) {
	t.Parallel()

	m, exec, _ := newManager(t)
	require.NoError(t, m.SubmitBrackets(context.Background(), testPair(), 2))

	require.Len(t, exec.specs, 6)
	assert.True(t, m.Outstanding())

	// Children reference their own side's entry leg.
	for _, g := range []*Group{m.long, m.short} {
		for _, l := range g.Legs() {
			assert.Equal(t, Submitted, l.State)
		}
	}
	byLeg := make(map[string]broker.OrderSpec)
	for _, spec := range exec.specs {
		byLeg[spec.LegID] = spec
	}
	assert.Empty(t, byLeg[m.long.Entry.ID].ParentID)
	assert.Equal(t, m.long.Entry.ID, byLeg[m.long.Stop.ID].ParentID)
	assert.Equal(t, m.long.Entry.ID, byLeg[m.long.Take.ID].ParentID)
	assert.Equal(t, m.short.Entry.ID, byLeg[m.short.Stop.ID].ParentID)

	// Entry legs trade toward the side, exits away from it.
	assert.Equal(t, 2, byLeg[m.long.Entry.ID].Units)
	assert.Equal(t, -2, byLeg[m.long.Stop.ID].Units)
	assert.Equal(t, -2, byLeg[m.short.Entry.ID].Units)
	assert.Equal(t, 2, byLeg[m.short.Take.ID].Units)
}

func TestSubmitBrackets_ZeroQuantity(t *testing.T) {
	t.Parallel()

	m, exec, _ := newManager(t)
	require.NoError(t, m.SubmitBrackets(context.Background(), testPair(), 0))
	assert.Empty(t, exec.specs)
	assert.False(t, m.Outstanding())
}

func TestSubmitBrackets_MisorderedPair(t *testing.T) {
	t.Parallel()

	m, _, _ := newManager(t)
	bad := testPair()
	bad.Long.Stop = 120 // above entry

	err := m.SubmitBrackets(context.Background(), bad, 2)
	assert.Error(t, err)
}

func TestSubmitBrackets_LongOnly(t *testing.T) {
	t.Parallel()

	m, exec, _ := newManager(t, WithLongOnly())
	require.NoError(t, m.SubmitBrackets(context.Background(), testPair(), 2))

	assert.Len(t, exec.specs, 3)
	assert.Nil(t, m.short)
}

func TestEntryFillCancelsOppositeGroup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, exec, _ := newManager(t)
	require.NoError(t, m.SubmitBrackets(ctx, testPair(), 2))

	require.NoError(t, m.Apply(ctx, fill("e1", m.long.Entry.ID, 105, 2)))

	pos := m.Position()
	require.NotNil(t, pos)
	assert.Equal(t, market.Long, pos.Side)
	assert.Equal(t, 2, pos.Units)
	assert.InDelta(t, 105.0, pos.EntryPrice, 1e-9)

	for _, l := range m.short.Legs() {
		assert.Equal(t, Canceled, l.State)
	}
	assert.Len(t, exec.cancels, 3)
}

func TestTakeProfitClosesPosition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, exec, ledger := newManager(t, WithCommission(0.5))
	require.NoError(t, m.SubmitBrackets(ctx, testPair(), 2))

	require.NoError(t, m.Apply(ctx, fill("e1", m.long.Entry.ID, 105, 2)))
	require.NoError(t, m.Apply(ctx, fill("e2", m.long.Take.ID, 112.5, -2)))

	assert.Nil(t, m.Position())
	assert.Equal(t, Canceled, m.long.Stop.State)
	assert.Contains(t, exec.cancels, m.long.Stop.ID)

	trades := ledger.All()
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, "TakeProfit", tr.Reason)
	assert.InDelta(t, 15.0, tr.PnL, 1e-9)       // (112.5-105)*2
	assert.InDelta(t, 2.0, tr.Commission, 1e-9) // 2 units * 0.5 * round turn
	assert.Equal(t, market.Long, tr.Side)
}

func TestStopLossClosesShortPosition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _, ledger := newManager(t)
	require.NoError(t, m.SubmitBrackets(ctx, testPair(), 3))

	require.NoError(t, m.Apply(ctx, fill("e1", m.short.Entry.ID, 90, -3)))
	require.NoError(t, m.Apply(ctx, fill("e2", m.short.Stop.ID, 95, 3)))

	assert.Nil(t, m.Position())
	trades := ledger.All()
	require.Len(t, trades, 1)
	assert.Equal(t, "StopLoss", trades[0].Reason)
	assert.InDelta(t, -15.0, trades[0].PnL, 1e-9) // short loses (95-90)*3
}

func TestDuplicateEventDropped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _, ledger := newManager(t)
	require.NoError(t, m.SubmitBrackets(ctx, testPair(), 2))

	require.NoError(t, m.Apply(ctx, fill("e1", m.long.Entry.ID, 105, 2)))
	require.NoError(t, m.Apply(ctx, fill("e2", m.long.Take.ID, 112.5, -2)))

	// Redelivered exit fill must not book a second trade.
	require.NoError(t, m.Apply(ctx, fill("e2", m.long.Take.ID, 112.5, -2)))
	assert.Equal(t, 1, ledger.Len())
}

func TestLateFillAfterCancelIgnored(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _, ledger := newManager(t)
	require.NoError(t, m.SubmitBrackets(ctx, testPair(), 2))

	// Long entry fills; the short group is optimistically canceled.
	require.NoError(t, m.Apply(ctx, fill("e1", m.long.Entry.ID, 105, 2)))
	require.Equal(t, Canceled, m.short.Entry.State)

	// A racing venue fill for the canceled short entry arrives anyway.
	require.NoError(t, m.Apply(ctx, fill("e2", m.short.Entry.ID, 90, -2)))

	pos := m.Position()
	require.NotNil(t, pos)
	assert.Equal(t, market.Long, pos.Side)
	assert.Equal(t, Canceled, m.short.Entry.State)
	assert.Zero(t, ledger.Len())
}

func TestRejectDoesNotDisturbSiblings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, exec, _ := newManager(t)
	require.NoError(t, m.SubmitBrackets(ctx, testPair(), 2))

	require.NoError(t, m.Apply(ctx, broker.Event{
		ID: "e1", LegID: m.long.Entry.ID, Kind: broker.EventReject, Reason: "bad price",
	}))
	assert.Equal(t, Rejected, m.long.Entry.State)
	assert.Empty(t, exec.cancels)
	assert.Equal(t, Submitted, m.short.Entry.State)

	require.NoError(t, m.Apply(ctx, broker.Event{
		ID: "e2", LegID: m.long.Stop.ID, Kind: broker.EventMarginBlock,
	}))
	assert.Equal(t, MarginBlocked, m.long.Stop.State)
}

func TestCancelAckReconciles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _, _ := newManager(t)
	require.NoError(t, m.SubmitBrackets(ctx, testPair(), 2))

	require.NoError(t, m.Apply(ctx, fill("e1", m.long.Entry.ID, 105, 2)))

	// The venue's cancel-ack lands after the optimistic state change.
	require.NoError(t, m.Apply(ctx, broker.Event{
		ID: "e2", LegID: m.short.Entry.ID, Kind: broker.EventCancelAck,
	}))
	assert.Equal(t, Canceled, m.short.Entry.State)
}

func TestCloseSessionFlattensOpenPosition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	m, exec, ledger := newManager(t)
	require.NoError(t, m.SubmitBrackets(ctx, testPair(), 2))
	require.NoError(t, m.Apply(ctx, fill("e1", m.long.Entry.ID, 105, 2)))

	require.NoError(t, m.CloseSession(ctx, now))

	require.NotNil(t, m.flatten)
	last := exec.specs[len(exec.specs)-1]
	assert.Equal(t, m.flatten.ID, last.LegID)
	assert.Equal(t, broker.Market, last.Type)
	assert.Equal(t, -2, last.Units)

	require.NoError(t, m.Apply(ctx, fill("e2", m.flatten.ID, 103, -2)))

	assert.Nil(t, m.Position())
	assert.False(t, m.Outstanding())

	trades := ledger.All()
	require.Len(t, trades, 1)
	assert.Equal(t, "EndOfDay", trades[0].Reason)
	assert.InDelta(t, -4.0, trades[0].PnL, 1e-9)
}

func TestCloseSessionWhileFlat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	m, exec, _ := newManager(t)
	require.NoError(t, m.SubmitBrackets(ctx, testPair(), 2))

	require.NoError(t, m.CloseSession(ctx, now))

	assert.Nil(t, m.flatten)
	assert.Len(t, exec.specs, 6) // no flatten order added
	assert.False(t, m.Outstanding())
}
