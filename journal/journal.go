package journal

import (
	"time"

	"github.com/TheRealDxRed/backtesting/market"
)

// Trade is one closed round trip. Write-once: records are never mutated
// after being appended to the ledger.
type Trade struct {
	ID         string
	Symbol     string
	Side       market.Side
	Units      int
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	PnL        float64 // gross, in account currency
	Commission float64
	Reason     string
}

// Net is PnL after commission.
func (t Trade) Net() float64 {
	return t.PnL - t.Commission
}

// Ledger accumulates closed trades in the order they closed. Append-only;
// insertion order is preserved for reporting. Not goroutine safe: the engine
// serializes all access on its single event thread.
type Ledger struct {
	trades []Trade
}

func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) Record(t Trade) {
	l.trades = append(l.trades, t)
}

// All returns the closed trades in close order. The returned slice is a copy.
func (l *Ledger) All() []Trade {
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

func (l *Ledger) Len() int {
	return len(l.trades)
}

// NetPnL sums realized PnL net of commission across all trades.
func (l *Ledger) NetPnL() float64 {
	var sum float64
	for _, t := range l.trades {
		sum += t.Net()
	}
	return sum
}
