// Package signal turns a session range into concrete entry/stop/target price
// levels for both sides of a bracket pair.
package signal

import (
	"errors"

	"github.com/TheRealDxRed/backtesting/broker"
	"github.com/TheRealDxRed/backtesting/ranges"
)

// ErrDegenerateRange means the range size is zero, so no meaningful levels
// exist. The session is skipped.
var ErrDegenerateRange = errors.New("degenerate range")

// Levels holds the three prices of one bracket side.
type Levels struct {
	Entry  float64
	Stop   float64
	Target float64
}

// Pair holds both sides plus the order type the entry legs should use:
// breakouts enter on stop orders beyond the range, reversals on limit orders
// at the prior extreme.
type Pair struct {
	Long      Levels
	Short     Levels
	EntryType broker.OrderType
}

type Generator interface {
	Name() string
	Derive(r ranges.Levels) (Pair, error)
}

// Breakout enters beyond the opening range.
//
//	entry = high + offset, stop = entry - size, target = entry + r*size
//
// mirrored below the low for the short side.
type Breakout struct {
	Offset float64 // absolute price offset beyond the range edge
	R      float64 // target distance as a multiple of range size
}

func (Breakout) Name() string { return "opening-range-breakout" }

func (b Breakout) Derive(r ranges.Levels) (Pair, error) {
	if r.Size <= 0 {
		return Pair{}, ErrDegenerateRange
	}

	entryLong := r.High + b.Offset
	entryShort := r.Low - b.Offset

	return Pair{
		Long: Levels{
			Entry:  entryLong,
			Stop:   entryLong - r.Size,
			Target: entryLong + b.R*r.Size,
		},
		Short: Levels{
			Entry:  entryShort,
			Stop:   entryShort + r.Size,
			Target: entryShort - b.R*r.Size,
		},
		EntryType: broker.Stop,
	}, nil
}

// Reversal fades taps of the prior day's extremes: buy the prior low, sell
// the prior high, with stop and target placed as fractions of the range.
type Reversal struct {
	StopFrac   float64 // stop distance as a fraction of range size
	TargetFrac float64 // target distance as a fraction of range size
}

func (Reversal) Name() string { return "prior-day-reversal" }

func (v Reversal) Derive(r ranges.Levels) (Pair, error) {
	if r.Size <= 0 {
		return Pair{}, ErrDegenerateRange
	}

	return Pair{
		Long: Levels{
			Entry:  r.Low,
			Stop:   r.Low - r.Size*v.StopFrac,
			Target: r.Low + r.Size*v.TargetFrac,
		},
		Short: Levels{
			Entry:  r.High,
			Stop:   r.High + r.Size*v.StopFrac,
			Target: r.High - r.Size*v.TargetFrac,
		},
		EntryType: broker.Limit,
	}, nil
}
