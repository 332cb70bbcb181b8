// Package ranges derives the high/low/size triple a range strategy keys its
// entries off, either from a session's designated anchor bar or from the
// prior completed trading day.
package ranges

import (
	"errors"
	"fmt"

	"github.com/TheRealDxRed/backtesting/market"
)

// ErrUnavailable means not enough anchor data exists yet, e.g. no completed
// prior day. Not fatal; the next session retries.
var ErrUnavailable = errors.New("range unavailable")

// Levels is a computed session range. Size is always High - Low and never
// negative. Computed at most once per session; recomputation from the same
// anchor data is idempotent.
type Levels struct {
	High    float64
	Low     float64
	Size    float64
	Session market.Session
}

// FromAnchorBar builds opening-range levels from the single range-capture bar.
func FromAnchorBar(bar market.Candle, s market.Session) (Levels, error) {
	if bar.High < bar.Low {
		return Levels{}, fmt.Errorf("anchor bar %s: high %.5f below low %.5f",
			bar.Time.Format("2006-01-02 15:04"), bar.High, bar.Low)
	}
	return Levels{
		High:    bar.High,
		Low:     bar.Low,
		Size:    bar.High - bar.Low,
		Session: s,
	}, nil
}

// FromPriorDay builds levels from the most recently completed daily bar.
// days must be in ascending date order; the last element is taken as the
// prior day. Returns ErrUnavailable when no completed day exists yet.
func FromPriorDay(days []market.Candle, s market.Session) (Levels, error) {
	if len(days) == 0 {
		return Levels{}, ErrUnavailable
	}
	d := days[len(days)-1]
	if d.High < d.Low {
		return Levels{}, fmt.Errorf("daily bar %s: high %.5f below low %.5f",
			d.Time.Format("2006-01-02"), d.High, d.Low)
	}
	return Levels{
		High:    d.High,
		Low:     d.Low,
		Size:    d.High - d.Low,
		Session: s,
	}, nil
}
