// Package feed supplies candles for one instrument in strictly ascending
// time order. Implementations never skip or reorder bars within one
// granularity; a corrupt row surfaces as an error the engine can skip past.
package feed

import (
	"github.com/TheRealDxRed/backtesting/market"
)

type Feed interface {
	// Next returns the next candle. ok is false at end of stream.
	Next() (c market.Candle, ok bool, err error)
	Close() error
}

// Slice replays an in-memory candle sequence. Used for tests and for feeds
// that fetch whole batches (e.g. the OANDA history client).
type Slice struct {
	candles []market.Candle
	i       int
}

func NewSlice(candles []market.Candle) *Slice {
	return &Slice{candles: candles}
}

func (s *Slice) Next() (market.Candle, bool, error) {
	if s.i >= len(s.candles) {
		return market.Candle{}, false, nil
	}
	c := s.candles[s.i]
	s.i++
	return c, true, nil
}

func (s *Slice) Close() error { return nil }
