package market

import "time"

// Candle represents OHLC (Open, High, Low, Close) candlestick data for one
// bar, timestamped in session-local time. Immutable once received.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}
