package ranges

import (
	"time"

	"github.com/TheRealDxRed/backtesting/market"
)

// DailyAggregator folds an intraday bar stream into one daily bar per
// calendar date. A day is completed when the first bar of the next date
// arrives; the open day is never exposed, so FromPriorDay can only ever see
// finished sessions.
type DailyAggregator struct {
	days    []market.Candle
	cur     market.Candle
	curDate time.Time
	have    bool
}

func NewDailyAggregator() *DailyAggregator {
	return &DailyAggregator{}
}

func (a *DailyAggregator) Add(c market.Candle) {
	y, m, d := c.Time.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, c.Time.Location())

	if a.have && !date.Equal(a.curDate) {
		a.days = append(a.days, a.cur)
		a.have = false
	}

	if !a.have {
		a.cur = market.Candle{
			Time:   date,
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		}
		a.curDate = date
		a.have = true
		return
	}

	if c.High > a.cur.High {
		a.cur.High = c.High
	}
	if c.Low < a.cur.Low {
		a.cur.Low = c.Low
	}
	a.cur.Close = c.Close
	a.cur.Volume += c.Volume
}

// Completed returns the finished daily bars in ascending date order.
func (a *DailyAggregator) Completed() []market.Candle {
	return a.days
}
