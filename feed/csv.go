package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TheRealDxRed/backtesting/market"
)

// CSVFeed reads canonical candle CSV rows:
//
//	time,open,high,low,close[,volume]
//
// where time is RFC3339 or RFC3339Nano in session-local offset. A header row
// ("time,...") is allowed. Empty/short rows are skipped; out-of-order rows
// are an error, since downstream range capture depends on bar order.
type CSVFeed struct {
	f *os.File
	r *csv.Reader

	sawFirst bool
	prev     time.Time
}

func NewCSVFeed(path string) (*CSVFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	return &CSVFeed{f: f, r: r}, nil
}

func (fd *CSVFeed) Close() error {
	if fd.f != nil {
		return fd.f.Close()
	}
	return nil
}

func (fd *CSVFeed) Next() (market.Candle, bool, error) {
	for {
		row, err := fd.r.Read()
		if err == io.EOF {
			return market.Candle{}, false, nil
		}
		if err != nil {
			return market.Candle{}, false, err
		}
		if len(row) == 0 {
			continue
		}

		// Allow a single header row
		if !fd.sawFirst {
			fd.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		c, ok, err := parseCandleRow(row)
		if err != nil {
			return market.Candle{}, false, err
		}
		if !ok {
			continue
		}

		if !fd.prev.IsZero() && !c.Time.After(fd.prev) {
			return market.Candle{}, false, fmt.Errorf(
				"candle out of order: %s after %s",
				c.Time.Format(time.RFC3339), fd.prev.Format(time.RFC3339))
		}
		fd.prev = c.Time

		return c, true, nil
	}
}

func parseCandleRow(row []string) (market.Candle, bool, error) {
	// Need at least: time,open,high,low,close
	if len(row) < 5 {
		return market.Candle{}, false, nil
	}

	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return market.Candle{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t2, err2 := time.Parse(time.RFC3339Nano, ts)
		if err2 != nil {
			return market.Candle{}, false, fmt.Errorf("bad time %q: %w", ts, err)
		}
		t = t2
	}

	vals := make([]float64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return market.Candle{}, false, fmt.Errorf("bad price %q: %w", row[i+1], err)
		}
		vals[i] = v
	}

	c := market.Candle{
		Time: t,
		Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3],
	}

	if len(row) > 5 {
		if v, err := strconv.ParseFloat(strings.TrimSpace(row[5]), 64); err == nil {
			c.Volume = v
		}
	}

	return c, true, nil
}
