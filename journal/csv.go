package journal

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"
)

var csvHeader = []string{
	"trade_id", "symbol", "side", "units",
	"entry_price", "exit_price", "open_time", "close_time",
	"pnl", "commission", "reason",
}

// WriteCSV exports trades as one row per closed trade, in the order given.
func WriteCSV(w io.Writer, trades []Trade) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, t := range trades {
		rec := []string{
			t.ID,
			t.Symbol,
			t.Side.String(),
			strconv.Itoa(t.Units),
			f(t.EntryPrice),
			f(t.ExitPrice),
			t.OpenTime.Format(time.RFC3339),
			t.CloseTime.Format(time.RFC3339),
			f(t.PnL),
			f(t.Commission),
			t.Reason,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportCSVFile writes the ledger to path, overwriting any existing file.
func ExportCSVFile(path string, l *Ledger) error {
	fl, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(fl, l.All()); err != nil {
		fl.Close()
		return err
	}
	return fl.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
