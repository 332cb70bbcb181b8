package journal

import (
	"fmt"
	"io"
	"time"
)

// Summary is a lightweight report over a finished run's ledger.
type Summary struct {
	Trades     int
	Wins       int
	Losses     int
	WinRate    float64 // percent
	NetPnL     float64
	Commission float64

	Start time.Time
	End   time.Time
}

func Summarize(trades []Trade) Summary {
	var s Summary
	s.Trades = len(trades)

	for i, t := range trades {
		if i == 0 || t.OpenTime.Before(s.Start) {
			s.Start = t.OpenTime
		}
		if t.CloseTime.After(s.End) {
			s.End = t.CloseTime
		}

		net := t.Net()
		s.NetPnL += net
		s.Commission += t.Commission
		if net > 0 {
			s.Wins++
		} else if net < 0 {
			s.Losses++
		}
	}

	if s.Wins+s.Losses > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Wins+s.Losses) * 100
	}
	return s
}

func PrintSummary(w io.Writer, s Summary) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Run Summary")
	fmt.Fprintln(w, "==================================================")

	if s.Trades > 0 {
		fmt.Fprintf(w, "Start:         %s\n", s.Start.Format(time.RFC3339))
		fmt.Fprintf(w, "End:           %s\n", s.End.Format(time.RFC3339))
	}

	fmt.Fprintf(w, "Trades:        %d\n", s.Trades)
	fmt.Fprintf(w, "Wins:          %d\n", s.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", s.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", s.WinRate)
	fmt.Fprintf(w, "Net PnL:       %.2f\n", s.NetPnL)
	fmt.Fprintf(w, "Commission:    %.2f\n", s.Commission)
}
