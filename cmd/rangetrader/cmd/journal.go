package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheRealDxRed/backtesting/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query trade journal data",
	Long: `Query and display trade records from a SQLite journal database.

Subcommands:
  today  - List trades closed today
  day    - List trades closed on a specific day

Examples:
  rangetrader journal today
  rangetrader journal day 2026-08-14`,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List trades closed today",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./rangetrader.sqlite", "path to SQLite journal DB")
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	return listDay(time.Now().Format("2006-01-02"))
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	return listDay(args[0])
}

func listDay(day string) error {
	db, err := journal.OpenSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	start, end, err := dayBounds(time.Local, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	trades, err := db.TradesClosedBetween(start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	if len(trades) == 0 {
		fmt.Printf("No trades closed on %s\n", day)
		return nil
	}

	printTrades(trades)
	return nil
}

func printTrades(trades []journal.Trade) {
	fmt.Printf("%-28s %-10s %-5s %8s %10s %10s %10s %s\n",
		"ID", "SYMBOL", "SIDE", "UNITS", "ENTRY", "EXIT", "NET", "REASON")
	for _, t := range trades {
		fmt.Printf("%-28s %-10s %-5s %8d %10.4f %10.4f %10.2f %s\n",
			t.ID, t.Symbol, t.Side, t.Units, t.EntryPrice, t.ExitPrice, t.Net(), t.Reason)
	}
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.Add(24 * time.Hour)
	return start, end, nil
}
