package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rangetrader",
	Short: "Range-based intraday breakout and reversal backtester",
	Long: `Rangetrader backtests range-based intraday strategies with
bracket order management.

It provides tools for:
  - Opening-range breakout and prior-day reversal strategies
  - Simulated order execution with OCO bracket groups
  - Risk-based position sizing
  - Trade journaling to CSV or SQLite
  - Downloading candle data from OANDA`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
