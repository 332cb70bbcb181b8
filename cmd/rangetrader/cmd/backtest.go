package cmd

import (
	"context"
	"fmt"
	"os"
	osignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TheRealDxRed/backtesting/backtest"
	"github.com/TheRealDxRed/backtesting/config"
	"github.com/TheRealDxRed/backtesting/feed"
	"github.com/TheRealDxRed/backtesting/feed/oanda"
	"github.com/TheRealDxRed/backtesting/journal"
	"github.com/TheRealDxRed/backtesting/session"
	"github.com/TheRealDxRed/backtesting/signal"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a backtest from a config file",
	Long: `Run a range-based strategy backtest using settings from a
configuration file.

The config file specifies the account, the strategy variant and its
parameters, the candle source, and where to write the trade journal.

Example:
  rangetrader backtest -f examples/breakout.yaml`,
	RunE: runBacktest,
}

var (
	backtestConfigPath string
	backtestVerbose    bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&backtestConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	backtestCmd.Flags().BoolVarP(&backtestVerbose, "verbose", "v", false, "enable debug logging")
	backtestCmd.MarkFlagRequired("config")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(backtestConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(backtestVerbose)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := osignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fd, err := buildFeed(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build feed: %w", err)
	}
	defer fd.Close()

	rcfg, err := runnerConfig(cfg)
	if err != nil {
		return err
	}

	runner := backtest.NewRunner(rcfg, fd, log)
	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	trades := runner.Ledger().All()
	journal.PrintSummary(os.Stdout, journal.Summarize(trades))

	return saveJournal(cfg, runner.Ledger())
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// runnerConfig translates the file configuration into engine terms.
func runnerConfig(cfg *config.Config) (backtest.Config, error) {
	open, err := cfg.Strategy.OpenTimeOfDay()
	if err != nil {
		return backtest.Config{}, fmt.Errorf("open_time: %w", err)
	}
	closeAt, err := cfg.Strategy.CloseTimeOfDay()
	if err != nil {
		return backtest.Config{}, fmt.Errorf("close_time: %w", err)
	}

	rcfg := backtest.Config{
		Symbol:         cfg.Strategy.Instrument,
		Open:           open,
		Close:          closeAt,
		InitialBalance: cfg.Account.Balance,
		RiskFraction:   cfg.Strategy.RiskFraction,
		Commission:     cfg.Strategy.CommissionPerUnit,
		LongOnly:       cfg.Strategy.LongOnly,
		FixedUnits:     cfg.Strategy.FixedUnits,
	}

	switch cfg.Strategy.Variant {
	case "breakout":
		rcfg.Mode = session.OpeningRange
		rcfg.Generator = signal.Breakout{
			Offset: cfg.Strategy.EntryOffset,
			R:      cfg.Strategy.RiskReward,
		}
	case "reversal":
		rcfg.Mode = session.PriorDay
		rcfg.Generator = signal.Reversal{
			StopFrac:   cfg.Strategy.StopLossFraction,
			TargetFrac: cfg.Strategy.ProfitTargetFraction,
		}
	default:
		return backtest.Config{}, fmt.Errorf("unknown variant: %s", cfg.Strategy.Variant)
	}
	return rcfg, nil
}

func buildFeed(ctx context.Context, cfg *config.Config) (feed.Feed, error) {
	switch cfg.Data.Source {
	case "csv":
		return feed.NewCSVFeed(cfg.Data.CSVFile)

	case "oanda":
		token := os.Getenv("OANDA_API_KEY")
		if token == "" {
			return nil, fmt.Errorf("OANDA_API_KEY environment variable not set")
		}

		loc := time.Local
		if cfg.Data.Timezone != "" {
			var err error
			loc, err = time.LoadLocation(cfg.Data.Timezone)
			if err != nil {
				return nil, fmt.Errorf("timezone: %w", err)
			}
		}

		req := oanda.CandlesRequest{
			Instrument:  cfg.Strategy.Instrument,
			Granularity: oanda.Granularity(cfg.Data.Granularity),
			Location:    loc,
		}
		if cfg.Data.From != "" {
			from, err := time.Parse(time.RFC3339, cfg.Data.From)
			if err != nil {
				return nil, fmt.Errorf("data.from: %w", err)
			}
			req.From = &from
		}
		if cfg.Data.To != "" {
			to, err := time.Parse(time.RFC3339, cfg.Data.To)
			if err != nil {
				return nil, fmt.Errorf("data.to: %w", err)
			}
			req.To = &to
		}

		client := oanda.NewClient(token, true)
		candles, err := client.GetCandles(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("fetch candles: %w", err)
		}
		return feed.NewSlice(candles), nil

	default:
		return nil, fmt.Errorf("unknown data source: %s", cfg.Data.Source)
	}
}

func saveJournal(cfg *config.Config, l *journal.Ledger) error {
	switch cfg.Journal.Type {
	case "csv":
		if err := journal.ExportCSVFile(cfg.Journal.TradesFile, l); err != nil {
			return fmt.Errorf("export csv: %w", err)
		}
		fmt.Printf("\nTrades saved to: %s\n", cfg.Journal.TradesFile)

	case "sqlite":
		db, err := journal.OpenSQLite(cfg.Journal.DBPath)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
		if err := db.SaveAll(l.All()); err != nil {
			return fmt.Errorf("save trades: %w", err)
		}
		fmt.Printf("\nTrades saved to: %s\n", cfg.Journal.DBPath)
	}
	return nil
}
