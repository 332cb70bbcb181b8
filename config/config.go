package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/TheRealDxRed/backtesting/market"
)

// Config represents a complete engine run configuration
type Config struct {
	Account  AccountConfig  `json:"account" yaml:"account"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`
	Data     DataConfig     `json:"data" yaml:"data"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	ID       string  `json:"id" yaml:"id"`
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
}

// StrategyConfig selects the strategy variant and its parameters.
// EntryOffset and RiskReward apply to the breakout variant; the fraction
// fields apply to the reversal variant.
type StrategyConfig struct {
	Variant    string `json:"variant" yaml:"variant"` // "breakout" or "reversal"
	Instrument string `json:"instrument" yaml:"instrument"`
	OpenTime   string `json:"open_time" yaml:"open_time"`   // "09:30"
	CloseTime  string `json:"close_time" yaml:"close_time"` // "16:00"

	EntryOffset float64 `json:"entry_offset,omitempty" yaml:"entry_offset,omitempty"`
	RiskReward  float64 `json:"risk_reward,omitempty" yaml:"risk_reward,omitempty"`

	StopLossFraction     float64 `json:"stop_loss_fraction,omitempty" yaml:"stop_loss_fraction,omitempty"`
	ProfitTargetFraction float64 `json:"profit_target_fraction,omitempty" yaml:"profit_target_fraction,omitempty"`

	RiskFraction      float64 `json:"risk_fraction" yaml:"risk_fraction"`
	CommissionPerUnit float64 `json:"commission_per_unit,omitempty" yaml:"commission_per_unit,omitempty"`

	LongOnly   bool `json:"long_only,omitempty" yaml:"long_only,omitempty"`
	FixedUnits int  `json:"fixed_units,omitempty" yaml:"fixed_units,omitempty"`
}

// DataConfig selects the candle source
type DataConfig struct {
	Source      string `json:"source" yaml:"source"` // "csv" or "oanda"
	CSVFile     string `json:"csv_file,omitempty" yaml:"csv_file,omitempty"`
	Granularity string `json:"granularity,omitempty" yaml:"granularity,omitempty"`
	From        string `json:"from,omitempty" yaml:"from,omitempty"` // RFC3339
	To          string `json:"to,omitempty" yaml:"to,omitempty"`
	Timezone    string `json:"timezone,omitempty" yaml:"timezone,omitempty"` // e.g. America/New_York
}

// JournalConfig contains trade export parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// OpenTimeOfDay parses the configured open anchor.
func (s StrategyConfig) OpenTimeOfDay() (market.TimeOfDay, error) {
	return market.ParseTimeOfDay(s.OpenTime)
}

// CloseTimeOfDay parses the configured close-and-flatten anchor.
func (s StrategyConfig) CloseTimeOfDay() (market.TimeOfDay, error) {
	return market.ParseTimeOfDay(s.CloseTime)
}

// LoadFromFile loads configuration from a file (YAML or JSON based on content)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}

	s := c.Strategy
	switch s.Variant {
	case "breakout":
		if s.RiskReward <= 0 {
			return fmt.Errorf("strategy.risk_reward must be positive for breakout")
		}
		if s.EntryOffset < 0 {
			return fmt.Errorf("strategy.entry_offset must not be negative")
		}
	case "reversal":
		if s.StopLossFraction <= 0 {
			return fmt.Errorf("strategy.stop_loss_fraction must be positive for reversal")
		}
		if s.ProfitTargetFraction <= 0 {
			return fmt.Errorf("strategy.profit_target_fraction must be positive for reversal")
		}
	default:
		return fmt.Errorf("strategy.variant must be 'breakout' or 'reversal'")
	}

	if s.Instrument == "" {
		return fmt.Errorf("strategy.instrument is required")
	}
	if _, ok := market.Instruments[s.Instrument]; !ok {
		return fmt.Errorf("unknown instrument: %s", s.Instrument)
	}
	if _, err := s.OpenTimeOfDay(); err != nil {
		return fmt.Errorf("strategy.open_time: %w", err)
	}
	if _, err := s.CloseTimeOfDay(); err != nil {
		return fmt.Errorf("strategy.close_time: %w", err)
	}
	if s.FixedUnits == 0 && (s.RiskFraction <= 0 || s.RiskFraction > 1) {
		return fmt.Errorf("strategy.risk_fraction must be between 0 and 1")
	}
	if s.FixedUnits < 0 {
		return fmt.Errorf("strategy.fixed_units must not be negative")
	}
	if s.CommissionPerUnit < 0 {
		return fmt.Errorf("strategy.commission_per_unit must not be negative")
	}

	switch c.Data.Source {
	case "csv":
		if c.Data.CSVFile == "" {
			return fmt.Errorf("data.csv_file required for csv source")
		}
	case "oanda":
		if c.Data.Granularity == "" {
			return fmt.Errorf("data.granularity required for oanda source")
		}
	default:
		return fmt.Errorf("data.source must be 'csv' or 'oanda'")
	}

	if c.Journal.Type != "csv" && c.Journal.Type != "sqlite" {
		return fmt.Errorf("journal.type must be 'csv' or 'sqlite'")
	}
	if c.Journal.Type == "csv" && c.Journal.TradesFile == "" {
		return fmt.Errorf("journal trades_file required for CSV type")
	}
	if c.Journal.Type == "sqlite" && c.Journal.DBPath == "" {
		return fmt.Errorf("journal db_path required for SQLite type")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:       "SIM-001",
			Currency: "USD",
			Balance:  100000,
		},
		Strategy: StrategyConfig{
			Variant:      "breakout",
			Instrument:   "US30_USD",
			OpenTime:     "09:30",
			CloseTime:    "16:00",
			EntryOffset:  5.0,
			RiskReward:   1.5,
			RiskFraction: 0.01,
		},
		Data: DataConfig{
			Source:   "csv",
			CSVFile:  "./candles.csv",
			Timezone: "America/New_York",
		},
		Journal: JournalConfig{
			Type:       "csv",
			TradesFile: "./trades.csv",
		},
	}
}
