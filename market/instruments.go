package market

// InstrumentMeta carries the static per-instrument facts the engine needs.
type InstrumentMeta struct {
	Name             string
	QuoteCurrency    string
	MinimumTradeSize float64
	MarginRate       float64
}

var Instruments = map[string]InstrumentMeta{
	"US30_USD": {
		Name:             "US30_USD",
		QuoteCurrency:    "USD",
		MinimumTradeSize: 1,
		MarginRate:       0.05,
	},
	"SPX500_USD": {
		Name:             "SPX500_USD",
		QuoteCurrency:    "USD",
		MinimumTradeSize: 1,
		MarginRate:       0.05,
	},
	"XAU_USD": {
		Name:             "XAU_USD",
		QuoteCurrency:    "USD",
		MinimumTradeSize: 1,
		MarginRate:       0.05,
	},
}
