package risk

import (
	"errors"
	"math"
)

// ErrInvalidStopDistance is returned when the stop sits at or on the wrong
// side of the entry, so risk per unit is undefined.
var ErrInvalidStopDistance = errors.New("invalid stop distance")

type Inputs struct {
	Equity       float64
	RiskFraction float64 // 0.01 risks 1% of equity
	StopDistance float64 // price units between entry and stop
}

type Result struct {
	Units      int
	RiskAmount float64
}

func Calculate(in Inputs) (Result, error) {
	if in.StopDistance <= 0 || math.IsNaN(in.StopDistance) || math.IsInf(in.StopDistance, 0) {
		return Result{}, ErrInvalidStopDistance
	}

	riskAmt := in.Equity * in.RiskFraction

	units := int(math.Floor(riskAmt / in.StopDistance))
	if units < 0 {
		units = 0
	}

	return Result{Units: units, RiskAmount: riskAmt}, nil
}

// Size is the shorthand the engine uses. A zero result is valid and means
// no order should be submitted.
func Size(equity, riskFraction, stopDistance float64) (int, error) {
	res, err := Calculate(Inputs{
		Equity:       equity,
		RiskFraction: riskFraction,
		StopDistance: stopDistance,
	})
	if err != nil {
		return 0, err
	}
	return res.Units, nil
}
