package risk

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// RR returns reward/risk for a planned entry, or 0 when risk is zero.
func RR(entry, stop, takeProfit float64) float64 {
	risk := abs(entry - stop)
	reward := abs(takeProfit - entry)
	if risk == 0 {
		return 0
	}
	return reward / risk
}
