package metrics

import "math"

// Rounding boundaries for rate and display values. Keep these as the single
// source of truth so every query rounds the same way.
const (
	RateDecimals    = 2
	DisplayDecimals = 1
)

func roundTo(value float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}

// percentage divides guarded against a zero denominator and rounds to the
// rate boundary.
func percentage(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0
	}
	return roundTo(float64(numerator)/float64(denominator)*100, RateDecimals)
}
