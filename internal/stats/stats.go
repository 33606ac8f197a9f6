// Package stats provides pure statistical helpers for A/B experiment
// evaluation. The functions are deterministic, perform no I/O, and have no
// dependency on the storage layer.
package stats

import (
	"math"
)

// ConfidenceCap bounds the reported confidence so a result is never presented
// as an absolute certainty.
const ConfidenceCap = 0.9999

// zScores maps confidence levels to two-sided z critical values.
var zScores = map[float64]float64{
	0.80:  1.28,
	0.85:  1.44,
	0.90:  1.64,
	0.95:  1.96,
	0.99:  2.58,
	0.999: 3.29,
}

// powerScores maps statistical power levels to one-sided z values.
var powerScores = map[float64]float64{
	0.80: 0.84,
	0.85: 1.04,
	0.90: 1.28,
	0.95: 1.64,
	0.99: 2.33,
}

const (
	defaultZScore     = 1.96 // 95%
	defaultPowerScore = 0.84 // 80%
)

// Confidence runs a two-proportion z-test between variants A and B and
// returns the confidence that the observed difference is real, in [0, 1).
// Returns 0 when either sample is empty or the conversion rates are
// identical; the result is capped at ConfidenceCap.
func Confidence(conversionsA, visitorsA, conversionsB, visitorsB int) float64 {
	if visitorsA <= 0 || visitorsB <= 0 {
		return 0
	}

	rateA := float64(conversionsA) / float64(visitorsA)
	rateB := float64(conversionsB) / float64(visitorsB)
	if rateA == rateB {
		return 0
	}

	pooled := float64(conversionsA+conversionsB) / float64(visitorsA+visitorsB)
	standardError := math.Sqrt(pooled * (1 - pooled) *
		(1/float64(visitorsA) + 1/float64(visitorsB)))
	if standardError == 0 {
		return 0
	}

	z := math.Abs(rateB-rateA) / standardError

	// Two-sided confidence via the normal CDF: P(|Z| <= z) = erf(z / sqrt(2)).
	confidence := math.Erf(z / math.Sqrt2)
	if confidence > ConfidenceCap {
		return ConfidenceCap
	}
	return confidence
}

// RequiredSampleSize returns the per-variant sample size needed to detect the
// expected relative lift over the baseline conversion rate at the given
// confidence level and power. Unrecognized confidence or power levels fall
// back to 95% / 80% rather than erroring. Returns 0 for degenerate inputs.
func RequiredSampleSize(baselineRate, expectedLift, confidenceLevel, power float64) int {
	if baselineRate <= 0 || baselineRate >= 1 || expectedLift == 0 {
		return 0
	}

	p1 := baselineRate
	p2 := baselineRate * (1 + expectedLift)
	if p2 <= 0 || p2 >= 1 {
		return 0
	}

	zAlpha, ok := zScores[confidenceLevel]
	if !ok {
		zAlpha = defaultZScore
	}
	zBeta, ok := powerScores[power]
	if !ok {
		zBeta = defaultPowerScore
	}

	pBar := (p1 + p2) / 2
	numerator := zAlpha*math.Sqrt(2*pBar*(1-pBar)) +
		zBeta*math.Sqrt(p1*(1-p1)+p2*(1-p2))
	delta := p2 - p1

	n := (numerator * numerator) / (delta * delta)
	return int(math.Ceil(n))
}
