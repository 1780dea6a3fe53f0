package detect

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Shared numeric helpers for the feature extractors. All extractor math is
// funneled through gonum so the descriptive statistics behave identically
// across sub-scores.

// minBatchSize is the smallest batch any batch-level extractor will score.
// Below this every extractor returns a neutral 0 (insufficient data is a
// defined behavior, not an error).
const minBatchSize = 3

// clamp01 bounds a score to the [0, 1] invariant every score field carries.
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// meanStdDev returns the mean and sample standard deviation of a series.
func meanStdDev(xs []float64) (mean, sd float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	mean = stat.Mean(xs, nil)
	if len(xs) > 1 {
		sd = stat.StdDev(xs, nil)
	}
	return mean, sd
}

// coefficientScore computes clamp(1 - (sd/mean)/divisor, 0, 1), the shared
// "how uniform is this series" shape used by the temporal and fee extractors.
// A zero mean with zero spread counts as perfectly uniform; an empty series
// carries no uniformity signal at all and scores 0.
func coefficientScore(xs []float64, divisor float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean, sd := meanStdDev(xs)
	if mean == 0 {
		if sd == 0 {
			return 1
		}
		return 0
	}
	return clamp01(1 - (sd/math.Abs(mean))/divisor)
}

// normalizedEntropy computes the Shannon entropy of a discrete count
// distribution, normalized by log2(maxSymbols) into [0, 1]. Counts are
// indexed by bin so the summation order is fixed and repeat runs over the
// same batch produce bit-identical scores.
func normalizedEntropy(counts []int, total int, maxSymbols int) float64 {
	if total <= 0 || maxSymbols <= 1 {
		return 0
	}
	entropy := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return clamp01(entropy / math.Log2(float64(maxSymbols)))
}
