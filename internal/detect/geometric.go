package detect

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/rawblock/qsweep-engine/pkg/models"
)

// Geometric Pattern Extractor
//
// Key-enumeration tooling tends to walk its target space in a mathematical
// order, and that order leaks into the batch: fees, sizes and I/O counts
// laid out as arithmetic or geometric progressions, Fibonacci-like growth,
// or a clean power-law rank distribution. Each candidate feature series is
// tested against all four progressions and the strongest match wins; the
// overall score is the mean across available features.

// GeometricPatternScore scores algorithmic ordering across a batch's numeric
// features, in [0, 1]. Batches under minBatchSize score 0.
func GeometricPatternScore(txs []models.Transaction) float64 {
	if len(txs) < minBatchSize {
		return 0
	}

	features := [][]float64{
		featureSeries(txs, func(tx models.Transaction) float64 { return float64(tx.Fee) }),
		featureSeries(txs, func(tx models.Transaction) float64 { return float64(tx.Size) }),
		featureSeries(txs, func(tx models.Transaction) float64 { return float64(len(tx.Inputs)) }),
		featureSeries(txs, func(tx models.Transaction) float64 { return float64(len(tx.Outputs)) }),
	}

	total := 0.0
	available := 0
	for _, series := range features {
		if len(series) < 3 {
			continue
		}
		best := arithmeticProgressionScore(series)
		if s := geometricProgressionScore(series); s > best {
			best = s
		}
		if s := fibonacciScore(series); s > best {
			best = s
		}
		if s := powerLawScore(series); s > best {
			best = s
		}
		total += best
		available++
	}
	if available == 0 {
		return 0
	}
	return clamp01(total / float64(available))
}

func featureSeries(txs []models.Transaction, extract func(models.Transaction) float64) []float64 {
	series := make([]float64, len(txs))
	for i, tx := range txs {
		series[i] = extract(tx)
	}
	return series
}

// arithmeticProgressionScore checks how constant the consecutive differences
// are: clamp(1 - stddev(diffs)/|mean(diffs)|, 0, 1). A constant series has
// zero diffs and scores 1.
func arithmeticProgressionScore(series []float64) float64 {
	diffs := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		diffs = append(diffs, series[i]-series[i-1])
	}
	return coefficientScore(diffs, 1)
}

// geometricProgressionScore applies the same uniformity test to consecutive
// ratios over the non-zero values of the series.
func geometricProgressionScore(series []float64) float64 {
	nonZero := make([]float64, 0, len(series))
	for _, v := range series {
		if v != 0 {
			nonZero = append(nonZero, v)
		}
	}
	if len(nonZero) < 3 {
		return 0
	}

	ratios := make([]float64, 0, len(nonZero)-1)
	for i := 1; i < len(nonZero); i++ {
		ratios = append(ratios, nonZero[i]/nonZero[i-1])
	}
	return coefficientScore(ratios, 1)
}

// fibonacciScore measures how closely each element matches the sum of its
// two predecessors, averaged over the series tail.
func fibonacciScore(series []float64) float64 {
	if len(series) < 3 {
		return 0
	}

	total := 0.0
	terms := 0
	for i := 2; i < len(series); i++ {
		expected := series[i-2] + series[i-1]
		if expected == 0 {
			if series[i] == 0 {
				total += 1
			}
			terms++
			continue
		}
		total += math.Max(0, 1-math.Abs(series[i]-expected)/math.Abs(expected))
		terms++
	}
	return clamp01(total / float64(terms))
}

// powerLawCorrelationGate is the minimum log-log linearity before the
// power-law score counts. Any descending sort is negatively correlated with
// rank, so weak correlations are treated as noise; a genuine Zipf-like
// distribution is near-perfectly linear in log-log space.
const powerLawCorrelationGate = -0.95

// powerLawScore fits log(value) against log(rank) over the positive values
// sorted descending and returns -corr when the fit is strong enough.
func powerLawScore(series []float64) float64 {
	positive := make([]float64, 0, len(series))
	for _, v := range series {
		if v > 0 {
			positive = append(positive, v)
		}
	}
	if len(positive) < 3 {
		return 0
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(positive)))

	logRanks := make([]float64, len(positive))
	logValues := make([]float64, len(positive))
	for i, v := range positive {
		logRanks[i] = math.Log(float64(i + 1))
		logValues[i] = math.Log(v)
	}

	corr := stat.Correlation(logRanks, logValues, nil)
	if math.IsNaN(corr) || corr > powerLawCorrelationGate {
		return 0
	}
	return clamp01(-corr)
}
