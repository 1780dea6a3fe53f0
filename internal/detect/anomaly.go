package detect

import (
	"math"

	"github.com/rawblock/qsweep-engine/pkg/models"
)

// Statistical Anomaly Extractor
//
// Four numeric series are z-scored against their own batch distribution:
// fees, sizes, inter-arrival gaps, input counts. The score per series is the
// fraction of values beyond |z| > 2. A degenerate series (every value
// identical) scores 1.0 outright: zero spread across a whole batch is itself
// the anomaly a sweep produces.

// StatisticalAnomalyScore averages the outlier fractions of the available
// series, in [0, 1]. Batches under minBatchSize score 0.
func StatisticalAnomalyScore(txs []models.Transaction) float64 {
	if len(txs) < minBatchSize {
		return 0
	}

	series := [][]float64{
		featureSeries(txs, func(tx models.Transaction) float64 { return float64(tx.Fee) }),
		featureSeries(txs, func(tx models.Transaction) float64 { return float64(tx.Size) }),
		interArrivalGaps(txs),
		featureSeries(txs, func(tx models.Transaction) float64 { return float64(len(tx.Inputs)) }),
	}

	total := 0.0
	available := 0
	for _, xs := range series {
		if len(xs) < 3 {
			continue
		}
		total += outlierFraction(xs)
		available++
	}
	if available == 0 {
		return 0
	}
	return clamp01(total / float64(available))
}

// outlierFraction returns the fraction of values with |z| > 2, or 1.0 when
// the series has no spread at all.
func outlierFraction(xs []float64) float64 {
	mean, sd := meanStdDev(xs)
	if sd == 0 {
		return 1.0
	}

	outliers := 0
	for _, x := range xs {
		if math.Abs((x-mean)/sd) > 2 {
			outliers++
		}
	}
	return float64(outliers) / float64(len(xs))
}
