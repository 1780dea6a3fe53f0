package detect

import (
	"math"

	"github.com/rawblock/qsweep-engine/pkg/models"
)

// Fee Uniformity Extractor
//
// Sweep tooling signs thousands of transactions with one fee policy, so the
// fee surface of an attack batch is abnormally flat: identical absolute
// fees, identical fee rates, and a degenerate fee histogram. Four signals:
//
//   - Fee CV:        clamp(1 - stddev/mean) over positive fees
//   - Fee-rate CV:   the same shape over fee/size
//   - Exact matches: 1 - unique/total fee values
//   - Histogram:     1 - normalized Shannon entropy over <=10 fee bins
//
// Organic mempool traffic spreads fees across estimation strategies and
// confirmation targets, keeping all four signals low.

// feeHistogramBins caps the fee histogram resolution.
const feeHistogramBins = 10

// FeeUniformityScore scores how uniform a batch's fee surface is, in [0, 1].
// Batches under minBatchSize score 0.
func FeeUniformityScore(txs []models.Transaction) float64 {
	if len(txs) < minBatchSize {
		return 0
	}

	fees := make([]float64, 0, len(txs))
	rates := make([]float64, 0, len(txs))
	for _, tx := range txs {
		if tx.Fee > 0 {
			fees = append(fees, float64(tx.Fee))
		}
		if rate := tx.FeeRate(); rate > 0 {
			rates = append(rates, rate)
		}
	}
	if len(fees) == 0 {
		return 0
	}

	cvScore := coefficientScore(fees, 1)
	rateScore := coefficientScore(rates, 1)
	exactMatchRatio := 1 - float64(uniqueCount(fees))/float64(len(fees))

	entropyScore := 0.0
	if len(fees) >= 4 {
		entropyScore = 1 - feeHistogramEntropy(fees)
	}

	return clamp01(0.3*cvScore + 0.3*rateScore + 0.2*exactMatchRatio + 0.2*entropyScore)
}

func uniqueCount(xs []float64) int {
	seen := make(map[float64]bool, len(xs))
	for _, x := range xs {
		seen[x] = true
	}
	return len(seen)
}

// feeHistogramEntropy buckets fees into at most feeHistogramBins equal-width
// bins and returns the Shannon entropy normalized by log2(binCount).
// A batch whose fees collapse into one bin has entropy 0.
func feeHistogramEntropy(fees []float64) float64 {
	minFee, maxFee := fees[0], fees[0]
	for _, f := range fees[1:] {
		if f < minFee {
			minFee = f
		}
		if f > maxFee {
			maxFee = f
		}
	}
	if maxFee == minFee {
		return 0
	}

	width := (maxFee - minFee) / float64(feeHistogramBins)
	counts := make([]int, feeHistogramBins)
	for _, f := range fees {
		bin := int(math.Floor((f - minFee) / width))
		if bin >= feeHistogramBins {
			bin = feeHistogramBins - 1
		}
		counts[bin]++
	}
	return normalizedEntropy(counts, len(fees), feeHistogramBins)
}
