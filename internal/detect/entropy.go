package detect

import (
	"hash/fnv"
	"math"
	"sort"

	"github.com/rawblock/qsweep-engine/pkg/models"
)

// Batch Entropy Extractor
//
// Organic transactions scatter across the feature space; generated ones
// collapse into a few repeated shapes. Each transaction is reduced to a
// five-dimensional fingerprint and the per-dimension Shannon entropy of the
// batch is measured. Low entropy means the batch was stamped out by an
// algorithm, so the score is inverted: 1 - mean normalized entropy.
//
// Fingerprint dimensions:
//
//	fee mod 1000, size mod 1000, input count, output count, hash(txid) mod 1000

// EntropyAnalysisScore scores algorithmic generation likelihood, in [0, 1].
// Batches under minBatchSize score 0.
func EntropyAnalysisScore(txs []models.Transaction) float64 {
	if len(txs) < minBatchSize {
		return 0
	}

	const dims = 5
	counts := make([]map[int64]int, dims)
	for d := range counts {
		counts[d] = make(map[int64]int)
	}

	for _, tx := range txs {
		vector := [dims]int64{
			tx.Fee % 1000,
			int64(tx.Size % 1000),
			int64(len(tx.Inputs)),
			int64(len(tx.Outputs)),
			txidFingerprint(tx.Txid),
		}
		for d, v := range vector {
			counts[d][v]++
		}
	}

	// Normalize each dimension by log2(batch size): entropy is maximal when
	// every transaction lands on a distinct symbol. Symbols are summed in
	// sorted order so identical batches always score bit-identically.
	maxBits := math.Log2(float64(len(txs)))
	total := 0.0
	for d := range counts {
		symbols := make([]int64, 0, len(counts[d]))
		for v := range counts[d] {
			symbols = append(symbols, v)
		}
		sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })

		entropy := 0.0
		for _, v := range symbols {
			p := float64(counts[d][v]) / float64(len(txs))
			entropy -= p * math.Log2(p)
		}
		total += clamp01(entropy / maxBits)
	}

	return clamp01(1 - total/dims)
}

// txidFingerprint folds a transaction id into the 0..999 symbol space.
func txidFingerprint(txid string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(txid))
	return int64(h.Sum64() % 1000)
}
