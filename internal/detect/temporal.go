package detect

import (
	"math/cmplx"
	"sort"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/rawblock/qsweep-engine/pkg/models"
)

// Temporal Clustering Extractor
//
// A mass sweep driven by a single key-recovery pipeline drains addresses on
// a machine schedule: inter-arrival gaps are tight, clustered, and often
// periodic. Three signals are combined:
//
//   - Gap uniformity: coefficient of variation of inter-arrival gaps
//   - Burst clustering: fraction of transactions inside <=60s timing runs
//   - Periodicity: dominant non-DC component of the gap spectrum (FFT)
//
// Human wallet activity produces none of these; exchange batch payouts
// produce at most one.

// timingRunWindow is the maximum gap (seconds) that keeps two transactions
// in the same timing run.
const timingRunWindow = 60.0

// TemporalClusteringScore scores how machine-scheduled a batch's timing
// looks, in [0, 1]. Batches under minBatchSize score 0.
func TemporalClusteringScore(txs []models.Transaction) float64 {
	if len(txs) < minBatchSize {
		return 0
	}

	gaps := interArrivalGaps(txs)
	if len(gaps) == 0 {
		return 0
	}

	// 1. Gap uniformity: clamp(1 - cv/2, 0, 1)
	cvScore := coefficientScore(gaps, 2)

	// 2. Burst clustering: transactions belonging to runs of consecutive
	// gaps <= 60s, as a fraction of the batch
	clusterScore := clamp01(float64(clusteredTxCount(gaps)) / float64(len(txs)))

	// 3. Periodicity: only meaningful with >= 8 gaps
	periodicityScore := 0.0
	if len(gaps) >= 8 {
		periodicityScore = gapPeriodicity(gaps)
	}

	return clamp01(0.4*cvScore + 0.4*clusterScore + 0.2*periodicityScore)
}

// interArrivalGaps returns the sorted inter-arrival gaps in seconds.
func interArrivalGaps(txs []models.Transaction) []float64 {
	stamps := make([]time.Time, len(txs))
	for i, tx := range txs {
		stamps[i] = tx.Timestamp
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	gaps := make([]float64, 0, len(stamps)-1)
	for i := 1; i < len(stamps); i++ {
		gaps = append(gaps, stamps[i].Sub(stamps[i-1]).Seconds())
	}
	return gaps
}

// clusteredTxCount counts transactions that sit inside a timing run:
// a maximal sequence of consecutive gaps each <= timingRunWindow. A run of
// k gaps covers k+1 transactions; isolated transactions do not count.
func clusteredTxCount(gaps []float64) int {
	clustered := 0
	run := 0
	for _, gap := range gaps {
		if gap <= timingRunWindow {
			run++
			continue
		}
		if run > 0 {
			clustered += run + 1
		}
		run = 0
	}
	if run > 0 {
		clustered += run + 1
	}
	return clustered
}

// gapPeriodicity measures the strongest non-DC spectral component of the gap
// sequence. The real FFT yields the first half of the spectrum; coefficient 0
// (the mean) is excluded. Power is amplitude-normalized by the sequence
// length and compared against mean(gaps)^2, clamped to 1.
func gapPeriodicity(gaps []float64) float64 {
	mean, _ := meanStdDev(gaps)
	if mean <= 0 {
		return 0
	}

	fft := fourier.NewFFT(len(gaps))
	coeffs := fft.Coefficients(nil, gaps)

	n := float64(len(gaps))
	peak := 0.0
	for _, c := range coeffs[1:] {
		amp := cmplx.Abs(c) / n
		if power := amp * amp; power > peak {
			peak = power
		}
	}
	return clamp01(peak / (mean * mean))
}
