package detect

import (
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/qsweep-engine/pkg/models"
)

// Batch Quantum Signature Detector
//
// Runs all six feature extractors over a candidate batch and combines them
// into a single calibrated confidence via an adaptively weighted ensemble.
// Strong sub-scores gain weight, weak ones lose it, and broad agreement
// (three or more sub-scores above 0.7) earns a small consensus boost.
//
// The detector is a pure function of its input batch: two calls with the
// identical ordered transaction list produce bit-identical signatures apart
// from the analysis id and timestamp.

// Base ensemble weights per sub-score.
const (
	weightTemporal  = 0.25
	weightFee       = 0.20
	weightAge       = 0.20
	weightGeometric = 0.15
	weightEntropy   = 0.10
	weightAnomaly   = 0.10
)

// Detector computes batch signatures and decides detection.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector with the given configuration.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Analyze gates the batch on the minimum size, and when analyzable computes
// its quantum signature. detected is true when the ensemble confidence
// crosses the configured threshold; sig is nil when the batch was rejected.
func (d *Detector) Analyze(txs []models.Transaction) (sig *models.QuantumSignature, detected bool) {
	if len(txs) < d.cfg.MinimumTransactions {
		return nil, false
	}

	s := models.QuantumSignature{
		AnalysisID:            uuid.NewString(),
		TemporalClustering:    TemporalClusteringScore(txs),
		FeeUniformity:         FeeUniformityScore(txs),
		AddressAgeCorrelation: AddressAgeCorrelationScore(txs),
		GeometricPatternScore: GeometricPatternScore(txs),
		EntropyAnalysis:       EntropyAnalysisScore(txs),
		StatisticalAnomaly:    StatisticalAnomalyScore(txs),
		Timestamp:             time.Now(),
	}
	s.ConfidenceScore = ensembleConfidence(s)
	s.ThreatLevel = models.ClassifyThreatLevel(s.ConfidenceScore)

	return &s, s.ConfidenceScore > d.cfg.ConfidenceThreshold
}

// ensembleConfidence combines the six sub-scores. Weights are adjusted per
// sub-score (x1.5 above 0.8, x1.2 above 0.6, x0.5 below 0.2), renormalized
// to sum to 1, then a 1.1x consensus boost applies when at least three
// sub-scores exceed 0.7.
func ensembleConfidence(sig models.QuantumSignature) float64 {
	scores := sig.SubScores()
	base := []float64{weightTemporal, weightFee, weightAge, weightGeometric, weightEntropy, weightAnomaly}

	adjusted := make([]float64, len(base))
	totalWeight := 0.0
	for i, score := range scores {
		w := base[i] * weightMultiplier(score)
		adjusted[i] = w
		totalWeight += w
	}

	confidence := 0.0
	for i, score := range scores {
		confidence += score * adjusted[i] / totalWeight
	}

	strong := 0
	for _, score := range scores {
		if score > 0.7 {
			strong++
		}
	}
	if strong >= 3 {
		confidence *= 1.1
	}

	return clamp01(confidence)
}

func weightMultiplier(score float64) float64 {
	switch {
	case score > 0.8:
		return 1.5
	case score > 0.6:
		return 1.2
	case score < 0.2:
		return 0.5
	default:
		return 1.0
	}
}
