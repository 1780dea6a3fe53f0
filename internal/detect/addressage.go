package detect

import (
	"math"

	"github.com/rawblock/qsweep-engine/pkg/models"
)

// Address-Age Correlation Extractor
//
// A quantum sweep targets addresses whose public keys are already exposed
// on-chain, which in practice means the oldest script types: P2PKH and raw
// P2PK. A batch that is overwhelmingly legacy-typed is being selected by
// script vulnerability, not by organic payment flow.

// AddressAgeCorrelationScore scores the legacy concentration of a batch,
// in [0, 1]. Batches under minBatchSize score 0.
func AddressAgeCorrelationScore(txs []models.Transaction) float64 {
	if len(txs) < minBatchSize {
		return 0
	}

	legacy := 0
	for _, tx := range txs {
		if tx.IsLegacy() {
			legacy++
		}
	}

	legacyRatio := float64(legacy) / float64(len(txs))

	// Systematic selection amplifier: any legacy presence scaled 1.5x
	systematicScore := 0.0
	if legacy > 0 {
		systematicScore = math.Min(1, legacyRatio*1.5)
	}

	return clamp01(math.Min(1, legacyRatio*0.7+systematicScore*0.3))
}
