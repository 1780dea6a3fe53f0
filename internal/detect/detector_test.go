package detect

import (
	"testing"

	"github.com/rawblock/qsweep-engine/pkg/models"
)

func TestDetector_RejectsSmallBatch(t *testing.T) {
	d := NewDetector(DefaultConfig())

	sig, detected := d.Analyze(sweepBatch(4))
	if sig != nil || detected {
		t.Errorf("Expected a batch below the minimum size to be rejected, got sig=%v detected=%v", sig, detected)
	}
}

func TestDetector_MassSweepScenario(t *testing.T) {
	// Scenario: 20 legacy sweeps on a strict 2-second schedule with one fee
	// policy. Every sub-score saturates and the ensemble must cross the
	// detection threshold decisively.
	d := NewDetector(DefaultConfig())

	sig, detected := d.Analyze(sweepBatch(20))
	if sig == nil {
		t.Fatal("Expected a signature for a full-size batch")
	}
	if !detected {
		t.Errorf("Expected detection, confidence was %.4f", sig.ConfidenceScore)
	}
	if sig.ConfidenceScore <= 0.75 {
		t.Errorf("Expected confidence above 0.75 for a saturated sweep, got %.4f", sig.ConfidenceScore)
	}
	if sig.ThreatLevel != models.ThreatCritical {
		t.Errorf("Expected CRITICAL threat level, got %s", sig.ThreatLevel)
	}
	if sig.TemporalClustering < 0.79 || sig.FeeUniformity < 0.9 || sig.AddressAgeCorrelation != 1.0 {
		t.Errorf("Unexpected sub-score profile: temporal=%.4f fee=%.4f age=%.4f",
			sig.TemporalClustering, sig.FeeUniformity, sig.AddressAgeCorrelation)
	}
}

func TestDetector_OrganicTrafficScenario(t *testing.T) {
	// Scenario: ordinary wallet traffic spread over hours. The ensemble must
	// stay in MINIMAL territory, well clear of the alert threshold.
	d := NewDetector(DefaultConfig())

	sig, detected := d.Analyze(organicBatch())
	if sig == nil {
		t.Fatal("Expected a signature: organic batches are analyzable, just not threats")
	}
	if detected {
		t.Errorf("Expected no detection for organic traffic, confidence was %.4f", sig.ConfidenceScore)
	}
	if sig.ConfidenceScore >= 0.25 {
		t.Errorf("Expected confidence below 0.25 for organic traffic, got %.4f", sig.ConfidenceScore)
	}
	if sig.ThreatLevel != models.ThreatMinimal {
		t.Errorf("Expected MINIMAL threat level, got %s", sig.ThreatLevel)
	}
}

func TestDetector_Deterministic(t *testing.T) {
	// Repeated analyses of the identical ordered batch must agree bit-for-bit
	// on every sub-score and the ensemble confidence. Many runs, because the
	// histogram and entropy terms once floated on map iteration order and a
	// single repeat could miss it.
	d := NewDetector(DefaultConfig())
	txs := organicBatch()

	first, _ := d.Analyze(txs)
	if first == nil {
		t.Fatal("Expected a signature from the first run")
	}

	a := first.SubScores()
	for run := 0; run < 50; run++ {
		next, _ := d.Analyze(txs)
		if next == nil {
			t.Fatalf("Expected a signature from run %d", run)
		}
		b := next.SubScores()
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("Sub-score %d differs on run %d: %v vs %v", i, run, a[i], b[i])
			}
		}
		if first.ConfidenceScore != next.ConfidenceScore {
			t.Fatalf("Confidence differs on run %d: %v vs %v", run, first.ConfidenceScore, next.ConfidenceScore)
		}
		if first.AnalysisID == next.AnalysisID {
			t.Error("Each analysis must get a fresh id")
		}
	}
}

func TestEnsembleConfidence_WeightAdaptation(t *testing.T) {
	// One saturated sub-score among weak ones: the 1.5x boost on the strong
	// signal must pull confidence above the plain weighted mean.
	sig := models.QuantumSignature{
		TemporalClustering:    0.95,
		FeeUniformity:         0.3,
		AddressAgeCorrelation: 0.3,
		GeometricPatternScore: 0.3,
		EntropyAnalysis:       0.3,
		StatisticalAnomaly:    0.3,
	}

	got := ensembleConfidence(sig)
	plain := 0.25*0.95 + 0.75*0.3
	if got <= plain {
		t.Errorf("Expected adaptive weighting to exceed the plain mean %.4f, got %.4f", plain, got)
	}
	if got > 1 {
		t.Errorf("Confidence escaped the unit interval: %v", got)
	}
}

func TestEnsembleConfidence_ConsensusBoost(t *testing.T) {
	// Three sub-scores above 0.7 trigger the 1.1x consensus boost.
	base := models.QuantumSignature{
		TemporalClustering:    0.75,
		FeeUniformity:         0.75,
		AddressAgeCorrelation: 0.65,
		GeometricPatternScore: 0.5,
		EntropyAnalysis:       0.5,
		StatisticalAnomaly:    0.5,
	}
	boosted := base
	boosted.AddressAgeCorrelation = 0.71

	without := ensembleConfidence(base)
	with := ensembleConfidence(boosted)

	// The third strong score adds only 0.06 of raw signal, so the bulk of
	// the increase has to come from the consensus multiplier.
	if with <= without {
		t.Errorf("Expected consensus boost to raise confidence: %.4f -> %.4f", without, with)
	}
	if with < without*1.05 {
		t.Errorf("Consensus boost too small: %.4f -> %.4f", without, with)
	}
}
