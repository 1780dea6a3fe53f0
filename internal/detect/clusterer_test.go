package detect

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rawblock/qsweep-engine/pkg/models"
)

// patternAt builds one history entry with a fixed quantum score.
func patternAt(txid string, at time.Time, score float64) models.TransactionPattern {
	return models.TransactionPattern{
		Tx: models.Transaction{
			Txid:      txid,
			Timestamp: at,
			Inputs:    []models.TxIn{{Address: "1Victim" + txid, Value: 100000}},
			Outputs:   []models.TxOut{{Address: "dest" + txid, Value: 99000}},
		},
		QuantumScore:      score,
		RiskLevel:         models.ClassifyRiskLevel(score),
		QuantumIndicators: []string{"systematic_targeting"},
		ObservedAt:        at,
	}
}

func TestClusterer_FlagsCoordinatedBurst(t *testing.T) {
	// Scenario: six high-scoring transactions a few seconds apart. One
	// cluster, mean score 0.8, severity HIGH.
	c := NewClusterer(DefaultConfig())
	now := testEpoch.Add(10 * time.Minute)

	history := make([]models.TransactionPattern, 6)
	for i := range history {
		history[i] = patternAt(fmt.Sprintf("burst-%d", i), testEpoch.Add(time.Duration(i)*5*time.Second), 0.8)
	}

	flagged := c.Scan(history, now)
	if len(flagged) != 1 {
		t.Fatalf("Expected exactly one coordinated pattern, got %d", len(flagged))
	}

	p := flagged[0]
	if p.PatternType != PatternTypeCoordinatedQuantum {
		t.Errorf("Unexpected pattern type %q", p.PatternType)
	}
	if math.Abs(p.Confidence-0.8) > 1e-9 {
		t.Errorf("Expected cluster confidence 0.8, got %.4f", p.Confidence)
	}
	if p.Severity != models.SeverityHigh {
		t.Errorf("Expected HIGH severity for mean score 0.8, got %s", p.Severity)
	}
	if len(p.TransactionIDs) != 6 {
		t.Errorf("Expected all 6 transactions in the cluster, got %d", len(p.TransactionIDs))
	}
	if len(p.AffectedAddresses) != 6 {
		t.Errorf("Expected 6 distinct affected addresses, got %d", len(p.AffectedAddresses))
	}
	if len(p.Mitigations) == 0 {
		t.Error("Expected mitigations on a coordinated pattern")
	}

	// The pattern is now tracked as active.
	if active := c.Active(); len(active) != 1 || active[0].PatternID != p.PatternID {
		t.Errorf("Expected the flagged pattern to be tracked, got %v", active)
	}
}

func TestClusterer_IgnoresSpreadOutTraffic(t *testing.T) {
	// Same scores, but 10 minutes between transactions: every timing
	// cluster is a singleton and nothing is flagged.
	c := NewClusterer(DefaultConfig())
	now := testEpoch.Add(2 * time.Hour)

	history := make([]models.TransactionPattern, 6)
	for i := range history {
		history[i] = patternAt(fmt.Sprintf("spread-%d", i), now.Add(-time.Duration(60-i*10)*time.Minute), 0.8)
	}

	if flagged := c.Scan(history, now); len(flagged) != 0 {
		t.Errorf("Expected no patterns for spread-out traffic, got %d", len(flagged))
	}
}

func TestClusterer_RequiresMinimumClusterSize(t *testing.T) {
	// Four tightly packed transactions are below the default minimum of 5.
	c := NewClusterer(DefaultConfig())
	now := testEpoch.Add(5 * time.Minute)

	history := make([]models.TransactionPattern, 4)
	for i := range history {
		history[i] = patternAt(fmt.Sprintf("small-%d", i), testEpoch.Add(time.Duration(i)*time.Second), 0.9)
	}

	if flagged := c.Scan(history, now); len(flagged) != 0 {
		t.Errorf("Expected undersized clusters to be ignored, got %d", len(flagged))
	}
}

func TestClusterer_RequiresHighMeanScore(t *testing.T) {
	// A big tight cluster of low-scoring transactions stays unflagged: the
	// mean score 0.3 does not clear the 0.5 bar.
	c := NewClusterer(DefaultConfig())
	now := testEpoch.Add(5 * time.Minute)

	history := make([]models.TransactionPattern, 8)
	for i := range history {
		history[i] = patternAt(fmt.Sprintf("calm-%d", i), testEpoch.Add(time.Duration(i)*time.Second), 0.3)
	}

	if flagged := c.Scan(history, now); len(flagged) != 0 {
		t.Errorf("Expected low-scoring clusters to be ignored, got %d", len(flagged))
	}
}

func TestClusterer_RestrictsToAnalysisWindow(t *testing.T) {
	// A perfect burst that happened an hour ago is outside the 15-minute
	// analysis window and must not be flagged now.
	c := NewClusterer(DefaultConfig())
	burstAt := testEpoch
	now := testEpoch.Add(time.Hour)

	history := make([]models.TransactionPattern, 6)
	for i := range history {
		history[i] = patternAt(fmt.Sprintf("old-%d", i), burstAt.Add(time.Duration(i)*5*time.Second), 0.8)
	}

	if flagged := c.Scan(history, now); len(flagged) != 0 {
		t.Errorf("Expected stale bursts outside the window to be ignored, got %d", len(flagged))
	}
}
