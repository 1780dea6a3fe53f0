package detect

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rawblock/qsweep-engine/pkg/models"
)

// memoryStore is an in-memory Store for tests.
type memoryStore struct {
	mu         sync.Mutex
	signatures []models.QuantumSignature
	alerts     []models.QuantumThreatAlert
	incidents  []models.QuantumThreatAlert
	failSaves  bool
}

func (s *memoryStore) SaveSignature(ctx context.Context, sig models.QuantumSignature, txs []models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaves {
		return fmt.Errorf("storage offline")
	}
	s.signatures = append(s.signatures, sig)
	return nil
}

func (s *memoryStore) SaveAlert(ctx context.Context, alert models.QuantumThreatAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaves {
		return fmt.Errorf("storage offline")
	}
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *memoryStore) CreateIncident(ctx context.Context, sig models.QuantumSignature, alert models.QuantumThreatAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaves {
		return fmt.Errorf("storage offline")
	}
	s.incidents = append(s.incidents, alert)
	return nil
}

func (s *memoryStore) counts() (int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.signatures), len(s.alerts), len(s.incidents)
}

func TestMonitor_AnalyzeBatchPersistsEverything(t *testing.T) {
	store := &memoryStore{}
	sink := &captureSink{}
	m := NewMonitor(DefaultConfig(), store, sink, nil)

	sig, alert := m.AnalyzeBatch(context.Background(), sweepBatch(20))
	if sig == nil || alert == nil {
		t.Fatal("Expected signature and alert for the sweep batch")
	}

	// Collaborator calls sit in the side-effect queue until a worker runs.
	m.drainEffects()

	sigs, alerts, incidents := store.counts()
	if sigs != 1 || alerts != 1 || incidents != 1 {
		t.Errorf("Expected 1 signature, 1 alert, 1 incident persisted, got %d/%d/%d", sigs, alerts, incidents)
	}
	for _, event := range []string{"signature_computed", "threat_alert", "incident_created"} {
		if !sink.seen(event) {
			t.Errorf("Expected audit event %s", event)
		}
	}
}

func TestMonitor_AnalyzeBatchHonorsCancelledContext(t *testing.T) {
	store := &memoryStore{}
	m := NewMonitor(DefaultConfig(), store, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sig, alert := m.AnalyzeBatch(ctx, sweepBatch(20))
	if sig != nil || alert != nil {
		t.Fatal("Expected no analysis under a cancelled context")
	}

	m.drainEffects()
	sigs, alerts, incidents := store.counts()
	if sigs != 0 || alerts != 0 || incidents != 0 {
		t.Errorf("Expected nothing persisted, got %d/%d/%d", sigs, alerts, incidents)
	}
}

func TestMonitor_DetectionSurvivesCollaboratorFailure(t *testing.T) {
	store := &memoryStore{failSaves: true}
	m := NewMonitor(DefaultConfig(), store, nil, nil)

	sig, alert := m.AnalyzeBatch(context.Background(), sweepBatch(20))
	m.drainEffects()

	if sig == nil || alert == nil {
		t.Fatal("A failing store must not suppress the analysis result")
	}
	if sig.ThreatLevel != models.ThreatCritical {
		t.Errorf("Expected CRITICAL despite storage failure, got %s", sig.ThreatLevel)
	}
}

func TestMonitor_NoAlertBelowThreshold(t *testing.T) {
	store := &memoryStore{}
	m := NewMonitor(DefaultConfig(), store, nil, nil)

	sig, alert := m.AnalyzeBatch(context.Background(), organicBatch())
	m.drainEffects()

	if sig == nil {
		t.Fatal("Expected a signature for the organic batch")
	}
	if alert != nil {
		t.Errorf("Expected no alert for organic traffic, got confidence %.4f", alert.ConfidenceScore)
	}

	// The signature is still persisted; no alert or incident is.
	sigs, alerts, incidents := store.counts()
	if sigs != 1 || alerts != 0 || incidents != 0 {
		t.Errorf("Expected 1/0/0 persisted, got %d/%d/%d", sigs, alerts, incidents)
	}
}

func TestMonitor_ObserveTriggersBatchAnalysis(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 5
	store := &memoryStore{}
	m := NewMonitor(cfg, store, nil, nil)

	for i, tx := range sweepBatch(5) {
		if _, err := m.Observe(context.Background(), tx); err != nil {
			t.Fatalf("Observe failed on tx %d: %v", i, err)
		}
	}

	// The fifth observation fills the buffer and schedules an async batch.
	m.inFlight.Wait()
	m.drainEffects()

	if sigs, _, _ := store.counts(); sigs != 1 {
		t.Errorf("Expected one batch analysis after filling the buffer, got %d", sigs)
	}

	// The buffer restarted empty: four more observations stay pending.
	for _, tx := range sweepBatch(4) {
		tx.Txid = "again-" + tx.Txid
		if _, err := m.Observe(context.Background(), tx); err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
	}
	m.inFlight.Wait()
	m.drainEffects()
	if sigs, _, _ := store.counts(); sigs != 1 {
		t.Errorf("Expected no second analysis before the buffer refills, got %d", sigs)
	}
}

func TestMonitor_RiskSummary(t *testing.T) {
	m := NewMonitor(DefaultConfig(), nil, nil, nil)

	txs := sweepBatch(20)
	for _, tx := range txs {
		if _, err := m.Observe(context.Background(), tx); err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
	}
	m.AnalyzeBatch(context.Background(), txs)
	m.inFlight.Wait()

	summary := m.RiskSummary(time.Hour)
	if summary.WindowMinutes != 60 {
		t.Errorf("Expected a 60 minute window, got %d", summary.WindowMinutes)
	}
	if summary.MaxConfidence <= 0.75 {
		t.Errorf("Expected the sweep signature to dominate max confidence, got %.4f", summary.MaxConfidence)
	}
	if summary.UniqueAddresses == 0 {
		t.Error("Expected addresses in the summary")
	}
	if len(summary.IndicatorsSeen) == 0 {
		t.Error("Expected indicators in the summary")
	}
}
