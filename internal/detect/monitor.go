package detect

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/rawblock/qsweep-engine/pkg/models"
)

// Monitor is the engine's concurrency shell. The collector side (Observe)
// and the analysis side (batch detection, cluster scans, cleanup) run as
// independent tasks sharing only the analyzer's rolling history and the
// pending batch buffer; batch analysis always operates on an immutable
// slice copy and never blocks new transaction scoring.
//
// Collaborator calls (persistence, audit side effects) go through a bounded
// work queue consumed by a single worker, so failure and back-pressure are
// observable instead of silently dropped. Collaborator failure is logged
// and deliberately non-fatal to detection.

// Tick intervals for the background tasks.
const (
	clusterScanInterval = 30 * time.Second
	cleanupInterval     = 5 * time.Minute
	sideEffectQueueCap  = 256
)

// Monitor coordinates the detection engine.
type Monitor struct {
	cfg        Config
	analyzer   *Analyzer
	clusterer  *Clusterer
	detector   *Detector
	dispatcher *AlertDispatcher
	store      Store
	audit      AuditSink

	mu      sync.Mutex
	pending []models.Transaction

	sigMu      sync.Mutex
	signatures []models.QuantumSignature

	effects  chan func(context.Context)
	inFlight sync.WaitGroup
}

// NewMonitor wires the engine together. store, audit and dispatcher may be
// nil; detection runs unchanged without them.
func NewMonitor(cfg Config, store Store, audit AuditSink, dispatcher *AlertDispatcher) *Monitor {
	return &Monitor{
		cfg:        cfg,
		analyzer:   NewAnalyzer(cfg, audit),
		clusterer:  NewClusterer(cfg),
		detector:   NewDetector(cfg),
		dispatcher: dispatcher,
		store:      store,
		audit:      audit,
		effects:    make(chan func(context.Context), sideEffectQueueCap),
	}
}

// Analyzer exposes the pattern analyzer for profile queries.
func (m *Monitor) Analyzer() *Analyzer { return m.analyzer }

// ActivePatterns returns the clusterer's currently tracked attack patterns.
func (m *Monitor) ActivePatterns() []models.AttackPattern { return m.clusterer.Active() }

// Observe scores one incoming transaction and buffers it toward the next
// batch analysis. When the buffer reaches the configured batch size, a
// batch analysis is scheduled without blocking the caller.
func (m *Monitor) Observe(ctx context.Context, tx models.Transaction) (models.TransactionPattern, error) {
	pattern, err := m.analyzer.Observe(tx)
	if err != nil {
		return models.TransactionPattern{}, err
	}

	m.mu.Lock()
	m.pending = append(m.pending, tx)
	var batch []models.Transaction
	if len(m.pending) >= m.cfg.BatchSize {
		batch = m.pending
		m.pending = nil
	}
	m.mu.Unlock()

	if batch != nil {
		m.inFlight.Add(1)
		go func() {
			defer m.inFlight.Done()
			m.AnalyzeBatch(ctx, batch)
		}()
	}
	return pattern, nil
}

// AnalyzeBatch computes a quantum signature for an explicit candidate batch
// and, on detection, builds the threat alert. The signature is always
// returned when the batch meets the minimum size, even if every
// collaborator fails; the alert is nil when nothing was detected. A caller
// context that is already cancelled skips the analysis entirely; queued
// persistence effects run under the worker's context, not the caller's.
func (m *Monitor) AnalyzeBatch(ctx context.Context, txs []models.Transaction) (*models.QuantumSignature, *models.QuantumThreatAlert) {
	if ctx.Err() != nil {
		return nil, nil
	}

	batch := make([]models.Transaction, len(txs))
	copy(batch, txs)

	sig, detected := m.detector.Analyze(batch)
	if sig == nil {
		return nil, nil
	}

	m.recordSignature(*sig)
	if m.audit != nil {
		m.audit.LogEvent("signature_computed", sig.ThreatLevel.String(), map[string]any{
			"analysisId": sig.AnalysisID,
			"confidence": sig.ConfidenceScore,
			"batchSize":  len(batch),
		})
	}
	m.scheduleEffect(func(ctx context.Context) {
		if m.store == nil {
			return
		}
		if err := m.store.SaveSignature(ctx, *sig, batch); err != nil {
			log.Printf("[Monitor] Failed to persist signature %s: %v", sig.AnalysisID, err)
		}
	})

	if !detected {
		return sig, nil
	}

	alert := BuildAlert(*sig, batch)
	if m.audit != nil {
		m.audit.LogEvent("threat_alert", alert.ThreatLevel.String(), map[string]any{
			"alertId":      alert.AlertID,
			"attackVector": alert.AttackVector.String(),
			"confidence":   alert.ConfidenceScore,
		})
	}
	if m.dispatcher != nil {
		m.dispatcher.Dispatch(alert)
	}
	m.scheduleEffect(func(ctx context.Context) {
		if m.store == nil {
			return
		}
		if err := m.store.SaveAlert(ctx, alert); err != nil {
			log.Printf("[Monitor] Failed to persist alert %s: %v", alert.AlertID, err)
		}
	})

	if RequiresIncident(*sig) {
		if m.audit != nil {
			m.audit.LogEvent("incident_created", alert.IncidentClassification.String(), map[string]any{
				"alertId":    alert.AlertID,
				"analysisId": sig.AnalysisID,
			})
		}
		m.scheduleEffect(func(ctx context.Context) {
			if m.store == nil {
				return
			}
			if err := m.store.CreateIncident(ctx, *sig, alert); err != nil {
				log.Printf("[Monitor] Failed to create incident for %s: %v", alert.AlertID, err)
			}
		})
	}

	return sig, &alert
}

// scheduleEffect enqueues a collaborator call without blocking detection.
// A full queue drops the effect with a log line rather than stalling.
func (m *Monitor) scheduleEffect(fn func(context.Context)) {
	select {
	case m.effects <- fn:
	default:
		log.Printf("[Monitor] Side-effect queue full (%d), dropping collaborator call", sideEffectQueueCap)
	}
}

// Run drives the background tasks until the context is cancelled: the
// cluster-scan ticker, the retention cleanup ticker, and the side-effect
// worker. In-flight batch analyses are allowed to finish on shutdown.
func (m *Monitor) Run(ctx context.Context) {
	log.Printf("[Monitor] Starting quantum sweep monitor (batch=%d, threshold=%.2f)",
		m.cfg.BatchSize, m.cfg.ConfidenceThreshold)

	clusterTicker := time.NewTicker(clusterScanInterval)
	defer clusterTicker.Stop()
	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Monitor] Stopping: waiting for in-flight batch analyses...")
			m.inFlight.Wait()
			m.drainEffects()
			return

		case fn := <-m.effects:
			fn(ctx)

		case <-clusterTicker.C:
			flagged := m.clusterer.Scan(m.analyzer.Snapshot(), time.Now())
			for _, p := range flagged {
				log.Printf("[Monitor] Coordinated attack pattern %s: %d txs, confidence %.2f, severity %s",
					p.PatternID, len(p.TransactionIDs), p.Confidence, p.Severity)
				if m.audit != nil {
					m.audit.LogEvent("attack_pattern", p.Severity.String(), map[string]any{
						"patternId":  p.PatternID,
						"confidence": p.Confidence,
						"addresses":  len(p.AffectedAddresses),
					})
				}
			}

		case <-cleanupTicker.C:
			removed := m.analyzer.PruneBefore(time.Now().Add(-m.cfg.Retention))
			if removed > 0 {
				log.Printf("[Monitor] Pruned %d expired patterns from history", removed)
			}
		}
	}
}

// drainEffects flushes queued collaborator calls on shutdown with a short
// deadline so persistence of already-computed results is not lost.
func (m *Monitor) drainEffects() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		select {
		case fn := <-m.effects:
			fn(ctx)
		default:
			return
		}
	}
}

func (m *Monitor) recordSignature(sig models.QuantumSignature) {
	m.sigMu.Lock()
	defer m.sigMu.Unlock()
	m.signatures = append(m.signatures, sig)
	if len(m.signatures) > 1000 {
		m.signatures = m.signatures[len(m.signatures)-1000:]
	}
}

// RiskSummary aggregates recent engine state over the given window.
func (m *Monitor) RiskSummary(window time.Duration) models.RiskSummary {
	if window <= 0 {
		window = time.Hour
	}
	cutoff := time.Now().Add(-window)

	summary := models.RiskSummary{
		WindowMinutes:        int(window / time.Minute),
		ActiveAttackPatterns: len(m.clusterer.Active()),
	}

	m.sigMu.Lock()
	count := 0
	for _, sig := range m.signatures {
		if sig.Timestamp.Before(cutoff) {
			continue
		}
		summary.AvgConfidence += sig.ConfidenceScore
		if sig.ConfidenceScore > summary.MaxConfidence {
			summary.MaxConfidence = sig.ConfidenceScore
		}
		count++
	}
	m.sigMu.Unlock()
	if count > 0 {
		summary.AvgConfidence /= float64(count)
	}

	indicators := make(map[string]bool)
	addresses := make(map[string]bool)
	for _, p := range m.analyzer.Snapshot() {
		if p.ObservedAt.Before(cutoff) {
			continue
		}
		if p.RiskLevel >= models.RiskHigh {
			summary.HighRiskCount++
		}
		for _, tag := range p.QuantumIndicators {
			indicators[tag] = true
		}
		for _, tag := range p.TimingIndicators {
			indicators[tag] = true
		}
		for _, tag := range p.ValueIndicators {
			indicators[tag] = true
		}
		for _, tag := range p.RelationshipIndicators {
			indicators[tag] = true
		}
		for _, in := range p.Tx.Inputs {
			if in.Address != "" {
				addresses[in.Address] = true
			}
		}
		for _, out := range p.Tx.Outputs {
			if out.Address != "" {
				addresses[out.Address] = true
			}
		}
	}
	summary.UniqueAddresses = len(addresses)
	summary.IndicatorsSeen = sortedKeys(indicators)

	return summary
}
