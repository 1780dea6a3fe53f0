package detect

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/rawblock/qsweep-engine/pkg/models"
)

// Per-Transaction Pattern Analyzer
//
// Every observed transaction is scored across four indicator families:
//
//   - quantum:      weak or reused ECDSA nonces, systematic legacy targeting
//   - timing:       burst arrival, machine-regular intervals
//   - value:        dust probes, sweep shapes, value clustering
//   - relationship: address reuse and risky counterparties
//
// The analyzer owns the bounded rolling history and the address profile map;
// both are explicit state behind a mutex, never package-level globals.
// Patterns are immutable once created: cleanup removes entries, nothing
// mutates them.

// nonceLookback bounds the repeated-nonce scan to the most recent scored
// transactions held in memory. Production-scale deduplication against
// persistent storage is a storage-layer concern, not the analyzer's.
const nonceLookback = 100

// weakNonceMargin is 2^240: an R value below it, or within it of the curve
// order, points at a biased or broken nonce generator.
var weakNonceMargin = new(big.Int).Lsh(big.NewInt(1), 240)

// Analyzer scores individual transactions and maintains the rolling history
// used to contextualize new arrivals.
type Analyzer struct {
	cfg   Config
	audit AuditSink

	mu       sync.Mutex
	history  []models.TransactionPattern
	profiles map[string]*models.AddressProfile
}

// NewAnalyzer creates a pattern analyzer. The audit sink may be nil.
func NewAnalyzer(cfg Config, audit AuditSink) *Analyzer {
	return &Analyzer{
		cfg:      cfg,
		audit:    audit,
		profiles: make(map[string]*models.AddressProfile),
	}
}

// Observe validates, scores and records one transaction. Malformed
// transactions are rejected and never enter the history.
func (a *Analyzer) Observe(tx models.Transaction) (models.TransactionPattern, error) {
	if err := tx.Validate(); err != nil {
		return models.TransactionPattern{}, fmt.Errorf("rejected at ingest: %w", err)
	}

	a.mu.Lock()

	quantum := a.quantumIndicators(tx)
	timing := a.timingIndicators(tx)
	value := a.valueIndicators(tx)
	relationship := a.updateProfiles(tx, quantum)

	score := combineIndicatorScore(quantum, timing, value, relationship)

	pattern := models.TransactionPattern{
		Tx:                     tx,
		QuantumScore:           score,
		RiskLevel:              models.ClassifyRiskLevel(score),
		QuantumIndicators:      quantum,
		TimingIndicators:       timing,
		ValueIndicators:        value,
		RelationshipIndicators: relationship,
		ObservedAt:             time.Now(),
	}

	a.history = append(a.history, pattern)
	if len(a.history) > a.cfg.MaxHistorySize {
		a.history = a.history[len(a.history)-a.cfg.MaxHistorySize:]
	}
	a.mu.Unlock()

	if pattern.RiskLevel >= models.RiskHigh && a.audit != nil {
		a.audit.LogEvent("high_risk_pattern", pattern.RiskLevel.String(), map[string]any{
			"txid":         tx.Txid,
			"quantumScore": pattern.QuantumScore,
			"indicators":   pattern.QuantumIndicators,
		})
	}

	return pattern, nil
}

// combineIndicatorScore weights the four families 0.4/0.3/0.2/0.1, each
// capped at three indicators before weighting.
func combineIndicatorScore(quantum, timing, value, relationship []string) float64 {
	cap3 := func(tags []string) float64 {
		return math.Min(1, float64(len(tags))/3)
	}
	score := 0.4*cap3(quantum) + 0.3*cap3(timing) + 0.2*cap3(value) + 0.1*cap3(relationship)
	if score > 1 {
		score = 1
	}
	return score
}

// quantumIndicators flags direct evidence of key-recovery activity.
// Caller holds a.mu.
func (a *Analyzer) quantumIndicators(tx models.Transaction) []string {
	var tags []string

	for _, in := range tx.Inputs {
		if in.SignatureR == "" {
			continue
		}
		if isWeakRValue(in.SignatureR) {
			tags = append(tags, "unusual_r_value")
			break
		}
	}

	if a.hasRepeatedNonce(tx) {
		tags = append(tags, "repeated_nonce")
	}

	legacyInputs := 0
	for _, in := range tx.Inputs {
		if strings.HasPrefix(in.Address, "1") {
			legacyInputs++
		}
	}
	if len(tx.Inputs) > 0 && float64(legacyInputs)/float64(len(tx.Inputs)) > 0.8 {
		tags = append(tags, "systematic_targeting")
	}

	return tags
}

// isWeakRValue checks an ECDSA R value against the secp256k1 order: values
// below 2^240, or within 2^240 of the order, indicate degenerate randomness.
func isWeakRValue(rHex string) bool {
	r, ok := new(big.Int).SetString(strings.TrimPrefix(rHex, "0x"), 16)
	if !ok || r.Sign() <= 0 {
		return false
	}
	if r.Cmp(weakNonceMargin) < 0 {
		return true
	}
	upperBound := new(big.Int).Sub(btcec.S256().N, weakNonceMargin)
	return r.Cmp(upperBound) > 0
}

// hasRepeatedNonce scans the recent history for an R value reused by a
// transaction sharing an input address with this one. Nonce reuse across
// the same key leaks the private key classically; seeing it batch-wide is
// the strongest single quantum-recovery indicator available.
func (a *Analyzer) hasRepeatedNonce(tx models.Transaction) bool {
	currentR := make(map[string]bool)
	currentAddrs := make(map[string]bool)
	for _, in := range tx.Inputs {
		if in.SignatureR != "" {
			currentR[in.SignatureR] = true
		}
		if in.Address != "" {
			currentAddrs[in.Address] = true
		}
	}
	if len(currentR) == 0 {
		return false
	}

	start := len(a.history) - nonceLookback
	if start < 0 {
		start = 0
	}
	for _, prev := range a.history[start:] {
		sharesAddress := false
		for _, in := range prev.Tx.Inputs {
			if currentAddrs[in.Address] {
				sharesAddress = true
				break
			}
		}
		if !sharesAddress {
			continue
		}
		for _, in := range prev.Tx.Inputs {
			if in.SignatureR != "" && currentR[in.SignatureR] {
				return true
			}
		}
	}
	return false
}

// timingIndicators flags machine-driven arrival behavior against the recent
// history. Caller holds a.mu.
func (a *Analyzer) timingIndicators(tx models.Transaction) []string {
	var tags []string

	recent := 0
	for _, prev := range a.history {
		if tx.Timestamp.Sub(prev.Tx.Timestamp) <= 30*time.Second && !prev.Tx.Timestamp.After(tx.Timestamp) {
			recent++
		}
	}
	if recent+1 > a.cfg.BurstThreshold {
		tags = append(tags, "burst_activity")
	}

	if a.hasPredictableIntervals(tx) {
		tags = append(tags, "predictable_intervals")
	}

	return tags
}

// hasPredictableIntervals checks whether the last 10 transactions arrived at
// machine-regular intervals (gap CV < 0.1).
func (a *Analyzer) hasPredictableIntervals(tx models.Transaction) bool {
	start := len(a.history) - 9
	if start < 0 {
		start = 0
	}
	stamps := make([]time.Time, 0, 10)
	for _, prev := range a.history[start:] {
		stamps = append(stamps, prev.Tx.Timestamp)
	}
	stamps = append(stamps, tx.Timestamp)
	if len(stamps) < 4 {
		return false
	}

	gaps := make([]float64, 0, len(stamps)-1)
	for i := 1; i < len(stamps); i++ {
		gaps = append(gaps, stamps[i].Sub(stamps[i-1]).Seconds())
	}
	mean, sd := meanStdDev(gaps)
	if mean <= 0 {
		return sd == 0
	}
	return sd/mean < 0.1
}

// valueIndicators flags value-level sweep behavior. Caller holds a.mu.
func (a *Analyzer) valueIndicators(tx models.Transaction) []string {
	var tags []string

	value := tx.TotalOutputValue()
	if value > 0 && value < a.cfg.DustThresholdSats {
		tags = append(tags, "dust_attack")
	}

	if len(tx.Inputs) > 5 && len(tx.Outputs) == 1 {
		tags = append(tags, "systematic_sweeping")
	}

	start := len(a.history) - 20
	if start < 0 {
		start = 0
	}
	near := 0
	for _, prev := range a.history[start:] {
		prevValue := prev.Tx.TotalOutputValue()
		if value == 0 || prevValue == 0 {
			continue
		}
		if math.Abs(float64(prevValue-value))/float64(value) <= 0.01 {
			near++
		}
	}
	if near > 3 {
		tags = append(tags, "value_clustering")
	}

	return tags
}

// updateProfiles folds the transaction into every involved address profile
// and derives the relationship indicators. Caller holds a.mu.
func (a *Analyzer) updateProfiles(tx models.Transaction, quantumTags []string) []string {
	var tags []string
	reuse := false
	riskyCounterparty := false

	touch := func(addr string, value int64, isInput bool) {
		if addr == "" {
			return
		}
		profile, ok := a.profiles[addr]
		if !ok {
			profile = &models.AddressProfile{
				Address:           addr,
				FirstSeen:         tx.Timestamp,
				QuantumIndicators: make(map[string]bool),
			}
			a.profiles[addr] = profile
		} else if isInput {
			reuse = true
		}
		profile.LastSeen = tx.Timestamp
		profile.TxCount++
		profile.TotalValue += value
		for _, tag := range quantumTags {
			profile.QuantumIndicators[tag] = true
		}
		profile.RiskScore = math.Min(1,
			0.3*float64(len(profile.QuantumIndicators))+math.Min(0.3, float64(profile.TxCount)/100))
		if profile.RiskScore >= 0.5 {
			riskyCounterparty = true
		}
	}

	for _, in := range tx.Inputs {
		touch(in.Address, in.Value, true)
	}
	for _, out := range tx.Outputs {
		touch(out.Address, out.Value, false)
	}

	if reuse {
		tags = append(tags, "address_reuse")
	}
	if riskyCounterparty {
		tags = append(tags, "high_risk_address")
	}
	return tags
}

// Snapshot returns a copy of the rolling history for read-only passes.
func (a *Analyzer) Snapshot() []models.TransactionPattern {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.TransactionPattern, len(a.history))
	copy(out, a.history)
	return out
}

// PruneBefore drops history entries observed before the cutoff and returns
// how many were removed. Live entries are never mutated.
func (a *Analyzer) PruneBefore(cutoff time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.history[:0]
	removed := 0
	for _, p := range a.history {
		if p.ObservedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	a.history = kept
	return removed
}

// ProfileCount reports how many distinct addresses have been profiled.
func (a *Analyzer) ProfileCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.profiles)
}

// Profile returns a copy of one address profile, if present.
func (a *Analyzer) Profile(addr string) (models.AddressProfile, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.profiles[addr]
	if !ok {
		return models.AddressProfile{}, false
	}
	out := *p
	out.QuantumIndicators = make(map[string]bool, len(p.QuantumIndicators))
	for k, v := range p.QuantumIndicators {
		out.QuantumIndicators[k] = v
	}
	return out, true
}
