package detect

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/qsweep-engine/pkg/models"
)

// Coordinated Attack Clusterer
//
// A single recovered key produces one suspicious transaction; a working
// quantum pipeline produces a burst of them. The clusterer periodically
// groups the recent history into timing clusters (consecutive patterns no
// more than one cluster window apart) and flags any sufficiently large
// cluster whose mean quantum score crosses 0.5 as a coordinated attack.
//
// Patterns are superseded, not mutated: each pass rebuilds its clusters and
// replaces prior entries in the tracked map by patternId.

// PatternTypeCoordinatedQuantum labels clusters produced by this pass.
const PatternTypeCoordinatedQuantum = "coordinated_quantum_attack"

// clusterScoreThreshold is the mean quantum score above which a timing
// cluster becomes an attack pattern.
const clusterScoreThreshold = 0.5

// coordinatedMitigations is the fixed remediation list attached to every
// coordinated-attack pattern.
var coordinatedMitigations = []string{
	"Migrate funds from legacy pay-to-public-key-hash addresses",
	"Enable enhanced monitoring on the affected addresses",
	"Enforce quantum-resistant signature verification for outgoing transactions",
}

// Clusterer scans pattern history for coordinated attack clusters.
type Clusterer struct {
	cfg Config

	mu       sync.Mutex
	patterns map[string]models.AttackPattern
}

// NewClusterer creates a clusterer with no tracked patterns.
func NewClusterer(cfg Config) *Clusterer {
	return &Clusterer{
		cfg:      cfg,
		patterns: make(map[string]models.AttackPattern),
	}
}

// Scan clusters the supplied history snapshot (restricted to the analysis
// window ending at now) and returns any newly flagged attack patterns.
func (c *Clusterer) Scan(history []models.TransactionPattern, now time.Time) []models.AttackPattern {
	cutoff := now.Add(-c.cfg.AnalysisWindow)
	recent := make([]models.TransactionPattern, 0, len(history))
	for _, p := range history {
		if !p.Tx.Timestamp.Before(cutoff) {
			recent = append(recent, p)
		}
	}
	if len(recent) < 2 {
		return nil
	}

	sort.Slice(recent, func(i, j int) bool {
		return recent[i].Tx.Timestamp.Before(recent[j].Tx.Timestamp)
	})

	var flagged []models.AttackPattern
	for _, cluster := range c.timingClusters(recent) {
		if len(cluster) < c.cfg.MinCoordinatedTransactions {
			continue
		}
		score := meanQuantumScore(cluster)
		if score <= clusterScoreThreshold {
			continue
		}
		flagged = append(flagged, c.buildPattern(cluster, score, now))
	}

	if len(flagged) > 0 {
		c.mu.Lock()
		for _, p := range flagged {
			c.patterns[p.PatternID] = p
		}
		c.mu.Unlock()
	}
	return flagged
}

// timingClusters greedily groups consecutive patterns whose gap to the
// cluster's last member is within the cluster window. Singleton clusters
// are discarded.
func (c *Clusterer) timingClusters(sorted []models.TransactionPattern) [][]models.TransactionPattern {
	var clusters [][]models.TransactionPattern
	current := []models.TransactionPattern{sorted[0]}

	for _, p := range sorted[1:] {
		last := current[len(current)-1]
		if p.Tx.Timestamp.Sub(last.Tx.Timestamp) <= c.cfg.TimingClusterWindow {
			current = append(current, p)
			continue
		}
		if len(current) > 1 {
			clusters = append(clusters, current)
		}
		current = []models.TransactionPattern{p}
	}
	if len(current) > 1 {
		clusters = append(clusters, current)
	}
	return clusters
}

func meanQuantumScore(cluster []models.TransactionPattern) float64 {
	total := 0.0
	for _, p := range cluster {
		total += p.QuantumScore
	}
	return total / float64(len(cluster))
}

func (c *Clusterer) buildPattern(cluster []models.TransactionPattern, score float64, now time.Time) models.AttackPattern {
	addresses := make(map[string]bool)
	indicators := make(map[string]bool)
	txids := make([]string, 0, len(cluster))

	first := cluster[0].Tx.Timestamp
	last := cluster[0].Tx.Timestamp
	for _, p := range cluster {
		txids = append(txids, p.Tx.Txid)
		for _, in := range p.Tx.Inputs {
			if in.Address != "" {
				addresses[in.Address] = true
			}
		}
		for _, tag := range p.QuantumIndicators {
			indicators[tag] = true
		}
		if p.Tx.Timestamp.Before(first) {
			first = p.Tx.Timestamp
		}
		if p.Tx.Timestamp.After(last) {
			last = p.Tx.Timestamp
		}
	}

	return models.AttackPattern{
		PatternID:         uuid.NewString(),
		PatternType:       PatternTypeCoordinatedQuantum,
		Confidence:        score,
		AffectedAddresses: sortedKeys(addresses),
		TransactionIDs:    txids,
		FirstDetected:     first,
		LastDetected:      last,
		Severity:          models.ClassifyClusterSeverity(score),
		QuantumIndicators: sortedKeys(indicators),
		Mitigations:       coordinatedMitigations,
	}
}

// Active returns the currently tracked attack patterns.
func (c *Clusterer) Active() []models.AttackPattern {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.AttackPattern, 0, len(c.patterns))
	for _, p := range c.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastDetected.After(out[j].LastDetected)
	})
	return out
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
