package models

import (
	"fmt"
	"strings"
	"time"
)

// TxIn represents a transaction input reference
type TxIn struct {
	Txid       string `json:"txid"`
	Vout       uint32 `json:"vout"`
	Value      int64  `json:"value"` // in Satoshis
	Address    string `json:"address"`
	ScriptType string `json:"scriptType,omitempty"` // "p2pkh"/"p2pk"/"p2sh"/"p2wpkh"/"p2tr"
	SignatureR string `json:"signatureR,omitempty"` // hex-encoded ECDSA R value, when available
}

// TxOut represents a transaction output reference
type TxOut struct {
	Value   int64  `json:"value"` // in Satoshis
	Address string `json:"address"`
}

// Transaction is an observed transaction as delivered by the listener.
// It is read-only inside the engine: analysis wraps it, never mutates it.
type Transaction struct {
	Txid      string    `json:"txid"`
	Timestamp time.Time `json:"timestamp"`
	Inputs    []TxIn    `json:"inputs"`
	Outputs   []TxOut   `json:"outputs"`
	Fee       int64     `json:"fee"`  // Inputs - Outputs in Satoshis
	Size      int       `json:"size"` // serialized size in bytes
}

// FeeRate returns the fee per byte in sat/B, 0 when size is unknown.
func (t Transaction) FeeRate() float64 {
	if t.Size <= 0 {
		return 0
	}
	return float64(t.Fee) / float64(t.Size)
}

// TotalOutputValue sums the output side of the transaction.
func (t Transaction) TotalOutputValue() int64 {
	var total int64
	for _, out := range t.Outputs {
		total += out.Value
	}
	return total
}

// IsLegacy reports whether any input spends a quantum-vulnerable script
// (pay-to-public-key-hash or raw pay-to-public-key). Once such an input is
// spent, its public key is exposed on-chain.
func (t Transaction) IsLegacy() bool {
	for _, in := range t.Inputs {
		switch in.ScriptType {
		case "p2pkh", "p2pk":
			return true
		}
		if in.ScriptType == "" && strings.HasPrefix(in.Address, "1") {
			return true
		}
	}
	return false
}

// Validate rejects malformed transactions before they enter the history.
func (t Transaction) Validate() error {
	if t.Txid == "" {
		return fmt.Errorf("transaction missing txid")
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("transaction %s missing timestamp", t.Txid)
	}
	if len(t.Inputs) == 0 {
		return fmt.Errorf("transaction %s has no inputs", t.Txid)
	}
	if t.Fee < 0 {
		return fmt.Errorf("transaction %s has negative fee %d", t.Txid, t.Fee)
	}
	if t.Size < 0 {
		return fmt.Errorf("transaction %s has negative size %d", t.Txid, t.Size)
	}
	return nil
}

// TransactionPattern wraps a transaction with its per-transaction analysis
// output. Immutable after creation; retained in the rolling history.
type TransactionPattern struct {
	Tx                     Transaction `json:"tx"`
	QuantumScore           float64     `json:"quantumScore"` // 0.0 - 1.0
	RiskLevel              RiskLevel   `json:"riskLevel"`
	QuantumIndicators      []string    `json:"quantumIndicators"`
	TimingIndicators       []string    `json:"timingIndicators"`
	ValueIndicators        []string    `json:"valueIndicators"`
	RelationshipIndicators []string    `json:"relationshipIndicators"`
	ObservedAt             time.Time   `json:"observedAt"`
}

// AddressProfile holds running aggregates for a single address.
type AddressProfile struct {
	Address           string          `json:"address"`
	FirstSeen         time.Time       `json:"firstSeen"`
	LastSeen          time.Time       `json:"lastSeen"`
	TxCount           int             `json:"txCount"`
	TotalValue        int64           `json:"totalValue"` // cumulative Satoshis
	QuantumIndicators map[string]bool `json:"quantumIndicators"`
	RiskScore         float64         `json:"riskScore"` // 0.0 - 1.0
}

// AttackPattern is a flagged timing cluster of high-scoring transactions.
// Later clustering passes supersede (replace) earlier patterns by ID.
type AttackPattern struct {
	PatternID         string    `json:"patternId"`
	PatternType       string    `json:"patternType"` // "coordinated_quantum_attack"
	Confidence        float64   `json:"confidence"`
	AffectedAddresses []string  `json:"affectedAddresses"`
	TransactionIDs    []string  `json:"transactionIds"`
	FirstDetected     time.Time `json:"firstDetected"`
	LastDetected      time.Time `json:"lastDetected"`
	Severity          Severity  `json:"severity"`
	QuantumIndicators []string  `json:"quantumIndicators"`
	Mitigations       []string  `json:"mitigations"`
}

// QuantumSignature is the multi-factor statistical fingerprint of one batch.
// Created once per analysisId, never mutated afterwards.
type QuantumSignature struct {
	AnalysisID            string      `json:"analysisId"`
	TemporalClustering    float64     `json:"temporalClustering"`
	FeeUniformity         float64     `json:"feeUniformity"`
	AddressAgeCorrelation float64     `json:"addressAgeCorrelation"`
	GeometricPatternScore float64     `json:"geometricPatternScore"`
	EntropyAnalysis       float64     `json:"entropyAnalysis"`
	StatisticalAnomaly    float64     `json:"statisticalAnomalyScore"`
	ConfidenceScore       float64     `json:"confidenceScore"`
	ThreatLevel           ThreatLevel `json:"threatLevel"`
	Timestamp             time.Time   `json:"timestamp"`
}

// SubScores returns the six sub-scores in their canonical order.
func (s QuantumSignature) SubScores() []float64 {
	return []float64{
		s.TemporalClustering,
		s.FeeUniformity,
		s.AddressAgeCorrelation,
		s.GeometricPatternScore,
		s.EntropyAnalysis,
		s.StatisticalAnomaly,
	}
}

// TechnicalDetails carries the evidence attached to a threat alert.
type TechnicalDetails struct {
	Signature             QuantumSignature `json:"signature"`
	TransactionCount      int              `json:"transactionCount"`
	FalsePositiveEstimate float64          `json:"falsePositiveEstimate"`
	Sophistication        Sophistication   `json:"sophistication"`
}

// QuantumThreatAlert is emitted when a signature's confidence exceeds the
// alert threshold. Immutable once created.
type QuantumThreatAlert struct {
	AlertID                   string           `json:"alertId"`
	ThreatLevel               ThreatLevel      `json:"threatLevel"`
	ConfidenceScore           float64          `json:"confidenceScore"`
	AffectedAddresses         []string         `json:"affectedAddresses"`
	AttackVector              AttackVector     `json:"attackVector"`
	EstimatedTimeToCompromise string           `json:"estimatedTimeToCompromise"`
	RecommendedActions        []string         `json:"recommendedActions"`
	TechnicalDetails          TechnicalDetails `json:"technicalDetails"`
	ComplianceImpact          string           `json:"complianceImpact"`
	IncidentClassification    IncidentClass    `json:"incidentClassification"`
	Timestamp                 time.Time        `json:"timestamp"`
}

// RiskSummary aggregates recent engine state for the summary endpoint.
type RiskSummary struct {
	WindowMinutes        int      `json:"windowMinutes"`
	AvgConfidence        float64  `json:"avgConfidence"`
	MaxConfidence        float64  `json:"maxConfidence"`
	HighRiskCount        int      `json:"highRiskCount"`
	ActiveAttackPatterns int      `json:"activeAttackPatterns"`
	UniqueAddresses      int      `json:"uniqueAddresses"`
	IndicatorsSeen       []string `json:"indicatorsSeen"`
}
