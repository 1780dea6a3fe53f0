package detect

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/qsweep-engine/pkg/models"
)

// Alert & Incident Generator
//
// Translates a computed quantum signature into an operational threat alert:
// which recovery technique the batch looks like, how fast exposed keys are
// being compromised, what to do about it, and how the event should be
// classified for incident response and compliance.

// incidentConfidenceFloor is the confidence at which an incident is opened
// alongside the alert.
const incidentConfidenceFloor = 0.8

// baseRecommendations always ship with an alert.
var baseRecommendations = []string{
	"Immediately halt outgoing transactions from legacy address types",
	"Migrate funds to quantum-resistant address types",
	"Update wallet software to enforce modern script types",
}

// emergencyRecommendations are appended above 0.9 confidence.
var emergencyRecommendations = []string{
	"Activate the security incident response plan",
	"Notify regulators within 24 hours",
	"Engage law enforcement",
}

// BuildAlert derives a threat alert from a signature and its originating
// batch. The alert is immutable once created.
func BuildAlert(sig models.QuantumSignature, txs []models.Transaction) models.QuantumThreatAlert {
	confidence := sig.ConfidenceScore

	return models.QuantumThreatAlert{
		AlertID:                   uuid.NewString(),
		ThreatLevel:               sig.ThreatLevel,
		ConfidenceScore:           confidence,
		AffectedAddresses:         inputAddressUnion(txs),
		AttackVector:              classifyAttackVector(sig),
		EstimatedTimeToCompromise: estimateTimeToCompromise(confidence),
		RecommendedActions:        buildRecommendations(sig),
		TechnicalDetails: models.TechnicalDetails{
			Signature:             sig,
			TransactionCount:      len(txs),
			FalsePositiveEstimate: falsePositiveEstimate(sig),
			Sophistication:        models.ClassifySophistication(sig),
		},
		ComplianceImpact:       complianceImpact(confidence),
		IncidentClassification: models.ClassifyIncident(confidence),
		Timestamp:              time.Now(),
	}
}

// RequiresIncident reports whether the signature warrants opening an
// incident with the persistence collaborator.
func RequiresIncident(sig models.QuantumSignature) bool {
	return sig.ConfidenceScore >= incidentConfidenceFloor
}

// classifyAttackVector picks the most specific technique the sub-score
// profile supports. Boundary values count as matches: a temporal score
// sitting exactly on 0.8 still reads as sweep automation.
func classifyAttackVector(sig models.QuantumSignature) models.AttackVector {
	switch {
	case sig.TemporalClustering >= 0.8 && sig.FeeUniformity > 0.7:
		return models.VectorAutomatedSweep
	case sig.GeometricPatternScore >= 0.8:
		return models.VectorKeyEnumeration
	case sig.EntropyAnalysis >= 0.8:
		return models.VectorDeterministicKeygen
	default:
		return models.VectorQuantumBruteForce
	}
}

func estimateTimeToCompromise(confidence float64) string {
	switch {
	case confidence > 0.9:
		return "IMMEDIATE (minutes)"
	case confidence > 0.8:
		return "URGENT (hours)"
	case confidence > 0.6:
		return "CRITICAL (days)"
	default:
		return "MODERATE (weeks)"
	}
}

func buildRecommendations(sig models.QuantumSignature) []string {
	recs := make([]string, 0, 8)
	recs = append(recs, baseRecommendations...)

	if sig.ConfidenceScore > 0.9 {
		recs = append(recs, emergencyRecommendations...)
	}
	if sig.TemporalClustering >= 0.8 {
		recs = append(recs, "Rate-limit transaction acceptance from the affected address set")
	}
	if sig.FeeUniformity > 0.8 {
		recs = append(recs, "Extend monitoring to network-wide fee anomalies")
	}
	return recs
}

// falsePositiveEstimate discounts the residual (1 - confidence) by 10% for
// every sub-score above 0.8: independent strong signals compound.
func falsePositiveEstimate(sig models.QuantumSignature) float64 {
	strong := 0
	for _, score := range sig.SubScores() {
		if score > 0.8 {
			strong++
		}
	}
	return (1 - sig.ConfidenceScore) * math.Pow(0.9, float64(strong))
}

func complianceImpact(confidence float64) string {
	switch {
	case confidence >= incidentConfidenceFloor:
		return "mandatory_regulatory_reporting"
	case confidence > 0.5:
		return "compliance_review_recommended"
	default:
		return "none"
	}
}

// inputAddressUnion collects the distinct input-side addresses of a batch.
func inputAddressUnion(txs []models.Transaction) []string {
	set := make(map[string]bool)
	for _, tx := range txs {
		for _, in := range tx.Inputs {
			if in.Address != "" {
				set[in.Address] = true
			}
		}
	}
	return sortedKeys(set)
}
