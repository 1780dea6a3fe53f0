package models

import (
	"encoding/json"
	"fmt"
)

// Closed enumerations for every severity-like concept in the engine.
//
// Each concept has exactly one classification function mapping its score to
// a level. The per-transaction RiskLevel boundaries (0.8/0.6/0.4/0.2) and the
// batch ThreatLevel boundaries (0.9/0.75/0.5/0.25) are intentionally
// different scales and must not be unified.
//
// Every enum marshals to its String() form and unmarshals back from it, so
// alert payloads survive a round trip through webhooks, the websocket stream,
// and the JSONB payload column.

// RiskLevel classifies a single transaction's quantum score.
type RiskLevel int

const (
	RiskMinimal RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

// ClassifyRiskLevel maps a per-transaction quantum score to its risk level.
func ClassifyRiskLevel(score float64) RiskLevel {
	switch {
	case score >= 0.8:
		return RiskCritical
	case score >= 0.6:
		return RiskHigh
	case score >= 0.4:
		return RiskMedium
	case score >= 0.2:
		return RiskLow
	default:
		return RiskMinimal
	}
}

func (r RiskLevel) String() string {
	switch r {
	case RiskCritical:
		return "CRITICAL"
	case RiskHigh:
		return "HIGH"
	case RiskMedium:
		return "MEDIUM"
	case RiskLow:
		return "LOW"
	default:
		return "MINIMAL"
	}
}

func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "CRITICAL":
		*r = RiskCritical
	case "HIGH":
		*r = RiskHigh
	case "MEDIUM":
		*r = RiskMedium
	case "LOW":
		*r = RiskLow
	case "MINIMAL":
		*r = RiskMinimal
	default:
		return fmt.Errorf("unknown risk level %q", s)
	}
	return nil
}

// ThreatLevel classifies a batch signature's ensemble confidence.
type ThreatLevel int

const (
	ThreatMinimal ThreatLevel = iota
	ThreatLow
	ThreatMedium
	ThreatHigh
	ThreatCritical
)

// ClassifyThreatLevel maps a batch confidence score to its threat level.
func ClassifyThreatLevel(confidence float64) ThreatLevel {
	switch {
	case confidence >= 0.9:
		return ThreatCritical
	case confidence >= 0.75:
		return ThreatHigh
	case confidence >= 0.5:
		return ThreatMedium
	case confidence >= 0.25:
		return ThreatLow
	default:
		return ThreatMinimal
	}
}

func (t ThreatLevel) String() string {
	switch t {
	case ThreatCritical:
		return "CRITICAL"
	case ThreatHigh:
		return "HIGH"
	case ThreatMedium:
		return "MEDIUM"
	case ThreatLow:
		return "LOW"
	default:
		return "MINIMAL"
	}
}

func (t ThreatLevel) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *ThreatLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "CRITICAL":
		*t = ThreatCritical
	case "HIGH":
		*t = ThreatHigh
	case "MEDIUM":
		*t = ThreatMedium
	case "LOW":
		*t = ThreatLow
	case "MINIMAL":
		*t = ThreatMinimal
	default:
		return fmt.Errorf("unknown threat level %q", s)
	}
	return nil
}

// Severity grades a coordinated attack pattern.
type Severity int

const (
	SeverityMedium Severity = iota
	SeverityHigh
)

// ClassifyClusterSeverity maps a cluster's mean quantum score to a severity.
func ClassifyClusterSeverity(clusterScore float64) Severity {
	if clusterScore > 0.7 {
		return SeverityHigh
	}
	return SeverityMedium
}

func (s Severity) String() string {
	if s == SeverityHigh {
		return "HIGH"
	}
	return "MEDIUM"
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v {
	case "HIGH":
		*s = SeverityHigh
	case "MEDIUM":
		*s = SeverityMedium
	default:
		return fmt.Errorf("unknown severity %q", v)
	}
	return nil
}

// AttackVector labels the most likely key-recovery technique behind a batch.
type AttackVector int

const (
	VectorQuantumBruteForce AttackVector = iota
	VectorAutomatedSweep
	VectorKeyEnumeration
	VectorDeterministicKeygen
)

func (v AttackVector) String() string {
	switch v {
	case VectorAutomatedSweep:
		return "automated_quantum_sweep"
	case VectorKeyEnumeration:
		return "algorithmic_key_enumeration"
	case VectorDeterministicKeygen:
		return "deterministic_private_key_generation"
	default:
		return "quantum_assisted_brute_force"
	}
}

func (v AttackVector) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

func (v *AttackVector) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "automated_quantum_sweep":
		*v = VectorAutomatedSweep
	case "algorithmic_key_enumeration":
		*v = VectorKeyEnumeration
	case "deterministic_private_key_generation":
		*v = VectorDeterministicKeygen
	case "quantum_assisted_brute_force":
		*v = VectorQuantumBruteForce
	default:
		return fmt.Errorf("unknown attack vector %q", s)
	}
	return nil
}

// Sophistication grades the attacker's tooling.
type Sophistication int

const (
	SophisticationOpportunistic Sophistication = iota
	SophisticationScripted
	SophisticationAutomated
	SophisticationAPT
)

// ClassifySophistication weights the pattern-quality sub-scores into an
// attacker capability estimate.
func ClassifySophistication(sig QuantumSignature) Sophistication {
	score := 0.3*sig.GeometricPatternScore + 0.3*sig.EntropyAnalysis +
		0.2*sig.TemporalClustering + 0.2*sig.FeeUniformity
	switch {
	case score > 0.8:
		return SophisticationAPT
	case score > 0.6:
		return SophisticationAutomated
	case score > 0.4:
		return SophisticationScripted
	default:
		return SophisticationOpportunistic
	}
}

func (s Sophistication) String() string {
	switch s {
	case SophisticationAPT:
		return "APT"
	case SophisticationAutomated:
		return "SOPHISTICATED_AUTOMATED"
	case SophisticationScripted:
		return "SCRIPTED_ATTACK"
	default:
		return "OPPORTUNISTIC"
	}
}

func (s Sophistication) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Sophistication) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v {
	case "APT":
		*s = SophisticationAPT
	case "SOPHISTICATED_AUTOMATED":
		*s = SophisticationAutomated
	case "SCRIPTED_ATTACK":
		*s = SophisticationScripted
	case "OPPORTUNISTIC":
		*s = SophisticationOpportunistic
	default:
		return fmt.Errorf("unknown sophistication %q", v)
	}
	return nil
}

// IncidentClass grades the operational response a signature warrants.
type IncidentClass int

const (
	IncidentSuspiciousActivity IncidentClass = iota
	IncidentSecurityAnomaly
	IncidentMajorEvent
	IncidentCritical
)

// ClassifyIncident maps confidence to incident classification.
func ClassifyIncident(confidence float64) IncidentClass {
	switch {
	case confidence > 0.9:
		return IncidentCritical
	case confidence > 0.75:
		return IncidentMajorEvent
	case confidence > 0.5:
		return IncidentSecurityAnomaly
	default:
		return IncidentSuspiciousActivity
	}
}

func (c IncidentClass) String() string {
	switch c {
	case IncidentCritical:
		return "CRITICAL_SECURITY_INCIDENT"
	case IncidentMajorEvent:
		return "MAJOR_SECURITY_EVENT"
	case IncidentSecurityAnomaly:
		return "SECURITY_ANOMALY"
	default:
		return "SUSPICIOUS_ACTIVITY"
	}
}

func (c IncidentClass) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

func (c *IncidentClass) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "CRITICAL_SECURITY_INCIDENT":
		*c = IncidentCritical
	case "MAJOR_SECURITY_EVENT":
		*c = IncidentMajorEvent
	case "SECURITY_ANOMALY":
		*c = IncidentSecurityAnomaly
	case "SUSPICIOUS_ACTIVITY":
		*c = IncidentSuspiciousActivity
	default:
		return fmt.Errorf("unknown incident classification %q", s)
	}
	return nil
}
