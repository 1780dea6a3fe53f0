package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestClassifyThreatLevel_Boundaries(t *testing.T) {
	cases := []struct {
		confidence float64
		want       ThreatLevel
	}{
		{0.9, ThreatCritical},
		{0.8999, ThreatHigh},
		{0.75, ThreatHigh},
		{0.7499, ThreatMedium},
		{0.5, ThreatMedium},
		{0.4999, ThreatLow},
		{0.25, ThreatLow},
		{0.2499, ThreatMinimal},
		{0, ThreatMinimal},
	}
	for _, c := range cases {
		if got := ClassifyThreatLevel(c.confidence); got != c.want {
			t.Errorf("confidence %v: expected %s, got %s", c.confidence, c.want, got)
		}
	}
}

func TestClassifyRiskLevel_Boundaries(t *testing.T) {
	// The per-transaction scale is deliberately different from the batch
	// threat scale.
	cases := []struct {
		score float64
		want  RiskLevel
	}{
		{0.8, RiskCritical},
		{0.7999, RiskHigh},
		{0.6, RiskHigh},
		{0.4, RiskMedium},
		{0.2, RiskLow},
		{0.1999, RiskMinimal},
	}
	for _, c := range cases {
		if got := ClassifyRiskLevel(c.score); got != c.want {
			t.Errorf("score %v: expected %s, got %s", c.score, c.want, got)
		}
	}
}

func TestEnumsMarshalAsStrings(t *testing.T) {
	payload, err := json.Marshal(struct {
		Threat   ThreatLevel    `json:"threat"`
		Risk     RiskLevel      `json:"risk"`
		Vector   AttackVector   `json:"vector"`
		Severity Severity       `json:"severity"`
		Soph     Sophistication `json:"soph"`
		Incident IncidentClass  `json:"incident"`
	}{ThreatCritical, RiskHigh, VectorAutomatedSweep, SeverityHigh, SophisticationAPT, IncidentMajorEvent})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := `{"threat":"CRITICAL","risk":"HIGH","vector":"automated_quantum_sweep","severity":"HIGH","soph":"APT","incident":"MAJOR_SECURITY_EVENT"}`
	if string(payload) != want {
		t.Errorf("Unexpected JSON:\n got %s\nwant %s", payload, want)
	}
}

func TestEnumsRoundTrip(t *testing.T) {
	// Alert payloads travel through webhooks, the websocket stream, and the
	// JSONB payload column; every enum must unmarshal back to the value it
	// marshaled from.
	type envelope struct {
		Threat   ThreatLevel    `json:"threat"`
		Risk     RiskLevel      `json:"risk"`
		Vector   AttackVector   `json:"vector"`
		Severity Severity       `json:"severity"`
		Soph     Sophistication `json:"soph"`
		Incident IncidentClass  `json:"incident"`
	}
	sent := envelope{ThreatHigh, RiskMedium, VectorKeyEnumeration, SeverityMedium, SophisticationScripted, IncidentSecurityAnomaly}

	payload, err := json.Marshal(sent)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var got envelope
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got != sent {
		t.Errorf("Round trip changed values: got %+v, want %+v", got, sent)
	}

	var level ThreatLevel
	if err := json.Unmarshal([]byte(`"SEVERE"`), &level); err == nil {
		t.Error("Expected an unknown threat level to be rejected")
	}
	var vector AttackVector
	if err := json.Unmarshal([]byte(`42`), &vector); err == nil {
		t.Error("Expected a non-string attack vector to be rejected")
	}
}

func TestTransactionValidate(t *testing.T) {
	valid := Transaction{
		Txid:      "abc",
		Timestamp: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Inputs:    []TxIn{{Txid: "prev", Value: 1000, Address: "1Addr"}},
		Outputs:   []TxOut{{Value: 900, Address: "dest"}},
		Fee:       100,
		Size:      200,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected a well-formed transaction to validate, got %v", err)
	}

	for name, mutate := range map[string]func(*Transaction){
		"missing txid":      func(tx *Transaction) { tx.Txid = "" },
		"missing timestamp": func(tx *Transaction) { tx.Timestamp = time.Time{} },
		"no inputs":         func(tx *Transaction) { tx.Inputs = nil },
		"negative fee":      func(tx *Transaction) { tx.Fee = -1 },
		"negative size":     func(tx *Transaction) { tx.Size = -1 },
	} {
		tx := valid
		mutate(&tx)
		if err := tx.Validate(); err == nil {
			t.Errorf("%s: expected a validation error", name)
		}
	}
}

func TestTransactionIsLegacy(t *testing.T) {
	legacyByType := Transaction{Inputs: []TxIn{{ScriptType: "p2pkh", Address: "bcrt-something"}}}
	if !legacyByType.IsLegacy() {
		t.Error("p2pkh script type must classify as legacy")
	}

	legacyByPrefix := Transaction{Inputs: []TxIn{{Address: "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"}}}
	if !legacyByPrefix.IsLegacy() {
		t.Error("base58 prefix 1 without script type must classify as legacy")
	}

	segwit := Transaction{Inputs: []TxIn{{ScriptType: "p2wpkh", Address: "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"}}}
	if segwit.IsLegacy() {
		t.Error("p2wpkh must not classify as legacy")
	}
}

func TestFeeRate(t *testing.T) {
	tx := Transaction{Fee: 1000, Size: 250}
	if rate := tx.FeeRate(); rate != 4.0 {
		t.Errorf("Expected 4 sat/B, got %v", rate)
	}
	unknown := Transaction{Fee: 1000}
	if rate := unknown.FeeRate(); rate != 0 {
		t.Errorf("Expected 0 for unknown size, got %v", rate)
	}
}
