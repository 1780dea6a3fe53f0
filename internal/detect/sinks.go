package detect

import (
	"context"

	"github.com/rawblock/qsweep-engine/pkg/models"
)

// External collaborator contracts. The engine calls these best-effort:
// failures are logged at the call site and never abort detection.

// Store persists signatures, alerts and incidents. Implementations must be
// idempotent or at-least-once safe; the engine does not retry.
type Store interface {
	SaveSignature(ctx context.Context, sig models.QuantumSignature, txs []models.Transaction) error
	SaveAlert(ctx context.Context, alert models.QuantumThreatAlert) error
	CreateIncident(ctx context.Context, sig models.QuantumSignature, alert models.QuantumThreatAlert) error
}

// AuditSink receives security-relevant engine events: every high/critical
// per-transaction pattern, every computed signature, every alert and
// incident.
type AuditSink interface {
	LogEvent(eventType, severity string, details map[string]any)
}
