package audit

import (
	"context"
	"log"
	"time"
)

// Audit event sink. Every security-relevant engine event (high/critical
// transaction patterns, computed signatures, alerts, incidents) lands here:
// always as a structured log line, and best-effort as a database row when a
// recorder is configured. A failing recorder never propagates back into the
// detection pipeline.

// Recorder persists audit events durably.
type Recorder interface {
	SaveAuditEvent(ctx context.Context, eventType, severity string, details map[string]any) error
}

// Logger is the engine's audit sink.
type Logger struct {
	recorder Recorder
	timeout  time.Duration
}

// New creates an audit logger. recorder may be nil for log-only operation.
func New(recorder Recorder) *Logger {
	return &Logger{recorder: recorder, timeout: 5 * time.Second}
}

// LogEvent records one audit event.
func (l *Logger) LogEvent(eventType, severity string, details map[string]any) {
	log.Printf("[Audit] [%s] %s: %v", severity, eventType, details)

	if l.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	if err := l.recorder.SaveAuditEvent(ctx, eventType, severity, details); err != nil {
		log.Printf("[Audit] Failed to persist event %s: %v", eventType, err)
	}
}
