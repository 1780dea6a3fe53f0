package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/qsweep-engine/pkg/models"
)

// schemaSQL is compiled into the binary at build time so schema init works
// inside the Docker runtime image without shipping the .sql file.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the persistence collaborator. Every write is an upsert:
// the engine may deliver the same signature or alert more than once and the
// store must stay at-least-once safe.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for sweep detection persistence")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema() error {
	_, err := s.pool.Exec(context.Background(), schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}
	log.Println("Sweep detection schema initialized")
	return nil
}

// SaveSignature persists a computed quantum signature and its batch.
func (s *PostgresStore) SaveSignature(ctx context.Context, sig models.QuantumSignature, txs []models.Transaction) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertSigSQL := `
		INSERT INTO quantum_signatures
			(analysis_id, temporal_clustering, fee_uniformity, address_age_corr,
			 geometric_pattern, entropy_analysis, statistical_anomaly,
			 confidence, threat_level, tx_count, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (analysis_id) DO NOTHING;
	`
	_, err = tx.Exec(ctx, insertSigSQL,
		sig.AnalysisID, sig.TemporalClustering, sig.FeeUniformity, sig.AddressAgeCorrelation,
		sig.GeometricPatternScore, sig.EntropyAnalysis, sig.StatisticalAnomaly,
		sig.ConfidenceScore, sig.ThreatLevel.String(), len(txs), sig.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert quantum_signatures: %v", err)
	}

	insertTxSQL := `
		INSERT INTO signature_transactions (analysis_id, txid, fee, size, is_legacy, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (analysis_id, txid) DO NOTHING;
	`
	for _, t := range txs {
		_, err = tx.Exec(ctx, insertTxSQL, sig.AnalysisID, t.Txid, t.Fee, t.Size, t.IsLegacy(), t.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert signature transaction: %v", err)
		}
	}

	return tx.Commit(ctx)
}

// SaveAlert persists a threat alert with its full payload as JSONB.
func (s *PostgresStore) SaveAlert(ctx context.Context, alert models.QuantumThreatAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %v", err)
	}

	sql := `
		INSERT INTO threat_alerts
			(alert_id, analysis_id, threat_level, confidence, attack_vector,
			 time_to_compromise, incident_class, affected_count, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (alert_id) DO NOTHING;
	`
	_, err = s.pool.Exec(ctx, sql,
		alert.AlertID, alert.TechnicalDetails.Signature.AnalysisID,
		alert.ThreatLevel.String(), alert.ConfidenceScore, alert.AttackVector.String(),
		alert.EstimatedTimeToCompromise, alert.IncidentClassification.String(),
		len(alert.AffectedAddresses), payload, alert.Timestamp)
	return err
}

// CreateIncident opens an incident record for a high-confidence detection.
func (s *PostgresStore) CreateIncident(ctx context.Context, sig models.QuantumSignature, alert models.QuantumThreatAlert) error {
	sql := `
		INSERT INTO incidents (alert_id, analysis_id, classification)
		SELECT $1, $2, $3
		WHERE NOT EXISTS (SELECT 1 FROM incidents WHERE alert_id = $1);
	`
	_, err := s.pool.Exec(ctx, sql, alert.AlertID, sig.AnalysisID, alert.IncidentClassification.String())
	return err
}

// SaveAuditEvent appends one audit row. Best effort: the audit sink logs
// failures and moves on.
func (s *PostgresStore) SaveAuditEvent(ctx context.Context, eventType, severity string, details map[string]any) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %v", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_events (event_type, severity, details) VALUES ($1, $2, $3);`,
		eventType, severity, payload)
	return err
}

// SignatureRow is a compact history row for the API.
type SignatureRow struct {
	AnalysisID  string  `json:"analysisId"`
	Confidence  float64 `json:"confidence"`
	ThreatLevel string  `json:"threatLevel"`
	TxCount     int     `json:"txCount"`
	ComputedAt  string  `json:"computedAt"`
}

// RecentSignatures returns the latest computed signatures, newest first.
func (s *PostgresStore) RecentSignatures(ctx context.Context, limit int) ([]SignatureRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT analysis_id, confidence, threat_level, tx_count, computed_at::text
		FROM quantum_signatures
		ORDER BY computed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sigs := make([]SignatureRow, 0, limit)
	for rows.Next() {
		var r SignatureRow
		if err := rows.Scan(&r.AnalysisID, &r.Confidence, &r.ThreatLevel, &r.TxCount, &r.ComputedAt); err != nil {
			return nil, err
		}
		sigs = append(sigs, r)
	}
	return sigs, rows.Err()
}
