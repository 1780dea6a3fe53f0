package detect

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries every tunable of the detection engine. Invalid values are
// fatal at startup, before any monitoring begins; a zero-value field falls
// back to its default.
type Config struct {
	// MinimumTransactions gates batch analysis: smaller batches are rejected.
	MinimumTransactions int
	// ConfidenceThreshold is the detection and alert boundary.
	ConfidenceThreshold float64
	// TimingClusterWindow is the maximum gap between consecutive patterns in
	// a coordinated-attack cluster.
	TimingClusterWindow time.Duration
	// MinCoordinatedTransactions is the smallest cluster worth flagging.
	MinCoordinatedTransactions int
	// BurstThreshold is the transaction count within 30s that flags
	// burst_activity.
	BurstThreshold int
	// DustThresholdSats marks values strictly below it as dust.
	DustThresholdSats int64
	// AnalysisWindow restricts clustering passes to recent history.
	AnalysisWindow time.Duration
	// Retention is how long patterns stay in the rolling history.
	Retention time.Duration
	// MaxHistorySize bounds the rolling history.
	MaxHistorySize int
	// BatchSize is the buffer fill level that triggers a batch analysis.
	BatchSize int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MinimumTransactions:        5,
		ConfidenceThreshold:        0.75,
		TimingClusterWindow:        60 * time.Second,
		MinCoordinatedTransactions: 5,
		BurstThreshold:             10,
		DustThresholdSats:          1000, // 0.00001 BTC
		AnalysisWindow:             15 * time.Minute,
		Retention:                  1 * time.Hour,
		MaxHistorySize:             10000,
		BatchSize:                  50,
	}
}

// Validate rejects configurations that would silently disable detection.
func (c Config) Validate() error {
	if c.MinimumTransactions < 1 {
		return fmt.Errorf("MIN_TRANSACTIONS must be >= 1, got %d", c.MinimumTransactions)
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be in (0, 1], got %v", c.ConfidenceThreshold)
	}
	if c.TimingClusterWindow <= 0 {
		return fmt.Errorf("TIMING_CLUSTER_WINDOW_SECONDS must be positive, got %v", c.TimingClusterWindow)
	}
	if c.MinCoordinatedTransactions < 2 {
		return fmt.Errorf("MIN_COORDINATED_TRANSACTIONS must be >= 2, got %d", c.MinCoordinatedTransactions)
	}
	if c.BurstThreshold < 1 {
		return fmt.Errorf("BURST_THRESHOLD must be >= 1, got %d", c.BurstThreshold)
	}
	if c.DustThresholdSats <= 0 {
		return fmt.Errorf("DUST_THRESHOLD_SATS must be positive, got %d", c.DustThresholdSats)
	}
	if c.AnalysisWindow <= 0 {
		return fmt.Errorf("ANALYSIS_WINDOW_MINUTES must be positive, got %v", c.AnalysisWindow)
	}
	if c.Retention <= 0 {
		return fmt.Errorf("RETENTION_HOURS must be positive, got %v", c.Retention)
	}
	if c.MaxHistorySize < c.MinimumTransactions {
		return fmt.Errorf("MAX_HISTORY_SIZE must be >= MIN_TRANSACTIONS, got %d", c.MaxHistorySize)
	}
	if c.BatchSize < c.MinimumTransactions {
		return fmt.Errorf("DETECTION_BATCH_SIZE must be >= MIN_TRANSACTIONS, got %d", c.BatchSize)
	}
	return nil
}

// ConfigFromEnv builds a Config from environment variables, starting from
// the defaults. Unparseable values are errors, not silent fallbacks.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	var err error
	if cfg.MinimumTransactions, err = envInt("MIN_TRANSACTIONS", cfg.MinimumTransactions); err != nil {
		return cfg, err
	}
	if cfg.ConfidenceThreshold, err = envFloat("CONFIDENCE_THRESHOLD", cfg.ConfidenceThreshold); err != nil {
		return cfg, err
	}
	if cfg.TimingClusterWindow, err = envSeconds("TIMING_CLUSTER_WINDOW_SECONDS", cfg.TimingClusterWindow); err != nil {
		return cfg, err
	}
	if cfg.MinCoordinatedTransactions, err = envInt("MIN_COORDINATED_TRANSACTIONS", cfg.MinCoordinatedTransactions); err != nil {
		return cfg, err
	}
	if cfg.BurstThreshold, err = envInt("BURST_THRESHOLD", cfg.BurstThreshold); err != nil {
		return cfg, err
	}
	if dust, derr := envInt("DUST_THRESHOLD_SATS", int(cfg.DustThresholdSats)); derr != nil {
		return cfg, derr
	} else {
		cfg.DustThresholdSats = int64(dust)
	}
	if minutes, merr := envInt("ANALYSIS_WINDOW_MINUTES", int(cfg.AnalysisWindow/time.Minute)); merr != nil {
		return cfg, merr
	} else {
		cfg.AnalysisWindow = time.Duration(minutes) * time.Minute
	}
	if hours, herr := envInt("RETENTION_HOURS", int(cfg.Retention/time.Hour)); herr != nil {
		return cfg, herr
	} else {
		cfg.Retention = time.Duration(hours) * time.Hour
	}
	if cfg.MaxHistorySize, err = envInt("MAX_HISTORY_SIZE", cfg.MaxHistorySize); err != nil {
		return cfg, err
	}
	if cfg.BatchSize, err = envInt("DETECTION_BATCH_SIZE", cfg.BatchSize); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %v", key, raw, err)
	}
	return v, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %v", key, raw, err)
	}
	return v, nil
}

func envSeconds(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %v", key, raw, err)
	}
	return time.Duration(v) * time.Second, nil
}
