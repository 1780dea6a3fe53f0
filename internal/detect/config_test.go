package detect

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("Default configuration must validate: %v", err)
	}
}

func TestConfigValidate_RejectsDisablingValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero minimum", func(c *Config) { c.MinimumTransactions = 0 }, "MIN_TRANSACTIONS"},
		{"threshold above one", func(c *Config) { c.ConfidenceThreshold = 1.5 }, "CONFIDENCE_THRESHOLD"},
		{"zero threshold", func(c *Config) { c.ConfidenceThreshold = 0 }, "CONFIDENCE_THRESHOLD"},
		{"negative cluster window", func(c *Config) { c.TimingClusterWindow = -time.Second }, "TIMING_CLUSTER_WINDOW_SECONDS"},
		{"single-tx cluster", func(c *Config) { c.MinCoordinatedTransactions = 1 }, "MIN_COORDINATED_TRANSACTIONS"},
		{"zero burst", func(c *Config) { c.BurstThreshold = 0 }, "BURST_THRESHOLD"},
		{"zero dust", func(c *Config) { c.DustThresholdSats = 0 }, "DUST_THRESHOLD_SATS"},
		{"zero window", func(c *Config) { c.AnalysisWindow = 0 }, "ANALYSIS_WINDOW_MINUTES"},
		{"zero retention", func(c *Config) { c.Retention = 0 }, "RETENTION_HOURS"},
		{"history below minimum", func(c *Config) { c.MaxHistorySize = 2 }, "MAX_HISTORY_SIZE"},
		{"batch below minimum", func(c *Config) { c.BatchSize = 2 }, "DETECTION_BATCH_SIZE"},
	}

	for _, c := range cases {
		cfg := DefaultConfig()
		c.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: expected a validation error", c.name)
			continue
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Errorf("%s: expected the error to name %s, got %q", c.name, c.want, err)
		}
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MIN_TRANSACTIONS", "8")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.8")
	t.Setenv("TIMING_CLUSTER_WINDOW_SECONDS", "90")
	t.Setenv("DETECTION_BATCH_SIZE", "100")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv failed: %v", err)
	}
	if cfg.MinimumTransactions != 8 {
		t.Errorf("Expected MIN_TRANSACTIONS override 8, got %d", cfg.MinimumTransactions)
	}
	if cfg.ConfidenceThreshold != 0.8 {
		t.Errorf("Expected CONFIDENCE_THRESHOLD override 0.8, got %v", cfg.ConfidenceThreshold)
	}
	if cfg.TimingClusterWindow != 90*time.Second {
		t.Errorf("Expected 90s cluster window, got %v", cfg.TimingClusterWindow)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("Expected batch size 100, got %d", cfg.BatchSize)
	}
	// Untouched keys keep their defaults.
	if cfg.BurstThreshold != 10 {
		t.Errorf("Expected default burst threshold 10, got %d", cfg.BurstThreshold)
	}
}

func TestConfigFromEnv_RejectsGarbage(t *testing.T) {
	t.Setenv("MIN_TRANSACTIONS", "lots")
	if _, err := ConfigFromEnv(); err == nil {
		t.Error("Expected an error for an unparseable MIN_TRANSACTIONS")
	}
}
