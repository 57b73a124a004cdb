package config

import (
	"testing"
	"time"
)

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CODEFUSE_FUSION_STRATEGY", "KEEP_NEWEST")
	t.Setenv("CODEFUSE_FUSION_WORKERS", "2")
	t.Setenv("CODEFUSE_VALIDATION_TESTS", "true")
	t.Setenv("CODEFUSE_VALIDATION_TEST_TIMEOUT", "5s")
	t.Setenv("CODEFUSE_HISTORY_ENABLED", "1")
	t.Setenv("CODEFUSE_OBSERVABILITY_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("CODEFUSE_FUSION_QUALITY_WEIGHT", "not-a-number")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	if cfg.Fusion.Strategy != "keep_newest" {
		t.Errorf("expected keep_newest, got %q", cfg.Fusion.Strategy)
	}
	if cfg.Fusion.Workers != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.Fusion.Workers)
	}
	if !cfg.Validation.Tests || cfg.Validation.TestTimeout != 5*time.Second {
		t.Errorf("unexpected validation: %+v", cfg.Validation)
	}
	if !cfg.History.Enabled {
		t.Error("expected history enabled")
	}
	if cfg.Observability.OTLPEndpoint != "collector:4317" {
		t.Errorf("unexpected otlp endpoint %q", cfg.Observability.OTLPEndpoint)
	}
	if cfg.Fusion.QualityWeight != 0 {
		t.Errorf("unparseable override must be ignored, got %v", cfg.Fusion.QualityWeight)
	}
}
