package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.SessionTimeout != 60*time.Minute {
		t.Fatalf("SessionTimeout = %v, want 60m", cfg.SessionTimeout)
	}
	if cfg.MaxContextTurns != 20 || cfg.MaxContextChars != 4000 {
		t.Fatalf("context budgets = (%d, %d), want (20, 4000)", cfg.MaxContextTurns, cfg.MaxContextChars)
	}
	if cfg.MinConfidence != 0.6 || cfg.MaxDistance != 0.5 {
		t.Fatalf("retrieval thresholds = (%v, %v), want (0.6, 0.5)", cfg.MinConfidence, cfg.MaxDistance)
	}
	if cfg.RelatednessThreshold != 0.3 {
		t.Fatalf("RelatednessThreshold = %v, want 0.3", cfg.RelatednessThreshold)
	}
	if cfg.DefaultTopK != 5 {
		t.Fatalf("DefaultTopK = %d, want 5", cfg.DefaultTopK)
	}
	if cfg.GenerationTimeout != 120*time.Second || cfg.EnrichmentTimeout != 10*time.Second {
		t.Fatalf("generation timeouts = (%v, %v)", cfg.GenerationTimeout, cfg.EnrichmentTimeout)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty default", cfg.DatabaseURL)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("SESSION_TIMEOUT", "45m")
	t.Setenv("MAX_CONTEXT_TURNS", "30")
	t.Setenv("MAX_DISTANCE", "0.7")
	t.Setenv("VECTOR_SERVICE_URL", "http://vectors:9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SessionTimeout != 45*time.Minute {
		t.Fatalf("SessionTimeout = %v, want 45m", cfg.SessionTimeout)
	}
	if cfg.MaxContextTurns != 30 {
		t.Fatalf("MaxContextTurns = %d, want 30", cfg.MaxContextTurns)
	}
	if cfg.MaxDistance != 0.7 {
		t.Fatalf("MaxDistance = %v, want 0.7", cfg.MaxDistance)
	}
	if cfg.VectorServiceURL != "http://vectors:9000" {
		t.Fatalf("VectorServiceURL = %q", cfg.VectorServiceURL)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"SESSION_TIMEOUT":       "1s",
		"MAX_CONTEXT_TURNS":     "-5",
		"MIN_CONFIDENCE":        "1.5",
		"RELATEDNESS_THRESHOLD": "1",
		"DEFAULT_TOP_K":         "zero",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%s should fail", key, val)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"SESSION_TIMEOUT",
		"MAX_CONTEXT_TURNS",
		"MAX_CONTEXT_CHARS",
		"DEFAULT_TOP_K",
		"MIN_CONFIDENCE",
		"MAX_DISTANCE",
		"RELATEDNESS_THRESHOLD",
		"EMBEDDING_SERVICE_URL",
		"VECTOR_SERVICE_URL",
		"GENERATION_URL",
		"GENERATION_MODEL",
		"ENRICHMENT_MODEL",
		"EMBEDDING_TIMEOUT",
		"VECTOR_TIMEOUT",
		"GENERATION_TIMEOUT",
		"ENRICHMENT_TIMEOUT",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
