package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the RAG orchestrator service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// Session lifecycle and context budgets.
	SessionTimeout  time.Duration
	MaxContextTurns int
	MaxContextChars int

	// Retrieval defaults.
	DefaultTopK          int
	MinConfidence        float64
	MaxDistance          float64
	RelatednessThreshold float64

	// External collaborators.
	EmbeddingServiceURL string
	VectorServiceURL    string
	GenerationURL       string
	GenerationModel     string
	EnrichmentModel     string

	EmbeddingTimeout  time.Duration
	VectorTimeout     time.Duration
	GenerationTimeout time.Duration
	EnrichmentTimeout time.Duration

	// Optional Postgres archive for summarized session transcripts.
	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:             envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:     envOrDefault("APP_METRICS_NAMESPACE", "engram"),
		AllowAnyOrigin:       false,
		SessionTimeout:       60 * time.Minute,
		MaxContextTurns:      20,
		MaxContextChars:      4000,
		DefaultTopK:          5,
		MinConfidence:        0.6,
		MaxDistance:          0.5,
		RelatednessThreshold: 0.3,
		EmbeddingServiceURL:  envOrDefault("EMBEDDING_SERVICE_URL", "http://localhost:8000"),
		VectorServiceURL:     envOrDefault("VECTOR_SERVICE_URL", "http://localhost:8003"),
		GenerationURL:        envOrDefault("GENERATION_URL", "http://localhost:11434"),
		GenerationModel:      envOrDefault("GENERATION_MODEL", "gemma3:1b"),
		EnrichmentModel:      envOrDefault("ENRICHMENT_MODEL", "gemma3:1b"),
		EmbeddingTimeout:     30 * time.Second,
		VectorTimeout:        30 * time.Second,
		GenerationTimeout:    120 * time.Second,
		EnrichmentTimeout:    10 * time.Second,
		DatabaseURL:          trimmedEnv("DATABASE_URL"),
		ShutdownTimeout:      15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTimeout, err = durationFromEnv("SESSION_TIMEOUT", cfg.SessionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxContextTurns, err = intFromEnv("MAX_CONTEXT_TURNS", cfg.MaxContextTurns)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxContextChars, err = intFromEnv("MAX_CONTEXT_CHARS", cfg.MaxContextChars)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultTopK, err = intFromEnv("DEFAULT_TOP_K", cfg.DefaultTopK)
	if err != nil {
		return Config{}, err
	}
	cfg.MinConfidence, err = floatFromEnv("MIN_CONFIDENCE", cfg.MinConfidence)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxDistance, err = floatFromEnv("MAX_DISTANCE", cfg.MaxDistance)
	if err != nil {
		return Config{}, err
	}
	cfg.RelatednessThreshold, err = floatFromEnv("RELATEDNESS_THRESHOLD", cfg.RelatednessThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.EmbeddingTimeout, err = durationFromEnv("EMBEDDING_TIMEOUT", cfg.EmbeddingTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.VectorTimeout, err = durationFromEnv("VECTOR_TIMEOUT", cfg.VectorTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.GenerationTimeout, err = durationFromEnv("GENERATION_TIMEOUT", cfg.GenerationTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.EnrichmentTimeout, err = durationFromEnv("ENRICHMENT_TIMEOUT", cfg.EnrichmentTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("SESSION_TIMEOUT must be at least 5s")
	}
	if cfg.MaxContextTurns <= 0 {
		return Config{}, fmt.Errorf("MAX_CONTEXT_TURNS must be positive")
	}
	if cfg.MaxContextChars <= 0 {
		return Config{}, fmt.Errorf("MAX_CONTEXT_CHARS must be positive")
	}
	if cfg.DefaultTopK <= 0 {
		return Config{}, fmt.Errorf("DEFAULT_TOP_K must be positive")
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		return Config{}, fmt.Errorf("MIN_CONFIDENCE must be within [0,1]")
	}
	if cfg.MaxDistance <= 0 {
		return Config{}, fmt.Errorf("MAX_DISTANCE must be positive")
	}
	if cfg.RelatednessThreshold <= 0 || cfg.RelatednessThreshold >= 1 {
		return Config{}, fmt.Errorf("RELATEDNESS_THRESHOLD must be within (0,1)")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
