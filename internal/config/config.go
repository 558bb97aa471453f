package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the orchestration service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	TenantID         string

	AllowAnyOrigin bool

	// Conversation lifecycle.
	RAMTurnCap                    int
	ConversationInactivityTimeout time.Duration

	// One-way-door confirmation.
	ConfirmationTTL time.Duration

	// Ghost-mode operator override window.
	GhostWindow time.Duration

	// Intent classification.
	ClassifierMode      string
	ClassifierURL       string
	ClassifierTimeout   time.Duration
	ConfidenceThreshold float64

	// Action execution (booking, billing retention).
	ExecutorMode    string
	ExecutorURL     string
	ExecutorTimeout time.Duration

	// Memory tiers.
	DatabaseURL       string
	KnowledgeDir      string
	GraphSyncInterval time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                      envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:              envOrDefault("APP_METRICS_NAMESPACE", "arni"),
		TenantID:                      envOrDefault("APP_TENANT_ID", "studio-default"),
		AllowAnyOrigin:                false,
		RAMTurnCap:                    20,
		ConversationInactivityTimeout: 30 * time.Minute,
		ConfirmationTTL:               10 * time.Minute,
		GhostWindow:                   30 * time.Second,
		ClassifierMode:                envOrDefault("CLASSIFIER_MODE", "auto"),
		ClassifierURL:                 envTrimmed("CLASSIFIER_URL"),
		ClassifierTimeout:             5 * time.Second,
		ConfidenceThreshold:           0.6,
		ExecutorMode:                  envOrDefault("EXECUTOR_MODE", "auto"),
		ExecutorURL:                   envTrimmed("EXECUTOR_URL"),
		ExecutorTimeout:               8 * time.Second,
		DatabaseURL:                   envTrimmed("DATABASE_URL"),
		KnowledgeDir:                  envOrDefault("KNOWLEDGE_DIR", ".data/knowledge"),
		GraphSyncInterval:             24 * time.Hour,
		ShutdownTimeout:               15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConversationInactivityTimeout, err = durationFromEnv("APP_CONVERSATION_INACTIVITY_TIMEOUT", cfg.ConversationInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConfirmationTTL, err = durationFromEnv("APP_CONFIRMATION_TTL", cfg.ConfirmationTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.GhostWindow, err = durationFromEnv("APP_GHOST_WINDOW", cfg.GhostWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.ClassifierTimeout, err = durationFromEnv("CLASSIFIER_TIMEOUT", cfg.ClassifierTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ExecutorTimeout, err = durationFromEnv("EXECUTOR_TIMEOUT", cfg.ExecutorTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.GraphSyncInterval, err = durationFromEnv("GRAPH_SYNC_INTERVAL", cfg.GraphSyncInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.RAMTurnCap, err = intFromEnv("APP_RAM_TURN_CAP", cfg.RAMTurnCap)
	if err != nil {
		return Config{}, err
	}
	cfg.ConfidenceThreshold, err = floatFromEnv("CLASSIFIER_CONFIDENCE_THRESHOLD", cfg.ConfidenceThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.RAMTurnCap < 5 {
		return Config{}, fmt.Errorf("APP_RAM_TURN_CAP must be at least 5")
	}
	if cfg.ConfirmationTTL < time.Minute {
		return Config{}, fmt.Errorf("APP_CONFIRMATION_TTL must be at least 1m")
	}
	if cfg.GhostWindow < time.Second {
		return Config{}, fmt.Errorf("APP_GHOST_WINDOW must be at least 1s")
	}
	if cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold > 1 {
		return Config{}, fmt.Errorf("CLASSIFIER_CONFIDENCE_THRESHOLD must be in (0, 1]")
	}
	if strings.TrimSpace(cfg.KnowledgeDir) == "" {
		return Config{}, fmt.Errorf("KNOWLEDGE_DIR must not be empty")
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

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
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
	v := envTrimmed(key)
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
	v := envTrimmed(key)
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
	v := strings.ToLower(envTrimmed(key))
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
