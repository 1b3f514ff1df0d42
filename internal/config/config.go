// Package config loads and validates agentctl's configuration. Per the
// design note in SPEC_FULL.md §9, validation is explicit Go struct
// parsing, never a runtime schema library.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is the top-level, statically typed configuration for agentctl.
type Config struct {
	MaxWorkers   int             `json:"maxWorkers"`
	BaseDir      string          `json:"baseDir"`
	AgentGateway string          `json:"agentGateway"`
	Reviewer     ReviewerConfig  `json:"reviewer"`
	Retry        RetryConfig     `json:"retry"`
	Janitor      JanitorConfig   `json:"janitor"`
	Telemetry    TelemetryConfig `json:"telemetry"`
}

// ReviewerConfig tunes the AntipatternReviewer's scoring. RejectThreshold
// is a critical-finding count, not a score: a task is rejected once its
// criticalCount reaches this many (spec.md §4.3 default 3), not when its
// 0-100 score crosses it.
type ReviewerConfig struct {
	RejectThreshold     int `json:"rejectThreshold"`
	ScopeCreepTolerance int `json:"scopeCreepTolerance"`
}

// RetryConfig tunes the scheduler's backoff policy.
type RetryConfig struct {
	MaxAttempts int           `json:"maxAttempts"`
	BaseDelay   time.Duration `json:"baseDelay"`
	MaxDelay    time.Duration `json:"maxDelay"`
}

// JanitorConfig tunes the retention sweep.
type JanitorConfig struct {
	Enabled    bool          `json:"enabled"`
	Schedule   string        `json:"schedule"`
	Retention  time.Duration `json:"retention"`
}

// TelemetryConfig tunes OpenTelemetry export.
type TelemetryConfig struct {
	ServiceName    string `json:"serviceName"`
	OTLPEndpoint   string `json:"otlpEndpoint,omitempty"`
}

// Default returns a Config with every field set to its production default,
// matching the constants named in spec.md.
func Default() Config {
	return Config{
		MaxWorkers:   4,
		BaseDir:      ".agentctl",
		AgentGateway: "http://localhost:8787",
		Reviewer: ReviewerConfig{
			RejectThreshold:     3,
			ScopeCreepTolerance: 2,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    30 * time.Second,
		},
		Janitor: JanitorConfig{
			Enabled:   true,
			Schedule:  "@every 1h",
			Retention: 7 * 24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "agentctl",
		},
	}
}

// Load reads a config file at path, overlays it onto Default(), and
// validates the result. A missing file is not an error: the defaults
// alone are a valid configuration.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every field's bounds explicitly. This is the hand
// written replacement for a JSON-schema validator.
func (c Config) Validate() error {
	if c.MaxWorkers < 1 {
		return fmt.Errorf("maxWorkers must be >= 1, got %d", c.MaxWorkers)
	}
	if c.BaseDir == "" {
		return fmt.Errorf("baseDir must not be empty")
	}
	if c.Reviewer.RejectThreshold < 1 {
		return fmt.Errorf("reviewer.rejectThreshold must be >= 1, got %d", c.Reviewer.RejectThreshold)
	}
	if c.Reviewer.ScopeCreepTolerance < 0 {
		return fmt.Errorf("reviewer.scopeCreepTolerance must be >= 0, got %d", c.Reviewer.ScopeCreepTolerance)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.maxAttempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry.baseDelay must be positive, got %s", c.Retry.BaseDelay)
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.maxDelay (%s) must be >= retry.baseDelay (%s)", c.Retry.MaxDelay, c.Retry.BaseDelay)
	}
	return nil
}
