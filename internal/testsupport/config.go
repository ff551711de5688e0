package testsupport

import (
	"path/filepath"
	"testing"

	"clipsmith/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config rooted in a per-test temp directory, with the
// queue and admission timers shortened so polling tests finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Queue.PollIntervalMS = 10
	cfg.Queue.BackoffBaseMS = 5
	cfg.Admission.TickInterval = 1

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithRetryPolicy overrides the queue retry budget and backoff base.
func WithRetryPolicy(maxAttempts, backoffBaseMS int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.MaxAttempts = maxAttempts
		cfg.Queue.BackoffBaseMS = backoffBaseMS
	}
}
