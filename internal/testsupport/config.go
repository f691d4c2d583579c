package testsupport

import (
	"path/filepath"
	"testing"

	"taskscribe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.RetryBaseDelayMS = 1
	cfg.Workflow.RetryMaxDelayMS = 5

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithForceHeuristic toggles heuristic-only extraction on the test config.
func WithForceHeuristic() ConfigOption {
	return func(c *config.Config) {
		c.LLM.ForceHeuristic = true
	}
}

// WithHFToken sets the diarization credential on the test config.
func WithHFToken(token string) ConfigOption {
	return func(c *config.Config) {
		c.Diarization.HFToken = token
	}
}
