package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"taskscribe/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatalf("expected exists=false for %s", resolved)
	}
	if cfg.Workflow.Workers != config.Default().Workflow.Workers {
		t.Fatalf("expected default workers, got %d", cfg.Workflow.Workers)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[llm]
base_url = "http://127.0.0.1:11434/"
model = "  qwen2.5:14b "

[diarization]
hf_token = " hf_abc "
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if strings.HasSuffix(cfg.LLM.BaseURL, "/") {
		t.Fatalf("base url not trimmed: %q", cfg.LLM.BaseURL)
	}
	if cfg.LLM.Model != "qwen2.5:14b" {
		t.Fatalf("model not trimmed: %q", cfg.LLM.Model)
	}
	if !cfg.DiarizationEnabled() {
		t.Fatal("expected diarization enabled with token present")
	}
	if cfg.JobsRoot() != filepath.Join(cfg.Paths.DataDir, "jobs") {
		t.Fatalf("unexpected jobs root: %s", cfg.JobsRoot())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty data dir", func(c *config.Config) { c.Paths.DataDir = "" }},
		{"bad device", func(c *config.Config) { c.ASR.Device = "gpu" }},
		{"zero workers", func(c *config.Config) { c.Workflow.Workers = 0 }},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }},
		{"missing llm model", func(c *config.Config) { c.LLM.Model = "" }},
		{"retry delays inverted", func(c *config.Config) {
			c.Workflow.RetryBaseDelayMS = 5000
			c.Workflow.RetryMaxDelayMS = 100
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestForceHeuristicSkipsLLMValidation(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.ForceHeuristic = true
	cfg.LLM.Model = ""
	cfg.LLM.BaseURL = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("force_heuristic should not require llm settings: %v", err)
	}
}
