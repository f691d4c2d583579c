package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// ASR contains configuration for the transcription backend.
type ASR struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Device         string `toml:"device"`
	ComputeType    string `toml:"compute_type"`
	BeamSize       int    `toml:"beam_size"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Diarization contains configuration for the speaker diarization backend.
// An empty HFToken disables diarization; segments then keep the unknown
// speaker sentinel rather than failing the stage.
type Diarization struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	HFToken        string `toml:"hf_token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LLM contains connection settings for the local LLM runtime used by the
// extraction and assignment stages.
type LLM struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ForceHeuristic bool   `toml:"force_heuristic"`
}

// Workflow contains daemon scheduling and retry tuning.
type Workflow struct {
	Workers             int `toml:"workers"`
	StageTimeout        int `toml:"stage_timeout"`
	MaxAttempts         int `toml:"max_attempts"`
	RetryBaseDelayMS    int `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS     int `toml:"retry_max_delay_ms"`
	QueuePollInterval   int `toml:"queue_poll_interval"`
	MinFreeDiskSpaceGiB int `toml:"min_free_disk_space_gib"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for taskscribe.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - ASR: faster-whisper transcription server settings
//   - Diarization: pyannote diarization server settings and credential
//   - LLM: Ollama connection used for to-do extraction and assignment
//   - Workflow: worker pool size, stage timeout, retry policy
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	ASR         ASR         `toml:"asr"`
	Diarization Diarization `toml:"diarization"`
	LLM         LLM         `toml:"llm"`
	Workflow    Workflow    `toml:"workflow"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/taskscribe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. When no file exists
// the defaults are returned and the bool result is false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("taskscribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.JobsRoot()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JobsRoot returns the directory that holds one namespace per job.
func (c *Config) JobsRoot() string {
	return filepath.Join(c.Paths.DataDir, "jobs")
}

// DiarizationEnabled reports whether a diarization credential is configured.
func (c *Config) DiarizationEnabled() bool {
	return strings.TrimSpace(c.Diarization.HFToken) != ""
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
