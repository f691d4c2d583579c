package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateProviders() error {
	if strings.TrimSpace(c.ASR.BaseURL) == "" {
		return errors.New("asr.base_url must be set")
	}
	if strings.TrimSpace(c.ASR.Model) == "" {
		return errors.New("asr.model must be set")
	}
	if c.ASR.BeamSize <= 0 {
		return errors.New("asr.beam_size must be positive")
	}
	switch c.ASR.Device {
	case "auto", "cpu", "cuda":
	default:
		return fmt.Errorf("asr.device must be auto, cpu, or cuda (got %q)", c.ASR.Device)
	}
	if c.DiarizationEnabled() && strings.TrimSpace(c.Diarization.BaseURL) == "" {
		return errors.New("diarization.base_url must be set when diarization.hf_token is configured")
	}
	if !c.LLM.ForceHeuristic {
		if strings.TrimSpace(c.LLM.BaseURL) == "" {
			return errors.New("llm.base_url must be set unless llm.force_heuristic is true")
		}
		if strings.TrimSpace(c.LLM.Model) == "" {
			return errors.New("llm.model must be set unless llm.force_heuristic is true")
		}
	}
	return ensurePositiveMap(map[string]int{
		"asr.timeout_seconds":         c.ASR.TimeoutSeconds,
		"diarization.timeout_seconds": c.Diarization.TimeoutSeconds,
		"llm.timeout_seconds":         c.LLM.TimeoutSeconds,
	})
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.workers":             c.Workflow.Workers,
		"workflow.stage_timeout":       c.Workflow.StageTimeout,
		"workflow.max_attempts":        c.Workflow.MaxAttempts,
		"workflow.queue_poll_interval": c.Workflow.QueuePollInterval,
	}); err != nil {
		return err
	}
	if c.Workflow.RetryBaseDelayMS <= 0 {
		return errors.New("workflow.retry_base_delay_ms must be positive")
	}
	if c.Workflow.RetryMaxDelayMS < c.Workflow.RetryBaseDelayMS {
		return errors.New("workflow.retry_max_delay_ms must be at least workflow.retry_base_delay_ms")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
