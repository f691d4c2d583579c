package config

import "strings"

// normalize expands user paths and trims provider endpoints so the rest of
// the system can treat config values as canonical.
func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.ASR.BaseURL = strings.TrimRight(strings.TrimSpace(c.ASR.BaseURL), "/")
	c.ASR.Device = strings.ToLower(strings.TrimSpace(c.ASR.Device))
	c.ASR.ComputeType = strings.ToLower(strings.TrimSpace(c.ASR.ComputeType))
	c.Diarization.BaseURL = strings.TrimRight(strings.TrimSpace(c.Diarization.BaseURL), "/")
	c.Diarization.HFToken = strings.TrimSpace(c.Diarization.HFToken)
	c.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(c.LLM.BaseURL), "/")
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)

	if c.ASR.Device == "" {
		c.ASR.Device = defaultASRDevice
	}
	if c.ASR.ComputeType == "" {
		c.ASR.ComputeType = defaultASRComputeType
	}
	return nil
}
