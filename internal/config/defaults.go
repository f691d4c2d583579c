package config

const (
	defaultDataDir           = "~/.local/share/taskscribe"
	defaultLogDir            = "~/.local/share/taskscribe/logs"
	defaultAPIBind           = "127.0.0.1:7319"
	defaultASRBaseURL        = "http://127.0.0.1:9090"
	defaultASRModel          = "large-v3"
	defaultASRDevice         = "auto"
	defaultASRComputeType    = "auto"
	defaultASRBeamSize       = 5
	defaultASRTimeout        = 600
	defaultDiarizationURL    = "http://127.0.0.1:9091"
	defaultDiarizationModel  = "pyannote/speaker-diarization-3.1"
	defaultDiarizationTO     = 300
	defaultLLMBaseURL        = "http://127.0.0.1:11434"
	defaultLLMModel          = "qwen2.5:14b"
	defaultLLMTimeout        = 180
	defaultWorkers           = 2
	defaultStageTimeout      = 900
	defaultMaxAttempts       = 3
	defaultRetryBaseDelayMS  = 1000
	defaultRetryMaxDelayMS   = 30000
	defaultQueuePollInterval = 5
	defaultMinFreeDiskGiB    = 1
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		ASR: ASR{
			BaseURL:        defaultASRBaseURL,
			Model:          defaultASRModel,
			Device:         defaultASRDevice,
			ComputeType:    defaultASRComputeType,
			BeamSize:       defaultASRBeamSize,
			TimeoutSeconds: defaultASRTimeout,
		},
		Diarization: Diarization{
			BaseURL:        defaultDiarizationURL,
			Model:          defaultDiarizationModel,
			TimeoutSeconds: defaultDiarizationTO,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeout,
		},
		Workflow: Workflow{
			Workers:             defaultWorkers,
			StageTimeout:        defaultStageTimeout,
			MaxAttempts:         defaultMaxAttempts,
			RetryBaseDelayMS:    defaultRetryBaseDelayMS,
			RetryMaxDelayMS:     defaultRetryMaxDelayMS,
			QueuePollInterval:   defaultQueuePollInterval,
			MinFreeDiskSpaceGiB: defaultMinFreeDiskGiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
