package config

const (
	defaultDataRoot                = "~/.local/share/scenesmith"
	defaultLogDir                  = "~/.local/share/scenesmith/logs"
	defaultAPIBind                 = "127.0.0.1:7823"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogRetentionDays        = 60
	defaultModelBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultGenerationModel         = "deepseek/deepseek-chat-v3"
	defaultVisionModel             = "google/gemini-3-flash-preview"
	defaultModelReferer            = "https://github.com/scenesmith/scenesmith"
	defaultModelTitle              = "Scenesmith"
	defaultGenerationTimeout       = 120
	defaultMaxRegenerations        = 1
	defaultVisionTimeout           = 300
	defaultVisionBatchSize         = 15
	defaultVisionConcurrency       = 2
	defaultRenderTimeout           = 600
	defaultRenderRetryAttempts     = 2
	defaultFramesTimeout           = 60
	defaultRepairIterations        = 2
	defaultRepairTimeout           = 120
	defaultRepairMinLengthRatio    = 0.70
	defaultRepairMinPlayRetention  = 0.75
	defaultWorkers                 = 2
	defaultQueuePollInterval       = 5
	defaultHeartbeatInterval       = 15
	defaultHeartbeatTimeout        = 120
	defaultJobWallClockMinutes     = 30
	defaultCompletedRetentionHours = 24
	defaultCleanupIntervalMinutes  = 30
	defaultNotifyRequestTimeout    = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataRoot: defaultDataRoot,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Generation: Generation{
			BaseURL:          defaultModelBaseURL,
			Model:            defaultGenerationModel,
			Referer:          defaultModelReferer,
			Title:            defaultModelTitle,
			TimeoutSeconds:   defaultGenerationTimeout,
			MaxRegenerations: defaultMaxRegenerations,
		},
		Vision: Vision{
			Model:                defaultVisionModel,
			TimeoutSeconds:       defaultVisionTimeout,
			BatchSize:            defaultVisionBatchSize,
			MaxConcurrentBatches: defaultVisionConcurrency,
		},
		Render: Render{
			TimeoutSeconds: defaultRenderTimeout,
			RetryAttempts:  defaultRenderRetryAttempts,
		},
		Frames: Frames{
			TimeoutSeconds: defaultFramesTimeout,
		},
		Repair: Repair{
			MaxIterations:    defaultRepairIterations,
			TimeoutSeconds:   defaultRepairTimeout,
			MinLengthRatio:   defaultRepairMinLengthRatio,
			MinPlayRetention: defaultRepairMinPlayRetention,
		},
		Workflow: Workflow{
			Workers:                 defaultWorkers,
			QueuePollInterval:       defaultQueuePollInterval,
			HeartbeatInterval:       defaultHeartbeatInterval,
			HeartbeatTimeout:        defaultHeartbeatTimeout,
			JobWallClockMinutes:     defaultJobWallClockMinutes,
			CompletedRetentionHours: defaultCompletedRetentionHours,
			CleanupIntervalMinutes:  defaultCleanupIntervalMinutes,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completed:      true,
			Errors:         true,
		},
	}
}
