package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGeneration()
	c.normalizeVision()
	c.normalizeRender()
	c.normalizeRepair()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataRoot) == "" {
		c.Paths.DataRoot = defaultDataRoot
	}
	if c.Paths.DataRoot, err = expandPath(c.Paths.DataRoot); err != nil {
		return fmt.Errorf("paths.data_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeGeneration() {
	c.Generation.BaseURL = strings.TrimSpace(c.Generation.BaseURL)
	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = defaultModelBaseURL
	}
	c.Generation.Model = strings.TrimSpace(c.Generation.Model)
	if c.Generation.Model == "" {
		c.Generation.Model = defaultGenerationModel
	}
	c.Generation.Referer = strings.TrimSpace(c.Generation.Referer)
	if c.Generation.Referer == "" {
		c.Generation.Referer = defaultModelReferer
	}
	c.Generation.Title = strings.TrimSpace(c.Generation.Title)
	if c.Generation.Title == "" {
		c.Generation.Title = defaultModelTitle
	}
	if c.Generation.TimeoutSeconds <= 0 {
		c.Generation.TimeoutSeconds = defaultGenerationTimeout
	}
	if c.Generation.MaxRegenerations < 0 {
		c.Generation.MaxRegenerations = defaultMaxRegenerations
	}
	c.Generation.APIKey = strings.TrimSpace(c.Generation.APIKey)
	if c.Generation.APIKey == "" {
		if value, ok := os.LookupEnv("GENERATION_API_KEY"); ok {
			c.Generation.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.Generation.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeVision() {
	c.Vision.BaseURL = strings.TrimSpace(c.Vision.BaseURL)
	c.Vision.Model = strings.TrimSpace(c.Vision.Model)
	if c.Vision.Model == "" {
		c.Vision.Model = defaultVisionModel
	}
	if c.Vision.TimeoutSeconds <= 0 {
		c.Vision.TimeoutSeconds = defaultVisionTimeout
	}
	if c.Vision.BatchSize <= 0 {
		c.Vision.BatchSize = defaultVisionBatchSize
	}
	if c.Vision.MaxConcurrentBatches <= 0 {
		c.Vision.MaxConcurrentBatches = defaultVisionConcurrency
	}
	c.Vision.APIKey = strings.TrimSpace(c.Vision.APIKey)
	if c.Vision.APIKey == "" {
		if value, ok := os.LookupEnv("VISION_API_KEY"); ok {
			c.Vision.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeRender() {
	c.Render.Binary = strings.TrimSpace(c.Render.Binary)
	if c.Render.TimeoutSeconds <= 0 {
		c.Render.TimeoutSeconds = defaultRenderTimeout
	}
	if c.Render.RetryAttempts < 0 {
		c.Render.RetryAttempts = defaultRenderRetryAttempts
	}
}

func (c *Config) normalizeRepair() {
	if c.Repair.MaxIterations < 0 {
		c.Repair.MaxIterations = defaultRepairIterations
	}
	if c.Repair.TimeoutSeconds <= 0 {
		c.Repair.TimeoutSeconds = defaultRepairTimeout
	}
	if c.Repair.MinLengthRatio <= 0 || c.Repair.MinLengthRatio > 1 {
		c.Repair.MinLengthRatio = defaultRepairMinLengthRatio
	}
	if c.Repair.MinPlayRetention <= 0 || c.Repair.MinPlayRetention > 1 {
		c.Repair.MinPlayRetention = defaultRepairMinPlayRetention
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkers
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.Workflow.JobWallClockMinutes <= 0 {
		c.Workflow.JobWallClockMinutes = defaultJobWallClockMinutes
	}
	if c.Workflow.CompletedRetentionHours <= 0 {
		c.Workflow.CompletedRetentionHours = defaultCompletedRetentionHours
	}
	if c.Workflow.CleanupIntervalMinutes <= 0 {
		c.Workflow.CleanupIntervalMinutes = defaultCleanupIntervalMinutes
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
