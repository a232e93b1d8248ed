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
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateVision(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataRoot) == "" {
		return errors.New("paths.data_root must be set")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateGeneration() error {
	if c.Generation.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/scenesmith/config.toml"
		}
		return fmt.Errorf("generation.api_key is required. Set OPENROUTER_API_KEY env var or edit %s (create with 'scenesmith config init')", defaultPath)
	}
	if strings.TrimSpace(c.Generation.Model) == "" {
		return errors.New("generation.model must be set")
	}
	return nil
}

func (c *Config) validateVision() error {
	if strings.TrimSpace(c.Vision.Model) == "" {
		return errors.New("vision.model must be set")
	}
	if c.Vision.BatchSize < 1 {
		return errors.New("vision.batch_size must be >= 1")
	}
	if c.Vision.MaxConcurrentBatches < 1 {
		return errors.New("vision.max_concurrent_batches must be >= 1")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"generation.timeout_seconds":        c.Generation.TimeoutSeconds,
		"vision.timeout_seconds":            c.Vision.TimeoutSeconds,
		"render.timeout_seconds":            c.Render.TimeoutSeconds,
		"frames.timeout_seconds":            c.Frames.TimeoutSeconds,
		"repair.timeout_seconds":            c.Repair.TimeoutSeconds,
		"workflow.workers":                  c.Workflow.Workers,
		"workflow.queue_poll_interval":      c.Workflow.QueuePollInterval,
		"workflow.job_wall_clock_minutes":   c.Workflow.JobWallClockMinutes,
		"notifications.request_timeout":     c.Notifications.RequestTimeout,
		"workflow.cleanup_interval_minutes": c.Workflow.CleanupIntervalMinutes,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Repair.MaxIterations < 0 {
		return errors.New("repair.max_iterations must be >= 0")
	}
	if c.Repair.MinLengthRatio <= 0 || c.Repair.MinLengthRatio > 1 {
		return errors.New("repair.min_length_ratio must be between 0 and 1")
	}
	if c.Repair.MinPlayRetention <= 0 || c.Repair.MinPlayRetention > 1 {
		return errors.New("repair.min_play_retention must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if strings.TrimSpace(c.Notifications.NtfyTopic) != "" {
		if !strings.HasPrefix(c.Notifications.NtfyTopic, "http://") && !strings.HasPrefix(c.Notifications.NtfyTopic, "https://") {
			return errors.New("notifications.ntfy_topic must be a full URL including the topic")
		}
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
