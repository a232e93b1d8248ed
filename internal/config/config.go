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
	DataRoot string `toml:"data_root"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
}

// Generation contains settings for the code-generation model endpoint.
type Generation struct {
	APIKey           string `toml:"api_key"`
	BaseURL          string `toml:"base_url"`
	Model            string `toml:"model"`
	Referer          string `toml:"referer"`
	Title            string `toml:"title"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	MaxRegenerations int    `toml:"max_regenerations"`
}

// Vision contains settings for the vision-analysis model endpoint.
type Vision struct {
	APIKey               string `toml:"api_key"`
	BaseURL              string `toml:"base_url"`
	Model                string `toml:"model"`
	TimeoutSeconds       int    `toml:"timeout_seconds"`
	BatchSize            int    `toml:"batch_size"`
	MaxConcurrentBatches int    `toml:"max_concurrent_batches"`
}

// Render contains settings for the animation renderer subprocess.
type Render struct {
	Binary         string `toml:"binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryAttempts  int    `toml:"retry_attempts"`
}

// Frames contains settings for frame probing and extraction.
type Frames struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Repair contains settings for the automatic code-repair loop.
type Repair struct {
	MaxIterations    int     `toml:"max_iterations"`
	TimeoutSeconds   int     `toml:"timeout_seconds"`
	MinLengthRatio   float64 `toml:"min_length_ratio"`
	MinPlayRetention float64 `toml:"min_play_retention"`
}

// Workflow contains daemon timing, concurrency, and retention settings.
type Workflow struct {
	Workers                 int `toml:"workers"`
	QueuePollInterval       int `toml:"queue_poll_interval"`
	HeartbeatInterval       int `toml:"heartbeat_interval"`
	HeartbeatTimeout        int `toml:"heartbeat_timeout"`
	JobWallClockMinutes     int `toml:"job_wall_clock_minutes"`
	CompletedRetentionHours int `toml:"completed_retention_hours"`
	CleanupIntervalMinutes  int `toml:"cleanup_interval_minutes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Errors         bool   `toml:"errors"`
}

// Config encapsulates all configuration values for Scenesmith.
//
// Configuration sections by subsystem:
//   - Paths: data root (jobs, scenes, media) and API bind address
//   - Generation: code-generation model endpoint and credentials
//   - Vision: vision-analysis model endpoint, batching, and fan-out
//   - Render: renderer binary, timeout, and transient retry budget
//   - Frames: ffmpeg/ffprobe binaries for frame sampling
//   - Repair: repair-loop caps and candidate validation thresholds
//   - Workflow: worker pool size, polling, heartbeats, retention
//   - Logging: log format, level, and retention
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Generation    Generation    `toml:"generation"`
	Vision        Vision        `toml:"vision"`
	Render        Render        `toml:"render"`
	Frames        Frames        `toml:"frames"`
	Repair        Repair        `toml:"repair"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scenesmith/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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

	projectPath, err := filepath.Abs("scenesmith.toml")
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

// JobsDir returns the directory holding per-job JSON records.
func (c *Config) JobsDir() string {
	return filepath.Join(c.Paths.DataRoot, "jobs")
}

// ScenesDir returns the directory holding generated scene sources.
func (c *Config) ScenesDir() string {
	return filepath.Join(c.Paths.DataRoot, "scenes")
}

// MediaDir returns the renderer media root shared by all jobs.
func (c *Config) MediaDir() string {
	return filepath.Join(c.Paths.DataRoot, "media")
}

// LedgerPath returns the path of the SQLite event ledger.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.DataRoot, "ledger.db")
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.JobsDir(), c.ScenesDir(), c.MediaDir(), c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RenderBinary returns the renderer executable name.
func (c *Config) RenderBinary() string {
	if strings.TrimSpace(c.Render.Binary) != "" {
		return c.Render.Binary
	}
	return "manim"
}

// FFmpegBinary returns the ffmpeg executable name used for frame extraction.
func (c *Config) FFmpegBinary() string {
	if strings.TrimSpace(c.Frames.FFmpegBinary) != "" {
		return c.Frames.FFmpegBinary
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	if strings.TrimSpace(c.Frames.FFprobeBinary) != "" {
		return c.Frames.FFprobeBinary
	}
	return "ffprobe"
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

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ModelConfig contains common model-endpoint settings shared by the
// generation and vision clients.
type ModelConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GenerationModel returns the connection settings for the code generator.
func (c *Config) GenerationModel() ModelConfig {
	return ModelConfig{
		APIKey:         strings.TrimSpace(c.Generation.APIKey),
		BaseURL:        strings.TrimSpace(c.Generation.BaseURL),
		Model:          strings.TrimSpace(c.Generation.Model),
		Referer:        strings.TrimSpace(c.Generation.Referer),
		Title:          strings.TrimSpace(c.Generation.Title),
		TimeoutSeconds: c.Generation.TimeoutSeconds,
	}
}

// VisionModel returns the connection settings for the vision analyzer.
// Falls back to [generation] credentials when not explicitly configured.
func (c *Config) VisionModel() ModelConfig {
	cfg := ModelConfig{
		APIKey:         strings.TrimSpace(c.Vision.APIKey),
		BaseURL:        strings.TrimSpace(c.Vision.BaseURL),
		Model:          strings.TrimSpace(c.Vision.Model),
		Referer:        strings.TrimSpace(c.Generation.Referer),
		Title:          strings.TrimSpace(c.Generation.Title),
		TimeoutSeconds: c.Vision.TimeoutSeconds,
	}
	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(c.Generation.APIKey)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = strings.TrimSpace(c.Generation.BaseURL)
	}
	return cfg
}
