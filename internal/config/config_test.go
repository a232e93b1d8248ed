package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scenesmith/internal/config"
)

func TestLoadDefaultConfigUsesEnvKeyAndExpandsPaths(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantRoot := filepath.Join(tempHome, ".local", "share", "scenesmith")
	if cfg.Paths.DataRoot != wantRoot {
		t.Fatalf("unexpected data root: got %q want %q", cfg.Paths.DataRoot, wantRoot)
	}
	if cfg.JobsDir() != filepath.Join(wantRoot, "jobs") {
		t.Fatalf("unexpected jobs dir: %q", cfg.JobsDir())
	}
	if cfg.Paths.APIBind != "127.0.0.1:7823" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Generation.APIKey != "test-key" {
		t.Fatalf("expected generation key from env, got %q", cfg.Generation.APIKey)
	}
	if cfg.Vision.BatchSize != 15 {
		t.Fatalf("unexpected vision batch size: %d", cfg.Vision.BatchSize)
	}
	if cfg.Repair.MaxIterations != 2 {
		t.Fatalf("unexpected repair cap: %d", cfg.Repair.MaxIterations)
	}
	if cfg.RenderBinary() != "manim" {
		t.Fatalf("unexpected render binary: %q", cfg.RenderBinary())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.JobsDir(), cfg.ScenesDir(), cfg.MediaDir(), cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadReadsTOMLAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
data_root = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[generation]
api_key = "file-key"
model = " custom/model "

[vision]
batch_size = 5

[repair]
min_length_ratio = 1.7
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: %q %v", resolved, exists)
	}
	if cfg.Generation.APIKey != "file-key" {
		t.Fatalf("unexpected api key: %q", cfg.Generation.APIKey)
	}
	if cfg.Generation.Model != "custom/model" {
		t.Fatalf("expected trimmed model, got %q", cfg.Generation.Model)
	}
	if cfg.Vision.BatchSize != 5 {
		t.Fatalf("unexpected batch size: %d", cfg.Vision.BatchSize)
	}
	// Out-of-range ratio falls back to the default.
	if cfg.Repair.MinLengthRatio != 0.70 {
		t.Fatalf("unexpected length ratio: %v", cfg.Repair.MinLengthRatio)
	}
}

func TestValidateRejectsMissingAPIKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("GENERATION_API_KEY", "")
	t.Setenv("HOME", t.TempDir())

	_, _, _, err := config.Load("")
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
	if !strings.Contains(err.Error(), "generation.api_key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateHeartbeatOrdering(t *testing.T) {
	cfg := config.Default()
	cfg.Generation.APIKey = "k"
	cfg.Workflow.HeartbeatInterval = 30
	cfg.Workflow.HeartbeatTimeout = 30
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected heartbeat ordering validation error")
	}
}

func TestCreateSampleWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(body), "[generation]") {
		t.Fatal("expected sample to contain generation section")
	}
}
