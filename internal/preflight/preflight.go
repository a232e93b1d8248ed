package preflight

import (
	"context"

	"scenesmith/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Data root", cfg.Paths.DataRoot))
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}

	results = append(results, CheckLLM(ctx, "Generation model", cfg.GenerationModel()))

	// When the vision analyzer resolves to the same endpoint and key, the
	// generation check already covers it.
	if visionUsesDistinctEndpoint(cfg) {
		results = append(results, CheckLLM(ctx, "Vision model", cfg.VisionModel()))
	}

	return results
}

func visionUsesDistinctEndpoint(cfg *config.Config) bool {
	generation := cfg.GenerationModel()
	vision := cfg.VisionModel()
	return generation.APIKey != vision.APIKey || generation.BaseURL != vision.BaseURL
}
