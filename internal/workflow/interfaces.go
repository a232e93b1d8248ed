package workflow

import (
	"context"

	"scenesmith/internal/codegen"
	"scenesmith/internal/frames"
	"scenesmith/internal/jobstore"
	"scenesmith/internal/render"
	"scenesmith/internal/repair"
	"scenesmith/internal/vision"
)

// CodeGenerator produces a validated scene file for a prompt.
type CodeGenerator interface {
	Generate(ctx context.Context, prompt, sceneName string) (codegen.Result, error)
}

// Renderer turns a scene file into a video.
type Renderer interface {
	Render(ctx context.Context, sourcePath, sceneName string, quality jobstore.Quality, mediaRoot string) (render.Result, error)
}

// FrameExtractor samples one still per animation event.
type FrameExtractor interface {
	Extract(ctx context.Context, videoPath string, events []codegen.Event) ([]frames.Frame, []jobstore.IssueReport, error)
}

// FrameAnalyzer reviews sampled frames for visual defects.
type FrameAnalyzer interface {
	Analyze(ctx context.Context, frameSet []frames.Frame) (vision.Report, error)
}

// RepairPlanner proposes and vets a corrected scene file.
type RepairPlanner interface {
	Plan(ctx context.Context, source string, issues []jobstore.IssueReport) (repair.Outcome, error)
}
