package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"scenesmith/internal/codegen"
	"scenesmith/internal/config"
	"scenesmith/internal/frames"
	"scenesmith/internal/jobstore"
	"scenesmith/internal/ledger"
	"scenesmith/internal/logging"
	"scenesmith/internal/media/ffprobe"
	"scenesmith/internal/services"
	"scenesmith/internal/vision"
)

// Stage progress percentages. Monotonic across the phase sequence; the repair
// loop holds between repairing and rerendering until the job resolves.
const (
	progressGenerating  = 10
	progressRendering   = 30
	progressVerifying   = 70
	progressRepairing   = 85
	progressRerendering = 88
)

const defaultRepairCap = 2

// Pipeline executes one claimed job from code generation to resolution. The
// worker that calls Process is the job's single writer.
type Pipeline struct {
	store     *jobstore.Store
	eventLog  *ledger.Ledger
	generator CodeGenerator
	renderer  Renderer
	sampler   FrameExtractor
	analyzer  FrameAnalyzer
	planner   RepairPlanner

	scenesDir     string
	mediaDir      string
	ffprobeBinary string
	repairCap     int
	logger        *slog.Logger
}

// NewPipeline wires the pipeline components together.
func NewPipeline(
	cfg *config.Config,
	store *jobstore.Store,
	eventLog *ledger.Ledger,
	generator CodeGenerator,
	renderer Renderer,
	sampler FrameExtractor,
	analyzer FrameAnalyzer,
	planner RepairPlanner,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	repairCap := cfg.Repair.MaxIterations
	if repairCap < 0 {
		repairCap = defaultRepairCap
	}
	return &Pipeline{
		store:         store,
		eventLog:      eventLog,
		generator:     generator,
		renderer:      renderer,
		sampler:       sampler,
		analyzer:      analyzer,
		planner:       planner,
		scenesDir:     cfg.ScenesDir(),
		mediaDir:      cfg.MediaDir(),
		ffprobeBinary: cfg.FFprobeBinary(),
		repairCap:     repairCap,
		logger:        logger,
	}
}

// snapshot captures the state needed to roll a provisional repair back.
// videoBackup holds a copy of the accepted video file: the renderer writes
// every attempt for a job to the same canonical output path, so the re-render
// overwrites the accepted artifact before verification has decided.
type snapshot struct {
	source      string
	videoPath   string
	videoBackup string
	events      []codegen.Event
	issues      []jobstore.IssueReport
	analysis    *jobstore.VisualAnalysis
}

// Process drives a claimed job to completed. Any returned error leaves the
// job in its current processing status; the manager decides the terminal
// state from the error.
func (p *Pipeline) Process(ctx context.Context, job *jobstore.Job) error {
	logger := p.logger.With(logging.String(logging.FieldJobID, job.ID))

	result, err := p.generate(ctx, job, logger)
	if err != nil {
		return err
	}
	source := result.Source
	events := result.Events

	videoPath, err := p.render(ctx, job, false, logger)
	if err != nil {
		return err
	}

	issues, analysis, err := p.verify(ctx, job, videoPath, events, logger)
	if err != nil {
		return err
	}
	job.VisualAnalysis = analysis

	for iteration := 1; len(issues) > 0 && iteration <= p.repairCap; iteration++ {
		previous := snapshot{source: source, videoPath: videoPath, events: events, issues: issues, analysis: analysis}

		if err := p.transition(ctx, job, jobstore.StatusRepairing, progressRepairing,
			fmt.Sprintf("repair attempt %d of %d", iteration, p.repairCap)); err != nil {
			return err
		}
		outcome, err := p.planner.Plan(ctx, source, issues)
		if err != nil {
			return err
		}
		if !outcome.Accepted {
			logger.Info("repair candidate rejected, keeping current video",
				logging.String("reason", outcome.Reason))
			analysis.AutoFix = &jobstore.AutoFixRecord{
				Applied:       false,
				IssuesBefore:  len(issues),
				IssuesAfter:   len(issues),
				QualityBefore: analysis.OverallQuality,
				QualityAfter:  analysis.OverallQuality,
				Success:       false,
				Error:         outcome.Reason,
			}
			p.recordEvent(ctx, job.ID, "repair_rejected", outcome.Reason)
			break
		}

		backup, err := p.preserveVideo(videoPath)
		if err != nil {
			return err
		}
		previous.videoBackup = backup

		if err := p.writeSource(job, outcome.Source); err != nil {
			return err
		}
		candVideo, renderErr := p.render(ctx, job, true, logger)
		var candIssues []jobstore.IssueReport
		var candAnalysis *jobstore.VisualAnalysis
		if renderErr == nil {
			candIssues, candAnalysis, renderErr = p.verify(ctx, job, candVideo, outcome.Events, logger)
		}
		if renderErr != nil {
			if ctx.Err() != nil {
				return renderErr
			}
			logger.Warn("repair candidate failed downstream, rolling back", logging.Error(renderErr))
			if err := p.rollback(ctx, job, previous, fmt.Sprintf("candidate failed: %v", renderErr)); err != nil {
				return err
			}
			source, videoPath, events, issues, analysis =
				previous.source, previous.videoPath, previous.events, previous.issues, previous.analysis
			break
		}

		autoFix := &jobstore.AutoFixRecord{
			Applied:       true,
			IssuesBefore:  len(issues),
			IssuesAfter:   len(candIssues),
			QualityBefore: analysis.OverallQuality,
			QualityAfter:  candAnalysis.OverallQuality,
		}
		if len(candIssues) < len(issues) {
			autoFix.Success = true
			candAnalysis.AutoFix = autoFix
			p.discardBackup(previous.videoBackup)
			source, videoPath, events, issues, analysis = outcome.Source, candVideo, outcome.Events, candIssues, candAnalysis
			job.VisualAnalysis = analysis
			p.recordEvent(ctx, job.ID, "repair_accepted",
				fmt.Sprintf("issues %d -> %d", autoFix.IssuesBefore, autoFix.IssuesAfter))
			continue
		}

		// Net-negative repair: restore the pre-repair artifacts.
		autoFix.Success = false
		previous.analysis.AutoFix = autoFix
		if err := p.rollback(ctx, job, previous,
			fmt.Sprintf("issues %d -> %d, rolled back", autoFix.IssuesBefore, autoFix.IssuesAfter)); err != nil {
			return err
		}
		source, videoPath, events, issues, analysis =
			previous.source, previous.videoPath, previous.events, previous.issues, previous.analysis
		break
	}

	job.VisualAnalysis = analysis
	job.DurationSeconds = p.probeDuration(ctx, videoPath, events)
	job.SetCompleted(videoPath)
	if err := p.store.Update(ctx, job); err != nil {
		return fmt.Errorf("persist completion: %w", err)
	}
	p.recordEvent(ctx, job.ID, "completed", videoPath)
	logger.Info("job completed",
		logging.String("video", videoPath),
		logging.Int("issues_remaining", len(issues)),
		logging.Int("attempts", job.Attempts))
	return nil
}

func (p *Pipeline) generate(ctx context.Context, job *jobstore.Job, logger *slog.Logger) (codegen.Result, error) {
	job.SetProgress(stageLabel(jobstore.StatusGeneratingCode), "asking the model for scene code", progressGenerating)
	if err := p.store.Update(ctx, job); err != nil {
		return codegen.Result{}, err
	}

	result, err := p.generator.Generate(ctx, job.Prompt, job.SceneName)
	if err != nil {
		return codegen.Result{}, err
	}
	if len(result.Events) == 0 {
		return codegen.Result{}, services.Wrap(services.ErrCodeGeneration, "codegen", "validate",
			"generated scene declares no animation events", nil)
	}
	job.SceneName = result.SceneName
	if err := p.writeSource(job, result.Source); err != nil {
		return codegen.Result{}, err
	}
	if err := p.store.Update(ctx, job); err != nil {
		return codegen.Result{}, err
	}
	logger.Info("scene source persisted",
		logging.String("scene", result.SceneName),
		logging.Int("events", len(result.Events)))
	return result, nil
}

func (p *Pipeline) render(ctx context.Context, job *jobstore.Job, rerender bool, logger *slog.Logger) (string, error) {
	status := jobstore.StatusRendering
	percent := float64(progressRendering)
	if rerender {
		status = jobstore.StatusRerendering
		percent = progressRerendering
	}
	if err := p.transition(ctx, job, status, percent, "rendering video"); err != nil {
		return "", err
	}
	job.Attempts++
	if err := p.store.Update(ctx, job); err != nil {
		return "", err
	}
	p.recordEvent(ctx, job.ID, "render_attempt", fmt.Sprintf("attempt %d", job.Attempts))

	result, err := p.renderer.Render(ctx, job.SourcePath, job.SceneName, job.Quality, p.mediaDir)
	if err != nil {
		return "", services.Wrap(services.ErrRender, "render", "render", "renderer failed", err)
	}
	logger.Info("render finished",
		logging.String("video", result.VideoPath),
		logging.Int("partials", len(result.PartialFiles)))
	return result.VideoPath, nil
}

func (p *Pipeline) verify(ctx context.Context, job *jobstore.Job, videoPath string, events []codegen.Event, logger *slog.Logger) ([]jobstore.IssueReport, *jobstore.VisualAnalysis, error) {
	if err := p.transition(ctx, job, jobstore.StatusVerifying, progressVerifying, "analyzing sampled frames"); err != nil {
		return nil, nil, err
	}

	frameSet, extractionIssues, err := p.sampler.Extract(ctx, videoPath, events)
	if err != nil {
		return nil, nil, err
	}
	report, err := p.analyzer.Analyze(ctx, frameSet)
	if err != nil {
		return nil, nil, err
	}
	issues := append(extractionIssues, report.Issues...)

	analysis := &jobstore.VisualAnalysis{
		FramesAnalyzed:   report.FramesAnalyzed,
		TotalAnimations:  len(events),
		ExtractionMethod: frames.ExtractionMethod,
		Issues:           issues,
		OverallQuality:   vision.Grade(issues),
	}
	job.VisualAnalysis = analysis
	if err := p.store.Update(ctx, job); err != nil {
		return nil, nil, err
	}
	logger.Info("verification finished",
		logging.Int("frames", report.FramesAnalyzed),
		logging.Int("issues", len(issues)),
		logging.String("quality", analysis.OverallQuality))
	return issues, analysis, nil
}

// rollback restores the previous source file, video bytes, and analysis
// after a repair round made things worse or broke the render.
func (p *Pipeline) rollback(ctx context.Context, job *jobstore.Job, previous snapshot, detail string) error {
	if err := p.writeSource(job, previous.source); err != nil {
		return err
	}
	if err := p.restoreVideo(previous.videoBackup, previous.videoPath); err != nil {
		return err
	}
	job.VisualAnalysis = previous.analysis
	if err := p.store.Update(ctx, job); err != nil {
		return err
	}
	p.recordEvent(ctx, job.ID, "repair_rollback", detail)
	return nil
}

// preserveVideo copies the accepted video aside before a candidate re-render
// can overwrite its canonical path. A video that was never written to disk
// (nothing to clobber) yields an empty backup path.
func (p *Pipeline) preserveVideo(videoPath string) (string, error) {
	data, err := os.ReadFile(videoPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("preserve accepted video: %w", err)
	}
	backup := videoPath + ".accepted"
	if err := os.WriteFile(backup, data, 0o644); err != nil {
		return "", fmt.Errorf("preserve accepted video: %w", err)
	}
	return backup, nil
}

func (p *Pipeline) restoreVideo(backup, videoPath string) error {
	if backup == "" {
		return nil
	}
	if err := os.Rename(backup, videoPath); err != nil {
		return fmt.Errorf("restore accepted video: %w", err)
	}
	return nil
}

func (p *Pipeline) discardBackup(backup string) {
	if backup == "" {
		return
	}
	if err := os.Remove(backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
		p.logger.Warn("stale video backup left behind",
			logging.String("path", backup),
			logging.Error(err))
	}
}

func (p *Pipeline) transition(ctx context.Context, job *jobstore.Job, status jobstore.Status, percent float64, message string) error {
	from := job.Status
	job.Status = status
	job.SetProgress(stageLabel(status), message, percent)
	if err := p.store.Update(ctx, job); err != nil {
		return fmt.Errorf("persist %s transition: %w", status, err)
	}
	if p.eventLog != nil {
		if err := p.eventLog.Record(ctx, job.ID, "status_change", string(from), string(status), message); err != nil {
			p.logger.Warn("ledger record failed",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err))
		}
	}
	return nil
}

// writeSource persists the current scene file for the job.
func (p *Pipeline) writeSource(job *jobstore.Job, source string) error {
	path := filepath.Join(p.scenesDir, job.ID+".py")
	if err := os.MkdirAll(p.scenesDir, 0o755); err != nil {
		return fmt.Errorf("create scenes directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		return fmt.Errorf("write scene file: %w", err)
	}
	job.SourcePath = path
	return nil
}

// probeDuration asks ffprobe for the real video length, falling back to the
// declared timeline.
func (p *Pipeline) probeDuration(ctx context.Context, videoPath string, events []codegen.Event) float64 {
	if result, err := ffprobe.Inspect(ctx, p.ffprobeBinary, videoPath); err == nil {
		if d := result.DurationSeconds(); d > 0 {
			return d
		}
	}
	return codegen.TotalDuration(events)
}

func (p *Pipeline) recordEvent(ctx context.Context, jobID, event, detail string) {
	if p.eventLog == nil {
		return
	}
	if err := p.eventLog.Record(ctx, jobID, event, "", "", detail); err != nil {
		p.logger.Warn("ledger record failed",
			logging.String(logging.FieldJobID, jobID),
			logging.String("event", event),
			logging.Error(err))
	}
}

func stageLabel(status jobstore.Status) string {
	return strings.ReplaceAll(string(status), "_", " ")
}
