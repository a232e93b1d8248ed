package frames

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"scenesmith/internal/codegen"
	"scenesmith/internal/config"
	"scenesmith/internal/jobstore"
	"scenesmith/internal/logging"
	"scenesmith/internal/media/ffprobe"
	"scenesmith/internal/services"
)

// ExtractionMethod identifies the sampling strategy recorded on the analysis.
const ExtractionMethod = "timestamp_based"

const defaultExtractTimeout = 30 * time.Second

var commandContext = exec.CommandContext

// Frame is one still image sampled for an animation event.
type Frame struct {
	EventIndex  int
	Image       []byte
	SampleTime  float64
	Placeholder bool
}

// Sampler extracts frames with ffmpeg, probing the video for its real
// duration first so the last event's midpoint lands inside the file.
type Sampler struct {
	ffmpegBinary  string
	ffprobeBinary string
	timeout       time.Duration
	logger        *slog.Logger
}

// NewSampler constructs a Sampler from configuration.
func NewSampler(cfg *config.Config, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := defaultExtractTimeout
	if cfg.Frames.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Frames.TimeoutSeconds) * time.Second
	}
	return &Sampler{
		ffmpegBinary:  cfg.FFmpegBinary(),
		ffprobeBinary: cfg.FFprobeBinary(),
		timeout:       timeout,
		logger:        logger,
	}
}

// Extract returns exactly one Frame per event, in event order. A frame that
// cannot be extracted becomes a placeholder plus a low-severity issue rather
// than aborting the pass. Only a missing tool fails the whole call.
func (s *Sampler) Extract(ctx context.Context, videoPath string, events []codegen.Event) ([]Frame, []jobstore.IssueReport, error) {
	if len(events) == 0 {
		return nil, nil, services.Wrap(services.ErrFrameExtraction, "frames", "extract", "no animation events to sample", nil)
	}
	if _, err := exec.LookPath(s.ffmpegBinary); err != nil {
		return nil, nil, services.Wrap(services.ErrFrameExtraction, "frames", "preflight",
			fmt.Sprintf("extraction tool %q not found", s.ffmpegBinary), err)
	}
	if _, err := os.Stat(videoPath); err != nil {
		return nil, nil, services.Wrap(services.ErrFrameExtraction, "frames", "preflight", "rendered video missing", err)
	}

	duration := s.videoDuration(ctx, videoPath, events)
	times := sampleTimes(events, duration)

	workDir, err := os.MkdirTemp("", "scenesmith-frames-*")
	if err != nil {
		return nil, nil, services.Wrap(services.ErrFrameExtraction, "frames", "extract", "create scratch directory", err)
	}
	defer os.RemoveAll(workDir)

	frames := make([]Frame, 0, len(events))
	var issues []jobstore.IssueReport
	for i, sampleTime := range times {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		data, err := s.extractOne(ctx, videoPath, sampleTime, filepath.Join(workDir, fmt.Sprintf("frame-%04d.png", i)))
		if err != nil {
			s.logger.Warn("frame extraction failed, using placeholder",
				slog.Int("event", i),
				slog.Float64("sample_time", sampleTime),
				logging.Error(err))
			frames = append(frames, Frame{EventIndex: i, Image: placeholderPNG(), SampleTime: sampleTime, Placeholder: true})
			issues = append(issues, jobstore.IssueReport{
				FrameIndex:  i,
				Severity:    jobstore.SeverityLow,
				Kind:        jobstore.IssueOther,
				Description: fmt.Sprintf("frame at %.2fs could not be extracted: %v", sampleTime, err),
			})
			continue
		}
		frames = append(frames, Frame{EventIndex: i, Image: data, SampleTime: sampleTime})
	}
	return frames, issues, nil
}

// videoDuration prefers the container's reported duration and falls back to
// the declared timeline when probing fails.
func (s *Sampler) videoDuration(ctx context.Context, videoPath string, events []codegen.Event) float64 {
	result, err := ffprobe.Inspect(ctx, s.ffprobeBinary, videoPath)
	if err == nil {
		if d := result.DurationSeconds(); d > 0 {
			return d
		}
	} else {
		s.logger.Warn("ffprobe failed, falling back to declared timeline", logging.Error(err))
	}
	return codegen.TotalDuration(events)
}

// sampleTimes picks the midpoint between each event's start and the next
// event's start; the last event runs to the end of the video. Times are
// clamped inside the file so the seek never lands past the final frame.
func sampleTimes(events []codegen.Event, duration float64) []float64 {
	times := make([]float64, len(events))
	for i, event := range events {
		end := duration
		if i+1 < len(events) {
			end = events[i+1].StartSeconds
		}
		mid := (event.StartSeconds + end) / 2
		if duration > 0 {
			limit := duration - 0.05
			if limit < 0 {
				limit = 0
			}
			if mid > limit {
				mid = limit
			}
		}
		if mid < 0 {
			mid = 0
		}
		times[i] = mid
	}
	return times
}

func (s *Sampler) extractOne(ctx context.Context, videoPath string, sampleTime float64, outPath string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := []string{
		"-y",
		"-ss", strconv.FormatFloat(sampleTime, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		outPath,
	}
	cmd := commandContext(runCtx, s.ffmpegBinary, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(output.Bytes()))
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read extracted frame: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("extracted frame is empty")
	}
	return data, nil
}

// HealthCheck verifies the extraction tools are resolvable.
func (s *Sampler) HealthCheck() error {
	if _, err := exec.LookPath(s.ffmpegBinary); err != nil {
		return fmt.Errorf("ffmpeg binary %q not found: %w", s.ffmpegBinary, err)
	}
	if _, err := exec.LookPath(s.ffprobeBinary); err != nil {
		return fmt.Errorf("ffprobe binary %q not found: %w", s.ffprobeBinary, err)
	}
	return nil
}

// placeholderPNG returns a 1x1 black PNG used when extraction fails. The
// vision model sees it as an obviously empty frame rather than a hole in the
// batch indexing.
func placeholderPNG() []byte {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}
