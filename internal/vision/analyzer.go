package vision

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"scenesmith/internal/config"
	"scenesmith/internal/frames"
	"scenesmith/internal/jobstore"
	"scenesmith/internal/logging"
	"scenesmith/internal/services"
	"scenesmith/internal/services/llm"
)

// VisionCompleter is the slice of the chat client the analyzer needs.
type VisionCompleter interface {
	CompleteVision(ctx context.Context, systemPrompt, userPrompt string, images []llm.Image) (string, error)
}

const (
	defaultBatchSize     = 15
	defaultMaxConcurrent = 2
)

// Report is the outcome of one analysis pass over a frame set.
type Report struct {
	Issues         []jobstore.IssueReport
	FramesAnalyzed int
	BatchNotes     []string
}

// Analyzer fans frame batches out to the vision model.
type Analyzer struct {
	client        VisionCompleter
	batchSize     int
	maxConcurrent int
	logger        *slog.Logger
}

// NewAnalyzer constructs an Analyzer from configuration.
func NewAnalyzer(client VisionCompleter, cfg *config.Config, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = logging.NewNop()
	}
	batchSize := cfg.Vision.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	maxConcurrent := cfg.Vision.MaxConcurrentBatches
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &Analyzer{
		client:        client,
		batchSize:     batchSize,
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}
}

// Analyze reviews every frame and returns the deduplicated issue list. A
// batch whose request or parse fails contributes a diagnostic note instead of
// an error; only an empty frame list or a cancelled context fails the call.
func (a *Analyzer) Analyze(ctx context.Context, frameSet []frames.Frame) (Report, error) {
	if len(frameSet) == 0 {
		return Report{}, services.Wrap(services.ErrVerification, "vision", "analyze", "no frames to analyze", nil)
	}

	batches := chunkFrames(frameSet, a.batchSize)
	type batchResult struct {
		index  int
		issues []jobstore.IssueReport
		note   string
	}

	results := make([]batchResult, len(batches))
	sem := make(chan struct{}, a.maxConcurrent)
	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(i int, batch []frames.Frame) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			issues, note := a.analyzeBatch(ctx, batch, len(frameSet))
			results[i] = batchResult{index: i, issues: issues, note: note}
		}(i, batch)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	report := Report{FramesAnalyzed: len(frameSet)}
	for _, result := range results {
		report.Issues = append(report.Issues, result.issues...)
		if result.note != "" {
			report.BatchNotes = append(report.BatchNotes, result.note)
		}
	}
	report.Issues = dedupeIssues(report.Issues)
	sort.SliceStable(report.Issues, func(i, j int) bool {
		return report.Issues[i].FrameIndex < report.Issues[j].FrameIndex
	})
	a.logger.Info("visual analysis complete",
		slog.Int("frames", report.FramesAnalyzed),
		slog.Int("issues", len(report.Issues)),
		slog.Int("failed_batches", len(report.BatchNotes)))
	return report, nil
}

func (a *Analyzer) analyzeBatch(ctx context.Context, batch []frames.Frame, frameCount int) ([]jobstore.IssueReport, string) {
	if len(batch) == 0 {
		return nil, ""
	}
	images := make([]llm.Image, len(batch))
	for i, frame := range batch {
		images[i] = llm.Image{Data: frame.Image, MIME: "image/png"}
	}
	content, err := a.client.CompleteVision(ctx, rubricSystemPrompt, batchUserPrompt(batch), images)
	if err != nil {
		note := fmt.Sprintf("batch starting at frame %d failed: %v", batch[0].EventIndex, err)
		a.logger.Warn("vision batch failed", logging.Error(err))
		return nil, note
	}
	raw, err := parseIssues(content, batch[0].EventIndex)
	if err != nil {
		note := fmt.Sprintf("batch starting at frame %d returned unusable response: %v", batch[0].EventIndex, err)
		a.logger.Warn("vision batch unparseable", logging.Error(err))
		return nil, note
	}
	issues := make([]jobstore.IssueReport, 0, len(raw))
	for _, issue := range raw {
		normalized := normalizeIssue(issue, frameCount)
		if normalized.Description == "" {
			continue
		}
		issues = append(issues, normalized)
	}
	return issues, ""
}

func chunkFrames(frameSet []frames.Frame, size int) [][]frames.Frame {
	var batches [][]frames.Frame
	for start := 0; start < len(frameSet); start += size {
		end := start + size
		if end > len(frameSet) {
			end = len(frameSet)
		}
		batches = append(batches, frameSet[start:end])
	}
	return batches
}
