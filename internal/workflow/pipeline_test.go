package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"scenesmith/internal/codegen"
	"scenesmith/internal/frames"
	"scenesmith/internal/jobstore"
	"scenesmith/internal/logging"
	"scenesmith/internal/render"
	"scenesmith/internal/repair"
	"scenesmith/internal/services"
	"scenesmith/internal/testsupport"
	"scenesmith/internal/vision"
)

func sampleEvents() []codegen.Event {
	return []codegen.Event{
		{Index: 0, Kind: codegen.EventPlay, StartSeconds: 0, DurationSeconds: 2},
		{Index: 1, Kind: codegen.EventWait, StartSeconds: 2, DurationSeconds: 1},
		{Index: 2, Kind: codegen.EventPlay, StartSeconds: 3, DurationSeconds: 2},
	}
}

type fakeGenerator struct {
	result codegen.Result
	err    error
	calls  int
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt, sceneName string) (codegen.Result, error) {
	f.calls++
	if f.err != nil {
		return codegen.Result{}, f.err
	}
	return f.result, nil
}

type fakeRenderer struct {
	mu     sync.Mutex
	calls  int
	videos []string
	errs   []error
}

func (f *fakeRenderer) Render(ctx context.Context, sourcePath, sceneName string, quality jobstore.Quality, mediaRoot string) (render.Result, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()
	if call < len(f.errs) && f.errs[call] != nil {
		return render.Result{}, f.errs[call]
	}
	video := "out.mp4"
	if len(f.videos) > 0 {
		if call < len(f.videos) {
			video = f.videos[call]
		} else {
			video = f.videos[len(f.videos)-1]
		}
	}
	return render.Result{VideoPath: video, PartialFiles: []string{video}}, nil
}

type fakeExtractor struct {
	issues []jobstore.IssueReport
}

func (f *fakeExtractor) Extract(ctx context.Context, videoPath string, events []codegen.Event) ([]frames.Frame, []jobstore.IssueReport, error) {
	out := make([]frames.Frame, len(events))
	for i := range events {
		out[i] = frames.Frame{EventIndex: i, Image: []byte{0x89, 0x50}}
	}
	return out, f.issues, nil
}

type fakeAnalyzer struct {
	mu      sync.Mutex
	calls   int
	reports [][]jobstore.IssueReport
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, frameSet []frames.Frame) (vision.Report, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()
	var issues []jobstore.IssueReport
	if call < len(f.reports) {
		issues = f.reports[call]
	}
	return vision.Report{Issues: issues, FramesAnalyzed: len(frameSet)}, nil
}

type fakePlanner struct {
	calls    int
	outcomes []repair.Outcome
	err      error
}

func (f *fakePlanner) Plan(ctx context.Context, source string, issues []jobstore.IssueReport) (repair.Outcome, error) {
	call := f.calls
	f.calls++
	if f.err != nil {
		return repair.Outcome{}, f.err
	}
	if call < len(f.outcomes) {
		return f.outcomes[call], nil
	}
	return repair.Outcome{Accepted: false, Reason: "no candidate"}, nil
}

func issueList(n int) []jobstore.IssueReport {
	out := make([]jobstore.IssueReport, n)
	for i := range out {
		out[i] = jobstore.IssueReport{
			FrameIndex:  i,
			Severity:    jobstore.SeverityMedium,
			Kind:        jobstore.IssueOverlap,
			Description: fmt.Sprintf("labels collide in step %d", i),
		}
	}
	return out
}

func generatedResult() codegen.Result {
	return codegen.Result{
		SceneName: "DrawACircle",
		Source:    "from manim import *\n\nclass DrawACircle(Scene):\n    def construct(self):\n        self.play(Create(Circle()))\n",
		Events:    sampleEvents(),
	}
}

func claimJob(t *testing.T, store *jobstore.Store) *jobstore.Job {
	t.Helper()
	job, err := store.ClaimPending(context.Background())
	if err != nil {
		t.Fatalf("claim pending: %v", err)
	}
	if job == nil {
		t.Fatal("no pending job to claim")
	}
	return job
}

func TestPipelineHappyPath(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRepairIterations(2))
	store := testsupport.MustOpenStore(t, cfg)
	gen := &fakeGenerator{result: generatedResult()}
	rend := &fakeRenderer{videos: []string{"first.mp4"}}
	analyze := &fakeAnalyzer{}
	pipeline := NewPipeline(cfg, store, nil, gen, rend, &fakeExtractor{}, analyze, &fakePlanner{}, logging.NewNop())

	testsupport.NewJob(t, store, "draw a circle", jobstore.QualityMedium)
	job := claimJob(t, store)
	if err := pipeline.Process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}

	stored, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != jobstore.StatusCompleted {
		t.Fatalf("unexpected status %s", stored.Status)
	}
	if stored.VideoPath != "first.mp4" {
		t.Fatalf("unexpected video path %q", stored.VideoPath)
	}
	if stored.Progress.Percentage != 100 {
		t.Fatalf("unexpected progress %.0f", stored.Progress.Percentage)
	}
	if stored.DurationSeconds != 5 {
		t.Fatalf("unexpected duration %.2f", stored.DurationSeconds)
	}
	if stored.VisualAnalysis == nil || stored.VisualAnalysis.OverallQuality != jobstore.QualityGradeGood {
		t.Fatalf("unexpected analysis %+v", stored.VisualAnalysis)
	}
	if stored.VisualAnalysis.TotalAnimations != 3 || stored.VisualAnalysis.FramesAnalyzed != 3 {
		t.Fatalf("unexpected analysis counts %+v", stored.VisualAnalysis)
	}
	if rend.calls != 1 {
		t.Fatalf("expected a single render, got %d", rend.calls)
	}
	if _, err := os.Stat(stored.SourcePath); err != nil {
		t.Fatalf("scene file missing: %v", err)
	}
}

func TestPipelineRepairAccepted(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRepairIterations(2))
	store := testsupport.MustOpenStore(t, cfg)
	gen := &fakeGenerator{result: generatedResult()}
	rend := &fakeRenderer{videos: []string{"first.mp4", "repaired.mp4"}}
	analyze := &fakeAnalyzer{reports: [][]jobstore.IssueReport{issueList(3), nil}}
	plan := &fakePlanner{outcomes: []repair.Outcome{{
		Accepted: true,
		Source:   "from manim import *\n\nclass DrawACircle(Scene):\n    def construct(self):\n        self.play(Create(Circle().shift(DOWN)))\n",
		Events:   sampleEvents(),
	}}}
	pipeline := NewPipeline(cfg, store, nil, gen, rend, &fakeExtractor{}, analyze, plan, logging.NewNop())

	testsupport.NewJob(t, store, "draw a circle", jobstore.QualityMedium)
	job := claimJob(t, store)
	if err := pipeline.Process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}

	stored, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != jobstore.StatusCompleted {
		t.Fatalf("unexpected status %s", stored.Status)
	}
	if stored.VideoPath != "repaired.mp4" {
		t.Fatalf("expected repaired video, got %q", stored.VideoPath)
	}
	fix := stored.VisualAnalysis.AutoFix
	if fix == nil || !fix.Applied || !fix.Success {
		t.Fatalf("unexpected auto fix record %+v", fix)
	}
	if fix.IssuesBefore != 3 || fix.IssuesAfter != 0 {
		t.Fatalf("unexpected issue counts %+v", fix)
	}
	if stored.Attempts != 2 {
		t.Fatalf("expected two render attempts, got %d", stored.Attempts)
	}
}

func TestPipelineRepairRolledBack(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRepairIterations(2))
	store := testsupport.MustOpenStore(t, cfg)
	original := generatedResult()
	gen := &fakeGenerator{result: original}
	rend := &fakeRenderer{videos: []string{"first.mp4", "worse.mp4"}}
	analyze := &fakeAnalyzer{reports: [][]jobstore.IssueReport{issueList(2), issueList(2)}}
	plan := &fakePlanner{outcomes: []repair.Outcome{{
		Accepted: true,
		Source:   "from manim import *\n\nclass DrawACircle(Scene):\n    def construct(self):\n        self.play(FadeIn(Circle()))\n",
		Events:   sampleEvents(),
	}}}
	pipeline := NewPipeline(cfg, store, nil, gen, rend, &fakeExtractor{}, analyze, plan, logging.NewNop())

	testsupport.NewJob(t, store, "draw a circle", jobstore.QualityMedium)
	job := claimJob(t, store)
	if err := pipeline.Process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}

	stored, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != jobstore.StatusCompleted {
		t.Fatalf("unexpected status %s", stored.Status)
	}
	if stored.VideoPath != "first.mp4" {
		t.Fatalf("expected the original video after rollback, got %q", stored.VideoPath)
	}
	fix := stored.VisualAnalysis.AutoFix
	if fix == nil || !fix.Applied || fix.Success {
		t.Fatalf("unexpected auto fix record %+v", fix)
	}
	if fix.IssuesBefore != 2 || fix.IssuesAfter != 2 {
		t.Fatalf("unexpected issue counts %+v", fix)
	}
	data, err := os.ReadFile(stored.SourcePath)
	if err != nil {
		t.Fatalf("read scene file: %v", err)
	}
	if string(data) != original.Source {
		t.Fatal("scene file was not restored after rollback")
	}
}

// overwritingRenderer mimics the real driver's output layout: every render of
// a job lands on the same canonical path, so a re-render clobbers the previous
// file. Each call writes distinct bytes to make overwrites observable.
type overwritingRenderer struct {
	mu    sync.Mutex
	calls int
	path  string
}

func (f *overwritingRenderer) Render(ctx context.Context, sourcePath, sceneName string, quality jobstore.Quality, mediaRoot string) (render.Result, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return render.Result{}, err
	}
	content := fmt.Sprintf("frames of render %d", call)
	if err := os.WriteFile(f.path, []byte(content), 0o644); err != nil {
		return render.Result{}, err
	}
	return render.Result{VideoPath: f.path, PartialFiles: []string{f.path}}, nil
}

func TestPipelineRollbackRestoresVideoBytes(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRepairIterations(2))
	store := testsupport.MustOpenStore(t, cfg)
	original := generatedResult()
	gen := &fakeGenerator{result: original}
	videoPath := filepath.Join(cfg.MediaDir(), "videos", "job", "720p30", "DrawACircle.mp4")
	rend := &overwritingRenderer{path: videoPath}
	analyze := &fakeAnalyzer{reports: [][]jobstore.IssueReport{issueList(2), issueList(3)}}
	plan := &fakePlanner{outcomes: []repair.Outcome{{
		Accepted: true,
		Source:   "from manim import *\n\nclass DrawACircle(Scene):\n    def construct(self):\n        self.play(FadeIn(Circle()))\n",
		Events:   sampleEvents(),
	}}}
	pipeline := NewPipeline(cfg, store, nil, gen, rend, &fakeExtractor{}, analyze, plan, logging.NewNop())

	testsupport.NewJob(t, store, "draw a circle", jobstore.QualityMedium)
	job := claimJob(t, store)
	if err := pipeline.Process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}

	stored, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != jobstore.StatusCompleted || stored.VideoPath != videoPath {
		t.Fatalf("unexpected terminal state %s %q", stored.Status, stored.VideoPath)
	}
	fix := stored.VisualAnalysis.AutoFix
	if fix == nil || !fix.Applied || fix.Success {
		t.Fatalf("unexpected auto fix record %+v", fix)
	}
	data, err := os.ReadFile(videoPath)
	if err != nil {
		t.Fatalf("read video: %v", err)
	}
	if string(data) != "frames of render 1" {
		t.Fatalf("rolled-back video holds the rejected render: %q", data)
	}
	if _, err := os.Stat(videoPath + ".accepted"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("backup copy not cleaned up: %v", err)
	}
}

func TestPipelineRepairRejectedKeepsVideo(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRepairIterations(2))
	store := testsupport.MustOpenStore(t, cfg)
	gen := &fakeGenerator{result: generatedResult()}
	rend := &fakeRenderer{videos: []string{"first.mp4"}}
	analyze := &fakeAnalyzer{reports: [][]jobstore.IssueReport{issueList(3)}}
	plan := &fakePlanner{outcomes: []repair.Outcome{{Accepted: false, Reason: "candidate dropped half the animation"}}}
	pipeline := NewPipeline(cfg, store, nil, gen, rend, &fakeExtractor{}, analyze, plan, logging.NewNop())

	testsupport.NewJob(t, store, "draw a circle", jobstore.QualityMedium)
	job := claimJob(t, store)
	if err := pipeline.Process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}

	stored, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != jobstore.StatusCompleted || stored.VideoPath != "first.mp4" {
		t.Fatalf("unexpected terminal state %s %q", stored.Status, stored.VideoPath)
	}
	fix := stored.VisualAnalysis.AutoFix
	if fix == nil || fix.Applied || fix.Success {
		t.Fatalf("unexpected auto fix record %+v", fix)
	}
	if fix.Error != "candidate dropped half the animation" {
		t.Fatalf("unexpected auto fix error %q", fix.Error)
	}
	if rend.calls != 1 {
		t.Fatalf("expected no re-render, got %d calls", rend.calls)
	}
}

func TestPipelineRerenderFailureRollsBack(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRepairIterations(2))
	store := testsupport.MustOpenStore(t, cfg)
	original := generatedResult()
	gen := &fakeGenerator{result: original}
	rend := &fakeRenderer{
		videos: []string{"first.mp4"},
		errs:   []error{nil, errors.New("manim exited with code 1")},
	}
	analyze := &fakeAnalyzer{reports: [][]jobstore.IssueReport{issueList(2)}}
	plan := &fakePlanner{outcomes: []repair.Outcome{{
		Accepted: true,
		Source:   "from manim import *\n\nclass DrawACircle(Scene):\n    def construct(self):\n        self.play(FadeIn(Circle()))\n",
		Events:   sampleEvents(),
	}}}
	pipeline := NewPipeline(cfg, store, nil, gen, rend, &fakeExtractor{}, analyze, plan, logging.NewNop())

	testsupport.NewJob(t, store, "draw a circle", jobstore.QualityMedium)
	job := claimJob(t, store)
	if err := pipeline.Process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}

	stored, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != jobstore.StatusCompleted || stored.VideoPath != "first.mp4" {
		t.Fatalf("unexpected terminal state %s %q", stored.Status, stored.VideoPath)
	}
	data, err := os.ReadFile(stored.SourcePath)
	if err != nil {
		t.Fatalf("read scene file: %v", err)
	}
	if string(data) != original.Source {
		t.Fatal("scene file was not restored after rollback")
	}
}

func TestPipelineGenerationFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	gen := &fakeGenerator{err: services.Wrap(services.ErrCodeGeneration, "codegen", "complete", "model unavailable", nil)}
	pipeline := NewPipeline(cfg, store, nil, gen, &fakeRenderer{}, &fakeExtractor{}, &fakeAnalyzer{}, &fakePlanner{}, logging.NewNop())

	testsupport.NewJob(t, store, "draw a circle", jobstore.QualityMedium)
	job := claimJob(t, store)
	err := pipeline.Process(context.Background(), job)
	if !errors.Is(err, services.ErrCodeGeneration) {
		t.Fatalf("expected code generation error, got %v", err)
	}
}

func TestPipelineMergesExtractionIssues(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	gen := &fakeGenerator{result: generatedResult()}
	extract := &fakeExtractor{issues: []jobstore.IssueReport{{
		FrameIndex:  1,
		Severity:    jobstore.SeverityLow,
		Kind:        jobstore.IssueOther,
		Description: "frame extraction failed at 2.50s",
	}}}
	pipeline := NewPipeline(cfg, store, nil, gen, &fakeRenderer{}, extract, &fakeAnalyzer{}, &fakePlanner{}, logging.NewNop())

	testsupport.NewJob(t, store, "draw a circle", jobstore.QualityMedium)
	job := claimJob(t, store)
	if err := pipeline.Process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}

	stored, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(stored.VisualAnalysis.Issues) != 1 {
		t.Fatalf("expected the extraction issue to be kept, got %+v", stored.VisualAnalysis.Issues)
	}
	if stored.VisualAnalysis.Issues[0].Kind != jobstore.IssueOther {
		t.Fatalf("unexpected issue %+v", stored.VisualAnalysis.Issues[0])
	}
}
