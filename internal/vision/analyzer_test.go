package vision

import (
	"context"
	"errors"
	"sync"
	"testing"

	"scenesmith/internal/frames"
	"scenesmith/internal/jobstore"
	"scenesmith/internal/services/llm"
	"scenesmith/internal/testsupport"
)

type fakeVision struct {
	mu        sync.Mutex
	responses map[int]string
	err       error
	calls     int
	batchLens []int
}

func (f *fakeVision) CompleteVision(_ context.Context, _, _ string, images []llm.Image) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.batchLens = append(f.batchLens, len(images))
	if f.err != nil {
		return "", f.err
	}
	if resp, ok := f.responses[f.calls]; ok {
		return resp, nil
	}
	return `{"issues":[]}`, nil
}

func frameSet(n int) []frames.Frame {
	set := make([]frames.Frame, n)
	for i := range set {
		set[i] = frames.Frame{EventIndex: i, Image: []byte{1}, SampleTime: float64(i)}
	}
	return set
}

func newAnalyzer(t *testing.T, client VisionCompleter, batchSize int) *Analyzer {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Vision.BatchSize = batchSize
	cfg.Vision.MaxConcurrentBatches = 2
	return NewAnalyzer(client, cfg, nil)
}

func TestAnalyzeBatchesFrames(t *testing.T) {
	client := &fakeVision{}
	analyzer := newAnalyzer(t, client, 10)

	report, err := analyzer.Analyze(context.Background(), frameSet(25))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if client.calls != 3 {
		t.Fatalf("expected 3 batches, got %d", client.calls)
	}
	if report.FramesAnalyzed != 25 {
		t.Fatalf("frames analyzed = %d", report.FramesAnalyzed)
	}
	total := 0
	for _, n := range client.batchLens {
		total += n
	}
	if total != 25 {
		t.Fatalf("batches covered %d frames", total)
	}
}

func TestAnalyzeCollectsAndDedupesIssues(t *testing.T) {
	client := &fakeVision{responses: map[int]string{
		1: `{"issues":[
			{"frame_index":2,"severity":"high","kind":"overlap","description":"title covers diagram"},
			{"frame_index":2,"severity":"high","kind":"overlap","description":"title covers diagram"},
			{"frame_index":99,"severity":"silly","kind":"martian","description":"odd"}
		]}`,
	}}
	analyzer := newAnalyzer(t, client, 10)

	report, err := analyzer.Analyze(context.Background(), frameSet(5))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(report.Issues) != 2 {
		t.Fatalf("expected 2 issues after dedupe, got %d: %v", len(report.Issues), report.Issues)
	}
	if report.Issues[0].FrameIndex != 2 || report.Issues[0].Kind != jobstore.IssueOverlap {
		t.Fatalf("unexpected first issue %+v", report.Issues[0])
	}
	odd := report.Issues[1]
	if odd.FrameIndex != 4 || odd.Severity != jobstore.SeverityMedium || odd.Kind != jobstore.IssueOther {
		t.Fatalf("out-of-vocabulary issue not normalized: %+v", odd)
	}
}

func TestAnalyzeIsolatesBatchFailures(t *testing.T) {
	client := &fakeVision{err: errors.New("model offline")}
	analyzer := newAnalyzer(t, client, 5)

	report, err := analyzer.Analyze(context.Background(), frameSet(10))
	if err != nil {
		t.Fatalf("batch failures should not fail the pass: %v", err)
	}
	if len(report.Issues) != 0 {
		t.Fatalf("expected no issues, got %v", report.Issues)
	}
	if len(report.BatchNotes) != 2 {
		t.Fatalf("expected 2 diagnostic notes, got %v", report.BatchNotes)
	}
}

func TestAnalyzeRequiresFrames(t *testing.T) {
	analyzer := newAnalyzer(t, &fakeVision{}, 5)
	if _, err := analyzer.Analyze(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty frame set")
	}
}

func TestParseIssuesFallbacks(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    int
	}{
		{"strict object", `{"issues":[{"frame_index":0,"severity":"low","kind":"other","description":"x"}]}`, 1},
		{"strict array", `[{"frame_index":0,"severity":"low","kind":"other","description":"x"}]`, 1},
		{"fenced", "```json\n{\"issues\":[{\"frame_index\":1,\"severity\":\"high\",\"kind\":\"overlap\",\"description\":\"y\"}]}\n```", 1},
		{"array in prose", `Here you go: [{"frame_index":3,"severity":"medium","kind":"crowding","description":"z"}] enjoy`, 1},
		{"free text defect", "The second frame shows a label sliding off screen.", 1},
		{"free text clean", "No issues found, everything looks good.", 0},
	}
	for _, tc := range cases {
		issues, err := parseIssues(tc.content, 0)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
			continue
		}
		if len(issues) != tc.want {
			t.Errorf("%s: got %d issues, want %d", tc.name, len(issues), tc.want)
		}
	}
	if _, err := parseIssues("", 0); err == nil {
		t.Error("empty content should error")
	}
}

func TestGrade(t *testing.T) {
	high := jobstore.IssueReport{Severity: jobstore.SeverityHigh}
	medium := jobstore.IssueReport{Severity: jobstore.SeverityMedium}
	low := jobstore.IssueReport{Severity: jobstore.SeverityLow}

	cases := []struct {
		name   string
		issues []jobstore.IssueReport
		want   string
	}{
		{"clean", nil, jobstore.QualityGradeGood},
		{"two lows", []jobstore.IssueReport{low, low}, jobstore.QualityGradeGood},
		{"one high", []jobstore.IssueReport{high}, jobstore.QualityGradeAcceptable},
		{"four medium", []jobstore.IssueReport{medium, medium, medium, medium}, jobstore.QualityGradeAcceptable},
		{"five medium", []jobstore.IssueReport{medium, medium, medium, medium, medium}, jobstore.QualityGradePoor},
	}
	for _, tc := range cases {
		if got := Grade(tc.issues); got != tc.want {
			t.Errorf("%s: Grade = %q, want %q", tc.name, got, tc.want)
		}
	}
}
