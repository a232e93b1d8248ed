package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scenesmith/internal/api"
	"scenesmith/internal/cleanup"
	"scenesmith/internal/codegen"
	"scenesmith/internal/daemon"
	"scenesmith/internal/frames"
	"scenesmith/internal/jobstore"
	"scenesmith/internal/ledger"
	"scenesmith/internal/logging"
	"scenesmith/internal/render"
	"scenesmith/internal/repair"
	"scenesmith/internal/testsupport"
	"scenesmith/internal/vision"
	"scenesmith/internal/workflow"
)

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, prompt, sceneName string) (codegen.Result, error) {
	return codegen.Result{
		SceneName: "DrawACircle",
		Source:    "from manim import *\n\nclass DrawACircle(Scene):\n    def construct(self):\n        self.play(Create(Circle()))\n",
		Events: []codegen.Event{
			{Index: 0, Kind: codegen.EventPlay, StartSeconds: 0, DurationSeconds: 2},
		},
	}, nil
}

type stubRenderer struct {
	mediaRoot string
}

func (r stubRenderer) Render(ctx context.Context, sourcePath, sceneName string, quality jobstore.Quality, mediaRoot string) (render.Result, error) {
	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	video := filepath.Join(r.mediaRoot, "videos", stem, "720p30", sceneName+".mp4")
	if err := os.MkdirAll(filepath.Dir(video), 0o755); err != nil {
		return render.Result{}, err
	}
	if err := os.WriteFile(video, []byte("mp4-bytes"), 0o644); err != nil {
		return render.Result{}, err
	}
	return render.Result{VideoPath: video, PartialFiles: []string{video}}, nil
}

type stubExtractor struct{}

func (stubExtractor) Extract(ctx context.Context, videoPath string, events []codegen.Event) ([]frames.Frame, []jobstore.IssueReport, error) {
	out := make([]frames.Frame, len(events))
	for i := range events {
		out[i] = frames.Frame{EventIndex: i, Image: []byte{0x89}}
	}
	return out, nil, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, frameSet []frames.Frame) (vision.Report, error) {
	return vision.Report{FramesAnalyzed: len(frameSet)}, nil
}

type stubPlanner struct{}

func (stubPlanner) Plan(ctx context.Context, source string, issues []jobstore.IssueReport) (repair.Outcome, error) {
	return repair.Outcome{Accepted: false, Reason: "no candidate"}, nil
}

func newTestDaemon(t *testing.T) (*daemon.Daemon, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)
	eventLog, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger open: %v", err)
	}
	t.Cleanup(func() { eventLog.Close() })

	logger := logging.NewNop()
	pipeline := workflow.NewPipeline(cfg, store, eventLog,
		stubGenerator{}, stubRenderer{mediaRoot: cfg.MediaDir()},
		stubExtractor{}, stubAnalyzer{}, stubPlanner{}, logger)
	manager := workflow.NewManager(cfg, store, eventLog, pipeline, nil, nil, logger)
	cleaner := cleanup.New(store, eventLog, cfg, logger)

	d, err := daemon.New(cfg, store, eventLog, manager, cleaner, logger)
	if err != nil {
		t.Fatalf("daemon new: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, "http://" + d.Addr()
}

func submitJob(t *testing.T, base, prompt string) string {
	t.Helper()
	body, _ := json.Marshal(api.SubmitRequest{Prompt: prompt})
	resp, err := http.Post(base+"/api/videos", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		payload, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected submit status %d: %s", resp.StatusCode, payload)
	}
	var ack api.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	if ack.JobID == "" || ack.Status != string(jobstore.StatusPending) {
		t.Fatalf("unexpected ack %+v", ack)
	}
	return ack.JobID
}

func waitForCompleted(t *testing.T, base, jobID string) api.JobView {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(fmt.Sprintf("%s/api/jobs/%s", base, jobID))
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		var view api.JobView
		err = json.NewDecoder(resp.Body).Decode(&view)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode job: %v", err)
		}
		if view.Status == jobstore.StatusCompleted {
			return view
		}
		if view.Status == jobstore.StatusFailed {
			t.Fatalf("job failed: %s", view.Error)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("job never completed")
	return api.JobView{}
}

func TestDaemonEndToEnd(t *testing.T) {
	_, base := newTestDaemon(t)

	jobID := submitJob(t, base, "draw a circle")
	view := waitForCompleted(t, base, jobID)
	if view.VideoURL != "/api/videos/"+jobID {
		t.Fatalf("unexpected video url %q", view.VideoURL)
	}

	resp, err := http.Get(base + view.VideoURL)
	if err != nil {
		t.Fatalf("fetch video: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected video status %d", resp.StatusCode)
	}
	payload, _ := io.ReadAll(resp.Body)
	if string(payload) != "mp4-bytes" {
		t.Fatalf("unexpected video body %q", payload)
	}
}

func TestDaemonVideoConflictBeforeCompletion(t *testing.T) {
	_, base := newTestDaemon(t)

	// A job that was never picked up has no video yet.
	body, _ := json.Marshal(api.SubmitRequest{Prompt: "draw a square", Quality: "low"})
	resp, err := http.Post(base+"/api/videos", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var ack api.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()

	videoResp, err := http.Get(base + "/api/videos/" + ack.JobID)
	if err != nil {
		t.Fatalf("fetch video: %v", err)
	}
	defer videoResp.Body.Close()
	if videoResp.StatusCode != http.StatusConflict && videoResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", videoResp.StatusCode)
	}
}

func TestDaemonListAndHealth(t *testing.T) {
	_, base := newTestDaemon(t)

	jobID := submitJob(t, base, "draw a triangle")
	waitForCompleted(t, base, jobID)

	resp, err := http.Get(base + "/api/jobs?limit=10")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var list api.JobListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	resp.Body.Close()
	if list.Total != 1 || len(list.Jobs) != 1 {
		t.Fatalf("unexpected list %+v", list)
	}

	healthResp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	var health api.HealthResponse
	if err := json.NewDecoder(healthResp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	healthResp.Body.Close()
	if health.Jobs.Total != 1 || health.Jobs.Completed != 1 {
		t.Fatalf("unexpected health %+v", health)
	}
	if health.Timestamp.IsZero() {
		t.Fatal("expected a timestamp")
	}
}

func TestDaemonDeleteRemovesJob(t *testing.T) {
	_, base := newTestDaemon(t)

	jobID := submitJob(t, base, "draw a star")
	view := waitForCompleted(t, base, jobID)

	req, _ := http.NewRequest(http.MethodDelete, base+"/api/jobs/"+jobID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected delete status %d", resp.StatusCode)
	}

	getResp, err := http.Get(base + "/api/jobs/" + jobID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", getResp.StatusCode)
	}
	if _, err := os.Stat(view.VideoPath); !os.IsNotExist(err) {
		t.Fatalf("expected video artifact to be removed: %v", err)
	}
}

func TestDaemonEventsEndpoint(t *testing.T) {
	_, base := newTestDaemon(t)

	jobID := submitJob(t, base, "draw a hexagon")
	waitForCompleted(t, base, jobID)

	resp, err := http.Get(base + "/api/jobs/" + jobID + "/events")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var events api.EventListResponse
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	resp.Body.Close()
	if len(events.Events) == 0 {
		t.Fatal("expected recorded events")
	}
	last := events.Events[len(events.Events)-1]
	if last.Event != "completed" {
		t.Fatalf("unexpected final event %q", last.Event)
	}
}

func TestDaemonRejectsInvalidSubmissions(t *testing.T) {
	_, base := newTestDaemon(t)

	resp, err := http.Post(base+"/api/videos", "application/json", bytes.NewReader([]byte("{")))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", resp.StatusCode)
	}

	body, _ := json.Marshal(api.SubmitRequest{Prompt: "", Quality: "medium"})
	resp, err = http.Post(base+"/api/videos", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank prompt, got %d", resp.StatusCode)
	}

	getResp, err := http.Get(base + "/api/jobs/does-not-exist")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", getResp.StatusCode)
	}
}
