package notifications

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"scenesmith/internal/testsupport"
)

func TestNewServiceReturnsNoopWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""
	service := NewService(cfg)
	if _, ok := service.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", service)
	}
	if err := service.NotifyJobCompleted(context.Background(), "id", "prompt", "/v.mp4", time.Second); err != nil {
		t.Fatalf("noop should never fail: %v", err)
	}
}

func TestNotifyJobCompletedPostsToTopic(t *testing.T) {
	var gotTitle, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Completed = true
	service := NewService(cfg)

	err := service.NotifyJobCompleted(context.Background(), "job-1", "draw a circle", "/videos/x.mp4", 90*time.Second)
	if err != nil {
		t.Fatalf("NotifyJobCompleted failed: %v", err)
	}
	if !strings.Contains(gotTitle, "Video Ready") {
		t.Fatalf("unexpected title %q", gotTitle)
	}
	if !strings.Contains(gotBody, "draw a circle") {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestNotifyJobFailedRespectsToggle(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Errors = false
	service := NewService(cfg)

	if err := service.NotifyJobFailed(context.Background(), "job-1", "p", "render exploded"); err != nil {
		t.Fatalf("NotifyJobFailed failed: %v", err)
	}
	if calls != 0 {
		t.Fatalf("disabled error notifications still posted %d times", calls)
	}
}
