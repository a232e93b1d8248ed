package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scenesmith/internal/config"
)

const userAgent = "Scenesmith/0.1.0"

// Service defines the notification surface exposed to the workflow.
type Service interface {
	NotifyJobCompleted(ctx context.Context, jobID, prompt, videoPath string, duration time.Duration) error
	NotifyJobFailed(ctx context.Context, jobID, prompt, reason string) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:        topic,
		client:          &http.Client{Timeout: timeout},
		notifyCompleted: cfg.Notifications.Completed,
		notifyErrors:    cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint        string
	client          *http.Client
	notifyCompleted bool
	notifyErrors    bool
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, jobID, prompt, videoPath string, duration time.Duration) error {
	if !n.notifyCompleted {
		return nil
	}
	data := payload{
		title:    "Scenesmith - Video Ready",
		message:  fmt.Sprintf("%s\n%s (took %s)", clipPrompt(prompt), videoPath, duration.Round(time.Second)),
		tags:     []string{"scenesmith", "completed", jobID},
		priority: "default",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, jobID, prompt, reason string) error {
	if !n.notifyErrors {
		return nil
	}
	data := payload{
		title:    "Scenesmith - Job Failed",
		message:  fmt.Sprintf("%s\n%s", clipPrompt(prompt), reason),
		tags:     []string{"scenesmith", "failed", jobID},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.notifyErrors || err == nil {
		return nil
	}
	data := payload{
		title:    "Scenesmith - Error",
		message:  fmt.Sprintf("%s: %v", contextLabel, err),
		tags:     []string{"scenesmith", "error"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Scenesmith - Test",
		message:  "Notification system test",
		tags:     []string{"scenesmith", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func clipPrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	const limit = 120
	if len(prompt) > limit {
		return prompt[:limit] + "..."
	}
	return prompt
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, string, string, string, time.Duration) error {
	return nil
}
func (noopService) NotifyJobFailed(context.Context, string, string, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error              { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
