package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"scenesmith/internal/config"
	"scenesmith/internal/jobstore"
	"scenesmith/internal/logging"
)

var commandContext = exec.CommandContext

const (
	defaultTimeout       = 10 * time.Minute
	defaultRetryAttempts = 2
	retryBaseDelay       = 2 * time.Second
	killWaitDelay        = 2 * time.Second
)

// Result describes a successful render.
type Result struct {
	VideoPath    string
	PartialFiles []string
	Log          string
}

// Driver invokes the manim renderer as a subprocess.
type Driver struct {
	binary        string
	timeout       time.Duration
	retryAttempts int
	logger        *slog.Logger
	sleeper       func(time.Duration)
}

// NewDriver constructs a Driver from configuration.
func NewDriver(cfg *config.Config, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := defaultTimeout
	if cfg.Render.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Render.TimeoutSeconds) * time.Second
	}
	attempts := cfg.Render.RetryAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	return &Driver{
		binary:        cfg.RenderBinary(),
		timeout:       timeout,
		retryAttempts: attempts,
		logger:        logger,
	}
}

// Render runs the renderer against sourcePath and returns the located output.
// Caching is always disabled so the renderer emits one partial movie file per
// declared animation event instead of one per distinct content hash.
func (d *Driver) Render(ctx context.Context, sourcePath, sceneName string, quality jobstore.Quality, mediaRoot string) (Result, error) {
	if strings.TrimSpace(sourcePath) == "" {
		return Result{}, errors.New("render: source path required")
	}
	if strings.TrimSpace(sceneName) == "" {
		return Result{}, errors.New("render: scene name required")
	}
	if strings.TrimSpace(mediaRoot) == "" {
		return Result{}, errors.New("render: media root required")
	}

	var lastErr error
	for attempt := 1; attempt <= d.retryAttempts; attempt++ {
		result, err := d.renderOnce(ctx, sourcePath, sceneName, quality, mediaRoot)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var renderErr *Error
		if !errors.As(err, &renderErr) || !renderErr.Retryable() || attempt == d.retryAttempts {
			return Result{}, err
		}
		delay := retryBaseDelay << (attempt - 1)
		d.logger.Warn("render attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			logging.Error(err))
		if err := d.sleep(ctx, delay); err != nil {
			return Result{}, err
		}
	}
	return Result{}, lastErr
}

func (d *Driver) renderOnce(ctx context.Context, sourcePath, sceneName string, quality jobstore.Quality, mediaRoot string) (Result, error) {
	preset := PresetFor(quality)

	runCtx := ctx
	var cancel context.CancelFunc
	if d.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	args := []string{
		"render",
		preset.Flag,
		"--disable_caching",
		"--media_dir", mediaRoot,
		sourcePath,
		sceneName,
	}
	cmd := commandContext(runCtx, d.binary, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	// The renderer spawns its own children (ffmpeg, latex) that inherit the
	// output pipe; killing only the leader would leave Run blocked until they
	// exit. Cancellation kills the whole process group, and WaitDelay bounds
	// the wait on any survivor still holding the pipe.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return os.ErrProcessDone
		}
		err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		if err == unix.ESRCH {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = killWaitDelay

	d.logger.Info("invoking renderer",
		slog.String("scene", sceneName),
		slog.String("quality", string(quality)),
		slog.String("flag", preset.Flag))

	runErr := cmd.Run()
	diagnostics := output.String()

	if runErr != nil {
		return Result{}, d.classifyFailure(runCtx, runErr, diagnostics)
	}

	videoPath, partials, err := locateOutput(mediaRoot, sourcePath, sceneName, preset)
	if err != nil {
		return Result{}, &Error{Reason: FailureOutputMissing, Diagnostics: diagnostics, Err: err}
	}
	return Result{VideoPath: videoPath, PartialFiles: partials, Log: diagnostics}, nil
}

func (d *Driver) classifyFailure(ctx context.Context, runErr error, diagnostics string) *Error {
	switch {
	case errors.Is(runErr, exec.ErrNotFound), errors.Is(runErr, os.ErrNotExist):
		return &Error{Reason: FailureToolMissing, Diagnostics: diagnostics, Err: runErr}
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Reason: FailureTimeout, Diagnostics: diagnostics, Err: runErr}
	case isCompileError(diagnostics):
		return &Error{Reason: FailureCompileError, Diagnostics: diagnostics, Err: runErr}
	default:
		return &Error{Reason: FailureRuntimeError, Diagnostics: diagnostics, Err: runErr}
	}
}

// compileErrorMarkers are Python parse failures that re-running cannot fix.
var compileErrorMarkers = []string{
	"SyntaxError",
	"IndentationError",
	"TabError",
}

func isCompileError(diagnostics string) bool {
	for _, marker := range compileErrorMarkers {
		if strings.Contains(diagnostics, marker) {
			return true
		}
	}
	return false
}

// locateOutput resolves the canonical MP4 path and the partial movie files.
// Success requires both the final video and at least one partial, otherwise
// the renderer exited zero without doing its job.
func locateOutput(mediaRoot, sourcePath, sceneName string, preset Preset) (string, []string, error) {
	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	qualityDir := filepath.Join(mediaRoot, "videos", stem, preset.Dir)

	videoPath := filepath.Join(qualityDir, sceneName+".mp4")
	if info, err := os.Stat(videoPath); err != nil || info.IsDir() {
		return "", nil, fmt.Errorf("final video missing at %s", videoPath)
	}

	partialDir := filepath.Join(qualityDir, "partial_movie_files", sceneName)
	entries, err := os.ReadDir(partialDir)
	if err != nil {
		return "", nil, fmt.Errorf("partial movie directory missing at %s: %w", partialDir, err)
	}
	var partials []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".mp4") {
			continue
		}
		partials = append(partials, filepath.Join(partialDir, entry.Name()))
	}
	if len(partials) == 0 {
		return "", nil, fmt.Errorf("no partial movie files under %s", partialDir)
	}
	sort.Strings(partials)
	return videoPath, partials, nil
}

// HealthCheck verifies the renderer binary is resolvable.
func (d *Driver) HealthCheck() error {
	if _, err := exec.LookPath(d.binary); err != nil {
		return fmt.Errorf("renderer binary %q not found: %w", d.binary, err)
	}
	return nil
}

func (d *Driver) sleep(ctx context.Context, delay time.Duration) error {
	if d.sleeper != nil {
		d.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
