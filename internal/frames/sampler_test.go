package frames

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"scenesmith/internal/codegen"
	"scenesmith/internal/testsupport"
)

func timeline(starts ...float64) []codegen.Event {
	events := make([]codegen.Event, len(starts))
	for i, start := range starts {
		events[i] = codegen.Event{Index: i, Kind: codegen.EventPlay, StartSeconds: start, DurationSeconds: 1}
	}
	return events
}

func TestSampleTimesMidpoints(t *testing.T) {
	events := timeline(0, 2, 5)
	times := sampleTimes(events, 8)
	want := []float64{1, 3.5, 6.5}
	for i := range want {
		if math.Abs(times[i]-want[i]) > 1e-9 {
			t.Errorf("times[%d] = %v, want %v", i, times[i], want[i])
		}
	}
}

func TestSampleTimesClampedInsideVideo(t *testing.T) {
	events := timeline(0, 9)
	times := sampleTimes(events, 9.0)
	for i, ts := range times {
		if ts >= 9.0 {
			t.Errorf("times[%d] = %v lands past the video end", i, ts)
		}
		if ts < 0 {
			t.Errorf("times[%d] = %v is negative", i, ts)
		}
	}
}

func newSampler(t *testing.T, ffmpegBody, ffprobeBody string) (*Sampler, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	ffmpeg := filepath.Join(base, "bin", "ffmpeg")
	ffprobe := filepath.Join(base, "bin", "ffprobe")
	testsupport.WriteScript(t, ffmpeg, ffmpegBody)
	testsupport.WriteScript(t, ffprobe, ffprobeBody)
	cfg.Frames.FFmpegBinary = ffmpeg
	cfg.Frames.FFprobeBinary = ffprobe
	return NewSampler(cfg, nil), base
}

const probeTenSeconds = `#!/bin/sh
echo '{"format":{"duration":"10.0"},"streams":[{"codec_type":"video","width":1280,"height":720}]}'
`

// extractOK writes a fake PNG to the last argument.
const extractOK = `#!/bin/sh
for out in "$@"; do :; done
printf fakepng > "$out"
`

func TestExtractOneFramePerEvent(t *testing.T) {
	sampler, base := newSampler(t, extractOK, probeTenSeconds)
	video := filepath.Join(base, "video.mp4")
	if err := os.WriteFile(video, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}

	events := timeline(0, 2, 4, 6)
	frames, issues, err := sampler.Extract(context.Background(), video, events)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(frames) != len(events) {
		t.Fatalf("expected %d frames, got %d", len(events), len(frames))
	}
	if len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
	for i, frame := range frames {
		if frame.EventIndex != i {
			t.Errorf("frame %d has event index %d", i, frame.EventIndex)
		}
		if string(frame.Image) != "fakepng" {
			t.Errorf("frame %d has unexpected image data", i)
		}
		if frame.Placeholder {
			t.Errorf("frame %d unexpectedly a placeholder", i)
		}
	}
}

func TestExtractUsesPlaceholderOnFrameFailure(t *testing.T) {
	// Fails on the second invocation only.
	script := fmt.Sprintf(`#!/bin/sh
count_file=%s
count=$(cat "$count_file" 2>/dev/null || echo 0)
count=$((count + 1))
echo $count > "$count_file"
if [ "$count" = "2" ]; then
  exit 1
fi
for out in "$@"; do :; done
printf fakepng > "$out"
`, filepath.Join(t.TempDir(), "count"))

	sampler, base := newSampler(t, script, probeTenSeconds)
	video := filepath.Join(base, "video.mp4")
	if err := os.WriteFile(video, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}

	events := timeline(0, 2, 4)
	frames, issues, err := sampler.Extract(context.Background(), video, events)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	if !frames[1].Placeholder {
		t.Fatal("expected frame 1 to be a placeholder")
	}
	if len(frames[1].Image) == 0 {
		t.Fatal("placeholder frame should carry image bytes")
	}
	if len(issues) != 1 || issues[0].FrameIndex != 1 || issues[0].Severity != "low" {
		t.Fatalf("expected one low-severity issue for frame 1, got %v", issues)
	}
}

func TestExtractFailsWhenToolMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Frames.FFmpegBinary = filepath.Join(testsupport.BaseDir(cfg), "missing-ffmpeg")
	sampler := NewSampler(cfg, nil)

	if _, _, err := sampler.Extract(context.Background(), "video.mp4", timeline(0)); err == nil {
		t.Fatal("expected error for missing extraction tool")
	}
}

func TestExtractRequiresEvents(t *testing.T) {
	sampler, _ := newSampler(t, extractOK, probeTenSeconds)
	if _, _, err := sampler.Extract(context.Background(), "video.mp4", nil); err == nil {
		t.Fatal("expected error for empty event list")
	}
}
