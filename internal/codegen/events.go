package codegen

import (
	"regexp"
	"strconv"
	"strings"
)

// Event is one declared animation step in a scene file. Start times are a
// running sum of the preceding steps, measured from the start of the video.
type Event struct {
	Index           int     `json:"index"`
	Kind            string  `json:"kind"`
	StartSeconds    float64 `json:"start_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
	Snippet         string  `json:"snippet,omitempty"`
}

// Event kinds.
const (
	EventPlay = "play"
	EventWait = "wait"
)

// defaultStepSeconds matches the renderer's default run_time for a play call
// and its default wait duration.
const defaultStepSeconds = 1.0

var (
	playCallRe = regexp.MustCompile(`self\.play\s*\(`)
	waitCallRe = regexp.MustCompile(`self\.wait\s*\(([^)]*)\)`)
	runTimeRe  = regexp.MustCompile(`run_time\s*=\s*([0-9]*\.?[0-9]+)`)
)

// ParseEvents scans the scene source for play and wait calls and builds the
// declared event timeline. The timing is an estimate: chained or multi-line
// calls are attributed to the line where they start, which is good enough to
// pick a representative frame per event.
func ParseEvents(source string) []Event {
	var events []Event
	elapsed := 0.0
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if playCallRe.MatchString(trimmed) {
			duration := defaultStepSeconds
			if m := runTimeRe.FindStringSubmatch(trimmed); m != nil {
				if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
					duration = v
				}
			}
			events = append(events, Event{
				Index:           len(events),
				Kind:            EventPlay,
				StartSeconds:    elapsed,
				DurationSeconds: duration,
				Snippet:         clipSnippet(trimmed),
			})
			elapsed += duration
			continue
		}
		if m := waitCallRe.FindStringSubmatch(trimmed); m != nil {
			duration := defaultStepSeconds
			arg := strings.TrimSpace(m[1])
			if arg != "" {
				if v, err := strconv.ParseFloat(strings.SplitN(arg, ",", 2)[0], 64); err == nil && v > 0 {
					duration = v
				}
			}
			events = append(events, Event{
				Index:           len(events),
				Kind:            EventWait,
				StartSeconds:    elapsed,
				DurationSeconds: duration,
				Snippet:         clipSnippet(trimmed),
			})
			elapsed += duration
		}
	}
	return events
}

// TotalDuration returns the declared length of the timeline in seconds.
func TotalDuration(events []Event) float64 {
	if len(events) == 0 {
		return 0
	}
	last := events[len(events)-1]
	return last.StartSeconds + last.DurationSeconds
}

func clipSnippet(line string) string {
	const limit = 120
	if len(line) <= limit {
		return line
	}
	return line[:limit] + "..."
}
