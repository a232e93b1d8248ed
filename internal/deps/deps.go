// Package deps probes the external tools the render pipeline shells out to:
// the manim renderer, ffmpeg for frame sampling, and ffprobe for media
// inspection.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names one external tool and the configured command that
// invokes it. Optional tools degrade a feature instead of blocking jobs.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the probe outcome for a single requirement. Detail carries the
// resolved binary path when the tool is available and the failure reason
// when it is not.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries resolves each requirement's command on PATH. A blank command
// means the tool was left unconfigured, which is reported as such rather
// than as missing from PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, probe(req))
	}
	return results
}

func probe(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Available = true
	status.Detail = resolved
	return status
}
