package render

import "fmt"

// Failure reasons surfaced to the orchestrator.
const (
	FailureToolMissing   = "tool-missing"
	FailureCompileError  = "source-compile-error"
	FailureRuntimeError  = "runtime-error"
	FailureTimeout       = "timeout"
	FailureOutputMissing = "output-missing"
)

// Error carries the failure classification plus the renderer's captured
// output so the orchestrator can record diagnostics without re-running.
type Error struct {
	Reason      string
	Diagnostics string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("render failed (%s)", e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could plausibly succeed.
func (e *Error) Retryable() bool {
	return e.Reason == FailureRuntimeError
}
