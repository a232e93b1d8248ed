package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInputInvalid    = errors.New("input invalid")
	ErrCodeGeneration  = errors.New("code generation failed")
	ErrRender          = errors.New("render failed")
	ErrFrameExtraction = errors.New("frame extraction failed")
	ErrVerification    = errors.New("verification failed")
	ErrRepair          = errors.New("repair failed")
	ErrTimeout         = errors.New("timeout")
	ErrCancelled       = errors.New("cancelled")
	ErrInternal        = errors.New("internal error")

	ErrExternalTool  = errors.New("external tool error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrInternal
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorKind maps an error to the short kind string recorded on failed jobs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrInputInvalid):
		return "input-invalid"
	case errors.Is(err, ErrCodeGeneration):
		return "code-generation-failed"
	case errors.Is(err, ErrRender):
		return "render-failed"
	case errors.Is(err, ErrFrameExtraction):
		return "frame-extraction-failed"
	case errors.Is(err, ErrVerification):
		return "verification-failed"
	case errors.Is(err, ErrRepair):
		return "repair-failed"
	default:
		return "internal"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
