package main

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"scenesmith/internal/jobstore"
)

var stageTitler = cases.Title(language.English)

// formatStage turns a progress stage like "generating_code" into "Generating Code".
func formatStage(stage string) string {
	stage = strings.TrimSpace(strings.ReplaceAll(stage, "_", " "))
	if stage == "" {
		return "-"
	}
	return stageTitler.String(stage)
}

func statusKindForJob(status jobstore.Status) statusKind {
	switch status {
	case jobstore.StatusCompleted:
		return statusOK
	case jobstore.StatusFailed:
		return statusError
	case jobstore.StatusCancelled:
		return statusWarn
	case jobstore.StatusPending:
		return statusInfo
	default:
		return statusInfo
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if max <= 3 || len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatPercent(value float64) string {
	return fmt.Sprintf("%.0f%%", value)
}
