package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// RetentionTarget names a directory whose matching files are subject to the
// startup retention sweep. Keep lists paths that survive regardless of age,
// such as the active run log.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Keep    []string
}

// CleanupOldLogs removes per-run daemon logs older than retentionDays from
// each target. The daemon calls this once at startup, after the new run log
// is open. A retentionDays of zero or below disables the sweep.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) {
	if retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	removed := 0
	for _, target := range targets {
		removed += sweepTarget(logger, target, cutoff)
	}
	if removed > 0 && logger != nil {
		logger.Info("expired run logs removed",
			Int("removed", removed),
			Int("retention_days", retentionDays))
	}
}

func sweepTarget(logger *slog.Logger, target RetentionTarget, cutoff time.Time) int {
	if target.Dir == "" {
		return 0
	}
	pattern := target.Pattern
	if pattern == "" {
		pattern = "*"
	}
	matches, err := filepath.Glob(filepath.Join(target.Dir, pattern))
	if err != nil {
		return 0
	}

	keep := make(map[string]struct{}, len(target.Keep))
	for _, path := range target.Keep {
		if abs, err := filepath.Abs(path); err == nil {
			keep[abs] = struct{}{}
		}
	}

	removed := 0
	for _, path := range matches {
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		if _, protected := keep[abs]; protected {
			continue
		}
		// Lstat keeps the sweep away from the scenesmith.log pointer and
		// anything else that is not a plain file.
		info, err := os.Lstat(abs)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(abs); err != nil {
			WarnWithContext(logger, "expired run log not removed", "log_retention_failed",
				String("path", abs),
				Error(err),
				String(FieldErrorHint, "check log_dir permissions"),
				String(FieldImpact, "expired run log remains on disk"),
			)
			continue
		}
		removed++
	}
	return removed
}
