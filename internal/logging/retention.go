package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// runLogStamp is the UTC timestamp embedded in every run log name.
const runLogStamp = "20060102T150405.000Z"

// RunLogName returns the per-run log file name for a process started at t.
func RunLogName(process string, t time.Time) string {
	return process + "-" + t.UTC().Format(runLogStamp) + ".log"
}

// RunLogs identifies the run logs one dreamloop process leaves in Dir.
type RunLogs struct {
	Dir     string
	Process string
	// Current is the log of the running process and is never removed.
	Current string
}

// Prune deletes run logs that started more than retentionDays before now and
// returns how many were removed. Age comes from the name's timestamp, falling
// back to the file's mtime for names that do not parse. The <process>.log
// pointer and other processes' logs are left alone. retentionDays <= 0
// disables pruning.
func (r RunLogs) Prune(logger *slog.Logger, retentionDays int, now time.Time) int {
	dir := strings.TrimSpace(r.Dir)
	if retentionDays <= 0 || dir == "" || r.Process == "" {
		return 0
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	current := ""
	if r.Current != "" {
		current = filepath.Base(r.Current)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	prefix := r.Process + "-"
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == current || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		started, ok := r.startedAt(entry)
		if !ok || !started.Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			WarnWithContext(context.Background(), logger, "run log removal failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check file permissions on the log directory"),
				String(FieldImpact, "old run log stays on disk"),
			)
			continue
		}
		removed++
	}
	if removed > 0 && logger != nil {
		logger.Info("run logs pruned",
			String("process", r.Process),
			Int("removed", removed),
			Int("retention_days", retentionDays),
			String(FieldEventType, "log_pruned"),
		)
	}
	return removed
}

func (r RunLogs) startedAt(entry os.DirEntry) (time.Time, bool) {
	stamp := strings.TrimSuffix(strings.TrimPrefix(entry.Name(), r.Process+"-"), ".log")
	if t, err := time.Parse(runLogStamp, stamp); err == nil {
		return t, true
	}
	info, err := entry.Info()
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}
