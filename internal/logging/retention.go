package logging

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanupOldLogs deletes files in dir whose names match pattern and whose
// modification time is more than retentionDays old. Paths in keep survive
// regardless of age. retentionDays <= 0 disables pruning. It returns the number
// of files removed.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, dir, pattern string, keep ...string) int {
	dir = strings.TrimSpace(dir)
	if retentionDays <= 0 || dir == "" {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	protected := make(map[string]bool, len(keep))
	for _, p := range keep {
		protected[absPath(p)] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, entry := range entries {
		if !expired(entry, pattern, cutoff) {
			continue
		}
		path := absPath(filepath.Join(dir, entry.Name()))
		if protected[path] {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "old log not removed", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check permissions on log_dir"),
				String(FieldImpact, "old log file stays on disk"),
			)
			continue
		}
		removed++
		logger.Debug("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
	}
	return removed
}

func expired(entry fs.DirEntry, pattern string, cutoff time.Time) bool {
	if entry.IsDir() {
		return false
	}
	if pattern != "" {
		if ok, err := filepath.Match(pattern, entry.Name()); err != nil || !ok {
			return false
		}
	}
	info, err := entry.Info()
	return err == nil && info.ModTime().Before(cutoff)
}

func absPath(p string) string {
	p = strings.TrimSpace(p)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
