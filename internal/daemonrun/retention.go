package daemonrun

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"verdandi/internal/logging"
)

// PruneResult reports a log retention pass.
type PruneResult struct {
	Removed []string
	Errors  []PruneError
}

// PruneError pairs a file with the error that kept it from being removed.
type PruneError struct {
	Path  string
	Error error
}

// PruneRunLogs removes per-run worker logs (verdandi-<run>.log) in logDir
// whose modification time is older than maxAge. keep is never removed.
func PruneRunLogs(logDir string, maxAge time.Duration, keep string, now time.Time, logger *slog.Logger) PruneResult {
	var result PruneResult
	logDir = strings.TrimSpace(logDir)
	if logDir == "" || maxAge <= 0 {
		return result
	}

	entries, err := os.ReadDir(logDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, PruneError{Path: logDir, Error: err})
		}
		return result
	}

	cutoff := now.Add(-maxAge)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "verdandi-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		path := filepath.Join(logDir, name)
		if path == keep {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, PruneError{Path: path, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, PruneError{Path: path, Error: err})
			logging.WarnWithContext(logger, "failed to remove old worker log", "log_prune_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check log_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
	}
	if len(result.Removed) > 0 && logger != nil {
		logger.Info("pruned old worker logs",
			logging.Int("removed", len(result.Removed)),
			logging.Duration("max_age", maxAge),
			logging.String(logging.FieldEventType, "log_prune"),
		)
	}
	return result
}
