package preflight

import (
	"context"

	"verdandi/internal/config"
	"verdandi/internal/stage"
	"verdandi/internal/store"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// minFreeBytes is the free space the data directory must keep for the
// sqlite database and its WAL.
const minFreeBytes = 256 << 20

// RunAll executes all applicable preflight checks for the given config. The
// store and registry are optional; their checks are skipped when nil.
func RunAll(ctx context.Context, cfg *config.Config, st *store.Store, reg *stage.Registry) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Data directory (always checked)
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	if cfg.Store.Driver == config.StoreSQLite {
		results = append(results, CheckFreeSpace("Data directory space", cfg.Paths.DataDir, minFreeBytes))
	}
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	if st != nil {
		results = append(results, CheckStore(ctx, st))
	}

	if cfg.Archive.Enabled {
		results = append(results, CheckArchive(ctx, cfg))
	}

	if cfg.Notifications.NtfyTopic != "" {
		results = append(results, CheckNtfy(ctx, cfg.Notifications.NtfyTopic))
	}

	if reg != nil {
		results = append(results, CheckStages(ctx, reg)...)
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
