package store

import (
	"context"
	"fmt"
)

// HealthSummary reports store integrity and backlog counts.
type HealthSummary struct {
	Driver        string
	SchemaVersion int
	IntegrityOK   bool
	IntegrityErr  string
	Experiments   map[Status]int
	QueuedJobs    int
	RunningJobs   int
}

// CheckHealth verifies the database answers queries and, on sqlite, that the
// file passes an integrity check.
func (s *Store) CheckHealth(ctx context.Context) (HealthSummary, error) {
	summary := HealthSummary{Driver: s.dialect.name, IntegrityOK: true}

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return summary, err
	}
	summary.SchemaVersion = version

	if s.dialect.name == sqliteDialect.name {
		var result string
		if err := s.db.QueryRowContext(ensureContext(ctx), "PRAGMA integrity_check").Scan(&result); err != nil {
			return summary, fmt.Errorf("integrity check: %w", err)
		}
		if result != "ok" {
			summary.IntegrityOK = false
			summary.IntegrityErr = result
		}
	}

	if summary.Experiments, err = s.CountExperimentsByStatus(ctx); err != nil {
		return summary, err
	}

	rows, err := s.query(ctx, "SELECT status, COUNT(*) FROM jobs WHERE status IN ('queued', 'running') GROUP BY status")
	if err != nil {
		return summary, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return summary, err
		}
		switch JobStatus(status) {
		case JobQueued:
			summary.QueuedJobs = count
		case JobRunning:
			summary.RunningJobs = count
		}
	}
	return summary, rows.Err()
}
