package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const jobColumns = `id, kind, experiment_id, dedupe_key, params, status, claimed_by, attempts,
	available_at, heartbeat_at, last_error, created_at, updated_at`

// EnqueueJob adds a job to the backlog. When a queued or running job with the
// same dedupe key exists, that job is returned with created=false.
func (s *Store) EnqueueJob(ctx context.Context, in NewJob) (*Job, bool, error) {
	key := strings.TrimSpace(in.DedupeKey)
	if key == "" {
		return nil, false, errors.New("enqueue job: dedupe key is required")
	}
	now := s.Now()
	available := in.AvailableAt
	if available.IsZero() {
		available = now
	}

	var job *Job
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		var scanErr error
		job, scanErr = scanJob(row)
		return scanErr
	}, `INSERT INTO jobs (kind, experiment_id, dedupe_key, params, status, attempts, available_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?)
		ON CONFLICT (dedupe_key) WHERE status IN ('queued', 'running') DO NOTHING
		RETURNING `+jobColumns,
		string(in.Kind), nullableInt(in.ExperimentID), key, nullableJSON(in.Params),
		formatTime(available), formatTime(now), formatTime(now))
	switch {
	case err == nil:
		return job, true, nil
	case errors.Is(err, sql.ErrNoRows):
		existing, err := s.inflightJob(ctx, key)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	default:
		return nil, false, fmt.Errorf("enqueue job: %w", err)
	}
}

// ClaimJob atomically moves the oldest available queued job to running for
// the worker. It returns ErrNotFound when nothing is available.
func (s *Store) ClaimJob(ctx context.Context, workerID string) (*Job, error) {
	now := formatTime(s.Now())
	var job *Job
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		var scanErr error
		job, scanErr = scanJob(row)
		return scanErr
	}, `UPDATE jobs SET status = 'running', claimed_by = ?, attempts = attempts + 1, heartbeat_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM jobs WHERE status = 'queued' AND available_at <= ?
			ORDER BY available_at, id LIMIT 1`+s.dialect.claimLock+`
		) AND status = 'queued'
		RETURNING `+jobColumns, workerID, now, now, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// HeartbeatJob refreshes the heartbeat of a running job held by the worker.
func (s *Store) HeartbeatJob(ctx context.Context, id int64, workerID string) error {
	res, err := s.execWithRetry(ctx, `UPDATE jobs SET heartbeat_at = ?, updated_at = ?
		WHERE id = ? AND status = 'running' AND claimed_by = ?`,
		formatTime(s.Now()), formatTime(s.Now()), id, workerID)
	if err != nil {
		return fmt.Errorf("heartbeat job %d: %w", id, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("job %d no longer held by %s: %w", id, workerID, ErrNotFound)
	}
	return nil
}

// FinishJob marks a running job done, or failed with the error message.
func (s *Store) FinishJob(ctx context.Context, id int64, workerID string, jobErr error) error {
	status, message := JobDone, ""
	if jobErr != nil {
		status, message = JobFailed, jobErr.Error()
	}
	_, err := s.execWithRetry(ctx, `UPDATE jobs SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status = 'running' AND claimed_by = ?`,
		string(status), nullableString(message), formatTime(s.Now()), id, workerID)
	if err != nil {
		return fmt.Errorf("finish job %d: %w", id, err)
	}
	return nil
}

// ReclaimStaleJobs returns running jobs whose heartbeat is older than cutoff
// to the queue so another worker can pick them up.
func (s *Store) ReclaimStaleJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `UPDATE jobs SET status = 'queued', claimed_by = NULL, heartbeat_at = NULL,
			last_error = 'reclaimed after missed heartbeat', updated_at = ?
		WHERE status = 'running' AND (heartbeat_at IS NULL OR heartbeat_at < ?)`,
		formatTime(s.Now()), formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// ListJobs returns jobs filtered by status (all when empty), newest first.
func (s *Store) ListJobs(ctx context.Context, limit int, statuses ...JobStatus) ([]Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs"
	var args []any
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		args = statusArgs(statuses)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.listJobs(ctx, query, args...)
}

func (s *Store) inflightJob(ctx context.Context, key string) (*Job, error) {
	jobs, err := s.listJobs(ctx, "SELECT "+jobColumns+
		" FROM jobs WHERE dedupe_key = ? AND status IN ('queued', 'running')", key)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		// The conflicting job finished between the insert and this read.
		return nil, fmt.Errorf("enqueue job %s: %w", key, ErrStatusConflict)
	}
	return &jobs[0], nil
}

func (s *Store) listJobs(ctx context.Context, query string, args ...any) ([]Job, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func scanJob(row scanner) (*Job, error) {
	var (
		job          Job
		kind         string
		status       string
		experimentID sql.NullInt64
		params       sql.NullString
		claimedBy    sql.NullString
		availableAt  sql.NullString
		heartbeatAt  sql.NullString
		lastError    sql.NullString
		createdAt    sql.NullString
		updatedAt    sql.NullString
	)
	if err := row.Scan(&job.ID, &kind, &experimentID, &job.DedupeKey, &params, &status, &claimedBy, &job.Attempts,
		&availableAt, &heartbeatAt, &lastError, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	job.Kind = JobKind(kind)
	job.Status = JobStatus(status)
	job.ExperimentID = experimentID.Int64
	if params.Valid {
		job.Params = []byte(params.String)
	}
	job.ClaimedBy = claimedBy.String
	job.AvailableAt = parseTime(availableAt)
	job.HeartbeatAt = parseTime(heartbeatAt)
	job.LastError = lastError.String
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	return &job, nil
}
