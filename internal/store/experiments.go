package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const experimentColumns = `id, title, summary, topic_key, fingerprint, status, current_stage, worker_id,
	error_message, review_decision, reviewed_by, review_notes, reviewed_at, created_at, updated_at`

// CreateExperiment inserts a pending experiment.
func (s *Store) CreateExperiment(ctx context.Context, in NewExperiment) (*Experiment, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errors.New("create experiment: title is required")
	}
	now := formatTime(s.Now())
	var exp *Experiment
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		var scanErr error
		exp, scanErr = scanExperiment(row)
		return scanErr
	}, `INSERT INTO experiments (title, summary, topic_key, fingerprint, status, current_stage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, -1, ?, ?)
		RETURNING `+experimentColumns,
		title, strings.TrimSpace(in.Summary), in.TopicKey, in.Fingerprint, string(StatusPending), now, now)
	if err != nil {
		return nil, fmt.Errorf("create experiment: %w", err)
	}
	return exp, nil
}

// GetExperiment fetches an experiment by id.
func (s *Store) GetExperiment(ctx context.Context, id int64) (*Experiment, error) {
	rows, err := s.query(ctx, "SELECT "+experimentColumns+" FROM experiments WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("get experiment: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get experiment: %w", err)
		}
		return nil, fmt.Errorf("experiment %d: %w", id, ErrNotFound)
	}
	return scanExperiment(rows)
}

// ListExperiments returns experiments filtered by status (all when empty), oldest first.
func (s *Store) ListExperiments(ctx context.Context, statuses ...Status) ([]*Experiment, error) {
	query := "SELECT " + experimentColumns + " FROM experiments"
	var args []any
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		args = statusArgs(statuses)
	}
	query += " ORDER BY id"

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer rows.Close()

	var out []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exp)
	}
	return out, rows.Err()
}

// TransitionOptions carries the optional columns written alongside a status change.
type TransitionOptions struct {
	WorkerID     string
	ErrorMessage string
}

// TransitionStatus moves an experiment from one status to another. The update
// only applies while the stored status still equals from; otherwise
// ErrStatusConflict is returned and nothing changes.
func (s *Store) TransitionStatus(ctx context.Context, id int64, from, to Status, opts TransitionOptions) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	res, err := s.execWithRetry(ctx, `UPDATE experiments
		SET status = ?, worker_id = COALESCE(?, worker_id), error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), nullableString(opts.WorkerID), nullableString(opts.ErrorMessage), formatTime(s.Now()), id, string(from))
	if err != nil {
		return fmt.Errorf("transition experiment %d: %w", id, err)
	}
	return s.expectOne(ctx, res, id, from)
}

// AdvanceStage records that the stage with the given order succeeded. The
// stored value never moves backwards.
func (s *Store) AdvanceStage(ctx context.Context, id int64, order int) error {
	_, err := s.execWithRetry(ctx, `UPDATE experiments SET current_stage = ?, updated_at = ?
		WHERE id = ? AND current_stage < ?`, order, formatTime(s.Now()), id, order)
	if err != nil {
		return fmt.Errorf("advance experiment %d: %w", id, err)
	}
	return nil
}

// Review is the operator's verdict recorded at the review gate.
type Review struct {
	Approved bool
	Reviewer string
	Notes    string
}

// RecordReview resolves an experiment awaiting review into approved or rejected.
func (s *Store) RecordReview(ctx context.Context, id int64, review Review) (*Experiment, error) {
	to, decision := StatusRejected, ReviewRejected
	if review.Approved {
		to, decision = StatusApproved, ReviewApproved
	}
	res, err := s.execWithRetry(ctx, `UPDATE experiments
		SET status = ?, review_decision = ?, reviewed_by = ?, review_notes = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), string(decision), nullableString(review.Reviewer), nullableString(review.Notes),
		formatTime(s.Now()), formatTime(s.Now()), id, string(StatusAwaitingReview))
	if err != nil {
		return nil, fmt.Errorf("record review for experiment %d: %w", id, err)
	}
	if err := s.expectOne(ctx, res, id, StatusAwaitingReview); err != nil {
		return nil, err
	}
	return s.GetExperiment(ctx, id)
}

// ArchiveExperiment moves an experiment to archived from any other status. It
// returns the status the experiment had before archival.
func (s *Store) ArchiveExperiment(ctx context.Context, id int64) (Status, error) {
	exp, err := s.GetExperiment(ctx, id)
	if err != nil {
		return "", err
	}
	if err := s.TransitionStatus(ctx, id, exp.Status, StatusArchived, TransitionOptions{}); err != nil {
		return "", err
	}
	return exp.Status, nil
}

// CountExperimentsByStatus returns the number of experiments per status.
func (s *Store) CountExperimentsByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.query(ctx, "SELECT status, COUNT(*) FROM experiments GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count experiments: %w", err)
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

func (s *Store) expectOne(ctx context.Context, res sql.Result, id int64, from Status) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}
	current, err := s.GetExperiment(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: experiment %d is %s, expected %s", ErrStatusConflict, id, current.Status, from)
}

func scanExperiment(row scanner) (*Experiment, error) {
	var (
		exp            Experiment
		status         string
		workerID       sql.NullString
		errorMessage   sql.NullString
		reviewDecision sql.NullString
		reviewedBy     sql.NullString
		reviewNotes    sql.NullString
		reviewedAt     sql.NullString
		createdAt      sql.NullString
		updatedAt      sql.NullString
	)
	if err := row.Scan(
		&exp.ID, &exp.Title, &exp.Summary, &exp.TopicKey, &exp.Fingerprint, &status, &exp.CurrentStage,
		&workerID, &errorMessage, &reviewDecision, &reviewedBy, &reviewNotes, &reviewedAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan experiment: %w", err)
	}
	exp.Status = Status(status)
	exp.WorkerID = workerID.String
	exp.ErrorMessage = errorMessage.String
	exp.ReviewDecision = ReviewDecision(reviewDecision.String)
	exp.ReviewedBy = reviewedBy.String
	exp.ReviewNotes = reviewNotes.String
	exp.ReviewedAt = parseTime(reviewedAt)
	exp.CreatedAt = parseTime(createdAt)
	exp.UpdatedAt = parseTime(updatedAt)
	return &exp, nil
}
