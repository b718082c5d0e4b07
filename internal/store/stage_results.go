package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const stageResultColumns = `id, experiment_id, stage_name, stage_order, status, attempts, payload,
	error_message, worker_id, correlation_id, created_at`

// SaveStageResult persists the successful checkpoint for a stage. A second
// successful save for the same (experiment, stage) returns
// ErrStageAlreadyCompleted and leaves the original row untouched.
func (s *Store) SaveStageResult(ctx context.Context, result StageResult) (*StageResult, error) {
	result.Status = ResultSuccess
	saved, err := s.insertStageResult(ctx, result,
		" ON CONFLICT (experiment_id, stage_name) WHERE status = 'success' DO NOTHING")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: experiment %d stage %s", ErrStageAlreadyCompleted, result.ExperimentID, result.StageName)
	}
	if err != nil {
		return nil, fmt.Errorf("save stage result: %w", err)
	}
	return saved, nil
}

// RecordStageFailure appends a failed attempt row. Failed rows never block a
// later successful save.
func (s *Store) RecordStageFailure(ctx context.Context, result StageResult) (*StageResult, error) {
	result.Status = ResultFailed
	saved, err := s.insertStageResult(ctx, result, "")
	if err != nil {
		return nil, fmt.Errorf("record stage failure: %w", err)
	}
	return saved, nil
}

func (s *Store) insertStageResult(ctx context.Context, result StageResult, conflict string) (*StageResult, error) {
	if result.Attempts <= 0 {
		result.Attempts = 1
	}
	var saved *StageResult
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		var scanErr error
		saved, scanErr = scanStageResult(row)
		return scanErr
	}, `INSERT INTO stage_results (experiment_id, stage_name, stage_order, status, attempts, payload,
			error_message, worker_id, correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`+conflict+`
		RETURNING `+stageResultColumns,
		result.ExperimentID, result.StageName, result.StageOrder, string(result.Status), result.Attempts,
		nullableJSON(result.Payload), nullableString(result.ErrorMessage), nullableString(result.WorkerID),
		nullableString(result.CorrelationID), formatTime(s.Now()))
	return saved, err
}

// SuccessfulResults returns the successful checkpoints of an experiment ordered by stage order.
func (s *Store) SuccessfulResults(ctx context.Context, experimentID int64) ([]StageResult, error) {
	return s.listStageResults(ctx, `SELECT `+stageResultColumns+` FROM stage_results
		WHERE experiment_id = ? AND status = 'success' ORDER BY stage_order`, experimentID)
}

// StageAttempts returns every recorded attempt, successful or failed, in insertion order.
func (s *Store) StageAttempts(ctx context.Context, experimentID int64) ([]StageResult, error) {
	return s.listStageResults(ctx, `SELECT `+stageResultColumns+` FROM stage_results
		WHERE experiment_id = ? ORDER BY id`, experimentID)
}

// GetStageResult returns the successful checkpoint of one stage.
func (s *Store) GetStageResult(ctx context.Context, experimentID int64, stageName string) (*StageResult, error) {
	results, err := s.listStageResults(ctx, `SELECT `+stageResultColumns+` FROM stage_results
		WHERE experiment_id = ? AND stage_name = ? AND status = 'success'`, experimentID, stageName)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("experiment %d stage %s: %w", experimentID, stageName, ErrNotFound)
	}
	return &results[0], nil
}

func (s *Store) listStageResults(ctx context.Context, query string, args ...any) ([]StageResult, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stage results: %w", err)
	}
	defer rows.Close()
	var out []StageResult
	for rows.Next() {
		result, err := scanStageResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *result)
	}
	return out, rows.Err()
}

func scanStageResult(row scanner) (*StageResult, error) {
	var (
		result        StageResult
		status        string
		payload       sql.NullString
		errorMessage  sql.NullString
		workerID      sql.NullString
		correlationID sql.NullString
		createdAt     sql.NullString
	)
	if err := row.Scan(&result.ID, &result.ExperimentID, &result.StageName, &result.StageOrder, &status,
		&result.Attempts, &payload, &errorMessage, &workerID, &correlationID, &createdAt); err != nil {
		return nil, fmt.Errorf("scan stage result: %w", err)
	}
	result.Status = ResultStatus(status)
	if payload.Valid {
		result.Payload = []byte(payload.String)
	}
	result.ErrorMessage = errorMessage.String
	result.WorkerID = workerID.String
	result.CorrelationID = correlationID.String
	result.CreatedAt = parseTime(createdAt)
	return &result, nil
}
