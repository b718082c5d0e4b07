package store

import (
	"context"
	"database/sql"
	"fmt"
)

// AppendEvent adds an entry to the experiment event log.
func (s *Store) AppendEvent(ctx context.Context, event Event) error {
	_, err := s.execWithRetry(ctx, `INSERT INTO events (experiment_id, event_type, stage_name, message, worker_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		nullableInt(event.ExperimentID), event.Type, nullableString(event.StageName),
		nullableString(event.Message), nullableString(event.WorkerID), formatTime(s.Now()))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents returns the most recent events of an experiment in chronological
// order. A non-positive limit returns every event.
func (s *Store) ListEvents(ctx context.Context, experimentID int64, limit int) ([]Event, error) {
	query := `SELECT id, experiment_id, event_type, stage_name, message, worker_id, created_at
		FROM events WHERE experiment_id = ? ORDER BY id DESC`
	args := []any{experimentID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			event     Event
			expID     sql.NullInt64
			stageName sql.NullString
			message   sql.NullString
			workerID  sql.NullString
			createdAt sql.NullString
		)
		if err := rows.Scan(&event.ID, &expID, &event.Type, &stageName, &message, &workerID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.ExperimentID = expID.Int64
		event.StageName = stageName.String
		event.Message = message.String
		event.WorkerID = workerID.String
		event.CreatedAt = parseTime(createdAt)
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
