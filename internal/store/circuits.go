package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SaveCircuitState upserts the persisted snapshot of a dependency breaker.
func (s *Store) SaveCircuitState(ctx context.Context, state CircuitState) error {
	_, err := s.execWithRetry(ctx, `INSERT INTO circuit_states (dependency, state, failures, opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (dependency) DO UPDATE SET
			state = excluded.state,
			failures = excluded.failures,
			opened_at = excluded.opened_at,
			updated_at = excluded.updated_at`,
		state.Dependency, state.State, state.Failures, nullableTime(state.OpenedAt), formatTime(s.Now()))
	if err != nil {
		return fmt.Errorf("save circuit state %s: %w", state.Dependency, err)
	}
	return nil
}

// ListCircuitStates returns every persisted breaker snapshot ordered by dependency.
func (s *Store) ListCircuitStates(ctx context.Context) ([]CircuitState, error) {
	rows, err := s.query(ctx, `SELECT dependency, state, failures, opened_at, updated_at
		FROM circuit_states ORDER BY dependency`)
	if err != nil {
		return nil, fmt.Errorf("list circuit states: %w", err)
	}
	defer rows.Close()

	var out []CircuitState
	for rows.Next() {
		var (
			state     CircuitState
			openedAt  sql.NullString
			updatedAt sql.NullString
		)
		if err := rows.Scan(&state.Dependency, &state.State, &state.Failures, &openedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan circuit state: %w", err)
		}
		state.OpenedAt = parseTime(openedAt)
		state.UpdatedAt = parseTime(updatedAt)
		out = append(out, state)
	}
	return out, rows.Err()
}
