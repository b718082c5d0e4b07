package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const reservationColumns = `id, topic_key, holder, description, fingerprint, experiment_id, status,
	acquired_at, expires_at, heartbeat_at, released_at`

// TryReserve atomically claims a topic key for the holder. It succeeds when no
// reservation exists for the key, or the existing one is no longer active, or
// it has expired. On contention it returns the current reservation and false.
// Every acquisition gets a fresh id so a displaced holder's heartbeat fails.
func (s *Store) TryReserve(ctx context.Context, in NewReservation) (*Reservation, bool, error) {
	key := strings.TrimSpace(in.TopicKey)
	if key == "" {
		return nil, false, errors.New("reserve: topic key is required")
	}
	if strings.TrimSpace(in.Holder) == "" {
		return nil, false, errors.New("reserve: holder is required")
	}
	if in.TTL <= 0 {
		return nil, false, errors.New("reserve: ttl must be positive")
	}

	now := s.Now()
	id := ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()

	var (
		current  *Reservation
		acquired bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.dialect.rebind(`INSERT INTO reservations
				(topic_key, id, holder, description, fingerprint, experiment_id, status, acquired_at, expires_at, heartbeat_at, released_at)
			VALUES (?, ?, ?, ?, ?, NULL, 'active', ?, ?, ?, NULL)
			ON CONFLICT (topic_key) DO UPDATE SET
				id = excluded.id,
				holder = excluded.holder,
				description = excluded.description,
				fingerprint = excluded.fingerprint,
				experiment_id = NULL,
				status = 'active',
				acquired_at = excluded.acquired_at,
				expires_at = excluded.expires_at,
				heartbeat_at = excluded.heartbeat_at,
				released_at = NULL
			WHERE reservations.status <> 'active' OR reservations.expires_at < excluded.acquired_at`),
			key, id, in.Holder, in.Description, in.Fingerprint,
			formatTime(now), formatTime(now.Add(in.TTL)), formatTime(now))
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		acquired = affected == 1
		current, err = scanReservation(tx.QueryRowContext(ctx,
			s.dialect.rebind("SELECT "+reservationColumns+" FROM reservations WHERE topic_key = ?"), key))
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("reserve %q: %w", key, err)
	}
	return current, acquired, nil
}

// HeartbeatReservation extends a held reservation by ttl from now. It fails
// with ErrReservationLost when the reservation was released or taken over.
func (s *Store) HeartbeatReservation(ctx context.Context, id string, ttl time.Duration) (*Reservation, error) {
	now := s.Now()
	res, err := s.execWithRetry(ctx, `UPDATE reservations SET heartbeat_at = ?, expires_at = ?
		WHERE id = ? AND status = 'active'`, formatTime(now), formatTime(now.Add(ttl)), id)
	if err != nil {
		return nil, fmt.Errorf("heartbeat reservation %s: %w", id, err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("heartbeat reservation %s: %w", id, err)
	} else if affected == 0 {
		return nil, fmt.Errorf("%w: %s", ErrReservationLost, id)
	}
	return s.GetReservation(ctx, id)
}

// ReleaseReservation ends a held reservation. Completed reservations stay
// visible to duplicate detection; released ones only free the key. Releasing
// an already released reservation is a no-op.
func (s *Store) ReleaseReservation(ctx context.Context, id string, completed bool) error {
	status := ReservationReleased
	if completed {
		status = ReservationCompleted
	}
	res, err := s.execWithRetry(ctx, `UPDATE reservations SET status = ?, released_at = ?
		WHERE id = ? AND status = 'active'`, string(status), formatTime(s.Now()), id)
	if err != nil {
		return fmt.Errorf("release reservation %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release reservation %s: %w", id, err)
	}
	if affected == 1 {
		return nil
	}
	if _, err := s.GetReservation(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrReservationLost, id)
		}
		return err
	}
	return nil
}

// AttachReservation links a held reservation to the experiment it produced.
func (s *Store) AttachReservation(ctx context.Context, id string, experimentID int64) error {
	res, err := s.execWithRetry(ctx, `UPDATE reservations SET experiment_id = ? WHERE id = ? AND status = 'active'`, experimentID, id)
	if err != nil {
		return fmt.Errorf("attach reservation %s: %w", id, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: %s", ErrReservationLost, id)
	}
	return nil
}

// GetReservation fetches a reservation by id.
func (s *Store) GetReservation(ctx context.Context, id string) (*Reservation, error) {
	list, err := s.listReservations(ctx, "SELECT "+reservationColumns+" FROM reservations WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("reservation %s: %w", id, ErrNotFound)
	}
	return &list[0], nil
}

// ActiveReservationForExperiment returns the active reservation linked to an experiment.
func (s *Store) ActiveReservationForExperiment(ctx context.Context, experimentID int64) (*Reservation, error) {
	list, err := s.listReservations(ctx, "SELECT "+reservationColumns+
		" FROM reservations WHERE experiment_id = ? AND status = 'active'", experimentID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("reservation for experiment %d: %w", experimentID, ErrNotFound)
	}
	return &list[0], nil
}

// ListReservations returns reservations, only active ones when activeOnly is set.
func (s *Store) ListReservations(ctx context.Context, activeOnly bool) ([]Reservation, error) {
	query := "SELECT " + reservationColumns + " FROM reservations"
	if activeOnly {
		query += " WHERE status = 'active'"
	}
	return s.listReservations(ctx, query+" ORDER BY acquired_at DESC")
}

// DedupCandidates returns the topics new ideas are compared against:
// unexpired active reservations plus completed ones.
func (s *Store) DedupCandidates(ctx context.Context) ([]Reservation, error) {
	return s.listReservations(ctx, "SELECT "+reservationColumns+` FROM reservations
		WHERE (status = 'active' AND expires_at >= ?) OR status = 'completed'
		ORDER BY acquired_at`, formatTime(s.Now()))
}

// ExpireReservations marks lapsed active reservations as expired and returns
// how many changed.
func (s *Store) ExpireReservations(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `UPDATE reservations SET status = 'expired'
		WHERE status = 'active' AND expires_at < ?`, formatTime(s.Now()))
	if err != nil {
		return 0, fmt.Errorf("expire reservations: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) listReservations(ctx context.Context, query string, args ...any) ([]Reservation, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanReservation(row scanner) (*Reservation, error) {
	var (
		r            Reservation
		status       string
		experimentID sql.NullInt64
		acquiredAt   sql.NullString
		expiresAt    sql.NullString
		heartbeatAt  sql.NullString
		releasedAt   sql.NullString
	)
	if err := row.Scan(&r.ID, &r.TopicKey, &r.Holder, &r.Description, &r.Fingerprint, &experimentID, &status,
		&acquiredAt, &expiresAt, &heartbeatAt, &releasedAt); err != nil {
		return nil, fmt.Errorf("scan reservation: %w", err)
	}
	r.Status = ReservationStatus(status)
	r.ExperimentID = experimentID.Int64
	r.AcquiredAt = parseTime(acquiredAt)
	r.ExpiresAt = parseTime(expiresAt)
	r.HeartbeatAt = parseTime(heartbeatAt)
	r.ReleasedAt = parseTime(releasedAt)
	return &r, nil
}
