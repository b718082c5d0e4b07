package coordination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"verdandi/internal/config"
	"verdandi/internal/logging"
	"verdandi/internal/store"
)

// Manager screens candidates and manages topic reservations for one worker.
type Manager struct {
	store     *store.Store
	filter    *Filter
	holder    string
	ttl       time.Duration
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewManager wires a manager for the configured worker identity.
func NewManager(cfg *config.Config, st *store.Store, filter *Filter, logger *slog.Logger) *Manager {
	if filter == nil {
		filter = NewFilter(cfg.Coordination, SimilarityFromConfig(cfg.Coordination))
	}
	return &Manager{
		store:     st,
		filter:    filter,
		holder:    cfg.Worker.ID,
		ttl:       cfg.Coordination.ReservationTTL(),
		heartbeat: cfg.Coordination.HeartbeatInterval(),
		logger:    logging.NewComponentLogger(logger, "coordination"),
	}
}

// Holder returns the identity written on reservations this manager takes.
func (m *Manager) Holder() string {
	return m.holder
}

// Screen checks a candidate against every unexpired active reservation and
// every completed topic.
func (m *Manager) Screen(ctx context.Context, cand Candidate) (Verdict, error) {
	existing, err := m.store.DedupCandidates(ctx)
	if err != nil {
		return Verdict{}, err
	}
	verdict, err := m.filter.Check(ctx, cand, existing)
	if err != nil {
		return Verdict{}, err
	}
	if verdict.Duplicate {
		m.logger.Info("duplicate topic rejected",
			logging.String(logging.FieldTopicKey, cand.TopicKey),
			logging.String("pass", string(verdict.Pass)),
			logging.Float64("similarity", verdict.Score),
			logging.String("matched_topic", verdict.Match.TopicKey),
			logging.String(logging.FieldEventType, "duplicate_rejected"),
		)
	}
	return verdict, nil
}

// TryReserve claims the candidate's topic. A false result with a nil error
// means another holder owns the topic; callers skip it.
func (m *Manager) TryReserve(ctx context.Context, cand Candidate) (*store.Reservation, bool, error) {
	res, ok, err := m.store.TryReserve(ctx, store.NewReservation{
		TopicKey:    cand.TopicKey,
		Holder:      m.holder,
		Description: cand.Text(),
		Fingerprint: cand.Fingerprint,
		TTL:         m.ttl,
	})
	if err != nil {
		return nil, false, err
	}
	if !ok {
		m.logger.Info("topic already reserved",
			logging.String(logging.FieldTopicKey, cand.TopicKey),
			logging.String("holder", res.Holder),
			logging.String(logging.FieldEventType, "reservation_conflict"),
		)
		return res, false, nil
	}
	m.logger.Debug("topic reserved",
		logging.String(logging.FieldTopicKey, cand.TopicKey),
		logging.String("reservation_id", res.ID),
		logging.Duration("ttl", m.ttl),
	)
	return res, true, nil
}

// Attach links a reservation to the experiment created for it.
func (m *Manager) Attach(ctx context.Context, reservationID string, experimentID int64) error {
	return m.store.AttachReservation(ctx, reservationID, experimentID)
}

// ReservationFor returns the active reservation of an experiment, or nil when
// it has none.
func (m *Manager) ReservationFor(ctx context.Context, experimentID int64) (*store.Reservation, error) {
	res, err := m.store.ActiveReservationForExperiment(ctx, experimentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return res, err
}

// Heartbeat extends a held reservation by the configured TTL.
func (m *Manager) Heartbeat(ctx context.Context, reservationID string) error {
	_, err := m.store.HeartbeatReservation(ctx, reservationID, m.ttl)
	return err
}

// Release ends a reservation. Completed topics stay visible to screening.
func (m *Manager) Release(ctx context.Context, reservationID string, completed bool) error {
	if err := m.store.ReleaseReservation(ctx, reservationID, completed); err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}
	return nil
}

// Pending lists active reservations that have not lapsed.
func (m *Manager) Pending(ctx context.Context) ([]store.Reservation, error) {
	all, err := m.store.ListReservations(ctx, true)
	if err != nil {
		return nil, err
	}
	now := m.store.Now()
	out := make([]store.Reservation, 0, len(all))
	for _, r := range all {
		if !r.Expired(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ExpireStale marks lapsed reservations expired.
func (m *Manager) ExpireStale(ctx context.Context) (int64, error) {
	n, err := m.store.ExpireReservations(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info("expired stale reservations",
			logging.Int64("count", n),
			logging.String(logging.FieldEventType, "reservations_expired"),
		)
	}
	return n, nil
}

// KeepAlive heartbeats a reservation every heartbeat interval until the
// returned stop function is called. Losing the reservation is logged and ends
// the loop; the run that holds it continues.
func (m *Manager) KeepAlive(ctx context.Context, reservationID string) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.keepAlive(ctx, reservationID)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func (m *Manager) keepAlive(ctx context.Context, reservationID string) {
	interval := m.heartbeat
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := m.Heartbeat(ctx, reservationID)
			switch {
			case err == nil:
			case errors.Is(err, store.ErrReservationLost):
				logging.WarnWithContext(m.logger, "reservation lost", "reservation_lost",
					logging.String("reservation_id", reservationID),
					logging.String(logging.FieldErrorHint, "another worker reclaimed the topic after its ttl lapsed"),
					logging.String(logging.FieldImpact, "the topic may be picked up again by discovery"),
				)
				return
			case ctx.Err() != nil:
				return
			default:
				logging.WarnWithContext(m.logger, "reservation heartbeat failed", "reservation_heartbeat_failed",
					logging.String("reservation_id", reservationID),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check database connectivity"),
				)
			}
		}
	}
}

// SetHeartbeatInterval overrides the keep-alive interval.
func (m *Manager) SetHeartbeatInterval(d time.Duration) {
	m.heartbeat = d
}
