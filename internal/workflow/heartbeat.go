package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"verdandi/internal/logging"
	"verdandi/internal/store"
)

// HeartbeatMonitor keeps claimed jobs alive and reclaims jobs whose worker
// stopped heart-beating.
type HeartbeatMonitor struct {
	store             *store.Store
	logger            *slog.Logger
	workerID          string
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(st *store.Store, logger *slog.Logger, workerID string, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:             st,
		logger:            logger,
		workerID:          workerID,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// ReclaimStaleJobs requeues running jobs that missed the heartbeat timeout.
func (h *HeartbeatMonitor) ReclaimStaleJobs(ctx context.Context, logger *slog.Logger) error {
	if h.heartbeatTimeout <= 0 {
		return nil
	}
	cutoff := h.store.Now().Add(-h.heartbeatTimeout)
	reclaimed, err := h.store.ReclaimStaleJobs(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale jobs",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "jobs_reclaimed"),
		)
	}
	return nil
}

// StartLoop heartbeats a claimed job until ctx is cancelled.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID int64) {
	defer wg.Done()
	if h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(
		logging.String(logging.FieldComponent, "workflow-heartbeat"),
		logging.Int64(logging.FieldJobID, jobID),
	))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := h.store.HeartbeatJob(ctx, jobID, h.workerID)
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				logger.Debug("shutting down, heartbeat update cancelled")
			case errors.Is(err, store.ErrNotFound):
				logging.WarnWithContext(logger, "job no longer owned by this worker", "job_lost",
					logging.String(logging.FieldErrorHint, "the job was reclaimed after a missed heartbeat"),
					logging.String(logging.FieldImpact, "another worker may run the same experiment after this run ends"),
				)
				return
			default:
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
