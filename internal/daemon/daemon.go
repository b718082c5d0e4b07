package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"verdandi/internal/api"
	"verdandi/internal/config"
	"verdandi/internal/logging"
	"verdandi/internal/stage"
	"verdandi/internal/store"
	"verdandi/internal/workflow"
)

// Daemon coordinates the worker pool and enforces single-instance execution
// per worker id.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	registry *stage.Registry
	pool     *workflow.Pool
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Pool         workflow.StatusSummary
	DatabasePath string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, reg *stage.Registry, logger *slog.Logger, pool *workflow.Pool) (*Daemon, error) {
	if cfg == nil || st == nil || reg == nil || pool == nil {
		return nil, errors.New("daemon requires config, store, stage registry, and worker pool")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		registry: reg,
		pool:     pool,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the worker lock, starts the pool and the status endpoint.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another worker with id %q is already running on this host", d.cfg.Worker.ID)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.pool.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start worker pool: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		logging.WarnWithContext(d.logger, "status endpoint unavailable", "api_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check worker.api_bind"),
			logging.String(logging.FieldImpact, "worker runs without its HTTP status endpoint"),
		)
	}

	d.running.Store(true)
	d.logger.Info("verdandi worker started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldWorkerID, d.cfg.Worker.ID),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop stops background processing and releases the worker lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.pool.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release worker lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("verdandi worker stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Experiments exposes the read model used by the status endpoint.
func (d *Daemon) Experiments() *api.ExperimentService {
	return api.NewExperimentService(d.store, d.registry)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Pool:         d.pool.Status(ctx),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}
}
