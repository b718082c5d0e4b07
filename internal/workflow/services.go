package workflow

import (
	"errors"
	"log/slog"

	"verdandi/internal/archive"
	"verdandi/internal/config"
	"verdandi/internal/coordination"
	"verdandi/internal/logging"
	"verdandi/internal/notifications"
	"verdandi/internal/resilience"
	"verdandi/internal/stage"
	"verdandi/internal/store"
)

// Services bundles the collaborators shared by the orchestrator, the
// discoverer and the pool. Config, Store and Registry are required; the rest
// default from Config.
type Services struct {
	Config       *config.Config
	Store        *store.Store
	Registry     *stage.Registry
	Guard        *resilience.Guard
	Coordination *coordination.Manager
	Notifier     notifications.Service
	// Archiver is optional; nil disables snapshots.
	Archiver *archive.Archiver
	Logger   *slog.Logger
}

func (s Services) withDefaults() (Services, error) {
	switch {
	case s.Config == nil:
		return s, errors.New("workflow: config is required")
	case s.Store == nil:
		return s, errors.New("workflow: store is required")
	case s.Registry == nil || s.Registry.Len() == 0:
		return s, errors.New("workflow: stage registry is required")
	}
	if s.Logger == nil {
		s.Logger = logging.NewNop()
	}
	if s.Guard == nil {
		breakers := resilience.NewRegistry(s.Config.Breaker,
			resilience.WithSink(s.Store),
			resilience.WithLogger(s.Logger),
		)
		s.Guard = resilience.NewGuard(resilience.PolicyFromConfig(s.Config.Retry), breakers, s.Logger)
	}
	if s.Coordination == nil {
		s.Coordination = coordination.NewManager(s.Config, s.Store, nil, s.Logger)
	}
	if s.Notifier == nil {
		s.Notifier = notifications.NewService(s.Config)
	}
	return s, nil
}
