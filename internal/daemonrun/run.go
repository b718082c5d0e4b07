package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"verdandi/internal/archive"
	"verdandi/internal/config"
	"verdandi/internal/daemon"
	"verdandi/internal/logging"
	"verdandi/internal/preflight"
	"verdandi/internal/stages"
	"verdandi/internal/store"
	"verdandi/internal/workflow"
)

// Options configures worker process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the verdandi worker runtime loop and blocks until SIGINT or
// SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("verdandi-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update worker.log link: %v\n", err)
	}
	if days := cfg.Logging.RetentionDays; days > 0 {
		PruneRunLogs(cfg.Paths.LogDir, time.Duration(days)*24*time.Hour, logPath, time.Now(), logger)
	}

	pidPath := strings.TrimSuffix(cfg.LockPath(), ".lock") + ".pid"
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}

	svc, err := Services(cfg, st, logger)
	if err != nil {
		st.Close()
		return err
	}
	logDependencySnapshot(logger, cfg, svc)
	logPreflight(signalCtx, logger, cfg, svc)

	pool, err := workflow.NewPool(svc)
	if err != nil {
		st.Close()
		return fmt.Errorf("create worker pool: %w", err)
	}
	d, err := daemon.New(cfg, st, svc.Registry, logger, pool)
	if err != nil {
		st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("verdandi worker shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// Services assembles the collaborators a worker or a foreground CLI run
// needs: the stage registry, fault handling, notifications and the archiver.
func Services(cfg *config.Config, st *store.Store, logger *slog.Logger) (workflow.Services, error) {
	reg, err := stages.NewRegistry(cfg, stages.Options{})
	if err != nil {
		return workflow.Services{}, fmt.Errorf("build stage registry: %w", err)
	}
	archiver, err := archive.New(cfg, st, logger)
	if err != nil {
		return workflow.Services{}, fmt.Errorf("configure archive: %w", err)
	}
	return workflow.Services{
		Config:   cfg,
		Store:    st,
		Registry: reg,
		Archiver: archiver,
		Logger:   logger,
	}, nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, svc workflow.Services) {
	for _, r := range preflight.Failed(preflight.RunAll(ctx, cfg, svc.Store, svc.Registry)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "run verdandi check for the full report"),
		)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "worker.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config, svc workflow.Services) {
	if logger == nil || cfg == nil {
		return
	}
	archiveTarget := "disabled"
	if svc.Archiver != nil {
		archiveTarget = svc.Archiver.Sink().Describe()
	}
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("store_driver", cfg.Store.Driver),
		logging.String(logging.FieldWorkerID, cfg.Worker.ID),
		logging.Int("pool_size", cfg.Worker.PoolSize),
		logging.Bool("review_required", cfg.Pipeline.RequireHumanReview),
		logging.Bool("ntfy_configured", cfg.Notifications.NtfyTopic != ""),
		logging.String("archive", archiveTarget),
		logging.String("semantic_dedup", cfg.Coordination.Semantic),
		logging.Any("stage_dependencies", svc.Registry.Dependencies()),
	)
}
