package archive

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"verdandi/internal/config"
	"verdandi/internal/logging"
	"verdandi/internal/store"
)

// Archiver snapshots experiments into a Sink.
type Archiver struct {
	store  *store.Store
	sink   Sink
	prefix string
	logger *slog.Logger
}

// New builds the archiver selected by configuration. It returns nil when
// archiving is disabled.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) (*Archiver, error) {
	if cfg == nil || !cfg.Archive.Enabled {
		return nil, nil
	}
	var sink Sink
	switch cfg.Archive.Backend {
	case config.ArchiveMinio:
		s, err := NewMinioSink(cfg.Archive)
		if err != nil {
			return nil, err
		}
		sink = s
	default:
		sink = NewFilesystemSink(cfg.Archive.Dir)
	}
	return NewWithSink(st, sink, cfg.Archive.Prefix, logger), nil
}

// NewWithSink builds an archiver over an explicit sink.
func NewWithSink(st *store.Store, sink Sink, prefix string, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Archiver{
		store:  st,
		sink:   sink,
		prefix: prefix,
		logger: logging.NewComponentLogger(logger, "archive"),
	}
}

// Sink returns the configured destination.
func (a *Archiver) Sink() Sink {
	return a.sink
}

// Archive writes the experiment's snapshot and returns its key.
func (a *Archiver) Archive(ctx context.Context, experimentID int64) (string, error) {
	snap, err := Build(ctx, a.store, experimentID)
	if err != nil {
		return "", fmt.Errorf("build snapshot: %w", err)
	}
	data, err := snap.Marshal()
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	key := path.Join(a.prefix, snap.Key())
	if err := a.sink.Put(ctx, key, data); err != nil {
		return "", err
	}
	a.logger.Info("experiment archived",
		logging.Int64(logging.FieldExperimentID, experimentID),
		logging.String("key", key),
		logging.String("sink", a.sink.Describe()),
		logging.String(logging.FieldEventType, "experiment_archived"),
	)
	return key, nil
}
