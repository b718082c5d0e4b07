package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"verdandi/internal/config"
	"verdandi/internal/coordination"
	"verdandi/internal/logging"
	"verdandi/internal/notifications"
	"verdandi/internal/services"
	"verdandi/internal/stage"
	"verdandi/internal/store"
)

// DiscoverParams controls a discovery batch.
type DiscoverParams struct {
	Count int `json:"count"`
	// Enqueue adds a run job for every created experiment.
	Enqueue bool `json:"enqueue"`
}

// DiscoverResult summarizes a discovery batch.
type DiscoverResult struct {
	Created    []*store.Experiment
	Duplicates int
	Conflicts  int
	// Unkeyed counts ideas whose title normalizes to an empty topic key.
	Unkeyed int
	// Exhausted counts slots that used every re-generation without finding
	// a fresh topic.
	Exhausted int
}

// Discoverer creates new experiments from the first pipeline stage.
type Discoverer struct {
	svc      Services
	cfg      *config.Config
	store    *store.Store
	first    stage.Descriptor
	logger   *slog.Logger
	workerID string
}

// NewDiscoverer constructs a discoverer.
func NewDiscoverer(svc Services) (*Discoverer, error) {
	svc, err := svc.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Discoverer{
		svc:      svc,
		cfg:      svc.Config,
		store:    svc.Store,
		first:    svc.Registry.First(),
		logger:   logging.NewComponentLogger(svc.Logger, "discovery"),
		workerID: svc.Config.Worker.ID,
	}, nil
}

// DiscoverBatch fills up to Count slots. Each slot re-generates up to
// coordination.max_dedup_attempts times, excluding topics that were screened
// out as duplicates or lost to another worker's reservation. A reservation
// conflict is a skip, never an error. Errors from the discovery stage end the
// batch and are returned with whatever was created so far.
func (d *Discoverer) DiscoverBatch(ctx context.Context, params DiscoverParams) (DiscoverResult, error) {
	var result DiscoverResult
	count := params.Count
	if count <= 0 {
		count = 1
	}
	attemptsPerSlot := max(d.cfg.Coordination.MaxDedupAttempts, 1)

	batchID := uuid.NewString()
	ctx = services.WithRequestID(services.WithWorkerID(ctx, d.workerID), batchID)
	ctx = services.WithStage(ctx, d.first.Name)
	logger := logging.WithContext(ctx, d.logger)

	if _, err := d.svc.Coordination.ExpireStale(ctx); err != nil {
		return result, fmt.Errorf("expire reservations: %w", err)
	}
	existing, err := d.store.DedupCandidates(ctx)
	if err != nil {
		return result, fmt.Errorf("load existing topics: %w", err)
	}
	exclude := make([]string, 0, len(existing)+count)
	for _, r := range existing {
		exclude = append(exclude, r.TopicKey)
	}

	for slot := 0; slot < count; slot++ {
		created := false
		for attempt := 1; attempt <= attemptsPerSlot && !created; attempt++ {
			idea, err := d.propose(ctx, exclude, batchID)
			if err != nil {
				d.finishBatch(ctx, logger, result)
				return result, err
			}
			cand := coordination.NewCandidate(idea.Title, idea.OneLiner)
			if cand.TopicKey == "" {
				result.Unkeyed++
				logger.Warn("idea title has no usable topic key",
					logging.String("title", idea.Title),
					logging.String(logging.FieldEventType, "discovery_unkeyed"),
				)
				continue
			}
			exclude = append(exclude, cand.TopicKey)

			verdict, err := d.svc.Coordination.Screen(ctx, cand)
			if err != nil {
				return result, fmt.Errorf("screen candidate: %w", err)
			}
			if verdict.Duplicate {
				result.Duplicates++
				continue
			}
			res, ok, err := d.svc.Coordination.TryReserve(ctx, cand)
			if err != nil {
				return result, fmt.Errorf("reserve topic: %w", err)
			}
			if !ok {
				result.Conflicts++
				continue
			}
			exp, err := d.createExperiment(ctx, idea, cand, res, params.Enqueue)
			if err != nil {
				if relErr := d.svc.Coordination.Release(ctx, res.ID, false); relErr != nil {
					logger.Warn("release after failed create", logging.Error(relErr))
				}
				return result, err
			}
			result.Created = append(result.Created, exp)
			created = true
		}
		if !created {
			result.Exhausted++
			logger.Info("discovery slot exhausted",
				logging.Int("slot", slot),
				logging.Int("attempts", attemptsPerSlot),
				logging.String(logging.FieldEventType, "discovery_slot_exhausted"),
			)
		}
	}
	d.finishBatch(ctx, logger, result)
	return result, nil
}

func (d *Discoverer) propose(ctx context.Context, exclude []string, batchID string) (stage.IdeaCandidate, error) {
	in := stage.Input{
		Stage:         d.first.Name,
		Order:         d.first.Order,
		CorrelationID: batchID,
		WorkerID:      d.workerID,
		Review:        stage.Review{Required: d.cfg.Pipeline.RequireHumanReview},
		Exclude:       append([]string(nil), exclude...),
	}
	var out stage.Output
	_, err := d.svc.Guard.Call(ctx, d.first.Dependency, func(callCtx context.Context, attempt int) error {
		in.Attempt = attempt
		res, err := d.first.Handler.Invoke(callCtx, in)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return stage.IdeaCandidate{}, fmt.Errorf("propose idea: %w", err)
	}
	idea, ok := out.Payload.(stage.IdeaCandidate)
	if !ok || idea.Title == "" {
		return stage.IdeaCandidate{}, services.Wrap(services.ErrValidation, d.first.Name, "propose idea",
			"discovery stage returned no idea", nil)
	}
	return idea, nil
}

// createExperiment persists the discovered idea as a new experiment. When a
// later step fails the half-built experiment is archived so it never sits in
// pending without its discovery result.
func (d *Discoverer) createExperiment(ctx context.Context, idea stage.IdeaCandidate, cand coordination.Candidate, res *store.Reservation, enqueue bool) (_ *store.Experiment, err error) {
	exp, err := d.store.CreateExperiment(ctx, store.NewExperiment{
		Title:       idea.Title,
		Summary:     idea.OneLiner,
		TopicKey:    cand.TopicKey,
		Fingerprint: cand.Fingerprint,
	})
	if err != nil {
		return nil, fmt.Errorf("create experiment: %w", err)
	}
	defer func() {
		if err != nil {
			d.discard(ctx, exp.ID, err)
		}
	}()
	data, err := stage.Encode(idea)
	if err != nil {
		return nil, err
	}
	if _, err := d.store.SaveStageResult(ctx, store.StageResult{
		ExperimentID:  exp.ID,
		StageName:     d.first.Name,
		StageOrder:    d.first.Order,
		Attempts:      1,
		Payload:       data,
		WorkerID:      d.workerID,
		CorrelationID: res.ID,
	}); err != nil {
		return nil, fmt.Errorf("persist discovery result: %w", err)
	}
	if err := d.store.AdvanceStage(ctx, exp.ID, d.first.Order); err != nil {
		return nil, fmt.Errorf("advance discovery stage: %w", err)
	}
	if err := d.svc.Coordination.Attach(ctx, res.ID, exp.ID); err != nil {
		return nil, fmt.Errorf("attach reservation: %w", err)
	}
	if err := d.store.AppendEvent(ctx, store.Event{
		ExperimentID: exp.ID,
		Type:         EventDiscovered,
		StageName:    d.first.Name,
		Message:      "reserved topic " + cand.TopicKey,
		WorkerID:     d.workerID,
	}); err != nil {
		return nil, fmt.Errorf("append discovery event: %w", err)
	}
	if enqueue {
		if _, _, err := d.store.EnqueueJob(ctx, store.NewJob{
			Kind:         store.JobRun,
			ExperimentID: exp.ID,
			DedupeKey:    store.RunJobKey(exp.ID),
		}); err != nil {
			return nil, fmt.Errorf("enqueue run: %w", err)
		}
	}
	d.logger.Info("experiment discovered",
		logging.Int64(logging.FieldExperimentID, exp.ID),
		logging.String(logging.FieldTopicKey, cand.TopicKey),
		logging.String("title", exp.Title),
		logging.String(logging.FieldEventType, EventDiscovered),
	)
	return exp, nil
}

func (d *Discoverer) discard(ctx context.Context, id int64, cause error) {
	ctx = context.WithoutCancel(ctx)
	if _, err := d.store.ArchiveExperiment(ctx, id); err != nil {
		logging.WarnWithContext(d.logger, "failed to archive incomplete experiment", "discovery_discard_failed",
			logging.Int64(logging.FieldExperimentID, id),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "archive it with verdandi archive"),
		)
		return
	}
	_ = d.store.AppendEvent(ctx, store.Event{
		ExperimentID: id,
		Type:         EventArchived,
		StageName:    d.first.Name,
		Message:      "discovery aborted: " + cause.Error(),
		WorkerID:     d.workerID,
	})
}

func (d *Discoverer) finishBatch(ctx context.Context, logger *slog.Logger, result DiscoverResult) {
	logger.Info("discovery batch finished",
		logging.Int("created", len(result.Created)),
		logging.Int("duplicates", result.Duplicates),
		logging.Int("conflicts", result.Conflicts),
		logging.Int("unkeyed", result.Unkeyed),
		logging.Int("exhausted", result.Exhausted),
		logging.String(logging.FieldEventType, "discovery_finished"),
	)
	if len(result.Created) == 0 || d.svc.Notifier == nil {
		return
	}
	if err := d.svc.Notifier.Publish(ctx, notifications.EventDiscoveryFinished, notifications.Payload{
		"created": len(result.Created),
		"skipped": result.Duplicates + result.Conflicts + result.Unkeyed,
	}); err != nil {
		logger.Debug("discovery notification failed", logging.Error(err))
	}
}
