package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"verdandi/internal/logging"
	"verdandi/internal/resilience"
	"verdandi/internal/services"
	"verdandi/internal/stage"
	"verdandi/internal/store"
)

// ErrAlreadyInflight is returned by dispatch when the experiment is already
// running in one of this pool's slots.
var ErrAlreadyInflight = errors.New("experiment already running in this worker")

// periodicDiscoveryKey keeps at most one scheduled discovery job in the backlog.
const periodicDiscoveryKey = "discover:periodic"

// RunParams are the optional parameters of a run job.
type RunParams struct {
	StopAfter string `json:"stop_after,omitempty"`
}

// Pool claims jobs from the shared backlog and runs them on a fixed number of
// slots.
type Pool struct {
	svc          Services
	orchestrator *Orchestrator
	discoverer   *Discoverer
	heartbeat    *HeartbeatMonitor
	logger       *slog.Logger
	workerID     string

	size              int
	pollInterval      time.Duration
	errorRetry        time.Duration
	discoveryInterval time.Duration
	discoveryBatch    int

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	slots    chan int
	inflight map[int64]int
	lastErr  error
	lastJob  *store.Job
	finished int
	failed   int
}

// NewPool constructs a worker pool.
func NewPool(svc Services) (*Pool, error) {
	svc, err := svc.withDefaults()
	if err != nil {
		return nil, err
	}
	orch, err := NewOrchestrator(svc)
	if err != nil {
		return nil, err
	}
	disc, err := NewDiscoverer(svc)
	if err != nil {
		return nil, err
	}
	w := svc.Config.Worker
	logger := logging.NewComponentLogger(svc.Logger, "worker-pool")
	return &Pool{
		svc:          svc,
		orchestrator: orch,
		discoverer:   disc,
		heartbeat: NewHeartbeatMonitor(svc.Store, svc.Logger, w.ID,
			time.Duration(w.HeartbeatInterval)*time.Second,
			time.Duration(w.HeartbeatTimeout)*time.Second,
		),
		logger:            logger,
		workerID:          w.ID,
		size:              max(w.PoolSize, 1),
		pollInterval:      time.Duration(w.PollInterval) * time.Second,
		errorRetry:        time.Duration(w.ErrorRetryInterval) * time.Second,
		discoveryInterval: time.Duration(w.DiscoveryInterval) * time.Minute,
		discoveryBatch:    max(w.DiscoveryBatch, 1),
		inflight:          make(map[int64]int),
	}, nil
}

// Orchestrator returns the orchestrator the pool runs jobs with.
func (p *Pool) Orchestrator() *Orchestrator {
	return p.orchestrator
}

// Discoverer returns the discoverer the pool runs discovery jobs with.
func (p *Pool) Discoverer() *Discoverer {
	return p.discoverer
}

// Enqueue adds a job to the shared backlog. A queued or running job with the
// same dedupe key is returned instead of creating another.
func (p *Pool) Enqueue(ctx context.Context, job store.NewJob) (*store.Job, bool, error) {
	return p.svc.Store.EnqueueJob(ctx, job)
}

// EnqueueRun queues a run of one experiment.
func (p *Pool) EnqueueRun(ctx context.Context, experimentID int64, params RunParams) (*store.Job, bool, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, false, err
	}
	return p.Enqueue(ctx, store.NewJob{
		Kind:         store.JobRun,
		ExperimentID: experimentID,
		DedupeKey:    store.RunJobKey(experimentID),
		Params:       raw,
	})
}

// EnqueueDiscover queues a discovery batch.
func (p *Pool) EnqueueDiscover(ctx context.Context, params DiscoverParams) (*store.Job, bool, error) {
	return p.enqueueDiscover(ctx, "discover:"+uuid.NewString(), params)
}

func (p *Pool) enqueueDiscover(ctx context.Context, key string, params DiscoverParams) (*store.Job, bool, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, false, err
	}
	return p.Enqueue(ctx, store.NewJob{Kind: store.JobDiscover, DedupeKey: key, Params: raw})
}

// Start begins background processing.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("worker pool already running")
	}
	if err := p.svc.Guard.Breakers().RestoreFrom(ctx, p.svc.Store); err != nil {
		p.logger.Warn("circuit state restore failed; breakers start closed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "circuit_restore_failed"),
			logging.String(logging.FieldErrorHint, "check database access"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.slots = make(chan int, p.size)
	for i := 0; i < p.size; i++ {
		p.slots <- i
	}
	p.wg.Add(1)
	go p.feed(runCtx)
	if p.discoveryInterval > 0 {
		p.wg.Add(1)
		go p.scheduleDiscovery(runCtx)
	}
	p.mu.Unlock()

	p.logger.Info("worker pool started",
		logging.String(logging.FieldWorkerID, p.workerID),
		logging.Int("slots", p.size),
		logging.Duration("discovery_interval", p.discoveryInterval),
		logging.String(logging.FieldEventType, "pool_started"),
	)
	return nil
}

// Stop cancels processing and waits for every slot to drain. Jobs
// interrupted by shutdown stay claimed and are reclaimed after the heartbeat
// timeout; their experiments resume from the last persisted stage.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped", logging.String(logging.FieldEventType, "pool_stopped"))
}

func (p *Pool) feed(ctx context.Context) {
	defer p.wg.Done()
	for {
		if err := p.heartbeat.ReclaimStaleJobs(ctx, p.logger); err != nil && ctx.Err() == nil {
			p.logger.Warn("reclaim stale jobs failed; stuck jobs may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check database access"),
			)
		}

		var slot int
		select {
		case <-ctx.Done():
			return
		case slot = <-p.slots:
		}

		job, err := p.svc.Store.ClaimJob(ctx, p.workerID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			p.slots <- slot
			if !p.wait(ctx, p.pollInterval) {
				return
			}
			continue
		case err != nil:
			p.slots <- slot
			if ctx.Err() != nil {
				return
			}
			p.setLastError(err)
			p.logger.Error("failed to claim next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "job_claim_failed"),
				logging.String(logging.FieldErrorHint, "check database access"),
			)
			if !p.wait(ctx, p.errorRetry) {
				return
			}
			continue
		}

		if err := p.dispatch(ctx, job, slot); err != nil {
			p.slots <- slot
			p.logger.Warn("job refused by dispatcher",
				logging.Int64(logging.FieldJobID, job.ID),
				logging.Int64(logging.FieldExperimentID, job.ExperimentID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "job_refused"),
			)
			if finishErr := p.svc.Store.FinishJob(ctx, job.ID, p.workerID, err); finishErr != nil {
				p.logger.Warn("failed to finish refused job", logging.Error(finishErr))
			}
		}
	}
}

// dispatch assigns a claimed job to a slot. Run jobs for an experiment that
// already occupies a slot are refused.
func (p *Pool) dispatch(ctx context.Context, job *store.Job, slot int) error {
	p.mu.Lock()
	if job.Kind == store.JobRun {
		if other, busy := p.inflight[job.ExperimentID]; busy {
			p.mu.Unlock()
			return fmt.Errorf("%w (slot %d)", ErrAlreadyInflight, other)
		}
		p.inflight[job.ExperimentID] = slot
	}
	p.lastJob = job
	p.mu.Unlock()

	p.wg.Add(1)
	go p.execute(ctx, job, slot)
	return nil
}

func (p *Pool) execute(ctx context.Context, job *store.Job, slot int) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		if job.Kind == store.JobRun && p.inflight[job.ExperimentID] == slot {
			delete(p.inflight, job.ExperimentID)
		}
		p.mu.Unlock()
		p.slots <- slot
	}()

	jobCtx := services.WithWorkerID(ctx, p.workerID)
	if job.ExperimentID > 0 {
		jobCtx = services.WithExperimentID(jobCtx, job.ExperimentID)
	}
	logger := logging.WithContext(jobCtx, p.logger).With(
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("kind", string(job.Kind)),
		logging.Int("slot", slot),
	)

	hbCtx, hbCancel := context.WithCancel(jobCtx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go p.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	started := time.Now()
	err := p.runJob(jobCtx, job)
	hbCancel()
	hbWG.Wait()

	if ctx.Err() != nil {
		logger.Info("job interrupted by shutdown", logging.String(logging.FieldEventType, "job_interrupted"))
		return
	}
	p.mu.Lock()
	p.finished++
	if err != nil {
		p.failed++
		p.lastErr = err
	}
	p.mu.Unlock()
	if finishErr := p.svc.Store.FinishJob(ctx, job.ID, p.workerID, err); finishErr != nil {
		logger.Warn("failed to finish job", logging.Error(finishErr))
	}

	var stageErr *StageError
	switch {
	case err == nil:
		logger.Info("job finished",
			logging.Duration("job_duration", time.Since(started)),
			logging.String(logging.FieldEventType, "job_finished"),
		)
	case errors.As(err, &stageErr):
		logger.Warn("job finished with stage failure",
			logging.String(logging.FieldStage, stageErr.Stage),
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_stage_failed"),
		)
	default:
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database access and worker logs"),
		)
	}
}

func (p *Pool) runJob(ctx context.Context, job *store.Job) error {
	switch job.Kind {
	case store.JobRun:
		var params RunParams
		if len(job.Params) > 0 {
			if err := json.Unmarshal(job.Params, &params); err != nil {
				return services.Wrap(services.ErrValidation, "", "decode run params", "malformed job params", err)
			}
		}
		_, err := p.orchestrator.Run(ctx, job.ExperimentID, RunOptions{StopAfter: params.StopAfter})
		return err
	case store.JobDiscover:
		params := DiscoverParams{Count: p.discoveryBatch, Enqueue: true}
		if len(job.Params) > 0 {
			if err := json.Unmarshal(job.Params, &params); err != nil {
				return services.Wrap(services.ErrValidation, "", "decode discover params", "malformed job params", err)
			}
		}
		_, err := p.discoverer.DiscoverBatch(ctx, params)
		return err
	default:
		return services.Wrap(services.ErrValidation, "", "run job", fmt.Sprintf("unknown job kind %q", job.Kind), nil)
	}
}

func (p *Pool) scheduleDiscovery(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.discoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, created, err := p.enqueueDiscover(ctx, periodicDiscoveryKey, DiscoverParams{Count: p.discoveryBatch, Enqueue: true})
			switch {
			case err != nil && ctx.Err() == nil:
				p.logger.Warn("periodic discovery enqueue failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "discovery_enqueue_failed"),
					logging.String(logging.FieldErrorHint, "check database access"),
				)
			case created:
				p.logger.Info("periodic discovery queued", logging.String(logging.FieldEventType, "discovery_scheduled"))
			}
		}
	}
}

func (p *Pool) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (p *Pool) setLastError(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}

// StatusSummary is a point-in-time view of the worker.
type StatusSummary struct {
	Running     bool
	WorkerID    string
	Slots       int
	Inflight    []int64
	Finished    int
	Failed      int
	LastError   string
	LastJob     *store.Job
	Experiments map[store.Status]int
	StageHealth []stage.Health
	Breakers    []resilience.Snapshot
}

// Status returns the latest worker information.
func (p *Pool) Status(ctx context.Context) StatusSummary {
	p.mu.Lock()
	summary := StatusSummary{
		Running:  p.running,
		WorkerID: p.workerID,
		Slots:    p.size,
		Finished: p.finished,
		Failed:   p.failed,
	}
	for id := range p.inflight {
		summary.Inflight = append(summary.Inflight, id)
	}
	if p.lastErr != nil {
		summary.LastError = p.lastErr.Error()
	}
	if p.lastJob != nil {
		job := *p.lastJob
		summary.LastJob = &job
	}
	p.mu.Unlock()
	slices.Sort(summary.Inflight)

	counts, err := p.svc.Store.CountExperimentsByStatus(ctx)
	if err != nil {
		p.logger.Warn("failed to read experiment counts", logging.Error(err))
	}
	summary.Experiments = counts
	summary.StageHealth = p.svc.Registry.CheckAll(ctx)
	summary.Breakers = p.svc.Guard.Breakers().Snapshots()
	return summary
}
