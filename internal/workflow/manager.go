package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"taskscribe/internal/config"
	"taskscribe/internal/jobs"
	"taskscribe/internal/logging"
	"taskscribe/internal/runner"
	"taskscribe/internal/services"
	"taskscribe/internal/stage"
)

const taskBuffer = 64

// Manager drives jobs through the pipeline. A fixed worker pool consumes a
// task channel; each task is one job, which its worker carries from its
// current stage to a terminal status. A periodic sweep re-enqueues queued
// jobs the channel missed and, after a restart, jobs that were mid-stage
// when the previous process died.
//
// Retry counting and backoff live here, not in the stages: a retryable
// attempt is re-run in place with exponential delay, and when the budget
// runs out a stage that can degrade does so, otherwise the job fails.
type Manager struct {
	cfg      *config.Config
	store    *jobs.Store
	runner   *runner.Runner
	handlers map[stage.Name]stage.Handler
	logger   *logging.Logger

	tasks chan int64

	mu       sync.Mutex
	inFlight map[int64]struct{}

	wg      sync.WaitGroup
	started bool
}

// NewManager creates a workflow manager. Handlers are registered per stage
// before Start.
func NewManager(cfg *config.Config, store *jobs.Store, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	stageTimeout := time.Duration(cfg.Workflow.StageTimeout) * time.Second
	return &Manager{
		cfg:      cfg,
		store:    store,
		runner:   runner.New(stageTimeout, logger),
		handlers: make(map[stage.Name]stage.Handler),
		logger:   logger,
		tasks:    make(chan int64, taskBuffer),
		inFlight: make(map[int64]struct{}),
	}
}

// Register installs the handler for a stage. It must be called before Start.
func (m *Manager) Register(name stage.Name, handler stage.Handler) {
	m.handlers[name] = handler
}

// Start validates handler registration, recovers interrupted jobs, and
// launches the worker pool and queue sweep. It returns once the pool is
// running; Stop waits for drain.
func (m *Manager) Start(ctx context.Context) error {
	if m.started {
		return fmt.Errorf("workflow manager already started")
	}
	for _, name := range stage.Order() {
		if _, ok := m.handlers[name]; !ok {
			return services.Wrap(services.ErrConfiguration, string(name), "start",
				"no handler registered", nil)
		}
	}
	m.started = true

	recovered, err := m.recover(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted jobs: %w", err)
	}
	if recovered > 0 {
		m.logger.Info("re-enqueued interrupted jobs", logging.Int("count", recovered))
	}

	workers := m.cfg.Workflow.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker(ctx, i)
	}
	m.wg.Add(1)
	go m.sweep(ctx)

	m.logger.Info("workflow manager started", logging.Int("workers", workers))
	return nil
}

// Stop blocks until all workers and the sweep have exited. The caller
// cancels the context passed to Start first.
func (m *Manager) Stop() {
	m.wg.Wait()
	m.logger.Info("workflow manager stopped")
}

// Enqueue offers a job to the worker pool. It never blocks; when the
// channel is full the sweep picks the job up on its next pass.
func (m *Manager) Enqueue(job *jobs.Job) {
	if !m.claim(job.ID) {
		return
	}
	select {
	case m.tasks <- job.ID:
	default:
		m.release(job.ID)
	}
}

func (m *Manager) claim(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inFlight[id]; ok {
		return false
	}
	m.inFlight[id] = struct{}{}
	return true
}

func (m *Manager) release(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, id)
}

// recover re-enqueues jobs left queued or mid-stage by a previous process.
// Durable state is authoritative: whatever the channel held before the
// crash is rebuilt from job statuses.
func (m *Manager) recover(ctx context.Context) (int, error) {
	count := 0
	statuses := append([]jobs.Status{jobs.StatusQueued}, jobs.ActiveStatuses()...)
	for _, status := range statuses {
		list, err := m.store.JobsByStatus(ctx, status)
		if err != nil {
			return count, err
		}
		for _, job := range list {
			m.Enqueue(job)
			count++
		}
	}
	return count, nil
}

// sweep periodically re-offers unfinished jobs to the pool. It covers both
// jobs submitted while the channel was full and jobs stranded in an active
// status by an earlier shutdown.
func (m *Manager) sweep(ctx context.Context) {
	defer m.wg.Done()
	interval := time.Duration(m.cfg.Workflow.QueuePollInterval) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.recover(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("queue sweep failed", logging.Error(err))
			}
		}
	}
}

func (m *Manager) worker(ctx context.Context, id int) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-m.tasks:
			m.processJob(ctx, jobID)
			m.release(jobID)
		}
	}
}

// processJob carries one job from its current position to a terminal
// status, or leaves it in place when the context is cancelled so recovery
// can resume it.
func (m *Manager) processJob(ctx context.Context, jobID int64) {
	job, err := m.store.GetByID(ctx, jobID)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Error("load job for processing", logging.Int64("id", jobID), logging.Error(err))
		}
		return
	}
	if job == nil || job.Status.IsTerminal() {
		return
	}

	current, ok := stageFor(job.Status)
	if !ok {
		m.logger.Error("job in unknown state", logging.String(logging.FieldJobID, job.JobID),
			logging.String("status", string(job.Status)))
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if m.refreshCancel(ctx, job) {
			m.cancelJob(ctx, job)
			return
		}

		job.Status = current.ActiveStatus()
		if err := m.persist(ctx, job); err != nil {
			m.logFatalPersist(ctx, job, err)
			return
		}

		result, finished := m.runStage(ctx, current, job)
		if !finished {
			return
		}

		switch result.Outcome {
		case stage.OutcomeSuccess, stage.OutcomeFallbackSuccess:
			job.AppendArtifact(string(current), result.ArtifactRef)
			job.AppendWarning(result.Warning)
			next, more := current.Next()
			if !more {
				job.Status = jobs.StatusCompleted
				if err := m.persist(ctx, job); err != nil {
					m.logFatalPersist(ctx, job, err)
					return
				}
				m.logger.Info("job completed",
					logging.String(logging.FieldJobID, job.JobID),
					logging.Int("warnings", len(job.Warnings)))
				return
			}
			current = next
		default:
			m.failJob(ctx, job, current, result.Err)
			return
		}
	}
}

// runStage runs one stage with the retry budget. The bool result is false
// when the context was cancelled and the job should be left for recovery.
func (m *Manager) runStage(ctx context.Context, name stage.Name, job *jobs.Job) (stage.Result, bool) {
	handler := m.handlers[name]
	maxAttempts := m.cfg.Workflow.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var result stage.Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if !m.backoff(ctx, attempt) {
				return stage.Result{}, false
			}
			if m.refreshCancel(ctx, job) {
				m.cancelJob(ctx, job)
				return stage.Result{}, false
			}
		}
		result = m.runner.Run(ctx, name, handler, job)
		if result.Outcome != stage.OutcomeRetryable {
			return result, ctx.Err() == nil
		}
		if ctx.Err() != nil {
			return stage.Result{}, false
		}
	}

	// Retry budget exhausted. Degrade when the stage knows how.
	if fallbacker, ok := handler.(stage.Fallbacker); ok {
		m.logger.Warn("stage retries exhausted, degrading",
			logging.String(logging.FieldJobID, job.JobID),
			logging.String(logging.FieldStage, string(name)),
			logging.Error(result.Err))
		return fallbacker.ExecuteFallback(ctx, job), ctx.Err() == nil
	}
	result.Outcome = stage.OutcomeFatal
	result.Err = services.Wrap(services.ErrExhausted, string(name), "execute",
		fmt.Sprintf("gave up after %d attempts", maxAttempts), result.Err)
	return result, true
}

func (m *Manager) backoff(ctx context.Context, attempt int) bool {
	base := time.Duration(m.cfg.Workflow.RetryBaseDelayMS) * time.Millisecond
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	max := time.Duration(m.cfg.Workflow.RetryMaxDelayMS) * time.Millisecond
	if max < base {
		max = base
	}
	delay := base
	for i := 2; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// refreshCancel re-reads the cancellation flag so a cancel issued mid-stage
// takes effect at the next stage boundary.
func (m *Manager) refreshCancel(ctx context.Context, job *jobs.Job) bool {
	if job.CancelRequested {
		return true
	}
	fresh, err := m.store.GetByID(ctx, job.ID)
	if err != nil || fresh == nil {
		return job.CancelRequested
	}
	job.Revision = fresh.Revision
	job.CancelRequested = fresh.CancelRequested
	return job.CancelRequested
}

func (m *Manager) cancelJob(ctx context.Context, job *jobs.Job) {
	job.SetCancelled("")
	if err := m.persist(ctx, job); err != nil {
		m.logFatalPersist(ctx, job, err)
		return
	}
	m.logger.Info("job cancelled", logging.String(logging.FieldJobID, job.JobID))
}

func (m *Manager) failJob(ctx context.Context, job *jobs.Job, name stage.Name, cause error) {
	reason := fmt.Sprintf("%s: %v", name, cause)
	job.SetFailed(reason)
	if err := m.persist(ctx, job); err != nil {
		m.logFatalPersist(ctx, job, err)
		return
	}
	m.logger.Error("job failed",
		logging.String(logging.FieldJobID, job.JobID),
		logging.String(logging.FieldStage, string(name)),
		logging.Error(cause))
}

// persist writes the job back, folding in a concurrent cancel request when
// the revision moved underneath us. The API's cancel endpoint is the only
// other writer.
func (m *Manager) persist(ctx context.Context, job *jobs.Job) error {
	for {
		err := m.store.Update(ctx, job)
		if err == nil {
			return nil
		}
		if !errors.Is(err, services.ErrConflict) {
			return err
		}
		fresh, readErr := m.store.GetByID(ctx, job.ID)
		if readErr != nil {
			return readErr
		}
		if fresh == nil {
			return services.Wrap(services.ErrNotFound, "", "persist job", job.JobID, nil)
		}
		job.Revision = fresh.Revision
		job.CancelRequested = job.CancelRequested || fresh.CancelRequested
	}
}

func (m *Manager) logFatalPersist(ctx context.Context, job *jobs.Job, err error) {
	if ctx.Err() != nil {
		return
	}
	m.logger.Error("persist job state",
		logging.String(logging.FieldJobID, job.JobID),
		logging.Error(err))
}

// stageFor maps a non-terminal status to the stage that should run next.
func stageFor(status jobs.Status) (stage.Name, bool) {
	switch status {
	case jobs.StatusQueued, jobs.StatusTranscribing:
		return stage.Transcribe, true
	case jobs.StatusDiarizing:
		return stage.Diarize, true
	case jobs.StatusExtracting:
		return stage.Extract, true
	case jobs.StatusAssigning:
		return stage.Assign, true
	case jobs.StatusExporting:
		return stage.Export, true
	default:
		return "", false
	}
}

// HealthChecks runs every registered handler's dependency probe.
func (m *Manager) HealthChecks(ctx context.Context) []stage.Health {
	checks := make([]stage.Health, 0, len(m.handlers))
	for _, name := range stage.Order() {
		handler, ok := m.handlers[name]
		if !ok {
			continue
		}
		checks = append(checks, handler.HealthCheck(ctx))
	}
	return checks
}
