package workflow_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"taskscribe/internal/config"
	"taskscribe/internal/jobs"
	"taskscribe/internal/logging"
	"taskscribe/internal/services"
	"taskscribe/internal/stage"
	"taskscribe/internal/testsupport"
	"taskscribe/internal/workflow"
)

type scriptedHandler struct {
	name    stage.Name
	calls   atomic.Int32
	execute func(attempt int32, job *jobs.Job) stage.Result
}

func (s *scriptedHandler) Execute(ctx context.Context, job *jobs.Job) stage.Result {
	attempt := s.calls.Add(1)
	if s.execute != nil {
		return s.execute(attempt, job)
	}
	return stage.Result{Outcome: stage.OutcomeSuccess, ArtifactRef: "artifacts/" + string(s.name) + ".json"}
}

func (s *scriptedHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(s.name, "scripted")
}

type fallbackHandler struct {
	scriptedHandler
	fallbackCalls atomic.Int32
}

func (f *fallbackHandler) ExecuteFallback(ctx context.Context, job *jobs.Job) stage.Result {
	f.fallbackCalls.Add(1)
	return stage.Result{
		Outcome:     stage.OutcomeFallbackSuccess,
		ArtifactRef: "artifacts/" + string(f.name) + ".json",
		Warning:     string(f.name) + " degraded",
	}
}

type fixture struct {
	cfg      *config.Config
	store    *jobs.Store
	manager  *workflow.Manager
	handlers map[stage.Name]*scriptedHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manager := workflow.NewManager(cfg, store, logging.NewNop())

	handlers := make(map[stage.Name]*scriptedHandler)
	for _, name := range stage.Order() {
		handler := &scriptedHandler{name: name}
		handlers[name] = handler
		manager.Register(name, handler)
	}
	return &fixture{cfg: cfg, store: store, manager: manager, handlers: handlers}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	if err := f.manager.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		f.manager.Stop()
	})
}

func waitTerminal(t *testing.T, store *jobs.Store, id int64) *jobs.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if job != nil && job.Status.IsTerminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal status")
	return nil
}

func TestPipelineCompletesWithOrderedArtifacts(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	job := testsupport.NewJob(t, f.store, "/tmp/audio.wav")
	f.manager.Enqueue(job)

	done := waitTerminal(t, f.store, job.ID)
	if done.Status != jobs.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", done.Status, done.FailureReason)
	}
	if len(done.StageArtifacts) != 5 {
		t.Fatalf("artifacts = %d, want 5: %+v", len(done.StageArtifacts), done.StageArtifacts)
	}
	for i, name := range stage.Order() {
		if done.StageArtifacts[i].Stage != string(name) {
			t.Fatalf("artifact %d stage = %s, want %s", i, done.StageArtifacts[i].Stage, name)
		}
	}
	if len(done.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", done.Warnings)
	}
}

func TestRetryExhaustionFailsJob(t *testing.T) {
	f := newFixture(t)
	f.handlers[stage.Transcribe].execute = func(attempt int32, job *jobs.Job) stage.Result {
		return stage.Result{
			Outcome: stage.OutcomeRetryable,
			Err:     services.Wrap(services.ErrTransient, "transcribe", "execute", "asr down", nil),
		}
	}
	f.start(t)

	job := testsupport.NewJob(t, f.store, "/tmp/audio.wav")
	f.manager.Enqueue(job)

	done := waitTerminal(t, f.store, job.ID)
	if done.Status != jobs.StatusFailed {
		t.Fatalf("status = %s, want failed", done.Status)
	}
	if done.FailureReason == "" {
		t.Fatal("failure reason must be recorded")
	}
	if got := f.handlers[stage.Transcribe].calls.Load(); got != int32(f.cfg.Workflow.MaxAttempts) {
		t.Fatalf("attempts = %d, want %d", got, f.cfg.Workflow.MaxAttempts)
	}
	if len(done.StageArtifacts) != 0 {
		t.Fatalf("failed job must not gain artifacts: %+v", done.StageArtifacts)
	}
	if calls := f.handlers[stage.Diarize].calls.Load(); calls != 0 {
		t.Fatalf("later stage ran %d times after failure", calls)
	}
}

func TestRetryExhaustionDegradesWhenStageHasFallback(t *testing.T) {
	f := newFixture(t)
	degraded := &fallbackHandler{scriptedHandler: scriptedHandler{name: stage.Extract}}
	degraded.execute = func(attempt int32, job *jobs.Job) stage.Result {
		return stage.Result{
			Outcome: stage.OutcomeRetryable,
			Err:     services.Wrap(services.ErrTransient, "extract", "execute", "llm down", nil),
		}
	}
	f.manager.Register(stage.Extract, degraded)
	f.start(t)

	job := testsupport.NewJob(t, f.store, "/tmp/audio.wav")
	f.manager.Enqueue(job)

	done := waitTerminal(t, f.store, job.ID)
	if done.Status != jobs.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed via fallback", done.Status, done.FailureReason)
	}
	if degraded.fallbackCalls.Load() != 1 {
		t.Fatalf("fallback calls = %d, want 1", degraded.fallbackCalls.Load())
	}
	if len(done.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one degradation note", done.Warnings)
	}
	if _, ok := done.ArtifactRef(string(stage.Extract)); !ok {
		t.Fatal("fallback artifact missing")
	}
}

func TestCancelRequestStopsAtStageBoundary(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.handlers[stage.Transcribe].execute = func(attempt int32, job *jobs.Job) stage.Result {
		<-release
		return stage.Result{Outcome: stage.OutcomeSuccess, ArtifactRef: "artifacts/transcribe.json"}
	}
	f.start(t)

	job := testsupport.NewJob(t, f.store, "/tmp/audio.wav")
	f.manager.Enqueue(job)

	// wait until the job is inside the first stage, then cancel it
	deadline := time.Now().Add(5 * time.Second)
	for f.handlers[stage.Transcribe].calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stage never started")
		}
		time.Sleep(2 * time.Millisecond)
	}
	if _, err := f.store.RequestCancel(context.Background(), job.JobID); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	close(release)

	done := waitTerminal(t, f.store, job.ID)
	if done.Status != jobs.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", done.Status)
	}
	if done.FailureReason != jobs.CancelReason {
		t.Fatalf("reason = %q", done.FailureReason)
	}
	// the in-flight stage finished and its artifact is kept
	if _, ok := done.ArtifactRef(string(stage.Transcribe)); !ok {
		t.Fatal("in-flight stage artifact should be kept")
	}
	if calls := f.handlers[stage.Diarize].calls.Load(); calls != 0 {
		t.Fatalf("stage after cancel ran %d times", calls)
	}
}

func TestRecoveryResumesInterruptedJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job := testsupport.NewJob(t, store, "/tmp/audio.wav")
	job.Status = jobs.StatusExtracting
	job.AppendArtifact(string(stage.Transcribe), "artifacts/transcript.json")
	job.AppendArtifact(string(stage.Diarize), "artifacts/diarization.json")
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	manager := workflow.NewManager(cfg, store, logging.NewNop())
	handlers := make(map[stage.Name]*scriptedHandler)
	for _, name := range stage.Order() {
		handler := &scriptedHandler{name: name}
		handlers[name] = handler
		manager.Register(name, handler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := manager.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		manager.Stop()
	})

	done := waitTerminal(t, store, job.ID)
	if done.Status != jobs.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", done.Status, done.FailureReason)
	}
	if calls := handlers[stage.Transcribe].calls.Load(); calls != 0 {
		t.Fatalf("completed stage re-ran %d times", calls)
	}
	if calls := handlers[stage.Extract].calls.Load(); calls != 1 {
		t.Fatalf("interrupted stage ran %d times, want 1", calls)
	}
}

func TestStartRejectsMissingHandler(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manager := workflow.NewManager(cfg, store, logging.NewNop())
	manager.Register(stage.Transcribe, &scriptedHandler{name: stage.Transcribe})

	err := manager.Start(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestHealthChecksCoverAllStages(t *testing.T) {
	f := newFixture(t)
	checks := f.manager.HealthChecks(context.Background())
	if len(checks) != 5 {
		t.Fatalf("checks = %d, want 5", len(checks))
	}
	for i, name := range stage.Order() {
		if checks[i].Stage != name {
			t.Fatalf("check %d stage = %s, want %s", i, checks[i].Stage, name)
		}
	}
}
