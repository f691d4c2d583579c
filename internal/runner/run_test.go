package runner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskscribe/internal/jobs"
	"taskscribe/internal/logging"
	"taskscribe/internal/runner"
	"taskscribe/internal/services"
	"taskscribe/internal/stage"
)

type fakeHandler struct {
	execute func(ctx context.Context, job *jobs.Job) stage.Result
}

func (f *fakeHandler) Execute(ctx context.Context, job *jobs.Job) stage.Result {
	return f.execute(ctx, job)
}

func (f *fakeHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(stage.Transcribe, "fake")
}

func TestRunPassesThroughSuccess(t *testing.T) {
	r := runner.New(time.Second, logging.NewNop())
	handler := &fakeHandler{execute: func(ctx context.Context, job *jobs.Job) stage.Result {
		return stage.Result{Outcome: stage.OutcomeSuccess, ArtifactRef: "artifacts/transcript.json"}
	}}

	result := r.Run(context.Background(), stage.Transcribe, handler, &jobs.Job{JobID: "job1"})
	if result.Outcome != stage.OutcomeSuccess || result.ArtifactRef != "artifacts/transcript.json" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunAppliesStageTimeout(t *testing.T) {
	r := runner.New(20*time.Millisecond, logging.NewNop())
	handler := &fakeHandler{execute: func(ctx context.Context, job *jobs.Job) stage.Result {
		<-ctx.Done()
		return stage.Result{Outcome: stage.OutcomeFatal, Err: ctx.Err()}
	}}

	result := r.Run(context.Background(), stage.Transcribe, handler, &jobs.Job{JobID: "job1"})
	if result.Outcome != stage.OutcomeRetryable {
		t.Fatalf("outcome = %s, want retryable after deadline", result.Outcome)
	}
	if !errors.Is(result.Err, services.ErrTimeout) {
		t.Fatalf("err = %v, want timeout marker", result.Err)
	}
}

func TestRunKeepsFatalWhenParentCancelled(t *testing.T) {
	r := runner.New(time.Second, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	handler := &fakeHandler{execute: func(ctx context.Context, job *jobs.Job) stage.Result {
		cancel()
		<-ctx.Done()
		return stage.Result{Outcome: stage.OutcomeFatal, Err: ctx.Err()}
	}}

	result := r.Run(ctx, stage.Transcribe, handler, &jobs.Job{JobID: "job1"})
	if result.Outcome != stage.OutcomeFatal {
		t.Fatalf("outcome = %s, want fatal on shutdown", result.Outcome)
	}
}

func TestRunContainsPanics(t *testing.T) {
	r := runner.New(time.Second, logging.NewNop())
	handler := &fakeHandler{execute: func(ctx context.Context, job *jobs.Job) stage.Result {
		panic("boom")
	}}

	result := r.Run(context.Background(), stage.Transcribe, handler, &jobs.Job{JobID: "job1"})
	if result.Outcome != stage.OutcomeFatal {
		t.Fatalf("outcome = %s, want fatal", result.Outcome)
	}
	if result.Err == nil {
		t.Fatal("panic must surface as an error")
	}
}

func TestRunZeroTimeoutDisablesDeadline(t *testing.T) {
	r := runner.New(0, logging.NewNop())
	handler := &fakeHandler{execute: func(ctx context.Context, job *jobs.Job) stage.Result {
		if _, ok := ctx.Deadline(); ok {
			t.Error("no deadline expected")
		}
		return stage.Result{Outcome: stage.OutcomeSuccess}
	}}

	if result := r.Run(context.Background(), stage.Transcribe, handler, &jobs.Job{JobID: "job1"}); result.Outcome != stage.OutcomeSuccess {
		t.Fatalf("unexpected result: %+v", result)
	}
}
