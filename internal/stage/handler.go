package stage

import (
	"context"

	"taskscribe/internal/jobs"
)

// Name identifies a pipeline stage.
type Name string

const (
	Transcribe Name = "transcribe"
	Diarize    Name = "diarize"
	Extract    Name = "extract"
	Assign     Name = "assign"
	Export     Name = "export"
)

// Order lists stages in execution order.
func Order() []Name {
	return []Name{Transcribe, Diarize, Extract, Assign, Export}
}

// ActiveStatus maps a stage to the job status that marks it in progress.
func (n Name) ActiveStatus() jobs.Status {
	switch n {
	case Transcribe:
		return jobs.StatusTranscribing
	case Diarize:
		return jobs.StatusDiarizing
	case Extract:
		return jobs.StatusExtracting
	case Assign:
		return jobs.StatusAssigning
	case Export:
		return jobs.StatusExporting
	default:
		return jobs.StatusQueued
	}
}

// Next returns the stage after n, or ("", false) when n is the last stage.
func (n Name) Next() (Name, bool) {
	order := Order()
	for i, name := range order {
		if name == n && i+1 < len(order) {
			return order[i+1], true
		}
	}
	return "", false
}

// Outcome classifies a stage attempt for the coordinator.
type Outcome int

const (
	// OutcomeSuccess means the primary provider produced a valid artifact.
	OutcomeSuccess Outcome = iota
	// OutcomeFallbackSuccess means the fallback produced a usable artifact
	// after the primary path was unusable.
	OutcomeFallbackSuccess
	// OutcomeRetryable means the attempt failed transiently and may be
	// re-tried by the coordinator.
	OutcomeRetryable
	// OutcomeFatal means the attempt failed in a way no retry can fix.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFallbackSuccess:
		return "fallback-success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is what a stage attempt reports back to the coordinator. ArtifactRef
// points at the published output for successful outcomes; Warning carries a
// human-readable degradation note recorded on the job; Err explains failures.
type Result struct {
	Outcome     Outcome
	ArtifactRef string
	Warning     string
	Err         error
}

// Handler executes one pipeline stage for a job. Execute must be safe to
// call again after a retryable failure: it overwrites its own artifact and
// never depends on leftovers from a prior attempt.
type Handler interface {
	// Execute runs a single attempt against the job. The context carries
	// the per-stage timeout and the job's cancellation.
	Execute(ctx context.Context, job *jobs.Job) Result

	// HealthCheck probes the stage's external dependency so preflight and
	// the status endpoint can report readiness without running a job.
	HealthCheck(ctx context.Context) Health
}

// Fallbacker is implemented by handlers that can produce a degraded but
// usable artifact without their primary provider. The coordinator invokes
// it when a stage's retry budget runs out.
type Fallbacker interface {
	ExecuteFallback(ctx context.Context, job *jobs.Job) Result
}

// Health is a point-in-time readiness report for a stage dependency.
type Health struct {
	Stage  Name
	Ready  bool
	Detail string
}

// Healthy builds a passing health report.
func Healthy(stage Name, detail string) Health {
	return Health{Stage: stage, Ready: true, Detail: detail}
}

// Unhealthy builds a failing health report.
func Unhealthy(stage Name, detail string) Health {
	return Health{Stage: stage, Ready: false, Detail: detail}
}
