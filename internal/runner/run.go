package runner

import (
	"context"
	"fmt"
	"time"

	"taskscribe/internal/jobs"
	"taskscribe/internal/logging"
	"taskscribe/internal/services"
	"taskscribe/internal/stage"
)

// Runner executes a single stage attempt under the configured per-stage
// timeout. It owns the mechanics every stage shares: deadline enforcement,
// panic containment, attempt logging, and normalizing a deadline overrun
// into a retryable result. Retry budgets live with the caller.
type Runner struct {
	timeout time.Duration
	logger  *logging.Logger
}

// New creates a Runner. A zero timeout disables the per-stage deadline.
func New(timeout time.Duration, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{timeout: timeout, logger: logger}
}

// Run executes one attempt of the named stage against the job.
func (r *Runner) Run(ctx context.Context, name stage.Name, handler stage.Handler, job *jobs.Job) (result stage.Result) {
	attemptCtx := services.WithStage(services.WithJobID(ctx, job.JobID), string(name))
	if r.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(attemptCtx, r.timeout)
		defer cancel()
	}

	started := time.Now()
	r.logger.Info("stage attempt started",
		logging.String(logging.FieldJobID, job.JobID),
		logging.String(logging.FieldStage, string(name)))

	defer func() {
		if recovered := recover(); recovered != nil {
			result = stage.Result{
				Outcome: stage.OutcomeFatal,
				Err: services.Wrap(nil, string(name), "execute",
					fmt.Sprintf("stage panicked: %v", recovered), nil),
			}
		}
		r.finish(name, job, &result, time.Since(started), attemptCtx, ctx)
	}()

	result = handler.Execute(attemptCtx, job)
	return result
}

// finish normalizes deadline overruns and logs the attempt outcome. A
// result produced after the per-stage deadline fired is downgraded to
// retryable unless the parent context itself is done (shutdown or cancel).
func (r *Runner) finish(name stage.Name, job *jobs.Job, result *stage.Result, elapsed time.Duration, attemptCtx, parentCtx context.Context) {
	if result.Outcome == stage.OutcomeFatal &&
		attemptCtx.Err() == context.DeadlineExceeded &&
		parentCtx.Err() == nil {
		result.Outcome = stage.OutcomeRetryable
		result.Err = services.Wrap(services.ErrTimeout, string(name), "execute",
			fmt.Sprintf("stage exceeded %s", r.timeout), result.Err)
	}

	fields := []logging.Attr{
		logging.String(logging.FieldJobID, job.JobID),
		logging.String(logging.FieldStage, string(name)),
		logging.String("outcome", result.Outcome.String()),
		logging.Duration("elapsed", elapsed),
	}
	switch result.Outcome {
	case stage.OutcomeSuccess, stage.OutcomeFallbackSuccess:
		r.logger.Info("stage attempt finished", logging.Args(fields...)...)
	default:
		r.logger.Warn("stage attempt failed", logging.Args(append(fields, logging.Error(result.Err))...)...)
	}
}
