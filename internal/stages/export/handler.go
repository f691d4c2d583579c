package export

import (
	"context"
	"fmt"

	"taskscribe/internal/artifacts"
	"taskscribe/internal/jobs"
	"taskscribe/internal/logging"
	"taskscribe/internal/services"
	"taskscribe/internal/stage"
	"taskscribe/internal/transcript"
)

// Handler runs the export stage: it renders the assigned todos into the
// person-grouped text artifact. The stage is deterministic and has no
// external dependency, so there is no fallback and no retry pressure
// beyond filesystem errors.
type Handler struct {
	store  *artifacts.Store
	logger *logging.Logger
}

// NewHandler creates the export stage handler.
func NewHandler(store *artifacts.Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// Execute renders and publishes todos_by_person.txt.
func (h *Handler) Execute(ctx context.Context, job *jobs.Job) stage.Result {
	var doc transcript.TodoDocument
	if err := h.store.ReadJSON(job.JobID, artifacts.AssignmentsName, &doc); err != nil {
		return stage.Result{
			Outcome: stage.OutcomeFatal,
			Err:     services.Wrap(services.ErrInvalidOutput, string(stage.Export), "load assignments", "", err),
		}
	}

	rendered := transcript.RenderGrouped(doc.Todos)
	ref, err := h.store.WriteText(job.JobID, artifacts.ExportName, rendered)
	if err != nil {
		return stage.Result{Outcome: stage.OutcomeRetryable, Err: fmt.Errorf("publish export: %w", err)}
	}
	h.logger.Info("export complete",
		logging.String(logging.FieldJobID, job.JobID),
		logging.Int("todos", len(doc.Todos)))
	return stage.Result{Outcome: stage.OutcomeSuccess, ArtifactRef: ref}
}

// HealthCheck always passes; export only touches the local filesystem.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(stage.Export, "local render only")
}
