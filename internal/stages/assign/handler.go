package assign

import (
	"context"
	"fmt"
	"strings"

	"taskscribe/internal/artifacts"
	"taskscribe/internal/jobs"
	"taskscribe/internal/logging"
	"taskscribe/internal/services"
	"taskscribe/internal/services/ollama"
	"taskscribe/internal/stage"
	"taskscribe/internal/transcript"
)

const systemPrompt = `You assign an owner to each meeting action item.
Reply with JSON only: {"assignments":[{"todo_id":"todo_0001","owner":"SPEAKER_00"}]}.
The owner must be one of the speaker labels given in the prompt. Use the
speaker who committed to or was asked to do the task. When unsure, use the
speaker of the segment the todo came from.`

// Handler runs the assignment stage. The primary path asks the LLM to pick
// an owner per todo from the known speaker labels. The fallback assigns
// each todo to the speaker of its first source segment, which is always
// well-defined because extraction records at least one source per todo.
type Handler struct {
	client         *ollama.Client
	store          *artifacts.Store
	forceHeuristic bool
	logger         *logging.Logger
}

// NewHandler creates the assignment stage handler.
func NewHandler(client *ollama.Client, store *artifacts.Store, forceHeuristic bool, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{client: client, store: store, forceHeuristic: forceHeuristic, logger: logger}
}

type llmAssignment struct {
	TodoID string `json:"todo_id"`
	Owner  string `json:"owner"`
}

type llmAssignmentList struct {
	Assignments []llmAssignment `json:"assignments"`
}

// Execute performs one assignment attempt.
func (h *Handler) Execute(ctx context.Context, job *jobs.Job) stage.Result {
	var todoDoc transcript.TodoDocument
	if err := h.store.ReadJSON(job.JobID, artifacts.TodosName, &todoDoc); err != nil {
		return stage.Result{
			Outcome: stage.OutcomeFatal,
			Err:     services.Wrap(services.ErrInvalidOutput, string(stage.Assign), "load todos", "", err),
		}
	}
	var segDoc transcript.SegmentDocument
	if err := h.store.ReadJSON(job.JobID, artifacts.DiarizationName, &segDoc); err != nil {
		return stage.Result{
			Outcome: stage.OutcomeFatal,
			Err:     services.Wrap(services.ErrInvalidOutput, string(stage.Assign), "load segments", "", err),
		}
	}

	speakerOf := map[string]string{}
	for _, segment := range segDoc.Segments {
		speakerOf[segment.SegmentID] = segment.SpeakerID
	}

	if h.forceHeuristic || len(todoDoc.Todos) == 0 {
		return h.publishFallback(job, todoDoc.Todos, speakerOf, nil, h.forceHeuristic || len(todoDoc.Todos) == 0)
	}

	owners, err := h.assignLLM(ctx, todoDoc.Todos, segDoc.Segments)
	if err != nil {
		if services.NeedsFallback(err) {
			return h.publishFallback(job, todoDoc.Todos, speakerOf, err, false)
		}
		if services.IsRetryable(err) {
			return stage.Result{Outcome: stage.OutcomeRetryable, Err: err}
		}
		return stage.Result{Outcome: stage.OutcomeFatal, Err: err}
	}

	assigned := applyOwners(todoDoc.Todos, owners, speakerOf)
	ref, err := h.publish(job, assigned)
	if err != nil {
		return stage.Result{Outcome: stage.OutcomeRetryable, Err: err}
	}
	h.logger.Info("assignment complete",
		logging.String(logging.FieldJobID, job.JobID),
		logging.Int("todos", len(assigned)))
	return stage.Result{Outcome: stage.OutcomeSuccess, ArtifactRef: ref}
}

func (h *Handler) assignLLM(ctx context.Context, todos []transcript.Todo, segments []transcript.Segment) (map[string]string, error) {
	speakers := transcript.Speakers(segments)

	var b strings.Builder
	fmt.Fprintf(&b, "Speakers: %s\n\nTranscript:\n", strings.Join(speakers, ", "))
	for _, segment := range segments {
		fmt.Fprintf(&b, "[%s] %s: %s\n", segment.SegmentID, segment.SpeakerID, segment.Text)
	}
	b.WriteString("\nAction items:\n")
	for _, todo := range todos {
		fmt.Fprintf(&b, "[%s] %s (from %s)\n", todo.TodoID, todo.Text, strings.Join(todo.SourceSegmentIDs, ", "))
	}

	messages := []ollama.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
	var reply llmAssignmentList
	if err := h.client.CompleteJSON(ctx, messages, &reply); err != nil {
		return nil, err
	}

	valid := map[string]struct{}{}
	for _, speaker := range speakers {
		valid[speaker] = struct{}{}
	}
	owners := make(map[string]string, len(reply.Assignments))
	for _, assignment := range reply.Assignments {
		owner := strings.TrimSpace(assignment.Owner)
		if _, ok := valid[owner]; !ok {
			return nil, services.Wrap(services.ErrInvalidOutput, string(stage.Assign), "validate",
				fmt.Sprintf("owner %q is not a known speaker", owner), nil)
		}
		owners[assignment.TodoID] = owner
	}
	return owners, nil
}

// applyOwners merges LLM picks over the source-segment default. A todo the
// LLM skipped still gets an owner.
func applyOwners(todos []transcript.Todo, owners map[string]string, speakerOf map[string]string) []transcript.Todo {
	assigned := make([]transcript.Todo, len(todos))
	for i, todo := range todos {
		owner, ok := owners[todo.TodoID]
		if !ok {
			owner = defaultOwner(todo, speakerOf)
		}
		todo.Owner = owner
		assigned[i] = todo
	}
	return assigned
}

func defaultOwner(todo transcript.Todo, speakerOf map[string]string) string {
	for _, id := range todo.SourceSegmentIDs {
		if speaker, ok := speakerOf[id]; ok && strings.TrimSpace(speaker) != "" {
			return speaker
		}
	}
	return transcript.UnknownSpeaker
}

// ExecuteFallback assigns source-segment speakers after the LLM retry
// budget ran out.
func (h *Handler) ExecuteFallback(ctx context.Context, job *jobs.Job) stage.Result {
	var todoDoc transcript.TodoDocument
	if err := h.store.ReadJSON(job.JobID, artifacts.TodosName, &todoDoc); err != nil {
		return stage.Result{
			Outcome: stage.OutcomeFatal,
			Err:     services.Wrap(services.ErrInvalidOutput, string(stage.Assign), "load todos", "", err),
		}
	}
	var segDoc transcript.SegmentDocument
	if err := h.store.ReadJSON(job.JobID, artifacts.DiarizationName, &segDoc); err != nil {
		return stage.Result{
			Outcome: stage.OutcomeFatal,
			Err:     services.Wrap(services.ErrInvalidOutput, string(stage.Assign), "load segments", "", err),
		}
	}
	speakerOf := map[string]string{}
	for _, segment := range segDoc.Segments {
		speakerOf[segment.SegmentID] = segment.SpeakerID
	}
	cause := services.Wrap(services.ErrExhausted, string(stage.Assign), "execute", "llm retries exhausted", nil)
	return h.publishFallback(job, todoDoc.Todos, speakerOf, cause, false)
}

func (h *Handler) publishFallback(job *jobs.Job, todos []transcript.Todo, speakerOf map[string]string, cause error, silent bool) stage.Result {
	assigned := make([]transcript.Todo, len(todos))
	for i, todo := range todos {
		todo.Owner = defaultOwner(todo, speakerOf)
		assigned[i] = todo
	}
	ref, err := h.publish(job, assigned)
	if err != nil {
		return stage.Result{Outcome: stage.OutcomeRetryable, Err: err}
	}
	if cause != nil {
		h.logger.Warn("assignment degraded to source-speaker default",
			logging.String(logging.FieldJobID, job.JobID),
			logging.Error(cause))
	}
	if silent {
		return stage.Result{Outcome: stage.OutcomeSuccess, ArtifactRef: ref}
	}
	return stage.Result{
		Outcome:     stage.OutcomeFallbackSuccess,
		ArtifactRef: ref,
		Warning:     "assignment degraded to each todo's source speaker",
	}
}

func (h *Handler) publish(job *jobs.Job, todos []transcript.Todo) (string, error) {
	for _, todo := range todos {
		if strings.TrimSpace(todo.Owner) == "" {
			return "", services.Wrap(services.ErrInvalidOutput, string(stage.Assign), "validate",
				fmt.Sprintf("todo %s has no owner", todo.TodoID), nil)
		}
	}
	doc := transcript.TodoDocument{Todos: todos}
	if doc.Todos == nil {
		doc.Todos = []transcript.Todo{}
	}
	ref, err := h.store.WriteJSON(job.JobID, artifacts.AssignmentsName, doc)
	if err != nil {
		return "", fmt.Errorf("publish assignments: %w", err)
	}
	return ref, nil
}

// HealthCheck probes the LLM runtime shared with the extraction stage.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h.forceHeuristic {
		return stage.Healthy(stage.Assign, "heuristic mode, no llm required")
	}
	if _, err := h.client.Ping(ctx); err != nil {
		return stage.Unhealthy(stage.Assign, err.Error())
	}
	return stage.Healthy(stage.Assign, "ollama reachable")
}
