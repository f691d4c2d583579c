package extract

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

const systemPrompt = `You extract action items from a meeting transcript.
Reply with JSON only: {"todos":[{"text":"...","due":"...","source_segment_ids":["seg_0001"]}]}.
Each todo text is a short imperative sentence. Include "due" only when the
transcript states a deadline, copied verbatim. source_segment_ids lists the
segment ids the todo came from. Return {"todos":[]} when nothing is actionable.`

const llmConfidence = 0.85

// Handler runs the to-do extraction stage. The primary path asks the local
// LLM for structured todos; when the LLM is unreachable for good, returns
// garbage, or heuristic-only mode is configured, the trigger-phrase
// heuristic produces todos instead and the job is marked degraded.
type Handler struct {
	client         *ollama.Client
	store          *artifacts.Store
	forceHeuristic bool
	logger         *logging.Logger
}

// NewHandler creates the extraction stage handler.
func NewHandler(client *ollama.Client, store *artifacts.Store, forceHeuristic bool, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{client: client, store: store, forceHeuristic: forceHeuristic, logger: logger}
}

type llmTodo struct {
	Text             string   `json:"text"`
	Due              string   `json:"due"`
	SourceSegmentIDs []string `json:"source_segment_ids"`
}

type llmTodoList struct {
	Todos []llmTodo `json:"todos"`
}

// Execute performs one extraction attempt.
func (h *Handler) Execute(ctx context.Context, job *jobs.Job) stage.Result {
	var doc transcript.SegmentDocument
	if err := h.store.ReadJSON(job.JobID, artifacts.DiarizationName, &doc); err != nil {
		return stage.Result{
			Outcome: stage.OutcomeFatal,
			Err:     services.Wrap(services.ErrInvalidOutput, string(stage.Extract), "load segments", "", err),
		}
	}

	if h.forceHeuristic {
		return h.fallback(job, doc.Segments, nil)
	}

	todos, err := h.extractLLM(ctx, doc.Segments)
	if err != nil {
		if services.NeedsFallback(err) {
			return h.fallback(job, doc.Segments, err)
		}
		if services.IsRetryable(err) {
			return stage.Result{Outcome: stage.OutcomeRetryable, Err: err}
		}
		return stage.Result{Outcome: stage.OutcomeFatal, Err: err}
	}

	ref, err := h.publish(job, todos)
	if err != nil {
		return stage.Result{Outcome: stage.OutcomeRetryable, Err: err}
	}
	job.ExtractionMode = jobs.ExtractionLLM
	h.logger.Info("extraction complete",
		logging.String(logging.FieldJobID, job.JobID),
		logging.String("mode", string(jobs.ExtractionLLM)),
		logging.Int("todos", len(todos)))
	return stage.Result{Outcome: stage.OutcomeSuccess, ArtifactRef: ref}
}

func (h *Handler) extractLLM(ctx context.Context, segments []transcript.Segment) ([]transcript.Todo, error) {
	messages := []ollama.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: renderSegments(segments)},
	}
	var reply llmTodoList
	if err := h.client.CompleteJSON(ctx, messages, &reply); err != nil {
		return nil, err
	}

	known := map[string]struct{}{}
	for _, segment := range segments {
		known[segment.SegmentID] = struct{}{}
	}

	todos := make([]transcript.Todo, 0, len(reply.Todos))
	for _, item := range reply.Todos {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}
		sources := make([]string, 0, len(item.SourceSegmentIDs))
		for _, id := range item.SourceSegmentIDs {
			if _, ok := known[id]; ok {
				sources = append(sources, id)
			}
		}
		if len(sources) == 0 {
			return nil, services.Wrap(services.ErrInvalidOutput, string(stage.Extract), "validate",
				fmt.Sprintf("todo %q cites no known segment", truncateText(text, 60)), nil)
		}
		todos = append(todos, transcript.Todo{
			TodoID:           transcript.TodoID(len(todos) + 1),
			Text:             text,
			Due:              strings.TrimSpace(item.Due),
			Confidence:       llmConfidence,
			SourceSegmentIDs: sources,
		})
	}
	return todos, nil
}

// ExecuteFallback runs the heuristic extractor after the LLM retry budget
// ran out.
func (h *Handler) ExecuteFallback(ctx context.Context, job *jobs.Job) stage.Result {
	var doc transcript.SegmentDocument
	if err := h.store.ReadJSON(job.JobID, artifacts.DiarizationName, &doc); err != nil {
		return stage.Result{
			Outcome: stage.OutcomeFatal,
			Err:     services.Wrap(services.ErrInvalidOutput, string(stage.Extract), "load segments", "", err),
		}
	}
	return h.fallback(job, doc.Segments, services.Wrap(services.ErrExhausted, string(stage.Extract), "execute", "llm retries exhausted", nil))
}

func (h *Handler) fallback(job *jobs.Job, segments []transcript.Segment, cause error) stage.Result {
	todos := HeuristicTodos(segments)
	ref, err := h.publish(job, todos)
	if err != nil {
		return stage.Result{Outcome: stage.OutcomeRetryable, Err: err}
	}
	job.ExtractionMode = jobs.ExtractionHeuristic
	warning := "extraction degraded to heuristic trigger phrases"
	if h.forceHeuristic {
		warning = ""
	}
	if cause != nil {
		h.logger.Warn("extraction degraded to heuristic",
			logging.String(logging.FieldJobID, job.JobID),
			logging.Error(cause))
	}
	outcome := stage.OutcomeFallbackSuccess
	if h.forceHeuristic {
		outcome = stage.OutcomeSuccess
	}
	return stage.Result{Outcome: outcome, ArtifactRef: ref, Warning: warning}
}

func (h *Handler) publish(job *jobs.Job, todos []transcript.Todo) (string, error) {
	for _, todo := range todos {
		if err := todo.Validate(); err != nil {
			return "", services.Wrap(services.ErrInvalidOutput, string(stage.Extract), "validate", "", err)
		}
	}
	doc := transcript.TodoDocument{Todos: todos}
	if doc.Todos == nil {
		doc.Todos = []transcript.Todo{}
	}
	ref, err := h.store.WriteJSON(job.JobID, artifacts.TodosName, doc)
	if err != nil {
		return "", fmt.Errorf("publish todos: %w", err)
	}
	return ref, nil
}

// HealthCheck probes the LLM runtime. In heuristic-only mode the stage has
// no external dependency.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h.forceHeuristic {
		return stage.Healthy(stage.Extract, "heuristic mode, no llm required")
	}
	version, err := h.client.Ping(ctx)
	if err != nil {
		return stage.Unhealthy(stage.Extract, err.Error())
	}
	detail := "ollama reachable"
	if version != "" {
		detail = "ollama " + version + " reachable"
	}
	return stage.Healthy(stage.Extract, detail)
}

func renderSegments(segments []transcript.Segment) string {
	var b strings.Builder
	for _, segment := range segments {
		fmt.Fprintf(&b, "[%s] %s: %s\n", segment.SegmentID, segment.SpeakerID, segment.Text)
	}
	if b.Len() == 0 {
		return "(empty transcript)"
	}
	return b.String()
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
