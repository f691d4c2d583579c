package transcribe

import (
	"context"
	"fmt"
	"strings"

	"taskscribe/internal/artifacts"
	"taskscribe/internal/jobs"
	"taskscribe/internal/logging"
	"taskscribe/internal/services"
	"taskscribe/internal/services/asr"
	"taskscribe/internal/stage"
	"taskscribe/internal/transcript"
)

// Handler runs the transcription stage: it sends the recorded audio to the
// ASR backend and publishes transcript.json with canonical segment ids.
// Every segment starts out attributed to the unknown speaker; diarization
// refines that later.
type Handler struct {
	client *asr.Client
	store  *artifacts.Store
	logger *logging.Logger
}

// NewHandler creates the transcription stage handler.
func NewHandler(client *asr.Client, store *artifacts.Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{client: client, store: store, logger: logger}
}

// Execute performs one transcription attempt.
func (h *Handler) Execute(ctx context.Context, job *jobs.Job) stage.Result {
	raw, err := h.client.Transcribe(ctx, job.AudioPath)
	if err != nil {
		if services.IsRetryable(err) {
			return stage.Result{Outcome: stage.OutcomeRetryable, Err: err}
		}
		return stage.Result{Outcome: stage.OutcomeFatal, Err: err}
	}

	doc := transcript.SegmentDocument{Segments: make([]transcript.Segment, 0, len(raw))}
	for i, seg := range raw {
		doc.Segments = append(doc.Segments, transcript.Segment{
			SegmentID: transcript.SegmentID(i + 1),
			SpeakerID: transcript.UnknownSpeaker,
			StartSec:  seg.Start,
			EndSec:    seg.End,
			Text:      strings.TrimSpace(seg.Text),
		})
	}
	for _, segment := range doc.Segments {
		if err := segment.Validate(); err != nil {
			return stage.Result{
				Outcome: stage.OutcomeFatal,
				Err:     services.Wrap(services.ErrInvalidOutput, string(stage.Transcribe), "validate", "", err),
			}
		}
	}

	ref, err := h.store.WriteJSON(job.JobID, artifacts.TranscriptName, doc)
	if err != nil {
		return stage.Result{
			Outcome: stage.OutcomeRetryable,
			Err:     fmt.Errorf("publish transcript: %w", err),
		}
	}
	h.logger.Info("transcription complete",
		logging.String(logging.FieldJobID, job.JobID),
		logging.Int("segments", len(doc.Segments)))
	return stage.Result{Outcome: stage.OutcomeSuccess, ArtifactRef: ref}
}

// HealthCheck probes the ASR server.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if err := h.client.Ping(ctx); err != nil {
		return stage.Unhealthy(stage.Transcribe, err.Error())
	}
	return stage.Healthy(stage.Transcribe, "asr server reachable")
}
