package diarize

import (
	"context"
	"fmt"

	"taskscribe/internal/artifacts"
	"taskscribe/internal/jobs"
	"taskscribe/internal/logging"
	"taskscribe/internal/services"
	diarizesvc "taskscribe/internal/services/diarize"
	"taskscribe/internal/stage"
	"taskscribe/internal/transcript"
)

// Handler runs the diarization stage. The primary path sends the audio to
// the pyannote backend and relabels each transcript segment with the
// speaker whose turns overlap it most. When no credential is configured or
// the backend output is unusable, the fallback keeps every segment on the
// unknown speaker so the pipeline continues degraded rather than failing.
type Handler struct {
	client *diarizesvc.Client
	store  *artifacts.Store
	logger *logging.Logger
}

// NewHandler creates the diarization stage handler.
func NewHandler(client *diarizesvc.Client, store *artifacts.Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{client: client, store: store, logger: logger}
}

// Execute performs one diarization attempt.
func (h *Handler) Execute(ctx context.Context, job *jobs.Job) stage.Result {
	var doc transcript.SegmentDocument
	if err := h.store.ReadJSON(job.JobID, artifacts.TranscriptName, &doc); err != nil {
		return stage.Result{
			Outcome: stage.OutcomeFatal,
			Err:     services.Wrap(services.ErrInvalidOutput, string(stage.Diarize), "load transcript", "", err),
		}
	}

	turns, err := h.client.Diarize(ctx, job.AudioPath)
	if err != nil {
		if services.NeedsFallback(err) {
			return h.fallback(job, doc, err)
		}
		if services.IsRetryable(err) {
			return stage.Result{Outcome: stage.OutcomeRetryable, Err: err}
		}
		return stage.Result{Outcome: stage.OutcomeFatal, Err: err}
	}

	labelSegments(doc.Segments, turns)
	ref, err := h.store.WriteJSON(job.JobID, artifacts.DiarizationName, doc)
	if err != nil {
		return stage.Result{Outcome: stage.OutcomeRetryable, Err: fmt.Errorf("publish diarization: %w", err)}
	}
	h.logger.Info("diarization complete",
		logging.String(logging.FieldJobID, job.JobID),
		logging.Int("turns", len(turns)),
		logging.Int("speakers", len(transcript.Speakers(doc.Segments))-1))
	return stage.Result{Outcome: stage.OutcomeSuccess, ArtifactRef: ref}
}

// ExecuteFallback publishes the unknown-speaker labeling after the retry
// budget for the primary path ran out.
func (h *Handler) ExecuteFallback(ctx context.Context, job *jobs.Job) stage.Result {
	var doc transcript.SegmentDocument
	if err := h.store.ReadJSON(job.JobID, artifacts.TranscriptName, &doc); err != nil {
		return stage.Result{
			Outcome: stage.OutcomeFatal,
			Err:     services.Wrap(services.ErrInvalidOutput, string(stage.Diarize), "load transcript", "", err),
		}
	}
	return h.fallback(job, doc, services.Wrap(services.ErrExhausted, string(stage.Diarize), "execute", "primary path retries exhausted", nil))
}

// fallback publishes the transcript segments unchanged, every speaker left
// on the unknown sentinel.
func (h *Handler) fallback(job *jobs.Job, doc transcript.SegmentDocument, cause error) stage.Result {
	for i := range doc.Segments {
		doc.Segments[i].SpeakerID = transcript.UnknownSpeaker
	}
	ref, err := h.store.WriteJSON(job.JobID, artifacts.DiarizationName, doc)
	if err != nil {
		return stage.Result{Outcome: stage.OutcomeRetryable, Err: fmt.Errorf("publish diarization fallback: %w", err)}
	}
	h.logger.Warn("diarization degraded to unknown speakers",
		logging.String(logging.FieldJobID, job.JobID),
		logging.Error(cause))
	return stage.Result{
		Outcome:     stage.OutcomeFallbackSuccess,
		ArtifactRef: ref,
		Warning:     "diarization unavailable; all segments attributed to UNKNOWN",
	}
}

// HealthCheck probes the diarization server. A missing credential shows as
// unhealthy with an explanatory detail; the pipeline still runs via the
// fallback.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if !h.client.Enabled() {
		return stage.Unhealthy(stage.Diarize, "no hf_token configured; jobs fall back to UNKNOWN speakers")
	}
	if err := h.client.Ping(ctx); err != nil {
		return stage.Unhealthy(stage.Diarize, err.Error())
	}
	return stage.Healthy(stage.Diarize, "diarization server reachable")
}

// labelSegments assigns each segment the speaker whose turns overlap it the
// most. Segments with no overlapping turn keep their current label.
func labelSegments(segments []transcript.Segment, turns []diarizesvc.Turn) {
	for i, segment := range segments {
		best := ""
		bestOverlap := 0.0
		totals := map[string]float64{}
		for _, turn := range turns {
			overlap := overlapSeconds(segment.StartSec, segment.EndSec, turn.Start, turn.End)
			if overlap <= 0 {
				continue
			}
			totals[turn.Speaker] += overlap
			if totals[turn.Speaker] > bestOverlap {
				bestOverlap = totals[turn.Speaker]
				best = turn.Speaker
			}
		}
		if best != "" {
			segments[i].SpeakerID = best
		}
	}
}

func overlapSeconds(aStart, aEnd, bStart, bEnd float64) float64 {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	return end - start
}
