package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusTranscribing Status = "transcribing"
	StatusDiarizing    Status = "diarizing"
	StatusExtracting   Status = "extracting"
	StatusAssigning    Status = "assigning"
	StatusExporting    Status = "exporting"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// CancelReason is the failure reason recorded when a user cancels a job.
const CancelReason = "Cancelled by user request"

// Extraction modes recorded on the job once the extraction stage finishes.
const (
	ExtractionLLM       = "llm"
	ExtractionHeuristic = "heuristic"
)

var allStatuses = []Status{
	StatusQueued,
	StatusTranscribing,
	StatusDiarizing,
	StatusExtracting,
	StatusAssigning,
	StatusExporting,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var activeStatuses = []Status{
	StatusTranscribing,
	StatusDiarizing,
	StatusExtracting,
	StatusAssigning,
	StatusExporting,
}

// StageArtifact is one persisted stage output reference. The Ref is a key
// relative to the job's namespace in the artifact store, never a payload.
type StageArtifact struct {
	Stage string `json:"stage"`
	Ref   string `json:"ref"`
}

// Job represents one end-to-end processing request persisted in SQLite.
// StageArtifacts and Warnings are append-only; Revision increments on every
// successful update and guards optimistic concurrency.
type Job struct {
	ID              int64
	JobID           string
	Status          Status
	AudioPath       string
	StageArtifacts  []StageArtifact
	Warnings        []string
	ExtractionMode  string
	FailureReason   string
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Revision        int64
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ActiveStatuses returns the in-flight stage statuses in pipeline order.
func ActiveStatuses() []Status {
	cp := make([]Status, len(activeStatuses))
	copy(cp, activeStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status admits no further stage runs.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsProcessing reports whether the job is inside a pipeline stage.
func (j Job) IsProcessing() bool {
	for _, status := range activeStatuses {
		if j.Status == status {
			return true
		}
	}
	return false
}

// ArtifactRef returns the stored reference for a stage, if present.
func (j Job) ArtifactRef(stage string) (string, bool) {
	for _, artifact := range j.StageArtifacts {
		if artifact.Stage == stage {
			return artifact.Ref, true
		}
	}
	return "", false
}

// AppendArtifact records a stage output reference. Artifacts are append-only
// per job; re-running a stage keeps its existing entry (the payload behind
// the ref is rewritten in place by the artifact store).
func (j *Job) AppendArtifact(stage, ref string) {
	if _, ok := j.ArtifactRef(stage); ok {
		return
	}
	j.StageArtifacts = append(j.StageArtifacts, StageArtifact{Stage: stage, Ref: ref})
}

// AppendWarning records a human-readable warning. Warnings persist even
// after successful completion so callers know which stages used a fallback.
func (j *Job) AppendWarning(message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	j.Warnings = append(j.Warnings, message)
}

// SetFailed marks the job as terminally failed with the given reason.
func (j *Job) SetFailed(reason string) {
	j.Status = StatusFailed
	j.FailureReason = strings.TrimSpace(reason)
}

// SetCancelled marks the job as cancelled with a human-readable reason.
func (j *Job) SetCancelled(reason string) {
	j.Status = StatusCancelled
	if strings.TrimSpace(reason) == "" {
		reason = CancelReason
	}
	j.FailureReason = strings.TrimSpace(reason)
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Queued     int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
}
