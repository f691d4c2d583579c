package api

import (
	"time"

	"taskscribe/internal/jobs"
	"taskscribe/internal/stage"
)

// StageStatus reports one pipeline stage's progress for a job.
type StageStatus struct {
	Stage    string `json:"stage"`
	Complete bool   `json:"complete"`
	Artifact string `json:"artifact,omitempty"`
}

// JobStatus is the wire projection of a job. Clients never see registry
// internals like numeric row ids or revisions.
type JobStatus struct {
	JobID           string        `json:"job_id"`
	Status          string        `json:"status"`
	Stages          []StageStatus `json:"stages"`
	Warnings        []string      `json:"warnings"`
	ExtractionMode  string        `json:"extraction_mode,omitempty"`
	FailureReason   string        `json:"failure_reason,omitempty"`
	CancelRequested bool          `json:"cancel_requested,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// ProjectJob converts a registry job into its wire projection.
func ProjectJob(job *jobs.Job) JobStatus {
	stages := make([]StageStatus, 0, len(stage.Order()))
	for _, name := range stage.Order() {
		ref, done := job.ArtifactRef(string(name))
		stages = append(stages, StageStatus{
			Stage:    string(name),
			Complete: done,
			Artifact: ref,
		})
	}
	warnings := job.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return JobStatus{
		JobID:           job.JobID,
		Status:          string(job.Status),
		Stages:          stages,
		Warnings:        warnings,
		ExtractionMode:  job.ExtractionMode,
		FailureReason:   job.FailureReason,
		CancelRequested: job.CancelRequested && !job.Status.IsTerminal(),
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
}

// StageHealth is the wire form of a stage dependency probe.
type StageHealth struct {
	Stage  string `json:"stage"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// QueueCounts aggregates job counts by lifecycle bucket.
type QueueCounts struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// DaemonStatus is the /api/status payload.
type DaemonStatus struct {
	Running bool          `json:"running"`
	Queue   QueueCounts   `json:"queue"`
	Stages  []StageHealth `json:"stages"`
}

// ProjectHealth converts stage probes into their wire form.
func ProjectHealth(checks []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(checks))
	for _, check := range checks {
		out = append(out, StageHealth{
			Stage:  string(check.Stage),
			Ready:  check.Ready,
			Detail: check.Detail,
		})
	}
	return out
}

// ProjectCounts converts a registry health summary into queue counts.
func ProjectCounts(summary jobs.HealthSummary) QueueCounts {
	return QueueCounts{
		Total:      summary.Total,
		Queued:     summary.Queued,
		Processing: summary.Processing,
		Completed:  summary.Completed,
		Failed:     summary.Failed,
		Cancelled:  summary.Cancelled,
	}
}
