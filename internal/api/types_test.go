package api_test

import (
	"testing"

	"taskscribe/internal/api"
	"taskscribe/internal/jobs"
)

func TestProjectJobHidesInternals(t *testing.T) {
	job := &jobs.Job{
		ID:       7,
		JobID:    "abc123",
		Status:   jobs.StatusExtracting,
		Revision: 4,
	}
	job.AppendArtifact("transcribe", "artifacts/transcript.json")
	job.AppendArtifact("diarize", "artifacts/diarization.json")

	projected := api.ProjectJob(job)
	if projected.JobID != "abc123" || projected.Status != "extracting" {
		t.Fatalf("unexpected projection: %+v", projected)
	}
	if len(projected.Stages) != 5 {
		t.Fatalf("stages = %d, want 5", len(projected.Stages))
	}
	if !projected.Stages[0].Complete || !projected.Stages[1].Complete {
		t.Fatalf("completed stages not flagged: %+v", projected.Stages)
	}
	if projected.Stages[2].Complete {
		t.Fatal("pending stage flagged complete")
	}
	if projected.Warnings == nil {
		t.Fatal("warnings must encode as an array, not null")
	}
}

func TestProjectJobCancelFlagClearsOnTerminal(t *testing.T) {
	job := &jobs.Job{JobID: "abc123", Status: jobs.StatusCancelled, CancelRequested: true}
	if api.ProjectJob(job).CancelRequested {
		t.Fatal("terminal jobs should not advertise a pending cancel")
	}
}
