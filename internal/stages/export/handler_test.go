package export_test

import (
	"context"
	"testing"

	"taskscribe/internal/artifacts"
	"taskscribe/internal/jobs"
	"taskscribe/internal/logging"
	"taskscribe/internal/stage"
	"taskscribe/internal/stages/export"
	"taskscribe/internal/transcript"
)

func newHandler(t *testing.T) (*export.Handler, *artifacts.Store, *jobs.Job) {
	t.Helper()
	store := artifacts.NewStore(t.TempDir())
	job := &jobs.Job{JobID: "job1", Status: jobs.StatusExporting}
	return export.NewHandler(store, logging.NewNop()), store, job
}

func TestExecuteRendersGroupedExport(t *testing.T) {
	handler, store, job := newHandler(t)
	doc := transcript.TodoDocument{Todos: []transcript.Todo{
		{TodoID: "todo_0001", Text: "Send the draft", Owner: "SPEAKER_01", Due: "Friday", Confidence: 0.85, SourceSegmentIDs: []string{"seg_0001"}},
		{TodoID: "todo_0002", Text: "Review it", Owner: "SPEAKER_02", Due: "next week", Confidence: 0.85, SourceSegmentIDs: []string{"seg_0002"}},
	}}
	if _, err := store.WriteJSON(job.JobID, artifacts.AssignmentsName, doc); err != nil {
		t.Fatalf("seed assignments: %v", err)
	}

	result := handler.Execute(context.Background(), job)
	if result.Outcome != stage.OutcomeSuccess {
		t.Fatalf("outcome = %s, err = %v", result.Outcome, result.Err)
	}
	if result.ArtifactRef != "artifacts/todos_by_person.txt" {
		t.Fatalf("ref = %q", result.ArtifactRef)
	}

	content, err := store.ReadText(job.JobID, artifacts.ExportName)
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	want := "SPEAKER_01\n- Send the draft (due: Friday)\n\nSPEAKER_02\n- Review it (due: next week)\n"
	if content != want {
		t.Fatalf("export content:\n%q\nwant:\n%q", content, want)
	}
}

func TestExecuteEmptyTodos(t *testing.T) {
	handler, store, job := newHandler(t)
	if _, err := store.WriteJSON(job.JobID, artifacts.AssignmentsName, transcript.TodoDocument{Todos: []transcript.Todo{}}); err != nil {
		t.Fatalf("seed assignments: %v", err)
	}

	result := handler.Execute(context.Background(), job)
	if result.Outcome != stage.OutcomeSuccess {
		t.Fatalf("outcome = %s, err = %v", result.Outcome, result.Err)
	}
	content, err := store.ReadText(job.JobID, artifacts.ExportName)
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if content != "\n" {
		t.Fatalf("expected newline-terminated empty export, got %q", content)
	}
}

func TestExecuteMissingAssignmentsIsFatal(t *testing.T) {
	handler, _, job := newHandler(t)

	result := handler.Execute(context.Background(), job)
	if result.Outcome != stage.OutcomeFatal {
		t.Fatalf("outcome = %s, want fatal", result.Outcome)
	}
}
