package transcript

import "testing"

func TestRenderGroupedTwoSpeakers(t *testing.T) {
	todos := []Todo{
		{TodoID: "todo_0001", Text: "Send the draft", Owner: "SPEAKER_01", Due: "Friday", Confidence: 0.9, SourceSegmentIDs: []string{"seg_0001"}},
		{TodoID: "todo_0002", Text: "Review it", Owner: "SPEAKER_02", Due: "next week", Confidence: 0.9, SourceSegmentIDs: []string{"seg_0002"}},
	}

	want := "SPEAKER_01\n- Send the draft (due: Friday)\n\nSPEAKER_02\n- Review it (due: next week)\n"
	if got := RenderGrouped(todos); got != want {
		t.Fatalf("unexpected render:\n%q\nwant:\n%q", got, want)
	}
}

func TestRenderGroupedIsIdempotent(t *testing.T) {
	todos := []Todo{
		{Text: "Ship release", Owner: "SPEAKER_02", SourceSegmentIDs: []string{"seg_0001"}},
		{Text: "Write notes", Owner: "SPEAKER_01", SourceSegmentIDs: []string{"seg_0002"}},
		{Text: "File the ticket", Owner: "SPEAKER_02", SourceSegmentIDs: []string{"seg_0003"}},
	}
	first := RenderGrouped(todos)
	second := RenderGrouped(todos)
	if first != second {
		t.Fatal("render must be byte-identical for identical input")
	}
}

func TestRenderGroupedOwnerOrderIsFirstAppearance(t *testing.T) {
	todos := []Todo{
		{Text: "b", Owner: "ZED", SourceSegmentIDs: []string{"s1"}},
		{Text: "a", Owner: "ALICE", SourceSegmentIDs: []string{"s2"}},
		{Text: "c", Owner: "ZED", SourceSegmentIDs: []string{"s3"}},
	}
	want := "ZED\n- b\n- c\n\nALICE\n- a\n"
	if got := RenderGrouped(todos); got != want {
		t.Fatalf("unexpected order:\n%q", got)
	}
}

func TestRenderGroupedEmptyOwnerUsesSentinel(t *testing.T) {
	todos := []Todo{{Text: "orphan task", SourceSegmentIDs: []string{"s1"}}}
	want := UnknownSpeaker + "\n- orphan task\n"
	if got := RenderGrouped(todos); got != want {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestRenderGroupedNoTodosEmitsNewline(t *testing.T) {
	if got := RenderGrouped(nil); got != "\n" {
		t.Fatalf("empty render = %q, want single newline", got)
	}
}

func TestSegmentValidate(t *testing.T) {
	good := Segment{SegmentID: "seg_0001", StartSec: 1, EndSec: 2}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid segment rejected: %v", err)
	}
	bad := Segment{SegmentID: "seg_0002", StartSec: 3, EndSec: 1}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for end before start")
	}
}

func TestTodoValidate(t *testing.T) {
	good := Todo{TodoID: "todo_0001", Text: "do it", Confidence: 0.5, SourceSegmentIDs: []string{"seg_0001"}}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid todo rejected: %v", err)
	}
	if err := (Todo{TodoID: "t", Text: "x", Confidence: 1.5, SourceSegmentIDs: []string{"s"}}).Validate(); err == nil {
		t.Fatal("expected confidence range error")
	}
	if err := (Todo{TodoID: "t", Text: "x", Confidence: 0.5}).Validate(); err == nil {
		t.Fatal("expected source segment error")
	}
}

func TestSpeakers(t *testing.T) {
	segments := []Segment{
		{SegmentID: "seg_0001", SpeakerID: "SPEAKER_01"},
		{SegmentID: "seg_0002", SpeakerID: "SPEAKER_02"},
		{SegmentID: "seg_0003", SpeakerID: "SPEAKER_01"},
	}
	got := Speakers(segments)
	want := []string{UnknownSpeaker, "SPEAKER_01", "SPEAKER_02"}
	if len(got) != len(want) {
		t.Fatalf("speakers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("speakers[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
