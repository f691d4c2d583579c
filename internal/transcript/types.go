package transcript

import (
	"fmt"
	"strings"
)

// UnknownSpeaker is the sentinel speaker label used when diarization is
// unavailable or cannot attribute a segment.
const UnknownSpeaker = "UNKNOWN"

// Segment is one transcribed span of the source recording.
type Segment struct {
	SegmentID string  `json:"segment_id"`
	SpeakerID string  `json:"speaker_id"`
	StartSec  float64 `json:"start_sec"`
	EndSec    float64 `json:"end_sec"`
	Text      string  `json:"text"`
}

// Todo is one extracted action item.
type Todo struct {
	TodoID           string   `json:"todo_id"`
	Text             string   `json:"text"`
	Owner            string   `json:"owner"`
	Due              string   `json:"due,omitempty"`
	Confidence       float64  `json:"confidence"`
	SourceSegmentIDs []string `json:"source_segment_ids"`
}

// SegmentDocument is the persisted artifact shape for the transcription and
// diarization stages.
type SegmentDocument struct {
	Segments []Segment `json:"segments"`
}

// TodoDocument is the persisted artifact shape for the extraction and
// assignment stages.
type TodoDocument struct {
	Todos []Todo `json:"todos"`
}

// SegmentID formats the canonical 1-based segment identifier.
func SegmentID(index int) string {
	return fmt.Sprintf("seg_%04d", index)
}

// TodoID formats the canonical 1-based todo identifier.
func TodoID(index int) string {
	return fmt.Sprintf("todo_%04d", index)
}

// Validate checks segment invariants: non-negative times, end >= start.
func (s Segment) Validate() error {
	if strings.TrimSpace(s.SegmentID) == "" {
		return fmt.Errorf("segment id required")
	}
	if s.StartSec < 0 || s.EndSec < 0 {
		return fmt.Errorf("segment %s: negative timestamp", s.SegmentID)
	}
	if s.EndSec < s.StartSec {
		return fmt.Errorf("segment %s: end %.3f before start %.3f", s.SegmentID, s.EndSec, s.StartSec)
	}
	return nil
}

// Validate checks todo invariants: text present, confidence in [0,1],
// at least one source segment.
func (t Todo) Validate() error {
	if strings.TrimSpace(t.Text) == "" {
		return fmt.Errorf("todo %s: empty text", t.TodoID)
	}
	if t.Confidence < 0 || t.Confidence > 1 {
		return fmt.Errorf("todo %s: confidence %.3f out of range", t.TodoID, t.Confidence)
	}
	if len(t.SourceSegmentIDs) == 0 {
		return fmt.Errorf("todo %s: no source segments", t.TodoID)
	}
	return nil
}

// Speakers returns the distinct speaker labels in segment order, always
// including the unknown sentinel.
func Speakers(segments []Segment) []string {
	seen := map[string]struct{}{UnknownSpeaker: {}}
	speakers := []string{UnknownSpeaker}
	for _, segment := range segments {
		label := strings.TrimSpace(segment.SpeakerID)
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		speakers = append(speakers, label)
	}
	return speakers
}
