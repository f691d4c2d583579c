package extract

import (
	"regexp"
	"strings"

	"taskscribe/internal/transcript"
)

const (
	triggerConfidence = 0.6
	reviewConfidence  = 0.35
	maxReviewItems    = 5
)

// Phrases that usually introduce a commitment or request in conversation.
var triggerPhrases = []string{
	"i'll ",
	"i will ",
	"i can ",
	"we need to ",
	"we should ",
	"you need to ",
	"need to ",
	"let's ",
	"can you ",
	"could you ",
	"please ",
	"make sure ",
	"don't forget ",
	"remember to ",
	"action item",
	"todo",
	"follow up",
	"take care of ",
}

var duePattern = regexp.MustCompile(`(?i)\b(?:by|before|due|until)\s+((?:end of\s+)?(?:next\s+)?` +
	`(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|tomorrow|today|tonight|` +
	`week|month|morning|afternoon|evening|eod|eow|noon|\w+day))\b`)

// HeuristicTodos extracts action items without an LLM. Segments containing
// a trigger phrase become todos at moderate confidence. When no trigger
// fires at all, the first few segments come back as low-confidence review
// items so a silent failure never produces an empty result from a
// non-empty conversation.
func HeuristicTodos(segments []transcript.Segment) []transcript.Todo {
	todos := make([]transcript.Todo, 0, 4)
	for _, segment := range segments {
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		if !containsTrigger(text) {
			continue
		}
		todos = append(todos, transcript.Todo{
			TodoID:           transcript.TodoID(len(todos) + 1),
			Text:             text,
			Due:              extractDue(text),
			Confidence:       triggerConfidence,
			SourceSegmentIDs: []string{segment.SegmentID},
		})
	}
	if len(todos) > 0 {
		return todos
	}

	for _, segment := range segments {
		if len(todos) == maxReviewItems {
			break
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		todos = append(todos, transcript.Todo{
			TodoID:           transcript.TodoID(len(todos) + 1),
			Text:             "Review: " + text,
			Confidence:       reviewConfidence,
			SourceSegmentIDs: []string{segment.SegmentID},
		})
	}
	return todos
}

func containsTrigger(text string) bool {
	lowered := strings.ToLower(text)
	for _, phrase := range triggerPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// extractDue pulls a deadline phrase out of the text, e.g. "by Friday" or
// "before end of next week". Returns empty when nothing matches.
func extractDue(text string) string {
	match := duePattern.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(match[1]), ".,!?")
}
