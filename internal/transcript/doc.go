// Package transcript holds the domain types flowing between pipeline
// stages: transcribed segments, extracted to-do items, and the
// deterministic owner-grouped text rendering used by the export stage.
package transcript
