// Package services defines shared utilities consumed by the pipeline stage
// handlers and external provider clients.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate provider
//     failures into consistent stage outcomes (retry vs fallback vs fatal).
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
