// Package jobs persists pipeline jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, status
// queries, and revision-guarded updates. Jobs capture status, artifact
// references, warnings, extraction mode, and the cooperative cancellation
// flag so stages can coordinate without additional state.
//
// Every update is guarded by the job's revision (optimistic concurrency):
// a stale write returns services.ErrConflict and the caller re-reads.
// Treat this package as the single source of truth for job semantics; when
// you add new statuses or fields, update schema.sql and bump schemaVersion.
package jobs
