// Package workflow coordinates job processing end to end.
//
// The Manager owns the worker pool, the retry budget with exponential
// backoff, fallback escalation when a budget runs out, cooperative
// cancellation at stage boundaries, and crash recovery from persisted job
// statuses. Stages stay single-attempt; all scheduling policy lives here.
package workflow
