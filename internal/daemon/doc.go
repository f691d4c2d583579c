// Package daemon hosts the long-running process: a flock-guarded single
// instance that runs startup preflight, the workflow manager's worker
// pool, and the HTTP API for submitting and tracking jobs.
package daemon
