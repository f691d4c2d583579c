// Package stage defines the contract between the pipeline coordinator and
// the individual stage implementations: stage names and ordering, the
// Handler interface, attempt outcomes, and dependency health reports.
package stage
