// Package artifacts stores per-job stage outputs on the filesystem.
//
// Each job gets a namespace directory under the jobs root; stage outputs
// land under its artifacts/ subdirectory. Writes go through a temp file
// and rename so a published reference always points at complete bytes.
package artifacts
