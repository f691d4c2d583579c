package preflight

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"taskscribe/internal/config"
	"taskscribe/internal/logging"
	"taskscribe/internal/stage"
)

// Result is one preflight check outcome. Fatal results block daemon
// startup; non-fatal failures only degrade (the affected stages retry or
// fall back at run time).
type Result struct {
	Name   string
	Passed bool
	Fatal  bool
	Detail string
}

// HealthChecker exposes per-stage dependency probes. The workflow manager
// implements it.
type HealthChecker interface {
	HealthChecks(ctx context.Context) []stage.Health
}

// RunAll executes every startup check: data directory free space plus one
// probe per pipeline stage dependency.
func RunAll(ctx context.Context, cfg *config.Config, checker HealthChecker, logger *logging.Logger) []Result {
	if logger == nil {
		logger = logging.NewNop()
	}
	results := []Result{DiskSpace(cfg)}
	for _, health := range checker.HealthChecks(ctx) {
		results = append(results, Result{
			Name:   "stage:" + string(health.Stage),
			Passed: health.Ready,
			Detail: health.Detail,
		})
	}
	for _, result := range results {
		fields := []logging.Attr{
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
		}
		switch {
		case result.Passed:
			logger.Debug("preflight check passed", logging.Args(fields...)...)
		case result.Fatal:
			logger.Error("preflight check failed", logging.Args(fields...)...)
		default:
			logger.Warn("preflight check degraded", logging.Args(fields...)...)
		}
	}
	return results
}

// DiskSpace verifies the data directory has at least the configured free
// space for incoming recordings and artifacts.
func DiskSpace(cfg *config.Config) Result {
	const name = "disk-space"
	var stat unix.Statfs_t
	if err := unix.Statfs(cfg.Paths.DataDir, &stat); err != nil {
		return Result{Name: name, Fatal: true, Detail: fmt.Sprintf("statfs %s: %v", cfg.Paths.DataDir, err)}
	}
	freeBytes := stat.Bavail * uint64(stat.Bsize)
	requiredBytes := uint64(cfg.Workflow.MinFreeDiskSpaceGiB) << 30
	if freeBytes < requiredBytes {
		return Result{
			Name:  name,
			Fatal: true,
			Detail: fmt.Sprintf("%.1f GiB free on %s, need %d GiB",
				float64(freeBytes)/(1<<30), cfg.Paths.DataDir, cfg.Workflow.MinFreeDiskSpaceGiB),
		}
	}
	return Result{
		Name:   name,
		Passed: true,
		Detail: fmt.Sprintf("%.1f GiB free on %s", float64(freeBytes)/(1<<30), cfg.Paths.DataDir),
	}
}

// FatalFailure returns the first fatal failed check, if any.
func FatalFailure(results []Result) (Result, bool) {
	for _, result := range results {
		if !result.Passed && result.Fatal {
			return result, true
		}
	}
	return Result{}, false
}
