package preflight_test

import (
	"context"
	"testing"

	"taskscribe/internal/logging"
	"taskscribe/internal/preflight"
	"taskscribe/internal/stage"
	"taskscribe/internal/testsupport"
)

type staticChecker struct {
	checks []stage.Health
}

func (s *staticChecker) HealthChecks(ctx context.Context) []stage.Health {
	return s.checks
}

func TestDiskSpacePassesWithZeroMinimum(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.MinFreeDiskSpaceGiB = 0

	result := preflight.DiskSpace(cfg)
	if !result.Passed {
		t.Fatalf("expected pass, got %+v", result)
	}
}

func TestDiskSpaceFailsOnMissingDirectory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.DataDir = "/nonexistent/taskscribe-data"

	result := preflight.DiskSpace(cfg)
	if result.Passed || !result.Fatal {
		t.Fatalf("expected fatal failure, got %+v", result)
	}
}

func TestRunAllIncludesStageProbes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.MinFreeDiskSpaceGiB = 0
	checker := &staticChecker{checks: []stage.Health{
		stage.Healthy(stage.Transcribe, "ok"),
		stage.Unhealthy(stage.Diarize, "no credential"),
	}}

	results := preflight.RunAll(context.Background(), cfg, checker, logging.NewNop())
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if _, fatal := preflight.FatalFailure(results); fatal {
		t.Fatal("degraded stage probe must not be fatal")
	}
}
