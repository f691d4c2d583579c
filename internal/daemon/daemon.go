package daemon

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"taskscribe/internal/artifacts"
	"taskscribe/internal/config"
	"taskscribe/internal/jobs"
	"taskscribe/internal/logging"
	"taskscribe/internal/preflight"
	"taskscribe/internal/services"
	"taskscribe/internal/workflow"
)

// Daemon ties the long-running pieces together: the single-instance lock,
// startup preflight, the workflow manager, and the HTTP API.
type Daemon struct {
	cfg       *config.Config
	store     *jobs.Store
	artifacts *artifacts.Store
	manager   *workflow.Manager
	api       *apiServer
	lock      *flock.Flock
	logger    *logging.Logger
}

// New assembles a daemon from its already-constructed parts.
func New(cfg *config.Config, store *jobs.Store, artifactStore *artifacts.Store, manager *workflow.Manager, logger *logging.Logger) *Daemon {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Daemon{
		cfg:       cfg,
		store:     store,
		artifacts: artifactStore,
		manager:   manager,
		logger:    logging.NewComponentLogger(logger, "daemon"),
	}
}

// Start acquires the instance lock, runs preflight, starts the workflow
// manager, and brings up the API listener. It returns once everything is
// running; Stop tears it down.
func (d *Daemon) Start(ctx context.Context) error {
	lockPath := filepath.Join(d.cfg.Paths.DataDir, "taskscribed.lock")
	d.lock = flock.New(lockPath)
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return services.Wrap(services.ErrConfiguration, "", "start daemon",
			fmt.Sprintf("another instance holds %s", lockPath), nil)
	}

	results := preflight.RunAll(ctx, d.cfg, d.manager, d.logger)
	if failure, fatal := preflight.FatalFailure(results); fatal {
		d.releaseLock()
		return services.Wrap(services.ErrConfiguration, "", "preflight",
			fmt.Sprintf("%s: %s", failure.Name, failure.Detail), nil)
	}

	if err := d.manager.Start(ctx); err != nil {
		d.releaseLock()
		return fmt.Errorf("start workflow manager: %w", err)
	}

	d.api = newAPIServer(d.cfg, d.store, d.artifacts, d.manager, d.logger)
	if err := d.api.Start(); err != nil {
		d.releaseLock()
		return fmt.Errorf("start api server: %w", err)
	}

	d.logger.Info("daemon started",
		logging.String("api", d.api.Addr()),
		logging.String("data_dir", d.cfg.Paths.DataDir))
	return nil
}

// Stop shuts down the API, drains the workers, and releases the lock. The
// caller cancels the Start context first so workers stop taking tasks.
func (d *Daemon) Stop(ctx context.Context) {
	if d.api != nil {
		d.api.Stop(ctx)
	}
	d.manager.Stop()
	d.releaseLock()
	d.logger.Info("daemon stopped")
}

func (d *Daemon) releaseLock() {
	if d.lock == nil {
		return
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release instance lock", logging.Error(err))
	}
}
