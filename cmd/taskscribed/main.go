package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskscribe/internal/artifacts"
	"taskscribe/internal/config"
	"taskscribe/internal/daemon"
	"taskscribe/internal/jobs"
	"taskscribe/internal/logging"
	"taskscribe/internal/services/asr"
	diarizesvc "taskscribe/internal/services/diarize"
	"taskscribe/internal/services/ollama"
	"taskscribe/internal/stage"
	stageassign "taskscribe/internal/stages/assign"
	stagediarize "taskscribe/internal/stages/diarize"
	stageexport "taskscribe/internal/stages/export"
	stageextract "taskscribe/internal/stages/extract"
	stagetranscribe "taskscribe/internal/stages/transcribe"
	"taskscribe/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "taskscribed: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, resolvedPath, existed, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	if existed {
		logger.Info("configuration loaded", logging.String("path", resolvedPath))
	} else {
		logger.Warn("no config file found, using defaults", logging.String("path", resolvedPath))
	}

	store, err := jobs.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	artifactStore := artifacts.NewStore(cfg.JobsRoot())
	manager := workflow.NewManager(cfg, store, logger)
	registerStages(cfg, manager, artifactStore, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := daemon.New(cfg, store, artifactStore, manager, logger)
	if err := d.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	stop()
	d.Stop(context.Background())
	return nil
}

func registerStages(cfg *config.Config, manager *workflow.Manager, artifactStore *artifacts.Store, logger *logging.Logger) {
	asrClient := asr.New(
		cfg.ASR.BaseURL,
		asr.Options{
			Model:       cfg.ASR.Model,
			Device:      cfg.ASR.Device,
			ComputeType: cfg.ASR.ComputeType,
			BeamSize:    cfg.ASR.BeamSize,
		},
		time.Duration(cfg.ASR.TimeoutSeconds)*time.Second,
		logging.NewComponentLogger(logger, "asr"),
	)
	diarizeClient := diarizesvc.New(
		cfg.Diarization.BaseURL,
		cfg.Diarization.Model,
		cfg.Diarization.HFToken,
		time.Duration(cfg.Diarization.TimeoutSeconds)*time.Second,
		logging.NewComponentLogger(logger, "diarize"),
	)
	llmClient := ollama.New(
		cfg.LLM.BaseURL,
		cfg.LLM.Model,
		time.Duration(cfg.LLM.TimeoutSeconds)*time.Second,
		logging.NewComponentLogger(logger, "ollama"),
	)

	manager.Register(stage.Transcribe, stagetranscribe.NewHandler(asrClient, artifactStore,
		logging.NewComponentLogger(logger, "stage.transcribe")))
	manager.Register(stage.Diarize, stagediarize.NewHandler(diarizeClient, artifactStore,
		logging.NewComponentLogger(logger, "stage.diarize")))
	manager.Register(stage.Extract, stageextract.NewHandler(llmClient, artifactStore, cfg.LLM.ForceHeuristic,
		logging.NewComponentLogger(logger, "stage.extract")))
	manager.Register(stage.Assign, stageassign.NewHandler(llmClient, artifactStore, cfg.LLM.ForceHeuristic,
		logging.NewComponentLogger(logger, "stage.assign")))
	manager.Register(stage.Export, stageexport.NewHandler(artifactStore,
		logging.NewComponentLogger(logger, "stage.export")))
}
