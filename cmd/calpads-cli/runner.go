package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"calpadsrunner/internal/adapters/localstorage"
	"calpadsrunner/internal/adapters/registry"
	"calpadsrunner/internal/adapters/rodbrowser"
	"calpadsrunner/internal/adapters/runstore"
	"calpadsrunner/internal/core/domain"
	"calpadsrunner/internal/service"
)

// errJobsFailed is returned when a batch finished with at least one failed job.
var errJobsFailed = errors.New("one or more jobs failed")

// runBatch opens a fresh browser session, runs reqs and closes everything.
// Every batch gets its own run directory, so downloads never mix.
func runBatch(ctx context.Context, reqs []domain.JobRequest, runDate time.Time) error {
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}
	reg, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		return err
	}

	runID := uuid.New().String()
	log := logger.With(zap.String("run", runID))

	storage := localstorage.NewLocalStorage(cfg.Browser.DataDir)
	downloadDir, err := storage.InitRun(ctx, runID)
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	log.Info("Launching browser", zap.Bool("headless", cfg.Browser.Headless), zap.String("downloads", downloadDir))
	browser, err := rodbrowser.Launch(ctx, rodbrowser.Options{
		Headless:    cfg.Browser.Headless,
		Bin:         cfg.Browser.Bin,
		DebuggerURL: cfg.Browser.DebuggerURL,
		DownloadDir: downloadDir,
	})
	if err != nil {
		return err
	}

	session, err := service.Open(ctx, browser, cfg.Credentials, service.SessionOptions{
		Surface:     cfg.Portal,
		Timeouts:    cfg.Timeouts,
		DownloadDir: downloadDir,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	tags := cfg.Extract.Tags()
	orch := service.NewOrchestrator(session, service.DefaultDrivers(tags), reg, storage, store, tags, os.Stdout, log)
	defer orch.Close()

	report, err := orch.RunRequests(ctx, runID, runDate, reqs)
	if err != nil {
		return err
	}
	if _, failed := report.Counts(); failed > 0 {
		return fmt.Errorf("%w: %d of %d", errJobsFailed, failed, len(report.Results))
	}
	return nil
}

// unitRequests builds one request per unit for a single task.
func unitRequests(task domain.TaskType, units []string, params domain.Params) ([]domain.JobRequest, error) {
	if len(units) == 0 {
		return nil, fmt.Errorf("at least one --unit is required (use \"*\" for all)")
	}
	reqs := make([]domain.JobRequest, len(units))
	for i, u := range units {
		reqs[i] = domain.JobRequest{Task: task, Unit: u, Params: params}
	}
	return reqs, nil
}
