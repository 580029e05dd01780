package bootstrap

import (
	"context"

	"mailroom_server/config"
	"mailroom_server/pkg/logger"
)

// Worker hosts the periodic ingestion sweep outside the HTTP surface.
type Worker struct {
	deps   *Dependencies
	ctx    context.Context
	cancel context.CancelFunc
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "mailroom-worker",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{deps: deps, ctx: ctx, cancel: cancel}, cleanup, nil
}

// Start launches the scheduler (unless disabled) and blocks until Stop.
func (w *Worker) Start() {
	if w.deps.Config.SchedulerEnabled {
		if err := w.deps.Scheduler.Start(); err != nil {
			logger.Error("Failed to start scheduler: %v", err)
		}
	} else {
		logger.Info("Scheduler disabled by configuration, sweeps run only on demand")
	}

	<-w.ctx.Done()
}

// Stop halts the scheduler and waits for the in-flight sweep to drain.
func (w *Worker) Stop() {
	w.cancel()
	if err := w.deps.Scheduler.Stop(); err != nil {
		logger.Error("Failed to stop scheduler: %v", err)
	}
}

func (w *Worker) Dependencies() *Dependencies {
	return w.deps
}
