// Package worker runs the periodic ingestion sweep. The scheduler is an
// explicit service object: construction wires dependencies, Start/Stop
// manage the loop, and no state lives at package level.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	in "mailroom_server/core/port/in"
	"mailroom_server/core/port/out"
	"mailroom_server/pkg/apperr"
)

// SchedulerConfig holds sweep loop configuration.
type SchedulerConfig struct {
	Interval     time.Duration // time between sweeps
	Workers      int           // concurrent tenant sweeps
	LookbackDays int           // 0 means the service default
	SweepTimeout time.Duration // budget for one full sweep
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:     5 * time.Minute,
		Workers:      4,
		SweepTimeout: 10 * time.Minute,
	}
}

// Scheduler ticks at a fixed interval and submits every enabled tenant
// to a bounded worker pool.
type Scheduler struct {
	service  in.IngestionService
	settings out.SettingsRepository
	config   SchedulerConfig
	log      zerolog.Logger

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
	lastSweepAt time.Time
}

var _ in.SchedulerControl = (*Scheduler)(nil)

func NewScheduler(service in.IngestionService, settings out.SettingsRepository, config SchedulerConfig, log zerolog.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	if config.Workers <= 0 {
		config.Workers = DefaultSchedulerConfig().Workers
	}
	if config.SweepTimeout <= 0 {
		config.SweepTimeout = DefaultSchedulerConfig().SweepTimeout
	}

	return &Scheduler{
		service:  service,
		settings: settings,
		config:   config,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Start launches the sweep loop. Idempotent: a running scheduler stays
// running.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx)

	s.log.Info().
		Dur("interval", s.config.Interval).
		Int("workers", s.config.Workers).
		Msg("scheduler started")
	return nil
}

// Stop halts the loop and waits for the in-flight sweep to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.log.Info().Msg("scheduler stopped")
	return nil
}

func (s *Scheduler) Status() in.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := in.SchedulerStatus{
		Running:      s.running,
		IntervalSecs: int(s.config.Interval.Seconds()),
		Workers:      s.config.Workers,
	}
	if !s.lastSweepAt.IsZero() {
		status.LastSweepAt = s.lastSweepAt.UTC().Format(time.RFC3339)
	}
	return status
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	// first sweep fires immediately
	s.sweep(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// tenantWorker implements pool.Worker for one tenant sweep.
type tenantWorker struct {
	scheduler *Scheduler
}

func (w *tenantWorker) Do(ctx context.Context, tenantID uuid.UUID) error {
	summary, err := w.scheduler.service.Run(ctx, tenantID, w.scheduler.config.LookbackDays)
	if err != nil {
		// another trigger beat us to this tenant, nothing to do
		if apperr.IsCode(err, apperr.CodeRunInProgress) {
			w.scheduler.log.Debug().Str("tenant_id", tenantID.String()).Msg("run already in progress, skipping")
			return nil
		}
		w.scheduler.log.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("tenant sweep failed")
		return err
	}

	if !summary.Skipped {
		w.scheduler.log.Info().
			Str("tenant_id", tenantID.String()).
			Int("messages_read", summary.MessagesRead).
			Int("newly_seen", summary.NewlySeen).
			Int("classified", summary.Classified()).
			Int("pending", summary.Pending).
			Int("errors", summary.Errors).
			Msg("tenant sweep completed")
	}
	return nil
}

// sweep lists enabled tenants and fans them out over a fresh pool. A
// new pool per sweep keeps Close semantics simple: the sweep is done
// when the pool drains.
func (s *Scheduler) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.config.SweepTimeout)
	defer cancel()

	tenants, err := s.settings.ListEnabled(sweepCtx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list enabled tenants")
		return
	}
	if len(tenants) == 0 {
		return
	}

	p := pool.New[uuid.UUID](s.config.Workers, &tenantWorker{scheduler: s}).
		WithContinueOnError()
	if err := p.Go(sweepCtx); err != nil {
		s.log.Error().Err(err).Msg("failed to start sweep pool")
		return
	}

	for _, t := range tenants {
		p.Submit(t.TenantID)
	}

	if err := p.Close(sweepCtx); err != nil {
		s.log.Warn().Err(err).Msg("sweep finished with errors")
	}

	s.mu.Lock()
	s.lastSweepAt = time.Now()
	s.mu.Unlock()

	s.log.Debug().Int("tenants", len(tenants)).Msg("sweep dispatched")
}
