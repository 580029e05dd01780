package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mailroom_server/core/domain"
	in "mailroom_server/core/port/in"
	"mailroom_server/pkg/apperr"
)

type fakeIngestion struct {
	mu   sync.Mutex
	runs []uuid.UUID
	err  error
}

func (f *fakeIngestion) Run(ctx context.Context, tenantID uuid.UUID, lookbackDays int) (*in.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, tenantID)
	if f.err != nil {
		return nil, f.err
	}
	return &in.RunSummary{TenantID: tenantID, MessagesRead: 1}, nil
}

func (f *fakeIngestion) Reclassify(ctx context.Context, tenantID uuid.UUID, recordID, quotationID, supplierID int64) (*domain.IncomingEmailRecord, error) {
	return nil, apperr.NotFound("record")
}

func (f *fakeIngestion) Ignore(ctx context.Context, tenantID uuid.UUID, recordID int64) (*domain.IncomingEmailRecord, error) {
	return nil, apperr.NotFound("record")
}

func (f *fakeIngestion) ListRecords(ctx context.Context, tenantID uuid.UUID, status domain.ClassificationStatus, limit, offset int) ([]*domain.IncomingEmailRecord, int, error) {
	return nil, 0, nil
}

func (f *fakeIngestion) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

type fakeSettingsRepo struct {
	enabled []*domain.MailboxSettings
}

func (f *fakeSettingsRepo) GetByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.MailboxSettings, error) {
	return nil, apperr.NotFound("mailbox settings")
}

func (f *fakeSettingsRepo) Upsert(ctx context.Context, settings *domain.MailboxSettings) error {
	return nil
}

func (f *fakeSettingsRepo) ListEnabled(ctx context.Context) ([]*domain.MailboxSettings, error) {
	return f.enabled, nil
}

func newTestScheduler(service in.IngestionService, settings *fakeSettingsRepo) *Scheduler {
	return NewScheduler(service, settings, SchedulerConfig{
		Interval:     time.Hour, // ticks never fire during tests
		Workers:      2,
		SweepTimeout: 5 * time.Second,
	}, zerolog.Nop())
}

func enabledTenants(n int) []*domain.MailboxSettings {
	out := make([]*domain.MailboxSettings, n)
	for i := range out {
		out[i] = &domain.MailboxSettings{TenantID: uuid.New(), Enabled: true}
	}
	return out
}

func TestSweepRunsEveryEnabledTenant(t *testing.T) {
	svc := &fakeIngestion{}
	s := newTestScheduler(svc, &fakeSettingsRepo{enabled: enabledTenants(3)})

	s.sweep(context.Background())

	if got := svc.runCount(); got != 3 {
		t.Errorf("expected 3 tenant runs, got %d", got)
	}

	status := s.Status()
	if status.LastSweepAt == "" {
		t.Error("expected last_sweep_at to be stamped after a sweep")
	}
}

func TestSweepTreatsRunInProgressAsBenign(t *testing.T) {
	svc := &fakeIngestion{err: apperr.RunInProgress("t1")}
	s := newTestScheduler(svc, &fakeSettingsRepo{enabled: enabledTenants(2)})

	s.sweep(context.Background())

	if got := svc.runCount(); got != 2 {
		t.Errorf("locked tenants must not stop the sweep, got %d runs", got)
	}
}

func TestStartIsIdempotentAndStopWaits(t *testing.T) {
	svc := &fakeIngestion{}
	s := newTestScheduler(svc, &fakeSettingsRepo{enabled: enabledTenants(1)})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !s.Status().Running {
		t.Fatal("scheduler should report running")
	}

	// initial sweep fires on start
	deadline := time.Now().Add(2 * time.Second)
	for svc.runCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if svc.runCount() == 0 {
		t.Fatal("expected the initial sweep to run")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Status().Running {
		t.Error("scheduler should report stopped")
	}

	// Stop again is a no-op
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestStatusReflectsConfig(t *testing.T) {
	s := newTestScheduler(&fakeIngestion{}, &fakeSettingsRepo{})

	status := s.Status()
	if status.Running {
		t.Error("fresh scheduler should not be running")
	}
	if status.IntervalSecs != 3600 {
		t.Errorf("expected interval 3600s, got %d", status.IntervalSecs)
	}
	if status.Workers != 2 {
		t.Errorf("expected 2 workers, got %d", status.Workers)
	}
}
