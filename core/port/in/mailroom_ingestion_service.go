// Package in defines inbound ports (driving ports) for the application.
package in

import (
	"context"

	"github.com/google/uuid"

	"mailroom_server/core/domain"
)

// RunSummary is what one tenant sweep reports back to its trigger.
type RunSummary struct {
	TenantID     uuid.UUID `json:"tenant_id"`
	Skipped      bool      `json:"skipped"`
	MessagesRead int       `json:"messages_read"`
	NewlySeen    int       `json:"newly_seen"`

	ClassifiedBySubject  int `json:"classified_by_subject"`
	ClassifiedBySender   int `json:"classified_by_sender"`
	ClassifiedBySemantic int `json:"classified_by_semantic"`
	QuotationOnly        int `json:"quotation_only"`
	Pending              int `json:"pending"`
	Errors               int `json:"errors"`

	PartialFetch bool    `json:"partial_fetch"`
	FetchError   *string `json:"fetch_error,omitempty"`
}

// Classified returns the total resolved across cascade stages.
func (s *RunSummary) Classified() int {
	return s.ClassifiedBySubject + s.ClassifiedBySender + s.ClassifiedBySemantic
}

// IngestionService is the tenant-level entry point of the pipeline.
type IngestionService interface {
	// Run sweeps one tenant's mailbox over the trailing lookback
	// window. Concurrent runs for the same tenant are rejected.
	Run(ctx context.Context, tenantID uuid.UUID, lookbackDays int) (*RunSummary, error)

	// Reclassify manually re-links a Pending or Error record and, when
	// both links are present, replays extraction and reconciliation.
	Reclassify(ctx context.Context, tenantID uuid.UUID, recordID int64, quotationID, supplierID int64) (*domain.IncomingEmailRecord, error)

	// Ignore marks a Pending or Error record as not relevant to any
	// quotation, taking it out of the triage queue.
	Ignore(ctx context.Context, tenantID uuid.UUID, recordID int64) (*domain.IncomingEmailRecord, error)

	// ListRecords pages the triage queue by status.
	ListRecords(ctx context.Context, tenantID uuid.UUID, status domain.ClassificationStatus, limit, offset int) ([]*domain.IncomingEmailRecord, int, error)
}

// SchedulerStatus describes the periodic sweep loop.
type SchedulerStatus struct {
	Running      bool   `json:"running"`
	IntervalSecs int    `json:"interval_secs"`
	Workers      int    `json:"workers"`
	LastSweepAt  string `json:"last_sweep_at,omitempty"`
}

// SchedulerControl starts, stops and inspects the periodic trigger.
type SchedulerControl interface {
	Start() error
	Stop() error
	Status() SchedulerStatus
}
