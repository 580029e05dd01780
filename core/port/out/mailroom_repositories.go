package out

import (
	"context"

	"github.com/google/uuid"

	"mailroom_server/core/domain"
)

// EmailRecordRepository persists the IncomingEmailRecord dedup ledger.
// Create must fail with a duplicate-message error when (tenant_id,
// mailbox_uid) already exists; callers rely on that as the concurrency
// safety net.
type EmailRecordRepository interface {
	Create(ctx context.Context, rec *domain.IncomingEmailRecord) error
	Update(ctx context.Context, rec *domain.IncomingEmailRecord) error
	GetByID(ctx context.Context, tenantID uuid.UUID, id int64) (*domain.IncomingEmailRecord, error)
	ExistsByUID(ctx context.Context, tenantID uuid.UUID, uid uint32) (bool, error)
	ListByStatus(ctx context.Context, tenantID uuid.UUID, status domain.ClassificationStatus, limit, offset int) ([]*domain.IncomingEmailRecord, int, error)
}

// QuotationRepository gives read access to quotation requests plus the
// single status side effect the pipeline performs.
type QuotationRepository interface {
	ListOpen(ctx context.Context, tenantID uuid.UUID) ([]*domain.QuotationRequest, error)
	CountOpen(ctx context.Context, tenantID uuid.UUID) (int, error)
	GetByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*domain.QuotationRequest, error)
	GetByID(ctx context.Context, tenantID uuid.UUID, id int64) (*domain.QuotationRequest, error)
	PromoteToNegotiation(ctx context.Context, tenantID uuid.UUID, id int64) error
}

// SupplierRepository reads the tenant's registered supplier addresses.
type SupplierRepository interface {
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.Supplier, error)
	FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*domain.Supplier, error)
}

// ProposalRepository reads and mutates supplier proposals. It never
// creates proposal rows; absence of a (quotation, supplier) target is
// surfaced as an error by the caller.
type ProposalRepository interface {
	GetByQuotationAndSupplier(ctx context.Context, tenantID uuid.UUID, quotationID, supplierID int64) (*domain.SupplierProposal, error)
	LatestOpenBySupplier(ctx context.Context, tenantID uuid.UUID, supplierID int64) (*domain.SupplierProposal, error)
	Update(ctx context.Context, proposal *domain.SupplierProposal) error
}

// SettingsRepository stores per-tenant mailbox connections and lists
// the tenants eligible for a scheduled sweep.
type SettingsRepository interface {
	GetByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.MailboxSettings, error)
	Upsert(ctx context.Context, settings *domain.MailboxSettings) error
	ListEnabled(ctx context.Context) ([]*domain.MailboxSettings, error)
}
