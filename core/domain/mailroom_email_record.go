// Package domain holds the core types of the inbound mailroom pipeline.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ClassificationStatus is the lifecycle state of an incoming email record.
type ClassificationStatus string

const (
	StatusPending    ClassificationStatus = "pending"
	StatusClassified ClassificationStatus = "classified"
	StatusIgnored    ClassificationStatus = "ignored"
	StatusError      ClassificationStatus = "error"
)

// ClassificationMethod records which cascade stage resolved the message.
type ClassificationMethod string

const (
	MethodSubjectTag     ClassificationMethod = "subject_tag"
	MethodSenderRegistry ClassificationMethod = "sender_registry"
	MethodSemantic       ClassificationMethod = "semantic"
	MethodManual         ClassificationMethod = "manual"
	MethodNone           ClassificationMethod = "none"
)

// IncomingEmailRecord is one row per physical message ever seen for a
// tenant. (tenant_id, mailbox_uid) is the sole deduplication key.
type IncomingEmailRecord struct {
	ID         int64
	TenantID   uuid.UUID
	MailboxUID uint32

	FromEmail  string
	FromName   *string
	Subject    string
	ReceivedAt time.Time

	// BodyExcerpt is bounded; the full body lives in the audit store.
	BodyExcerpt string

	Status     ClassificationStatus
	Method     ClassificationMethod
	Confidence *int

	QuotationID *int64
	SupplierID  *int64
	ProposalID  *int64

	// ExtractedPayload is the raw JSON extraction result, stored for
	// audit regardless of reconciliation outcome.
	ExtractedPayload []byte

	ErrorDetail *string
	ProcessedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ApplyOutcome stamps a classification outcome onto the record.
// A record only becomes Classified when both the quotation and the
// supplier are known; a quotation-only match stays Pending so the
// partial link is visible for manual triage without violating the
// Classified invariant.
func (r *IncomingEmailRecord) ApplyOutcome(o Outcome) {
	r.Method = o.Method
	r.QuotationID = o.QuotationID
	r.SupplierID = o.SupplierID
	if o.Method != MethodNone {
		c := o.Confidence
		r.Confidence = &c
	}

	if o.QuotationID != nil && o.SupplierID != nil {
		r.Status = StatusClassified
	} else {
		r.Status = StatusPending
	}
}

// MarkError flips the record to Error keeping whatever links were
// already resolved, so a failed message still points a human at the
// right quotation.
func (r *IncomingEmailRecord) MarkError(detail string) {
	r.Status = StatusError
	r.ErrorDetail = &detail
}
