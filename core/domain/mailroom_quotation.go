package domain

import (
	"time"

	"github.com/google/uuid"
)

// QuotationStatus is the lifecycle of a quotation request. The pipeline
// only reads quotations; the sole write it performs is the Sent →
// InNegotiation promotion after a successful reconciliation.
type QuotationStatus string

const (
	QuotationDraft         QuotationStatus = "draft"
	QuotationSent          QuotationStatus = "sent"
	QuotationInNegotiation QuotationStatus = "in_negotiation"
	QuotationFinalized     QuotationStatus = "finalized"
	QuotationCancelled     QuotationStatus = "cancelled"
)

// IsOpen reports whether the quotation is an eligible classification
// target. Stale references to closed quotations are never matched.
func (s QuotationStatus) IsOpen() bool {
	return s == QuotationSent || s == QuotationInNegotiation
}

// QuotationRequest is a buyer-issued request for price quotes.
type QuotationRequest struct {
	ID       int64
	TenantID uuid.UUID
	Number   string // human-facing tag, e.g. SC-2025-00010
	Title    string
	Status   QuotationStatus
	Items    []QuotationItem

	CreatedAt time.Time
	UpdatedAt time.Time
}

// QuotationItem is one requested line item, ordered by creation.
type QuotationItem struct {
	ID          int64
	QuotationID int64
	Position    int
	Name        string
	Quantity    float64
	Unit        string
	CreatedAt   time.Time
}

// ItemNames returns the line-item names in creation order, used to
// build compact semantic-classification context.
func (q *QuotationRequest) ItemNames() []string {
	names := make([]string, 0, len(q.Items))
	for _, it := range q.Items {
		names = append(names, it.Name)
	}
	return names
}
