package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProposalStatus is the lifecycle of one supplier's answer to a
// quotation. The pipeline only ever moves Pending → Received; the
// remaining transitions belong to the buyer-side workflow.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalReceived ProposalStatus = "received"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
	ProposalWinner   ProposalStatus = "winner"
)

// SupplierProposal holds one supplier's commercial terms for one
// quotation request, keyed by (quotation_id, supplier_id).
type SupplierProposal struct {
	ID          int64
	TenantID    uuid.UUID
	QuotationID int64
	SupplierID  int64
	Status      ProposalStatus

	PaymentTerms   *string
	LeadTimeDays   *int
	FreightIncl    *bool
	FreightValue   *float64
	TotalValue     *float64
	ValidUntil     *time.Time
	Remarks        *string
	ReceivedAt     *time.Time
	Items          []ProposalItem

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProposalItem prices one requested line item.
type ProposalItem struct {
	ID              int64
	ProposalID      int64
	QuotationItemID int64
	Position        int

	UnitPrice    *float64
	DiscountPct  *float64
	FinalPrice   *float64
	LineTotal    *float64
	Brand        *string
	LeadTimeDays *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecomputeTotal derives the proposal total from line totals plus
// freight. Used when the supplier's reply carried no explicit total.
func (p *SupplierProposal) RecomputeTotal() {
	var sum float64
	var any bool
	for _, it := range p.Items {
		if it.LineTotal != nil {
			sum += *it.LineTotal
			any = true
		}
	}
	if !any {
		return
	}
	if p.FreightValue != nil {
		sum += *p.FreightValue
	}
	p.TotalValue = &sum
}

// MarkReceived stamps the Pending → Received transition. Proposals
// already past Received are left alone.
func (p *SupplierProposal) MarkReceived(now time.Time) {
	if p.Status != ProposalPending {
		return
	}
	p.Status = ProposalReceived
	p.ReceivedAt = &now
}
