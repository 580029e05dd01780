// Package reconcile applies extracted commercial terms onto the
// existing supplier-proposal aggregate.
package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"mailroom_server/core/domain"
	"mailroom_server/core/port/out"
	"mailroom_server/pkg/apperr"
	"mailroom_server/pkg/logger"
)

// Reconciler performs the idempotent partial update of one proposal
// from one extraction payload. It never creates proposal rows and
// never writes nulls over previously-recorded fields.
type Reconciler struct {
	proposals  out.ProposalRepository
	quotations out.QuotationRepository
	floor      int
	log        *logger.Logger
}

func NewReconciler(proposals out.ProposalRepository, quotations out.QuotationRepository, confidenceFloor int, log *logger.Logger) *Reconciler {
	return &Reconciler{
		proposals:  proposals,
		quotations: quotations,
		floor:      confidenceFloor,
		log:        log,
	}
}

// Reconcile merges payload into the (quotationID, supplierID) proposal
// and promotes it to Received. Below the confidence floor only empty
// fields are filled, so a later low-quality email cannot degrade a
// proposal enriched by an earlier, better one.
func (r *Reconciler) Reconcile(ctx context.Context, tenantID uuid.UUID, quotationID, supplierID int64, payload *domain.CommercialPayload) (int64, error) {
	proposal, err := r.proposals.GetByQuotationAndSupplier(ctx, tenantID, quotationID, supplierID)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return 0, apperr.ReconcileTargetMissing(quotationID, supplierID)
		}
		return 0, err
	}

	if payload == nil || payload.Empty() {
		// nothing extracted; the record stays Classified and the
		// proposal is left for manual completion
		return proposal.ID, nil
	}

	quotation, err := r.quotations.GetByID(ctx, tenantID, quotationID)
	if err != nil {
		return 0, err
	}

	trusted := payload.Confidence >= r.floor
	r.applyHeader(proposal, payload, trusted)
	itemsChanged := r.applyItems(proposal, quotation, payload, trusted)

	// without an explicitly extracted total the header follows the
	// items, so a price update can never leave a stale total behind
	if payload.TotalValue != nil && (trusted || proposal.TotalValue == nil) {
		proposal.TotalValue = payload.TotalValue
	} else if payload.TotalValue == nil && (itemsChanged || proposal.TotalValue == nil) {
		proposal.RecomputeTotal()
	}

	proposal.MarkReceived(time.Now().UTC())

	if err := r.proposals.Update(ctx, proposal); err != nil {
		return 0, err
	}

	// a received proposal moves the quotation out of plain Sent
	if quotation.Status == domain.QuotationSent {
		if err := r.quotations.PromoteToNegotiation(ctx, tenantID, quotationID); err != nil {
			r.log.WithError(err).WithField("quotation_id", quotationID).
				Warn("failed to promote quotation to in_negotiation")
		}
	}

	return proposal.ID, nil
}

// applyHeader merges proposal-level fields. Below the floor an existing
// value always wins.
func (r *Reconciler) applyHeader(p *domain.SupplierProposal, payload *domain.CommercialPayload, trusted bool) {
	setStr := func(dst **string, src *string) {
		if src != nil && (trusted || *dst == nil) {
			*dst = src
		}
	}
	setInt := func(dst **int, src *int) {
		if src != nil && (trusted || *dst == nil) {
			*dst = src
		}
	}

	setStr(&p.PaymentTerms, payload.PaymentTerms)
	setStr(&p.Remarks, payload.Remarks)
	setInt(&p.LeadTimeDays, payload.LeadTimeDays)

	if payload.FreightIncl != nil && (trusted || p.FreightIncl == nil) {
		p.FreightIncl = payload.FreightIncl
	}
	if payload.FreightValue != nil && (trusted || p.FreightValue == nil) {
		p.FreightValue = payload.FreightValue
	}
	if payload.ValidUntil != nil && (trusted || p.ValidUntil == nil) {
		if ts, err := time.Parse("2006-01-02", *payload.ValidUntil); err == nil {
			p.ValidUntil = &ts
		}
	}
}

// applyItems matches extracted entries to proposal items by name
// similarity first, ordinal position as the fallback, then merges
// prices. Line totals missing from the payload are derived from unit
// price times requested quantity. Reports whether any line total
// changed so the caller knows the header total needs re-aggregating.
func (r *Reconciler) applyItems(p *domain.SupplierProposal, q *domain.QuotationRequest, payload *domain.CommercialPayload, trusted bool) bool {
	changed := false

	for k := range payload.Items {
		entry := &payload.Items[k]

		idx := r.matchItem(q, entry, k)
		if idx < 0 || idx >= len(q.Items) {
			continue
		}
		item := proposalItemFor(p, q.Items[idx].ID, idx)
		if item == nil {
			continue
		}

		priceChanged := false
		if entry.UnitPrice != nil && (trusted || item.UnitPrice == nil) {
			priceChanged = item.UnitPrice == nil || *item.UnitPrice != *entry.UnitPrice
			item.UnitPrice = entry.UnitPrice
		}
		if entry.Brand != nil && (trusted || item.Brand == nil) {
			item.Brand = entry.Brand
		}
		if entry.LeadTimeDays != nil && (trusted || item.LeadTimeDays == nil) {
			item.LeadTimeDays = entry.LeadTimeDays
		}

		switch {
		case entry.LineTotal != nil && (trusted || item.LineTotal == nil):
			if item.LineTotal == nil || *item.LineTotal != *entry.LineTotal {
				changed = true
			}
			item.LineTotal = entry.LineTotal
		case item.UnitPrice != nil && (item.LineTotal == nil || priceChanged):
			total := *item.UnitPrice * q.Items[idx].Quantity
			if item.LineTotal == nil || *item.LineTotal != total {
				changed = true
			}
			item.LineTotal = &total
		}

		if item.UnitPrice != nil && (item.FinalPrice == nil || priceChanged) {
			final := *item.UnitPrice
			if item.DiscountPct != nil {
				final = final * (1 - *item.DiscountPct/100)
			}
			item.FinalPrice = &final
		}
	}

	return changed
}

// proposalItemFor locates the proposal item tied to a quotation item,
// falling back to position when the link id is not populated.
func proposalItemFor(p *domain.SupplierProposal, quotationItemID int64, idx int) *domain.ProposalItem {
	for i := range p.Items {
		if p.Items[i].QuotationItemID == quotationItemID && quotationItemID != 0 {
			return &p.Items[i]
		}
	}
	if idx < len(p.Items) {
		return &p.Items[idx]
	}
	return nil
}

// matchItem returns the quotation-item index for one extracted entry.
// Name similarity beats position because supplier replies sometimes
// omit or reorder lines.
func (r *Reconciler) matchItem(q *domain.QuotationRequest, entry *domain.ExtractedItem, ordinal int) int {
	if entry.Name != nil {
		name := strings.ToLower(strings.TrimSpace(*entry.Name))
		if name != "" {
			for i, qi := range q.Items {
				req := strings.ToLower(qi.Name)
				if req == name || strings.Contains(req, name) || strings.Contains(name, req) {
					return i
				}
			}
		}
	}

	if entry.Index >= 0 && entry.Index < len(q.Items) {
		return entry.Index
	}
	if ordinal < len(q.Items) {
		return ordinal
	}
	return -1
}
