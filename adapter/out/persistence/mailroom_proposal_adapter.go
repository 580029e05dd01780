package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"mailroom_server/core/domain"
	"mailroom_server/core/port/out"
	"mailroom_server/pkg/apperr"
)

// ProposalRepository implements out.ProposalRepository. Rows are only
// ever updated here; proposal creation belongs to the CRUD side.
type ProposalRepository struct {
	db *sqlx.DB
}

func NewProposalRepository(db *sqlx.DB) out.ProposalRepository {
	return &ProposalRepository{db: db}
}

type proposalRow struct {
	ID           int64      `db:"id"`
	TenantID     uuid.UUID  `db:"tenant_id"`
	QuotationID  int64      `db:"quotation_id"`
	SupplierID   int64      `db:"supplier_id"`
	Status       string     `db:"status"`
	PaymentTerms *string    `db:"payment_terms"`
	LeadTimeDays *int       `db:"lead_time_days"`
	FreightIncl  *bool      `db:"freight_included"`
	FreightValue *float64   `db:"freight_value"`
	TotalValue   *float64   `db:"total_value"`
	ValidUntil   *time.Time `db:"valid_until"`
	Remarks      *string    `db:"remarks"`
	ReceivedAt   *time.Time `db:"received_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

type proposalItemRow struct {
	ID              int64     `db:"id"`
	ProposalID      int64     `db:"proposal_id"`
	QuotationItemID int64     `db:"quotation_item_id"`
	Position        int       `db:"position"`
	UnitPrice       *float64  `db:"unit_price"`
	DiscountPct     *float64  `db:"discount_pct"`
	FinalPrice      *float64  `db:"final_price"`
	LineTotal       *float64  `db:"line_total"`
	Brand           *string   `db:"brand"`
	LeadTimeDays    *int      `db:"lead_time_days"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r proposalRow) toDomain() *domain.SupplierProposal {
	return &domain.SupplierProposal{
		ID:           r.ID,
		TenantID:     r.TenantID,
		QuotationID:  r.QuotationID,
		SupplierID:   r.SupplierID,
		Status:       domain.ProposalStatus(r.Status),
		PaymentTerms: r.PaymentTerms,
		LeadTimeDays: r.LeadTimeDays,
		FreightIncl:  r.FreightIncl,
		FreightValue: r.FreightValue,
		TotalValue:   r.TotalValue,
		ValidUntil:   r.ValidUntil,
		Remarks:      r.Remarks,
		ReceivedAt:   r.ReceivedAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (r proposalItemRow) toDomain() domain.ProposalItem {
	return domain.ProposalItem{
		ID:              r.ID,
		ProposalID:      r.ProposalID,
		QuotationItemID: r.QuotationItemID,
		Position:        r.Position,
		UnitPrice:       r.UnitPrice,
		DiscountPct:     r.DiscountPct,
		FinalPrice:      r.FinalPrice,
		LineTotal:       r.LineTotal,
		Brand:           r.Brand,
		LeadTimeDays:    r.LeadTimeDays,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

const proposalColumns = `
	id, tenant_id, quotation_id, supplier_id, status, payment_terms,
	lead_time_days, freight_included, freight_value, total_value,
	valid_until, remarks, received_at, created_at, updated_at`

func (r *ProposalRepository) GetByQuotationAndSupplier(ctx context.Context, tenantID uuid.UUID, quotationID, supplierID int64) (*domain.SupplierProposal, error) {
	query := `SELECT` + proposalColumns + `
		FROM supplier_proposals
		WHERE tenant_id = $1 AND quotation_id = $2 AND supplier_id = $3`

	var row proposalRow
	if err := r.db.GetContext(ctx, &row, query, tenantID, quotationID, supplierID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("proposal")
		}
		return nil, apperr.DatabaseError("get proposal", err)
	}

	p := row.toDomain()
	if err := r.loadItems(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// LatestOpenBySupplier returns the supplier's most recently created
// proposal whose quotation is still open.
func (r *ProposalRepository) LatestOpenBySupplier(ctx context.Context, tenantID uuid.UUID, supplierID int64) (*domain.SupplierProposal, error) {
	query := `
		SELECT p.id, p.tenant_id, p.quotation_id, p.supplier_id, p.status,
		       p.payment_terms, p.lead_time_days, p.freight_included,
		       p.freight_value, p.total_value, p.valid_until, p.remarks,
		       p.received_at, p.created_at, p.updated_at
		FROM supplier_proposals p
		JOIN quotation_requests q ON q.id = p.quotation_id
		WHERE p.tenant_id = $1 AND p.supplier_id = $2
		  AND q.status IN ('sent', 'in_negotiation')
		ORDER BY p.created_at DESC
		LIMIT 1`

	var row proposalRow
	if err := r.db.GetContext(ctx, &row, query, tenantID, supplierID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("proposal")
		}
		return nil, apperr.DatabaseError("latest open proposal", err)
	}

	p := row.toDomain()
	if err := r.loadItems(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update writes the proposal header and its items in one transaction so
// a failed item write never leaves a half-reconciled proposal.
func (r *ProposalRepository) Update(ctx context.Context, proposal *domain.SupplierProposal) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.DatabaseError("begin proposal update", err)
	}
	defer tx.Rollback()

	headerQuery := `
		UPDATE supplier_proposals SET
			status = $1, payment_terms = $2, lead_time_days = $3,
			freight_included = $4, freight_value = $5, total_value = $6,
			valid_until = $7, remarks = $8, received_at = $9,
			updated_at = NOW()
		WHERE id = $10 AND tenant_id = $11`

	res, err := tx.ExecContext(ctx, headerQuery,
		string(proposal.Status), proposal.PaymentTerms, proposal.LeadTimeDays,
		proposal.FreightIncl, proposal.FreightValue, proposal.TotalValue,
		proposal.ValidUntil, proposal.Remarks, proposal.ReceivedAt,
		proposal.ID, proposal.TenantID,
	)
	if err != nil {
		return apperr.DatabaseError("update proposal", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("proposal")
	}

	itemQuery := `
		UPDATE proposal_items SET
			unit_price = $1, discount_pct = $2, final_price = $3,
			line_total = $4, brand = $5, lead_time_days = $6,
			updated_at = NOW()
		WHERE id = $7 AND proposal_id = $8`

	for i := range proposal.Items {
		item := &proposal.Items[i]
		if _, err := tx.ExecContext(ctx, itemQuery,
			item.UnitPrice, item.DiscountPct, item.FinalPrice,
			item.LineTotal, item.Brand, item.LeadTimeDays,
			item.ID, proposal.ID,
		); err != nil {
			return apperr.DatabaseError("update proposal item", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit proposal update", err)
	}
	return nil
}

func (r *ProposalRepository) loadItems(ctx context.Context, p *domain.SupplierProposal) error {
	query := `
		SELECT id, proposal_id, quotation_item_id, position, unit_price,
		       discount_pct, final_price, line_total, brand, lead_time_days,
		       created_at, updated_at
		FROM proposal_items
		WHERE proposal_id = $1
		ORDER BY position, created_at`

	var rows []proposalItemRow
	if err := r.db.SelectContext(ctx, &rows, query, p.ID); err != nil {
		return apperr.DatabaseError("load proposal items", err)
	}

	p.Items = make([]domain.ProposalItem, len(rows))
	for i, row := range rows {
		p.Items[i] = row.toDomain()
	}
	return nil
}
