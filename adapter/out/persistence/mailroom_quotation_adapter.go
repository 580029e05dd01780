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

// QuotationRepository implements out.QuotationRepository. Quotations
// are owned by the CRUD side of the product; this pipeline reads them
// and performs the single sent → in_negotiation promotion.
type QuotationRepository struct {
	db *sqlx.DB
}

func NewQuotationRepository(db *sqlx.DB) out.QuotationRepository {
	return &QuotationRepository{db: db}
}

type quotationRow struct {
	ID        int64     `db:"id"`
	TenantID  uuid.UUID `db:"tenant_id"`
	Number    string    `db:"number"`
	Title     string    `db:"title"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type quotationItemRow struct {
	ID          int64     `db:"id"`
	QuotationID int64     `db:"quotation_id"`
	Position    int       `db:"position"`
	Name        string    `db:"name"`
	Quantity    float64   `db:"quantity"`
	Unit        string    `db:"unit"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r quotationRow) toDomain() *domain.QuotationRequest {
	return &domain.QuotationRequest{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Number:    r.Number,
		Title:     r.Title,
		Status:    domain.QuotationStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (r quotationItemRow) toDomain() domain.QuotationItem {
	return domain.QuotationItem{
		ID:          r.ID,
		QuotationID: r.QuotationID,
		Position:    r.Position,
		Name:        r.Name,
		Quantity:    r.Quantity,
		Unit:        r.Unit,
		CreatedAt:   r.CreatedAt,
	}
}

func (r *QuotationRepository) ListOpen(ctx context.Context, tenantID uuid.UUID) ([]*domain.QuotationRequest, error) {
	query := `
		SELECT id, tenant_id, number, title, status, created_at, updated_at
		FROM quotation_requests
		WHERE tenant_id = $1 AND status IN ('sent', 'in_negotiation')
		ORDER BY created_at DESC`

	var rows []quotationRow
	if err := r.db.SelectContext(ctx, &rows, query, tenantID); err != nil {
		return nil, apperr.DatabaseError("list open quotations", err)
	}

	quotations := make([]*domain.QuotationRequest, len(rows))
	for i, row := range rows {
		quotations[i] = row.toDomain()
	}

	if err := r.loadItems(ctx, quotations); err != nil {
		return nil, err
	}
	return quotations, nil
}

func (r *QuotationRepository) CountOpen(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	query := `
		SELECT COUNT(*) FROM quotation_requests
		WHERE tenant_id = $1 AND status IN ('sent', 'in_negotiation')`
	if err := r.db.GetContext(ctx, &n, query, tenantID); err != nil {
		return 0, apperr.DatabaseError("count open quotations", err)
	}
	return n, nil
}

func (r *QuotationRepository) GetByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*domain.QuotationRequest, error) {
	query := `
		SELECT id, tenant_id, number, title, status, created_at, updated_at
		FROM quotation_requests
		WHERE tenant_id = $1 AND number = $2`

	return r.getOne(ctx, query, tenantID, number)
}

func (r *QuotationRepository) GetByID(ctx context.Context, tenantID uuid.UUID, id int64) (*domain.QuotationRequest, error) {
	query := `
		SELECT id, tenant_id, number, title, status, created_at, updated_at
		FROM quotation_requests
		WHERE tenant_id = $1 AND id = $2`

	return r.getOne(ctx, query, tenantID, id)
}

func (r *QuotationRepository) getOne(ctx context.Context, query string, args ...any) (*domain.QuotationRequest, error) {
	var row quotationRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("quotation")
		}
		return nil, apperr.DatabaseError("get quotation", err)
	}

	q := row.toDomain()
	if err := r.loadItems(ctx, []*domain.QuotationRequest{q}); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *QuotationRepository) PromoteToNegotiation(ctx context.Context, tenantID uuid.UUID, id int64) error {
	query := `
		UPDATE quotation_requests
		SET status = 'in_negotiation', updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = 'sent'`

	if _, err := r.db.ExecContext(ctx, query, tenantID, id); err != nil {
		return apperr.DatabaseError("promote quotation", err)
	}
	return nil
}

// loadItems fetches line items for a batch of quotations in one query,
// preserving creation order within each quotation.
func (r *QuotationRepository) loadItems(ctx context.Context, quotations []*domain.QuotationRequest) error {
	if len(quotations) == 0 {
		return nil
	}

	ids := make([]int64, len(quotations))
	byID := make(map[int64]*domain.QuotationRequest, len(quotations))
	for i, q := range quotations {
		ids[i] = q.ID
		byID[q.ID] = q
	}

	query, args, err := sqlx.In(`
		SELECT id, quotation_id, position, name, quantity, unit, created_at
		FROM quotation_items
		WHERE quotation_id IN (?)
		ORDER BY quotation_id, position, created_at`, ids)
	if err != nil {
		return apperr.DatabaseError("build quotation items query", err)
	}
	query = r.db.Rebind(query)

	var rows []quotationItemRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return apperr.DatabaseError("load quotation items", err)
	}

	for _, row := range rows {
		if q, ok := byID[row.QuotationID]; ok {
			q.Items = append(q.Items, row.toDomain())
		}
	}
	return nil
}
