package persistence

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mailroom_server/core/domain"
	"mailroom_server/core/port/out"
	"mailroom_server/pkg/apperr"
)

// SupplierRepository implements out.SupplierRepository.
type SupplierRepository struct {
	db *sqlx.DB
}

func NewSupplierRepository(db *sqlx.DB) out.SupplierRepository {
	return &SupplierRepository{db: db}
}

type supplierRow struct {
	ID        int64          `db:"id"`
	TenantID  uuid.UUID      `db:"tenant_id"`
	Name      string         `db:"name"`
	Emails    pq.StringArray `db:"emails"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r supplierRow) toDomain() *domain.Supplier {
	return &domain.Supplier{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Name:      r.Name,
		Emails:    r.Emails,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (r *SupplierRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.Supplier, error) {
	query := `
		SELECT id, tenant_id, name, emails, created_at, updated_at
		FROM suppliers
		WHERE tenant_id = $1
		ORDER BY name`

	var rows []supplierRow
	if err := r.db.SelectContext(ctx, &rows, query, tenantID); err != nil {
		return nil, apperr.DatabaseError("list suppliers", err)
	}

	suppliers := make([]*domain.Supplier, len(rows))
	for i, row := range rows {
		suppliers[i] = row.toDomain()
	}
	return suppliers, nil
}

func (r *SupplierRepository) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*domain.Supplier, error) {
	query := `
		SELECT id, tenant_id, name, emails, created_at, updated_at
		FROM suppliers
		WHERE tenant_id = $1
		  AND EXISTS (
			SELECT 1 FROM unnest(emails) AS e WHERE LOWER(e) = $2
		  )
		LIMIT 1`

	var row supplierRow
	err := r.db.GetContext(ctx, &row, query, tenantID, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("supplier")
		}
		return nil, apperr.DatabaseError("find supplier by email", err)
	}
	return row.toDomain(), nil
}
