package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"mailroom_server/core/domain"
	"mailroom_server/core/port/out"
	"mailroom_server/pkg/apperr"
)

// EmailRecordRepository implements out.EmailRecordRepository.
type EmailRecordRepository struct {
	db *sqlx.DB
}

func NewEmailRecordRepository(db *sqlx.DB) out.EmailRecordRepository {
	return &EmailRecordRepository{db: db}
}

type emailRecordRow struct {
	ID               int64      `db:"id"`
	TenantID         uuid.UUID  `db:"tenant_id"`
	MailboxUID       int64      `db:"mailbox_uid"`
	FromEmail        string     `db:"from_email"`
	FromName         *string    `db:"from_name"`
	Subject          string     `db:"subject"`
	ReceivedAt       time.Time  `db:"received_at"`
	BodyExcerpt      string     `db:"body_excerpt"`
	Status           string     `db:"status"`
	Method           string     `db:"method"`
	Confidence       *int       `db:"confidence"`
	QuotationID      *int64     `db:"quotation_id"`
	SupplierID       *int64     `db:"supplier_id"`
	ProposalID       *int64     `db:"proposal_id"`
	ExtractedPayload []byte     `db:"extracted_payload"`
	ErrorDetail      *string    `db:"error_detail"`
	ProcessedAt      *time.Time `db:"processed_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

func (r emailRecordRow) toDomain() *domain.IncomingEmailRecord {
	return &domain.IncomingEmailRecord{
		ID:               r.ID,
		TenantID:         r.TenantID,
		MailboxUID:       uint32(r.MailboxUID),
		FromEmail:        r.FromEmail,
		FromName:         r.FromName,
		Subject:          r.Subject,
		ReceivedAt:       r.ReceivedAt,
		BodyExcerpt:      r.BodyExcerpt,
		Status:           domain.ClassificationStatus(r.Status),
		Method:           domain.ClassificationMethod(r.Method),
		Confidence:       r.Confidence,
		QuotationID:      r.QuotationID,
		SupplierID:       r.SupplierID,
		ProposalID:       r.ProposalID,
		ExtractedPayload: r.ExtractedPayload,
		ErrorDetail:      r.ErrorDetail,
		ProcessedAt:      r.ProcessedAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

const emailRecordColumns = `
	id, tenant_id, mailbox_uid, from_email, from_name, subject, received_at,
	body_excerpt, status, method, confidence, quotation_id, supplier_id,
	proposal_id, extracted_payload, error_detail, processed_at,
	created_at, updated_at`

func (r *EmailRecordRepository) Create(ctx context.Context, rec *domain.IncomingEmailRecord) error {
	query := `
		INSERT INTO incoming_emails (
			id, tenant_id, mailbox_uid, from_email, from_name, subject,
			received_at, body_excerpt, status, method, confidence,
			quotation_id, supplier_id, proposal_id, extracted_payload,
			error_detail, processed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.TenantID, int64(rec.MailboxUID), rec.FromEmail, rec.FromName,
		rec.Subject, rec.ReceivedAt, rec.BodyExcerpt, string(rec.Status),
		string(rec.Method), rec.Confidence, rec.QuotationID, rec.SupplierID,
		rec.ProposalID, rec.ExtractedPayload, rec.ErrorDetail, rec.ProcessedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.DuplicateMessage(rec.MailboxUID)
		}
		return apperr.DatabaseError("create incoming email", err)
	}
	return nil
}

func (r *EmailRecordRepository) Update(ctx context.Context, rec *domain.IncomingEmailRecord) error {
	query := `
		UPDATE incoming_emails SET
			status = $1, method = $2, confidence = $3, quotation_id = $4,
			supplier_id = $5, proposal_id = $6, extracted_payload = $7,
			error_detail = $8, processed_at = $9, updated_at = NOW()
		WHERE id = $10 AND tenant_id = $11`

	res, err := r.db.ExecContext(ctx, query,
		string(rec.Status), string(rec.Method), rec.Confidence,
		rec.QuotationID, rec.SupplierID, rec.ProposalID,
		rec.ExtractedPayload, rec.ErrorDetail, rec.ProcessedAt,
		rec.ID, rec.TenantID,
	)
	if err != nil {
		return apperr.DatabaseError("update incoming email", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("incoming email")
	}
	return nil
}

func (r *EmailRecordRepository) GetByID(ctx context.Context, tenantID uuid.UUID, id int64) (*domain.IncomingEmailRecord, error) {
	query := `SELECT` + emailRecordColumns + `
		FROM incoming_emails WHERE tenant_id = $1 AND id = $2`

	var row emailRecordRow
	if err := r.db.GetContext(ctx, &row, query, tenantID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("incoming email")
		}
		return nil, apperr.DatabaseError("get incoming email", err)
	}
	return row.toDomain(), nil
}

func (r *EmailRecordRepository) ExistsByUID(ctx context.Context, tenantID uuid.UUID, uid uint32) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM incoming_emails WHERE tenant_id = $1 AND mailbox_uid = $2)`
	if err := r.db.GetContext(ctx, &exists, query, tenantID, int64(uid)); err != nil {
		return false, apperr.DatabaseError("check incoming email", err)
	}
	return exists, nil
}

func (r *EmailRecordRepository) ListByStatus(ctx context.Context, tenantID uuid.UUID, status domain.ClassificationStatus, limit, offset int) ([]*domain.IncomingEmailRecord, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM incoming_emails WHERE tenant_id = $1 AND status = $2`
	if err := r.db.GetContext(ctx, &total, countQuery, tenantID, string(status)); err != nil {
		return nil, 0, apperr.DatabaseError("count incoming emails", err)
	}

	query := fmt.Sprintf(`SELECT %s
		FROM incoming_emails
		WHERE tenant_id = $1 AND status = $2
		ORDER BY received_at DESC
		LIMIT $3 OFFSET $4`, emailRecordColumns)

	var rows []emailRecordRow
	if err := r.db.SelectContext(ctx, &rows, query, tenantID, string(status), limit, offset); err != nil {
		return nil, 0, apperr.DatabaseError("list incoming emails", err)
	}

	records := make([]*domain.IncomingEmailRecord, len(rows))
	for i, row := range rows {
		records[i] = row.toDomain()
	}
	return records, total, nil
}
