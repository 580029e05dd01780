package out

import (
	"context"

	"github.com/google/uuid"
)

// EmailAuditDocument is the full-body audit copy of one message. The
// relational record keeps only a bounded excerpt.
type EmailAuditDocument struct {
	TenantID       string `bson:"tenant_id"`
	RecordID       int64  `bson:"record_id"`
	MailboxUID     uint32 `bson:"mailbox_uid"`
	Body           string `bson:"body"`
	AttachmentText string `bson:"attachment_text"`
}

// AuditStore archives full message bodies for later review. Failures
// here are logged and swallowed; audit is best-effort.
type AuditStore interface {
	SaveBody(ctx context.Context, doc *EmailAuditDocument) error
	GetBody(ctx context.Context, tenantID uuid.UUID, recordID int64) (*EmailAuditDocument, error)
}
