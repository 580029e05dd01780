package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mailroom_server/core/port/out"
	"mailroom_server/pkg/apperr"
)

const collectionEmailBodies = "email_bodies"

// AuditAdapter implements out.AuditStore. The relational side keeps a
// bounded excerpt; the full body and attachment text live here.
type AuditAdapter struct {
	collection *mongo.Collection
}

var _ out.AuditStore = (*AuditAdapter)(nil)

func NewAuditAdapter(db *mongo.Database) *AuditAdapter {
	return &AuditAdapter{collection: db.Collection(collectionEmailBodies)}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *AuditAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "record_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "archived_at", Value: 1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

type auditDocument struct {
	TenantID       string    `bson:"tenant_id"`
	RecordID       int64     `bson:"record_id"`
	MailboxUID     uint32    `bson:"mailbox_uid"`
	Body           string    `bson:"body"`
	AttachmentText string    `bson:"attachment_text,omitempty"`
	ArchivedAt     time.Time `bson:"archived_at"`
}

func (a *AuditAdapter) SaveBody(ctx context.Context, doc *out.EmailAuditDocument) error {
	filter := bson.M{"tenant_id": doc.TenantID, "record_id": doc.RecordID}
	update := bson.M{"$set": auditDocument{
		TenantID:       doc.TenantID,
		RecordID:       doc.RecordID,
		MailboxUID:     doc.MailboxUID,
		Body:           doc.Body,
		AttachmentText: doc.AttachmentText,
		ArchivedAt:     time.Now().UTC(),
	}}

	_, err := a.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (a *AuditAdapter) GetBody(ctx context.Context, tenantID uuid.UUID, recordID int64) (*out.EmailAuditDocument, error) {
	var doc auditDocument
	err := a.collection.FindOne(ctx, bson.M{
		"tenant_id": tenantID.String(),
		"record_id": recordID,
	}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.NotFound("email body")
	}
	if err != nil {
		return nil, err
	}

	return &out.EmailAuditDocument{
		TenantID:       doc.TenantID,
		RecordID:       doc.RecordID,
		MailboxUID:     doc.MailboxUID,
		Body:           doc.Body,
		AttachmentText: doc.AttachmentText,
	}, nil
}
