// Package out defines outbound ports (driven ports) for the application.
// These interfaces represent dependencies that the application needs.
package out

import (
	"context"
	"time"

	"mailroom_server/core/domain"
)

// NormalizedMessage is one mailbox message flattened to the fields the
// pipeline cares about. AttachmentText keeps PDF evidence separate from
// the body so extraction can rank it higher.
type NormalizedMessage struct {
	UID        uint32
	FromEmail  string
	FromName   string
	Subject    string
	ReceivedAt time.Time

	Body           string
	AttachmentText string
}

// MailboxProvider reads a tenant's shared inbox. Implementations are
// strictly read-only: no flags are set and nothing is deleted.
//
// Fetch returns whatever was successfully normalized before the first
// transport failure, together with that failure — partial progress is
// never discarded.
type MailboxProvider interface {
	Fetch(ctx context.Context, settings *domain.MailboxSettings, secret string, since time.Time) ([]NormalizedMessage, error)
}

// PDFTextExtractor turns raw PDF bytes into best-effort text. Empty
// text is not an error; it means no attachment evidence.
type PDFTextExtractor interface {
	Extract(data []byte) string
}
