package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// MailboxSettings is one tenant's shared-inbox connection. The secret
// is stored encrypted at rest and only decrypted in memory right before
// the session opens.
type MailboxSettings struct {
	TenantID        uuid.UUID
	Host            string
	Port            int
	Address         string
	EncryptedSecret string
	Folder          string
	Enabled         bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ServerAddr returns the host:port dial target.
func (m *MailboxSettings) ServerAddr() string {
	port := m.Port
	if port == 0 {
		port = 993
	}
	return m.Host + ":" + strconv.Itoa(port)
}
