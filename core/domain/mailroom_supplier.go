package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Supplier is a tenant-registered vendor. A supplier can receive mail
// from several addresses (sales rep, billing, shared inbox), so the
// registry keeps all of them.
type Supplier struct {
	ID       int64
	TenantID uuid.UUID
	Name     string
	Emails   pq.StringArray

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MatchesEmail reports whether addr is one of the supplier's registered
// addresses, case-insensitively.
func (s *Supplier) MatchesEmail(addr string) bool {
	addr = strings.ToLower(strings.TrimSpace(addr))
	for _, e := range s.Emails {
		if strings.ToLower(strings.TrimSpace(e)) == addr {
			return true
		}
	}
	return false
}
