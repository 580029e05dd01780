package out

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TenantLocker is the per-tenant single-flight guard. Acquire returns
// false when another run holds the lock; Release is safe to call only
// by the holder (the token guards against releasing someone else's
// lock after a TTL expiry).
type TenantLocker interface {
	Acquire(ctx context.Context, tenantID uuid.UUID, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, tenantID uuid.UUID, token string) error
}
