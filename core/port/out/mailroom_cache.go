package out

import (
	"context"
	"time"
)

// CounterCache is a short-TTL integer cache. Used to avoid re-counting
// open quotations for idle tenants on every scheduler tick.
type CounterCache interface {
	GetInt(ctx context.Context, key string) (value int, ok bool, err error)
	SetInt(ctx context.Context, key string, value int, ttl time.Duration) error
}
