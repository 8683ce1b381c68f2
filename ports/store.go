package ports

import (
	"context"
	"time"
)

// Store is a small key/value store with expirations.
// Get returns core.ErrNotFound for missing or expired keys.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	// SetNX stores the value only if the key is absent and reports whether it did
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}
