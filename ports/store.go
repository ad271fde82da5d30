package ports

import (
	"context"
	"time"
)

// Store is a small key/value store with expiry.
// It backs the nonce store; a single instance can use the memory
// implementation while several instances have to share a redis one.
type Store interface {
	// Get returns core.ErrNotFound when the key is absent or expired
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key for ttl, replacing any previous value
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// CompareAndDelete removes key only if it still holds value and
	// reports whether it did
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}
