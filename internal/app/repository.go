// Package app implements the cart use cases and defines ports (storage and policy interfaces).
package app

import "context"

// Storage is the key-value store the cart is mirrored to.
// Implementations: internal/repository/sqlite, internal/repository/redis, internal/repository/memory.
type Storage interface {
	// GetItem returns the value stored under key. found is false when the key is absent.
	GetItem(ctx context.Context, key string) (value string, found bool, err error)
	// SetItem stores value under key, replacing any previous value.
	SetItem(ctx context.Context, key, value string) error
}
