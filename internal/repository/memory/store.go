// Package memory keeps cart storage in process memory. Nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"github.com/gomarketplace/cartd/internal/app"
)

// Store implements app.Storage on a map.
type Store struct {
	mu    sync.RWMutex
	items map[string]string
}

var _ app.Storage = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{items: make(map[string]string)}
}

// GetItem returns the value stored under key. found is false when the key is absent.
func (s *Store) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok, nil
}

// SetItem stores value under key, replacing any previous value.
func (s *Store) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}
