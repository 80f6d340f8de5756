package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/gomarketplace/cartd/internal/app"
	"github.com/gomarketplace/cartd/internal/policy"
	"github.com/gomarketplace/cartd/internal/repository/memory"
	"github.com/gomarketplace/cartd/internal/repository/redis"
	"github.com/gomarketplace/cartd/internal/repository/sqlite"
)

// ErrUnknownDriver is returned for a storage driver name NewStorage does not know.
var ErrUnknownDriver = errors.New("unknown storage driver")

// NewStorage returns the Storage selected by cfg.Driver (default sqlite at
// ~/.config/cartd/cart.sqlite). Redis backends are pinged before returning.
// Callers should Close the result if it implements io.Closer.
func NewStorage(ctx context.Context, cfg policy.StorageConfig, logger *log.Logger) (app.Storage, error) {
	switch cfg.Driver {
	case policy.DriverSQLite, "":
		path := cfg.Path
		if path == "" {
			path = policy.GlobalStateFile()
		}
		return sqlite.New(path)
	case policy.DriverRedis:
		store, err := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			return nil, err
		}
		if err := store.Initialize(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		return store, nil
	case policy.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// Close closes storage when the backend holds resources.
func Close(storage app.Storage) error {
	if c, ok := storage.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
