// Package redis implements the cart key-value storage on a Redis server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gomarketplace/cartd/internal/app"
)

const (
	defaultMaxAttempts = 30
	maxBackoff         = 30 * time.Second
	pingTimeout        = 5 * time.Second
)

// Store implements app.Storage on plain Redis string keys.
type Store struct {
	client      *redis.Client
	logger      *log.Logger
	maxAttempts int
	baseBackoff time.Duration
}

var _ app.Storage = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithRetry overrides how many pings Initialize attempts and the first backoff delay.
func WithRetry(attempts int, base time.Duration) Option {
	return func(s *Store) {
		s.maxAttempts = attempts
		s.baseBackoff = base
	}
}

// New accepts either a redis:// URL or a plain host:port address. password and db are
// only applied to plain addresses; a URL carries its own.
func New(addr, password string, db int, logger *log.Logger, opts ...Option) (*Store, error) {
	if addr == "" {
		return nil, errors.New("redis: address is required")
	}
	options, err := redis.ParseURL(addr)
	if err != nil {
		options = &redis.Options{
			Addr:         addr,
			Password:     password,
			DB:           db,
			MinIdleConns: 1,
			DialTimeout:  10 * time.Second,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			PoolSize:     10,
			PoolTimeout:  4 * time.Second,
		}
	}
	return NewWithClient(redis.NewClient(options), logger, opts...), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, logger *log.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Store{
		client:      client,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		baseBackoff: time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Initialize pings the server until it answers, backing off exponentially between attempts.
func (s *Store) Initialize(ctx context.Context) error {
	for i := 0; i < s.maxAttempts; i++ {
		if s.Ping(ctx) {
			if i > 0 {
				s.logger.Printf("Redis: connected on attempt %d", i+1)
			}
			return nil
		}
		backoff := s.baseBackoff * time.Duration(1<<uint(i))
		if backoff > maxBackoff || backoff <= 0 {
			backoff = maxBackoff
		}
		s.logger.Printf("Warning: redis ping failed (attempt %d/%d), retrying in %v", i+1, s.maxAttempts, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("redis: no answer after %d attempts", s.maxAttempts)
}

// Ping reports whether the server answers within a few seconds.
func (s *Store) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err() == nil
}

// GetItem returns the value stored under key. found is false when the key does not exist.
func (s *Store) GetItem(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// SetItem stores value under key without expiry.
func (s *Store) SetItem(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close closes the client connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
