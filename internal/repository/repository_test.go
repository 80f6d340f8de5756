package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/gomarketplace/cartd/internal/policy"
	"github.com/gomarketplace/cartd/internal/repository/memory"
	"github.com/gomarketplace/cartd/internal/repository/redis"
	"github.com/gomarketplace/cartd/internal/repository/sqlite"
)

func TestNewStorage_SQLite(t *testing.T) {
	cfg := policy.StorageConfig{Driver: policy.DriverSQLite, Path: filepath.Join(t.TempDir(), "cart.sqlite")}
	st, err := NewStorage(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	defer Close(st)
	if _, ok := st.(*sqlite.Store); !ok {
		t.Errorf("got %T, want *sqlite.Store", st)
	}
}

func TestNewStorage_Memory(t *testing.T) {
	st, err := NewStorage(context.Background(), policy.StorageConfig{Driver: policy.DriverMemory}, nil)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	if _, ok := st.(*memory.Store); !ok {
		t.Errorf("got %T, want *memory.Store", st)
	}
	if err := Close(st); err != nil {
		t.Errorf("Close on memory store: %v", err)
	}
}

func TestNewStorage_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	st, err := NewStorage(context.Background(), policy.StorageConfig{Driver: policy.DriverRedis, RedisAddr: mr.Addr()}, nil)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	defer Close(st)
	if _, ok := st.(*redis.Store); !ok {
		t.Errorf("got %T, want *redis.Store", st)
	}
	if err := st.SetItem(context.Background(), "@GoMarketplace:cart", "[]"); err != nil {
		t.Fatalf("SetItem: %v", err)
	}
	mr.CheckGet(t, "@GoMarketplace:cart", "[]")
}

func TestNewStorage_UnknownDriver(t *testing.T) {
	_, err := NewStorage(context.Background(), policy.StorageConfig{Driver: "etcd"}, nil)
	if !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("err = %v, want ErrUnknownDriver", err)
	}
}
