package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/gomarketplace/cartd/internal/app"
	"github.com/gomarketplace/cartd/internal/policy"
	"github.com/gomarketplace/cartd/internal/repository"
)

// runStatusCommand implements "cartd status": prints the persisted cart summary.
// Returns the process exit code.
func runStatusCommand(w io.Writer) int {
	logger := log.New(os.Stderr, "", 0)
	pol := policy.New(loadConfig(logger))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	storage, err := repository.NewStorage(ctx, pol.StorageConfig(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = repository.Close(storage) }()

	snap := persistedSnapshot(ctx, storage, pol, logger)
	fmt.Fprintln(w, statusLine(snap))
	return 0
}

// persistedSnapshot loads the stored cart the same way the daemon does at startup.
func persistedSnapshot(ctx context.Context, storage app.Storage, pol app.Policy, logger *log.Logger) app.Snapshot {
	store := app.NewCartStore(storage, pol, logger)
	defer func() { _ = store.Close(ctx) }()
	store.Load(ctx)
	return store.Snapshot()
}

func statusLine(snap app.Snapshot) string {
	return fmt.Sprintf("items=%d quantity=%d subtotal=%.2f", len(snap.Products), snap.TotalQuantity, snap.Subtotal)
}
