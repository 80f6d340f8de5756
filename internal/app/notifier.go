package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultDebounceMs   = 200
	defaultPollInterval = 10 * time.Second

	// CartUpdateMethod is the notification method pushed to connected clients.
	CartUpdateMethod = "notifications/cart_update"
)

// CartUpdateParams is the payload for notifications/cart_update.
type CartUpdateParams struct {
	Revision      uint64  `json:"revision"`
	Items         int     `json:"items"`
	TotalQuantity int     `json:"total_quantity"`
	Subtotal      float64 `json:"subtotal"`
	Summary       string  `json:"summary"`
}

// SnapshotSource supplies the cart state the notifier reports.
type SnapshotSource interface {
	Snapshot() Snapshot
}

// Notifier watches the signal file and pushes cart_update notifications to
// connected clients whenever a new cart revision reaches storage.
type Notifier struct {
	signalPath   string
	source       SnapshotSource
	hasClients   func() bool
	pushFunc     func(method string, params any) error
	logger       *log.Logger
	debounceMs   int
	pollInterval time.Duration

	mu            sync.Mutex
	lastPushedRev string
	debounceTimer *time.Timer
	watcher       *fsnotify.Watcher
	useFsnotify   bool
	stopCh        chan struct{}
	doneCh        chan struct{}
	pushMu        sync.Mutex // serializes checkAndPush to prevent duplicate pushes
}

// NotifierOption configures the notifier.
type NotifierOption func(*Notifier)

// WithPollInterval sets the fallback poll interval (default 10s).
func WithPollInterval(d time.Duration) NotifierOption {
	return func(n *Notifier) {
		n.pollInterval = d
	}
}

// WithDebounce sets the debounce delay applied to bursts of signal events (default 200ms).
func WithDebounce(d time.Duration) NotifierOption {
	return func(n *Notifier) {
		n.debounceMs = int(d / time.Millisecond)
	}
}

// NewNotifier creates a notifier. hasClients reports whether anyone is connected; when it
// returns false the push is skipped. pushFunc is called with CartUpdateMethod and CartUpdateParams.
func NewNotifier(signalPath string, source SnapshotSource, hasClients func() bool, pushFunc func(method string, params any) error, logger *log.Logger, opts ...NotifierOption) *Notifier {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	n := &Notifier{
		signalPath:   signalPath,
		source:       source,
		hasClients:   hasClients,
		pushFunc:     pushFunc,
		logger:       logger,
		debounceMs:   defaultDebounceMs,
		pollInterval: defaultPollInterval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Start starts the file watcher and fallback poll. Returns when ctx is cancelled.
// If fsnotify fails to initialize, falls back to poll-only mode.
func (n *Notifier) Start(ctx context.Context) {
	defer close(n.doneCh)

	watchDir := filepath.Dir(n.signalPath)
	signalName := filepath.Base(n.signalPath)
	if err := os.MkdirAll(watchDir, 0755); err != nil {
		n.logger.Printf("Notifier: create %s failed (%v)", watchDir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		n.logger.Printf("Notifier: fsnotify init failed (%v), using poll-only", err)
		n.useFsnotify = false
	} else {
		n.watcher = watcher
		n.useFsnotify = true
		if err := watcher.Add(watchDir); err != nil {
			n.logger.Printf("Notifier: fsnotify add %s failed (%v), using poll-only", watchDir, err)
			_ = watcher.Close()
			n.watcher = nil
			n.useFsnotify = false
		}
	}

	if n.useFsnotify {
		defer n.watcher.Close()
		go n.watchLoop(ctx, signalName)
	}

	n.pollLoop(ctx)
}

// Stop signals the notifier to stop and waits for Start to return.
func (n *Notifier) Stop() {
	close(n.stopCh)
	<-n.doneCh
}

// CheckOnce runs one check-and-push cycle (for testing or manual trigger).
func (n *Notifier) CheckOnce() {
	n.checkAndPush()
}

// Trigger forces a debounced check-and-push cycle, bypassing the revision dedup.
// CartStore calls it after every storage write because fsnotify may miss
// same-process writes.
func (n *Notifier) Trigger() {
	n.mu.Lock()
	n.lastPushedRev = ""
	n.mu.Unlock()
	n.triggerDebounced()
}

func (n *Notifier) watchLoop(ctx context.Context, signalName string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != signalName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			n.triggerDebounced()
		case _, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (n *Notifier) triggerDebounced() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.debounceTimer != nil {
		n.debounceTimer.Stop()
	}
	n.debounceTimer = time.AfterFunc(time.Duration(n.debounceMs)*time.Millisecond, func() {
		n.checkAndPush()
	})
}

func (n *Notifier) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.checkAndPush()
		}
	}
}

func (n *Notifier) checkAndPush() {
	n.pushMu.Lock()
	defer n.pushMu.Unlock()

	rev := n.readSignalRevision()
	if rev == "" {
		return
	}
	n.mu.Lock()
	if rev == n.lastPushedRev {
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	if n.hasClients != nil && !n.hasClients() {
		n.markPushed(rev)
		return
	}

	snap := n.source.Snapshot()
	params := CartUpdateParams{
		Revision:      snap.Revision,
		Items:         len(snap.Products),
		TotalQuantity: snap.TotalQuantity,
		Subtotal:      snap.Subtotal,
		Summary:       buildSummary(len(snap.Products), snap.TotalQuantity, snap.Subtotal),
	}
	if err := n.pushFunc(CartUpdateMethod, params); err != nil {
		n.logger.Printf("Notifier: push failed: %v", err)
		return
	}
	n.markPushed(rev)
}

func (n *Notifier) markPushed(rev string) {
	n.mu.Lock()
	n.lastPushedRev = rev
	n.mu.Unlock()
}

func (n *Notifier) readSignalRevision() string {
	data, err := os.ReadFile(n.signalPath)
	if err != nil {
		return ""
	}
	return string(data)
}

func buildSummary(items, quantity int, subtotal float64) string {
	if items == 0 {
		return "cart is empty"
	}
	return fmt.Sprintf("%d item(s), %d unit(s), subtotal %.2f", items, quantity, subtotal)
}
