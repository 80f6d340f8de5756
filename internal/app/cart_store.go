package app

import (
	"context"
	"io"
	"log"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/gomarketplace/cartd/internal/domain"
	"github.com/gomarketplace/cartd/internal/policy"
)

// Triggerable is something that can be triggered after a state write (e.g. Notifier).
type Triggerable interface {
	Trigger()
}

// StoreOption configures a CartStore.
type StoreOption func(*CartStore)

// WithNotifier attaches a Triggerable that is poked after every successful storage write.
func WithNotifier(n Triggerable) StoreOption {
	return func(c *CartStore) { c.notifier = n }
}

// WithTracer sets the tracer used for persistence spans (default: no-op).
func WithTracer(t trace.Tracer) StoreOption {
	return func(c *CartStore) { c.tracer = t }
}

// CartStore holds the cart in memory and mirrors every mutation to Storage.
//
// Mutations are serialized and applied to the latest committed state, so
// concurrent callers never lose each other's updates. Storage writes happen
// later on a single background goroutine; mutation calls never wait for them.
type CartStore struct {
	storage Storage
	policy  Policy
	logger  *log.Logger

	mu       sync.Mutex
	state    domain.CartState
	revision uint64

	subject   *subject
	persist   *persister
	notifier  Triggerable
	tracer    trace.Tracer
	loaded    chan struct{}
	loadOnce  sync.Once
	closeOnce sync.Once
}

// NewCartStore returns an empty store and starts its persister.
// Call Start to load the persisted cart and Close to release it.
func NewCartStore(storage Storage, pol Policy, logger *log.Logger, opts ...StoreOption) *CartStore {
	c := &CartStore{
		storage: storage,
		policy:  pol,
		logger:  logger,
		state:   domain.NewCartState(),
		subject: newSubject(),
		loaded:  make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard, "", 0)
	}
	if c.tracer == nil {
		c.tracer = noop.NewTracerProvider().Tracer("cartd")
	}
	c.persist = newPersister(storage, c.logger, c.tracer, c.afterWrite)
	go c.persist.run()
	return c
}

// Start loads the persisted cart in the background and returns immediately.
// Mutations issued before the load finishes win over the loaded value.
func (c *CartStore) Start(ctx context.Context) {
	go c.Load(ctx)
}

// Loaded is closed once the first Load attempt has finished, whether or not it succeeded.
func (c *CartStore) Loaded() <-chan struct{} {
	return c.loaded
}

// Load reads the cart key and replaces the in-memory cart with it.
// A missing key, read error or malformed value leaves the cart as it is; failures are
// logged, never returned.
func (c *CartStore) Load(ctx context.Context) {
	defer c.loadOnce.Do(func() { close(c.loaded) })

	key := StorageKey(c.policy.Namespace(), KeyCart)
	raw, found, err := c.storage.GetItem(ctx, key)
	if err != nil {
		c.logger.Printf("Warning: load %s failed: %v (keeping current cart)", key, err)
		return
	}
	if !found {
		return
	}
	products, err := domain.DecodeProducts(raw)
	if err != nil {
		c.logger.Printf("Warning: load %s: %v (keeping current cart)", key, err)
		return
	}

	c.mu.Lock()
	if rev := c.revision; rev > 0 {
		c.mu.Unlock()
		c.logger.Printf("Warning: load %s finished after %d local change(s), discarding stored cart", key, rev)
		return
	}
	c.state = Replace(products)(c.state)
	snap := newSnapshot(c.revision, c.state)
	c.subject.publish(snap)
	c.mu.Unlock()

	c.logger.Printf("Loaded %d item(s) from %s", len(products), key)
}

// AddToCart adds one unit of item, or appends it with quantity 1.
func (c *CartStore) AddToCart(item domain.ProductInput) {
	c.apply(AddToCart(item), KeyCart, c.policy.PersistMode() == policy.PersistLegacy, item.ID)
}

// Increment adds one unit to the item with id. Unknown ids leave the cart unchanged.
// It reports whether id was in the cart when the change was applied.
func (c *CartStore) Increment(id string) bool {
	return c.apply(Increment(id), c.quantityKey(), false, id)
}

// Decrement removes one unit from the item with id according to the zero-quantity policy.
// It reports whether id was in the cart when the change was applied.
func (c *CartStore) Decrement(id string) bool {
	return c.apply(Decrement(id, c.policy.ZeroPolicy()), c.quantityKey(), false, id)
}

func (c *CartStore) quantityKey() string {
	if c.policy.PersistMode() == policy.PersistLegacy {
		return KeyProducts
	}
	return KeyCart
}

// apply commits fn against the latest state, publishes the result and queues a write
// of either the previous or the new cart under name. It reports whether id was present
// in the state fn was applied to.
func (c *CartStore) apply(fn Reducer, name string, persistPrevious bool, id string) bool {
	c.mu.Lock()
	prev := c.state
	matched := prev.IndexOf(id) >= 0
	c.state = fn(prev)
	c.revision++
	snap := newSnapshot(c.revision, c.state)

	toWrite := c.state
	if persistPrevious {
		toWrite = prev
	}
	value, err := domain.EncodeProducts(toWrite.Products)
	key := StorageKey(c.policy.Namespace(), name)
	if err != nil {
		c.logger.Printf("Warning: persist %s skipped: %v", key, err)
	} else {
		// Enqueue under the lock so queue order matches commit order.
		c.persist.enqueue(writeJob{key: key, value: value, items: len(toWrite.Products), revision: c.revision})
	}
	c.subject.publish(snap)
	c.mu.Unlock()
	return matched
}

// Products returns a copy of the current line items.
func (c *CartStore) Products() []domain.LineItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone().Products
}

// Snapshot returns the current cart with its revision and totals.
func (c *CartStore) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return newSnapshot(c.revision, c.state)
}

// Subscribe returns a subscription that first receives the current snapshot and then
// the latest snapshot after each change.
func (c *CartStore) Subscribe() *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subject.subscribe(newSnapshot(c.revision, c.state))
}

// Subscribers returns the number of active subscriptions.
func (c *CartStore) Subscribers() int {
	return c.subject.count()
}

// PersistStats reports persister counters.
func (c *CartStore) PersistStats() PersistStats {
	return c.persist.stats()
}

// Flush blocks until every write queued before the call has been attempted.
func (c *CartStore) Flush(ctx context.Context) error {
	return c.persist.flush(ctx)
}

// Close waits for queued writes (bounded by ctx), stops the persister and ends all subscriptions.
func (c *CartStore) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.persist.stop()
		err = c.persist.wait(ctx)
		c.subject.close()
	})
	return err
}

// SetNotifier sets the Triggerable poked after every successful storage write.
// It replaces any notifier given with WithNotifier.
func (c *CartStore) SetNotifier(n Triggerable) {
	c.mu.Lock()
	c.notifier = n
	c.mu.Unlock()
}

func (c *CartStore) afterWrite(revision uint64) {
	if err := TouchNotifySignal(c.policy.SignalFilePath(), revision); err != nil {
		c.logger.Printf("Warning: touch notify signal: %v", err)
	}
	c.mu.Lock()
	n := c.notifier
	c.mu.Unlock()
	if n != nil {
		n.Trigger()
	}
}
