package app

import (
	"sync"

	"github.com/gomarketplace/cartd/internal/domain"
)

// Snapshot is an immutable view of the cart at one revision.
type Snapshot struct {
	Revision      uint64            `json:"revision"`
	Products      []domain.LineItem `json:"products"`
	TotalQuantity int               `json:"total_quantity"`
	Subtotal      float64           `json:"subtotal"`
}

func newSnapshot(rev uint64, s domain.CartState) Snapshot {
	c := s.Clone()
	return Snapshot{
		Revision:      rev,
		Products:      c.Products,
		TotalQuantity: c.TotalQuantity(),
		Subtotal:      c.Subtotal(),
	}
}

// Subscription delivers cart snapshots until Unsubscribe is called.
// C holds at most one pending snapshot; a slow reader skips straight to the latest.
type Subscription struct {
	C <-chan Snapshot

	ch      chan Snapshot
	subject *subject
	once    sync.Once
}

// Unsubscribe stops delivery and closes C. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.subject.remove(s)
	})
}

// subject fans out snapshots to subscribers.
type subject struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func newSubject() *subject {
	return &subject{subs: make(map[*Subscription]struct{})}
}

func (s *subject) subscribe(initial Snapshot) *Subscription {
	ch := make(chan Snapshot, 1)
	sub := &Subscription{C: ch, ch: ch, subject: s}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return sub
	}
	ch <- initial
	s.subs[sub] = struct{}{}
	return sub
}

func (s *subject) remove(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; !ok {
		return
	}
	delete(s.subs, sub)
	close(sub.ch)
}

// publish never blocks: a pending, unread snapshot is replaced by snap.
func (s *subject) publish(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- snap
	}
}

func (s *subject) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for sub := range s.subs {
		close(sub.ch)
		delete(s.subs, sub)
	}
}

func (s *subject) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
