package app

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PersistStats counts persister outcomes since start.
type PersistStats struct {
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Pending int    `json:"pending"`
}

type writeJob struct {
	key      string
	value    string
	items    int
	revision uint64
	done     chan struct{} // flush marker when non-nil
}

// persister writes queued values to storage one at a time, in enqueue order.
// Storage calls have no timeout; failures are logged and dropped.
type persister struct {
	storage Storage
	logger  *log.Logger
	tracer  trace.Tracer
	after   func(revision uint64) // called after each successful write

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []writeJob
	stopped bool
	doneCh  chan struct{}

	written atomic.Uint64
	failed  atomic.Uint64
}

func newPersister(storage Storage, logger *log.Logger, tracer trace.Tracer, after func(uint64)) *persister {
	p := &persister{
		storage: storage,
		logger:  logger,
		tracer:  tracer,
		after:   after,
		doneCh:  make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// enqueue never blocks on storage.
func (p *persister) enqueue(job writeJob) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		p.logger.Printf("Warning: persister stopped, dropping write to %s", job.key)
		return
	}
	p.queue = append(p.queue, job)
	p.cond.Signal()
}

// run drains the queue until stop is called and the queue is empty.
func (p *persister) run() {
	defer close(p.doneCh)
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.stopped {
			p.mu.Unlock()
			return
		}
		job := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		if job.done != nil {
			close(job.done)
			continue
		}
		p.write(job)
	}
}

func (p *persister) write(job writeJob) {
	ctx, span := p.tracer.Start(context.Background(), "cart.persist",
		trace.WithAttributes(
			attribute.String("cart.key", job.key),
			attribute.Int("cart.items", job.items),
			attribute.Int64("cart.revision", int64(job.revision)),
		))
	defer span.End()

	if err := p.storage.SetItem(ctx, job.key, job.value); err != nil {
		p.failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Printf("Warning: persist %s failed: %v", job.key, err)
		return
	}
	p.written.Add(1)
	if p.after != nil {
		p.after(job.revision)
	}
}

// flush waits until every job enqueued before the call has been attempted.
func (p *persister) flush(ctx context.Context) error {
	done := make(chan struct{})
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return p.wait(ctx)
	}
	p.queue = append(p.queue, writeJob{done: done})
	p.cond.Signal()
	p.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop refuses new jobs; run exits once the queue drains.
func (p *persister) stop() {
	p.mu.Lock()
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *persister) wait(ctx context.Context) error {
	select {
	case <-p.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *persister) stats() PersistStats {
	p.mu.Lock()
	pending := 0
	for _, j := range p.queue {
		if j.done == nil {
			pending++
		}
	}
	p.mu.Unlock()
	return PersistStats{
		Written: p.written.Load(),
		Failed:  p.failed.Load(),
		Pending: pending,
	}
}
