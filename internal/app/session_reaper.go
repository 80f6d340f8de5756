package app

import (
	"context"
	"io"
	"log"
	"time"
)

const (
	// defaultReapInterval is how often the reaper looks for idle sessions.
	defaultReapInterval = time.Minute

	// defaultSessionIdleTimeout is how long a session may go without sending
	// anything before it is dropped from the registry.
	defaultSessionIdleTimeout = 30 * time.Minute
)

// SessionReaper drops sessions that stopped talking to the server without
// unregistering (streamable HTTP clients that simply go away). Once reaped,
// a session no longer counts towards HasClients and receives no pushes.
type SessionReaper struct {
	registry    *SessionRegistry
	logger      *log.Logger
	interval    time.Duration
	idleTimeout time.Duration
	onReap      func(SessionInfo)
	now         func() time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// ReaperOption configures the session reaper.
type ReaperOption func(*SessionReaper)

// WithReapInterval sets how often the reaper runs (default 1m).
func WithReapInterval(d time.Duration) ReaperOption {
	return func(r *SessionReaper) { r.interval = d }
}

// WithSessionIdleTimeout sets how long a session may stay silent before it is reaped (default 30m).
func WithSessionIdleTimeout(d time.Duration) ReaperOption {
	return func(r *SessionReaper) { r.idleTimeout = d }
}

// WithOnReap sets a callback run for every reaped session, e.g. to release its transport handle.
func WithOnReap(fn func(SessionInfo)) ReaperOption {
	return func(r *SessionReaper) { r.onReap = fn }
}

// NewSessionReaper creates a reaper for registry.
func NewSessionReaper(registry *SessionRegistry, logger *log.Logger, opts ...ReaperOption) *SessionReaper {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	r := &SessionReaper{
		registry:    registry,
		logger:      logger,
		interval:    defaultReapInterval,
		idleTimeout: defaultSessionIdleTimeout,
		now:         time.Now,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start runs the reaper loop. Returns when ctx is cancelled or Stop is called.
func (r *SessionReaper) Start(ctx context.Context) {
	defer close(r.doneCh)
	r.logger.Printf("SessionReaper: started (interval=%s, idle_timeout=%s)", r.interval, r.idleTimeout)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.reap()
		}
	}
}

// Stop signals the reaper to stop and waits for Start to return.
func (r *SessionReaper) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

// CheckOnce runs one reap cycle and returns the number of sessions removed.
func (r *SessionReaper) CheckOnce() int {
	return r.reap()
}

func (r *SessionReaper) reap() int {
	now := r.now()
	pruned := r.registry.PruneIdle(now.Add(-r.idleTimeout))
	for _, s := range pruned {
		r.logger.Printf("SessionReaper: dropping idle session %s (client=%q, idle %s)",
			s.ID, s.Client, now.Sub(s.LastActivity).Round(time.Second))
		if r.onReap != nil {
			r.onReap(s)
		}
	}
	return len(pruned)
}
