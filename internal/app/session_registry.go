package app

import (
	"sort"
	"sync"
	"time"
)

// SessionInfo describes one connected MCP client session.
type SessionInfo struct {
	ID           string    `json:"id"`
	Client       string    `json:"client"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
}

// SessionRegistry tracks connected MCP client sessions. The notifier uses it to
// skip cart_update pushes when nobody is listening.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*SessionInfo // sessionID → info
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*SessionInfo)}
}

// AddSession records a session. Re-adding an ID updates its client name and keeps ConnectedAt.
func (r *SessionRegistry) AddSession(sessionID, client string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if s, ok := r.sessions[sessionID]; ok {
		s.Client = client
		s.LastActivity = now
		return
	}
	r.sessions[sessionID] = &SessionInfo{ID: sessionID, Client: client, ConnectedAt: now, LastActivity: now}
}

// TouchSession records activity for a session (call on each client message).
// It returns false when the session is not registered, e.g. after it was reaped.
func (r *SessionRegistry) TouchSession(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if ok {
		s.LastActivity = time.Now()
	}
	return ok
}

// RemoveSession unregisters a session (e.g. on disconnect).
func (r *SessionRegistry) RemoveSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// SessionIDs returns the connected session IDs in sorted order.
func (r *SessionRegistry) SessionIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Session returns a copy of the session's info.
func (r *SessionRegistry) Session(sessionID string) (SessionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return SessionInfo{}, false
	}
	return *s, true
}

// PruneIdle removes sessions with no activity since cutoff and returns them
// sorted by ID.
func (r *SessionRegistry) PruneIdle(cutoff time.Time) []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pruned []SessionInfo
	for id, s := range r.sessions {
		if s.LastActivity.Before(cutoff) {
			pruned = append(pruned, *s)
			delete(r.sessions, id)
		}
	}
	sort.Slice(pruned, func(i, j int) bool { return pruned[i].ID < pruned[j].ID })
	return pruned
}

// SessionCount returns the number of connected sessions.
func (r *SessionRegistry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// HasClients reports whether at least one session is connected.
func (r *SessionRegistry) HasClients() bool {
	return r.SessionCount() > 0
}
