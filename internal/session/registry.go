package session

import (
	"sync"
	"time"

	"github.com/intelligrade/intelligrade/internal/metrics"
)

type entry struct {
	session  Session
	lastSeen time.Time
}

// Registry holds live sessions by ID. Sessions not looked up for longer than
// the idle timeout are dropped the next time the registry prunes.
type Registry struct {
	idle time.Duration
	now  func() time.Time

	mu        sync.Mutex
	sessions  map[string]*entry
	lastPrune time.Time
}

// NewRegistry creates an empty registry. An idle timeout of zero keeps
// sessions until they are removed.
func NewRegistry(idle time.Duration) *Registry {
	return &Registry{
		idle:     idle,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Add stores s under its ID.
func (r *Registry) Add(s Session) {
	r.mu.Lock()
	now := r.now()
	r.pruneLocked(now, false)
	r.sessions[s.ID()] = &entry{session: s, lastSeen: now}
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
}

// Get returns the session with the given ID and marks it as used.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.pruneLocked(now, false)
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = now
	return e.session, true
}

// Remove destroys the session with the given ID. Unknown IDs are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
}

// Prune drops idle sessions now and returns how many were removed.
func (r *Registry) Prune() int {
	r.mu.Lock()
	removed := r.pruneLocked(r.now(), true)
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
	return removed
}

// pruneLocked runs at most once a minute unless forced.
func (r *Registry) pruneLocked(now time.Time, force bool) int {
	if r.idle <= 0 || (!force && now.Sub(r.lastPrune) < time.Minute) {
		return 0
	}
	removed := 0
	for id, e := range r.sessions {
		if now.Sub(e.lastSeen) > r.idle {
			delete(r.sessions, id)
			removed++
		}
	}
	r.lastPrune = now
	return removed
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
