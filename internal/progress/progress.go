// Package progress tracks per-session pipeline progress for callers that
// poll instead of passing a callback.
package progress

import (
	"sync"
	"time"
)

// DefaultTTL is how long a finished or abandoned session's last update is
// kept before eviction.
const DefaultTTL = 30 * time.Minute

// Update is the latest reported state of one analysis session.
type Update struct {
	Stage      string    `json:"stage"`
	Percent    int       `json:"percent"`
	Message    string    `json:"message,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
}

// Tracker holds progress keyed by session ID. Created at process start,
// passed by reference to whoever reports or reads progress. Entries older
// than the TTL are evicted lazily on access.
type Tracker struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]Update
	now      func() time.Time
}

// NewTracker creates a tracker with the given TTL; ttl <= 0 uses DefaultTTL.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		ttl:      ttl,
		sessions: make(map[string]Update),
		now:      time.Now,
	}
}

// Report records the latest stage and percent for a session.
func (t *Tracker) Report(sessionID, stage string, percent int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictExpired()
	t.sessions[sessionID] = Update{
		Stage:      stage,
		Percent:    percent,
		Message:    message,
		ReportedAt: t.now(),
	}
}

// Get returns the latest update for a session, if one is tracked.
func (t *Tracker) Get(sessionID string) (Update, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictExpired()
	u, ok := t.sessions[sessionID]
	return u, ok
}

// Forget drops a session immediately, ahead of its TTL.
func (t *Tracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
}

// Len returns the number of tracked sessions after eviction.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictExpired()
	return len(t.sessions)
}

// evictExpired removes stale entries. Caller holds the lock.
func (t *Tracker) evictExpired() {
	cutoff := t.now().Add(-t.ttl)
	for id, u := range t.sessions {
		if u.ReportedAt.Before(cutoff) {
			delete(t.sessions, id)
		}
	}
}
