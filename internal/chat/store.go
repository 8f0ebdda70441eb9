package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xzc516/fit5032-youthwell-project/internal/contentguard"
)

// SessionStore holds sessions in memory and expires idle ones.
type SessionStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionStore returns a store that expires sessions idle longer than ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns the live session with id. An expired session is removed and
// reported as missing.
func (st *SessionStore) Get(id string) (*Session, bool) {
	now := st.now()

	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, false
	}
	if contentguard.SessionExpired(s.LastActive(), now, st.ttl) {
		delete(st.sessions, id)
		return nil, false
	}
	s.touch(now)
	return s, true
}

// GetOrCreate returns owner's session for id, or a new one with a fresh ID
// when id is empty, unknown, expired or belongs to another owner.
func (st *SessionStore) GetOrCreate(owner, id string) *Session {
	if id != "" {
		if s, ok := st.Get(id); ok && s.Owner == owner {
			return s
		}
	}

	s := NewSession(uuid.NewString(), st.now())
	s.Owner = owner

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()

	return s
}

// Delete forgets a session.
func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Sweep removes every expired session and returns how many were removed.
func (st *SessionStore) Sweep() int {
	now := st.now()

	st.mu.Lock()
	defer st.mu.Unlock()

	n := 0
	for id, s := range st.sessions {
		if contentguard.SessionExpired(s.LastActive(), now, st.ttl) {
			delete(st.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored sessions, expired or not.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Run sweeps every interval until ctx is done.
func (st *SessionStore) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st.Sweep()
		}
	}
}
