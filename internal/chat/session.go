// Package chat runs the crisis-aware support conversation.
package chat

import (
	"sync"
	"time"
)

// MaxHistory is the number of messages a Session keeps.
const MaxHistory = 20

// Role identifies who wrote a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Session is one caller's conversation. It is safe for concurrent use.
type Session struct {
	ID    string
	Owner string // client that created the session

	mu         sync.Mutex
	history    []Message
	lastActive time.Time
}

// NewSession returns an empty session last active at now.
func NewSession(id string, now time.Time) *Session {
	return &Session{ID: id, lastActive: now}
}

// Append records an exchange and trims the history to MaxHistory.
func (s *Session) Append(now time.Time, msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, msgs...)
	if over := len(s.history) - MaxHistory; over > 0 {
		s.history = append([]Message(nil), s.history[over:]...)
	}
	s.lastActive = now
}

// History returns a copy of the kept messages, oldest first.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.history...)
}

// Clear starts a new conversation in the same session.
func (s *Session) Clear() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

// LastActive returns the time of the last recorded exchange.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}
