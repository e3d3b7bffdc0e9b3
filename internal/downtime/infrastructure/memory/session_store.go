package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultSessionTTL = 30 * time.Minute

// Session is the state of one user's multi-step conversation.
type Session struct {
	ID        string
	Flow      string
	Step      string
	Data      map[string]string
	UpdatedAt time.Time
}

// Get returns a value collected earlier in the conversation.
func (s *Session) Get(key string) string {
	if s == nil || s.Data == nil {
		return ""
	}
	return s.Data[key]
}

// Set stores a collected value.
func (s *Session) Set(key, value string) {
	if s.Data == nil {
		s.Data = make(map[string]string)
	}
	s.Data[key] = value
}

// SessionStore is an in-memory conversation store keyed by user id.
// Sessions idle longer than the TTL are dropped on access.
type SessionStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[int64]*Session
}

// NewSessionStore constructs a store. A non-positive ttl uses the default.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionStore{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[int64]*Session),
	}
}

// Start replaces any session of userID with a new one at step of flow.
func (s *SessionStore) Start(userID int64, flow, step string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := &Session{
		ID:        uuid.NewString(),
		Flow:      flow,
		Step:      step,
		Data:      make(map[string]string),
		UpdatedAt: s.now(),
	}
	s.items[userID] = session
	return copySession(session)
}

// Get returns a copy of the live session of userID.
func (s *SessionStore) Get(userID int64) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.items[userID]
	if !ok {
		return nil, false
	}
	if s.now().Sub(session.UpdatedAt) > s.ttl {
		delete(s.items, userID)
		return nil, false
	}
	return copySession(session), true
}

// Save stores session for userID when it is still the live one.
// It reports false when the session was replaced or cleared meanwhile.
func (s *SessionStore) Save(userID int64, session *Session) bool {
	if session == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[userID]
	if !ok || current.ID != session.ID {
		return false
	}
	next := copySession(session)
	next.UpdatedAt = s.now()
	s.items[userID] = next
	return true
}

// Clear ends the session of userID.
func (s *SessionStore) Clear(userID int64) {
	s.mu.Lock()
	delete(s.items, userID)
	s.mu.Unlock()
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func copySession(session *Session) *Session {
	out := *session
	out.Data = make(map[string]string, len(session.Data))
	for k, v := range session.Data {
		out.Data[k] = v
	}
	return &out
}
