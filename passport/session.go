package passport

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"fides.dev/dpp/credential"
)

// DefaultSessionTTL bounds the window between prepare and finalize.
const DefaultSessionTTL = 10 * time.Minute

// Session correlates a prepare call with its finalize call. It lives only in
// the session store and is deleted on consumption.
type Session struct {
	ID           string
	Input        CreateInput
	Document     *Document
	Claims       *credential.Claims
	SigningInput string

	IssuerDID       string
	IssuerPublicKey []byte
	Managed         bool
	VerificationKey []byte

	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionStore holds prepared sessions between requests. Take must be a
// single logical fetch-and-delete: a session is consumable by at most one
// finalize call.
type SessionStore interface {
	Put(s *Session)
	// Take removes and returns the session, or (nil, false) when it is
	// unknown, already consumed or expired.
	Take(id string, now time.Time) (*Session, bool)
	// Sweep drops expired sessions and reports how many were removed.
	Sweep(now time.Time) int
}

// MemSessionStore is the process-local SessionStore. Expiry is passive:
// checked on Take and on explicit Sweep, never by a timer.
type MemSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemSessionStore() *MemSessionStore {
	return &MemSessionStore{sessions: make(map[string]*Session)}
}

func (s *MemSessionStore) Put(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

func (s *MemSessionStore) Take(id string, now time.Time) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	delete(s.sessions, id)
	if now.After(session.ExpiresAt) {
		return nil, false
	}
	return session, true
}

func (s *MemSessionStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func newSessionID() string {
	return uuid.NewString()
}
