package memory

import (
	"context"
	"sync"
	"time"

	"github.com/lockplane/authcore"
)

// SessionStore is a mutex-guarded in-memory [authcore.SessionStore]. The
// single mutex makes Claim trivially atomic.
type SessionStore struct {
	mu     sync.Mutex
	byID   map[string]*authcore.Session
	byHash map[string]string
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		byID:   make(map[string]*authcore.Session),
		byHash: make(map[string]string),
	}
}

func (s *SessionStore) Create(_ context.Context, session authcore.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := session
	s.byID[session.ID] = &copied
	s.byHash[session.RefreshTokenHash] = session.ID
	return nil
}

func (s *SessionStore) FindValid(_ context.Context, refreshTokenHash string, now time.Time) (*authcore.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.validByHashLocked(refreshTokenHash, now)
	if session == nil {
		return nil, authcore.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *SessionStore) Claim(_ context.Context, refreshTokenHash string, now time.Time) (*authcore.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.validByHashLocked(refreshTokenHash, now)
	if session == nil {
		return nil, authcore.ErrNotFound
	}

	copied := *session
	revokedAt := now
	session.RevokedAt = &revokedAt
	return &copied, nil
}

func (s *SessionStore) Revoke(_ context.Context, sessionID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byID[sessionID]
	if !ok || session.RevokedAt != nil {
		return false, nil
	}
	revokedAt := now
	session.RevokedAt = &revokedAt
	return true, nil
}

func (s *SessionStore) RevokeAll(_ context.Context, accountID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, session := range s.byID {
		if session.AccountID == accountID && session.RevokedAt == nil && now.Before(session.ExpiresAt) {
			revokedAt := now
			session.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

func (s *SessionStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, session := range s.byID {
		if session.RevokedAt == nil && !now.Before(session.ExpiresAt) {
			s.deleteLocked(id, session)
			n++
		}
	}
	return n, nil
}

func (s *SessionStore) SweepRevokedBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, session := range s.byID {
		if session.RevokedAt != nil && session.RevokedAt.Before(cutoff) {
			s.deleteLocked(id, session)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored sessions, live or revoked.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *SessionStore) validByHashLocked(hash string, now time.Time) *authcore.Session {
	id, ok := s.byHash[hash]
	if !ok {
		return nil
	}
	session, ok := s.byID[id]
	if !ok || session.RevokedAt != nil || !now.Before(session.ExpiresAt) {
		return nil
	}
	return session
}

func (s *SessionStore) deleteLocked(id string, session *authcore.Session) {
	delete(s.byID, id)
	delete(s.byHash, session.RefreshTokenHash)
}
