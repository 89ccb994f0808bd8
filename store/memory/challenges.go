package memory

import (
	"context"
	"sync"
	"time"

	"github.com/lockplane/authcore"
)

type challengeRecord struct {
	challenge authcore.Challenge
	used      bool
}

// ChallengeStore is a mutex-guarded in-memory [authcore.ChallengeStore].
type ChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*challengeRecord
}

// NewChallengeStore creates an empty challenge store.
func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{challenges: make(map[string]*challengeRecord)}
}

func challengeKey(kind authcore.ChallengeKind, token string) string {
	return string(kind) + "\x00" + token
}

func (s *ChallengeStore) Insert(_ context.Context, challenge authcore.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[challengeKey(challenge.Kind, challenge.Token)] = &challengeRecord{challenge: challenge}
	return nil
}

func (s *ChallengeStore) Consume(_ context.Context, kind authcore.ChallengeKind, token string, now time.Time) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.challenges[challengeKey(kind, token)]
	if !ok || !now.Before(record.challenge.ExpiresAt) {
		return "", false, authcore.ErrNotFound
	}
	if record.used {
		return record.challenge.AccountID, true, nil
	}
	record.used = true
	return record.challenge.AccountID, false, nil
}

func (s *ChallengeStore) DeleteByAccount(_ context.Context, kind authcore.ChallengeKind, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, record := range s.challenges {
		if record.challenge.Kind == kind && record.challenge.AccountID == accountID {
			delete(s.challenges, key)
		}
	}
	return nil
}

func (s *ChallengeStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, record := range s.challenges {
		if !now.Before(record.challenge.ExpiresAt) {
			delete(s.challenges, key)
			n++
		}
	}
	return n, nil
}
