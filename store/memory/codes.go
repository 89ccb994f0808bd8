package memory

import (
	"context"
	"sync"
	"time"

	"github.com/lockplane/authcore"
)

// CodeStore is a mutex-guarded in-memory [authcore.CodeStore]. Redeem deletes
// under the lock, so exactly one concurrent redeemer observes the code.
type CodeStore struct {
	mu    sync.Mutex
	codes map[string]*authcore.OneTimeCode
}

// NewCodeStore creates an empty code store.
func NewCodeStore() *CodeStore {
	return &CodeStore{codes: make(map[string]*authcore.OneTimeCode)}
}

func (s *CodeStore) Insert(_ context.Context, code authcore.OneTimeCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := code
	s.codes[code.Code] = &copied
	return nil
}

func (s *CodeStore) Redeem(_ context.Context, code string, now time.Time) (*authcore.OneTimeCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.codes[code]
	if !ok || !now.Before(record.ExpiresAt) {
		return nil, authcore.ErrNotFound
	}
	delete(s.codes, code)
	copied := *record
	return &copied, nil
}

func (s *CodeStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for code, record := range s.codes {
		if !now.Before(record.ExpiresAt) {
			delete(s.codes, code)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored codes.
func (s *CodeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}
