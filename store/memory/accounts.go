package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lockplane/authcore"
)

// AccountStore is a mutex-guarded in-memory [authcore.AccountStore].
type AccountStore struct {
	mu         sync.Mutex
	byID       map[string]*authcore.Account
	byEmail    map[string]string
	byProvider map[string]string
}

// NewAccountStore creates an empty account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		byID:       make(map[string]*authcore.Account),
		byEmail:    make(map[string]string),
		byProvider: make(map[string]string),
	}
}

func providerKey(provider, providerID string) string {
	return provider + "\x00" + providerID
}

func (s *AccountStore) Create(_ context.Context, account authcore.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(account.Email)
	if _, ok := s.byEmail[email]; ok {
		return authcore.ErrDuplicateAccount
	}
	copied := account
	// The stored email is the canonical lowercase form.
	copied.Email = email
	s.byID[account.ID] = &copied
	s.byEmail[email] = account.ID
	if account.Provider != "" {
		s.byProvider[providerKey(account.Provider, account.ProviderID)] = account.ID
	}
	return nil
}

func (s *AccountStore) GetByID(_ context.Context, id string) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

func (s *AccountStore) GetByEmail(_ context.Context, email string) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, authcore.ErrNotFound
	}
	return s.getLocked(id)
}

func (s *AccountStore) GetByProvider(_ context.Context, provider, providerID string) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byProvider[providerKey(provider, providerID)]
	if !ok {
		return nil, authcore.ErrNotFound
	}
	return s.getLocked(id)
}

func (s *AccountStore) LinkProvider(_ context.Context, id, provider, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return authcore.ErrNotFound
	}
	account.Provider = provider
	account.ProviderID = providerID
	s.byProvider[providerKey(provider, providerID)] = id
	return nil
}

func (s *AccountStore) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return authcore.ErrNotFound
	}
	account.PasswordHash = passwordHash
	return nil
}

func (s *AccountStore) MarkEmailVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return authcore.ErrNotFound
	}
	account.EmailVerified = true
	return nil
}

func (s *AccountStore) RecordLoginFailure(_ context.Context, id string, maxAttempts int, lockFor time.Duration, now time.Time) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return nil, authcore.ErrNotFound
	}

	// A live lock absorbs the failure without advancing the counter.
	if account.LockedUntil != nil && now.Before(*account.LockedUntil) {
		until := *account.LockedUntil
		return &until, nil
	}

	account.FailedLogins++
	failedAt := now
	account.LastFailedLogin = &failedAt
	if account.FailedLogins >= maxAttempts {
		until := now.Add(lockFor)
		account.LockedUntil = &until
		copied := until
		return &copied, nil
	}
	return nil, nil
}

func (s *AccountStore) ResetLoginFailures(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return authcore.ErrNotFound
	}
	account.FailedLogins = 0
	account.LastFailedLogin = nil
	account.LockedUntil = nil
	return nil
}

// getLocked copies the record so callers cannot mutate store state.
func (s *AccountStore) getLocked(id string) (*authcore.Account, error) {
	account, ok := s.byID[id]
	if !ok {
		return nil, authcore.ErrNotFound
	}
	copied := *account
	if account.LockedUntil != nil {
		until := *account.LockedUntil
		copied.LockedUntil = &until
	}
	if account.LastFailedLogin != nil {
		at := *account.LastFailedLogin
		copied.LastFailedLogin = &at
	}
	return &copied, nil
}
