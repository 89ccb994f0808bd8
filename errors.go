package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned by Login for a wrong password or an
	// unknown email. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is the sentinel matched by [LockedError] via errors.Is.
	ErrAccountLocked = errors.New("account locked")
	// ErrRateLimited is the sentinel matched by [RateLimitError] via errors.Is.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrTokenInvalid covers malformed, expired, wrong-kind and bad-signature
	// tokens, and refresh tokens whose backing session is gone.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrCodeInvalidOrExpired is returned for one-time codes that are unknown,
	// already redeemed, or past their TTL. The cases are indistinguishable.
	ErrCodeInvalidOrExpired = errors.New("authorization code invalid or expired")
	// ErrDuplicateAccount is returned by Register when the email is taken.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrAccountUnverified is returned by Login when verification is required
	// and the account has not confirmed its email.
	ErrAccountUnverified = errors.New("account email not verified")
	// ErrChallengeInvalid is returned for unknown, expired, or (for password
	// reset) already-consumed verification and reset tokens.
	ErrChallengeInvalid = errors.New("challenge token invalid or expired")
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPasswordPolicy is returned when a new password fails the hasher's
	// minimum requirements.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrEngineNotReady is returned when a required dependency was not wired.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrStoreUnavailable wraps backend transport failures.
	ErrStoreUnavailable = errors.New("store backend unavailable")
)

// LockedError reports a login attempt against a locked account. It carries the
// unlock timestamp so callers can surface backoff metadata. Matches
// [ErrAccountLocked] via errors.Is.
type LockedError struct {
	UnlockAt time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.UnlockAt.UTC().Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RateLimitError reports a throttled request with the limit that applied and
// how long until the bucket refills. Matches [ErrRateLimited] via errors.Is.
type RateLimitError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit of %d exceeded", e.Limit)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
