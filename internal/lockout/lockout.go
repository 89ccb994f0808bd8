// Package lockout applies the brute-force lock policy on top of the account
// store's atomic failure counter.
package lockout

import (
	"context"
	"time"
)

// Result reports the state of an account after a recorded failure.
type Result struct {
	Locked   bool
	UnlockAt time.Time
}

// Guard binds the lock policy to storage callbacks. The storage layer owns
// atomicity of the increment; Guard owns the thresholds.
type Guard struct {
	MaxAttempts int
	LockFor     time.Duration

	// RecordFailure must atomically increment the account's failure counter
	// and set the lock when the threshold is reached, returning the lock
	// expiry when the account is locked.
	RecordFailure func(ctx context.Context, accountID string, maxAttempts int, lockFor time.Duration, now time.Time) (*time.Time, error)
	// Reset clears the counter and lock after a successful authentication.
	Reset func(ctx context.Context, accountID string) error
}

// OnFailure records one failed attempt and reports whether the account is now
// locked.
func (g *Guard) OnFailure(ctx context.Context, accountID string, now time.Time) (Result, error) {
	if g == nil || g.RecordFailure == nil {
		return Result{}, nil
	}
	unlockAt, err := g.RecordFailure(ctx, accountID, g.MaxAttempts, g.LockFor, now)
	if err != nil {
		return Result{}, err
	}
	if unlockAt == nil {
		return Result{}, nil
	}
	return Result{Locked: true, UnlockAt: *unlockAt}, nil
}

// OnSuccess clears the account's failure state.
func (g *Guard) OnSuccess(ctx context.Context, accountID string) error {
	if g == nil || g.Reset == nil {
		return nil
	}
	return g.Reset(ctx, accountID)
}
