package flows

import (
	"context"
	"time"
)

// LoginMetrics carries the metric ids incremented by the login flow.
type LoginMetrics struct {
	Success       int
	Failure       int
	LockedAttempt int
	AccountLocked int
}

// LoginEvents carries the audit event names emitted by the login flow.
type LoginEvents struct {
	Success       string
	Failure       string
	LockedAttempt string
	AccountLocked string
}

// LoginErrors carries the host's sentinel errors.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	Unverified         error
	NotFound           error
	// Locked builds the host's typed lock error with the unlock timestamp.
	Locked func(unlockAt time.Time) error
}

// LoginDeps captures everything the login flow needs from the engine.
type LoginDeps struct {
	RequireVerified bool
	UpgradeOnLogin  bool

	Now func() time.Time

	GetAccountByEmail func(ctx context.Context, email string) (*AccountRecord, error)
	IsNotFound        func(err error) bool

	VerifyPassword       func(password, encodedHash string) (bool, error)
	VerifyDummy          func(password string)
	PasswordNeedsUpgrade func(encodedHash string) (bool, error)
	HashPassword         func(password string) (string, error)
	UpdatePasswordHash   func(ctx context.Context, accountID, encodedHash string) error

	// RecordFailure reports whether this failure tripped (or found) the lock.
	RecordFailure func(ctx context.Context, accountID string, now time.Time) (locked bool, unlockAt time.Time, err error)
	ResetFailures func(ctx context.Context, accountID string) error

	IssueTokens func(ctx context.Context, account AccountRecord, now time.Time) (*TokenPairRecord, error)

	MetricInc func(id int)
	EmitAudit func(ctx context.Context, event string, success bool, accountID string, err error, metadata func() map[string]string)
	Warn      func(format string, args ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin authenticates an email/password pair and issues a token pair.
//
// The password comparison always runs before the lock check, and unknown
// emails burn a dummy comparison, so response timing reveals neither account
// existence nor lock state.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (*TokenPairRecord, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.GetAccountByEmail == nil ||
		deps.IsNotFound == nil ||
		deps.VerifyPassword == nil ||
		deps.VerifyDummy == nil ||
		deps.IssueTokens == nil {
		return nil, deps.Errors.EngineNotReady
	}

	now := deps.Now()

	account, err := deps.GetAccountByEmail(ctx, email)
	if err != nil {
		if !deps.IsNotFound(err) {
			return nil, err
		}
		deps.VerifyDummy(password)
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{
				"email":  email,
				"reason": "unknown_email",
			}
		})
		return nil, deps.Errors.InvalidCredentials
	}

	ok, verifyErr := deps.VerifyPassword(password, account.PasswordHash)

	// The comparison above has already run, so checking the lock here leaks
	// nothing through timing.
	if account.LockedUntil != nil && now.Before(*account.LockedUntil) {
		deps.MetricInc(deps.Metrics.LockedAttempt)
		lockErr := deps.Errors.Locked(*account.LockedUntil)
		deps.EmitAudit(ctx, deps.Events.LockedAttempt, false, account.ID, lockErr, nil)
		return nil, lockErr
	}

	if verifyErr != nil || !ok {
		if deps.RecordFailure != nil {
			locked, unlockAt, recErr := deps.RecordFailure(ctx, account.ID, now)
			if recErr != nil {
				return nil, recErr
			}
			if locked {
				deps.MetricInc(deps.Metrics.AccountLocked)
				lockErr := deps.Errors.Locked(unlockAt)
				deps.EmitAudit(ctx, deps.Events.AccountLocked, false, account.ID, lockErr, func() map[string]string {
					return map[string]string{
						"email": email,
					}
				})
				return nil, lockErr
			}
		}
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, account.ID, deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{
				"email":  email,
				"reason": "password_mismatch",
			}
		})
		return nil, deps.Errors.InvalidCredentials
	}

	if deps.RequireVerified && !account.EmailVerified {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, account.ID, deps.Errors.Unverified, func() map[string]string {
			return map[string]string{
				"email":  email,
				"reason": "unverified",
			}
		})
		return nil, deps.Errors.Unverified
	}

	if deps.ResetFailures != nil {
		if err := deps.ResetFailures(ctx, account.ID); err != nil {
			deps.Warn("login failure counter reset failed for account %s: %v", account.ID, err)
		}
	}

	if deps.UpgradeOnLogin && deps.PasswordNeedsUpgrade != nil && deps.HashPassword != nil && deps.UpdatePasswordHash != nil {
		if needsUpgrade, err := deps.PasswordNeedsUpgrade(account.PasswordHash); err == nil && needsUpgrade {
			if upgraded, err := deps.HashPassword(password); err == nil {
				if err := deps.UpdatePasswordHash(ctx, account.ID, upgraded); err != nil {
					deps.Warn("password hash upgrade failed for account %s: %v", account.ID, err)
				}
			}
		}
	}

	pair, err := deps.IssueTokens(ctx, *account, now)
	if err != nil {
		return nil, err
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, account.ID, nil, nil)
	return pair, nil
}
