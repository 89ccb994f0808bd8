package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/lockplane/authcore/internal/flows"
)

// Login authenticates an email/password pair and returns a fresh token pair
// with its backing session.
//
// Unknown emails and wrong passwords are indistinguishable in both the error
// and the response timing: an unknown email burns a full-cost dummy hash
// comparison. A locked account returns [LockedError] carrying the unlock
// timestamp, even when the password was correct.
func (e *Engine) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	pair, err := flows.RunLogin(ctx, email, password, e.loginDeps())
	if err != nil {
		return nil, err
	}
	return authResultFromPair(pair), nil
}

func (e *Engine) loginDeps() flows.LoginDeps {
	return flows.LoginDeps{
		RequireVerified: e.config.Account.RequireVerifiedLogin,
		UpgradeOnLogin:  e.config.Account.UpgradeHashOnLogin,

		Now: e.now,

		GetAccountByEmail: func(ctx context.Context, email string) (*flows.AccountRecord, error) {
			account, err := e.accounts.GetByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			record := flowAccount(account)
			return &record, nil
		},
		IsNotFound: func(err error) bool { return errors.Is(err, ErrNotFound) },

		VerifyPassword:       e.hasher.Verify,
		VerifyDummy:          e.hasher.VerifyDummy,
		PasswordNeedsUpgrade: e.hasher.NeedsUpgrade,
		HashPassword:         e.hasher.Hash,
		UpdatePasswordHash:   e.accounts.UpdatePasswordHash,

		RecordFailure: func(ctx context.Context, accountID string, now time.Time) (bool, time.Time, error) {
			result, err := e.guard.OnFailure(ctx, accountID, now)
			if err != nil {
				return false, time.Time{}, err
			}
			return result.Locked, result.UnlockAt, nil
		},
		ResetFailures: e.guard.OnSuccess,

		IssueTokens: e.issueTokens,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Warn:      e.warn,

		Metrics: flows.LoginMetrics{
			Success:       int(MetricLoginSuccess),
			Failure:       int(MetricLoginFailure),
			LockedAttempt: int(MetricLoginLocked),
			AccountLocked: int(MetricAccountLocked),
		},
		Events: flows.LoginEvents{
			Success:       auditEventLoginSuccess,
			Failure:       auditEventLoginFailure,
			LockedAttempt: auditEventLoginLocked,
			AccountLocked: auditEventAccountLocked,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			Unverified:         ErrAccountUnverified,
			NotFound:           ErrNotFound,
			Locked:             func(unlockAt time.Time) error { return &LockedError{UnlockAt: unlockAt} },
		},
	}
}
