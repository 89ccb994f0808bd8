package flows

import (
	"context"
	"time"
)

// RefreshMetrics carries the metric ids incremented by the refresh flow.
type RefreshMetrics struct {
	Success        int
	Failure        int
	SessionRevoked int
}

// RefreshEvents carries the audit event names emitted by the refresh flow.
type RefreshEvents struct {
	Success string
	Invalid string
}

// RefreshErrors carries the host's sentinel errors.
type RefreshErrors struct {
	EngineNotReady error
	TokenInvalid   error
}

// RefreshDeps captures everything the refresh flow needs from the engine.
type RefreshDeps struct {
	Now func() time.Time

	// VerifyRefresh checks the signature, expiry and kind of the presented
	// token and returns the account id it was minted for.
	VerifyRefresh func(token string) (accountID string, err error)
	Digest        func(token string) string

	// ClaimSession atomically revokes the valid session for the hash and
	// returns it. Exactly one concurrent caller wins.
	ClaimSession func(ctx context.Context, refreshTokenHash string, now time.Time) (*SessionRecord, error)
	IsNotFound   func(err error) bool

	GetAccountByID func(ctx context.Context, id string) (*AccountRecord, error)

	IssueTokens func(ctx context.Context, account AccountRecord, now time.Time) (*TokenPairRecord, error)

	MetricInc func(id int)
	EmitAudit func(ctx context.Context, event string, success bool, accountID string, err error, metadata func() map[string]string)

	Metrics RefreshMetrics
	Events  RefreshEvents
	Errors  RefreshErrors
}

// RunRefresh rotates a refresh token: the presented token's session is
// revoked and a new pair is issued. A token whose session was already claimed
// fails verification, so replaying a rotated token yields nothing.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) (*TokenPairRecord, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.VerifyRefresh == nil ||
		deps.Digest == nil ||
		deps.ClaimSession == nil ||
		deps.IsNotFound == nil ||
		deps.GetAccountByID == nil ||
		deps.IssueTokens == nil {
		return nil, deps.Errors.EngineNotReady
	}

	now := deps.Now()

	accountID, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Invalid, false, "", deps.Errors.TokenInvalid, func() map[string]string {
			return map[string]string{"reason": "verification_failed"}
		})
		return nil, deps.Errors.TokenInvalid
	}

	session, err := deps.ClaimSession(ctx, deps.Digest(refreshToken), now)
	if err != nil {
		if !deps.IsNotFound(err) {
			return nil, err
		}
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Invalid, false, accountID, deps.Errors.TokenInvalid, func() map[string]string {
			return map[string]string{"reason": "session_gone"}
		})
		return nil, deps.Errors.TokenInvalid
	}
	deps.MetricInc(deps.Metrics.SessionRevoked)

	account, err := deps.GetAccountByID(ctx, session.AccountID)
	if err != nil {
		if !deps.IsNotFound(err) {
			return nil, err
		}
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Invalid, false, session.AccountID, deps.Errors.TokenInvalid, func() map[string]string {
			return map[string]string{"reason": "account_gone"}
		})
		return nil, deps.Errors.TokenInvalid
	}

	pair, err := deps.IssueTokens(ctx, *account, now)
	if err != nil {
		return nil, err
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, account.ID, nil, func() map[string]string {
		return map[string]string{"rotated_session": session.ID}
	})
	return pair, nil
}
