package flows

import (
	"context"
	"time"
)

// LogoutMetrics carries the metric ids incremented by logout flows.
type LogoutMetrics struct {
	Logout         int
	LogoutAll      int
	SessionRevoked int
}

// LogoutEvents carries the audit event names emitted by logout flows.
type LogoutEvents struct {
	Logout    string
	LogoutAll string
}

// LogoutErrors carries the host's sentinel errors.
type LogoutErrors struct {
	EngineNotReady error
	TokenInvalid   error
}

// LogoutDeps captures everything the logout flows need.
type LogoutDeps struct {
	Now func() time.Time

	VerifyRefresh func(token string) (accountID string, err error)
	Digest        func(token string) string

	ClaimSession func(ctx context.Context, refreshTokenHash string, now time.Time) (*SessionRecord, error)
	IsNotFound   func(err error) bool

	RevokeAll func(ctx context.Context, accountID string, now time.Time) (int, error)

	MetricInc func(id int)
	EmitAudit func(ctx context.Context, event string, success bool, accountID string, err error, metadata func() map[string]string)

	Metrics LogoutMetrics
	Events  LogoutEvents
	Errors  LogoutErrors
}

// RunLogout revokes the session behind refreshToken. Logout is idempotent:
// a structurally valid token whose session is already revoked, expired, or
// unknown is a no-op.
func RunLogout(ctx context.Context, refreshToken string, deps LogoutDeps) error {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.VerifyRefresh == nil || deps.Digest == nil || deps.ClaimSession == nil || deps.IsNotFound == nil {
		return deps.Errors.EngineNotReady
	}

	accountID, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		return deps.Errors.TokenInvalid
	}

	session, err := deps.ClaimSession(ctx, deps.Digest(refreshToken), deps.Now())
	if err != nil {
		if !deps.IsNotFound(err) {
			return err
		}
		// Session already dead: nothing left to revoke.
		return nil
	}

	deps.MetricInc(deps.Metrics.Logout)
	deps.MetricInc(deps.Metrics.SessionRevoked)
	deps.EmitAudit(ctx, deps.Events.Logout, true, accountID, nil, func() map[string]string {
		return map[string]string{"session": session.ID}
	})
	return nil
}

// RunLogoutAll revokes every live session of an account and reports the count.
func RunLogoutAll(ctx context.Context, accountID string, deps LogoutDeps) (int, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.RevokeAll == nil {
		return 0, deps.Errors.EngineNotReady
	}

	n, err := deps.RevokeAll(ctx, accountID, deps.Now())
	if err != nil {
		return 0, err
	}

	deps.MetricInc(deps.Metrics.LogoutAll)
	for i := 0; i < n; i++ {
		deps.MetricInc(deps.Metrics.SessionRevoked)
	}
	deps.EmitAudit(ctx, deps.Events.LogoutAll, true, accountID, nil, nil)
	return n, nil
}
