package authcore

import (
	"context"
	"errors"

	"github.com/lockplane/authcore/internal/flows"
	"github.com/lockplane/authcore/token"
)

// Logout revokes the session behind refreshToken. Logout is idempotent: a
// well-formed token whose session is already revoked, expired, or unknown is
// a no-op. Only a malformed or forged token returns ErrTokenInvalid.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunLogout(ctx, refreshToken, e.logoutDeps())
}

// LogoutAll revokes every live session of the account and reports how many
// were revoked. Zero is not an error.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	return flows.RunLogoutAll(ctx, accountID, e.logoutDeps())
}

func (e *Engine) logoutDeps() flows.LogoutDeps {
	return flows.LogoutDeps{
		Now: e.now,

		VerifyRefresh: e.verifyRefresh,
		Digest:        token.Digest,

		ClaimSession: e.claimSession,
		IsNotFound:   func(err error) bool { return errors.Is(err, ErrNotFound) },

		RevokeAll: e.sessions.RevokeAll,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,

		Metrics: flows.LogoutMetrics{
			Logout:         int(MetricLogout),
			LogoutAll:      int(MetricLogoutAll),
			SessionRevoked: int(MetricSessionRevoked),
		},
		Events: flows.LogoutEvents{
			Logout:    auditEventLogoutSession,
			LogoutAll: auditEventLogoutAll,
		},
		Errors: flows.LogoutErrors{
			EngineNotReady: ErrEngineNotReady,
			TokenInvalid:   ErrTokenInvalid,
		},
	}
}
