package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/lockplane/authcore/internal/flows"
	"github.com/lockplane/authcore/token"
)

// Refresh rotates a refresh token: the presented token's session is revoked
// and a new pair with a new session is issued. Of N concurrent refreshes of
// one token exactly one succeeds; the rest get ErrTokenInvalid. A rotated or
// revoked token can never be replayed.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	pair, err := flows.RunRefresh(ctx, refreshToken, flows.RefreshDeps{
		Now: e.now,

		VerifyRefresh: e.verifyRefresh,
		Digest:        token.Digest,

		ClaimSession: e.claimSession,
		IsNotFound:   func(err error) bool { return errors.Is(err, ErrNotFound) },

		GetAccountByID: func(ctx context.Context, id string) (*flows.AccountRecord, error) {
			account, err := e.accounts.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			record := flowAccount(account)
			return &record, nil
		},

		IssueTokens: e.issueTokens,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,

		Metrics: flows.RefreshMetrics{
			Success:        int(MetricRefreshSuccess),
			Failure:        int(MetricRefreshFailure),
			SessionRevoked: int(MetricSessionRevoked),
		},
		Events: flows.RefreshEvents{
			Success: auditEventRefreshSuccess,
			Invalid: auditEventRefreshInvalid,
		},
		Errors: flows.RefreshErrors{
			EngineNotReady: ErrEngineNotReady,
			TokenInvalid:   ErrTokenInvalid,
		},
	})
	if err != nil {
		return nil, err
	}
	return authResultFromPair(pair), nil
}

// verifyRefresh checks signature, expiry and kind, returning the account id
// the token was minted for.
func (e *Engine) verifyRefresh(tokenStr string) (string, error) {
	claims, err := e.codec.Verify(tokenStr, token.TypeRefresh)
	if err != nil {
		return "", ErrTokenInvalid
	}
	return claims.UID, nil
}

func (e *Engine) claimSession(ctx context.Context, refreshTokenHash string, now time.Time) (*flows.SessionRecord, error) {
	session, err := e.sessions.Claim(ctx, refreshTokenHash, now)
	if err != nil {
		return nil, err
	}
	return &flows.SessionRecord{
		ID:        session.ID,
		AccountID: session.AccountID,
		IP:        session.IP,
		UserAgent: session.UserAgent,
	}, nil
}
