package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lockplane/authcore/internal/flows"
)

// FederatedLogin resolves a provider-asserted identity to a local account,
// linking or creating one as needed, and returns a token pair directly.
func (e *Engine) FederatedLogin(ctx context.Context, identity FederatedIdentity) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	pair, err := flows.RunFederatedDirect(ctx, flowIdentity(identity), e.federatedDeps())
	if err != nil {
		return nil, err
	}
	return authResultFromPair(pair), nil
}

// FederatedLoginCode is [Engine.FederatedLogin] with delivery through a
// one-time code: the pre-minted pair is parked behind an opaque 30-second
// code suitable for a redirect URL, redeemable once via
// [Engine.ExchangeOAuthCode].
func (e *Engine) FederatedLoginCode(ctx context.Context, identity FederatedIdentity) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	if e.broker == nil {
		return "", ErrEngineNotReady
	}
	return flows.RunFederatedLogin(ctx, flowIdentity(identity), e.federatedDeps())
}

// ExchangeOAuthCode redeems a one-time code for its token pair. Unknown,
// used, and expired codes are indistinguishable.
func (e *Engine) ExchangeOAuthCode(ctx context.Context, code string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.broker == nil {
		return nil, ErrEngineNotReady
	}

	record, err := e.broker.Redeem(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCodeInvalidOrExpired) {
			e.metricInc(MetricOAuthCodeRejected)
			e.emitAudit(ctx, auditEventOAuthCodeRejected, false, "", err, nil)
		}
		return nil, err
	}

	account, err := e.accounts.GetByID(ctx, record.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrCodeInvalidOrExpired
		}
		return nil, err
	}

	e.metricInc(MetricOAuthCodeRedeemed)
	e.emitAudit(ctx, auditEventOAuthCodeRedeemed, true, account.ID, nil, nil)

	return &AuthResult{
		AccountID:    account.ID,
		Email:        account.Email,
		Role:         account.Role,
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		ExpiresIn:    int64(e.config.JWT.AccessTTL / time.Second),
	}, nil
}

func flowIdentity(identity FederatedIdentity) flows.FederatedIdentityRecord {
	return flows.FederatedIdentityRecord{
		Provider:   identity.Provider,
		ProviderID: identity.ProviderID,
		Email:      identity.Email,
		Name:       identity.Name,
	}
}

func (e *Engine) federatedDeps() flows.FederatedDeps {
	return flows.FederatedDeps{
		DefaultRole: e.config.Account.DefaultRole,
		CodeTTL:     e.config.OAuth.CodeTTL,

		Now:     e.now,
		NewID:   uuid.NewString,
		NewCode: newOpaqueCode,

		GetByProvider: func(ctx context.Context, provider, providerID string) (*flows.AccountRecord, error) {
			account, err := e.accounts.GetByProvider(ctx, provider, providerID)
			if err != nil {
				return nil, err
			}
			record := flowAccount(account)
			return &record, nil
		},
		GetByEmail: func(ctx context.Context, email string) (*flows.AccountRecord, error) {
			account, err := e.accounts.GetByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			record := flowAccount(account)
			return &record, nil
		},
		IsNotFound: func(err error) bool { return errors.Is(err, ErrNotFound) },

		LinkProvider: e.accounts.LinkProvider,
		CreateAccount: func(ctx context.Context, account flows.AccountRecord, provider, providerID string, createdAt time.Time) error {
			return e.accounts.Create(ctx, Account{
				ID:            account.ID,
				Email:         account.Email,
				Role:          account.Role,
				Provider:      provider,
				ProviderID:    providerID,
				EmailVerified: account.EmailVerified,
				CreatedAt:     createdAt,
			})
		},

		IssueTokens: e.issueTokens,
		StoreCode: func(ctx context.Context, code string, pair flows.TokenPairRecord, _ time.Time) error {
			return e.broker.Store(ctx, code, pair.AccountID, pair.AccessToken, pair.RefreshToken)
		},

		SendWelcome: func(ctx context.Context, email, name string) {
			if e.mailer == nil {
				return
			}
			if err := e.mailer.SendWelcome(ctx, email, name); err != nil {
				e.warn("welcome mail failed for %s: %v", email, err)
			}
		},

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,

		Metrics: flows.FederatedMetrics{
			Login:      int(MetricOAuthLogin),
			CodeIssued: int(MetricOAuthCodeIssued),
		},
		Events: flows.FederatedEvents{
			Login:      auditEventOAuthLogin,
			CodeIssued: auditEventOAuthCodeIssued,
		},
		Errors: flows.FederatedErrors{
			EngineNotReady: ErrEngineNotReady,
		},
	}
}
