package flows

import (
	"context"
	"time"
)

// FederatedIdentityRecord is the provider-asserted identity handed to the
// federated login flow.
type FederatedIdentityRecord struct {
	Provider   string
	ProviderID string
	Email      string
	Name       string
}

// FederatedMetrics carries the metric ids incremented by the federated flow.
type FederatedMetrics struct {
	Login      int
	CodeIssued int
}

// FederatedEvents carries the audit event names emitted by the federated flow.
type FederatedEvents struct {
	Login      string
	CodeIssued string
}

// FederatedErrors carries the host's sentinel errors.
type FederatedErrors struct {
	EngineNotReady error
}

// FederatedDeps captures everything the federated login flow needs.
type FederatedDeps struct {
	DefaultRole string
	CodeTTL     time.Duration

	Now     func() time.Time
	NewID   func() string
	NewCode func() (string, error)

	GetByProvider func(ctx context.Context, provider, providerID string) (*AccountRecord, error)
	GetByEmail    func(ctx context.Context, email string) (*AccountRecord, error)
	IsNotFound    func(err error) bool

	LinkProvider  func(ctx context.Context, accountID, provider, providerID string) error
	CreateAccount func(ctx context.Context, account AccountRecord, provider, providerID string, createdAt time.Time) error

	IssueTokens func(ctx context.Context, account AccountRecord, now time.Time) (*TokenPairRecord, error)
	// StoreCode persists the one-time code carrying the pre-minted pair.
	StoreCode func(ctx context.Context, code string, pair TokenPairRecord, expiresAt time.Time) error

	SendWelcome func(ctx context.Context, email, name string)

	MetricInc func(id int)
	EmitAudit func(ctx context.Context, event string, success bool, accountID string, err error, metadata func() map[string]string)

	Metrics FederatedMetrics
	Events  FederatedEvents
	Errors  FederatedErrors
}

// RunFederatedLogin resolves a provider identity to a local account, creating
// or linking as needed, and returns a one-time code redeemable for the token
// pair. The code, not the tokens, goes on the redirect URL.
func RunFederatedLogin(ctx context.Context, identity FederatedIdentityRecord, deps FederatedDeps) (string, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.NewID == nil ||
		deps.NewCode == nil ||
		deps.GetByProvider == nil ||
		deps.GetByEmail == nil ||
		deps.IsNotFound == nil ||
		deps.LinkProvider == nil ||
		deps.CreateAccount == nil ||
		deps.IssueTokens == nil ||
		deps.StoreCode == nil {
		return "", deps.Errors.EngineNotReady
	}

	now := deps.Now()

	account, err := resolveFederatedAccount(ctx, identity, now, deps)
	if err != nil {
		return "", err
	}

	pair, err := deps.IssueTokens(ctx, *account, now)
	if err != nil {
		return "", err
	}
	deps.MetricInc(deps.Metrics.Login)
	deps.EmitAudit(ctx, deps.Events.Login, true, account.ID, nil, func() map[string]string {
		return map[string]string{"provider": identity.Provider}
	})

	code, err := deps.NewCode()
	if err != nil {
		return "", err
	}
	if err := deps.StoreCode(ctx, code, *pair, now.Add(deps.CodeTTL)); err != nil {
		return "", err
	}
	deps.MetricInc(deps.Metrics.CodeIssued)
	deps.EmitAudit(ctx, deps.Events.CodeIssued, true, account.ID, nil, nil)

	return code, nil
}

// RunFederatedDirect resolves a provider identity like [RunFederatedLogin]
// but hands the token pair straight back instead of parking it behind a
// one-time code. Used when the caller holds the response channel itself.
func RunFederatedDirect(ctx context.Context, identity FederatedIdentityRecord, deps FederatedDeps) (*TokenPairRecord, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.NewID == nil ||
		deps.GetByProvider == nil ||
		deps.GetByEmail == nil ||
		deps.IsNotFound == nil ||
		deps.LinkProvider == nil ||
		deps.CreateAccount == nil ||
		deps.IssueTokens == nil {
		return nil, deps.Errors.EngineNotReady
	}

	now := deps.Now()

	account, err := resolveFederatedAccount(ctx, identity, now, deps)
	if err != nil {
		return nil, err
	}

	pair, err := deps.IssueTokens(ctx, *account, now)
	if err != nil {
		return nil, err
	}
	deps.MetricInc(deps.Metrics.Login)
	deps.EmitAudit(ctx, deps.Events.Login, true, account.ID, nil, func() map[string]string {
		return map[string]string{"provider": identity.Provider}
	})
	return pair, nil
}

// resolveFederatedAccount maps a provider identity onto a local account:
// provider link wins, then email match (linked in place), then a fresh
// pre-verified account. Provider emails are trusted as verified because the
// provider asserted them.
func resolveFederatedAccount(ctx context.Context, identity FederatedIdentityRecord, now time.Time, deps FederatedDeps) (*AccountRecord, error) {
	account, err := deps.GetByProvider(ctx, identity.Provider, identity.ProviderID)
	switch {
	case err == nil:
		return account, nil
	case !deps.IsNotFound(err):
		return nil, err
	}

	account, err = deps.GetByEmail(ctx, identity.Email)
	switch {
	case err == nil:
		if err := deps.LinkProvider(ctx, account.ID, identity.Provider, identity.ProviderID); err != nil {
			return nil, err
		}
		return account, nil
	case !deps.IsNotFound(err):
		return nil, err
	}

	account = &AccountRecord{
		ID:            deps.NewID(),
		Email:         identity.Email,
		Role:          deps.DefaultRole,
		EmailVerified: true,
	}
	if err := deps.CreateAccount(ctx, *account, identity.Provider, identity.ProviderID, now); err != nil {
		return nil, err
	}
	if deps.SendWelcome != nil {
		deps.SendWelcome(ctx, identity.Email, identity.Name)
	}
	return account, nil
}
