package flows

import (
	"context"
	"time"
)

// RegisterMetrics carries the metric ids incremented by the register flow.
type RegisterMetrics struct {
	Success   int
	Duplicate int
}

// RegisterEvents carries the audit event names emitted by the register flow.
type RegisterEvents struct {
	Success   string
	Duplicate string
}

// RegisterErrors carries the host's sentinel errors.
type RegisterErrors struct {
	EngineNotReady error
	Duplicate      error
	PasswordPolicy error
}

// RegisterDeps captures everything the register flow needs from the engine.
type RegisterDeps struct {
	DefaultRole string

	Now   func() time.Time
	NewID func() string

	HashPassword  func(password string) (string, error)
	CreateAccount func(ctx context.Context, account AccountRecord, passwordHash string, createdAt time.Time) error
	IsDuplicate   func(err error) bool

	// StartVerification issues and mails an email-verification challenge.
	// Failures are logged, never returned; the account exists either way.
	StartVerification func(ctx context.Context, accountID, email string)

	IssueTokens func(ctx context.Context, account AccountRecord, now time.Time) (*TokenPairRecord, error)

	MetricInc func(id int)
	EmitAudit func(ctx context.Context, event string, success bool, accountID string, err error, metadata func() map[string]string)

	Metrics RegisterMetrics
	Events  RegisterEvents
	Errors  RegisterErrors
}

// RunRegister creates an account and signs it in. The returned pair lets the
// caller start a session immediately; email verification proceeds in the
// background.
func RunRegister(ctx context.Context, email, password, role string, deps RegisterDeps) (*TokenPairRecord, error) {
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
		deps.HashPassword == nil ||
		deps.CreateAccount == nil ||
		deps.IsDuplicate == nil ||
		deps.IssueTokens == nil {
		return nil, deps.Errors.EngineNotReady
	}

	now := deps.Now()

	hash, err := deps.HashPassword(password)
	if err != nil {
		return nil, deps.Errors.PasswordPolicy
	}

	if role == "" {
		role = deps.DefaultRole
	}
	account := AccountRecord{
		ID:    deps.NewID(),
		Email: email,
		Role:  role,
	}

	if err := deps.CreateAccount(ctx, account, hash, now); err != nil {
		if deps.IsDuplicate(err) {
			deps.MetricInc(deps.Metrics.Duplicate)
			deps.EmitAudit(ctx, deps.Events.Duplicate, false, "", deps.Errors.Duplicate, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, deps.Errors.Duplicate
		}
		return nil, err
	}

	if deps.StartVerification != nil {
		deps.StartVerification(ctx, account.ID, email)
	}

	account.PasswordHash = hash
	pair, err := deps.IssueTokens(ctx, account, now)
	if err != nil {
		return nil, err
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, account.ID, nil, func() map[string]string {
		return map[string]string{"email": email}
	})
	return pair, nil
}
