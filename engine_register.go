package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lockplane/authcore/internal/flows"
)

// Register creates an account and signs it in. The email-verification
// challenge is issued and mailed in the background of the call: a mail
// failure never fails the registration.
func (e *Engine) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	pair, err := flows.RunRegister(ctx, email, password, "", flows.RegisterDeps{
		DefaultRole: e.config.Account.DefaultRole,

		Now:   e.now,
		NewID: uuid.NewString,

		HashPassword: e.hasher.Hash,
		CreateAccount: func(ctx context.Context, account flows.AccountRecord, passwordHash string, createdAt time.Time) error {
			return e.accounts.Create(ctx, Account{
				ID:           account.ID,
				Email:        account.Email,
				PasswordHash: passwordHash,
				Role:         account.Role,
				CreatedAt:    createdAt,
			})
		},
		IsDuplicate: func(err error) bool { return errors.Is(err, ErrDuplicateAccount) },

		StartVerification: e.startVerification,

		IssueTokens: e.issueTokens,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,

		Metrics: flows.RegisterMetrics{
			Success:   int(MetricRegisterSuccess),
			Duplicate: int(MetricRegisterDuplicate),
		},
		Events: flows.RegisterEvents{
			Success:   auditEventRegisterSuccess,
			Duplicate: auditEventRegisterDuplicate,
		},
		Errors: flows.RegisterErrors{
			EngineNotReady: ErrEngineNotReady,
			Duplicate:      ErrDuplicateAccount,
			PasswordPolicy: ErrPasswordPolicy,
		},
	})
	if err != nil {
		return nil, err
	}
	return authResultFromPair(pair), nil
}

// startVerification issues a fresh email-verification challenge and mails
// the link. Best-effort: failures are logged, the caller's operation has
// already succeeded.
func (e *Engine) startVerification(ctx context.Context, accountID, email string) {
	if e.challenges == nil {
		return
	}

	challengeToken := uuid.NewString()
	now := e.now()
	err := e.challenges.Insert(ctx, Challenge{
		Token:     challengeToken,
		Kind:      ChallengeVerifyEmail,
		AccountID: accountID,
		ExpiresAt: now.Add(e.config.Verification.VerifyTokenTTL),
		CreatedAt: now,
	})
	if err != nil {
		e.warn("verification challenge insert failed for account %s: %v", accountID, err)
		return
	}

	if e.mailer == nil {
		return
	}
	link := e.config.Verification.VerifyLinkBase + challengeToken
	if err := e.mailer.SendVerification(ctx, email, "", link); err != nil {
		e.warn("verification mail failed for %s: %v", email, err)
	}
}
