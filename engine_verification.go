package authcore

import (
	"context"
	"errors"
)

// VerifyEmail redeems an email-verification challenge and marks the account
// verified. Verification is idempotent: replaying a consumed token, or
// verifying an already-verified account, succeeds.
func (e *Engine) VerifyEmail(ctx context.Context, challengeToken string) error {
	if e == nil || e.challenges == nil {
		return ErrEngineNotReady
	}

	accountID, _, err := e.challenges.Consume(ctx, ChallengeVerifyEmail, challengeToken, e.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrChallengeInvalid
		}
		return err
	}

	if err := e.accounts.MarkEmailVerified(ctx, accountID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	e.metricInc(MetricEmailVerified)
	e.emitAudit(ctx, auditEventEmailVerified, true, accountID, nil, nil)
	return nil
}

// ResendVerification issues a fresh verification challenge for the account
// behind email. The response is the same whether the email is unknown,
// already verified, or freshly mailed, so the endpoint cannot be used to
// enumerate accounts.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	if e == nil || e.challenges == nil {
		return ErrEngineNotReady
	}

	account, err := e.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if account.EmailVerified {
		return nil
	}

	// Outstanding tokens are superseded, not left to accumulate.
	if err := e.challenges.DeleteByAccount(ctx, ChallengeVerifyEmail, account.ID); err != nil {
		e.warn("stale verification cleanup failed for account %s: %v", account.ID, err)
	}

	e.startVerification(ctx, account.ID, account.Email)
	e.emitAudit(ctx, auditEventVerificationResent, true, account.ID, nil, nil)
	return nil
}
