package authcore

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// RequestPasswordReset issues a reset challenge and mails the link. The
// response is identical for known and unknown emails.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
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

	if err := e.challenges.DeleteByAccount(ctx, ChallengePasswordReset, account.ID); err != nil {
		e.warn("stale reset cleanup failed for account %s: %v", account.ID, err)
	}

	challengeToken := uuid.NewString()
	now := e.now()
	err = e.challenges.Insert(ctx, Challenge{
		Token:     challengeToken,
		Kind:      ChallengePasswordReset,
		AccountID: account.ID,
		ExpiresAt: now.Add(e.config.Verification.ResetTokenTTL),
		CreatedAt: now,
	})
	if err != nil {
		e.warn("reset challenge insert failed for account %s: %v", account.ID, err)
		return nil
	}

	if e.mailer != nil {
		link := e.config.Verification.ResetLinkBase + challengeToken
		if err := e.mailer.SendPasswordReset(ctx, account.Email, "", link); err != nil {
			e.warn("reset mail failed for %s: %v", account.Email, err)
		}
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, account.ID, nil, nil)
	return nil
}

// ConfirmPasswordReset redeems a reset challenge and installs the new
// password. Reset tokens are strictly single-use; a replay fails even before
// the token expires. Every live session of the account is revoked, so a
// stolen refresh token dies with the old password.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, challengeToken, newPassword string) error {
	if e == nil || e.challenges == nil {
		return ErrEngineNotReady
	}

	// Hash before consuming: a policy failure must not burn the single-use
	// token.
	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return ErrPasswordPolicy
	}

	accountID, alreadyUsed, err := e.challenges.Consume(ctx, ChallengePasswordReset, challengeToken, e.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrChallengeInvalid
		}
		return err
	}
	if alreadyUsed {
		e.emitAudit(ctx, auditEventPasswordResetReplay, false, accountID, ErrChallengeInvalid, nil)
		return ErrChallengeInvalid
	}
	if err := e.accounts.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		return err
	}

	// The old password no longer authenticates; neither should anything
	// issued under it.
	if _, err := e.sessions.RevokeAll(ctx, accountID, e.now()); err != nil {
		e.warn("session revocation after reset failed for account %s: %v", accountID, err)
	}
	if err := e.guard.OnSuccess(ctx, accountID); err != nil && !errors.Is(err, ErrNotFound) {
		e.warn("lockout reset after password reset failed for account %s: %v", accountID, err)
	}

	if e.mailer != nil {
		if account, err := e.accounts.GetByID(ctx, accountID); err == nil {
			if err := e.mailer.SendPasswordChanged(ctx, account.Email, ""); err != nil {
				e.warn("password-changed mail failed for %s: %v", account.Email, err)
			}
		}
	}

	e.metricInc(MetricPasswordResetConfirm)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, accountID, nil, nil)
	return nil
}
