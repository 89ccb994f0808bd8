package authcore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockplane/authcore"
)

func TestPasswordReset_FullFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.register(t, "alice@example.com", "correct horse battery")

	require.NoError(t, env.engine.RequestPasswordReset(ctx, "alice@example.com"))
	link := env.mailer.lastResetLink()
	require.NotEmpty(t, link)

	require.NoError(t, env.engine.ConfirmPasswordReset(ctx, link, "an entirely new password"))

	// Old password is dead, new one works.
	_, err := env.engine.Login(ctx, "alice@example.com", "correct horse battery")
	assert.ErrorIs(t, err, authcore.ErrInvalidCredentials)
	_, err = env.engine.Login(ctx, "alice@example.com", "an entirely new password")
	assert.NoError(t, err)

	// Every session issued under the old password was revoked.
	_, err = env.engine.Refresh(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, authcore.ErrTokenInvalid)

	// The password-changed notice went out.
	assert.Equal(t, []string{"alice@example.com"}, env.mailer.changed)
}

func TestPasswordReset_TokenIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "alice@example.com", "correct horse battery")
	require.NoError(t, env.engine.RequestPasswordReset(ctx, "alice@example.com"))
	link := env.mailer.lastResetLink()

	require.NoError(t, env.engine.ConfirmPasswordReset(ctx, link, "an entirely new password"))

	err := env.engine.ConfirmPasswordReset(ctx, link, "yet another password")
	assert.ErrorIs(t, err, authcore.ErrChallengeInvalid)

	// The replay changed nothing.
	_, err = env.engine.Login(ctx, "alice@example.com", "an entirely new password")
	assert.NoError(t, err)
}

func TestPasswordReset_ExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "alice@example.com", "correct horse battery")
	require.NoError(t, env.engine.RequestPasswordReset(ctx, "alice@example.com"))
	link := env.mailer.lastResetLink()

	env.clock.Advance(testConfig().Verification.ResetTokenTTL + 1)

	err := env.engine.ConfirmPasswordReset(ctx, link, "an entirely new password")
	assert.ErrorIs(t, err, authcore.ErrChallengeInvalid)
}

func TestPasswordReset_UnknownEmailGenericAck(t *testing.T) {
	env := newTestEnv(t)

	assert.NoError(t, env.engine.RequestPasswordReset(context.Background(), "nobody@example.com"))
	assert.Empty(t, env.mailer.resets)
}

func TestPasswordReset_WeakNewPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "alice@example.com", "correct horse battery")
	require.NoError(t, env.engine.RequestPasswordReset(ctx, "alice@example.com"))
	link := env.mailer.lastResetLink()

	err := env.engine.ConfirmPasswordReset(ctx, link, "short")
	assert.ErrorIs(t, err, authcore.ErrPasswordPolicy)

	// The policy failure did not consume the token.
	assert.NoError(t, env.engine.ConfirmPasswordReset(ctx, link, "an entirely new password"))
}

func TestPasswordReset_ClearsLockout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "alice@example.com", "correct horse battery")
	for i := 0; i < 5; i++ {
		_, _ = env.engine.Login(ctx, "alice@example.com", "not the password")
	}
	_, err := env.engine.Login(ctx, "alice@example.com", "correct horse battery")
	require.ErrorIs(t, err, authcore.ErrAccountLocked)

	require.NoError(t, env.engine.RequestPasswordReset(ctx, "alice@example.com"))
	require.NoError(t, env.engine.ConfirmPasswordReset(ctx, env.mailer.lastResetLink(), "an entirely new password"))

	// A completed reset proves account ownership; the lock is lifted.
	_, err = env.engine.Login(ctx, "alice@example.com", "an entirely new password")
	assert.NoError(t, err)
}
