package authcore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockplane/authcore"
)

func TestLogout_RevokesSession(t *testing.T) {
	env := newTestEnv(t)
	res := env.register(t, "alice@example.com", "correct horse battery")
	ctx := context.Background()

	require.NoError(t, env.engine.Logout(ctx, res.RefreshToken))

	// The token's session is gone.
	_, err := env.engine.Refresh(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, authcore.ErrTokenInvalid)

	// A second logout of the same token is a no-op, not an error.
	assert.NoError(t, env.engine.Logout(ctx, res.RefreshToken))
}

func TestLogout_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	res := env.register(t, "alice@example.com", "correct horse battery")
	ctx := context.Background()

	// A rotation kills the presented token's session the same way a logout
	// does; logging out with the old token afterwards still succeeds.
	_, err := env.engine.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.NoError(t, env.engine.Logout(ctx, res.RefreshToken))

	// An expired session is equally silent.
	expired := env.register(t, "bob@example.com", "correct horse battery")
	env.clock.Advance(testConfig().JWT.RefreshTTL + time.Second)
	assert.NoError(t, env.engine.Logout(ctx, expired.RefreshToken))
}

func TestLogout_RejectsAccessToken(t *testing.T) {
	env := newTestEnv(t)
	res := env.register(t, "alice@example.com", "correct horse battery")

	err := env.engine.Logout(context.Background(), res.AccessToken)
	assert.ErrorIs(t, err, authcore.ErrTokenInvalid)
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.register(t, "alice@example.com", "correct horse battery")
	second, err := env.engine.Login(ctx, "alice@example.com", "correct horse battery")
	require.NoError(t, err)
	third, err := env.engine.Login(ctx, "alice@example.com", "correct horse battery")
	require.NoError(t, err)

	n, err := env.engine.LogoutAll(ctx, res.AccountID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, tok := range []string{res.RefreshToken, second.RefreshToken, third.RefreshToken} {
		_, err := env.engine.Refresh(ctx, tok)
		assert.ErrorIs(t, err, authcore.ErrTokenInvalid)
	}

	// Idempotent: nothing left to revoke.
	n, err = env.engine.LogoutAll(ctx, res.AccountID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
