package authcore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockplane/authcore"
)

func googleIdentity() authcore.FederatedIdentity {
	return authcore.FederatedIdentity{
		Provider:   "google",
		ProviderID: "g-12345",
		Email:      "alice@example.com",
		Name:       "Alice",
	}
}

func TestFederatedLogin_CreatesVerifiedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.engine.FederatedLogin(ctx, googleIdentity())
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", res.Email)
	assert.NotEmpty(t, res.RefreshToken)

	account, err := env.accounts.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, account.EmailVerified)
	assert.Equal(t, "google", account.Provider)
	assert.Equal(t, []string{"alice@example.com"}, env.mailer.welcomes)

	// Second login reuses the account.
	again, err := env.engine.FederatedLogin(ctx, googleIdentity())
	require.NoError(t, err)
	assert.Equal(t, res.AccountID, again.AccountID)
}

func TestFederatedLogin_LinksExistingEmailAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	registered := env.register(t, "alice@example.com", "correct horse battery")

	res, err := env.engine.FederatedLogin(ctx, googleIdentity())
	require.NoError(t, err)
	assert.Equal(t, registered.AccountID, res.AccountID)

	account, err := env.accounts.GetByID(ctx, registered.AccountID)
	require.NoError(t, err)
	assert.Equal(t, "google", account.Provider)
	assert.Equal(t, "g-12345", account.ProviderID)
	// Linking does not send a welcome mail; the account predates the link.
	assert.Empty(t, env.mailer.welcomes)
}

func TestFederatedLoginCode_ExchangeOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.engine.FederatedLoginCode(ctx, googleIdentity())
	require.NoError(t, err)
	require.NotEmpty(t, code)

	res, err := env.engine.ExchangeOAuthCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", res.Email)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)

	// The pre-minted refresh token is live.
	_, err = env.engine.Refresh(ctx, res.RefreshToken)
	assert.NoError(t, err)

	// A code is single-use.
	_, err = env.engine.ExchangeOAuthCode(ctx, code)
	assert.ErrorIs(t, err, authcore.ErrCodeInvalidOrExpired)
}

func TestExchangeOAuthCode_Expiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.engine.FederatedLoginCode(ctx, googleIdentity())
	require.NoError(t, err)

	env.clock.Advance(31 * time.Second)

	_, err = env.engine.ExchangeOAuthCode(ctx, code)
	assert.ErrorIs(t, err, authcore.ErrCodeInvalidOrExpired)
}

func TestExchangeOAuthCode_Unknown(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.ExchangeOAuthCode(context.Background(), "no-such-code")
	assert.ErrorIs(t, err, authcore.ErrCodeInvalidOrExpired)
}

func TestExchangeOAuthCode_ConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.engine.FederatedLoginCode(ctx, googleIdentity())
	require.NoError(t, err)

	const racers = 16
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.ExchangeOAuthCode(ctx, code)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, authcore.ErrCodeInvalidOrExpired)
		}
	}
	assert.Equal(t, 1, wins)
}
