package authcore_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lockplane/authcore"
	"github.com/lockplane/authcore/store/memory"
)

// testClock is a mutable time source shared with the engine under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

// newTestClock starts at wall time: token verification inside the codec uses
// the real clock, so minted tokens must not sit in the past. Tests only ever
// advance it.
func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingMailer captures outbound mail for assertions.
type recordingMailer struct {
	mu            sync.Mutex
	verifications []string // link per SendVerification call
	resets        []string
	changed       []string // email per SendPasswordChanged call
	welcomes      []string
}

func (m *recordingMailer) SendVerification(_ context.Context, email, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications = append(m.verifications, link)
	return nil
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, email, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, link)
	return nil
}

func (m *recordingMailer) SendPasswordChanged(_ context.Context, email, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changed = append(m.changed, email)
	return nil
}

func (m *recordingMailer) SendWelcome(_ context.Context, email, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcomes = append(m.welcomes, email)
	return nil
}

func (m *recordingMailer) lastVerificationLink() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.verifications) == 0 {
		return ""
	}
	return m.verifications[len(m.verifications)-1]
}

func (m *recordingMailer) lastResetLink() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.resets) == 0 {
		return ""
	}
	return m.resets[len(m.resets)-1]
}

type testEnv struct {
	engine   *authcore.Engine
	clock    *testClock
	mailer   *recordingMailer
	accounts *memory.AccountStore
	sessions *memory.SessionStore
}

// testConfig keeps argon2 cheap so the suite stays fast; lockout and TTL
// values match the defaults the assertions rely on.
func testConfig() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.JWT.Secret = strings.Repeat("k", 64)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func memStores() authcore.Stores {
	return authcore.Stores{
		Accounts:   memory.NewAccountStore(),
		Sessions:   memory.NewSessionStore(),
		Codes:      memory.NewCodeStore(),
		Challenges: memory.NewChallengeStore(),
	}
}

func newTestEnv(t *testing.T, mutate ...func(*authcore.Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	clock := newTestClock()
	mailer := &recordingMailer{}
	accounts := memory.NewAccountStore()
	sessions := memory.NewSessionStore()

	engine, err := authcore.New().
		WithConfig(cfg).
		WithStores(authcore.Stores{
			Accounts:   accounts,
			Sessions:   sessions,
			Codes:      memory.NewCodeStore(),
			Challenges: memory.NewChallengeStore(),
		}).
		WithMailer(mailer).
		WithClock(clock.Now).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &testEnv{
		engine:   engine,
		clock:    clock,
		mailer:   mailer,
		accounts: accounts,
		sessions: sessions,
	}
}

// register creates a verified test account ready for login.
func (env *testEnv) register(t *testing.T, email, password string) *authcore.AuthResult {
	t.Helper()
	res, err := env.engine.Register(context.Background(), email, password)
	require.NoError(t, err)
	return res
}

func (env *testEnv) verify(t *testing.T, link string) {
	t.Helper()
	require.NoError(t, env.engine.VerifyEmail(context.Background(), link))
}
