package authcore

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	internalaudit "github.com/lockplane/authcore/internal/audit"
	"github.com/lockplane/authcore/internal/flows"
	"github.com/lockplane/authcore/internal/lockout"
	internalmetrics "github.com/lockplane/authcore/internal/metrics"
	"github.com/lockplane/authcore/password"
	"github.com/lockplane/authcore/ratelimit"
	"github.com/lockplane/authcore/token"
)

// Engine is the orchestrator behind every authentication operation. Engines
// are built once through [Builder.Build] and are safe for concurrent use.
type Engine struct {
	config     Config
	accounts   AccountStore
	sessions   SessionStore
	codes      CodeStore
	challenges ChallengeStore
	mailer     Mailer

	hasher *password.Hasher
	codec  *token.Codec
	guard  *lockout.Guard
	broker *codeBroker
	rules  *ratelimit.Rules

	audit   *internalaudit.Dispatcher
	metrics *internalmetrics.Metrics

	now func() time.Time
}

// Close drains and stops the audit dispatcher. The engine must not be used
// after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// RateLimitRules exposes the configured limiter policy for mounting through
// the middleware package. Nil when rate limiting is disabled.
func (e *Engine) RateLimitRules() *ratelimit.Rules {
	if e == nil {
		return nil
	}
	return e.rules
}

// AuditDropped reports how many audit events were discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.SnapshotAll()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n uint64) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Add(id, n)
}

func (e *Engine) warn(format string, args ...any) {
	log.Printf("authcore: "+format, args...)
}

// issueTokens mints an access/refresh pair and persists the backing session.
// Every operation that signs a caller in funnels through here so the session
// invariant (one row per issued refresh token) has a single owner.
func (e *Engine) issueTokens(ctx context.Context, account flows.AccountRecord, now time.Time) (*flows.TokenPairRecord, error) {
	access, refresh, err := e.codec.MintPair(account.ID, account.Email, account.Role, now)
	if err != nil {
		return nil, err
	}

	session := Session{
		ID:               uuid.NewString(),
		AccountID:        account.ID,
		RefreshTokenHash: token.Digest(refresh),
		IP:               ClientIPFromContext(ctx),
		UserAgent:        UserAgentFromContext(ctx),
		ExpiresAt:        now.Add(e.config.JWT.RefreshTTL),
		CreatedAt:        now,
	}
	if err := e.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	e.metricInc(MetricSessionCreated)

	return &flows.TokenPairRecord{
		AccountID:    account.ID,
		Email:        account.Email,
		Role:         account.Role,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(e.config.JWT.AccessTTL / time.Second),
	}, nil
}

func authResultFromPair(pair *flows.TokenPairRecord) *AuthResult {
	return &AuthResult{
		AccountID:    pair.AccountID,
		Email:        pair.Email,
		Role:         pair.Role,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}
}

func flowAccount(a *Account) flows.AccountRecord {
	return flows.AccountRecord{
		ID:            a.ID,
		Email:         a.Email,
		PasswordHash:  a.PasswordHash,
		Role:          a.Role,
		EmailVerified: a.EmailVerified,
		LockedUntil:   a.LockedUntil,
	}
}
