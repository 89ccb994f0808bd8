package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/lockplane/authcore/internal/audit"
	internalmetrics "github.com/lockplane/authcore/internal/metrics"
)

// Account is the identity record. FailedLogins, LastFailedLogin and
// LockedUntil are owned by the brute-force guard; everything else is written
// on registration / federated linking only. PasswordHash is empty for
// federated-only accounts.
type Account struct {
	ID            string
	Email         string
	PasswordHash  string
	Role          string
	Provider      string
	ProviderID    string
	EmailVerified bool

	FailedLogins    int
	LastFailedLogin *time.Time
	LockedUntil     *time.Time

	CreatedAt time.Time
}

// Locked reports whether the account's lock window covers now.
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// Session binds a hashed refresh token to an account. The raw refresh token is
// never persisted; RefreshTokenHash is its SHA-256 hex digest.
type Session struct {
	ID               string
	AccountID        string
	RefreshTokenHash string
	IP               string
	UserAgent        string
	ExpiresAt        time.Time
	RevokedAt        *time.Time
	CreatedAt        time.Time
}

// Valid reports whether the session authorizes a refresh at now:
// not revoked and not expired.
func (s *Session) Valid(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// OneTimeCode is the ephemeral bridge for federated-login redirects: a random
// opaque code carrying a pre-minted token pair, single-use, 30s lifetime.
type OneTimeCode struct {
	Code         string
	AccountID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// ChallengeKind discriminates single-use challenge tokens.
type ChallengeKind string

const (
	// ChallengeVerifyEmail is a 24h email-verification token.
	ChallengeVerifyEmail ChallengeKind = "verify_email"
	// ChallengePasswordReset is a 1h password-reset token.
	ChallengePasswordReset ChallengeKind = "password_reset"
)

// Challenge is a single-use token mailed to an account holder.
type Challenge struct {
	Token     string
	Kind      ChallengeKind
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// FederatedIdentity is the provider-asserted identity handed to
// [Engine.FederatedLogin] after an upstream OAuth2 handshake succeeds.
type FederatedIdentity struct {
	Provider   string
	ProviderID string
	Email      string
	Name       string
}

// AuthResult is returned by the operations that issue a token pair.
type AuthResult struct {
	AccountID    string
	Email        string
	Role         string
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access-token lifetime in seconds, for the response body.
	ExpiresIn int64
}

/*
====================================
DURABLE STORE INTERFACES
====================================
*/

// AccountStore is the durable identity store. Implementations must make
// RecordLoginFailure atomic per account: concurrent failures may not both read
// a pre-increment counter (two racing fifth failures must still trip the lock).
type AccountStore interface {
	// Create persists a new account. A duplicate normalized email returns
	// ErrDuplicateAccount.
	Create(ctx context.Context, account Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByProvider(ctx context.Context, provider, providerID string) (*Account, error)
	// LinkProvider attaches a federated identity to an existing account.
	LinkProvider(ctx context.Context, id, provider, providerID string) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	// MarkEmailVerified is idempotent.
	MarkEmailVerified(ctx context.Context, id string) error
	// RecordLoginFailure atomically increments the failure counter, stamps the
	// failure time, and, once the counter reaches maxAttempts, sets
	// lockedUntil = now + lockFor. The counter is left intact once locked.
	// Returns the lock expiry when the account is (now) locked.
	RecordLoginFailure(ctx context.Context, id string, maxAttempts int, lockFor time.Duration, now time.Time) (*time.Time, error)
	// ResetLoginFailures zeroes the counter and clears any lock.
	ResetLoginFailures(ctx context.Context, id string) error
}

// SessionStore persists hashed refresh-token records. Claim is the rotation
// primitive: it must atomically locate the valid session for hash and revoke
// it, so that of N concurrent refreshes of one token exactly one observes the
// session.
type SessionStore interface {
	Create(ctx context.Context, session Session) error
	// FindValid returns the session for hash only if it is not revoked and not
	// expired at now; otherwise ErrNotFound.
	FindValid(ctx context.Context, refreshTokenHash string, now time.Time) (*Session, error)
	// Claim atomically finds the valid session for hash and marks it revoked,
	// returning the pre-revocation record. ErrNotFound when no valid session
	// exists (including: another claimer won).
	Claim(ctx context.Context, refreshTokenHash string, now time.Time) (*Session, error)
	// Revoke marks the session revoked. Revoking an already-revoked or missing
	// session is a no-op reported as revoked=false.
	Revoke(ctx context.Context, sessionID string, now time.Time) (bool, error)
	// RevokeAll revokes every valid session of the account, returning the count.
	RevokeAll(ctx context.Context, accountID string, now time.Time) (int, error)
	// SweepExpired deletes sessions whose expiry has passed and that were never
	// revoked. Idempotent; zero rows is not an error.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	// SweepRevokedBefore deletes sessions revoked before cutoff (audit window).
	SweepRevokedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// CodeStore persists one-time authorization codes. Redeem must be atomic:
// under concurrent redemption of one code exactly one caller receives the
// record, all others ErrNotFound.
type CodeStore interface {
	Insert(ctx context.Context, code OneTimeCode) error
	// Redeem atomically consumes (and deletes) the code if it is unused and
	// unexpired at now. ErrNotFound otherwise; used and expired are
	// indistinguishable to the caller.
	Redeem(ctx context.Context, code string, now time.Time) (*OneTimeCode, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// ChallengeStore persists verification and reset tokens. Consume reports prior
// use instead of deleting, so email verification can stay idempotent while
// password reset enforces strict single use.
type ChallengeStore interface {
	Insert(ctx context.Context, challenge Challenge) error
	// Consume atomically marks the token used and returns the owning account
	// id. alreadyUsed reports whether an earlier Consume had already claimed
	// it. Unknown or expired tokens return ErrNotFound.
	Consume(ctx context.Context, kind ChallengeKind, token string, now time.Time) (accountID string, alreadyUsed bool, err error)
	// DeleteByAccount drops outstanding challenges of one kind for an account
	// (used when reissuing).
	DeleteByAccount(ctx context.Context, kind ChallengeKind, accountID string) error
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

/*
====================================
COLLABORATOR INTERFACES
====================================
*/

// Mailer is the outbound notification collaborator. All methods are invoked
// fire-and-forget: errors are logged by the engine, never propagated.
type Mailer interface {
	SendVerification(ctx context.Context, email, name, link string) error
	SendPasswordReset(ctx context.Context, email, name, link string) error
	SendPasswordChanged(ctx context.Context, email, name string) error
	SendWelcome(ctx context.Context, email, name string) error
}

/*
====================================
AUDIT RE-EXPORTS
====================================
*/

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer], one object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// KafkaSink is an [AuditSink] that publishes events to a Kafka topic, keyed by
// account id.
type KafkaSink = internalaudit.KafkaSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewKafkaSink creates a [KafkaSink] publishing to topic on the given brokers.
// Close it to flush buffered messages.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return internalaudit.NewKafkaSink(brokers, topic)
}

/*
====================================
METRICS RE-EXPORTS
====================================
*/

// MetricID identifies a counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess         = internalmetrics.MetricLoginSuccess
	MetricLoginFailure         = internalmetrics.MetricLoginFailure
	MetricLoginLocked          = internalmetrics.MetricLoginLocked
	MetricAccountLocked        = internalmetrics.MetricAccountLocked
	MetricRegisterSuccess      = internalmetrics.MetricRegisterSuccess
	MetricRegisterDuplicate    = internalmetrics.MetricRegisterDuplicate
	MetricRefreshSuccess       = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure       = internalmetrics.MetricRefreshFailure
	MetricSessionCreated       = internalmetrics.MetricSessionCreated
	MetricSessionRevoked       = internalmetrics.MetricSessionRevoked
	MetricLogout               = internalmetrics.MetricLogout
	MetricLogoutAll            = internalmetrics.MetricLogoutAll
	MetricOAuthLogin           = internalmetrics.MetricOAuthLogin
	MetricOAuthCodeIssued      = internalmetrics.MetricOAuthCodeIssued
	MetricOAuthCodeRedeemed    = internalmetrics.MetricOAuthCodeRedeemed
	MetricOAuthCodeRejected    = internalmetrics.MetricOAuthCodeRejected
	MetricEmailVerified        = internalmetrics.MetricEmailVerified
	MetricPasswordResetRequest = internalmetrics.MetricPasswordResetRequest
	MetricPasswordResetConfirm = internalmetrics.MetricPasswordResetConfirm
	MetricSweepDeleted         = internalmetrics.MetricSweepDeleted
)

// Metrics holds the engine's atomic counters.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot
