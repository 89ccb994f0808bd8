package authcore

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the full engine configuration tree. Config instances are intended
// to be populated during initialization and then treated as immutable.
type Config struct {
	JWT          JWTConfig
	Password     PasswordConfig
	BruteForce   BruteForceConfig
	RateLimit    RateLimitConfig
	Session      SessionConfig
	OAuth        OAuthConfig
	Verification VerificationConfig
	Account      AccountConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// secretPlaceholderPrefix marks a secret that was never rotated away from the
// shipped sample configuration. Starting with it is a fatal misconfiguration.
const secretPlaceholderPrefix = "CHANGE_ME"

// minSecretBytes is 512 bits: the floor for an HMAC-SHA256 signing secret.
const minSecretBytes = 64

// JWTConfig configures the token codec shared by issuance and verification.
type JWTConfig struct {
	// Secret is the symmetric signing secret. Build refuses secrets shorter
	// than 64 bytes or carrying the CHANGE_ME placeholder prefix.
	Secret     string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries the Argon2id parameters. Memory is in KB.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
BRUTE FORCE CONFIG
====================================
*/

// BruteForceConfig controls failed-login lockout.
type BruteForceConfig struct {
	MaxAttempts  int
	LockDuration time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig controls the process-local token-bucket limiter. The two
// per-minute limits map to the ratelimit endpoint classes: AuthRequestsPerMinute
// applies to authentication-surface paths, RequestsPerMinute to everything else.
type RateLimitConfig struct {
	Enabled               bool
	RequestsPerMinute     int
	AuthRequestsPerMinute int
	// AuthPathPrefixes is the static prefix policy classifying a request path
	// as authentication-sensitive.
	AuthPathPrefixes []string
	// IdleEviction bounds how long an untouched bucket survives.
	IdleEviction time.Duration
	// MaxBuckets caps total bucket count to bound memory.
	MaxBuckets int
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls refresh-session retention.
type SessionConfig struct {
	// RevokedRetention is the audit window revoked sessions are kept for
	// before the weekly sweep purges them.
	RevokedRetention time.Duration
}

/*
====================================
OAUTH CONFIG
====================================
*/

// OAuthConfig controls the one-time authorization code broker.
type OAuthConfig struct {
	CodeTTL time.Duration
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig controls email-verification and password-reset challenges.
type VerificationConfig struct {
	VerifyTokenTTL time.Duration
	ResetTokenTTL  time.Duration
	// VerifyLinkBase and ResetLinkBase are prefixed to the challenge token to
	// form the link placed in outbound mail. Empty bases send the bare token.
	VerifyLinkBase string
	ResetLinkBase  string
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig controls account creation defaults.
type AccountConfig struct {
	DefaultRole string
	// RequireVerifiedLogin rejects password logins from accounts that have not
	// confirmed their email.
	RequireVerifiedLogin bool
	// UpgradeHashOnLogin transparently rehashes a password at login when the
	// stored hash was produced with weaker parameters than configured.
	UpgradeHashOnLogin bool
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull keeps Emit non-blocking under backpressure. Audit writes are
	// best-effort by contract; dropping is counted, never propagated.
	DropIfFull bool
}

// MetricsConfig enables the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the configuration the engine ships with. The JWT
// secret is intentionally left empty: there is no safe default for it.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:     "authcore",
			Audience:   "authcore-api",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		BruteForce: BruteForceConfig{
			MaxAttempts:  5,
			LockDuration: 15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:               true,
			RequestsPerMinute:     100,
			AuthRequestsPerMinute: 10,
			AuthPathPrefixes: []string{
				"/auth/login",
				"/auth/register",
				"/auth/refresh",
				"/auth/forgot-password",
				"/auth/reset-password",
			},
			IdleEviction: time.Hour,
			MaxBuckets:   100_000,
		},
		Session: SessionConfig{
			RevokedRetention: 30 * 24 * time.Hour,
		},
		OAuth: OAuthConfig{
			CodeTTL: 30 * time.Second,
		},
		Verification: VerificationConfig{
			VerifyTokenTTL: 24 * time.Hour,
			ResetTokenTTL:  time.Hour,
		},
		Account: AccountConfig{
			DefaultRole:        "user",
			UpgradeHashOnLogin: true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for fatal problems. The JWT secret gate is
// deliberately unrecoverable: a service with a guessable signing secret must
// not start.
func (c *Config) Validate() error {
	if err := validateSigningSecret(c.JWT.Secret); err != nil {
		return err
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT TTLs must be positive")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if c.JWT.Issuer == "" || c.JWT.Audience == "" {
		return errors.New("JWT issuer and audience are required")
	}
	if c.BruteForce.MaxAttempts <= 0 {
		return errors.New("BruteForce.MaxAttempts must be positive")
	}
	if c.BruteForce.LockDuration <= 0 {
		return errors.New("BruteForce.LockDuration must be positive")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.AuthRequestsPerMinute <= 0 {
			return errors.New("rate limits must be positive when rate limiting is enabled")
		}
		if c.RateLimit.MaxBuckets <= 0 {
			return errors.New("RateLimit.MaxBuckets must be positive")
		}
	}
	if c.OAuth.CodeTTL <= 0 || c.OAuth.CodeTTL > 5*time.Minute {
		return errors.New("OAuth.CodeTTL must be positive and short")
	}
	if c.Session.RevokedRetention <= 0 {
		return errors.New("Session.RevokedRetention must be positive")
	}
	if c.Verification.VerifyTokenTTL <= 0 || c.Verification.ResetTokenTTL <= 0 {
		return errors.New("verification token TTLs must be positive")
	}
	if c.Account.DefaultRole == "" {
		return errors.New("Account.DefaultRole is required")
	}
	return nil
}

func validateSigningSecret(secret string) error {
	if strings.HasPrefix(secret, secretPlaceholderPrefix) {
		return errors.New("JWT secret is the shipped placeholder; generate a random 512-bit secret")
	}
	if len(secret) < minSecretBytes {
		return fmt.Errorf("JWT secret too short (%d bytes): HMAC-SHA256 requires at least %d bytes (512 bits)", len(secret), minSecretBytes)
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.RateLimit.AuthPathPrefixes = append([]string(nil), cfg.RateLimit.AuthPathPrefixes...)
	return out
}
