package authcore

import (
	"errors"
	"time"

	internalaudit "github.com/lockplane/authcore/internal/audit"
	"github.com/lockplane/authcore/internal/lockout"
	internalmetrics "github.com/lockplane/authcore/internal/metrics"
	"github.com/lockplane/authcore/password"
	"github.com/lockplane/authcore/ratelimit"
	"github.com/lockplane/authcore/token"
)

// Stores bundles the durable backends handed to the builder. Accounts and
// Sessions are required; Codes and Challenges are only required when the
// federated and verification operations are used.
type Stores struct {
	Accounts   AccountStore
	Sessions   SessionStore
	Codes      CodeStore
	Challenges ChallengeStore
}

// Builder assembles an [Engine]. Builder instances are intended to be
// configured during initialization and then discarded; a builder can build
// exactly once.
type Builder struct {
	config Config
	stores Stores
	mailer Mailer
	sink   AuditSink
	now    func() time.Time

	built bool
}

// New returns a builder preloaded with [DefaultConfig]. The JWT secret must
// still be supplied through [Builder.WithConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStores supplies the durable backends.
func (b *Builder) WithStores(stores Stores) *Builder {
	b.stores = stores
	return b
}

// WithMailer supplies the outbound notification collaborator. Without one,
// mail side effects are silently skipped.
func (b *Builder) WithMailer(mailer Mailer) *Builder {
	b.mailer = mailer
	return b
}

// WithAuditSink supplies the audit event receiver. Without one, events go to
// a no-op sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithClock overrides the engine's time source.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and assembles the engine. The JWT secret
// gate is checked here: a missing, short, or placeholder secret fails the
// build rather than producing an engine that signs weak tokens.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.stores.Accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.stores.Sessions == nil {
		return nil, errors.New("session store required")
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(token.Config{
		Secret:     []byte(cfg.JWT.Secret),
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	})
	if err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:     cfg,
		accounts:   b.stores.Accounts,
		sessions:   b.stores.Sessions,
		codes:      b.stores.Codes,
		challenges: b.stores.Challenges,
		mailer:     b.mailer,
		hasher:     hasher,
		codec:      codec,
		now:        now,
	}

	engine.guard = &lockout.Guard{
		MaxAttempts:   cfg.BruteForce.MaxAttempts,
		LockFor:       cfg.BruteForce.LockDuration,
		RecordFailure: b.stores.Accounts.RecordLoginFailure,
		Reset:         b.stores.Accounts.ResetLoginFailures,
	}

	if b.stores.Codes != nil {
		engine.broker = &codeBroker{
			store: b.stores.Codes,
			ttl:   cfg.OAuth.CodeTTL,
			now:   now,
		}
	}

	if cfg.RateLimit.Enabled {
		window := time.Minute
		general := ratelimit.NewLimiter(
			ratelimit.Policy{Limit: cfg.RateLimit.RequestsPerMinute, Window: window},
			cfg.RateLimit.IdleEviction,
			cfg.RateLimit.MaxBuckets,
		)
		auth := ratelimit.NewLimiter(
			ratelimit.Policy{Limit: cfg.RateLimit.AuthRequestsPerMinute, Window: window},
			cfg.RateLimit.IdleEviction,
			cfg.RateLimit.MaxBuckets,
		)
		engine.rules = ratelimit.NewRules(cfg.RateLimit.AuthPathPrefixes, general, auth)
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.DispatcherConfig{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.sink)
	engine.metrics = internalmetrics.New(cfg.Metrics.Enabled)

	b.built = true

	return engine, nil
}
