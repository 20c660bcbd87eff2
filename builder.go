package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/velobay/authcore/internal/limiters"
	"github.com/velobay/authcore/internal/rate"
	"github.com/velobay/authcore/internal/stores"
	"github.com/velobay/authcore/jwt"
	"github.com/velobay/authcore/session"
)

// Builder assembles an [Engine]. Configure, then call Build exactly once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  DurableStore

	notifier  Notifier
	auditSink AuditSink
	logger    *zap.Logger

	built bool
}

// New returns a builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the ephemeral store client. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDurableStore sets the relational adapter bundle. Required.
func (b *Builder) WithDurableStore(store DurableStore) *Builder {
	b.store = store
	return b
}

// WithNotifier sets the OTP delivery collaborator. Defaults to a no-op.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the security-event sink. Defaults to the durable
// store's event log.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to a nop logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine.
//
// When the signing method is ed25519 and no key material was supplied, a
// fresh key pair is generated and a warning is logged: the operator must
// persist the keys, otherwise a restart invalidates every outstanding
// token.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.store == nil {
		return nil, errors.New("durable store is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tokenCfg := b.config.Token
	if tokenCfg.SigningMethod != jwt.MethodHS256 && len(tokenCfg.PrivateKey) == 0 {
		pub, priv, err := jwt.GenerateEd25519Key()
		if err != nil {
			return nil, err
		}
		tokenCfg.PublicKey = pub
		tokenCfg.PrivateKey = priv
		logger.Warn("generated ephemeral signing key pair; persist it or all tokens die with this process")
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     tokenCfg.AccessTTL,
		RefreshTTL:    tokenCfg.RefreshTTL,
		SigningMethod: tokenCfg.SigningMethod,
		PrivateKey:    tokenCfg.PrivateKey,
		PublicKey:     tokenCfg.PublicKey,
		Issuer:        tokenCfg.Issuer,
		Leeway:        tokenCfg.Leeway,
	})
	if err != nil {
		return nil, err
	}

	counters := rate.New(b.redis)

	sink := b.auditSink
	if sink == nil {
		sink = NewStoreSink(b.store.SecurityEvents(), logger)
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = NoopNotifier{}
	}

	engine := &Engine{
		config:     b.config,
		logger:     logger,
		store:      b.store,
		notifier:   notifier,
		otpStore:   stores.NewOTPStore(b.redis, b.config.OTP.RedisPrefix),
		revocation: stores.NewRevocationStore(b.redis, b.config.Token.RevocationPrefix),
		sessions:   session.NewStore(b.redis, b.config.Session.RedisPrefix),
		counters:   counters,
		lockout: limiters.NewLockoutLimiter(b.redis, counters, limiters.LockoutConfig{
			MaxFailedAttempts: b.config.Lockout.MaxFailedAttempts,
			FailureWindow:     b.config.Lockout.FailureWindow,
			LockoutDuration:   b.config.Lockout.LockoutDuration,
		}),
		suspicious: limiters.NewSuspiciousLimiter(counters, limiters.SuspiciousConfig{
			Threshold: b.config.Suspicious.Threshold,
			Window:    b.config.Suspicious.Window,
		}),
		captcha: limiters.NewCaptchaLimiter(counters, limiters.CaptchaConfig{
			Threshold: b.config.Captcha.Threshold,
		}),
		jwtManager: jwtManager,
		audit:      newAuditDispatcher(b.config.Audit, sink),
		metrics:    NewMetrics(b.config.Metrics),
		suspendMu:  newKeyedMutex(),
	}

	b.built = true
	return engine, nil
}
