package authkit

import (
	"errors"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tradeyard/authkit/device"
	"github.com/tradeyard/authkit/federation"
	"github.com/tradeyard/authkit/internal/rate"
	"github.com/tradeyard/authkit/internal/stores"
	"github.com/tradeyard/authkit/jwt"
	"github.com/tradeyard/authkit/password"
	"github.com/tradeyard/authkit/role"
	"github.com/tradeyard/authkit/session"
)

// Builder assembles an [Engine]. Zero or one Build call per builder.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	extraRoles []string

	accountStore AccountStore
	auditSink    AuditSink
	logger       *logrus.Logger
	providers    []federation.Provider

	built bool
}

// New returns a [Builder] seeded with [DefaultConfig].
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

// WithRedis sets the Redis client backing sessions, devices, tickets,
// and rate limits.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the host's account persistence.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accountStore = store
	return b
}

// WithRoles registers extra role names beyond the canonical set.
func (b *Builder) WithRoles(names ...string) *Builder {
	b.extraRoles = append(b.extraRoles, names...)
	return b
}

// WithAuditSink sets the audit event consumer.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine's structured logger.
func (b *Builder) WithLogger(logger *logrus.Logger) *Builder {
	b.logger = logger
	return b
}

// WithFederationProviders registers external identity providers.
func (b *Builder) WithFederationProviders(providers ...federation.Provider) *Builder {
	b.providers = append(b.providers, providers...)
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accountStore == nil {
		return nil, errors.New("account store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Federation.Enabled && len(b.providers) == 0 {
		return nil, errors.New("federation enabled but no providers registered")
	}

	roles := role.NewRegistry()
	for _, name := range b.extraRoles {
		if _, err := roles.Register(name); err != nil {
			return nil, err
		}
	}
	roles.Freeze()

	logger := b.logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	hasher, err := password.New(cfg.Password)
	if err != nil {
		return nil, err
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:  cfg.JWT.AccessTTL,
		SessionTTL: cfg.JWT.SessionTTL,
		Method:     cfg.JWT.SigningMethod,
		PrivateKey: cfg.JWT.PrivateKey,
		PublicKey:  cfg.JWT.PublicKey,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		Leeway:     cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cfg,
		logger:   logger,
		roles:    roles,
		accounts: b.accountStore,
		hasher:   hasher,
		signer:   jwtManager,
		sessions: session.NewStore(b.redis, session.Config{
			Prefix:         cfg.Session.RedisPrefix,
			MaxChainLength: cfg.Session.MaxChainLength,
		}),
		devices: device.NewRegistry(b.redis, cfg.Session.RedisPrefix, cfg.Session.DeviceTTL),
		tickets: stores.NewTicketStore(b.redis, cfg.Session.RedisPrefix),
		limiter: rate.New(b.redis, cfg.Session.RedisPrefix, rate.Config{
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			EnableRefreshThrottle: cfg.Security.EnableRefreshThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginWindow:           cfg.Security.LoginWindow,
			MaxRefreshAttempts:    cfg.Security.MaxRefreshAttempts,
			RefreshWindow:         cfg.Security.RefreshWindow,
			MaxTicketAttempts:     cfg.Security.MaxTicketAttempts,
			TicketWindow:          cfg.Security.TicketWindow,
		}),
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}

	if cfg.Federation.Enabled {
		engine.providers = federation.NewRegistry(b.providers...)
		engine.state = federation.NewStateSigner(cfg.Federation.StateKey, cfg.Federation.StateTTL)
	}

	b.built = true

	return engine, nil
}
