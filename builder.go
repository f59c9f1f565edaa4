package idpcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/idpcore/internal/audit"
	"github.com/MrEthical07/idpcore/internal/flows"
	"github.com/MrEthical07/idpcore/internal/limiters"
	"github.com/MrEthical07/idpcore/internal/logging"
	"github.com/MrEthical07/idpcore/internal/stores"
	"github.com/MrEthical07/idpcore/jwt"
	"github.com/MrEthical07/idpcore/password"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder builds exactly once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  AccountStore
	roles     RoleStore
	groups    GroupStore
	tokens    TokenStore
	retries   RetryTracker
	directory Directory
	notifier  Notifier

	auditSink AuditSink
	logger    logging.Logger

	built bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis moves retry counters and tokens into Redis. It takes precedence
// over WithRetryTracker and WithTokenStore.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore registers s for every collaborator interface it implements.
func (b *Builder) WithStore(s any) *Builder {
	if v, ok := s.(AccountStore); ok {
		b.accounts = v
	}
	if v, ok := s.(RoleStore); ok {
		b.roles = v
	}
	if v, ok := s.(GroupStore); ok {
		b.groups = v
	}
	if v, ok := s.(TokenStore); ok {
		b.tokens = v
	}
	if v, ok := s.(RetryTracker); ok {
		b.retries = v
	}
	return b
}

func (b *Builder) WithAccountStore(s AccountStore) *Builder {
	b.accounts = s
	return b
}

func (b *Builder) WithRoleStore(s RoleStore) *Builder {
	b.roles = s
	return b
}

func (b *Builder) WithGroupStore(s GroupStore) *Builder {
	b.groups = s
	return b
}

func (b *Builder) WithTokenStore(s TokenStore) *Builder {
	b.tokens = s
	return b
}

func (b *Builder) WithRetryTracker(t RetryTracker) *Builder {
	b.retries = t
	return b
}

// WithDirectory enables directory sync and delegated password checks for
// accounts this service does not own.
func (b *Builder) WithDirectory(d Directory) *Builder {
	b.directory = d
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l logging.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.roles == nil {
		return nil, errors.New("role store required")
	}
	if b.groups == nil {
		return nil, errors.New("group store required")
	}

	engine := &Engine{
		config:    cfg,
		accounts:  b.accounts,
		roles:     b.roles,
		groups:    b.groups,
		tokens:    b.tokens,
		retries:   b.retries,
		directory: b.directory,
		notifier:  b.notifier,
		logger:    b.logger,
	}

	// -------- REDIS BACKENDS --------
	if b.redis != nil {
		engine.retries = &redisRetryTracker{
			counter: limiters.NewRetryCounter(b.redis, limiters.RetryConfig{
				Window: cfg.Lockout.RetryWindow,
				Prefix: cfg.Lockout.RedisPrefix,
			}),
		}
		engine.tokens = newRedisTokenStore(
			stores.NewTokenStore(b.redis, cfg.Token.RedisPrefix, cfg.Token.ExpiredRetention),
		)
	}
	if engine.retries == nil {
		return nil, errors.New("retry tracker required (WithRedis, WithRetryTracker or a store implementing it)")
	}
	if engine.tokens == nil {
		return nil, errors.New("token store required (WithRedis, WithTokenStore or a store implementing it)")
	}

	if engine.logger == nil {
		engine.logger = logging.Discard()
	}
	if cfg.Notify.Enabled && engine.notifier == nil {
		return nil, errors.New("Notify enabled but no notifier configured")
	}

	// -------- PASSWORD SCHEMES --------
	schemes, err := newPasswordSchemes(cfg.Password)
	if err != nil {
		return nil, err
	}
	engine.schemes = schemes

	// -------- ACCESS TOKENS --------
	if cfg.JWT.Enabled {
		jm, err := jwt.NewManager(jwt.Config{
			AccessTTL:     cfg.JWT.AccessTTL,
			SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
			PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
			PublicKey:     cloneBytes(cfg.JWT.PublicKey),
			Issuer:        cfg.JWT.Issuer,
			Audience:      cfg.JWT.Audience,
			Leeway:        cfg.JWT.Leeway,
			KeyID:         cfg.JWT.KeyID,
		})
		if err != nil {
			return nil, err
		}
		engine.jwtManager = jm
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop: func(ev audit.Event, cause error) {
			engine.logger.Warn(context.Background(), "audit event dropped",
				"event_type", ev.EventType, "cause", cause)
		},
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.flows = flows.New(engine.flowDeps())

	b.built = true

	return engine, nil
}

func newPasswordSchemes(cfg PasswordConfig) (*password.Schemes, error) {
	bc, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	table := map[string]password.Scheme{
		password.SchemeBcrypt: bc,
		password.SchemeOracle: password.OracleSHA1{},
	}
	a2, err := password.NewArgon2(cfg.Argon2)
	switch {
	case err == nil:
		table[password.SchemeArgon2] = a2
	case cfg.DefaultScheme == password.SchemeArgon2:
		return nil, err
	}
	// Untagged hashes predate scheme tags and come from the legacy directory.
	return password.NewSchemes(cfg.DefaultScheme, table, password.OracleSHA1{})
}
