package authkeep

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/authkeep/authkeep/internal/audit"
	"github.com/authkeep/authkeep/internal/lockout"
	"github.com/authkeep/authkeep/internal/rate"
	"github.com/authkeep/authkeep/jwt"
	"github.com/authkeep/authkeep/password"
	"github.com/authkeep/authkeep/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	cache  session.Cache

	users  UserStore
	roles  RoleStore
	hasher password.Hasher

	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis uses client for the session cache and, when enabled, the login
// throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionCache overrides the session cache. It takes precedence over
// WithRedis for sessions.
func (b *Builder) WithSessionCache(cache session.Cache) *Builder {
	b.cache = cache
	return b
}

func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

func (b *Builder) WithRoleStore(roles RoleStore) *Builder {
	b.roles = roles
	return b
}

// WithHasher overrides the hasher selected by Config.Password.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. The default discards output.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for lockout evaluation, token issuance and
// verification, and record timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
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

// Build validates the configuration and returns a ready Engine. An invalid
// signing secret is reported here, before any traffic is accepted.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}

	cache := b.cache
	if cache == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or session cache required")
		}
		cache = session.NewRedisCache(b.redis)
	}
	if cfg.RateLimit.Enabled && b.redis == nil {
		return nil, errors.New("RateLimit requires redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	codec, err := jwt.NewCodec(jwt.Config{
		Secret: cfg.Token.Secret,
		Issuer: cfg.Token.Issuer,
		Leeway: cfg.Token.Leeway,
	}, jwt.WithClock(now))
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	hasher := b.hasher
	if hasher == nil {
		hasher, err = password.New(password.Options{
			Algorithm:  cfg.Password.Algorithm,
			BcryptCost: cfg.Password.BcryptCost,
			Argon2:     cfg.Password.Argon2,
		})
		if err != nil {
			return nil, fmt.Errorf("password hasher: %w", err)
		}
	}
	// Compared against on unknown usernames so both paths cost one hash.
	dummyHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	e := &Engine{
		config:    cfg,
		users:     b.users,
		roles:     b.roles,
		sessions:  session.NewStore(cache, cfg.Session.KeyPrefix, cfg.Session.OperationTimeout),
		codec:     codec,
		hasher:    hasher,
		dummyHash: dummyHash,
		policy:    lockout.Policy{Limit: cfg.Lockout.FailLimit, Duration: cfg.Lockout.Duration},
		audit:     audit.NewDispatcher(audit.Config(cfg.Audit), b.auditSink),
		metrics:   NewMetrics(cfg.Metrics),
		logger:    logger,
		now:       now,
	}
	if cfg.RateLimit.Enabled {
		e.limiter = rate.New(b.redis, rate.Config{
			MaxFailures: cfg.RateLimit.MaxFailuresPerIP,
			Window:      cfg.RateLimit.Window,
		})
	}

	b.built = true
	return e, nil
}
