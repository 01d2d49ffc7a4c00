// Package envconfig loads daemon and engine settings from a .env file and
// the process environment.
package envconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/authkeep/authkeep"
	"github.com/joho/godotenv"
)

// Settings is everything the daemon reads from the environment.
type Settings struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// DatabaseURL selects the Postgres user store. Empty means in-memory.
	DatabaseURL string
	DBMaxConns  int32

	LogLevel slog.Level

	Engine authkeep.Config
}

// Load reads the given .env files (".env" when none are named), then the
// environment. Variables already set in the environment win over the files.
// A missing file is not an error; an unparsable value is.
func Load(files ...string) (*Settings, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	r := &reader{}
	s := &Settings{
		HTTPAddr:        r.str("HTTP_ADDR", ":8080"),
		ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		RedisAddr:       r.str("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         r.integer("REDIS_DB", 0),
		DatabaseURL:     r.str("DATABASE_URL", ""),
		DBMaxConns:      int32(r.integer("DB_MAX_CONNS", 10)),
		LogLevel:        r.level("LOG_LEVEL", slog.LevelInfo),
	}

	cfg := authkeep.DefaultConfig()
	cfg.Token.Secret = []byte(strings.TrimSpace(os.Getenv("JWT_SECRET")))
	cfg.Token.TTL = r.duration("JWT_TTL", cfg.Token.TTL)
	cfg.Token.Issuer = r.str("JWT_ISSUER", cfg.Token.Issuer)
	cfg.Token.Leeway = r.duration("JWT_LEEWAY", cfg.Token.Leeway)

	cfg.Session.KeyPrefix = r.str("SESSION_KEY_PREFIX", cfg.Session.KeyPrefix)
	cfg.Session.OperationTimeout = r.duration("SESSION_OPERATION_TIMEOUT", cfg.Session.OperationTimeout)
	cfg.Session.GuardedWrites = r.boolean("SESSION_GUARDED_WRITES", cfg.Session.GuardedWrites)

	cfg.Lockout.FailLimit = r.integer("LOCKOUT_FAIL_LIMIT", cfg.Lockout.FailLimit)
	cfg.Lockout.Duration = r.duration("LOCKOUT_DURATION", cfg.Lockout.Duration)
	cfg.Lockout.MaxUpdateRetries = r.integer("LOCKOUT_MAX_UPDATE_RETRIES", cfg.Lockout.MaxUpdateRetries)

	cfg.Password.Algorithm = r.str("PASSWORD_ALGORITHM", cfg.Password.Algorithm)
	cfg.Password.BcryptCost = r.integer("PASSWORD_BCRYPT_COST", cfg.Password.BcryptCost)

	cfg.Account.DefaultRole = r.str("ACCOUNT_DEFAULT_ROLE", cfg.Account.DefaultRole)
	cfg.Account.AdminRole = r.str("ACCOUNT_ADMIN_ROLE", cfg.Account.AdminRole)

	cfg.RateLimit.Enabled = r.boolean("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.MaxFailuresPerIP = r.integer("RATE_LIMIT_MAX_FAILURES_PER_IP", cfg.RateLimit.MaxFailuresPerIP)
	cfg.RateLimit.Window = r.duration("RATE_LIMIT_WINDOW", cfg.RateLimit.Window)

	cfg.Metrics.Enabled = r.boolean("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.EnableLatencyHistograms = r.boolean("METRICS_LATENCY_HISTOGRAMS", cfg.Metrics.EnableLatencyHistograms)

	cfg.Audit.Enabled = r.boolean("AUDIT_ENABLED", cfg.Audit.Enabled)
	cfg.Audit.BufferSize = r.integer("AUDIT_BUFFER_SIZE", cfg.Audit.BufferSize)
	cfg.Audit.DropIfFull = r.boolean("AUDIT_DROP_IF_FULL", cfg.Audit.DropIfFull)
	cfg.Audit.Exclude = r.list("AUDIT_EXCLUDE", cfg.Audit.Exclude)
	s.Engine = cfg

	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if s.HTTPAddr == "" {
		return errors.New("HTTP_ADDR cannot be empty")
	}
	if s.RedisAddr == "" {
		return errors.New("REDIS_ADDR cannot be empty")
	}
	if s.RedisDB < 0 {
		return errors.New("REDIS_DB must be >= 0")
	}
	if s.DBMaxConns < 1 {
		return errors.New("DB_MAX_CONNS must be positive")
	}
	if s.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	if err := s.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	return nil
}

// reader collects parse errors so Load reports every bad variable at once.
type reader struct {
	errs []error
}

func (r *reader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (r *reader) fail(key, raw string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: %w", key, raw, err))
}

func (r *reader) str(key, fallback string) string {
	if v, ok := r.lookup(key); ok {
		return v
	}
	return fallback
}

func (r *reader) list(key string, fallback []string) []string {
	raw, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *reader) integer(key string, fallback int) int {
	raw, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(key, raw, err)
		return fallback
	}
	return v
}

func (r *reader) boolean(key string, fallback bool) bool {
	raw, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		r.fail(key, raw, err)
		return fallback
	}
	return v
}

func (r *reader) duration(key string, fallback time.Duration) time.Duration {
	raw, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		r.fail(key, raw, err)
		return fallback
	}
	return v
}

func (r *reader) level(key string, fallback slog.Level) slog.Level {
	raw, ok := r.lookup(key)
	if !ok {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		r.fail(key, raw, err)
		return fallback
	}
	return lvl
}
