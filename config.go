package authkeep

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/authkeep/authkeep/jwt"
	"github.com/authkeep/authkeep/password"
	"golang.org/x/crypto/bcrypt"
)

// Config is the complete engine configuration. Start from DefaultConfig and
// override fields; Build validates the result.
type Config struct {
	Token     TokenConfig
	Session   SessionConfig
	Lockout   LockoutConfig
	Password  PasswordConfig
	Account   AccountConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
	Audit     AuditConfig
}

// TokenConfig controls token signing. Secret has no default and must be at
// least 32 bytes.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	Leeway time.Duration
}

// SessionConfig controls the session cache.
type SessionConfig struct {
	// KeyPrefix is prepended to the username to form the cache key.
	KeyPrefix        string
	OperationTimeout time.Duration
	// GuardedWrites makes login and refresh use compare-and-swap writes so
	// that racing logins for one username cannot both receive a live token.
	GuardedWrites bool
}

// LockoutConfig controls the consecutive-failure lockout.
type LockoutConfig struct {
	FailLimit int
	Duration  time.Duration
	// MaxUpdateRetries bounds optimistic-lock retries for one user update.
	MaxUpdateRetries int
}

// PasswordConfig selects the password hasher.
type PasswordConfig struct {
	Algorithm  string
	BcryptCost int
	Argon2     password.Argon2Config
}

// AccountConfig controls registration and role checks.
type AccountConfig struct {
	// DefaultRole is used when no RoleStore is set or it reports none.
	DefaultRole string
	AdminRole   string
}

// RateLimitConfig throttles failed logins per client IP. It needs a Redis
// client.
type RateLimitConfig struct {
	Enabled          bool
	MaxFailuresPerIP int
	Window           time.Duration
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// Exclude lists event types that are never emitted.
	Exclude []string
}

// DefaultConfig returns the production defaults without a signing secret.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			TTL: 24 * time.Hour,
		},
		Session: SessionConfig{
			KeyPrefix:        "login:",
			OperationTimeout: 2 * time.Second,
		},
		Lockout: LockoutConfig{
			FailLimit:        5,
			Duration:         30 * time.Minute,
			MaxUpdateRetries: 3,
		},
		Password: PasswordConfig{
			Algorithm:  password.AlgorithmBcrypt,
			BcryptCost: password.DefaultBcryptCost,
			Argon2:     password.DefaultArgon2Config(),
		},
		Account: AccountConfig{
			AdminRole: "ROLE_ADMIN",
		},
		RateLimit: RateLimitConfig{
			MaxFailuresPerIP: 50,
			Window:           15 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = append([]byte(nil), cfg.Token.Secret...)
	out.Audit.Exclude = append([]string(nil), cfg.Audit.Exclude...)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if len(c.Token.Secret) < jwt.MinSecretLength {
		return fmt.Errorf("Token Secret must be at least %d bytes", jwt.MinSecretLength)
	}
	if c.Token.TTL <= 0 {
		return errors.New("Token TTL must be > 0")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be within [0, 2m]")
	}

	if c.Session.OperationTimeout <= 0 {
		return errors.New("Session OperationTimeout must be > 0")
	}

	if c.Lockout.FailLimit < 1 {
		return errors.New("Lockout FailLimit must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}
	if c.Lockout.MaxUpdateRetries < 0 {
		return errors.New("Lockout MaxUpdateRetries must be >= 0")
	}

	switch strings.ToLower(c.Password.Algorithm) {
	case "", password.AlgorithmBcrypt:
		if c.Password.BcryptCost != 0 && (c.Password.BcryptCost < bcrypt.MinCost || c.Password.BcryptCost > bcrypt.MaxCost) {
			return fmt.Errorf("Password BcryptCost must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost)
		}
	case password.AlgorithmArgon2id:
	default:
		return fmt.Errorf("Password Algorithm %q is not supported", c.Password.Algorithm)
	}

	if strings.TrimSpace(c.Account.AdminRole) == "" {
		return errors.New("Account AdminRole must be set")
	}
	if strings.Contains(c.Account.DefaultRole, ",") {
		return errors.New("Account DefaultRole must be a single role")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.MaxFailuresPerIP < 1 {
			return errors.New("RateLimit MaxFailuresPerIP must be >= 1")
		}
		if c.RateLimit.Window <= 0 {
			return errors.New("RateLimit Window must be > 0")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
