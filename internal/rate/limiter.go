package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config sets the per-IP failure budget.
type Config struct {
	MaxFailures int
	Window      time.Duration
}

// Limiter counts failed logins per client IP.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New returns a Limiter on redisClient.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: redisClient, config: cfg}
}

func ipKey(ip string) string {
	return "lip:" + ip
}

// Check returns ErrRateLimited when ip has used up its budget in the current
// window. An empty ip is never limited.
func (l *Limiter) Check(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}
	count, err := l.redis.Get(ctx, ipKey(ip)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxFailures) {
		return ErrRateLimited
	}
	return nil
}

// Fail records one failed login from ip.
func (l *Limiter) Fail(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}
	count, err := l.redis.Incr(ctx, ipKey(ip)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, ipKey(ip), l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

// Reset clears the counter for ip after a successful login.
func (l *Limiter) Reset(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}
	if err := l.redis.Del(ctx, ipKey(ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
