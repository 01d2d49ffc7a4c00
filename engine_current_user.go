package authkeep

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/authkeep/authkeep/internal/lockout"
	"github.com/authkeep/authkeep/jwt"
)

// CurrentUser resolves token to the account it authenticates.
//
// The token must verify, must equal the entry currently cached for its
// username, and must name an account that still exists, is enabled and is
// not locked. Every such rejection is an error satisfying
// errors.Is(err, ErrUnauthorized) whose message does not reveal the cause;
// the cause (ErrInvalidToken, ErrSessionMismatch, ErrAccountDisabled,
// ErrAccountLocked) remains reachable through errors.Is. An unreachable
// cache returns ErrSessionStoreUnavailable instead, which is not an
// authorization decision.
//
// The returned record never carries the password hash.
func (e *Engine) CurrentUser(ctx context.Context, token string) (User, error) {
	if err := e.ready(); err != nil {
		return User{}, err
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
	}

	u, _, err := e.authenticate(ctx, token)

	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			e.metricInc(MetricCurrentUserRejected)
		}
		return User{}, err
	}
	e.metricInc(MetricCurrentUserSuccess)
	return u.Sanitized(), nil
}

// authenticate returns the full stored record behind token with its claims.
func (e *Engine) authenticate(ctx context.Context, token string) (User, *jwt.Claims, error) {
	claims, err := e.codec.Parse(token)
	if err != nil {
		return User{}, nil, unauthorized(fmt.Errorf("%w: %w", ErrInvalidToken, err))
	}

	cached, found, err := e.sessions.Get(ctx, claims.Username)
	if err != nil {
		e.metricInc(MetricSessionStoreUnavailable)
		return User{}, nil, storeUnavailable(err)
	}
	if !found || subtle.ConstantTimeCompare([]byte(cached), []byte(token)) != 1 {
		e.metricInc(MetricSessionMismatch)
		return User{}, nil, unauthorized(ErrSessionMismatch)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return User{}, nil, unauthorized(fmt.Errorf("%w: subject is not a user id", ErrInvalidToken))
	}
	u, err := e.findByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, nil, unauthorized(fmt.Errorf("%w: %w", ErrAccountDisabled, ErrUserNotFound))
		}
		return User{}, nil, err
	}
	if u.Username != claims.Username {
		e.logger.WarnContext(ctx, "token subject and username disagree",
			slog.Int64("user_id", u.ID),
			slog.String("claimed", claims.Username))
		return User{}, nil, unauthorized(ErrSessionMismatch)
	}
	if !u.Enabled() {
		return User{}, nil, unauthorized(ErrAccountDisabled)
	}
	if e.policy.State(u.lockRecord(), e.now()) == lockout.Locked {
		return User{}, nil, unauthorized(ErrAccountLocked)
	}
	return u, claims, nil
}
