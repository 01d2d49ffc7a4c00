package authkeep

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/authkeep/authkeep/internal/audit"
	"github.com/authkeep/authkeep/internal/lockout"
	"github.com/authkeep/authkeep/internal/rate"
	"github.com/authkeep/authkeep/jwt"
	"github.com/authkeep/authkeep/password"
	"github.com/authkeep/authkeep/session"
)

// Engine is the authentication service. It holds no per-user state in
// memory and is safe for concurrent use.
type Engine struct {
	config    Config
	users     UserStore
	roles     RoleStore
	sessions  *session.Store
	codec     *jwt.Codec
	hasher    password.Hasher
	dummyHash string
	policy    lockout.Policy
	limiter   *rate.Limiter
	audit     *audit.Dispatcher
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// Close flushes buffered audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByEvent breaks AuditDropped down by event type.
func (e *Engine) AuditDroppedByEvent() map[string]uint64 {
	if e == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByEvent()
}

// MetricsSnapshot returns a copy of the engine counters and, when latency
// histograms are enabled, the CurrentUser buckets. A disabled Metrics yields
// empty maps.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e != nil {
		e.metrics.Inc(id)
	}
}

// LockPolicy returns the configured lockout limit and duration.
func (e *Engine) LockPolicy() (limit int, duration time.Duration) {
	return e.policy.Limit, e.policy.Duration
}

// ValidateToken reports whether token carries a valid signature and has not
// expired. It does not consult the session cache.
func (e *Engine) ValidateToken(token string) bool {
	if e == nil || e.codec == nil {
		return false
	}
	_, err := e.codec.Parse(token)
	return err == nil
}

// AdminRole returns the role that grants administrative operations.
func (e *Engine) AdminRole() string {
	return e.config.Account.AdminRole
}

// IsAdmin reports whether u holds the configured admin role.
func (e *Engine) IsAdmin(u User) bool {
	return u.HasRole(e.config.Account.AdminRole)
}

func (e *Engine) ready() error {
	if e == nil || e.users == nil || e.sessions == nil || e.codec == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) issue(u User) (string, *jwt.Claims, error) {
	token, err := e.codec.Issue(strconv.FormatInt(u.ID, 10), jwt.Identity{
		Username: u.Username,
		Roles:    u.RoleList(),
	}, e.config.Token.TTL)
	if err != nil {
		return "", nil, err
	}
	claims, err := e.codec.Parse(token)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// reusable returns the claims of cached when it still verifies and still
// describes u exactly.
func (e *Engine) reusable(cached string, u User) (*jwt.Claims, bool) {
	claims, err := e.codec.Parse(cached)
	if err != nil {
		return nil, false
	}
	if claims.Subject != strconv.FormatInt(u.ID, 10) || claims.Username != u.Username {
		return nil, false
	}
	if !slices.Equal(claims.Roles, u.RoleList()) {
		return nil, false
	}
	return claims, true
}

func (e *Engine) remaining(claims *jwt.Claims) time.Duration {
	if claims == nil || claims.ExpiresAt == nil {
		return e.config.Token.TTL
	}
	return claims.ExpiresAt.Sub(e.now())
}

// mutateUser applies change to u and writes it, reloading and reapplying on
// each version conflict. change may return an error to abort.
func (e *Engine) mutateUser(ctx context.Context, u User, change func(*User) error) (User, error) {
	for attempt := 0; ; attempt++ {
		next := u
		if err := change(&next); err != nil {
			return User{}, err
		}
		next.UpdatedAt = e.now()

		err := e.users.Update(ctx, &next)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return User{}, persistence(err)
		}

		e.metricInc(MetricVersionConflict)
		if attempt >= e.config.Lockout.MaxUpdateRetries {
			e.logger.WarnContext(ctx, "user update retries exhausted",
				slog.Int64("user_id", u.ID),
				slog.Int("attempts", attempt+1))
			return User{}, persistence(err)
		}

		fresh, err := e.users.FindByID(ctx, u.ID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return User{}, err
			}
			return User{}, persistence(err)
		}
		u = fresh
	}
}

func (e *Engine) findByID(ctx context.Context, id int64) (User, error) {
	u, err := e.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, persistence(err)
	}
	return u, nil
}

// dropSession removes the cached session of username after a change that
// must force re-authentication.
func (e *Engine) dropSession(ctx context.Context, username string) error {
	if _, err := e.sessions.Remove(ctx, username); err != nil {
		e.metricInc(MetricSessionStoreUnavailable)
		e.logger.WarnContext(ctx, "session invalidation failed",
			slog.String("username", username),
			slog.Any("error", err))
		return errors.Join(ErrSessionInvalidationFailed, storeUnavailable(err))
	}
	e.metricInc(MetricSessionInvalidated)
	return nil
}
