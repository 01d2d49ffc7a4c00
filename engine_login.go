package authkeep

import (
	"context"
	"errors"
	"log/slog"

	"github.com/authkeep/authkeep/internal/lockout"
	"github.com/authkeep/authkeep/internal/rate"
)

// Login verifies username and password and returns the live session token.
//
// An unknown username and a wrong password both return ErrInvalidCredentials
// after one password hash comparison. A wrong password increments the
// account's failure counter; the failure that reaches the limit returns
// ErrTooManyAttempts and later attempts return ErrAccountLocked until the
// lock expires, whatever the password. A banned or deleted account returns
// ErrAccountDisabled, but only once the password has been verified.
//
// If the cache already holds a valid token for this user it is returned again
// and its cache TTL extended. Otherwise a new token replaces the entry.
// Client IP and device are read from ctx (see WithClientIP and
// WithClientDevice).
func (e *Engine) Login(ctx context.Context, username, password string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	ip := clientIPFromContext(ctx)

	if e.limiter != nil {
		if err := e.limiter.Check(ctx, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, auditEventLoginRateLimited, false, nil, username, ErrLoginRateLimited, nil)
				return "", ErrLoginRateLimited
			}
			return "", storeUnavailable(err)
		}
	}

	user, err := e.users.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return "", persistence(err)
		}
		_, _ = e.hasher.Verify(password, e.dummyHash)
		e.loginFailed(ctx, nil, username, ErrInvalidCredentials, "user_not_found")
		return "", ErrInvalidCredentials
	}

	if e.policy.State(user.lockRecord(), e.now()) == lockout.Locked {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, &user, username, ErrAccountLocked, nil)
		return "", ErrAccountLocked
	}

	ok, err := e.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		e.logger.WarnContext(ctx, "stored password hash unusable", slog.Int64("user_id", user.ID))
		ok = false
	}
	if !ok {
		return "", e.recordFailure(ctx, user)
	}

	if !user.Enabled() {
		e.metricInc(MetricAccountDisabled)
		e.loginFailed(ctx, &user, username, ErrAccountDisabled, "account_disabled")
		return "", ErrAccountDisabled
	}

	token, err := e.establishSession(ctx, user)
	if err != nil {
		e.loginFailed(ctx, &user, username, err, "session")
		return "", err
	}

	if e.limiter != nil {
		if err := e.limiter.Reset(ctx, ip); err != nil {
			e.logger.WarnContext(ctx, "login throttle reset failed", slog.Any("error", err))
		}
	}
	e.rehashIfNeeded(ctx, user, password)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, &user, username, nil, nil)
	return token, nil
}

func (e *Engine) loginFailed(ctx context.Context, u *User, username string, err error, reason string) {
	if e.limiter != nil && (errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrTooManyAttempts)) {
		if ferr := e.limiter.Fail(ctx, clientIPFromContext(ctx)); ferr != nil {
			e.logger.WarnContext(ctx, "login throttle update failed", slog.Any("error", ferr))
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, u, username, err, map[string]string{"reason": reason})
}

// recordFailure applies one failed attempt to the stored counter, retrying on
// version conflicts so that concurrent failures are never lost.
func (e *Engine) recordFailure(ctx context.Context, user User) error {
	var outcome lockout.Outcome
	updated, err := e.mutateUser(ctx, user, func(u *User) error {
		now := e.now()
		rec := u.lockRecord()
		if e.policy.State(rec, now) == lockout.Locked {
			// A concurrent attempt locked the account first.
			return ErrAccountLocked
		}
		next, out := e.policy.Failure(rec, now)
		u.applyLock(next)
		outcome = out
		return nil
	})
	switch {
	case errors.Is(err, ErrAccountLocked):
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, &user, user.Username, ErrAccountLocked, nil)
		return ErrAccountLocked
	case err != nil:
		return err
	}

	if outcome == lockout.LockedOut {
		e.metricInc(MetricAccountLockedOut)
		e.emitAudit(ctx, auditEventAccountLockedOut, false, &updated, updated.Username, ErrTooManyAttempts, nil)
		e.loginFailed(ctx, &updated, updated.Username, ErrTooManyAttempts, "lockout")
		return ErrTooManyAttempts
	}
	e.loginFailed(ctx, &updated, updated.Username, ErrInvalidCredentials, "password_mismatch")
	return ErrInvalidCredentials
}

// establishSession runs the success transition and returns the token the
// caller should use: the cached one while it is still valid, otherwise a
// freshly minted one that replaces it.
func (e *Engine) establishSession(ctx context.Context, user User) (string, error) {
	cached, found, err := e.sessions.Get(ctx, user.Username)
	if err != nil {
		e.metricInc(MetricSessionStoreUnavailable)
		return "", storeUnavailable(err)
	}

	if found {
		if claims, ok := e.reusable(cached, user); ok && e.remaining(claims) > 0 {
			if lockout.Dirty(user.lockRecord()) {
				if _, err := e.mutateUser(ctx, user, e.successTransition); err != nil {
					return "", err
				}
			}
			touched, err := e.sessions.Touch(ctx, user.Username, e.remaining(claims))
			if err != nil {
				e.metricInc(MetricSessionStoreUnavailable)
				return "", storeUnavailable(err)
			}
			if touched {
				e.metricInc(MetricLoginReused)
				return cached, nil
			}
			// Expired between Get and Touch; mint a new one below.
			cached = ""
		}
	} else {
		cached = ""
	}

	token, _, err := e.issue(user)
	if err != nil {
		return "", errors.Join(ErrSessionCreationFailed, err)
	}

	ip, device := clientIPFromContext(ctx), clientDeviceFromContext(ctx)
	if _, err := e.mutateUser(ctx, user, func(u *User) error {
		if err := e.successTransition(u); err != nil {
			return err
		}
		now := e.now()
		u.LastLoginAt = &now
		u.LastLoginIP = ip
		u.LastLoginDevice = device
		return nil
	}); err != nil {
		return "", err
	}

	if !e.config.Session.GuardedWrites {
		if err := e.sessions.Put(ctx, user.Username, token, e.config.Token.TTL); err != nil {
			e.metricInc(MetricSessionStoreUnavailable)
			return "", storeUnavailable(err)
		}
		e.metricInc(MetricSessionCreated)
		return token, nil
	}

	swapped, err := e.sessions.Replace(ctx, user.Username, cached, token, e.config.Token.TTL)
	if err != nil {
		e.metricInc(MetricSessionStoreUnavailable)
		return "", storeUnavailable(err)
	}
	if swapped {
		e.metricInc(MetricSessionCreated)
		return token, nil
	}

	// A concurrent login won the write. Hand out its token if it is usable.
	winner, found, err := e.sessions.Get(ctx, user.Username)
	if err != nil {
		e.metricInc(MetricSessionStoreUnavailable)
		return "", storeUnavailable(err)
	}
	if found {
		if _, ok := e.reusable(winner, user); ok {
			e.metricInc(MetricLoginReused)
			return winner, nil
		}
	}
	return "", ErrSessionCreationFailed
}

// successTransition clears the counter and any lapsed lock. A lock that
// became active again in the meantime aborts the login.
func (e *Engine) successTransition(u *User) error {
	rec := u.lockRecord()
	if e.policy.State(rec, e.now()) == lockout.Locked {
		return ErrAccountLocked
	}
	u.applyLock(e.policy.Success(rec))
	return nil
}
