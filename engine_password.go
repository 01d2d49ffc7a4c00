package authkeep

import (
	"context"
	"errors"
	"log/slog"

	"github.com/authkeep/authkeep/password"
)

// ChangePassword replaces the password of the account token authenticates
// and ends its session.
//
// oldPassword must match the stored hash (ErrWrongOldPassword) and
// newPassword must differ from it (ErrPasswordReuse). When the password was
// changed but the session could not be removed, the updated user is returned
// together with an error matching both ErrSessionInvalidationFailed and
// ErrSessionStoreUnavailable; the presented token may stay usable until the
// cache recovers or the token expires.
func (e *Engine) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) (User, error) {
	if err := e.ready(); err != nil {
		return User{}, err
	}
	if newPassword == "" {
		return User{}, ErrInvalidRequest
	}

	u, _, err := e.authenticate(ctx, token)
	if err != nil {
		return User{}, err
	}

	ok, err := e.hasher.Verify(oldPassword, u.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeInvalid, false, &u, u.Username, ErrWrongOldPassword, nil)
		return User{}, ErrWrongOldPassword
	}
	if oldPassword == newPassword {
		e.emitAudit(ctx, auditEventPasswordChangeInvalid, false, &u, u.Username, ErrPasswordReuse, nil)
		return User{}, ErrPasswordReuse
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return User{}, persistence(err)
	}
	updated, err := e.mutateUser(ctx, u, func(u *User) error {
		now := e.now()
		u.PasswordHash = hash
		u.PasswordResetAt = &now
		return nil
	})
	if err != nil {
		return User{}, err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, &updated, updated.Username, nil, nil)
	if err := e.dropSession(ctx, updated.Username); err != nil {
		return updated.Sanitized(), err
	}
	return updated.Sanitized(), nil
}

// ResetPassword sets a new password for the account id without knowledge of
// the old one, clears any lockout and ends the account's session.
func (e *Engine) ResetPassword(ctx context.Context, id int64, newPassword string) (User, error) {
	if err := e.ready(); err != nil {
		return User{}, err
	}
	if newPassword == "" {
		return User{}, ErrInvalidRequest
	}
	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return User{}, persistence(err)
	}

	return e.adminUpdate(ctx, id, adminChange{
		event:  auditEventPasswordReset,
		metric: MetricPasswordReset,
		drop:   true,
		apply: func(u *User) error {
			now := e.now()
			u.PasswordHash = hash
			u.PasswordResetAt = &now
			u.applyLock(e.policy.Success(u.lockRecord()))
			return nil
		},
	})
}

// rehashIfNeeded upgrades a stored hash produced with weaker parameters than
// the current hasher's. Failures are logged and otherwise ignored.
func (e *Engine) rehashIfNeeded(ctx context.Context, u User, plain string) {
	r, ok := e.hasher.(password.Rehasher)
	if !ok {
		return
	}
	needs, err := r.NeedsRehash(u.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.hasher.Hash(plain)
	if err != nil {
		return
	}
	_, err = e.mutateUser(ctx, u, func(next *User) error {
		if next.PasswordHash != u.PasswordHash {
			// Changed concurrently; leave the newer hash alone.
			return errSkipRehash
		}
		next.PasswordHash = hash
		return nil
	})
	if err != nil && !errors.Is(err, errSkipRehash) {
		e.logger.WarnContext(ctx, "password rehash failed",
			slog.Int64("user_id", u.ID),
			slog.Any("error", err))
	}
}

var errSkipRehash = errors.New("rehash skipped")
