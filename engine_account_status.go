package authkeep

import (
	"context"
	"strings"
)

type adminChange struct {
	event    string
	metric   MetricID
	drop     bool
	metadata map[string]string
	apply    func(*User) error
}

// BanUser marks the account BANNED and ends its session. A banned account
// cannot log in regardless of password or lockout state.
func (e *Engine) BanUser(ctx context.Context, id int64) (User, error) {
	return e.adminUpdate(ctx, id, adminChange{
		event:  auditEventAccountBanned,
		metric: MetricAccountBanned,
		drop:   true,
		apply: func(u *User) error {
			u.Status = StatusBanned
			return nil
		},
	})
}

// UnbanUser returns a banned account to NORMAL with a cleared failure counter.
func (e *Engine) UnbanUser(ctx context.Context, id int64) (User, error) {
	return e.adminUpdate(ctx, id, adminChange{
		event:  auditEventAccountUnbanned,
		metric: MetricAccountUnbanned,
		apply: func(u *User) error {
			u.Status = StatusNormal
			u.applyLock(e.policy.Success(u.lockRecord()))
			return nil
		},
	})
}

// UnlockUser lifts a lockout before it expires. It also clears a LOCKED
// status that has no lock time. A BANNED status is left as is.
func (e *Engine) UnlockUser(ctx context.Context, id int64) (User, error) {
	return e.adminUpdate(ctx, id, adminChange{
		event:  auditEventAccountUnlocked,
		metric: MetricAccountUnlocked,
		apply: func(u *User) error {
			u.applyLock(e.policy.Success(u.lockRecord()))
			return nil
		},
	})
}

// SetRoles replaces the roles of account id. Each role is stored with the
// ROLE_ prefix. The session is ended so the next token carries the new roles.
func (e *Engine) SetRoles(ctx context.Context, id int64, roles []string) (User, error) {
	normalized := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		r = NormalizeRole(r)
		if r == "" || strings.Contains(r, ",") {
			return User{}, ErrInvalidRequest
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		normalized = append(normalized, r)
	}
	if len(normalized) == 0 {
		return User{}, ErrInvalidRequest
	}

	joined := JoinRoles(normalized)
	return e.adminUpdate(ctx, id, adminChange{
		event:    auditEventRolesChanged,
		metric:   MetricRolesChanged,
		drop:     true,
		metadata: map[string]string{"roles": joined},
		apply: func(u *User) error {
			u.Roles = joined
			return nil
		},
	})
}

// adminUpdate loads id, applies c with version retry and records the
// change. When c.drop is set, a failed session removal is returned joined
// with the already persisted user.
func (e *Engine) adminUpdate(ctx context.Context, id int64, c adminChange) (User, error) {
	if err := e.ready(); err != nil {
		return User{}, err
	}
	u, err := e.findByID(ctx, id)
	if err != nil {
		return User{}, err
	}

	updated, err := e.mutateUser(ctx, u, c.apply)
	if err != nil {
		e.emitAudit(ctx, c.event, false, &u, u.Username, err, c.metadata)
		return User{}, err
	}

	e.metricInc(c.metric)
	e.emitAudit(ctx, c.event, true, &updated, updated.Username, nil, c.metadata)
	if c.drop {
		if err := e.dropSession(ctx, updated.Username); err != nil {
			return updated.Sanitized(), err
		}
	}
	return updated.Sanitized(), nil
}
