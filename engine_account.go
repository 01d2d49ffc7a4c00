package authkeep

import (
	"context"
	"errors"
	"strings"
)

// Register creates an account with the default role and returns it without
// its password hash.
//
// The default role comes from the RoleStore when one is configured, falling
// back to Config.Account.DefaultRole. With neither, Register returns
// ErrNoDefaultRole and creates nothing.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (User, error) {
	if err := e.ready(); err != nil {
		return User{}, err
	}

	// Usernames are exact identifiers. Padding is rejected rather than
	// trimmed so that the stored name is the one Login will be given.
	username := req.Username
	if strings.TrimSpace(username) != username || username == "" || req.Password == "" {
		return User{}, ErrInvalidRequest
	}

	if _, err := e.users.FindByUsername(ctx, username); err == nil {
		e.registerDuplicate(ctx, username)
		return User{}, ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, persistence(err)
	}

	role, err := e.defaultRole(ctx)
	if err != nil {
		return User{}, err
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return User{}, persistence(err)
	}

	now := e.now()
	u := User{
		Username:        username,
		PasswordHash:    hash,
		Phone:           strings.TrimSpace(req.Phone),
		Email:           strings.TrimSpace(req.Email),
		Status:          StatusNormal,
		Roles:           role,
		PasswordResetAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.users.Insert(ctx, &u); err != nil {
		// A racing insert for the same name surfaces here.
		if errors.Is(err, ErrUsernameTaken) {
			e.registerDuplicate(ctx, username)
			return User{}, ErrUsernameTaken
		}
		return User{}, persistence(err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, &u, username, nil, nil)
	return u.Sanitized(), nil
}

func (e *Engine) registerDuplicate(ctx context.Context, username string) {
	e.metricInc(MetricRegisterDuplicate)
	e.emitAudit(ctx, auditEventRegisterDuplicate, false, nil, username, ErrUsernameTaken, nil)
}

func (e *Engine) defaultRole(ctx context.Context) (string, error) {
	if e.roles != nil {
		role, err := e.roles.DefaultRole(ctx)
		switch {
		case err == nil && strings.TrimSpace(role) != "":
			return NormalizeRole(role), nil
		case err != nil && !errors.Is(err, ErrNoDefaultRole):
			return "", persistence(err)
		}
	}
	if role := strings.TrimSpace(e.config.Account.DefaultRole); role != "" {
		return NormalizeRole(role), nil
	}
	return "", ErrNoDefaultRole
}

// DeleteAccount soft-deletes the account token authenticates and removes its
// session. The username becomes available for registration again.
func (e *Engine) DeleteAccount(ctx context.Context, token string) error {
	if err := e.ready(); err != nil {
		return err
	}
	u, _, err := e.authenticate(ctx, token)
	if err != nil {
		return err
	}

	deleted, err := e.mutateUser(ctx, u, func(u *User) error {
		u.Deleted = true
		return nil
	})
	if err != nil {
		return err
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, true, &deleted, deleted.Username, nil, nil)
	return e.dropSession(ctx, deleted.Username)
}
