package authkeep

import (
	"context"
	"errors"
	"strings"
)

// Logout removes the cached session of username. Removing an absent
// session is not an error.
func (e *Engine) Logout(ctx context.Context, username string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(username) == "" {
		return ErrInvalidRequest
	}
	if _, err := e.sessions.Remove(ctx, username); err != nil {
		e.metricInc(MetricSessionStoreUnavailable)
		return storeUnavailable(err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, nil, username, nil, nil)
	return nil
}

// LogoutToken ends the session token belongs to. A token that verifies but
// has already been superseded leaves the newer session in place and returns
// nil.
func (e *Engine) LogoutToken(ctx context.Context, token string) error {
	if err := e.ready(); err != nil {
		return err
	}
	claims, err := e.codec.Parse(token)
	if err != nil {
		return unauthorized(errors.Join(ErrInvalidToken, err))
	}
	if _, err := e.sessions.RemoveIfCurrent(ctx, claims.Username, token); err != nil {
		e.metricInc(MetricSessionStoreUnavailable)
		return storeUnavailable(err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, nil, claims.Username, nil, map[string]string{"sub": claims.Subject})
	return nil
}

// RefreshToken exchanges the live session token for a new one carrying the
// account's current roles. The presented token stops authenticating.
//
// A concurrent login or refresh that replaced the session first makes this
// call fail with an error matching ErrUnauthorized and ErrSessionMismatch.
func (e *Engine) RefreshToken(ctx context.Context, token string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	u, _, err := e.authenticate(ctx, token)
	if err != nil {
		return "", err
	}

	next, _, err := e.issue(u)
	if err != nil {
		return "", errors.Join(ErrSessionCreationFailed, err)
	}

	swapped, err := e.sessions.Replace(ctx, u.Username, token, next, e.config.Token.TTL)
	if err != nil {
		e.metricInc(MetricSessionStoreUnavailable)
		return "", storeUnavailable(err)
	}
	if !swapped {
		e.metricInc(MetricSessionMismatch)
		return "", unauthorized(ErrSessionMismatch)
	}

	e.metricInc(MetricSessionRefreshed)
	e.emitAudit(ctx, auditEventSessionRefreshed, true, &u, u.Username, nil, nil)
	return next, nil
}
