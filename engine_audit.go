package authkeep

import (
	"context"
	"errors"
	"strconv"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginLocked           = "login_locked"
	auditEventLoginRateLimited      = "login_rate_limited"
	auditEventAccountLockedOut      = "account_locked_out"
	auditEventRegisterSuccess       = "register_success"
	auditEventRegisterDuplicate     = "register_duplicate"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeInvalid = "password_change_invalid_old"
	auditEventPasswordReset         = "password_reset"
	auditEventLogout                = "logout"
	auditEventSessionRefreshed      = "session_refreshed"
	auditEventAccountBanned         = "account_banned"
	auditEventAccountUnbanned       = "account_unbanned"
	auditEventAccountUnlocked       = "account_unlocked"
	auditEventAccountDeleted        = "account_deleted"
	auditEventRolesChanged          = "roles_changed"
)

// AuditErrorCode is the stable error label written to audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrSessionMismatch    AuditErrorCode = "session_mismatch"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrPersistence        AuditErrorCode = "persistence_failure"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrNoDefaultRole      AuditErrorCode = "no_default_role"
	auditErrWrongOldPassword   AuditErrorCode = "wrong_old_password"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrInvalidation       AuditErrorCode = "session_invalidation_failed"
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, u *User, username string, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Username:  username,
		IP:        clientIPFromContext(ctx),
		Device:    clientDeviceFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if u != nil {
		event.UserID = strconv.FormatInt(u.ID, 10)
		if event.Username == "" {
			event.Username = u.Username
		}
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// auditErrorCode checks the most specific kinds first: an unauthorized error
// wraps its cause, and ErrTooManyAttempts wraps ErrAccountLocked.
func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionMismatch):
		return auditErrSessionMismatch
	case errors.Is(err, ErrSessionInvalidationFailed):
		return auditErrInvalidation
	case errors.Is(err, ErrSessionStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrPersistenceFailure):
		return auditErrPersistence
	case errors.Is(err, ErrUsernameTaken):
		return auditErrDuplicate
	case errors.Is(err, ErrNoDefaultRole):
		return auditErrNoDefaultRole
	case errors.Is(err, ErrWrongOldPassword):
		return auditErrWrongOldPassword
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	default:
		return auditErrInternal
	}
}
