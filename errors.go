package authkeep

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is the single outward signal for a rejected bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials covers both an unknown username and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked reports an active, unexpired lockout.
	ErrAccountLocked = errors.New("account locked")
	// ErrTooManyAttempts is returned by the failed login that triggers a lockout.
	ErrTooManyAttempts = fmt.Errorf("%w: too many failed attempts", ErrAccountLocked)
	// ErrAccountDisabled reports a banned or soft-deleted account.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrInvalidToken reports a token with a bad signature, bad encoding or past expiry.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSessionMismatch reports a valid token that is no longer the cached session.
	ErrSessionMismatch = errors.New("session mismatch")
	// ErrSessionStoreUnavailable reports that the session cache could not be reached.
	ErrSessionStoreUnavailable = errors.New("session store unavailable")
	// ErrSessionCreationFailed reports that a token was issued but could not be cached.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrSessionInvalidationFailed is joined with the store error when a
	// credential change succeeded but the old session could not be removed.
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")
	// ErrPersistenceFailure reports a failed user store read or write.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrUsernameTaken is returned by Register for an existing username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrNoDefaultRole is returned by Register when no default role is configured.
	ErrNoDefaultRole = errors.New("no default role configured")
	// ErrWrongOldPassword is returned by ChangePassword when the current
	// password does not verify.
	ErrWrongOldPassword = errors.New("old password does not match")
	// ErrPasswordReuse rejects a new password equal to the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrInvalidRequest reports missing or malformed input, such as an empty
	// password or a username with surrounding whitespace.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrLoginRateLimited is returned by Login while the client IP is throttled.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrEngineNotReady is returned by operations on a nil or zero-value Engine.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrUserNotFound is returned by UserStore lookups.
	ErrUserNotFound = errors.New("user not found")
	// ErrVersionConflict is returned by UserStore.Update when the record's
	// version no longer matches the stored one.
	ErrVersionConflict = errors.New("user record version conflict")
)

// unauthorizedError hides the specific cause behind a generic message while
// keeping it reachable through errors.Is and errors.As.
type unauthorizedError struct {
	cause error
}

func (e *unauthorizedError) Error() string        { return ErrUnauthorized.Error() }
func (e *unauthorizedError) Is(target error) bool { return target == ErrUnauthorized }
func (e *unauthorizedError) Unwrap() error        { return e.cause }

func unauthorized(cause error) error {
	return &unauthorizedError{cause: cause}
}

func persistence(err error) error {
	return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
}

func storeUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
}
