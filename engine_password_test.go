package authkeep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/authkeep/authkeep/session"
)

// failingDeleteCache breaks only Delete, leaving reads working.
type failingDeleteCache struct {
	*session.RedisCache
}

func (c failingDeleteCache) Delete(context.Context, string) (bool, error) {
	return false, errors.New("connection reset by peer")
}

func TestChangePasswordInvalidatesSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, "alice", "old-password-123")
	token := env.login(t, "alice", "old-password-123")
	before := env.users.get(t, "alice")

	env.clock.Advance(time.Second)
	u, err := env.engine.ChangePassword(ctx, token, "old-password-123", "new-password-456")
	if err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	if u.PasswordHash != "" {
		t.Fatal("expected sanitized user")
	}
	if u.PasswordResetAt == nil || !u.PasswordResetAt.After(*before.PasswordResetAt) {
		t.Fatal("expected password reset time advanced")
	}

	if !env.engine.ValidateToken(token) {
		t.Fatal("old token still parses until it expires")
	}
	if _, err := env.engine.CurrentUser(ctx, token); !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("expected ErrSessionMismatch, got %v", err)
	}

	if _, err := env.engine.Login(ctx, "alice", "old-password-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	env.login(t, "alice", "new-password-456")
}

func TestChangePasswordWrongOld(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "old-password-123")
	token := env.login(t, "alice", "old-password-123")

	_, err := env.engine.ChangePassword(context.Background(), token, "guess", "new-password-456")
	if !errors.Is(err, ErrWrongOldPassword) {
		t.Fatalf("expected ErrWrongOldPassword, got %v", err)
	}
	if _, err := env.engine.CurrentUser(context.Background(), token); err != nil {
		t.Fatalf("a rejected change must keep the session: %v", err)
	}
}

func TestChangePasswordReuse(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "old-password-123")
	token := env.login(t, "alice", "old-password-123")

	_, err := env.engine.ChangePassword(context.Background(), token, "old-password-123", "old-password-123")
	if !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
}

func TestChangePasswordRequiresLiveSession(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "old-password-123")
	token := env.login(t, "alice", "old-password-123")
	if err := env.engine.Logout(context.Background(), "alice"); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	_, err := env.engine.ChangePassword(context.Background(), token, "old-password-123", "new-password-456")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestChangePasswordInvalidationFailure(t *testing.T) {
	env := newTestEnv(t, nil, func(b *Builder) {
		b.WithSessionCache(failingDeleteCache{session.NewRedisCache(b.redis)})
	})
	ctx := context.Background()
	env.register(t, "alice", "old-password-123")
	token := env.login(t, "alice", "old-password-123")

	u, err := env.engine.ChangePassword(ctx, token, "old-password-123", "new-password-456")
	if !errors.Is(err, ErrSessionInvalidationFailed) || !errors.Is(err, ErrSessionStoreUnavailable) {
		t.Fatalf("expected invalidation failure, got %v", err)
	}
	if u.Username != "alice" {
		t.Fatalf("expected the updated user alongside the error, got %+v", u)
	}

	stored := env.users.get(t, "alice")
	ok, verr := env.engine.hasher.Verify("new-password-456", stored.PasswordHash)
	if verr != nil || !ok {
		t.Fatalf("expected new password persisted, ok=%v err=%v", ok, verr)
	}
}

func TestResetPasswordClearsLockAndSession(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Lockout.FailLimit = 2
	})
	ctx := context.Background()
	registered := env.register(t, "alice", "old-password-123")
	token := env.login(t, "alice", "old-password-123")
	for i := 0; i < 2; i++ {
		_, _ = env.engine.Login(ctx, "alice", "wrong")
	}

	if _, err := env.engine.ResetPassword(ctx, registered.ID, "reset-password-789"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if _, err := env.engine.CurrentUser(ctx, token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected session ended, got %v", err)
	}
	u := env.users.get(t, "alice")
	if u.Status != StatusNormal || u.LoginFailCount != 0 {
		t.Fatalf("expected lock cleared, got %v %d", u.Status, u.LoginFailCount)
	}
	env.login(t, "alice", "reset-password-789")

	if _, err := env.engine.ResetPassword(ctx, registered.ID, ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
