package authkeep

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterAssignsDefaultRole(t *testing.T) {
	env := newTestEnv(t, nil)

	u, err := env.engine.Register(context.Background(), RegisterRequest{
		Username: "alice",
		Password: "correct-password-123",
		Email:    "alice@example.com",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if u.Username != "alice" || u.Roles != "ROLE_USER" || u.Status != StatusNormal {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.PasswordHash != "" {
		t.Fatal("register must not return the password hash")
	}
	if u.PasswordResetAt == nil {
		t.Fatal("expected password reset time set")
	}

	stored := env.users.get(t, "alice")
	if stored.PasswordHash == "" || stored.PasswordHash == "correct-password-123" {
		t.Fatal("expected a hashed password stored")
	}
	ok, err := env.engine.hasher.Verify("correct-password-123", stored.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("stored hash does not verify: ok=%v err=%v", ok, err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "correct-password-123")

	_, err := env.engine.Register(context.Background(), RegisterRequest{Username: "alice", Password: "x"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRegisterDuplicate]; got != 1 {
		t.Fatalf("expected duplicate counted, got %d", got)
	}
}

func TestRegisterRacingInsertMapsToTaken(t *testing.T) {
	env := newTestEnv(t, nil)
	env.users.insertErr = ErrUsernameTaken

	_, err := env.engine.Register(context.Background(), RegisterRequest{Username: "alice", Password: "x"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestRegisterNoDefaultRole(t *testing.T) {
	env := newTestEnv(t, nil)
	env.users.role = ""

	_, err := env.engine.Register(context.Background(), RegisterRequest{Username: "alice", Password: "x"})
	if !errors.Is(err, ErrNoDefaultRole) {
		t.Fatalf("expected ErrNoDefaultRole, got %v", err)
	}
	if env.users.nextID != 0 {
		t.Fatal("nothing may be stored without a role")
	}
}

func TestRegisterConfigDefaultRoleFallback(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Account.DefaultRole = "MEMBER"
	})
	env.users.role = ""

	u := env.register(t, "alice", "correct-password-123")
	if u.Roles != "ROLE_MEMBER" {
		t.Fatalf("expected fallback role, got %q", u.Roles)
	}
}

func TestRegisterFailures(t *testing.T) {
	env := newTestEnv(t, nil)

	if _, err := env.engine.Register(context.Background(), RegisterRequest{Username: " ", Password: "x"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := env.engine.Register(context.Background(), RegisterRequest{Username: "alice"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	for _, padded := range []string{"alice ", " alice", "\talice"} {
		if _, err := env.engine.Register(context.Background(), RegisterRequest{Username: padded, Password: "x"}); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("register %q: expected ErrInvalidRequest, got %v", padded, err)
		}
	}
	if _, err := env.users.FindByUsername(context.Background(), "alice"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("rejected registrations must not insert, got %v", err)
	}

	env.users.insertErr = errors.New("disk full")
	if _, err := env.engine.Register(context.Background(), RegisterRequest{Username: "alice", Password: "x"}); !errors.Is(err, ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure, got %v", err)
	}

	env.users.insertErr = nil
	env.users.roleErr = errors.New("role table missing")
	if _, err := env.engine.Register(context.Background(), RegisterRequest{Username: "alice", Password: "x"}); !errors.Is(err, ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure for role lookup, got %v", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "correct-password-123")
	token := env.login(t, "alice", "correct-password-123")

	if err := env.engine.DeleteAccount(context.Background(), token); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if got := env.cached(t, "alice"); got != "" {
		t.Fatal("expected session removed")
	}
	if _, err := env.engine.Login(context.Background(), "alice", "correct-password-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected deleted account to be unknown, got %v", err)
	}

	// The name is free again.
	env.register(t, "alice", "another-password-456")
}

func TestBanDropsSessionAndUnbanRestores(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	registered := env.register(t, "alice", "correct-password-123")
	token := env.login(t, "alice", "correct-password-123")

	banned, err := env.engine.BanUser(ctx, registered.ID)
	if err != nil {
		t.Fatalf("ban failed: %v", err)
	}
	if banned.Status != StatusBanned || banned.Enabled() {
		t.Fatalf("expected BANNED, got %v", banned.Status)
	}
	if _, err := env.engine.CurrentUser(ctx, token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected banned token rejected, got %v", err)
	}

	u, err := env.engine.UnbanUser(ctx, registered.ID)
	if err != nil {
		t.Fatalf("unban failed: %v", err)
	}
	if u.Status != StatusNormal {
		t.Fatalf("expected NORMAL, got %v", u.Status)
	}
	env.login(t, "alice", "correct-password-123")
}

func TestBanSurvivesLockout(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Lockout.FailLimit = 1
	})
	ctx := context.Background()
	registered := env.register(t, "alice", "correct-password-123")
	if _, err := env.engine.BanUser(ctx, registered.ID); err != nil {
		t.Fatalf("ban failed: %v", err)
	}

	_, _ = env.engine.Login(ctx, "alice", "wrong")
	if u := env.users.get(t, "alice"); u.Status != StatusBanned {
		t.Fatalf("lockout must not replace BANNED, got %v", u.Status)
	}
	if _, err := env.engine.UnlockUser(ctx, registered.ID); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if u := env.users.get(t, "alice"); u.Status != StatusBanned {
		t.Fatalf("unlock must not lift a ban, got %v", u.Status)
	}
}

func TestSetRoles(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	registered := env.register(t, "alice", "correct-password-123")
	env.login(t, "alice", "correct-password-123")

	u, err := env.engine.SetRoles(ctx, registered.ID, []string{"USER", "ROLE_ADMIN", "ADMIN"})
	if err != nil {
		t.Fatalf("set roles failed: %v", err)
	}
	if u.Roles != "ROLE_USER,ROLE_ADMIN" {
		t.Fatalf("unexpected roles %q", u.Roles)
	}
	if !env.engine.IsAdmin(u) {
		t.Fatal("expected admin")
	}
	if got := env.cached(t, "alice"); got != "" {
		t.Fatal("role change must end the session")
	}

	if _, err := env.engine.SetRoles(ctx, registered.ID, nil); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := env.engine.SetRoles(ctx, registered.ID, []string{"A,B"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := env.engine.SetRoles(ctx, 999, []string{"USER"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestHasRoleNormalizesPrefix(t *testing.T) {
	u := User{Roles: "ROLE_USER, ADMIN"}
	for _, role := range []string{"USER", "ROLE_USER", "ADMIN", "ROLE_ADMIN"} {
		if !u.HasRole(role) {
			t.Fatalf("expected role %q", role)
		}
	}
	if u.HasRole("EDITOR") || u.HasRole("") {
		t.Fatal("unexpected role match")
	}
}

func TestAccountStatusText(t *testing.T) {
	for _, s := range []AccountStatus{StatusNormal, StatusBanned, StatusLocked} {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatalf("marshal %v: %v", s, err)
		}
		var back AccountStatus
		if err := back.UnmarshalText(text); err != nil || back != s {
			t.Fatalf("round trip %v: got %v err=%v", s, back, err)
		}
	}
	if _, err := ParseAccountStatus("frozen"); err == nil {
		t.Fatal("expected unknown status error")
	}
	if uint8(StatusBanned) != 1 || uint8(StatusLocked) != 2 {
		t.Fatal("persisted status codes changed")
	}
}
