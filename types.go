package authkeep

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/authkeep/authkeep/internal/lockout"
)

// AccountStatus is the single status of a user account.
//
// The numeric values are the persisted codes.
type AccountStatus uint8

const (
	StatusNormal AccountStatus = 0
	StatusBanned AccountStatus = 1
	StatusLocked AccountStatus = 2
)

func (s AccountStatus) String() string {
	switch s {
	case StatusNormal:
		return "NORMAL"
	case StatusBanned:
		return "BANNED"
	case StatusLocked:
		return "LOCKED"
	default:
		return fmt.Sprintf("AccountStatus(%d)", uint8(s))
	}
}

// ParseAccountStatus parses the String form of a status.
func ParseAccountStatus(s string) (AccountStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NORMAL":
		return StatusNormal, nil
	case "BANNED":
		return StatusBanned, nil
	case "LOCKED":
		return StatusLocked, nil
	}
	return 0, fmt.Errorf("unknown account status %q", s)
}

func (s AccountStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *AccountStatus) UnmarshalText(b []byte) error {
	v, err := ParseAccountStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// RolePrefix is prepended to role names that lack it when comparing roles.
const RolePrefix = "ROLE_"

// User is the persisted account record.
type User struct {
	ID              int64         `json:"id"`
	Username        string        `json:"username"`
	PasswordHash    string        `json:"-"`
	Phone           string        `json:"phone,omitempty"`
	Email           string        `json:"email,omitempty"`
	Status          AccountStatus `json:"status"`
	Roles           string        `json:"roles"`
	LoginFailCount  int           `json:"loginFailCount"`
	LockedAt        *time.Time    `json:"lockedAt,omitempty"`
	LastLoginAt     *time.Time    `json:"lastLoginAt,omitempty"`
	LastLoginIP     string        `json:"lastLoginIp,omitempty"`
	LastLoginDevice string        `json:"lastLoginDevice,omitempty"`
	PasswordResetAt *time.Time    `json:"passwordResetAt,omitempty"`
	Deleted         bool          `json:"-"`
	Version         int64         `json:"-"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Enabled reports whether the account may authenticate at all. A lockout is
// evaluated separately because it depends on the clock.
func (u User) Enabled() bool {
	return !u.Deleted && u.Status != StatusBanned
}

// RoleList splits the comma-joined Roles field.
func (u User) RoleList() []string {
	return SplitRoles(u.Roles)
}

// HasRole reports whether u holds role, ignoring a missing ROLE_ prefix on
// either side.
func (u User) HasRole(role string) bool {
	want := NormalizeRole(role)
	if want == "" {
		return false
	}
	for _, r := range u.RoleList() {
		if NormalizeRole(r) == want {
			return true
		}
	}
	return false
}

// Sanitized returns a copy of u that is safe to hand to callers.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

func (u User) lockRecord() lockout.Record {
	rec := lockout.Record{
		FailCount: u.LoginFailCount,
		Locked:    u.Status == StatusLocked,
	}
	if u.LockedAt != nil {
		rec.LockedAt = *u.LockedAt
	}
	return rec
}

// applyLock writes rec back. A BANNED status is never overwritten by the
// lockout machine.
func (u *User) applyLock(rec lockout.Record) {
	u.LoginFailCount = rec.FailCount
	if rec.LockedAt.IsZero() {
		u.LockedAt = nil
	} else {
		at := rec.LockedAt
		u.LockedAt = &at
	}
	if u.Status == StatusBanned {
		return
	}
	if rec.Locked {
		u.Status = StatusLocked
	} else {
		u.Status = StatusNormal
	}
}

// SplitRoles splits a comma-joined role string, dropping blanks.
func SplitRoles(roles string) []string {
	if roles == "" {
		return nil
	}
	parts := strings.Split(roles, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinRoles is the inverse of SplitRoles.
func JoinRoles(roles []string) string {
	clean := make([]string, 0, len(roles))
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			clean = append(clean, r)
		}
	}
	return strings.Join(clean, ",")
}

// NormalizeRole returns role with the ROLE_ prefix.
func NormalizeRole(role string) string {
	role = strings.TrimSpace(role)
	if role == "" || strings.HasPrefix(role, RolePrefix) {
		return role
	}
	return RolePrefix + role
}

// RegisterRequest carries the fields accepted at registration.
type RegisterRequest struct {
	Username string
	Password string
	Phone    string
	Email    string
}

// UserStore persists user records.
//
// FindByUsername and FindByID skip soft-deleted records and return
// ErrUserNotFound when nothing matches. Insert assigns ID and Version and
// returns ErrUsernameTaken on a duplicate username. Update writes u only if
// u.Version still matches the stored record, then increments u.Version; a
// mismatch returns ErrVersionConflict.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (User, error)
	FindByID(ctx context.Context, id int64) (User, error)
	Insert(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
}

// RoleStore resolves the role granted to new accounts. It returns
// ErrNoDefaultRole when none is marked as default.
type RoleStore interface {
	DefaultRole(ctx context.Context) (string, error)
}
