// Package memory provides an in-process authkeep.UserStore and RoleStore.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/authkeep/authkeep"
)

// Store keeps user records in a map. Records are copied on the way in and
// out, so callers never share memory with the store.
type Store struct {
	mu          sync.RWMutex
	nextID      int64
	byID        map[int64]authkeep.User
	byName      map[string]int64
	defaultRole string
}

// New returns an empty Store whose DefaultRole is defaultRole. An empty
// defaultRole makes DefaultRole report authkeep.ErrNoDefaultRole.
func New(defaultRole string) *Store {
	return &Store{
		byID:        make(map[int64]authkeep.User),
		byName:      make(map[string]int64),
		defaultRole: defaultRole,
	}
}

func (s *Store) FindByUsername(ctx context.Context, username string) (authkeep.User, error) {
	if err := ctx.Err(); err != nil {
		return authkeep.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[username]
	if !ok {
		return authkeep.User{}, authkeep.ErrUserNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *Store) FindByID(ctx context.Context, id int64) (authkeep.User, error) {
	if err := ctx.Err(); err != nil {
		return authkeep.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok || u.Deleted {
		return authkeep.User{}, authkeep.ErrUserNotFound
	}
	return clone(u), nil
}

// Insert assigns u.ID and sets u.Version to 1.
func (s *Store) Insert(ctx context.Context, u *authkeep.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byName[u.Username]; taken {
		return authkeep.ErrUsernameTaken
	}
	s.nextID++
	u.ID = s.nextID
	u.Version = 1
	s.byID[u.ID] = clone(*u)
	if !u.Deleted {
		s.byName[u.Username] = u.ID
	}
	return nil
}

func (s *Store) Update(ctx context.Context, u *authkeep.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[u.ID]
	if !ok || current.Deleted {
		return authkeep.ErrUserNotFound
	}
	if current.Version != u.Version {
		return authkeep.ErrVersionConflict
	}
	if u.Username != current.Username {
		if _, taken := s.byName[u.Username]; taken {
			return authkeep.ErrUsernameTaken
		}
		delete(s.byName, current.Username)
		s.byName[u.Username] = u.ID
	}
	if u.Deleted {
		delete(s.byName, u.Username)
	}

	u.Version++
	s.byID[u.ID] = clone(*u)
	return nil
}

// DefaultRole implements authkeep.RoleStore.
func (s *Store) DefaultRole(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if strings.TrimSpace(s.defaultRole) == "" {
		return "", authkeep.ErrNoDefaultRole
	}
	return s.defaultRole, nil
}

// SetDefaultRole replaces the role granted by DefaultRole.
func (s *Store) SetDefaultRole(role string) {
	s.mu.Lock()
	s.defaultRole = role
	s.mu.Unlock()
}

// Len returns the number of records, deleted ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func clone(u authkeep.User) authkeep.User {
	u.LockedAt = cloneTime(u.LockedAt)
	u.LastLoginAt = cloneTime(u.LastLoginAt)
	u.PasswordResetAt = cloneTime(u.PasswordResetAt)
	return u
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
