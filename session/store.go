package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultOperationTimeout bounds each cache round trip when none is configured.
const DefaultOperationTimeout = 2 * time.Second

// Store maps a username to its single live token.
type Store struct {
	cache   Cache
	swapper Swapper
	prefix  string
	timeout time.Duration
}

// NewStore returns a Store over cache. Keys are prefix+username. A zero
// timeout selects DefaultOperationTimeout. If cache also implements Swapper,
// Replace and RemoveIfCurrent are atomic.
func NewStore(cache Cache, prefix string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	s := &Store{cache: cache, prefix: prefix, timeout: timeout}
	if sw, ok := cache.(Swapper); ok {
		s.swapper = sw
	}
	return s
}

// Atomic reports whether conditional writes are backed by the cache itself.
func (s *Store) Atomic() bool {
	return s.swapper != nil
}

func (s *Store) key(username string) string {
	return s.prefix + username
}

func (s *Store) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Put stores token for username, replacing any previous token.
func (s *Store) Put(ctx context.Context, username, token string, ttl time.Duration) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return unavailable(s.cache.Set(ctx, s.key(username), token, ttl))
}

// Get returns the live token for username. ok is false when there is none.
func (s *Store) Get(ctx context.Context, username string) (token string, ok bool, err error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	token, err = s.cache.Get(ctx, s.key(username))
	switch {
	case err == nil:
		return token, true, nil
	case errors.Is(err, ErrNotFound):
		return "", false, nil
	default:
		return "", false, unavailable(err)
	}
}

// Touch extends the expiry of the entry for username without changing it.
func (s *Store) Touch(ctx context.Context, username string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	ok, err := s.cache.Expire(ctx, s.key(username), ttl)
	return ok, unavailable(err)
}

// Remove deletes the entry for username. Removing an absent entry is not an error.
func (s *Store) Remove(ctx context.Context, username string) (bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	ok, err := s.cache.Delete(ctx, s.key(username))
	return ok, unavailable(err)
}

// Replace stores token only if the entry still holds expected, or is absent
// when expected is empty. Without a Swapper the check and the write are two
// separate round trips.
func (s *Store) Replace(ctx context.Context, username, expected, token string, ttl time.Duration) (bool, error) {
	if s.swapper != nil {
		ctx, cancel := s.bounded(ctx)
		defer cancel()
		ok, err := s.swapper.CompareAndSwap(ctx, s.key(username), expected, token, ttl)
		return ok, unavailable(err)
	}

	current, _, err := s.Get(ctx, username)
	if err != nil {
		return false, err
	}
	if current != expected {
		return false, nil
	}
	return true, s.Put(ctx, username, token, ttl)
}

// RemoveIfCurrent deletes the entry for username only if it holds token.
func (s *Store) RemoveIfCurrent(ctx context.Context, username, token string) (bool, error) {
	if s.swapper != nil {
		ctx, cancel := s.bounded(ctx)
		defer cancel()
		ok, err := s.swapper.CompareAndDelete(ctx, s.key(username), token)
		return ok, unavailable(err)
	}

	current, ok, err := s.Get(ctx, username)
	if err != nil || !ok || current != token {
		return false, err
	}
	return s.Remove(ctx, username)
}

// unavailable normalizes backend failures so that a deadline hit inside a
// Cache implementation that does not wrap its errors still reads as
// ErrUnavailable.
func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
