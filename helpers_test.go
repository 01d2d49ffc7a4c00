package authkeep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// mockUserStore is a versioned in-memory UserStore with fault injection.
type mockUserStore struct {
	mu      sync.Mutex
	nextID  int64
	byID    map[int64]User
	byName  map[string]int64
	role    string
	roleErr error

	findErr   error
	insertErr error
	updateErr error
	// conflicts forces the next n Update calls to report a version conflict.
	conflicts int

	updateCalls int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		byID:   make(map[int64]User),
		byName: make(map[string]int64),
		role:   "ROLE_USER",
	}
}

func (m *mockUserStore) FindByUsername(_ context.Context, username string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return User{}, m.findErr
	}
	id, ok := m.byName[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return m.byID[id], nil
}

func (m *mockUserStore) FindByID(_ context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return User{}, m.findErr
	}
	u, ok := m.byID[id]
	if !ok || u.Deleted {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *mockUserStore) Insert(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, ok := m.byName[u.Username]; ok {
		return ErrUsernameTaken
	}
	m.nextID++
	u.ID = m.nextID
	u.Version = 1
	m.byID[u.ID] = *u
	m.byName[u.Username] = u.ID
	return nil
}

func (m *mockUserStore) Update(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	if m.conflicts > 0 {
		m.conflicts--
		return ErrVersionConflict
	}
	current, ok := m.byID[u.ID]
	if !ok || current.Deleted {
		return ErrUserNotFound
	}
	if current.Version != u.Version {
		return ErrVersionConflict
	}
	if u.Deleted {
		delete(m.byName, u.Username)
	}
	u.Version++
	m.byID[u.ID] = *u
	return nil
}

func (m *mockUserStore) DefaultRole(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roleErr != nil {
		return "", m.roleErr
	}
	if m.role == "" {
		return "", ErrNoDefaultRole
	}
	return m.role, nil
}

func (m *mockUserStore) get(t testing.TB, username string) User {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byName[username]
	if !ok {
		t.Fatalf("user %q not stored", username)
	}
	return m.byID[id]
}

func (m *mockUserStore) put(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[u.ID] = u
}

// fakeClock is a settable clock shared by the engine and the codec.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine *Engine
	users  *mockUserStore
	clock  *fakeClock
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Secret = testSecret
	cfg.Password.BcryptCost = bcrypt.MinCost
	return cfg
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func newTestEnv(t testing.TB, mutate func(*Config), opts ...func(*Builder)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	mr, rdb := newTestRedis(t)
	users := newMockUserStore()
	clock := newFakeClock()

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithRoleStore(users).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, users: users, clock: clock, mr: mr, rdb: rdb}
}

// advance moves both the engine clock and the cache clock. miniredis TTLs
// only move through FastForward.
func (env *testEnv) advance(d time.Duration) {
	env.clock.Advance(d)
	env.mr.FastForward(d)
}

func (env *testEnv) register(t testing.TB, username, password string) User {
	t.Helper()
	u, err := env.engine.Register(context.Background(), RegisterRequest{Username: username, Password: password})
	if err != nil {
		t.Fatalf("register %q failed: %v", username, err)
	}
	return u
}

func (env *testEnv) login(t testing.TB, username, password string) string {
	t.Helper()
	token, err := env.engine.Login(context.Background(), username, password)
	if err != nil {
		t.Fatalf("login %q failed: %v", username, err)
	}
	return token
}

func (env *testEnv) cached(t testing.TB, username string) string {
	t.Helper()
	v, err := env.mr.Get("login:" + username)
	if err != nil {
		if errors.Is(err, miniredis.ErrKeyNotFound) {
			return ""
		}
		t.Fatalf("miniredis get failed: %v", err)
	}
	return v
}
