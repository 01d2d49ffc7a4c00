package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	return New(rdb, cfg), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestLimiterBlocksAfterBudget(t *testing.T) {
	l, mr, done := newLimiterTest(t, Config{MaxFailures: 3, Window: time.Minute})
	defer done()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Check(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if err := l.Fail(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("fail %d: %v", i, err)
		}
	}
	if err := l.Check(ctx, "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("check after budget err = %v, want ErrRateLimited", err)
	}
	if err := l.Check(ctx, "10.0.0.2"); err != nil {
		t.Fatalf("other ip limited: %v", err)
	}

	mr.FastForward(61 * time.Second)
	if err := l.Check(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("check after window: %v", err)
	}
}

func TestLimiterResetAndEmptyIP(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{MaxFailures: 1, Window: time.Minute})
	defer done()
	ctx := context.Background()

	_ = l.Fail(ctx, "10.0.0.1")
	if err := l.Reset(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.Check(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("check after reset: %v", err)
	}

	_ = l.Fail(ctx, "")
	if err := l.Check(ctx, ""); err != nil {
		t.Fatalf("empty ip limited: %v", err)
	}
}

func TestLimiterBackendDown(t *testing.T) {
	l, mr, done := newLimiterTest(t, Config{MaxFailures: 1, Window: time.Minute})
	defer done()
	mr.Close()
	if err := l.Check(context.Background(), "10.0.0.1"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("check err = %v, want ErrRedisUnavailable", err)
	}
}
