// Command authkeep-loadtest drives concurrent logins through an Engine and
// reports throughput, latency percentiles and how many issued tokens are
// still accepted afterwards.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/authkeep/authkeep"
	"github.com/authkeep/authkeep/userstore/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const password = "load-test-password"

func main() {
	var (
		users       = flag.Int("users", 1000, "number of distinct accounts to register")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "logins per phase")
		guarded     = flag.Bool("guarded", false, "use compare-and-swap session writes")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := authkeep.DefaultConfig()
	cfg.Token.Secret = []byte("authkeep-loadtest-secret-0123456789")
	cfg.Password.BcryptCost = bcrypt.MinCost
	cfg.Session.GuardedWrites = *guarded
	cfg.Lockout.MaxUpdateRetries = 2 * *concurrency
	cfg.Metrics.EnableLatencyHistograms = true

	store := memory.New("ROLE_USER")
	engine, err := authkeep.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(store).
		WithRoleStore(store).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	names := make([]string, *users)
	fmt.Printf("registering %d users...\n", *users)
	startSeed := time.Now()
	for i := range names {
		names[i] = fmt.Sprintf("user-%d", i)
		if _, err := engine.Register(ctx, authkeep.RegisterRequest{Username: names[i], Password: password}); err != nil {
			fmt.Fprintf(os.Stderr, "register failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("registered in %s\n", time.Since(startSeed).Round(time.Millisecond))

	same := runLoginPhase(ctx, engine, func(int) string { return names[0] }, *ops, *concurrency)
	// Drop the first user's session so the distinct phase starts from cold.
	_ = engine.Logout(ctx, names[0])
	distinct := runLoginPhase(ctx, engine, func(i int) string { return names[i%len(names)] }, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("same-user", same)
	printStats("distinct-users", distinct)
	fmt.Printf("version conflicts retried: %d\n", engine.MetricsSnapshot().Counters[authkeep.MetricVersionConflict])
}

type phaseStats struct {
	total     time.Duration
	ops       int
	failures  int64
	issued    int
	surviving int
	p50       time.Duration
	p95       time.Duration
	p99       time.Duration
	opsPerS   float64
}

// runLoginPhase logs in ops times with usernames chosen by pick, then checks
// every distinct token it received against CurrentUser.
func runLoginPhase(ctx context.Context, engine *authkeep.Engine, pick func(int) string, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		tokens    = make(map[string]struct{})
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				token, err := engine.Login(ctx, pick(i), password)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				if err == nil {
					tokens[token] = struct{}{}
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)

	stats := computeStats(total, latencies, failures)
	stats.issued = len(tokens)
	for token := range tokens {
		if _, err := engine.CurrentUser(ctx, token); err == nil {
			stats.surviving++
		}
	}
	return stats
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s tokens=%d surviving=%d\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
		s.issued,
		s.surviving,
	)
}
