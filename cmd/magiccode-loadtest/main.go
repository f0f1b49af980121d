// Command magiccode-loadtest issues codes for many users and then verifies every
// code from several goroutines at once, failing if any code is accepted more
// than once.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/magiccode"
	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	var (
		users       = flag.Int("users", 20000, "number of users to issue codes for")
		concurrency = flag.Int("concurrency", 128, "number of concurrent issue workers")
		contenders  = flag.Int("contenders", 4, "concurrent verifications per code")
		codeLength  = flag.Int("code-length", 8, "digits per code")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "amc-load", "token key prefix")
		memory      = flag.Bool("memory", false, "use in-process storage instead of redis")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *users <= 0 || *concurrency <= 0 || *contenders <= 0 {
		logger.Fatal("users, concurrency and contenders must be > 0")
	}

	cfg := magiccode.DefaultConfig()
	cfg.Secret = envOr("MAGICCODE_SECRET", "loadtest-secret-0123456789")
	cfg.CodeLength = *codeLength
	cfg.Metrics.EnableLatencyHistograms = true

	codes := &codeBook{byUser: make(map[string]int, *users)}
	builder := magiccode.New().
		WithConfig(cfg).
		WithSender(codes.send).
		WithVerifier(func(_ context.Context, user magiccode.Record, _ magiccode.Options) (any, error) {
			return user["email"], nil
		})

	if !*memory {
		client, cleanup := redisClient(logger, *redisAddr)
		defer cleanup()
		builder.WithRedis(client, *prefix)
	}

	engine, err := builder.Build()
	if err != nil {
		logger.Fatal("engine build", zap.Error(err))
	}
	defer engine.Close()

	ctx := context.Background()
	emails := make([]string, *users)
	for i := range emails {
		emails[i] = fmt.Sprintf("user-%d@load.test", i)
	}

	issueStats := runIssuePhase(ctx, engine, emails, *concurrency)
	verifyStats, winners := runVerifyPhase(ctx, engine, emails, codes, *contenders, *concurrency)

	var doubled, lost int
	for _, w := range winners {
		switch {
		case w > 1:
			doubled++
		case w == 0:
			lost++
		}
	}

	printStats(logger, "issue", issueStats)
	printStats(logger, "verify", verifyStats)
	snap := engine.MetricsSnapshot()
	logger.Info("totals",
		zap.Uint64("issued", snap.Counters[magiccode.MetricIssueSuccess]),
		zap.Uint64("verified", snap.Counters[magiccode.MetricVerifySuccess]),
		zap.Uint64("rejected", snap.Counters[magiccode.MetricVerifyFailure]),
		zap.Int("lost_to_code_collision", lost),
		zap.Int("double_consumed", doubled),
	)

	if doubled > 0 {
		logger.Error("codes accepted more than once", zap.Int("count", doubled))
		os.Exit(1)
	}
}

type codeBook struct {
	mu     sync.Mutex
	byUser map[string]int
}

func (b *codeBook) send(_ context.Context, record magiccode.Record, code int, _ magiccode.Options) error {
	email, _ := record["email"].(string)
	b.mu.Lock()
	b.byUser[email] = code
	b.mu.Unlock()
	return nil
}

func (b *codeBook) get(email string) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	code, ok := b.byUser[email]
	return code, ok
}

func redisClient(logger *zap.Logger, addr string) (redis.UniversalClient, func()) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		logger.Info("using redis", zap.String("addr", addr))
		return client, func() { _ = client.Close() }
	}

	mr, err := miniredis.Run()
	if err != nil {
		logger.Fatal("start miniredis", zap.Error(err))
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	logger.Info("using miniredis", zap.String("addr", mr.Addr()))
	return client, func() {
		_ = client.Close()
		mr.Close()
	}
}

func runIssuePhase(ctx context.Context, engine *magiccode.Engine, emails []string, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, len(emails))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(emails) {
					return
				}
				t0 := time.Now()
				_, err := engine.Issue(ctx, magiccode.Record{"email": emails[i]}, magiccode.Options{Action: magiccode.ActionLogin})
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func runVerifyPhase(
	ctx context.Context,
	engine *magiccode.Engine,
	emails []string,
	codes *codeBook,
	contenders int,
	concurrency int,
) (phaseStats, []int64) {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, len(emails)*contenders)
		mu        sync.Mutex
		winners   = make([]int64, len(emails))
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(emails) {
					return
				}
				code, ok := codes.get(emails[i])
				if !ok {
					continue
				}
				input := []magiccode.Source{{"code": strconv.Itoa(code), "email": emails[i]}}

				var race sync.WaitGroup
				for c := 0; c < contenders; c++ {
					race.Add(1)
					go func() {
						defer race.Done()
						t0 := time.Now()
						_, err := engine.Verify(ctx, input, magiccode.Options{})
						d := time.Since(t0)
						if err == nil {
							atomic.AddInt64(&winners[i], 1)
						} else {
							atomic.AddInt64(&failures, 1)
						}
						mu.Lock()
						latencies = append(latencies, d)
						mu.Unlock()
					}()
				}
				race.Wait()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures), winners
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
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

func printStats(logger *zap.Logger, name string, s phaseStats) {
	logger.Info("phase",
		zap.String("name", name),
		zap.Int("ops", s.ops),
		zap.Int64("failures", s.failures),
		zap.Duration("total", s.total.Round(time.Millisecond)),
		zap.Float64("ops_per_sec", s.opsPerS),
		zap.Duration("p50", s.p50.Round(time.Microsecond)),
		zap.Duration("p95", s.p95.Round(time.Microsecond)),
		zap.Duration("p99", s.p99.Round(time.Microsecond)),
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
