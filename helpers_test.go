package magiccode

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testSecret = "0123456789abcdef"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Secret = testSecret
	return cfg
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentCode struct {
	record Record
	code   int
	opts   Options
}

type capturingSender struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (s *capturingSender) Send(_ context.Context, record Record, code int, opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentCode{record: record, code: code, opts: opts})
	return s.err
}

func (s *capturingSender) last(t *testing.T) sentCode {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		t.Fatal("expected a code to be sent")
	}
	return s.sent[len(s.sent)-1]
}

type recordingVerifier struct {
	mu    sync.Mutex
	users []Record
	err   error
}

func (v *recordingVerifier) Verify(_ context.Context, user Record, _ Options) (any, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.users = append(v.users, user)
	if v.err != nil {
		return nil, v.err
	}
	return "principal:" + Stringify(user["email"]), nil
}

func (v *recordingVerifier) calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.users)
}

// countingStorage hides the Consumer extension of the wrapped backend so the
// engine falls back to Get then Delete.
type countingStorage struct {
	inner   Storage
	gets    atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

func newCountingStorage() *countingStorage {
	return &countingStorage{inner: NewMemoryStorage()}
}

func (s *countingStorage) Get(ctx context.Context, code string) (*Token, bool, error) {
	s.gets.Add(1)
	return s.inner.Get(ctx, code)
}

func (s *countingStorage) Set(ctx context.Context, code string, token Token) error {
	s.sets.Add(1)
	return s.inner.Set(ctx, code, token)
}

func (s *countingStorage) Delete(ctx context.Context, code string) error {
	s.deletes.Add(1)
	return s.inner.Delete(ctx, code)
}

func (s *countingStorage) total() int64 {
	return s.gets.Load() + s.sets.Load() + s.deletes.Load()
}

type testEngine struct {
	*Engine
	sender   *capturingSender
	verifier *recordingVerifier
	clock    *testClock
}

func buildTestEngine(t *testing.T, cfg Config, storage Storage) *testEngine {
	t.Helper()

	sender := &capturingSender{}
	verifier := &recordingVerifier{}
	clock := newTestClock()

	b := New().
		WithConfig(cfg).
		WithSender(sender.Send).
		WithVerifier(verifier.Verify).
		WithClock(clock.Now)
	if storage != nil {
		b.WithStorage(storage)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{Engine: engine, sender: sender, verifier: verifier, clock: clock}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}
