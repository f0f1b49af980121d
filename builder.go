package magiccode

import (
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/magiccode/internal/audit"
	"github.com/MrEthical07/magiccode/receipt"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config Config

	storage   Storage
	redis     redis.UniversalClient
	prefix    string
	sender    SendCodeFunc
	verifier  VerifyFunc
	auditSink AuditSink
	clock     Clock

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStorage sets the token backend. Without one, Build creates a fresh
// [MemoryStorage] for the engine.
func (b *Builder) WithStorage(s Storage) *Builder {
	b.storage = s
	return b
}

// WithRedis backs the engine with a [RedisStorage] on client under prefix.
// It takes precedence over WithStorage.
func (b *Builder) WithRedis(client redis.UniversalClient, prefix string) *Builder {
	b.redis = client
	b.prefix = prefix
	return b
}

// WithSender sets the required delivery hook.
func (b *Builder) WithSender(fn SendCodeFunc) *Builder {
	b.sender = fn
	return b
}

// WithVerifier sets the required verification hook.
func (b *Builder) WithVerifier(fn VerifyFunc) *Builder {
	b.verifier = fn
	return b
}

// WithAuditSink sets the sink fed by the audit dispatcher when Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the time source used for expiry.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the issue and verify latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine. Configuration
// violations are reported together as one *Error of kind KindConfiguration.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var missing []string
	if b.sender == nil {
		missing = append(missing, "sendCode hook required")
	}
	if b.verifier == nil {
		missing = append(missing, "verify hook required")
	}
	if len(missing) > 0 {
		return nil, configurationError(missing)
	}

	storage := b.storage
	if b.redis != nil {
		storage = NewRedisStorage(b.redis, b.prefix)
	}
	if storage == nil {
		storage = NewMemoryStorage()
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	engine := &Engine{
		config:   cfg,
		storage:  storage,
		sender:   b.sender,
		verifier: b.verifier,
		clock:    clock,
		metrics:  NewMetrics(cfg.Metrics),
	}
	if consumer, ok := storage.(Consumer); ok {
		engine.consumer = consumer
	}

	if cfg.Receipt.Enabled {
		rm, err := receipt.NewManager(receipt.Config{
			Key:    []byte(cfg.Secret),
			Issuer: cfg.Receipt.Issuer,
			Now:    clock,
		})
		if err != nil {
			return nil, configurationError([]string{err.Error()})
		}
		engine.receipts = rm
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.initFlowDeps()

	b.built = true

	return engine, nil
}
