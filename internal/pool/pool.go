package pool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/optimis/resque-pool/internal/environment"
	"github.com/optimis/resque-pool/internal/hooks"
	"github.com/optimis/resque-pool/internal/metrics"
	"github.com/optimis/resque-pool/internal/poolconfig"
	"github.com/optimis/resque-pool/internal/storage"
)

// ErrNoReloadSource is returned by Reload before any file source was loaded.
var ErrNoReloadSource = errors.New("no file source to reload")

var (
	instance     *Pool
	instanceOnce sync.Once
)

// Instance returns the process-wide Pool, creating it on first use.
func Instance() *Pool {
	instanceOnce.Do(func() {
		instance = New()
	})
	return instance
}

// Pool owns the effective configuration and the hook chain.
type Pool struct {
	// loadMu serialises InitConfig, Reload and Configure.
	loadMu sync.Mutex
	// optsMu guards metrics for hook callers that do not take loadMu.
	optsMu sync.RWMutex

	store    storage.Storage
	hooks    *hooks.Chain
	flag     *environment.Flag
	reporter environment.Reporter
	resolver *environment.Resolver
	metrics  *metrics.Metrics
	logger   *zap.Logger
	clock    func() time.Time

	lastFile *poolconfig.FileSource
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithReporter adds a framework environment reporter as the last resolution signal.
func WithReporter(r environment.Reporter) Option {
	return func(p *Pool) {
		p.reporter = r
	}
}

// WithResolver replaces the default environment resolver entirely.
func WithResolver(r *environment.Resolver) Option {
	return func(p *Pool) {
		p.resolver = r
	}
}

// WithStorage overrides the snapshot store.
func WithStorage(s storage.Storage) Option {
	return func(p *Pool) {
		if s != nil {
			p.store = s
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) {
		p.metrics = m
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(p *Pool) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// New constructs an independent Pool with an empty configuration.
func New(opts ...Option) *Pool {
	p := &Pool{
		store:  storage.NewMemoryStorage(),
		flag:   &environment.Flag{},
		logger: zap.NewNop(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.hooks = hooks.NewChain(p.logger)
	return p
}

// Configure applies options to an existing Pool, typically the shared
// Instance. The hook chain and current configuration are kept.
func (p *Pool) Configure(opts ...Option) {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	p.optsMu.Lock()
	for _, opt := range opts {
		opt(p)
	}
	p.optsMu.Unlock()
	p.hooks.SetLogger(p.logger)
}

func (p *Pool) currentMetrics() *metrics.Metrics {
	p.optsMu.RLock()
	defer p.optsMu.RUnlock()
	return p.metrics
}

// EnvironmentFlag returns the process-wide environment flag consulted first
// during resolution.
func (p *Pool) EnvironmentFlag() *environment.Flag {
	return p.flag
}

// InitConfig loads src, resolves the environment, merges, and publishes the
// result. src may be a poolconfig.Source, a poolconfig.RawConfig, a
// map[string]any, or a file path. On error nothing is published.
func (p *Pool) InitConfig(src any) error {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()

	source, err := poolconfig.SourceFor(src)
	if err != nil {
		p.metrics.ObserveLoad(0, err)
		p.logger.Error("pool config load failed", zap.String("source", fmt.Sprintf("%T", src)), zap.Error(err))
		return err
	}
	return p.load(source)
}

// Reload loads the most recently used file source again.
func (p *Pool) Reload() error {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()

	if p.lastFile == nil {
		return ErrNoReloadSource
	}
	return p.load(*p.lastFile)
}

func (p *Pool) load(source poolconfig.Source) error {
	name := poolconfig.Describe(source)

	raw, err := source.Load()
	if err != nil {
		p.metrics.ObserveLoad(0, err)
		p.logger.Error("pool config load failed", zap.String("source", name), zap.Error(err))
		return err
	}

	env, _ := p.currentResolver().Resolve()
	effective := poolconfig.Merge(raw, env)

	published := p.store.Publish(storage.Snapshot{
		Config:      effective,
		Environment: env,
		Source:      name,
		LoadedAt:    p.clock(),
	})

	if file, ok := fileSource(source); ok {
		p.lastFile = &file
	}

	p.metrics.ObserveLoad(len(effective), nil)
	p.logger.Info("pool config loaded",
		zap.String("source", name),
		zap.String("environment", env),
		zap.Int("entries", len(effective)),
		zap.Uint64("generation", published.Generation),
	)
	return nil
}

func (p *Pool) currentResolver() *environment.Resolver {
	if p.resolver != nil {
		return p.resolver
	}
	return environment.Default(p.flag, p.reporter)
}

func fileSource(src poolconfig.Source) (poolconfig.FileSource, bool) {
	switch typed := src.(type) {
	case poolconfig.FileSource:
		return typed, true
	case *poolconfig.FileSource:
		if typed != nil {
			return *typed, true
		}
	}
	return poolconfig.FileSource{}, false
}

// Config returns a copy of the effective configuration.
func (p *Pool) Config() poolconfig.Effective {
	return p.store.Current().Config
}

// Snapshot returns the effective configuration with its load metadata.
func (p *Pool) Snapshot() storage.Snapshot {
	return p.store.Current()
}

// AfterPrefork registers a hook to run in every newly forked worker.
func (p *Pool) AfterPrefork(h hooks.Hook) {
	p.hooks.Register(h)
	m := p.currentMetrics()
	m.SetHooksRegistered(p.hooks.Len())
}

// CallAfterPrefork runs the registered hooks in order, stopping at the first
// failure.
func (p *Pool) CallAfterPrefork() error {
	err := p.hooks.RunAll()
	m := p.currentMetrics()
	m.ObserveHookRun(err)
	if err != nil {
		return fmt.Errorf("call after prefork: %w", err)
	}
	return nil
}

// HookCount returns the number of registered hooks.
func (p *Pool) HookCount() int {
	return p.hooks.Len()
}
