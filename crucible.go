// Package crucible is a managed-component runtime: explicit catalogs of
// constructor-based components are scanned into a registry, wired into a
// dependency graph, wrapped with capability-driven interceptors, and run
// against a pooled, transaction-aware resource layer.
package crucible

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/crucible/errors"
	"github.com/xraph/crucible/logger"
	"github.com/xraph/crucible/pkg/common"
	"github.com/xraph/crucible/pkg/config"
	"github.com/xraph/crucible/pkg/container"
	"github.com/xraph/crucible/pkg/intercept"
	"github.com/xraph/crucible/pkg/metadata"
	"github.com/xraph/crucible/pkg/metrics"
	"github.com/xraph/crucible/pkg/registry"
	"github.com/xraph/crucible/pkg/transaction"
)

type options struct {
	config       config.Config
	logger       common.Logger
	metrics      common.Metrics
	connector    transaction.Connector
	cacheStore   intercept.Store
	interceptors []intercept.Interceptor
}

// Option customizes a runtime.
type Option func(*options)

// WithConfig supplies the runtime configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithLogger overrides the logger built from the configuration.
func WithLogger(l common.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics supplies a metrics collector; the default discards.
func WithMetrics(m common.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithConnector enables the transaction manager over the given resource
// connector. Without one, transactional boundaries are not available.
func WithConnector(c transaction.Connector) Option {
	return func(o *options) { o.connector = c }
}

// WithCacheStore overrides the cache backend chosen by configuration.
func WithCacheStore(s intercept.Store) Option {
	return func(o *options) { o.cacheStore = s }
}

// WithInterceptor registers an additional interceptor.
func WithInterceptor(i intercept.Interceptor) Option {
	return func(o *options) { o.interceptors = append(o.interceptors, i) }
}

// Runtime assembles the registry, container, interception and
// transaction layers behind one lifecycle: Scan, Start, use, Stop.
type Runtime struct {
	config    config.Config
	logger    common.Logger
	metrics   common.Metrics
	registry  *registry.Registry
	factory   *intercept.Factory
	container *container.Container
	manager   *transaction.Manager
}

// New assembles a runtime from options.
func New(opts ...Option) (*Runtime, error) {
	o := options{config: config.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}

	l := o.logger
	if l == nil {
		l = logger.NewLogger(o.config.Logging)
	}
	m := o.metrics
	if m == nil {
		m = metrics.NewNoopMetrics()
	}

	r := &Runtime{
		config:   o.config,
		logger:   l,
		metrics:  m,
		registry: registry.New(l),
		factory:  intercept.NewFactory(intercept.FactoryConfig{Logger: l, Metrics: m}),
	}

	if o.connector != nil {
		cfg := o.config.TransactionConfig()
		cfg.Logger = l
		cfg.Metrics = m
		manager, err := transaction.NewManager(o.connector, cfg)
		if err != nil {
			return nil, err
		}
		r.manager = manager
		r.factory.Register(transaction.NewInterceptor(manager, 0))
	}

	store := o.cacheStore
	if store == nil && o.config.Cache.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: o.config.Cache.RedisAddr})
		store = intercept.NewRedisStore(client, "crucible", nil)
	}
	r.factory.Register(intercept.NewCachingInterceptor(intercept.CachingConfig{
		Store:      store,
		DefaultTTL: o.config.Cache.DefaultTTL,
		Logger:     l,
		Metrics:    m,
	}))
	r.factory.Register(intercept.NewAuditInterceptor(intercept.AuditConfig{Logger: l}))

	for _, interceptor := range o.interceptors {
		r.factory.Register(interceptor)
	}

	r.container = container.New(container.Config{
		Registry: r.registry,
		Proxy:    r.factory,
		Logger:   l,
		Metrics:  m,
	})

	return r, nil
}

// Scan discovers the catalogs' components into the registry. Must be
// called before Start; the registry freezes when the build begins.
func (r *Runtime) Scan(catalogs ...*metadata.Catalog) error {
	scanner := metadata.NewScanner(metadata.ScannerConfig{
		ExcludePatterns:   r.config.Scanner.ExcludePatterns,
		RecognizedMarkers: r.config.Scanner.RecognizedMarkers,
		Logger:            r.logger,
	})
	return r.registry.RegisterStream(scanner.Scan(catalogs...))
}

// Start builds the container: every registered component is constructed,
// wrapped, and ready, or the whole start fails.
func (r *Runtime) Start(ctx context.Context) error {
	return r.container.Build(ctx)
}

// Get returns a component by logical name.
func (r *Runtime) Get(name string) (any, error) {
	return r.container.Get(name)
}

// GetByCapability returns every component carrying the marker.
func (r *Runtime) GetByCapability(marker string) ([]any, error) {
	return r.container.GetByCapability(marker)
}

// Transactions returns the transaction manager, or an error when the
// runtime was assembled without a connector.
func (r *Runtime) Transactions() (*transaction.Manager, error) {
	if r.manager == nil {
		return nil, errors.New("runtime has no transaction manager: no connector configured")
	}
	return r.manager, nil
}

// Registry exposes the descriptor registry.
func (r *Runtime) Registry() *registry.Registry { return r.registry }

// Stop destroys components in reverse build order and closes the
// connection pool.
func (r *Runtime) Stop(ctx context.Context) error {
	var errs []error
	if err := r.container.Destroy(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.manager != nil {
		if err := r.manager.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	_ = r.logger.Sync()
	return errors.Join(errs...)
}
