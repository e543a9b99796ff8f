package container

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/crucible/errors"
	"github.com/xraph/crucible/logger"
	"github.com/xraph/crucible/pkg/common"
	"github.com/xraph/crucible/pkg/metadata"
	"github.com/xraph/crucible/pkg/metrics"
	"github.com/xraph/crucible/pkg/registry"
)

// Container-internal handle errors.
var (
	errUnboundHandle = errors.New("deferred handle is not bound to a container")
	errNotBuilt      = errors.New("container has not been built")
	errAlreadyBuilt  = errors.New("container already built")
	errDestroyed     = errors.New("container has been destroyed")
)

// ProxyFactory wraps a constructed instance according to its descriptor's
// interception markers. A factory must return the instance unchanged when
// no interception applies.
type ProxyFactory interface {
	Wrap(instance any, descriptor *metadata.Descriptor) (any, error)
}

// Config contains container dependencies.
type Config struct {
	Registry *registry.Registry
	Proxy    ProxyFactory
	Logger   common.Logger
	Metrics  common.Metrics
}

// Container owns the instantiation phase: it turns a frozen registry of
// descriptors into a graph of ready instances, one per descriptor. Build
// is all or nothing; a partially wired container is never observable.
type Container struct {
	registry *registry.Registry
	proxy    ProxyFactory
	logger   common.Logger
	metrics  common.Metrics

	mu        sync.RWMutex
	built     bool
	destroyed bool
	instances map[string]*ManagedInstance
	order     []string
}

// New creates a container over the given registry.
func New(config Config) *Container {
	l := config.Logger
	if l == nil {
		l = logger.NewNoopLogger()
	}
	m := config.Metrics
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	return &Container{
		registry:  config.Registry,
		proxy:     config.Proxy,
		logger:    l,
		metrics:   m,
		instances: make(map[string]*ManagedInstance),
	}
}

// Build freezes the registry and constructs every registered component in
// dependency order. On any failure the container is left empty and the
// error is returned; Build may be called at most once.
func (c *Container) Build(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.built {
		return errAlreadyBuilt
	}
	if c.destroyed {
		return errDestroyed
	}

	start := time.Now()
	c.registry.Freeze()

	descriptors := c.registry.All()
	for _, descriptor := range descriptors {
		c.instances[descriptor.Name()] = newManagedInstance(descriptor)
	}

	for _, descriptor := range descriptors {
		if err := c.instantiate(ctx, c.instances[descriptor.Name()], nil); err != nil {
			c.instances = make(map[string]*ManagedInstance)
			c.order = nil
			return err
		}
	}

	c.built = true

	c.metrics.Counter("crucible.container.builds").Inc()
	c.metrics.Gauge("crucible.container.components").Set(float64(len(c.order)))
	c.metrics.Histogram("crucible.container.build_duration").Observe(time.Since(start).Seconds())

	c.logger.Info("container built",
		logger.Int("components", len(c.order)),
		logger.Duration("duration", time.Since(start)),
	)

	return nil
}

// Get returns the instance registered under name, wrapped if interception
// applies to it.
func (c *Container) Get(name string) (any, error) {
	instance, err := c.Instance(name)
	if err != nil {
		return nil, err
	}
	return instance.Value(), nil
}

// Instance returns the managed record for name.
func (c *Container) Instance(name string) (*ManagedInstance, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.built {
		return nil, errNotBuilt
	}

	instance, exists := c.instances[name]
	if !exists {
		return nil, errors.ErrNotFound(name)
	}
	return instance, nil
}

// GetByCapability returns the instances of every component carrying the
// given marker, in deterministic build order.
func (c *Container) GetByCapability(marker string) ([]any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.built {
		return nil, errNotBuilt
	}

	var matched []any
	for _, name := range c.order {
		instance := c.instances[name]
		if instance.Descriptor().Markers().Has(marker) {
			matched = append(matched, instance.Value())
		}
	}
	return matched, nil
}

// Instances returns every managed instance in build order.
func (c *Container) Instances() []*ManagedInstance {
	c.mu.RLock()
	defer c.mu.RUnlock()

	all := make([]*ManagedInstance, 0, len(c.order))
	for _, name := range c.order {
		all = append(all, c.instances[name])
	}
	return all
}

// Destroy tears instances down in reverse build order. Components
// implementing Destroyable get their hook called; a hook failure is
// logged and collected but does not stop the teardown.
func (c *Container) Destroy(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return nil
	}
	c.destroyed = true

	var errs []error
	for i := len(c.order) - 1; i >= 0; i-- {
		instance := c.instances[c.order[i]]
		if destroyable, ok := instance.Raw().(Destroyable); ok {
			if err := destroyable.Destroy(ctx); err != nil {
				c.logger.Error("component destroy failed",
					logger.String("component", instance.Name()),
					logger.Error(err),
				)
				errs = append(errs, err)
			}
		}
		instance.setState(StateDestroyed)
	}

	c.logger.Info("container destroyed", logger.Int("components", len(c.order)))
	return errors.Join(errs...)
}
