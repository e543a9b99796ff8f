package pool

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/crucible/errors"
	"github.com/xraph/crucible/logger"
	"github.com/xraph/crucible/pkg/common"
	"github.com/xraph/crucible/pkg/metrics"
)

// Resource is a pooled resource handle, typically a database connection.
type Resource interface {
	Close() error
}

// Factory creates a new resource when the pool grows.
type Factory func(ctx context.Context) (Resource, error)

// resourceState tracks whether a member is checked out.
type resourceState string

const (
	stateIdle  resourceState = "idle"
	stateInUse resourceState = "in_use"
)

// Stats is a snapshot of pool occupancy.
type Stats struct {
	Size    int
	Created int
	Idle    int
	InUse   int
}

// Config configures a pool.
type Config struct {
	// Size is the hard upper bound on live resources.
	Size int `yaml:"size"`

	// AcquireTimeout bounds how long Acquire waits on an exhausted pool
	// before failing with a timeout error.
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`

	Logger  common.Logger  `yaml:"-"`
	Metrics common.Metrics `yaml:"-"`
}

// Pool is a bounded pool of lazily created resources. Acquire blocks on
// exhaustion until a release, the caller's context, or the configured
// timeout, whichever comes first. Exhaustion surfaces as a recoverable
// timeout error, never as a panic or an unbounded wait.
type Pool struct {
	factory Factory
	size    int
	timeout time.Duration
	logger  common.Logger
	metrics common.Metrics

	mu       sync.Mutex
	idle     []Resource
	members  map[Resource]resourceState
	created  int
	closed   bool
	released chan struct{}
}

// New creates a pool. Resources are created on demand, never eagerly.
func New(factory Factory, config Config) (*Pool, error) {
	if config.Size <= 0 {
		return nil, errors.ErrConfigError("pool size must be positive", nil)
	}
	timeout := config.AcquireTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	l := config.Logger
	if l == nil {
		l = logger.NewNoopLogger()
	}
	m := config.Metrics
	if m == nil {
		m = metrics.NewNoopMetrics()
	}

	return &Pool{
		factory:  factory,
		size:     config.Size,
		timeout:  timeout,
		logger:   l,
		metrics:  m,
		members:  make(map[Resource]resourceState),
		released: make(chan struct{}, 1),
	}, nil
}

// Acquire checks a resource out of the pool, growing it up to the size
// bound. On an exhausted pool it waits for a release; when the wait
// exceeds the acquire timeout a timeout error is returned and the caller
// may retry.
func (p *Pool) Acquire(ctx context.Context) (Resource, error) {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, errors.ErrPoolClosed
		}

		if n := len(p.idle); n > 0 {
			resource := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.members[resource] = stateInUse
			p.mu.Unlock()
			p.observe()
			return resource, nil
		}

		if p.created < p.size {
			p.created++
			p.mu.Unlock()

			resource, err := p.factory(ctx)
			if err != nil {
				p.mu.Lock()
				p.created--
				p.mu.Unlock()
				return nil, errors.ErrConnectionError("acquire", err)
			}

			p.mu.Lock()
			p.members[resource] = stateInUse
			p.mu.Unlock()
			p.observe()
			return resource, nil
		}
		p.mu.Unlock()

		select {
		case <-p.released:
			// Retry; another waiter may have won the race.
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			p.metrics.Counter("crucible.pool.acquire_timeouts").Inc()
			p.logger.Warn("pool exhausted",
				logger.Int("size", p.size),
				logger.Duration("waited", p.timeout),
			)
			return nil, errors.ErrTimeout("connection acquire", p.timeout)
		}
	}
}

// Release returns a resource to the pool and wakes one waiter. Releasing
// a resource the pool does not own is an error.
func (p *Pool) Release(resource Resource) error {
	p.mu.Lock()

	state, ok := p.members[resource]
	if !ok {
		p.mu.Unlock()
		return errors.ErrNotPoolConnection
	}
	if state == stateIdle {
		p.mu.Unlock()
		return errors.New("resource already released")
	}

	if p.closed {
		delete(p.members, resource)
		p.created--
		p.mu.Unlock()
		return resource.Close()
	}

	p.members[resource] = stateIdle
	p.idle = append(p.idle, resource)
	p.mu.Unlock()

	select {
	case p.released <- struct{}{}:
	default:
	}

	p.observe()
	return nil
}

// Discard removes a broken resource from the pool instead of returning
// it, freeing its slot for a fresh one.
func (p *Pool) Discard(resource Resource) error {
	p.mu.Lock()
	if _, ok := p.members[resource]; !ok {
		p.mu.Unlock()
		return errors.ErrNotPoolConnection
	}
	delete(p.members, resource)
	p.created--
	p.mu.Unlock()

	select {
	case p.released <- struct{}{}:
	default:
	}

	p.observe()
	return resource.Close()
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{Size: p.size, Created: p.created, Idle: len(p.idle)}
	stats.InUse = stats.Created - stats.Idle
	return stats
}

// Close closes every idle resource and rejects further acquires.
// Resources still checked out are closed as they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	idle := p.idle
	p.idle = nil
	for _, resource := range idle {
		delete(p.members, resource)
		p.created--
	}
	p.mu.Unlock()

	var errs []error
	for _, resource := range idle {
		if err := resource.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) observe() {
	stats := p.Stats()
	p.metrics.Gauge("crucible.pool.in_use").Set(float64(stats.InUse))
	p.metrics.Gauge("crucible.pool.idle").Set(float64(stats.Idle))
}
