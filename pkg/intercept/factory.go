package intercept

import (
	"context"
	"sort"

	"github.com/xraph/crucible/errors"
	"github.com/xraph/crucible/logger"
	"github.com/xraph/crucible/pkg/common"
	"github.com/xraph/crucible/pkg/metadata"
	"github.com/xraph/crucible/pkg/metrics"
)

// WrapperBuilderExtension is the descriptor extension key under which a
// unit declares its typed wrapper builder.
const WrapperBuilderExtension = "crucible.wrapperBuilder"

// WrapperBuilder constructs a typed wrapper around target. The wrapper
// keeps the target's method surface and routes each call through exec, so
// dependents keep compile-time types while interception applies.
type WrapperBuilder func(target any, exec *Executor) any

// FactoryConfig contains proxy factory dependencies.
type FactoryConfig struct {
	Logger  common.Logger
	Metrics common.Metrics
}

// Factory decides, per component, whether interception applies and builds
// the wrapper that carries it. It satisfies the container's ProxyFactory.
type Factory struct {
	interceptors map[string][]Interceptor
	logger       common.Logger
	metrics      common.Metrics
}

// NewFactory creates a proxy factory with no interceptors registered.
func NewFactory(config FactoryConfig) *Factory {
	l := config.Logger
	if l == nil {
		l = logger.NewNoopLogger()
	}
	m := config.Metrics
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	return &Factory{
		interceptors: make(map[string][]Interceptor),
		logger:       l,
		metrics:      m,
	}
}

// Register adds an interceptor. Registration order does not matter: the
// chain order is fixed by marker declaration order and priority.
func (f *Factory) Register(interceptor Interceptor) {
	marker := interceptor.Marker()
	f.interceptors[marker] = append(f.interceptors[marker], interceptor)
	sort.SliceStable(f.interceptors[marker], func(i, j int) bool {
		return f.interceptors[marker][i].Priority() < f.interceptors[marker][j].Priority()
	})
}

// Wrap applies interception to a constructed instance. Components whose
// markers activate no interceptor are returned unchanged, identical to
// the input. Otherwise the unit's wrapper builder is used when declared;
// without one the dynamic Proxy is returned, which keeps interception but
// loses the typed method surface.
func (f *Factory) Wrap(instance any, descriptor *metadata.Descriptor) (any, error) {
	chain := f.chainFor(descriptor.Markers())
	if len(chain) == 0 {
		return instance, nil
	}

	exec := &Executor{
		component: descriptor.Name(),
		markers:   descriptor.Markers(),
		target:    instance,
		chain:     chain,
		metrics:   f.metrics,
	}

	names := make([]string, len(chain))
	for i, interceptor := range chain {
		names[i] = interceptor.Name()
	}
	f.logger.Debug("interception applied",
		logger.String("component", descriptor.Name()),
		logger.Strings("chain", names),
	)

	if ext, ok := descriptor.Extension(WrapperBuilderExtension); ok {
		builder, ok := ext.(WrapperBuilder)
		if !ok {
			return nil, errors.ErrInterceptorError(descriptor.Name(),
				errors.New("wrapper builder extension has wrong type"))
		}
		return builder(instance, exec), nil
	}

	return &Proxy{target: instance, exec: exec}, nil
}

// chainFor assembles the interceptor chain for a marker set. Markers
// contribute in declaration order; interceptors bound to the same marker
// run in ascending priority order.
func (f *Factory) chainFor(markers metadata.MarkerSet) []Interceptor {
	var chain []Interceptor
	for _, name := range markers.Names() {
		chain = append(chain, f.interceptors[name]...)
	}
	return chain
}

// =============================================================================
// EXECUTOR
// =============================================================================

// Terminal is the real method call at the end of a chain.
type Terminal func(ctx context.Context) (any, error)

// Executor runs the interceptor chain of one component. Wrapper methods
// call Execute with the real call as terminal.
type Executor struct {
	component string
	markers   metadata.MarkerSet
	target    any
	chain     []Interceptor
	metrics   common.Metrics
}

// Component returns the wrapped component's logical name.
func (e *Executor) Component() string { return e.component }

// Target returns the raw wrapped instance.
func (e *Executor) Target() any { return e.target }

// Execute runs method's interceptor chain around terminal. Each
// interceptor may proceed at most once; a second proceed fails the call.
// An interceptor that returns without proceeding short-circuits the call
// and terminal never runs.
func (e *Executor) Execute(ctx context.Context, method string, args []any, terminal Terminal) (any, error) {
	inv := &Invocation{
		Context:   ctx,
		Component: e.component,
		Method:    method,
		Target:    e.target,
		Args:      args,
		Markers:   e.markers,
	}

	e.metrics.Counter("crucible.intercept.invocations",
		common.Label{Name: "component", Value: e.component}).Inc()

	var run func(i int, inv *Invocation) (any, error)
	run = func(i int, inv *Invocation) (any, error) {
		if i == len(e.chain) {
			return terminal(inv.Context)
		}

		interceptor := e.chain[i]
		proceeded := false
		proceed := func() (any, error) {
			if proceeded {
				return nil, errors.ErrInterceptorError(interceptor.Name(), errors.ErrProceedTwice)
			}
			proceeded = true
			return run(i+1, inv)
		}
		return interceptor.Invoke(inv, proceed)
	}

	return run(0, inv)
}
