package intercept

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crucible/errors"
	"github.com/xraph/crucible/pkg/metadata"
)

type greeter struct{ calls int }

func (g *greeter) Greet(name string) (string, error) {
	g.calls++
	return "hello " + name, nil
}

func scanUnit(t *testing.T, unit metadata.Unit) *metadata.Descriptor {
	t.Helper()
	catalog := metadata.NewCatalog("test").Add(unit)
	descriptors, err := metadata.NewScanner(metadata.ScannerConfig{}).Scan(catalog).Collect()
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	return descriptors[0]
}

// namedInterceptor records chain traversal order.
type namedInterceptor struct {
	name     string
	marker   string
	priority int
	trace    *[]string
	skip     bool // return without proceeding
	double   bool // proceed twice
}

func (n *namedInterceptor) Name() string   { return n.name }
func (n *namedInterceptor) Marker() string { return n.marker }
func (n *namedInterceptor) Priority() int  { return n.priority }

func (n *namedInterceptor) Invoke(inv *Invocation, proceed Proceed) (any, error) {
	*n.trace = append(*n.trace, n.name)
	if n.skip {
		return "short-circuit", nil
	}
	if n.double {
		if _, err := proceed(); err != nil {
			return nil, err
		}
	}
	return proceed()
}

func TestWrapWithoutInterceptionReturnsSameInstance(t *testing.T) {
	f := NewFactory(FactoryConfig{})
	f.Register(&namedInterceptor{name: "audit", marker: metadata.Audited.Name, trace: &[]string{}})

	target := &greeter{}
	descriptor := scanUnit(t, metadata.Unit{
		Constructor: func() *greeter { return target },
		Markers:     []metadata.Marker{metadata.Singleton},
	})

	wrapped, err := f.Wrap(target, descriptor)
	require.NoError(t, err)
	assert.Same(t, target, wrapped)
}

func TestChainOrderFollowsMarkerDeclarationThenPriority(t *testing.T) {
	var trace []string
	f := NewFactory(FactoryConfig{})
	f.Register(&namedInterceptor{name: "audit", marker: metadata.Audited.Name, priority: 0, trace: &trace})
	f.Register(&namedInterceptor{name: "cacheLate", marker: metadata.Cached.Name, priority: 10, trace: &trace})
	f.Register(&namedInterceptor{name: "cacheEarly", marker: metadata.Cached.Name, priority: 1, trace: &trace})

	target := &greeter{}
	descriptor := scanUnit(t, metadata.Unit{
		Constructor: func() *greeter { return target },
		Markers:     []metadata.Marker{metadata.Cached, metadata.Audited},
	})

	wrapped, err := f.Wrap(target, descriptor)
	require.NoError(t, err)

	proxy := wrapped.(*Proxy)
	result, err := proxy.Call(context.Background(), "Greet", "world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", result)

	// cached is declared before audited, so its interceptors run first,
	// ordered among themselves by ascending priority.
	assert.Equal(t, []string{"cacheEarly", "cacheLate", "audit"}, trace)
}

func TestInterceptorShortCircuits(t *testing.T) {
	var trace []string
	f := NewFactory(FactoryConfig{})
	f.Register(&namedInterceptor{name: "gate", marker: metadata.Cached.Name, priority: 0, trace: &trace, skip: true})
	f.Register(&namedInterceptor{name: "inner", marker: metadata.Cached.Name, priority: 1, trace: &trace})

	target := &greeter{}
	descriptor := scanUnit(t, metadata.Unit{
		Constructor: func() *greeter { return target },
		Markers:     []metadata.Marker{metadata.Cached},
	})

	wrapped, err := f.Wrap(target, descriptor)
	require.NoError(t, err)

	result, err := wrapped.(*Proxy).Call(context.Background(), "Greet", "world")
	require.NoError(t, err)
	assert.Equal(t, "short-circuit", result)
	assert.Equal(t, []string{"gate"}, trace)
	assert.Zero(t, target.calls)
}

func TestProceedTwiceFails(t *testing.T) {
	var trace []string
	f := NewFactory(FactoryConfig{})
	f.Register(&namedInterceptor{name: "greedy", marker: metadata.Cached.Name, trace: &trace, double: true})

	target := &greeter{}
	descriptor := scanUnit(t, metadata.Unit{
		Constructor: func() *greeter { return target },
		Markers:     []metadata.Marker{metadata.Cached},
	})

	wrapped, err := f.Wrap(target, descriptor)
	require.NoError(t, err)

	_, err = wrapped.(*Proxy).Call(context.Background(), "Greet", "world")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrProceedTwice))
	// The target ran once; the second proceed was refused.
	assert.Equal(t, 1, target.calls)
}

// typedGreeter is a wrapper surface built by a WrapperBuilder: dependents
// keep the concrete type while calls route through the chain.
type typedGreeter struct {
	*greeter
	exec *Executor
}

func (w *typedGreeter) Greet(name string) (string, error) {
	result, err := w.exec.Execute(context.Background(), "Greet", []any{name},
		func(ctx context.Context) (any, error) {
			return w.greeter.Greet(name)
		})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func TestWrapperBuilderProducesTypedSurface(t *testing.T) {
	var trace []string
	f := NewFactory(FactoryConfig{})
	f.Register(&namedInterceptor{name: "audit", marker: metadata.Audited.Name, trace: &trace})

	target := &greeter{}
	descriptor := scanUnit(t, metadata.Unit{
		Constructor: func() *greeter { return target },
		Markers:     []metadata.Marker{metadata.Audited},
		Extensions: map[string]any{
			WrapperBuilderExtension: WrapperBuilder(func(instance any, exec *Executor) any {
				return &typedGreeter{greeter: instance.(*greeter), exec: exec}
			}),
		},
	})

	wrapped, err := f.Wrap(target, descriptor)
	require.NoError(t, err)

	typed, ok := wrapped.(*typedGreeter)
	require.True(t, ok)

	result, err := typed.Greet("world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", result)
	assert.Equal(t, []string{"audit"}, trace)
}

func TestProxyCallUnknownMethod(t *testing.T) {
	f := NewFactory(FactoryConfig{})
	f.Register(&namedInterceptor{name: "audit", marker: metadata.Audited.Name, trace: &[]string{}})

	descriptor := scanUnit(t, metadata.Unit{
		Constructor: func() *greeter { return &greeter{} },
		Markers:     []metadata.Marker{metadata.Audited},
	})

	wrapped, err := f.Wrap(&greeter{}, descriptor)
	require.NoError(t, err)

	_, err = wrapped.(*Proxy).Call(context.Background(), "Missing")
	assert.Error(t, err)
}
