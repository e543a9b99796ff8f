package intercept

import (
	"context"
	"fmt"
	"reflect"

	"github.com/xraph/crucible/errors"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Proxy is the dynamic interception surface used when a unit declares no
// wrapper builder. It keeps the full chain semantics but trades the typed
// method surface for a reflective Call. Calls made directly on the target
// bypass the proxy entirely; only calls through Call are intercepted.
type Proxy struct {
	target any
	exec   *Executor
}

// Target returns the raw wrapped instance.
func (p *Proxy) Target() any { return p.target }

// Call invokes method on the target through the interceptor chain. When
// the method's first parameter is a context it receives ctx; remaining
// parameters come from args in order. A trailing error return is split
// out, a single remaining value is returned as the result.
func (p *Proxy) Call(ctx context.Context, method string, args ...any) (any, error) {
	m := reflect.ValueOf(p.target).MethodByName(method)
	if !m.IsValid() {
		return nil, errors.ErrInterceptorError(p.exec.Component(),
			fmt.Errorf("no method '%s' on %T", method, p.target))
	}

	terminal := func(callCtx context.Context) (any, error) {
		return callReflective(callCtx, m, args)
	}
	return p.exec.Execute(ctx, method, args, terminal)
}

func callReflective(ctx context.Context, m reflect.Value, args []any) (any, error) {
	mt := m.Type()

	in := make([]reflect.Value, 0, mt.NumIn())
	next := 0
	if mt.NumIn() > 0 && mt.In(0) == contextType {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i := len(in); i < mt.NumIn(); i++ {
		if next >= len(args) {
			return nil, fmt.Errorf("method takes %d arguments, got %d", mt.NumIn(), len(args))
		}
		arg := args[next]
		next++
		if arg == nil {
			in = append(in, reflect.Zero(mt.In(i)))
			continue
		}
		in = append(in, reflect.ValueOf(arg))
	}

	out := m.Call(in)

	var err error
	if len(out) > 0 && out[len(out)-1].Type().Implements(errorType) {
		if last := out[len(out)-1]; !last.IsNil() {
			err = last.Interface().(error)
		}
		out = out[:len(out)-1]
	}

	switch len(out) {
	case 0:
		return nil, err
	case 1:
		return out[0].Interface(), err
	default:
		results := make([]any, len(out))
		for i, v := range out {
			results[i] = v.Interface()
		}
		return results, err
	}
}
