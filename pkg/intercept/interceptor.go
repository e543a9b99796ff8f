package intercept

import (
	"context"

	"github.com/xraph/crucible/pkg/metadata"
)

// =============================================================================
// INVOCATION
// =============================================================================

// Invocation carries everything an interceptor may inspect about one
// method call on a managed component.
type Invocation struct {
	// Context is the caller's context. Interceptors must derive from it,
	// never replace it with a background context.
	Context context.Context

	// Component is the logical name of the intercepted component.
	Component string

	// Method is the invoked method name.
	Method string

	// Target is the raw, unwrapped component instance.
	Target any

	// Args are the call arguments in order.
	Args []any

	// Markers is the component's resolved capability marker set.
	Markers metadata.MarkerSet
}

// MarkerArgs returns the declaration arguments of one of the component's
// markers, or nil when the marker is absent or has no arguments.
func (inv *Invocation) MarkerArgs(name string) map[string]any {
	marker, ok := inv.Markers.Get(name)
	if !ok {
		return nil
	}
	return marker.Args
}

// =============================================================================
// INTERCEPTOR
// =============================================================================

// Proceed advances the chain to the next interceptor, or to the real
// method once the chain is exhausted. Calling it more than once from the
// same interceptor is an error; not calling it short-circuits the call.
type Proceed func() (any, error)

// Interceptor contributes behavior around invocations of components that
// carry its activating marker.
type Interceptor interface {
	// Name identifies the interceptor in logs and errors.
	Name() string

	// Marker is the capability marker that activates this interceptor.
	Marker() string

	// Priority orders interceptors bound to the same marker, ascending.
	Priority() int

	// Invoke runs around the call. The returned value replaces the call
	// result observed by outer interceptors and the caller.
	Invoke(inv *Invocation, proceed Proceed) (any, error)
}
