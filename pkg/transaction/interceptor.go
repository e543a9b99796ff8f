package transaction

import (
	"context"

	"github.com/xraph/crucible/pkg/intercept"
	"github.com/xraph/crucible/pkg/metadata"
)

// Transactional builds a transactional-boundary marker carrying the
// given options as declaration arguments, for use on units.
func Transactional(opts Options) metadata.Marker {
	marker := metadata.TransactionalBoundary.
		WithArg("propagation", opts.Propagation.String()).
		WithArg("isolation", opts.Isolation.String()).
		WithArg("readOnly", opts.ReadOnly)
	if opts.RollbackOn != nil {
		marker = marker.WithArg("rollbackOn", opts.RollbackOn)
	}
	return marker
}

// OptionsFromMarker reads transaction options back out of a marker's
// declaration arguments. Absent arguments keep their zero defaults.
func OptionsFromMarker(args map[string]any) Options {
	var opts Options
	if s, ok := args["propagation"].(string); ok {
		opts.Propagation = ParsePropagation(s)
	}
	if s, ok := args["isolation"].(string); ok {
		opts.Isolation = ParseIsolation(s)
	}
	if b, ok := args["readOnly"].(bool); ok {
		opts.ReadOnly = b
	}
	if f, ok := args["rollbackOn"].(func(error) bool); ok {
		opts.RollbackOn = f
	}
	return opts
}

// Interceptor wraps invocations of transactional-boundary components in
// a transactional scope: commit on success, rollback on error or panic,
// with propagation and isolation taken from the marker's arguments.
type Interceptor struct {
	manager  *Manager
	priority int
}

// NewInterceptor creates the transaction interceptor.
func NewInterceptor(manager *Manager, priority int) *Interceptor {
	return &Interceptor{manager: manager, priority: priority}
}

func (i *Interceptor) Name() string { return "transaction" }

func (i *Interceptor) Marker() string { return metadata.TransactionalBoundary.Name }

func (i *Interceptor) Priority() int { return i.priority }

func (i *Interceptor) Invoke(inv *intercept.Invocation, proceed intercept.Proceed) (any, error) {
	opts := OptionsFromMarker(inv.MarkerArgs(metadata.TransactionalBoundary.Name))

	var result any
	err := i.manager.Execute(inv.Context, opts, func(ctx context.Context) error {
		inv.Context = ctx
		var callErr error
		result, callErr = proceed()
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
