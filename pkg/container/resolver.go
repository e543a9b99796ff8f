package container

import (
	"context"
	"fmt"
	"reflect"

	"github.com/xraph/crucible/errors"
	"github.com/xraph/crucible/logger"
	"github.com/xraph/crucible/pkg/metadata"
)

// instantiate constructs the instance and, recursively, everything it
// depends on. path carries the chain of components currently under
// construction; meeting one of them again is a dependency cycle.
func (c *Container) instantiate(ctx context.Context, instance *ManagedInstance, path []string) error {
	switch instance.State() {
	case StateReady:
		return nil
	case StateConstructing:
		return errors.ErrCircularDependency(cycleFrom(path, instance.Name()))
	}

	instance.setState(StateConstructing)
	path = append(path, instance.Name())

	descriptor := instance.Descriptor()
	args, err := c.resolveArgs(ctx, instance, path)
	if err != nil {
		return err
	}

	raw, err := invoke(descriptor, args)
	if err != nil {
		return errors.ErrBuildError(descriptor.Name(), err)
	}

	value := raw
	if c.proxy != nil {
		wrapped, err := c.proxy.Wrap(raw, descriptor)
		if err != nil {
			return errors.ErrBuildError(descriptor.Name(), err)
		}
		value = wrapped
	}

	instance.setValue(raw, value)
	c.order = append(c.order, descriptor.Name())

	c.logger.Debug("component constructed",
		logger.String("component", descriptor.Name()),
		logger.String("type", descriptor.Provides().String()),
	)
	c.metrics.Counter("crucible.container.components_built").Inc()

	return nil
}

// resolveArgs produces the ordered constructor arguments for a component.
func (c *Container) resolveArgs(ctx context.Context, instance *ManagedInstance, path []string) ([]reflect.Value, error) {
	descriptor := instance.Descriptor()
	params := descriptor.Params()
	args := make([]reflect.Value, 0, len(params))

	for _, param := range params {
		switch param.Kind {
		case metadata.ParamContext:
			args = append(args, reflect.ValueOf(ctx))

		case metadata.ParamDependency:
			dependency, err := c.candidate(descriptor, param)
			if err != nil {
				return nil, err
			}
			if err := c.instantiate(ctx, dependency, path); err != nil {
				return nil, err
			}
			value := dependency.Value()
			if !reflect.TypeOf(value).AssignableTo(param.Type) {
				return nil, errors.ErrBuildError(descriptor.Name(),
					fmt.Errorf("wrapper for '%s' has type %T, not assignable to %s",
						dependency.Name(), value, param.Type))
			}
			args = append(args, reflect.ValueOf(value))

		case metadata.ParamDeferred:
			// The target must exist and be unambiguous at build time, but
			// it is not constructed here. That is what breaks cycles.
			target, err := c.candidate(descriptor, param)
			if err != nil {
				return nil, err
			}
			handle := reflect.New(param.Type.Elem())
			handle.Interface().(binder).bind(c.lateResolver(target))
			args = append(args, handle)
		}
	}

	return args, nil
}

// lateResolver returns the closure a deferred handle dereferences through.
func (c *Container) lateResolver(target *ManagedInstance) func() (any, error) {
	return func() (any, error) {
		if target.State() != StateReady {
			return nil, fmt.Errorf("deferred target '%s' dereferenced before construction completed", target.Name())
		}
		return target.Value(), nil
	}
}

// candidate selects the single managed instance satisfying a parameter.
// All registered components whose provided type is assignable to the
// parameter's referent are candidates; more than one is resolved only by
// a unique primary marker.
func (c *Container) candidate(owner *metadata.Descriptor, param metadata.Param) (*ManagedInstance, error) {
	var candidates []*ManagedInstance
	for _, descriptor := range c.registry.All() {
		if descriptor.Provides().AssignableTo(param.Elem) {
			candidates = append(candidates, c.instances[descriptor.Name()])
		}
	}

	switch len(candidates) {
	case 0:
		return nil, errors.ErrMissingDependency(owner.Name(), param.LogicalName())
	case 1:
		return candidates[0], nil
	}

	var primaries []*ManagedInstance
	names := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		names = append(names, candidate.Name())
		if candidate.Descriptor().Markers().Has(metadata.Primary.Name) {
			primaries = append(primaries, candidate)
		}
	}

	if len(primaries) == 1 {
		return primaries[0], nil
	}
	return nil, errors.ErrAmbiguousDependency(owner.Name(), param.LogicalName(), names)
}

// cycleFrom extracts the cycle ending at name from the construction path,
// closing it with a repeat of name so the message reads a -> b -> a.
func cycleFrom(path []string, name string) []string {
	start := 0
	for i, member := range path {
		if member == name {
			start = i
			break
		}
	}
	cycle := append([]string{}, path[start:]...)
	return append(cycle, name)
}

// invoke calls the constructor reflectively. A panic inside a constructor
// is converted into an error rather than unwinding through the build.
func invoke(descriptor *metadata.Descriptor, args []reflect.Value) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("constructor panicked: %v", r)
		}
	}()

	out := reflect.ValueOf(descriptor.Constructor()).Call(args)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}
