package metadata

import (
	"fmt"
	"reflect"
)

// ParamKind classifies a constructor parameter.
type ParamKind int

const (
	// ParamDependency is a component dependency resolved by the container.
	ParamDependency ParamKind = iota

	// ParamDeferred is a dependency injected as a forward-reference handle,
	// resolved on first dereference rather than at construction time.
	ParamDeferred

	// ParamContext receives the build context and is not a dependency.
	ParamContext
)

// Param describes one ordered constructor parameter of a component.
type Param struct {
	// Type is the declared parameter type. For deferred parameters this is
	// the handle type, not the referent.
	Type reflect.Type

	// Elem is the referenced component type: Type itself for plain
	// dependencies, the handle's referent type for deferred ones.
	Elem reflect.Type

	// Kind classifies the parameter.
	Kind ParamKind
}

// LogicalName returns the default logical name the parameter resolves
// against when no component of the exact type is registered.
func (p Param) LogicalName() string {
	return DefaultName(p.Elem)
}

func (p Param) String() string {
	switch p.Kind {
	case ParamDeferred:
		return fmt.Sprintf("deferred(%s)", p.Elem.String())
	case ParamContext:
		return "context"
	default:
		return p.Elem.String()
	}
}

// Descriptor is the structural metadata of a component, known before
// construction. Descriptors are immutable once produced by the scanner.
type Descriptor struct {
	name        string
	provides    reflect.Type
	constructor any
	markers     MarkerSet
	params      []Param
	source      string
	extensions  map[string]any
}

// Name returns the unique logical name of the component.
func (d *Descriptor) Name() string { return d.name }

// Provides returns the type the constructor produces.
func (d *Descriptor) Provides() reflect.Type { return d.provides }

// Constructor returns the declared constructor function.
func (d *Descriptor) Constructor() any { return d.constructor }

// Markers returns the resolved capability marker set.
func (d *Descriptor) Markers() MarkerSet { return d.markers }

// Params returns the ordered constructor parameter descriptions.
func (d *Descriptor) Params() []Param {
	params := make([]Param, len(d.params))
	copy(params, d.params)
	return params
}

// Source identifies where the component was declared (catalog and index),
// for diagnostics.
func (d *Descriptor) Source() string { return d.source }

// Extension returns an opaque extension value attached at declaration
// time, such as a proxy wrapper builder.
func (d *Descriptor) Extension(key string) (any, bool) {
	v, ok := d.extensions[key]
	return v, ok
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s (%s)", d.name, d.provides)
}
