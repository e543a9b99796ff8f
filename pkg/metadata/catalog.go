package metadata

import (
	"reflect"
	"unicode"
)

// Unit declares one implementation unit to the scanner. Units are plain
// declarations: nothing is constructed until the container builds.
type Unit struct {
	// Name overrides the default logical name derived from the
	// constructed type. Optional.
	Name string

	// Constructor is a function producing the component. It may accept a
	// context.Context, component dependencies, and deferred handles, and
	// must return the component, optionally followed by an error.
	Constructor any

	// Markers are the declared capability markers, in declaration order.
	Markers []Marker

	// Extensions carries opaque per-unit values for collaborators, such
	// as a proxy wrapper builder keyed by the intercept package.
	Extensions map[string]any
}

// Catalog is a scan root: an ordered collection of unit declarations.
// Catalogs replace classpath scanning with explicit registration, which
// keeps discovery deterministic and free of construction side effects.
type Catalog struct {
	name  string
	units []Unit
}

// NewCatalog creates an empty catalog with the given name. The name
// appears in descriptor source locations for diagnostics.
func NewCatalog(name string) *Catalog {
	return &Catalog{name: name}
}

// Add appends a unit declaration and returns the catalog for chaining.
func (c *Catalog) Add(unit Unit) *Catalog {
	c.units = append(c.units, unit)
	return c
}

// Name returns the catalog name.
func (c *Catalog) Name() string { return c.name }

// Len returns the number of declared units.
func (c *Catalog) Len() int { return len(c.units) }

// DefaultName derives the deterministic logical name for a component
// type: the bare type name with its first rune lowered, pointers
// stripped. Unnamed types fall back to their full type string.
func DefaultName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	name := t.Name()
	if name == "" {
		return t.String()
	}

	runes := []rune(name)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}
