package metadata

// Marker is a declarative capability tag attached to an implementation
// unit. A marker may imply other markers; implied markers are resolved
// transitively when a unit is scanned, so a project-level composite marker
// (say, "repository" implying "singleton" and "transactional-boundary")
// behaves exactly as if its constituents were declared directly.
type Marker struct {
	Name    string
	Implies []Marker
	Args    map[string]any
}

// Well-known capability markers.
var (
	// Singleton marks a unit whose instance is shared across the container.
	Singleton = Marker{Name: "singleton"}

	// Lazy marks a dependency edge as deferrable for cycle breaking.
	Lazy = Marker{Name: "lazy"}

	// Primary marks the preferred candidate when a dependency is
	// satisfiable by more than one component.
	Primary = Marker{Name: "primary"}

	// TransactionalBoundary marks methods of a unit as transaction
	// boundaries. Options are carried in Args; see the transaction package
	// for the typed constructor.
	TransactionalBoundary = Marker{Name: "transactional-boundary"}

	// Cached marks a unit whose intercepted calls may be served from cache.
	Cached = Marker{Name: "cached"}

	// Audited marks a unit whose intercepted calls are logged and traced.
	Audited = Marker{Name: "audited"}
)

// NewMarker creates a custom marker composed of the given implied markers.
func NewMarker(name string, implies ...Marker) Marker {
	return Marker{Name: name, Implies: implies}
}

// WithArg returns a copy of the marker carrying an additional argument.
func (m Marker) WithArg(key string, value any) Marker {
	args := make(map[string]any, len(m.Args)+1)
	for k, v := range m.Args {
		args[k] = v
	}
	args[key] = value

	copied := m
	copied.Args = args
	return copied
}

// MarkerSet is the resolved, immutable set of markers on a descriptor.
// Iteration order is declaration order: directly declared markers in the
// order they were declared, then implied markers as resolution reaches
// them. The order is stable across scans of unchanged input.
type MarkerSet struct {
	markers map[string]Marker
	order   []string
}

// ResolveMarkers expands the declared markers to their transitive closure.
// Resolution follows marker-of-marker composition to a fixed point. A
// marker seen first wins; directly declared markers are visited before any
// implied ones, so explicit arguments are never shadowed by composites.
func ResolveMarkers(declared []Marker) MarkerSet {
	set := MarkerSet{markers: make(map[string]Marker)}

	add := func(m Marker) bool {
		if _, seen := set.markers[m.Name]; seen {
			return false
		}
		set.markers[m.Name] = m
		set.order = append(set.order, m.Name)
		return true
	}

	// Direct declarations first, so their arguments are never shadowed
	// by the same marker reached through a composite.
	for _, m := range declared {
		add(m)
	}

	var visit func(m Marker)
	visit = func(m Marker) {
		for _, implied := range m.Implies {
			if add(implied) {
				visit(implied)
			}
		}
	}
	for _, m := range declared {
		visit(m)
	}

	return set
}

// Has reports whether the set contains a marker with the given name.
func (s MarkerSet) Has(name string) bool {
	_, ok := s.markers[name]
	return ok
}

// Get returns the marker with the given name, if present.
func (s MarkerSet) Get(name string) (Marker, bool) {
	m, ok := s.markers[name]
	return m, ok
}

// Names returns the marker names in declaration order.
func (s MarkerSet) Names() []string {
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Len returns the number of markers in the set.
func (s MarkerSet) Len() int {
	return len(s.markers)
}

// HasAny reports whether the set contains at least one of the given names.
func (s MarkerSet) HasAny(names []string) bool {
	for _, name := range names {
		if s.Has(name) {
			return true
		}
	}
	return false
}
