package registry

import (
	"sort"
	"sync"

	"github.com/xraph/crucible/errors"
	"github.com/xraph/crucible/logger"
	"github.com/xraph/crucible/pkg/common"
	"github.com/xraph/crucible/pkg/metadata"
)

// Registry stores component descriptors keyed by logical name. It holds
// descriptors only, never instances, and is frozen once the scan phase
// completes: runtime registration is rejected so the dependency graph
// stays analyzable.
type Registry struct {
	descriptors map[string]*metadata.Descriptor
	frozen      bool
	logger      common.Logger
	mu          sync.RWMutex
}

// New creates an empty registry.
func New(l common.Logger) *Registry {
	if l == nil {
		l = logger.NewNoopLogger()
	}
	return &Registry{
		descriptors: make(map[string]*metadata.Descriptor),
		logger:      l,
	}
}

// Register adds a descriptor. Duplicate logical names are an error, not
// an overwrite; registration after Freeze is an error.
func (r *Registry) Register(descriptor *metadata.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errors.ErrRegistryFrozen(descriptor.Name())
	}

	if _, exists := r.descriptors[descriptor.Name()]; exists {
		return errors.ErrDuplicateName(descriptor.Name())
	}

	r.descriptors[descriptor.Name()] = descriptor

	r.logger.Debug("component registered",
		logger.String("name", descriptor.Name()),
		logger.String("type", descriptor.Provides().String()),
		logger.Strings("markers", descriptor.Markers().Names()),
		logger.String("source", descriptor.Source()),
	)

	return nil
}

// RegisterStream drains a scanner stream into the registry. The first
// registration or extraction error aborts.
func (r *Registry) RegisterStream(stream *metadata.Stream) error {
	for {
		descriptor, ok := stream.Next()
		if !ok {
			return stream.Err()
		}
		if err := r.Register(descriptor); err != nil {
			return err
		}
	}
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (*metadata.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptor, exists := r.descriptors[name]
	if !exists {
		return nil, errors.ErrNotFound(name)
	}
	return descriptor, nil
}

// AllOfCapability returns every descriptor carrying the given marker, in
// deterministic name order.
func (r *Registry) AllOfCapability(marker string) []*metadata.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*metadata.Descriptor
	for _, descriptor := range r.descriptors {
		if descriptor.Markers().Has(marker) {
			matched = append(matched, descriptor)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Name() < matched[j].Name()
	})
	return matched
}

// All returns every registered descriptor in deterministic name order.
func (r *Registry) All() []*metadata.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*metadata.Descriptor, 0, len(r.descriptors))
	for _, descriptor := range r.descriptors {
		all = append(all, descriptor)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Name() < all[j].Name()
	})
	return all
}

// Freeze ends the scan phase. Subsequent Register calls fail.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frozen = true
	r.logger.Debug("registry frozen", logger.Int("components", len(r.descriptors)))
}

// Frozen reports whether the registry has been frozen.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}
