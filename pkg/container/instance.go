package container

import (
	"context"
	"sync"

	"github.com/xraph/crucible/pkg/metadata"
)

// =============================================================================
// LIFECYCLE STATES
// =============================================================================

// State represents the lifecycle state of a managed instance.
type State string

const (
	// StateUninitialized means the descriptor is known but construction has
	// not started.
	StateUninitialized State = "uninitialized"

	// StateConstructing means the constructor is running. Observing this
	// state while resolving a dependency means the graph has a cycle.
	StateConstructing State = "constructing"

	// StateReady means the instance is fully constructed and wrapped.
	StateReady State = "ready"

	// StateDestroyed means the instance has been torn down.
	StateDestroyed State = "destroyed"
)

// Destroyable is implemented by components that hold resources needing
// release when the container shuts down.
type Destroyable interface {
	Destroy(ctx context.Context) error
}

// =============================================================================
// MANAGED INSTANCE
// =============================================================================

// ManagedInstance is the container's record of one constructed component:
// its descriptor, the raw constructed value, the wrapped value handed to
// dependents, and the lifecycle state.
type ManagedInstance struct {
	descriptor *metadata.Descriptor
	raw        any
	value      any
	state      State
	mu         sync.RWMutex
}

func newManagedInstance(descriptor *metadata.Descriptor) *ManagedInstance {
	return &ManagedInstance{
		descriptor: descriptor,
		state:      StateUninitialized,
	}
}

// Descriptor returns the component's metadata.
func (mi *ManagedInstance) Descriptor() *metadata.Descriptor {
	return mi.descriptor
}

// Name returns the component's logical name.
func (mi *ManagedInstance) Name() string {
	return mi.descriptor.Name()
}

// Value returns the instance dependents receive. When a proxy was applied
// this is the wrapper, otherwise it is the raw constructed value.
func (mi *ManagedInstance) Value() any {
	mi.mu.RLock()
	defer mi.mu.RUnlock()
	return mi.value
}

// Raw returns the unwrapped constructed value.
func (mi *ManagedInstance) Raw() any {
	mi.mu.RLock()
	defer mi.mu.RUnlock()
	return mi.raw
}

// State returns the current lifecycle state.
func (mi *ManagedInstance) State() State {
	mi.mu.RLock()
	defer mi.mu.RUnlock()
	return mi.state
}

func (mi *ManagedInstance) setState(state State) {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	mi.state = state
}

func (mi *ManagedInstance) setValue(raw, value any) {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	mi.raw = raw
	mi.value = value
	mi.state = StateReady
}
