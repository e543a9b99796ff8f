package container

import (
	"reflect"
	"sync"
)

// Deferred is a forward-reference handle to a component of type T.
// Declaring a constructor parameter as *Deferred[T] marks that dependency
// edge as deferred: the container injects the handle without constructing
// the target, which breaks dependency cycles. The handle resolves to the
// real instance on first dereference, never at construction time.
type Deferred[T any] struct {
	resolve func() (any, error)
	once    sync.Once
	value   T
	err     error
}

// RefType returns the referenced component type. It is used by the
// scanner to classify the parameter and requires no bound handle.
func (d *Deferred[T]) RefType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Get resolves the referent on first call and returns it. Resolution is
// memoized: every subsequent call returns the same instance.
func (d *Deferred[T]) Get() (T, error) {
	d.once.Do(func() {
		if d.resolve == nil {
			d.err = errUnboundHandle
			return
		}
		resolved, err := d.resolve()
		if err != nil {
			d.err = err
			return
		}
		d.value = resolved.(T)
	})
	return d.value, d.err
}

// MustGet resolves the referent and panics on failure. Intended for call
// sites that run strictly after a successful container build.
func (d *Deferred[T]) MustGet() T {
	value, err := d.Get()
	if err != nil {
		panic(err)
	}
	return value
}

// bind attaches the resolver closure. Called by the container only.
func (d *Deferred[T]) bind(resolve func() (any, error)) {
	d.resolve = resolve
}

// binder is the container-internal binding surface of a deferred handle.
type binder interface {
	bind(resolve func() (any, error))
}
