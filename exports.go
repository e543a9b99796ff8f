package crucible

import (
	"github.com/xraph/crucible/pkg/container"
	"github.com/xraph/crucible/pkg/intercept"
	"github.com/xraph/crucible/pkg/metadata"
	"github.com/xraph/crucible/pkg/transaction"
)

// Declaration surface, re-exported so applications can describe their
// components without importing the internal packages.
type (
	Unit    = metadata.Unit
	Catalog = metadata.Catalog
	Marker  = metadata.Marker
)

// Deferred is the forward-reference handle for breaking dependency
// cycles in constructor parameters.
type Deferred[T any] = container.Deferred[T]

// Built-in capability markers.
var (
	Singleton             = metadata.Singleton
	Lazy                  = metadata.Lazy
	Primary               = metadata.Primary
	TransactionalBoundary = metadata.TransactionalBoundary
	Cached                = metadata.Cached
	Audited               = metadata.Audited
)

// NewCatalog creates a scan root for unit declarations.
func NewCatalog(name string) *Catalog { return metadata.NewCatalog(name) }

// NewMarker declares a capability marker, optionally implying others.
func NewMarker(name string, implies ...Marker) Marker {
	return metadata.NewMarker(name, implies...)
}

// Transactional builds a transactional-boundary marker carrying options.
func Transactional(opts transaction.Options) Marker {
	return transaction.Transactional(opts)
}

// WrapperBuilderExtension keys a unit's typed proxy builder.
const WrapperBuilderExtension = intercept.WrapperBuilderExtension
