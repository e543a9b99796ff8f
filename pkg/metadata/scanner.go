package metadata

import (
	"context"
	"fmt"
	"path"
	"reflect"

	"github.com/xraph/crucible/errors"
	"github.com/xraph/crucible/logger"
	"github.com/xraph/crucible/pkg/common"
)

// DeferredRef is implemented by forward-reference handle types. The
// scanner uses it to classify constructor parameters without knowing the
// concrete handle implementation.
type DeferredRef interface {
	// RefType returns the referenced component type.
	RefType() reflect.Type
}

var (
	contextType     = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType       = reflect.TypeOf((*error)(nil)).Elem()
	deferredRefType = reflect.TypeOf((*DeferredRef)(nil)).Elem()
)

// recognizedMarkers are the capability markers that make a unit a
// candidate. Units whose resolved marker set intersects none of these are
// skipped by the include filter.
var recognizedMarkers = []string{
	Singleton.Name,
	Lazy.Name,
	Primary.Name,
	TransactionalBoundary.Name,
	Cached.Name,
	Audited.Name,
}

// ScannerConfig configures a Scanner.
type ScannerConfig struct {
	// ExcludePatterns suppresses otherwise-matching candidates whose
	// logical name matches one of the path.Match patterns, e.g. "*Stub"
	// or "mock-*".
	ExcludePatterns []string `yaml:"exclude_patterns"`

	// RecognizedMarkers extends the built-in capability marker names the
	// include filter accepts.
	RecognizedMarkers []string `yaml:"recognized_markers"`

	Logger common.Logger `yaml:"-"`
}

// Scanner produces component descriptors from catalogs. Scanning reads
// structural metadata only: constructors are inspected by reflection,
// never invoked, so discovery has no side effects and bounded memory.
type Scanner struct {
	excludes   []string
	recognized []string
	logger     common.Logger
}

// NewScanner creates a scanner with the given configuration.
func NewScanner(config ScannerConfig) *Scanner {
	l := config.Logger
	if l == nil {
		l = logger.NewNoopLogger()
	}

	return &Scanner{
		excludes:   config.ExcludePatterns,
		recognized: append(append([]string{}, recognizedMarkers...), config.RecognizedMarkers...),
		logger:     l,
	}
}

// Scan returns a lazy descriptor stream over the given scan roots.
// The stream is finite, restartable, and deterministic: re-scanning
// unchanged catalogs yields identical output.
func (s *Scanner) Scan(roots ...*Catalog) *Stream {
	return &Stream{scanner: s, roots: roots}
}

// extract produces the descriptor for one unit, or nil when the unit is
// filtered out.
func (s *Scanner) extract(unit Unit, source string) (*Descriptor, error) {
	if unit.Constructor == nil {
		return nil, errors.ErrInvalidUnit(unit.Name, fmt.Errorf("unit has no constructor"))
	}

	ctorType := reflect.TypeOf(unit.Constructor)
	if ctorType.Kind() != reflect.Func {
		return nil, errors.ErrInvalidUnit(unit.Name, errors.ErrInvalidConstructor)
	}
	if ctorType.IsVariadic() {
		return nil, errors.ErrInvalidUnit(unit.Name, fmt.Errorf("variadic constructors are not supported"))
	}

	provides, err := constructedType(ctorType)
	if err != nil {
		return nil, errors.ErrInvalidUnit(unit.Name, err)
	}

	name := unit.Name
	if name == "" {
		name = DefaultName(provides)
	}

	markers := ResolveMarkers(unit.Markers)
	if !markers.HasAny(s.recognized) {
		s.logger.Debug("unit skipped: no recognized capability marker",
			logger.String("unit", name),
			logger.String("source", source),
		)
		return nil, nil
	}

	if s.excluded(name) {
		s.logger.Debug("unit skipped: matches exclude pattern",
			logger.String("unit", name),
			logger.String("source", source),
		)
		return nil, nil
	}

	params := make([]Param, ctorType.NumIn())
	for i := 0; i < ctorType.NumIn(); i++ {
		params[i] = classifyParam(ctorType.In(i))
	}

	return &Descriptor{
		name:        name,
		provides:    provides,
		constructor: unit.Constructor,
		markers:     markers,
		params:      params,
		source:      source,
		extensions:  unit.Extensions,
	}, nil
}

// constructedType validates the constructor signature and returns the
// component type: the first return value, optionally followed by error.
func constructedType(ctorType reflect.Type) (reflect.Type, error) {
	switch ctorType.NumOut() {
	case 1:
		if ctorType.Out(0) == errorType {
			return nil, fmt.Errorf("constructor must return a component, not only an error")
		}
		return ctorType.Out(0), nil
	case 2:
		if ctorType.Out(1) != errorType {
			return nil, fmt.Errorf("second constructor return must be error, got %s", ctorType.Out(1))
		}
		return ctorType.Out(0), nil
	default:
		return nil, fmt.Errorf("constructor must return (T) or (T, error), got %d values", ctorType.NumOut())
	}
}

// classifyParam decides how the container satisfies one parameter.
func classifyParam(paramType reflect.Type) Param {
	if paramType == contextType {
		return Param{Type: paramType, Elem: paramType, Kind: ParamContext}
	}

	if paramType.Kind() == reflect.Ptr && paramType.Implements(deferredRefType) {
		handle := reflect.New(paramType.Elem())
		elem := handle.Interface().(DeferredRef).RefType()
		return Param{Type: paramType, Elem: elem, Kind: ParamDeferred}
	}

	return Param{Type: paramType, Elem: paramType, Kind: ParamDependency}
}

func (s *Scanner) excluded(name string) bool {
	for _, pattern := range s.excludes {
		if matched, _ := path.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

// Stream is a lazy, finite, restartable sequence of descriptors.
// Descriptors are extracted one at a time as Next is called; Reset
// rewinds to the beginning.
type Stream struct {
	scanner *Scanner
	roots   []*Catalog
	root    int
	unit    int
	err     error
}

// Next returns the next descriptor, or false when the stream is
// exhausted or an extraction error occurred. Check Err after iteration.
func (st *Stream) Next() (*Descriptor, bool) {
	if st.err != nil {
		return nil, false
	}

	for st.root < len(st.roots) {
		catalog := st.roots[st.root]
		if st.unit >= len(catalog.units) {
			st.root++
			st.unit = 0
			continue
		}

		unit := catalog.units[st.unit]
		source := fmt.Sprintf("%s[%d]", catalog.name, st.unit)
		st.unit++

		descriptor, err := st.scanner.extract(unit, source)
		if err != nil {
			st.err = err
			return nil, false
		}
		if descriptor == nil {
			continue // filtered out
		}
		return descriptor, true
	}

	return nil, false
}

// Err returns the first extraction error encountered, if any.
func (st *Stream) Err() error {
	return st.err
}

// Reset rewinds the stream; a fresh iteration over unchanged catalogs
// yields identical output.
func (st *Stream) Reset() {
	st.root = 0
	st.unit = 0
	st.err = nil
}

// Collect drains the stream into a slice.
func (st *Stream) Collect() ([]*Descriptor, error) {
	var descriptors []*Descriptor
	for {
		descriptor, ok := st.Next()
		if !ok {
			break
		}
		descriptors = append(descriptors, descriptor)
	}
	return descriptors, st.err
}
