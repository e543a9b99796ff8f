package metadata

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test component types.
type scanRepo struct{}

type scanService struct {
	repo *scanRepo
}

func newScanRepo() *scanRepo { return &scanRepo{} }

func newScanService(repo *scanRepo) *scanService { return &scanService{repo: repo} }

// refHandle mimics the container's deferred handle for classification.
type refHandle[T any] struct {
	resolve func() (any, error)
}

func (h *refHandle[T]) RefType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func TestScanExtractsDescriptor(t *testing.T) {
	catalog := NewCatalog("app").
		Add(Unit{Constructor: newScanRepo, Markers: []Marker{Singleton}}).
		Add(Unit{Constructor: newScanService, Markers: []Marker{Singleton, TransactionalBoundary}})

	descriptors, err := NewScanner(ScannerConfig{}).Scan(catalog).Collect()
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	repo := descriptors[0]
	assert.Equal(t, "scanRepo", repo.Name())
	assert.Equal(t, "app[0]", repo.Source())
	assert.Empty(t, repo.Params())

	service := descriptors[1]
	assert.Equal(t, "scanService", service.Name())
	assert.True(t, service.Markers().Has(TransactionalBoundary.Name))
	require.Len(t, service.Params(), 1)
	assert.Equal(t, ParamDependency, service.Params()[0].Kind)
	assert.Equal(t, "scanRepo", service.Params()[0].LogicalName())
}

func TestScanExplicitNameOverride(t *testing.T) {
	catalog := NewCatalog("app").
		Add(Unit{Name: "primaryRepo", Constructor: newScanRepo, Markers: []Marker{Singleton, Primary}})

	descriptors, err := NewScanner(ScannerConfig{}).Scan(catalog).Collect()
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "primaryRepo", descriptors[0].Name())
}

func TestScanIncludeFilterSkipsUnmarkedUnits(t *testing.T) {
	catalog := NewCatalog("app").
		Add(Unit{Constructor: newScanRepo}). // no capability markers
		Add(Unit{Constructor: newScanService, Markers: []Marker{Singleton}})

	descriptors, err := NewScanner(ScannerConfig{}).Scan(catalog).Collect()
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "scanService", descriptors[0].Name())
}

func TestScanExcludePatterns(t *testing.T) {
	catalog := NewCatalog("app").
		Add(Unit{Name: "repoStub", Constructor: newScanRepo, Markers: []Marker{Singleton}}).
		Add(Unit{Constructor: newScanService, Markers: []Marker{Singleton}})

	scanner := NewScanner(ScannerConfig{ExcludePatterns: []string{"*Stub"}})
	descriptors, err := scanner.Scan(catalog).Collect()
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "scanService", descriptors[0].Name())
}

func TestScanCustomRecognizedMarker(t *testing.T) {
	handler := NewMarker("handler")
	catalog := NewCatalog("app").
		Add(Unit{Constructor: newScanRepo, Markers: []Marker{handler}})

	// Not recognized by default.
	descriptors, err := NewScanner(ScannerConfig{}).Scan(catalog).Collect()
	require.NoError(t, err)
	assert.Empty(t, descriptors)

	// Recognized when configured.
	scanner := NewScanner(ScannerConfig{RecognizedMarkers: []string{"handler"}})
	descriptors, err = scanner.Scan(catalog).Collect()
	require.NoError(t, err)
	assert.Len(t, descriptors, 1)
}

func TestScanClassifiesParams(t *testing.T) {
	ctor := func(ctx context.Context, repo *scanRepo, deferred *refHandle[*scanService]) *scanService {
		return &scanService{repo: repo}
	}
	catalog := NewCatalog("app").
		Add(Unit{Name: "svc", Constructor: ctor, Markers: []Marker{Singleton}})

	descriptors, err := NewScanner(ScannerConfig{}).Scan(catalog).Collect()
	require.NoError(t, err)
	require.Len(t, descriptors, 1)

	params := descriptors[0].Params()
	require.Len(t, params, 3)
	assert.Equal(t, ParamContext, params[0].Kind)
	assert.Equal(t, ParamDependency, params[1].Kind)
	assert.Equal(t, ParamDeferred, params[2].Kind)
	assert.Equal(t, reflect.TypeOf(&scanService{}), params[2].Elem)
}

func TestScanRejectsInvalidConstructors(t *testing.T) {
	tests := []struct {
		name string
		unit Unit
	}{
		{"nil constructor", Unit{Name: "a", Markers: []Marker{Singleton}}},
		{"not a function", Unit{Name: "b", Constructor: 42, Markers: []Marker{Singleton}}},
		{"error only", Unit{Name: "c", Constructor: func() error { return nil }, Markers: []Marker{Singleton}}},
		{"variadic", Unit{Name: "d", Constructor: func(deps ...*scanRepo) *scanService { return nil }, Markers: []Marker{Singleton}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := NewCatalog("app").Add(tt.unit)
			stream := NewScanner(ScannerConfig{}).Scan(catalog)

			_, ok := stream.Next()
			assert.False(t, ok)
			assert.Error(t, stream.Err())
		})
	}
}

func TestScanStreamRestartable(t *testing.T) {
	catalog := NewCatalog("app").
		Add(Unit{Constructor: newScanRepo, Markers: []Marker{Singleton}}).
		Add(Unit{Constructor: newScanService, Markers: []Marker{Singleton}})

	stream := NewScanner(ScannerConfig{}).Scan(catalog)

	first, err := stream.Collect()
	require.NoError(t, err)

	stream.Reset()
	second, err := stream.Collect()
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Name(), second[i].Name())
		assert.Equal(t, first[i].Source(), second[i].Source())
		assert.Equal(t, first[i].Markers().Names(), second[i].Markers().Names())
	}
}

func TestScanConstructorWithErrorReturn(t *testing.T) {
	ctor := func() (*scanRepo, error) { return &scanRepo{}, nil }
	catalog := NewCatalog("app").
		Add(Unit{Constructor: ctor, Markers: []Marker{Singleton}})

	descriptors, err := NewScanner(ScannerConfig{}).Scan(catalog).Collect()
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, reflect.TypeOf(&scanRepo{}), descriptors[0].Provides())
}

func TestDefaultName(t *testing.T) {
	assert.Equal(t, "scanRepo", DefaultName(reflect.TypeOf(&scanRepo{})))
	assert.Equal(t, "scanRepo", DefaultName(reflect.TypeOf(scanRepo{})))
}
