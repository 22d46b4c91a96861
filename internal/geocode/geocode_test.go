package geocode

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingBackend struct {
	pm    *Placemark
	err   error
	calls atomic.Int64
}

func (b *countingBackend) Lookup(ctx context.Context, lat, lon float64) (*Placemark, error) {
	b.calls.Add(1)
	return b.pm, b.err
}

func newTestResolver(b Backend) *Resolver {
	return NewResolver(b, zap.NewNop().Sugar())
}

func TestResolveCacheHit(t *testing.T) {
	backend := &countingBackend{pm: &Placemark{Name: "Louvre", City: "Paris", Country: "France"}}
	r := newTestResolver(backend)

	first := r.Resolve(context.Background(), 48.8606, 2.3376)
	second := r.Resolve(context.Background(), 48.8606, 2.3376)

	assert.Equal(t, first, second)
	assert.Equal(t, "Louvre", first.PlaceName)
	assert.Equal(t, int64(1), backend.calls.Load(), "second resolve must be served from cache")
	assert.Equal(t, 1, r.CacheSize())
}

func TestResolveExactKeyNoQuantization(t *testing.T) {
	backend := &countingBackend{pm: &Placemark{Name: "Somewhere"}}
	r := newTestResolver(backend)

	r.Resolve(context.Background(), 48.8606, 2.3376)
	// Differs in the last decimal place: a distinct cache key by design.
	r.Resolve(context.Background(), 48.86060000000001, 2.3376)

	assert.Equal(t, int64(2), backend.calls.Load())
	assert.Equal(t, 2, r.CacheSize())
}

func TestResolveBackendFailure(t *testing.T) {
	backend := &countingBackend{err: errors.New("network down")}
	r := newTestResolver(backend)

	res := r.Resolve(context.Background(), 10, 20)
	assert.Equal(t, Result{}, res)

	// The negative result is cached too.
	r.Resolve(context.Background(), 10, 20)
	assert.Equal(t, int64(1), backend.calls.Load())
}

func TestResolveNoResult(t *testing.T) {
	backend := &countingBackend{}
	r := newTestResolver(backend)

	res := r.Resolve(context.Background(), 0, 0)
	assert.Equal(t, Result{}, res)
	assert.Equal(t, 1, r.CacheSize())
}

func TestClearCache(t *testing.T) {
	backend := &countingBackend{pm: &Placemark{Name: "Somewhere"}}
	r := newTestResolver(backend)

	r.Resolve(context.Background(), 1, 2)
	require.Equal(t, 1, r.CacheSize())

	r.ClearCache()
	assert.Equal(t, 0, r.CacheSize())

	r.Resolve(context.Background(), 1, 2)
	assert.Equal(t, int64(2), backend.calls.Load())
}

func TestExtractPlaceNamePriority(t *testing.T) {
	cases := []struct {
		name string
		pm   Placemark
		want string
	}{
		{"point name wins", Placemark{Name: "Eiffel Tower", Street: "Champ de Mars", City: "Paris"}, "Eiffel Tower"},
		{"street over locality", Placemark{Street: "5 Avenue Anatole", SubLocality: "Gros-Caillou"}, "5 Avenue Anatole"},
		{"sub-locality over city", Placemark{SubLocality: "Gros-Caillou", City: "Paris"}, "Gros-Caillou"},
		{"city over admin area", Placemark{City: "Paris", AdminArea: "Ile-de-France"}, "Paris"},
		{"admin area over country", Placemark{AdminArea: "Ile-de-France", Country: "France"}, "Ile-de-France"},
		{"country as last component", Placemark{Country: "France"}, "France"},
		{"fallback", Placemark{}, UnknownLocation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractPlaceName(&tc.pm))
		})
	}
}

func TestResolveConcurrent(t *testing.T) {
	backend := &countingBackend{pm: &Placemark{Name: "Somewhere"}}
	r := newTestResolver(backend)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Resolve(context.Background(), float64(i%5), float64(i%5))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, r.CacheSize())
	// Duplicate in-flight lookups are tolerated, but there is at least one
	// call per distinct coordinate.
	assert.GreaterOrEqual(t, backend.calls.Load(), int64(5))
}

func TestPlacemarkFromResponse(t *testing.T) {
	nr := nominatimResponse{
		Address: nominatimAddress{
			Amenity:     "Cafe de Flore",
			HouseNumber: "172",
			Road:        "Boulevard Saint-Germain",
			Suburb:      "6th Arrondissement",
			Town:        "Paris",
			State:       "Ile-de-France",
			Country:     "France",
		},
	}

	pm := placemarkFromResponse(nr)
	assert.Equal(t, "Cafe de Flore", pm.Name)
	assert.Equal(t, "172 Boulevard Saint-Germain", pm.Street)
	assert.Equal(t, "6th Arrondissement", pm.SubLocality)
	assert.Equal(t, "Paris", pm.City)
	assert.Equal(t, "France", pm.Country)
}
