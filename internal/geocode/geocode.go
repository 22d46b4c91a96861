// Package geocode maps coordinates to human-readable place names through an
// external reverse-geocoding backend, with a process-local result cache.
package geocode

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// UnknownLocation is the literal fallback name when a geocoding result
// carries no usable component.
const UnknownLocation = "Unknown Location"

// defaultTimeout bounds a single backend lookup so a slow geocoder degrades
// one cluster's name instead of stalling the whole scan.
const defaultTimeout = 10 * time.Second

// Placemark is the raw component breakdown returned by a geocoding backend.
type Placemark struct {
	Name        string // point of interest name
	Street      string
	SubLocality string
	City        string
	AdminArea   string
	Country     string
}

// Result is a resolved place name. The zero value means the lookup failed or
// returned nothing.
type Result struct {
	PlaceName string `json:"place_name"`
	Country   string `json:"country"`
	City      string `json:"city"`
}

// Backend performs the actual reverse-geocoding lookup. A nil placemark with
// a nil error means the backend had no result for the coordinate.
type Backend interface {
	Lookup(ctx context.Context, lat, lon float64) (*Placemark, error)
}

// Resolver caches reverse-geocoding results keyed by the exact stringified
// coordinate pair. Concurrent Resolve calls for different coordinates proceed
// in parallel; duplicate in-flight lookups for the same uncached key are
// tolerated rather than deduplicated.
type Resolver struct {
	backend Backend
	timeout time.Duration
	log     *zap.SugaredLogger

	mu    sync.RWMutex
	cache map[string]Result
}

// NewResolver creates a resolver around the given backend.
func NewResolver(backend Backend, log *zap.SugaredLogger) *Resolver {
	return &Resolver{
		backend: backend,
		timeout: defaultTimeout,
		log:     log,
		cache:   make(map[string]Result),
	}
}

// SetTimeout overrides the per-lookup timeout.
func (r *Resolver) SetTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// Resolve returns the best-effort place name for a coordinate. It consults
// the cache first; on a miss it performs one backend lookup and caches the
// outcome, including negative results so repeated failing coordinates don't
// hammer the backend. Resolve never returns an error: a failed lookup yields
// the zero Result.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64) Result {
	key := cacheKey(lat, lon)

	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var res Result
	pm, err := r.backend.Lookup(ctx, lat, lon)
	switch {
	case err != nil:
		r.log.Warnw("reverse geocode failed", "lat", lat, "lon", lon, "error", err)
	case pm == nil:
		r.log.Debugw("reverse geocode returned no result", "lat", lat, "lon", lon)
	default:
		res = Result{
			PlaceName: extractPlaceName(pm),
			Country:   pm.Country,
			City:      pm.City,
		}
	}

	r.mu.Lock()
	r.cache[key] = res
	r.mu.Unlock()

	return res
}

// ClearCache evicts all cached results.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string]Result)
	r.mu.Unlock()
}

// CacheSize returns the number of cached coordinate keys.
func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// cacheKey formats the exact coordinate pair. Two coordinates differing in
// the last decimal place produce distinct keys; cheap exact caching is the
// intended behavior.
func cacheKey(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
}

// extractPlaceName picks the most specific non-empty component, in priority
// order: point name, street, sub-locality, city, administrative area,
// country, then the literal fallback.
func extractPlaceName(pm *Placemark) string {
	for _, candidate := range []string{pm.Name, pm.Street, pm.SubLocality, pm.City, pm.AdminArea, pm.Country} {
		if candidate != "" {
			return candidate
		}
	}
	return UnknownLocation
}
