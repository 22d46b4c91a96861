package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dhconnelly/rtreego"
	"github.com/google/uuid"

	"github.com/odyssee/discovery_service/internal/cluster"
	"github.com/odyssee/discovery_service/pkg/models"
)

const (
	rtreeMinChildren = 25
	rtreeMaxChildren = 50
	rtreeDimensions  = 2
	// pointExtent keeps stored place entries effectively point-sized while
	// satisfying rtreego's non-degenerate rectangle requirement.
	pointExtent = 1e-9
)

// placeEntry wraps a place to implement rtreego.Spatial.
type placeEntry struct {
	place *models.VisitedPlace
	rect  rtreego.Rect
}

func (e *placeEntry) Bounds() rtreego.Rect {
	return e.rect
}

// MemStore is an in-memory PlaceStore backed by an R-tree index over place
// coordinates. It backs tests and database-less scans; semantics mirror
// PgStore, including the axis-aligned bounding-box match in FindNear.
type MemStore struct {
	mu         sync.RWMutex
	tree       *rtreego.Rtree
	places     map[string]*models.VisitedPlace
	moments    map[string][]models.TravelMoment
	momentKeys map[string]map[string]bool // placeID -> photoAssetID set
	checkpoint *time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		tree:       rtreego.NewTree(rtreeDimensions, rtreeMinChildren, rtreeMaxChildren),
		places:     make(map[string]*models.VisitedPlace),
		moments:    make(map[string][]models.TravelMoment),
		momentKeys: make(map[string]map[string]bool),
	}
}

func (m *MemStore) FindNear(ctx context.Context, lat, lon float64) (*models.VisitedPlace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bounds, err := rtreego.NewRect(
		rtreego.Point{lat - BoundingBoxDegrees, lon - BoundingBoxDegrees},
		[]float64{2 * BoundingBoxDegrees, 2 * BoundingBoxDegrees},
	)
	if err != nil {
		return nil, err
	}

	results := m.tree.SearchIntersect(bounds)
	var candidates []*models.VisitedPlace
	for _, r := range results {
		entry, ok := r.(*placeEntry)
		if !ok {
			continue
		}
		p := entry.place
		// Strict boundary check
		if p.Latitude >= lat-BoundingBoxDegrees && p.Latitude <= lat+BoundingBoxDegrees &&
			p.Longitude >= lon-BoundingBoxDegrees && p.Longitude <= lon+BoundingBoxDegrees {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Oldest first, matching PgStore's ORDER BY created_at.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	out := *candidates[0]
	return &out, nil
}

func (m *MemStore) CreateVisit(ctx context.Context, place *models.VisitedPlace, moments []models.TravelMoment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if place.ID == "" {
		place.ID = uuid.New().String()
	}

	stored := *place
	m.places[place.ID] = &stored

	p := rtreego.Point{stored.Latitude, stored.Longitude}
	m.tree.Insert(&placeEntry{place: &stored, rect: p.ToRect(pointExtent)})

	m.insertMomentsLocked(place.ID, moments)
	return nil
}

func (m *MemStore) UpdateVisit(ctx context.Context, place *models.VisitedPlace, moments []models.TravelMoment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.places[place.ID]
	if !ok {
		return errPlaceNotFound(place.ID)
	}
	stored.LastVisitDate = place.LastVisitDate
	stored.PhotoCount = place.PhotoCount
	stored.UpdatedAt = place.UpdatedAt

	m.insertMomentsLocked(place.ID, moments)
	return nil
}

func (m *MemStore) insertMomentsLocked(placeID string, moments []models.TravelMoment) {
	keys := m.momentKeys[placeID]
	if keys == nil {
		keys = make(map[string]bool)
		m.momentKeys[placeID] = keys
	}
	for _, moment := range moments {
		if keys[moment.PhotoAssetID] {
			continue
		}
		keys[moment.PhotoAssetID] = true
		if moment.ID == "" {
			moment.ID = uuid.New().String()
		}
		if moment.Tags == nil {
			moment.Tags = []string{}
		}
		m.moments[placeID] = append(m.moments[placeID], moment)
	}
}

func (m *MemStore) Checkpoint(ctx context.Context) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.checkpoint == nil {
		return nil, nil
	}
	t := *m.checkpoint
	return &t, nil
}

func (m *MemStore) SetCheckpoint(ctx context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoint = &t
	return nil
}

func (m *MemStore) ListPlaces(ctx context.Context, limit int) ([]*models.VisitedPlace, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.VisitedPlace, 0, len(m.places))
	for _, p := range m.places {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastVisitDate.After(out[j].LastVisitDate)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]*models.VisitedPlace, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.VisitedPlace
	for _, p := range m.places {
		distKm := cluster.Haversine(lat, lon, p.Latitude, p.Longitude) / 1000.0
		if distKm <= radiusKm {
			cp := *p
			cp.DistanceKm = distKm
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DistanceKm < out[j].DistanceKm
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) MomentsByPlace(ctx context.Context, placeID string, limit int) ([]*models.TravelMoment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.moments[placeID]
	out := make([]*models.TravelMoment, 0, len(stored))
	for i := range stored {
		cp := stored[i]
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MomentDate.After(out[j].MomentDate)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type errPlaceNotFound string

func (e errPlaceNotFound) Error() string { return "place not found: " + string(e) }
