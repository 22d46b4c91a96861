package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssee/discovery_service/pkg/models"
)

func newPlace(id, name string, lat, lon float64, createdAt time.Time) *models.VisitedPlace {
	return &models.VisitedPlace{
		ID:             id,
		Name:           name,
		Latitude:       lat,
		Longitude:      lon,
		FirstVisitDate: createdAt,
		LastVisitDate:  createdAt,
		PhotoCount:     1,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

func TestFindNearBoundingBox(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.CreateVisit(ctx, newPlace("p1", "Louvre", 48.8606, 2.3376, base), nil))

	cases := []struct {
		name     string
		lat, lon float64
		found    bool
	}{
		{"exact coordinate", 48.8606, 2.3376, true},
		{"inside box", 48.8608, 2.3378, true},
		{"near latitude boundary, inside", 48.8606 + 0.0004, 2.3376, true},
		{"just past latitude boundary", 48.8606 + 0.0006, 2.3376, false},
		{"just past longitude boundary", 48.8606, 2.3376 - 0.0006, false},
		{"far away", 40.7128, -74.0060, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := m.FindNear(ctx, tc.lat, tc.lon)
			require.NoError(t, err)
			if tc.found {
				require.NotNil(t, p)
				assert.Equal(t, "p1", p.ID)
			} else {
				assert.Nil(t, p)
			}
		})
	}
}

func TestFindNearOldestWins(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// Two places inside the same box; the earlier record is the match.
	require.NoError(t, m.CreateVisit(ctx, newPlace("newer", "B", 48.8607, 2.3377, base.Add(time.Hour)), nil))
	require.NoError(t, m.CreateVisit(ctx, newPlace("older", "A", 48.8606, 2.3376, base), nil))

	p, err := m.FindNear(ctx, 48.8606, 2.3376)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "older", p.ID)
}

func TestUpdateVisit(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	place := newPlace("p1", "Louvre", 48.8606, 2.3376, base)
	require.NoError(t, m.CreateVisit(ctx, place, nil))

	place.PhotoCount = 4
	place.LastVisitDate = base.AddDate(0, 0, 10)
	place.UpdatedAt = base.AddDate(0, 0, 10)
	require.NoError(t, m.UpdateVisit(ctx, place, nil))

	got, err := m.FindNear(ctx, 48.8606, 2.3376)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4, got.PhotoCount)
	assert.Equal(t, base.AddDate(0, 0, 10), got.LastVisitDate)
	assert.Equal(t, base, got.FirstVisitDate)
}

func TestUpdateVisitUnknownPlace(t *testing.T) {
	m := NewMemStore()
	err := m.UpdateVisit(context.Background(), newPlace("ghost", "X", 0, 0, time.Now()), nil)
	assert.Error(t, err)
}

func TestMomentIdempotency(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	place := newPlace("p1", "Louvre", 48.8606, 2.3376, base)
	moments := []models.TravelMoment{
		{ID: "m1", PlaceID: "p1", PhotoAssetID: "IMG_001", MomentDate: base},
		{ID: "m2", PlaceID: "p1", PhotoAssetID: "IMG_002", MomentDate: base},
	}
	require.NoError(t, m.CreateVisit(ctx, place, moments))

	// Re-inserting the same asset is a no-op; a new asset still lands.
	again := []models.TravelMoment{
		{ID: "m3", PlaceID: "p1", PhotoAssetID: "IMG_001", MomentDate: base},
		{ID: "m4", PlaceID: "p1", PhotoAssetID: "IMG_003", MomentDate: base},
	}
	require.NoError(t, m.UpdateVisit(ctx, place, again))

	got, err := m.MomentsByPlace(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestCheckpointRoundtrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()

	cp, err := m.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Nil(t, cp)

	ts := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	require.NoError(t, m.SetCheckpoint(ctx, ts))

	cp, err = m.Checkpoint(ctx)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, ts, *cp)
}

func TestListPlacesRecentFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	a := newPlace("a", "A", 10, 10, base)
	a.LastVisitDate = base.AddDate(0, 0, 1)
	b := newPlace("b", "B", 20, 20, base)
	b.LastVisitDate = base.AddDate(0, 0, 5)
	require.NoError(t, m.CreateVisit(ctx, a, nil))
	require.NoError(t, m.CreateVisit(ctx, b, nil))

	got, err := m.ListPlaces(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

func TestNearbyOrderedByDistance(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// ~1.1km and ~2.2km east of the query point, plus one far away.
	require.NoError(t, m.CreateVisit(ctx, newPlace("far", "Far", 0, 0.02, base), nil))
	require.NoError(t, m.CreateVisit(ctx, newPlace("near", "Near", 0, 0.01, base), nil))
	require.NoError(t, m.CreateVisit(ctx, newPlace("other-city", "Other", 40, 40, base), nil))

	got, err := m.Nearby(ctx, 0, 0, 5, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].ID)
	assert.Equal(t, "far", got[1].ID)
	assert.InDelta(t, 1.11, got[0].DistanceKm, 0.05)
	assert.Less(t, got[0].DistanceKm, got[1].DistanceKm)
}

func TestFindNearReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.CreateVisit(ctx, newPlace("p1", "Louvre", 48.8606, 2.3376, base), nil))

	got, err := m.FindNear(ctx, 48.8606, 2.3376)
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := m.FindNear(ctx, 48.8606, 2.3376)
	require.NoError(t, err)
	assert.Equal(t, "Louvre", again.Name)
}
