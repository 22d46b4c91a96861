// Package places finds-or-creates visited place records for resolved
// clusters and attaches the derived travel moments.
package places

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/odyssee/discovery_service/internal/geocode"
	"github.com/odyssee/discovery_service/internal/store"
	"github.com/odyssee/discovery_service/pkg/models"
)

// Importer is the place deduplication and upsert engine. Each Upsert is an
// independent unit of work: a failed cluster never corrupts records written
// for other clusters.
type Importer struct {
	store store.PlaceStore
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewImporter(st store.PlaceStore, log *zap.SugaredLogger) *Importer {
	return &Importer{store: st, log: log, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (im *Importer) SetClock(now func() time.Time) {
	im.now = now
}

// Upsert matches the cluster's representative coordinate against stored
// places and either updates the match or creates a new place, then attaches
// one moment per photo reference. Returns the affected place and whether it
// was newly created.
//
// On a match the place's last visit date only advances and its first visit
// date is never lowered; the photo count grows by the cluster's photo count.
func (im *Importer) Upsert(ctx context.Context, c models.Cluster, res geocode.Result) (*models.VisitedPlace, bool, error) {
	existing, err := im.store.FindNear(ctx, c.Latitude, c.Longitude)
	if err != nil {
		return nil, false, fmt.Errorf("find existing place: %w", err)
	}

	now := im.now()
	// All moments from one cluster collapse to the day of the cluster's
	// earliest sample.
	momentDate := startOfDay(c.Start)

	if existing != nil {
		if c.End.After(existing.LastVisitDate) {
			existing.LastVisitDate = c.End
		}
		existing.PhotoCount += len(c.PhotoRefs)
		existing.UpdatedAt = now

		moments := buildMoments(existing.ID, c.PhotoRefs, momentDate, now)
		if err := im.store.UpdateVisit(ctx, existing, moments); err != nil {
			return nil, false, fmt.Errorf("update place %s: %w", existing.ID, err)
		}
		im.log.Debugw("visit recorded at existing place",
			"place", existing.Name, "photos", len(c.PhotoRefs))
		return existing, false, nil
	}

	name := res.PlaceName
	if name == "" {
		name = geocode.UnknownLocation
	}

	place := &models.VisitedPlace{
		ID:             uuid.New().String(),
		Name:           name,
		Country:        res.Country,
		City:           res.City,
		Latitude:       c.Latitude,
		Longitude:      c.Longitude,
		FirstVisitDate: c.Start,
		LastVisitDate:  c.End,
		PhotoCount:     len(c.PhotoRefs),
		IsFavorite:     false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	moments := buildMoments(place.ID, c.PhotoRefs, momentDate, now)
	if err := im.store.CreateVisit(ctx, place, moments); err != nil {
		return nil, false, fmt.Errorf("create place %s: %w", name, err)
	}
	im.log.Infow("discovered place", "name", name, "photos", len(c.PhotoRefs))
	return place, true, nil
}

func buildMoments(placeID string, photoRefs []string, momentDate, now time.Time) []models.TravelMoment {
	moments := make([]models.TravelMoment, 0, len(photoRefs))
	for _, ref := range photoRefs {
		moments = append(moments, models.TravelMoment{
			ID:           uuid.New().String(),
			PlaceID:      placeID,
			PhotoAssetID: ref,
			MomentDate:   momentDate,
			Tags:         []string{},
			CreatedAt:    now,
		})
	}
	return moments
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
