// Package store persists visited places, travel moments and the scan
// checkpoint. PgStore is the production Postgres implementation; MemStore is
// an in-memory implementation backed by an R-tree index.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/odyssee/discovery_service/pkg/models"
)

// BoundingBoxDegrees is the per-axis tolerance for matching a cluster
// coordinate against stored places. It is an axis-aligned degree box, not a
// circular radius; the box width in meters shrinks toward the poles. The
// clustering radius is a geodesic circle, so the two proximity tests are
// deliberately different shapes.
const BoundingBoxDegrees = 0.0005

// checkpointID keys the singleton scan checkpoint row.
const checkpointID = "photo-scan"

// PlaceStore is the persistence boundary consumed by the upsert engine, the
// scan orchestrator and the API service.
type PlaceStore interface {
	// FindNear returns the first stored place whose coordinate falls within
	// ±BoundingBoxDegrees of the query on both axes, or nil if none match.
	FindNear(ctx context.Context, lat, lon float64) (*models.VisitedPlace, error)

	// CreateVisit inserts a new place and its moments in one transaction.
	CreateVisit(ctx context.Context, place *models.VisitedPlace, moments []models.TravelMoment) error

	// UpdateVisit updates an existing place's visit fields and inserts its
	// new moments in one transaction. A moment whose (place, photo asset)
	// pair already exists is skipped, so rescans stay idempotent.
	UpdateVisit(ctx context.Context, place *models.VisitedPlace, moments []models.TravelMoment) error

	// Checkpoint returns the last successful scan timestamp, nil on first run.
	Checkpoint(ctx context.Context) (*time.Time, error)

	// SetCheckpoint records the timestamp of a completed scan.
	SetCheckpoint(ctx context.Context, t time.Time) error

	ListPlaces(ctx context.Context, limit int) ([]*models.VisitedPlace, error)
	Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]*models.VisitedPlace, error)
	MomentsByPlace(ctx context.Context, placeID string, limit int) ([]*models.TravelMoment, error)
}

type PgStore struct {
	db *sqlx.DB
}

func NewPgStore(db *sql.DB) *PgStore {
	return &PgStore{db: sqlx.NewDb(db, "postgres")}
}

func RunMigrations(db *sql.DB) error {
	initSQL := `
CREATE TABLE IF NOT EXISTS visited_places(
  id UUID PRIMARY KEY,
  name TEXT,
  country TEXT,
  city TEXT,
  latitude DOUBLE PRECISION,
  longitude DOUBLE PRECISION,
  first_visit_date TIMESTAMP,
  last_visit_date TIMESTAMP,
  photo_count INTEGER DEFAULT 0,
  is_favorite BOOLEAN DEFAULT FALSE,
  notes TEXT DEFAULT '',
  created_at TIMESTAMP,
  updated_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS travel_moments(
  id UUID PRIMARY KEY,
  place_id UUID REFERENCES visited_places(id) ON DELETE CASCADE,
  photo_asset_id TEXT,
  moment_date TIMESTAMP,
  title TEXT DEFAULT '',
  description TEXT DEFAULT '',
  tags JSONB,
  rating INTEGER DEFAULT 0,
  is_highlight BOOLEAN DEFAULT FALSE,
  created_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS scan_checkpoints(
  id TEXT PRIMARY KEY,
  last_scan TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_places_coords ON visited_places(latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_places_last_visit ON visited_places(last_visit_date);
CREATE INDEX IF NOT EXISTS idx_moments_place ON travel_moments(place_id);
CREATE UNIQUE INDEX IF NOT EXISTS uq_moments_place_asset ON travel_moments(place_id, photo_asset_id);
`
	_, err := db.Exec(initSQL)
	return err
}

func (p *PgStore) FindNear(ctx context.Context, lat, lon float64) (*models.VisitedPlace, error) {
	query := `
SELECT id,name,country,city,latitude,longitude,first_visit_date,last_visit_date,photo_count,is_favorite,notes,created_at,updated_at
FROM visited_places
WHERE latitude BETWEEN $1 AND $2 AND longitude BETWEEN $3 AND $4
ORDER BY created_at ASC
LIMIT 1
`
	place := &models.VisitedPlace{}
	err := p.db.GetContext(ctx, place, query,
		lat-BoundingBoxDegrees, lat+BoundingBoxDegrees,
		lon-BoundingBoxDegrees, lon+BoundingBoxDegrees,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return place, nil
}

const insertMomentSQL = `
INSERT INTO travel_moments (id, place_id, photo_asset_id, moment_date, title, description, tags, rating, is_highlight, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8,$9,$10)
ON CONFLICT (place_id, photo_asset_id) DO NOTHING
`

func (p *PgStore) CreateVisit(ctx context.Context, place *models.VisitedPlace, moments []models.TravelMoment) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	if place.ID == "" {
		place.ID = uuid.New().String()
	}

	stmt := `
INSERT INTO visited_places (id, name, country, city, latitude, longitude, first_visit_date, last_visit_date, photo_count, is_favorite, notes, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`
	_, err = tx.ExecContext(ctx, stmt,
		place.ID, place.Name, place.Country, place.City,
		place.Latitude, place.Longitude,
		place.FirstVisitDate, place.LastVisitDate,
		place.PhotoCount, place.IsFavorite, place.Notes,
		place.CreatedAt, place.UpdatedAt,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert place %s: %w", place.Name, err)
	}

	if err := insertMoments(ctx, tx, moments); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (p *PgStore) UpdateVisit(ctx context.Context, place *models.VisitedPlace, moments []models.TravelMoment) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	stmt := `
UPDATE visited_places
SET last_visit_date = $1, photo_count = $2, updated_at = $3
WHERE id = $4
`
	_, err = tx.ExecContext(ctx, stmt, place.LastVisitDate, place.PhotoCount, place.UpdatedAt, place.ID)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("update place id=%s: %w", place.ID, err)
	}

	if err := insertMoments(ctx, tx, moments); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

func insertMoments(ctx context.Context, tx *sqlx.Tx, moments []models.TravelMoment) error {
	for i := range moments {
		m := &moments[i]
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		if m.Tags == nil {
			m.Tags = []string{}
		}
		_, err := tx.ExecContext(ctx, insertMomentSQL,
			m.ID, m.PlaceID, m.PhotoAssetID, m.MomentDate,
			m.Title, m.Description, m.Tags, m.Rating, m.IsHighlight, m.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert moment asset=%s: %w", m.PhotoAssetID, err)
		}
	}
	return nil
}

func (p *PgStore) Checkpoint(ctx context.Context) (*time.Time, error) {
	var last time.Time
	err := p.db.GetContext(ctx, &last, `SELECT last_scan FROM scan_checkpoints WHERE id = $1`, checkpointID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &last, nil
}

func (p *PgStore) SetCheckpoint(ctx context.Context, t time.Time) error {
	_, err := p.db.ExecContext(ctx, `
INSERT INTO scan_checkpoints (id, last_scan) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET last_scan = EXCLUDED.last_scan
`, checkpointID, t)
	return err
}

func (p *PgStore) ListPlaces(ctx context.Context, limit int) ([]*models.VisitedPlace, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows := []*models.VisitedPlace{}
	query := `
SELECT id,name,country,city,latitude,longitude,first_visit_date,last_visit_date,photo_count,is_favorite,notes,created_at,updated_at
FROM visited_places
ORDER BY last_visit_date DESC
LIMIT $1
`
	err := p.db.SelectContext(ctx, &rows, query, limit)
	return rows, err
}

func (p *PgStore) Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]*models.VisitedPlace, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	// Haversine formula computed in subquery to avoid repeating calculation
	query := `
SELECT id,name,country,city,latitude,longitude,first_visit_date,last_visit_date,photo_count,is_favorite,notes,created_at,updated_at,distance_km
FROM (
  SELECT
    id,name,country,city,latitude,longitude,first_visit_date,last_visit_date,photo_count,is_favorite,notes,created_at,updated_at,
    (6371 * acos(
        cos(radians($1)) * cos(radians(latitude)) * cos(radians(longitude) - radians($2)) +
        sin(radians($1)) * sin(radians(latitude))
    )) AS distance_km
  FROM visited_places
) AS t
WHERE distance_km <= $3
ORDER BY distance_km ASC
LIMIT $4;
`
	rows := []*models.VisitedPlace{}
	err := p.db.SelectContext(ctx, &rows, query, lat, lon, radiusKm, limit)
	return rows, err
}

func (p *PgStore) MomentsByPlace(ctx context.Context, placeID string, limit int) ([]*models.TravelMoment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows := []*models.TravelMoment{}
	query := `
SELECT id,place_id,photo_asset_id,moment_date,title,description,tags,rating,is_highlight,created_at
FROM travel_moments
WHERE place_id = $1
ORDER BY moment_date DESC, created_at DESC
LIMIT $2
`
	err := p.db.SelectContext(ctx, &rows, query, placeID, limit)
	return rows, err
}
