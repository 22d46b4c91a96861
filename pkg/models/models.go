package models

import (
	"time"

	dbtypes "github.com/odyssee/discovery_service/internal/db"
)

// LocationSample is one GPS-tagged photo library entry. Samples are ephemeral:
// they live only for the duration of a single scan pass.
type LocationSample struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	CapturedAt     time.Time `json:"captured_at"`
	PhotoRef       string    `json:"photo_ref"`
}

// Cluster is a transient grouping of location samples believed to represent
// one physical visit. The representative coordinate is the coordinate of the
// first sample placed into the cluster, not a centroid.
type Cluster struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	PhotoRefs []string  `json:"photo_refs"`
}

// VisitedPlace represents one real-world location the user has photographed,
// aggregating all visits near it.
type VisitedPlace struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Country        string    `db:"country" json:"country"`
	City           string    `db:"city" json:"city"`
	Latitude       float64   `db:"latitude" json:"latitude"`
	Longitude      float64   `db:"longitude" json:"longitude"`
	FirstVisitDate time.Time `db:"first_visit_date" json:"first_visit_date"`
	LastVisitDate  time.Time `db:"last_visit_date" json:"last_visit_date"`
	PhotoCount     int       `db:"photo_count" json:"photo_count"`
	IsFavorite     bool      `db:"is_favorite" json:"is_favorite"`
	Notes          string    `db:"notes" json:"notes"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`

	// DistanceKm is set at runtime by the Nearby query (not persisted).
	DistanceKm float64 `db:"distance_km" json:"distance_km,omitempty"`
}

// TravelMoment is a single photo-derived record of presence at a place on a
// given day. PhotoAssetID is a reference only; photo bytes are never stored.
type TravelMoment struct {
	ID           string              `db:"id" json:"id"`
	PlaceID      string              `db:"place_id" json:"place_id"`
	PhotoAssetID string              `db:"photo_asset_id" json:"photo_asset_id"`
	MomentDate   time.Time           `db:"moment_date" json:"moment_date"`
	Title        string              `db:"title" json:"title"`
	Description  string              `db:"description" json:"description"`
	Tags         dbtypes.StringSlice `db:"tags" json:"tags"`
	Rating       int                 `db:"rating" json:"rating"`
	IsHighlight  bool                `db:"is_highlight" json:"is_highlight"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
}
