// Package cluster groups GPS-tagged photo samples into geographic clusters
// using greedy single-linkage grouping with a fixed radius.
package cluster

import (
	"math"

	"github.com/odyssee/discovery_service/pkg/models"
)

// RadiusMeters is the maximum haversine distance between a sample and a
// cluster's representative coordinate for the sample to join that cluster.
const RadiusMeters = 100.0

const earthRadiusMeters = 6371000.0

// Group partitions samples into clusters in input order. Each sample joins
// the first existing cluster whose representative coordinate is within
// RadiusMeters (first match wins, not nearest match); otherwise it starts a
// new cluster at its own coordinate.
//
// The result is deterministic for a fixed input order, but changing the
// input order changes the clustering. That path dependence is accepted:
// batches are small (~100 samples) and the O(n*k) linear scan keeps this
// simple.
func Group(samples []models.LocationSample) []models.Cluster {
	var clusters []models.Cluster

	for _, s := range samples {
		placed := false
		for i := range clusters {
			c := &clusters[i]
			if Haversine(s.Latitude, s.Longitude, c.Latitude, c.Longitude) <= RadiusMeters {
				if s.CapturedAt.Before(c.Start) {
					c.Start = s.CapturedAt
				}
				if s.CapturedAt.After(c.End) {
					c.End = s.CapturedAt
				}
				c.PhotoRefs = append(c.PhotoRefs, s.PhotoRef)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, models.Cluster{
				Latitude:  s.Latitude,
				Longitude: s.Longitude,
				Start:     s.CapturedAt,
				End:       s.CapturedAt,
				PhotoRefs: []string{s.PhotoRef},
			})
		}
	}

	return clusters
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
