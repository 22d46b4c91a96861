package cluster

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssee/discovery_service/pkg/models"
)

func sample(ref string, lat, lon float64, day int) models.LocationSample {
	return models.LocationSample{
		Latitude:   lat,
		Longitude:  lon,
		CapturedAt: time.Date(2025, 6, day, 12, 0, 0, 0, time.UTC),
		PhotoRef:   ref,
	}
}

func TestHaversine(t *testing.T) {
	// One degree of longitude at the equator is ~111.3 km.
	d := Haversine(0, 0, 0, 1)
	assert.InDelta(t, 111319.5, d, 100)

	assert.Equal(t, 0.0, Haversine(48.8566, 2.3522, 48.8566, 2.3522))
}

func TestGroupSinglePlace(t *testing.T) {
	// Three photos within ~50m of each other.
	samples := []models.LocationSample{
		sample("a", 0, 0, 1),
		sample("b", 0, 0.0002, 2),
		sample("c", 0, 0.0004, 3),
	}

	clusters := Group(samples)
	require.Len(t, clusters, 1)

	c := clusters[0]
	assert.Equal(t, []string{"a", "b", "c"}, c.PhotoRefs)
	assert.Equal(t, samples[0].Latitude, c.Latitude)
	assert.Equal(t, samples[0].Longitude, c.Longitude)
	assert.Equal(t, samples[0].CapturedAt, c.Start)
	assert.Equal(t, samples[2].CapturedAt, c.End)
}

func TestGroupTwoDistantPlaces(t *testing.T) {
	// Two pairs more than 100m apart (0.01 deg lon ~= 1.1km).
	samples := []models.LocationSample{
		sample("a1", 0, 0, 1),
		sample("a2", 0, 0.0002, 1),
		sample("b1", 0, 0.01, 2),
		sample("b2", 0, 0.0102, 2),
	}

	clusters := Group(samples)
	require.Len(t, clusters, 2)
	assert.Equal(t, []string{"a1", "a2"}, clusters[0].PhotoRefs)
	assert.Equal(t, []string{"b1", "b2"}, clusters[1].PhotoRefs)
}

func TestGroupFirstMatchWinsNotNearest(t *testing.T) {
	// a at origin, d ~167m east (own cluster), c ~89m from a but only ~78m
	// from d. The linear scan places c in a's cluster because a comes first,
	// even though d is nearer.
	samples := []models.LocationSample{
		sample("a", 0, 0, 1),
		sample("d", 0, 0.0015, 1),
		sample("c", 0, 0.0008, 1),
	}

	clusters := Group(samples)
	require.Len(t, clusters, 2)
	assert.Equal(t, []string{"a", "c"}, clusters[0].PhotoRefs)
	assert.Equal(t, []string{"d"}, clusters[1].PhotoRefs)
}

func TestGroupRadiusInvariant(t *testing.T) {
	coords := map[string][2]float64{}
	var samples []models.LocationSample
	centers := [][2]float64{{48.8566, 2.3522}, {48.8600, 2.3522}, {40.7128, -74.0060}}
	refs := 0
	for _, center := range centers {
		for i := 0; i < 5; i++ {
			refs++
			ref := string(rune('a' + refs))
			lat := center[0] + float64(i)*0.0001
			lon := center[1] + float64(i)*0.0001
			coords[ref] = [2]float64{lat, lon}
			samples = append(samples, sample(ref, lat, lon, 1+i%3))
		}
	}

	clusters := Group(samples)
	for _, c := range clusters {
		for _, ref := range c.PhotoRefs {
			pos := coords[ref]
			d := Haversine(pos[0], pos[1], c.Latitude, c.Longitude)
			assert.LessOrEqualf(t, d, RadiusMeters, "ref %s is %fm from its cluster representative", ref, d)
		}
	}
}

func TestGroupDeterministic(t *testing.T) {
	samples := []models.LocationSample{
		sample("a", 0, 0, 1),
		sample("b", 0, 0.0008, 2),
		sample("c", 0, 0.0015, 3),
		sample("d", 0, 0.0004, 1),
	}

	first := Group(samples)
	second := Group(samples)
	assert.True(t, reflect.DeepEqual(first, second))
}

func TestGroupEmptyInput(t *testing.T) {
	assert.Empty(t, Group(nil))
}
