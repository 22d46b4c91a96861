// Package photos adapts photo stores into location samples. Implementations
// expose GPS and capture-date metadata only; photo pixel data is never read.
package photos

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/odyssee/discovery_service/pkg/models"
)

// MaxAccuracyMeters is the worst GPS accuracy a photo may carry and still
// qualify as a location sample.
const MaxAccuracyMeters = 50.0

// ErrPermissionDenied is returned by Authorize when the photo store cannot
// be read. A scan aborts before any side effects when it sees this.
var ErrPermissionDenied = errors.New("photo library access denied")

// Library enumerates GPS-tagged photo entries from a photo store.
type Library interface {
	// Authorize verifies (or obtains) read access to the photo store.
	Authorize(ctx context.Context) error

	// Fetch returns qualifying samples sorted newest-first: entries with GPS
	// metadata, accuracy within MaxAccuracyMeters, captured strictly after
	// the given checkpoint (nil means no checkpoint, return everything).
	Fetch(ctx context.Context, after *time.Time) ([]models.LocationSample, error)
}

// Filter applies the qualification rules shared by Library implementations:
// drop low-accuracy samples, drop samples at or before the checkpoint, and
// sort the remainder newest-first.
func Filter(samples []models.LocationSample, after *time.Time) []models.LocationSample {
	out := make([]models.LocationSample, 0, len(samples))
	for _, s := range samples {
		if s.AccuracyMeters > MaxAccuracyMeters {
			continue
		}
		if after != nil && !s.CapturedAt.After(*after) {
			continue
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CapturedAt.After(out[j].CapturedAt)
	})
	return out
}
