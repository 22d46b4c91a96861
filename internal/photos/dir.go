package photos

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"

	"github.com/odyssee/discovery_service/pkg/models"
)

// gpsHPositioningError is the EXIF tag phones write for horizontal GPS
// accuracy in meters. goexif has no named constant for it.
const gpsHPositioningError = exif.FieldName("GPSHPositioningError")

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".heic": true,
	".tiff": true,
	".tif":  true,
	".png":  true,
}

// DirLibrary reads location samples from the EXIF metadata of image files
// under a local directory tree. The photo reference is the path relative to
// the root, so samples stay stable across scans.
type DirLibrary struct {
	root string
	log  *zap.SugaredLogger
}

// NewDirLibrary creates a library over the given directory.
func NewDirLibrary(root string, log *zap.SugaredLogger) *DirLibrary {
	return &DirLibrary{root: root, log: log}
}

// Authorize verifies the directory exists and is readable.
func (l *DirLibrary) Authorize(ctx context.Context) error {
	info, err := os.Stat(l.root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrPermissionDenied, l.root)
	}
	f, err := os.Open(l.root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	f.Close()
	return nil
}

// Fetch walks the directory and returns qualifying samples newest-first.
// Files without GPS metadata are skipped silently; unreadable files are
// logged and skipped.
func (l *DirLibrary) Fetch(ctx context.Context, after *time.Time) ([]models.LocationSample, error) {
	var samples []models.LocationSample

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		sample, ok := l.readSample(path)
		if ok {
			samples = append(samples, sample)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate photo directory: %w", err)
	}

	return Filter(samples, after), nil
}

// readSample extracts one sample from a file's EXIF block. ok is false when
// the file has no usable GPS metadata.
func (l *DirLibrary) readSample(path string) (models.LocationSample, bool) {
	f, err := os.Open(path)
	if err != nil {
		l.log.Warnw("skipping unreadable photo", "path", path, "error", err)
		return models.LocationSample{}, false
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return models.LocationSample{}, false
	}

	lat, lon, err := x.LatLong()
	if err != nil {
		return models.LocationSample{}, false
	}

	capturedAt, err := x.DateTime()
	if err != nil {
		info, statErr := os.Stat(path)
		if statErr != nil {
			return models.LocationSample{}, false
		}
		capturedAt = info.ModTime()
	}

	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		rel = path
	}

	return models.LocationSample{
		Latitude:       lat,
		Longitude:      lon,
		AccuracyMeters: readAccuracy(x),
		CapturedAt:     capturedAt,
		PhotoRef:       rel,
	}, true
}

// readAccuracy reads the horizontal positioning error tag. Photos that don't
// record it are treated as accurate.
func readAccuracy(x *exif.Exif) float64 {
	tag, err := x.Get(gpsHPositioningError)
	if err != nil {
		return 0
	}
	rat, err := tag.Rat(0)
	if err != nil {
		return 0
	}
	acc, _ := rat.Float64()
	return acc
}
