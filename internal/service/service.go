// Package service is the API-facing layer: place queries with a Redis
// response cache, and scan lifecycle control.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/odyssee/discovery_service/internal/scanner"
	"github.com/odyssee/discovery_service/internal/store"
	"github.com/odyssee/discovery_service/pkg/models"
)

const (
	placeCacheTTL = time.Minute
	placeGenKey   = "places:gen"
)

type Service struct {
	store store.PlaceStore
	scan  *scanner.Scanner
	rdb   *redis.Client
	log   *zap.SugaredLogger
}

// NewService creates the service. rdb may be nil; caching is then disabled.
func NewService(st store.PlaceStore, scan *scanner.Scanner, rdb *redis.Client, log *zap.SugaredLogger) *Service {
	return &Service{store: st, scan: scan, rdb: rdb, log: log}
}

// StartScan launches a background scan. Returns scanner.ErrScanInProgress
// when one is already running.
func (s *Service) StartScan() error {
	return s.scan.Start(func(report *scanner.Report, err error) {
		if err != nil {
			s.log.Warnw("scan finished with error", "error", err)
			return
		}
		if report.PlacesCreated > 0 || report.PlacesUpdated > 0 {
			s.bumpPlaceGeneration(context.Background())
		}
	})
}

// CancelScan requests cancellation of the running scan; reports whether one
// was running.
func (s *Service) CancelScan() bool {
	return s.scan.Cancel()
}

// ScanProgress returns the orchestrator's progress snapshot.
func (s *Service) ScanProgress() scanner.Progress {
	return s.scan.Progress()
}

// Places lists places by most recent visit, served from the Redis cache when
// possible. Cache keys carry a generation counter that is bumped whenever a
// scan writes places, so stale listings expire immediately after a scan.
func (s *Service) Places(ctx context.Context, limit int) ([]*models.VisitedPlace, error) {
	key := fmt.Sprintf("places:%d:g%s", limit, s.placeGeneration(ctx))

	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
			var cached []*models.VisitedPlace
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	out, err := s.store.ListPlaces(ctx, limit)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if raw, err := json.Marshal(out); err == nil {
			if err := s.rdb.Set(ctx, key, raw, placeCacheTTL).Err(); err != nil {
				s.log.Debugw("place cache write failed", "error", err)
			}
		}
	}
	return out, nil
}

// Nearby returns places within radiusKm of a coordinate, closest first.
func (s *Service) Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]*models.VisitedPlace, error) {
	return s.store.Nearby(ctx, lat, lon, radiusKm, limit)
}

// Moments returns a place's moments, newest first.
func (s *Service) Moments(ctx context.Context, placeID string, limit int) ([]*models.TravelMoment, error) {
	return s.store.MomentsByPlace(ctx, placeID, limit)
}

func (s *Service) placeGeneration(ctx context.Context) string {
	if s.rdb == nil {
		return "0"
	}
	gen, err := s.rdb.Get(ctx, placeGenKey).Result()
	if err != nil {
		return "0"
	}
	return gen
}

func (s *Service) bumpPlaceGeneration(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Incr(ctx, placeGenKey).Err(); err != nil {
		s.log.Debugw("place cache invalidation failed", "error", err)
	}
}
