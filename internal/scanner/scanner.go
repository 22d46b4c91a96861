// Package scanner drives the end-to-end photo-library scan: fetch qualifying
// samples, cluster them, resolve place names and upsert places, then advance
// the scan checkpoint.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/odyssee/discovery_service/internal/cluster"
	"github.com/odyssee/discovery_service/internal/geocode"
	"github.com/odyssee/discovery_service/internal/photos"
	"github.com/odyssee/discovery_service/internal/places"
	"github.com/odyssee/discovery_service/internal/store"
	"github.com/odyssee/discovery_service/pkg/models"
)

// DefaultBatchSize is the number of samples clustered together in one unit.
const DefaultBatchSize = 100

// ErrScanInProgress is returned when a scan is requested while one is
// already running. Scans never overlap against the same checkpoint.
var ErrScanInProgress = errors.New("a scan is already in progress")

// State names the orchestrator's position in its lifecycle.
type State string

const (
	StateIdle        State = "idle"
	StateAuthorizing State = "authorizing"
	StateFetching    State = "fetching"
	StateProcessing  State = "processing"
	StateFinalizing  State = "finalizing"
)

// Progress is an observable snapshot of a scan. Fraction is
// completedBatches/totalBatches and only ever increases within one scan.
type Progress struct {
	State            State   `json:"state"`
	IsScanning       bool    `json:"is_scanning"`
	Fraction         float64 `json:"fraction"`
	ProcessedCount   int     `json:"processed_count"`
	TotalCount       int     `json:"total_count"`
	CompletedBatches int     `json:"completed_batches"`
	TotalBatches     int     `json:"total_batches"`
}

// Report summarizes a completed scan.
type Report struct {
	PhotosProcessed int           `json:"photos_processed"`
	ClustersFormed  int           `json:"clusters_formed"`
	PlacesCreated   int           `json:"places_created"`
	PlacesUpdated   int           `json:"places_updated"`
	ClusterErrors   int           `json:"cluster_errors"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Scanner orchestrates one scan at a time over a photo library.
type Scanner struct {
	library   photos.Library
	resolver  *geocode.Resolver
	importer  *places.Importer
	store     store.PlaceStore
	log       *zap.SugaredLogger
	batchSize int
	now       func() time.Time

	onProgress func(Progress)

	mu       sync.Mutex
	scanning bool
	cancel   context.CancelFunc

	progMu   sync.RWMutex
	progress Progress
}

func New(library photos.Library, resolver *geocode.Resolver, importer *places.Importer, st store.PlaceStore, log *zap.SugaredLogger) *Scanner {
	return &Scanner{
		library:   library,
		resolver:  resolver,
		importer:  importer,
		store:     st,
		log:       log,
		batchSize: DefaultBatchSize,
		now:       time.Now,
		progress:  Progress{State: StateIdle},
	}
}

// SetBatchSize overrides the batch size, for tests.
func (s *Scanner) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

// SetClock overrides the time source, for tests.
func (s *Scanner) SetClock(now func() time.Time) {
	s.now = now
}

// SetOnProgress registers a callback invoked after every completed batch.
func (s *Scanner) SetOnProgress(fn func(Progress)) {
	s.onProgress = fn
}

// Run executes one full scan synchronously. It returns ErrScanInProgress if
// a scan is already running, photos.ErrPermissionDenied (wrapped) when the
// library cannot be read, and context.Canceled on cooperative cancellation.
// A failed or cancelled scan leaves the prior checkpoint intact.
func (s *Scanner) Run(ctx context.Context) (*Report, error) {
	runCtx, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.release()
	return s.run(runCtx)
}

// Start launches a scan on a background goroutine. onDone, if non-nil, is
// invoked with the scan's outcome.
func (s *Scanner) Start(onDone func(*Report, error)) error {
	runCtx, err := s.acquire(context.Background())
	if err != nil {
		return err
	}
	go func() {
		defer s.release()
		report, err := s.run(runCtx)
		if onDone != nil {
			onDone(report, err)
		}
	}()
	return nil
}

// Cancel signals the running scan to stop at the next batch boundary. It is
// a no-op when no scan is running; the return reports whether one was.
func (s *Scanner) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.scanning || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// IsScanning reports whether a scan is currently running.
func (s *Scanner) IsScanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

// Progress returns the current progress snapshot.
func (s *Scanner) Progress() Progress {
	s.progMu.RLock()
	defer s.progMu.RUnlock()
	return s.progress
}

func (s *Scanner) acquire(parent context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanning {
		return nil, ErrScanInProgress
	}
	ctx, cancel := context.WithCancel(parent)
	s.scanning = true
	s.cancel = cancel
	return ctx, nil
}

func (s *Scanner) release() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.scanning = false
	s.mu.Unlock()

	s.update(func(p *Progress) {
		p.State = StateIdle
		p.IsScanning = false
	})
}

func (s *Scanner) run(ctx context.Context) (*Report, error) {
	start := s.now()
	report := &Report{}

	s.update(func(p *Progress) {
		*p = Progress{State: StateAuthorizing, IsScanning: true}
	})

	if err := s.library.Authorize(ctx); err != nil {
		s.log.Warnw("photo library authorization failed", "error", err)
		return nil, err
	}

	s.update(func(p *Progress) { p.State = StateFetching })

	after, err := s.store.Checkpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("read scan checkpoint: %w", err)
	}

	samples, err := s.library.Fetch(ctx, after)
	if err != nil {
		return nil, fmt.Errorf("enumerate photo library: %w", err)
	}

	batches := partition(samples, s.batchSize)
	s.update(func(p *Progress) {
		p.State = StateProcessing
		p.TotalCount = len(samples)
		p.TotalBatches = len(batches)
	})
	s.log.Infow("scan started", "photos", len(samples), "batches", len(batches))

	for i, batch := range batches {
		// Cooperative cancellation, checked between batches only: a batch's
		// writes are durable before the next batch starts.
		if err := ctx.Err(); err != nil {
			s.log.Infow("scan cancelled", "completed_batches", i, "total_batches", len(batches))
			return nil, err
		}

		s.processBatch(ctx, batch, report)

		done := i + 1
		s.update(func(p *Progress) {
			p.CompletedBatches = done
			p.ProcessedCount += len(batch)
			p.Fraction = float64(done) / float64(len(batches))
		})
		if s.onProgress != nil {
			s.onProgress(s.Progress())
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.update(func(p *Progress) {
		p.State = StateFinalizing
		p.Fraction = 1
	})

	if err := s.store.SetCheckpoint(ctx, s.now()); err != nil {
		return nil, fmt.Errorf("write scan checkpoint: %w", err)
	}

	report.Elapsed = s.now().Sub(start)
	s.log.Infow("scan completed",
		"photos", report.PhotosProcessed,
		"places_created", report.PlacesCreated,
		"places_updated", report.PlacesUpdated,
		"errors", report.ClusterErrors,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

// processBatch clusters one batch and upserts each cluster. A cluster that
// fails geocoding or storage is logged and counted, never fatal to the scan.
func (s *Scanner) processBatch(ctx context.Context, batch []models.LocationSample, report *Report) {
	clusters := cluster.Group(batch)
	report.ClustersFormed += len(clusters)

	for _, c := range clusters {
		res := s.resolver.Resolve(ctx, c.Latitude, c.Longitude)

		_, created, err := s.importer.Upsert(ctx, c, res)
		if err != nil {
			report.ClusterErrors++
			s.log.Warnw("cluster upsert failed, continuing",
				"lat", c.Latitude, "lon", c.Longitude, "error", err)
			continue
		}
		if created {
			report.PlacesCreated++
		} else {
			report.PlacesUpdated++
		}
	}

	report.PhotosProcessed += len(batch)
}

func (s *Scanner) update(fn func(*Progress)) {
	s.progMu.Lock()
	fn(&s.progress)
	s.progMu.Unlock()
}

func partition(samples []models.LocationSample, size int) [][]models.LocationSample {
	var batches [][]models.LocationSample
	for start := 0; start < len(samples); start += size {
		end := start + size
		if end > len(samples) {
			end = len(samples)
		}
		batches = append(batches, samples[start:end])
	}
	return batches
}
