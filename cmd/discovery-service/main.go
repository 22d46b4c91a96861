package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/odyssee/discovery_service/internal/api"
	"github.com/odyssee/discovery_service/internal/config"
	"github.com/odyssee/discovery_service/internal/geocode"
	"github.com/odyssee/discovery_service/internal/logger"
	"github.com/odyssee/discovery_service/internal/photos"
	"github.com/odyssee/discovery_service/internal/places"
	"github.com/odyssee/discovery_service/internal/scanner"
	"github.com/odyssee/discovery_service/internal/service"
	"github.com/odyssee/discovery_service/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "discovery-service",
	Short: "Location discovery pipeline for photo libraries",
	Long:  `Turns a GPS-tagged photo library into a deduplicated set of visited places with per-photo travel moments.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the discovery API server",
	Run:   runServe,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan of the photo library and exit",
	Run:   runScan,
}

var useMemoryStore bool

func init() {
	scanCmd.Flags().BoolVar(&useMemoryStore, "memory", false, "Use an in-memory store instead of Postgres (dry run)")
	rootCmd.AddCommand(serveCmd, scanCmd)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := config.Load()
	log := logger.Get("main")

	db := openDatabase(cfg, log)
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warnw("redis ping failed, place cache disabled", "error", err)
		rdb = nil
	}

	st := store.NewPgStore(db)
	scan := buildScanner(cfg, st)
	svc := service.NewService(st, scan, rdb, logger.Get("service"))
	handler := api.NewHandler(svc)

	router := gin.Default()
	api.RegisterRoutes(router, handler)

	log.Infow("listening", "port", cfg.Port, "photos_dir", cfg.PhotosDir)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalw("server failed", "error", err)
	}
}

func runScan(cmd *cobra.Command, args []string) {
	cfg := config.Load()
	log := logger.Get("main")

	var st store.PlaceStore
	if useMemoryStore {
		st = store.NewMemStore()
	} else {
		db := openDatabase(cfg, log)
		defer db.Close()
		st = store.NewPgStore(db)
	}

	scan := buildScanner(cfg, st)
	scan.SetOnProgress(func(p scanner.Progress) {
		log.Infof("progress %d/%d batches (%.0f%%)", p.CompletedBatches, p.TotalBatches, p.Fraction*100)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := scan.Run(ctx)
	if err != nil {
		log.Fatalw("scan failed", "error", err)
	}
	fmt.Printf("scan complete: %d photos, %d clusters, %d places created, %d updated, %d errors in %v\n",
		report.PhotosProcessed, report.ClustersFormed,
		report.PlacesCreated, report.PlacesUpdated, report.ClusterErrors, report.Elapsed)
}

func buildScanner(cfg *config.Config, st store.PlaceStore) *scanner.Scanner {
	library := photos.NewDirLibrary(cfg.PhotosDir, logger.Get("photos"))

	resolver := geocode.NewResolver(
		geocode.NewNominatimClient(cfg.NominatimURL, nil),
		logger.Get("geocode"),
	)
	resolver.SetTimeout(cfg.GeocodeTimeout)

	importer := places.NewImporter(st, logger.Get("places"))

	scan := scanner.New(library, resolver, importer, st, logger.Get("scanner"))
	scan.SetBatchSize(cfg.ScanBatchSize)
	return scan
}

func openDatabase(cfg *config.Config, log *zap.SugaredLogger) *sql.DB {
	db, err := sql.Open("postgres", cfg.DB.URL())
	if err != nil {
		log.Fatalw("db open failed", "error", err)
	}

	// simple ping + wait (db might be starting in docker)
	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		log.Infow("waiting for db", "attempt", i+1, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		log.Fatalw("could not connect to db", "error", err)
	}

	if err := store.RunMigrations(db); err != nil {
		log.Fatalw("migrations failed", "error", err)
	}
	return db
}
