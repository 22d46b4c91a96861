// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

// URL builds a lib/pq connection URL.
func (d *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type Config struct {
	DB        DatabaseConfig
	RedisAddr string
	Port      string

	// PhotosDir is the root of the photo library to scan.
	PhotosDir string

	NominatimURL   string
	GeocodeTimeout time.Duration

	ScanBatchSize int
}

// Load reads .env (if present) and the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DB: DatabaseConfig{
			Host:     envOrDefault("DB_HOST", "localhost"),
			Port:     envOrDefault("DB_PORT", "5432"),
			Name:     envOrDefault("DB_NAME", "odyssee_db"),
			User:     envOrDefault("DB_USER", "odyssee"),
			Password: envOrDefault("DB_PASS", "odyssee"),
		},
		RedisAddr:      envOrDefault("REDIS_ADDR", "localhost:6379"),
		Port:           envOrDefault("PORT", "8080"),
		PhotosDir:      envOrDefault("PHOTOS_DIR", "./photos"),
		NominatimURL:   envOrDefault("NOMINATIM_URL", ""),
		GeocodeTimeout: envDurationOrDefault("GEOCODE_TIMEOUT", 10*time.Second),
		ScanBatchSize:  envIntOrDefault("SCAN_BATCH_SIZE", 100),
	}
}

func envOrDefault(key, d string) string {
	v := os.Getenv(key)
	if v == "" {
		return d
	}
	return v
}

func envIntOrDefault(key string, d int) int {
	v := os.Getenv(key)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return d
	}
	return n
}

func envDurationOrDefault(key string, d time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return d
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return d
	}
	return parsed
}
