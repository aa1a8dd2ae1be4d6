package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/temperature-history/internal/temperature"
)

type AppConfig struct {
	Port string

	// DBPath is the SQLite cache file. Ignored when CacheEnabled is false.
	DBPath       string
	CacheEnabled bool

	// HTTPTimeout applies to outbound provider and geocoder calls.
	HTTPTimeout time.Duration

	// HistoryStart is the default window start when a request omits it.
	HistoryStart time.Time

	// EndLag keeps the default window end behind now, accounting for upstream
	// reporting delay.
	EndLag time.Duration

	// ChunkDelay is the pause between chunk fetches during a backfill.
	ChunkDelay time.Duration

	// Cities are periodically refreshed by the scheduler. Empty disables the job.
	Cities          []string
	RefreshInterval time.Duration

	// GeocoderAPIKey switches geocoding to Google when set.
	GeocoderAPIKey string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.DBPath = getenvDefault("DB_PATH", "data/temperature.db")
	cfg.CacheEnabled = getenvBool("CACHE_ENABLED", true)
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	timeout, err := parseDurationEnv("HTTP_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	cfg.HTTPTimeout = timeout

	startStr := getenvDefault("HISTORY_START", "1940-01-01")
	start, err := time.ParseInLocation(temperature.DateLayout, startStr, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid HISTORY_START: %w", err)
	}
	cfg.HistoryStart = start

	cfg.EndLag = time.Duration(getenvInt("END_LAG_DAYS", 7)) * 24 * time.Hour

	delay, err := parseDurationEnv("CHUNK_DELAY", "1s")
	if err != nil {
		return nil, err
	}
	cfg.ChunkDelay = delay

	interval, err := parseDurationEnv("REFRESH_INTERVAL", "24h")
	if err != nil {
		return nil, err
	}
	cfg.RefreshInterval = interval

	if cities := os.Getenv("CITIES"); cities != "" {
		for _, city := range strings.Split(cities, ",") {
			if city = strings.TrimSpace(city); city != "" {
				cfg.Cities = append(cfg.Cities, city)
			}
		}
	}

	return cfg, nil
}

func parseDurationEnv(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}
