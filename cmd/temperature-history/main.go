package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/temperature-history/internal/api/http"
	"github.com/i474232898/temperature-history/internal/config"
	"github.com/i474232898/temperature-history/internal/scheduler"
	"github.com/i474232898/temperature-history/internal/store/sqlite"
	"github.com/i474232898/temperature-history/internal/temperature"
	"github.com/i474232898/temperature-history/internal/temperature/geocode"
	"github.com/i474232898/temperature-history/internal/temperature/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound provider and geocoder calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Geocoder: Google when an API key is configured, Open-Meteo otherwise.
	var geocoder temperature.GeocodeProvider
	if cfg.GeocoderAPIKey != "" {
		geocoder = geocode.NewGoogleGeocoder(cfg.GeocoderAPIKey)
	} else {
		geocoder = geocode.NewOpenMeteoGeocoder(httpClient)
	}

	provider := providers.NewOpenMeteoProvider(httpClient, geocoder)

	opts := temperature.Options{
		HistoryStart: cfg.HistoryStart,
		EndLag:       cfg.EndLag,
		ChunkDelay:   cfg.ChunkDelay,
	}

	// Core service: cache-backed unless caching is disabled.
	var service *temperature.Service
	if cfg.CacheEnabled {
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				log.Fatalf("failed to create data directory: %v", err)
			}
		}
		cache, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			log.Fatalf("failed to open cache store: %v", err)
		}
		defer cache.Close()
		service = temperature.NewService(provider, geocoder, cache, opts)
	} else {
		log.Println("INFO: cache disabled; running in pass-through mode")
		service = temperature.NewPassthroughService(provider, geocoder, opts)
	}

	// Scheduler that periodically refreshes configured cities.
	sched := scheduler.New(cfg.Cities, cfg.RefreshInterval, service)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "temperature-history",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "temperature-history",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
