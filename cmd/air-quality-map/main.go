package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/i474232898/air-quality-map/internal/airquality"
	"github.com/i474232898/air-quality-map/internal/airquality/providers"
	httpapi "github.com/i474232898/air-quality-map/internal/api/http"
	"github.com/i474232898/air-quality-map/internal/config"
	"github.com/i474232898/air-quality-map/internal/locations"
	"github.com/i474232898/air-quality-map/internal/logging"
	"github.com/i474232898/air-quality-map/internal/mapview"
	"github.com/i474232898/air-quality-map/internal/metrics"
	"github.com/i474232898/air-quality-map/internal/scheduler"
	"github.com/i474232898/air-quality-map/internal/store"
	"github.com/i474232898/air-quality-map/internal/widget"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	// Cities rendered as markers.
	var gc locations.Geocoder
	if cfg.GeocoderAPIKey != "" {
		gc = locations.GoogleGeocoder{APIKey: cfg.GeocoderAPIKey}
	}
	cities, err := locations.Load(cfg.LocationsFile, gc)
	if err != nil {
		log.Fatalf("failed to load locations: %v", err)
	}
	slog.Info("locations loaded", "count", len(cities))

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	provider := providers.NewWAQIProvider(httpClient, cfg.WAQIToken,
		providers.WithBaseURL(cfg.WAQIBaseURL),
		providers.WithBackoff(providers.BackoffConfig{
			MaxRetries:      cfg.WAQIMaxRetries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		}),
	)

	widgetCfg := widget.Config{
		View: mapview.Options{
			Center: mapview.Coordinate{Lat: cfg.MapCenterLat, Lon: cfg.MapCenterLon},
			Zoom:   cfg.MapZoom,
			Tiles: mapview.TileLayer{
				URLTemplate: cfg.MapTileURL,
				MaxZoom:     cfg.MapMaxZoom,
				Attribution: mapview.DefaultOptions().Tiles.Attribution,
			},
		},
		Bounds: airquality.WorldBounds,
	}
	newWidget := func(opts ...widget.Option) *widget.Widget {
		return widget.New(provider, cities, widgetCfg, opts...)
	}

	// Sessions mounted over REST, reaped when their clients disappear.
	sessions := store.NewMemoryStore(0, cfg.SessionTTL)
	reaper := scheduler.New(sessions, cfg.SessionReapInterval)
	if err := reaper.Start(); err != nil {
		log.Fatalf("failed to start session reaper: %v", err)
	}
	defer reaper.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "air-quality-map",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(metrics.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"service":  "air-quality-map",
			"sessions": sessions.Len(),
		})
	})
	app.Get("/metrics", metrics.Handler())

	httpapi.RegisterRoutes(app, httpapi.Dependencies{
		NewWidget:    newWidget,
		Sessions:     sessions,
		View:         widgetCfg.View,
		SnapshotWait: cfg.SnapshotWait,
		PingInterval: cfg.SocketPingInterval,
	})

	go func() {
		slog.Info("listening", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("fiber server stopped", "error", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("error during shutdown", "error", err)
	}

	for _, sess := range sessions.Drain() {
		sess.Widget.Unmount()
	}
}
