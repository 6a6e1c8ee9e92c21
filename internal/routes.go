// Package internal contains core application functionality
package internal

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "tonelink/api/v1"
	"tonelink/internal/config"
	"tonelink/internal/geo"
	"tonelink/internal/http"
	"tonelink/internal/visits"
)

// publicCORSConfig returns the standard CORS configuration for public endpoints.
// Landing pages send beacons from arbitrary origins, so this stays permissive.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Referrer, User-Agent",
}

// NewVisitService wires the geolocation provider chain and the visit
// pipeline from configuration. The local MaxMind database goes first;
// the HTTP providers are fallbacks.
func NewVisitService(cfg *config.Config, logger *slog.Logger, dbManager cartridge.DBManager) *visits.Service {
	resolver := geo.NewResolver(logger, cfg.GeoProviderTimeout(),
		geo.NewMaxMindProvider(cfg.GeoDBPath),
		geo.NewIPAPIProvider(cfg.IPAPIBaseURL, nil),
		geo.NewIPWhoisProvider(cfg.IPWhoisBaseURL, nil),
	)

	return visits.NewService(logger, dbManager, resolver, cfg.IngestBudget(), visits.EnrichSettings{
		BatchSize:     cfg.EnrichBatchSize,
		SubBatchSize:  cfg.EnrichSubBatchSize,
		MaxAttempts:   cfg.MaxEnrichmentAttempts,
		RatePerSecond: float64(cfg.EnrichRatePerSecond),
	})
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()
	logger := srv.GetLogger()
	service := NewVisitService(cfg, logger, srv.GetDBManager())

	// Rate limiting only in production; in development and test it
	// would interfere with local traffic and the test suite.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Public endpoints: 120 requests per minute per IP covers bursts of
	// legitimate redirect traffic while capping scrapers.
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(120),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// The enrichment trigger fans out to third-party geo providers, so
	// it gets a much tighter cap.
	enrichRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(6),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	publicPageConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
	}

	enrichConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{enrichRateLimiter},
	}

	// === HEALTH ===
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === PUBLIC API ROUTES ===
	srv.Post("/api/v1/interactions", v1.CreateInteractionHandler(service), publicAPIConfig)
	srv.Options("/api/v1/interactions", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)

	srv.Post("/api/v1/enrich", v1.CreateEnrichHandler(service), enrichConfig)
	srv.Get("/api/v1/analytics/:parentType/:parentId", v1.AnalyticsShowHandler(), publicPageConfig)

	// === RELEASE LANDING PAGES ===
	srv.Get("/r/:slug", http.ReleaseShowAction(service), publicPageConfig)

	// === SHORT LINK REDIRECTS ===
	// Mounted last: the catch-all slug must not shadow the routes above.
	srv.Get("/:slug", http.LinkRedirectAction(service), publicPageConfig)
}
