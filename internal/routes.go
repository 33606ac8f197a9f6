package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "github.com/Riken-Shah/finding-me/api/v1"
	"github.com/Riken-Shah/finding-me/internal/config"
	"github.com/Riken-Shah/finding-me/internal/http"
)

// publicCORSConfig is shared by the public tracking endpoints. Permissive on
// purpose: the tracker script runs on arbitrary origins during development.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, X-Session-Id, X-No-Track, Referrer, User-Agent",
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()

	// Rate limiting only in production; in development and test it would
	// interfere with rapid navigation and the test suite.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// 70 requests per minute per IP covers real navigation while blocking abuse.
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Ingestion config
	// Rate limiting + CORS + Sec-Fetch-Site (global middleware handles validation)
	// The tracker ships with the site itself, so beacons arrive same-origin and
	// pass the default Sec-Fetch-Site policy; header-less server-to-server
	// requests are rejected.
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// Tracker delivery config
	// Rate limiting + CORS (no Sec-Fetch-Site needed for GET-only)
	trackerConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// Health check endpoint
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === TRACKING INGESTION ===
	// Both request shapes land on the same handler.
	srv.Post("/api/v1/track", v1.TrackHandler, publicAPIConfig)
	srv.Get("/api/v1/track", v1.TrackHandler, publicAPIConfig)
	srv.Options("/api/v1/track", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)

	// === METRICS QUERY ===
	srv.Get("/api/v1/dashboard", http.DashboardAction)

	// === CAPTURE CLIENT DELIVERY ===
	srv.Get("/tracker.js", v1.GetTrackerAction, trackerConfig)
}
