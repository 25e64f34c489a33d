// Package server exposes the HTTP surface: the platform webhook plus
// health and metrics endpoints.
package server

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"time"

	"gatekeeper/internal/config"
	"gatekeeper/internal/dispatch"
	"gatekeeper/internal/logging"
	"gatekeeper/internal/platform"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds the HTTP dependencies.
type Server struct {
	config *config.Config
	router *dispatch.Router
	rdb    *redis.Client
	db     *gorm.DB
}

// New returns a Server dispatching webhook updates into the given router.
func New(cfg *config.Config, router *dispatch.Router, rdb *redis.Client, db *gorm.DB) *Server {
	return &Server{config: cfg, router: router, rdb: rdb, db: db}
}

// SetupApp builds the fiber app with middleware and routes.
func (s *Server) SetupApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "gatekeeper",
		DisableStartupMessage: s.config.Env == "test",
	})

	app.Use(recover.New())
	app.Use(requestid.New())

	prom := fiberprometheus.New("gatekeeper")
	prom.RegisterAt(app, "/metrics")
	app.Use(prom.Middleware)

	app.Post("/webhook/:secret", s.handleWebhook)
	app.Get("/healthz", s.handleHealthz)
	app.Get("/readyz", s.handleReadyz)

	return app
}

// handleWebhook accepts one platform update. The path secret is the
// platform's webhook authentication model; a mismatch is logged and
// rejected.
func (s *Server) handleWebhook(c *fiber.Ctx) error {
	secret := c.Params("secret")
	if s.config.WebhookSecret == "" ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(s.config.WebhookSecret)) != 1 {
		return c.SendStatus(fiber.StatusForbidden)
	}

	var update platform.Update
	if err := c.BodyParser(&update); err != nil {
		logging.Logger.Warn("malformed webhook payload", slog.Any("error", err))
		return c.SendStatus(fiber.StatusBadRequest)
	}

	// The platform retries non-200 responses; handling is best-effort, so
	// always acknowledge once the payload parsed.
	s.router.HandleUpdate(c.UserContext(), update)
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) handleHealthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleReadyz verifies the shared store and database are reachable.
func (s *Server) handleReadyz(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "redis unavailable"})
	}
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(ctx) != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "database unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}
