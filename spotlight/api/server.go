package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spotlightworks/spotlight/spotlight/api/middleware"
)

// ServerConfig carries the HTTP surface tunables.
type ServerConfig struct {
	Addr       string
	RateLimit  int
	RateWindow time.Duration
}

// Server wraps the fiber app and route wiring. It owns the rate limiter
// so its pruning goroutine stops with the server.
type Server struct {
	app     *fiber.App
	addr    string
	limiter *middleware.RateLimiter
}

func NewServer(cfg ServerConfig, h *Handlers) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "Spotlight API",
		ServerHeader: "Spotlight",
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(middleware.Logging())

	s := &Server{app: app, addr: cfg.Addr}
	if cfg.RateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
		app.Use(s.limiter.Handler())
	}

	setupRoutes(app, h)

	return s
}

func setupRoutes(app *fiber.App, h *Handlers) {
	app.Get("/health", h.Health)

	api := app.Group("/api")

	accounts := api.Group("/accounts")
	accounts.Get("/:id/balance", h.GetBalance)
	accounts.Get("/:id/transactions", h.GetTransactions)
	accounts.Post("/:id/earn", h.Earn)
	accounts.Post("/:id/spend", h.Spend)
	accounts.Post("/:id/purchase", h.Purchase)

	auctions := api.Group("/auctions")
	auctions.Get("/current", h.CurrentAuction)
	auctions.Get("/:id", h.GetAuction)
	auctions.Get("/:id/positions/:index/bids", h.PositionBids)
	auctions.Post("/:id/positions/:index/bids", h.PlaceBid)

	boosts := api.Group("/boosts")
	boosts.Get("/tiers", h.BoostTiers)
	boosts.Post("/rank", h.RankSubjects)
	boosts.Get("/:subjectId", h.GetBoost)
	boosts.Post("/:subjectId", h.ApplyBoost)

	admin := api.Group("/admin")
	admin.Post("/accounts/:id/grant", h.AdminGrant)
	admin.Post("/accounts/:id/reconcile", h.Reconcile)
	admin.Get("/transactions", h.History)
	admin.Post("/auctions/:id/positions/:index/finalize", h.FinalizePosition)

	app.Use(func(c *fiber.Ctx) error {
		return SendNotFound(c, "route not found")
	})
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return SendError(c, code, "INTERNAL_ERROR", err.Error(), nil)
}

// Listen blocks serving HTTP until shutdown.
func (s *Server) Listen() error {
	return s.app.Listen(s.addr)
}

// Shutdown drains in-flight requests before stopping.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.app.ShutdownWithContext(ctx)
}
