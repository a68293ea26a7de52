package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/cardcore/internal/authorization"
	"github.com/congo-pay/cardcore/internal/card"
	"github.com/congo-pay/cardcore/internal/config"
	"github.com/congo-pay/cardcore/internal/metrics"
	"github.com/congo-pay/cardcore/internal/middleware"
	"github.com/congo-pay/cardcore/internal/operatorauth"
	"github.com/congo-pay/cardcore/internal/processoradapter"
	"github.com/congo-pay/cardcore/internal/settlement"
)

// Deps aggregates the shared infrastructure and pre-wired handlers
// needed to register routes. server.New constructs the handlers; Setup
// only wires them to paths and middleware.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	CardHandler          *card.Handler
	OperatorHandler      *operatorauth.Handler
	OperatorService      *operatorauth.Service
	ProcessorHandler     *processoradapter.Handler
	AuthorizationHandler *authorization.Handler
	SettlementHandler    *settlement.Handler
	Metrics              *metrics.Collector
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))
	}

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Processor webhooks authenticate out-of-band (network-level mTLS or
	// a shared secret upstream of this service); no operator bearer
	// token is required here.
	processor := api.Group("/processor")
	if d.Cache != nil {
		processor.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterProcessorRoutes(processor, d.ProcessorHandler)

	// Operator login and logout are public; the card, authorization and
	// settlement routes below require a bearer token.
	rateLimiter := middleware.LoginRateLimit(d.Cache, 5)
	RegisterOperatorAuthRoutes(api, d.OperatorHandler, rateLimiter)

	protected := api.Group("", middleware.OperatorAuth(d.OperatorService))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterCardRoutes(protected, d.CardHandler)
	RegisterAuthorizationRoutes(protected, d.AuthorizationHandler)
	RegisterSettlementRoutes(protected, d.SettlementHandler)

	return nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
