// Package main provides the StatusFlow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/statusflowhq/statusflow/pkg/cache"
	"github.com/statusflowhq/statusflow/pkg/persistence"
	"github.com/statusflowhq/statusflow/pkg/services"
	"github.com/statusflowhq/statusflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	publisher   services.StatusChangePublisher
	counters    cache.CounterCache
	validate    *validator.Validate
}

// NewAPI builds the API server. counters may be nil; status count reads then
// always hit the store.
func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	publisher services.StatusChangePublisher,
	counters cache.CounterCache,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		publisher:   publisher,
		counters:    counters,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	automationService := services.NewAutomations(a.persistence)

	operationsService := services.NewOperations(a.persistence, a.publisher)
	if a.counters != nil {
		operationsService = operationsService.WithCounters(a.counters)
	}

	handlers := web.NewAPIHandlers(automationService, operationsService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("StatusFlow API")
	})

	automations := app.Group("/automations", web.RequireOrg)
	automations.Get("/", handlers.ListAutomations)
	automations.Post("/", handlers.CreateAutomation)
	automations.Get("/:id", handlers.GetAutomation)
	automations.Put("/:id", handlers.UpdateAutomation)
	automations.Delete("/:id", handlers.DeleteAutomation)
	automations.Post("/:id/toggle", handlers.ToggleAutomation)
	automations.Get("/:id/executions", handlers.GetAutomationExecutions)

	ops := app.Group("/ops", web.RequireOrg)
	ops.Get("/events/stats", handlers.GetEventStats)
	ops.Get("/executions/stats", handlers.GetExecutionStats)
	ops.Get("/events/correlation/:id", handlers.GetCorrelationChain)
	ops.Post("/events/replay", handlers.ReplayEvents)
	ops.Post("/cleanup", handlers.Cleanup)
	ops.Post("/entities/seed", handlers.SeedEntity)
	ops.Get("/entities/counts", handlers.GetStatusCounts)

	ingest := app.Group("/ingest", web.RequireOrg)
	ingest.Post("/status-change", handlers.IngestStatusChange)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
