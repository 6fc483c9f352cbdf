// Package web provides HTTP handlers and REST API endpoints for automation management.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/utils/v2"

	"github.com/statusflowhq/statusflow/pkg/models"
	"github.com/statusflowhq/statusflow/pkg/persistence"
	"github.com/statusflowhq/statusflow/pkg/services"
)

// OrgHeader names the header carrying the organization a request operates in.
// Every automation and ops route is org-scoped.
const OrgHeader = "X-Org-ID"

// Retention defaults for POST /ops/cleanup. Completed events are transient
// plumbing; executions are the audit trail and are kept longer.
const (
	defaultEventRetention     = 30 * 24 * time.Hour
	defaultExecutionRetention = 90 * 24 * time.Hour
)

type APIHandlers struct {
	automationService *services.Automations
	operationsService *services.Operations
	validator         *validator.Validate
}

func NewAPIHandlers(
	automationService *services.Automations,
	operationsService *services.Operations,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		automationService: automationService,
		operationsService: operationsService,
		validator:         validator,
	}
}

// RequireOrg rejects requests that do not name an organization.
func RequireOrg(c fiber.Ctx) error {
	if c.Get(OrgHeader) == "" {
		return badRequest(c, OrgHeader+" header is required")
	}

	return c.Next()
}

// orgID returns a detached copy of the org header. Header values alias
// fasthttp's reused request buffer; the org id outlives the handler in
// persisted rows, so it must not share that backing array.
func orgID(c fiber.Ctx) string {
	return utils.CopyString(c.Get(OrgHeader))
}

func (h *APIHandlers) ListAutomations(c fiber.Ctx) error {
	automations, err := h.automationService.List(c.Context(), orgID(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"automations": automations,
		"count":       len(automations),
	})
}

func (h *APIHandlers) GetAutomation(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Automation ID is required")
	}

	automation, err := h.automationService.ByID(c.Context(), orgID(c), id)
	if err != nil {
		if persistence.IsAutomationNotFound(err) {
			return notFound(c, "Automation not found")
		}

		return internalError(c, err)
	}

	return c.JSON(automation)
}

func (h *APIHandlers) CreateAutomation(c fiber.Ctx) error {
	var req CreateAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.automationService.Create(c.Context(), req.Model(orgID(c)))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateAutomation(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Automation ID is required")
	}

	var req UpdateAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.automationService.Update(c.Context(), orgID(c), id, req.Model(orgID(c)))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteAutomation(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Automation ID is required")
	}

	if err := h.automationService.Delete(c.Context(), orgID(c), id); err != nil {
		if persistence.IsAutomationNotFound(err) {
			return notFound(c, "Automation not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ToggleAutomation(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Automation ID is required")
	}

	toggled, err := h.automationService.Toggle(c.Context(), orgID(c), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(toggled)
}

func (h *APIHandlers) GetAutomationExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Automation ID is required")
	}

	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit: "+limitStr)
		}

		limit = parsed
	}

	executions, err := h.automationService.Executions(c.Context(), orgID(c), id, limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": executions,
		"count":      len(executions),
	})
}

func (h *APIHandlers) GetEventStats(c fiber.Ctx) error {
	var window time.Duration

	if windowStr := c.Query("window"); windowStr != "" {
		parsed, err := time.ParseDuration(windowStr)
		if err != nil {
			return badRequest(c, "Invalid window: "+windowStr)
		}

		window = parsed
	}

	stats, err := h.operationsService.EventStats(c.Context(), orgID(c), window)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) GetExecutionStats(c fiber.Ctx) error {
	stats, err := h.operationsService.ExecutionStats(c.Context(), orgID(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) GetCorrelationChain(c fiber.Ctx) error {
	correlationID := c.Params("id")
	if correlationID == "" {
		return badRequest(c, "Correlation ID is required")
	}

	chain, err := h.operationsService.EventsByCorrelation(c.Context(), orgID(c), correlationID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"events": chain,
		"count":  len(chain),
	})
}

func (h *APIHandlers) ReplayEvents(c fiber.Ctx) error {
	var req ReplayEventsRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	replayed, err := h.operationsService.ReplayFailedEvents(c.Context(), orgID(c), req.Limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"replayed": replayed})
}

func (h *APIHandlers) Cleanup(c fiber.Ctx) error {
	var req CleanupRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	eventRetention := defaultEventRetention
	if req.EventRetentionHours > 0 {
		eventRetention = time.Duration(req.EventRetentionHours) * time.Hour
	}

	executionRetention := defaultExecutionRetention
	if req.ExecutionRetentionHours > 0 {
		executionRetention = time.Duration(req.ExecutionRetentionHours) * time.Hour
	}

	eventsDeleted, err := h.operationsService.CleanupOldEvents(c.Context(), eventRetention, req.Limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	executionsDeleted, err := h.operationsService.CleanupOldExecutions(c.Context(), executionRetention, req.Limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"eventsDeleted":     eventsDeleted,
		"executionsDeleted": executionsDeleted,
	})
}

func (h *APIHandlers) IngestStatusChange(c fiber.Ctx) error {
	var req IngestStatusChangeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	eventID, err := h.operationsService.IngestStatusChange(c.Context(), services.IngestStatusChangeRequest{
		OrgID:         orgID(c),
		EntityType:    req.EntityType,
		EntityID:      req.EntityID,
		OldStatus:     req.OldStatus,
		NewStatus:     req.NewStatus,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"eventId": eventID})
}

func (h *APIHandlers) SeedEntity(c fiber.Ctx) error {
	var req SeedEntityRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.operationsService.SeedEntity(c.Context(), req.Model(orgID(c))); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusCreated)
}

func (h *APIHandlers) GetStatusCounts(c fiber.Ctx) error {
	entityType := c.Query("type")
	if entityType == "" {
		return badRequest(c, "Entity type is required")
	}

	counts, err := h.operationsService.StatusCounts(c.Context(), orgID(c), models.EntityType(entityType))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(counts)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.automationService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "StatusFlow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "StatusFlow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
