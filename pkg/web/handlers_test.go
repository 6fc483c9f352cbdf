package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statusflowhq/statusflow/pkg/events"
	"github.com/statusflowhq/statusflow/pkg/models"
	"github.com/statusflowhq/statusflow/pkg/persistence/memory"
	"github.com/statusflowhq/statusflow/pkg/services"
	"github.com/statusflowhq/statusflow/pkg/web"
)

// stubPublisher records bus interactions instead of publishing.
type stubPublisher struct {
	emits []events.StatusChange
	orgs  []string
	kicks int
}

func (s *stubPublisher) EmitStatusChange(_ context.Context, orgID string, change events.StatusChange, _ string, _ string) (string, error) {
	s.emits = append(s.emits, change)
	s.orgs = append(s.orgs, orgID)

	return fmt.Sprintf("evt-%d", len(s.emits)), nil
}

func (s *stubPublisher) Kick(_ time.Duration) {
	s.kicks++
}

func setupTestApp(t *testing.T) (*fiber.App, *memory.Persistence, *stubPublisher) {
	t.Helper()

	store := memory.NewPersistence()
	publisher := &stubPublisher{}
	automationService := services.NewAutomations(store)
	operationsService := services.NewOperations(store, publisher)
	validate := validator.New(validator.WithRequiredStructEnabled())
	handlers := web.NewAPIHandlers(automationService, operationsService, validate)

	app := fiber.New()

	a := app.Group("/automations", web.RequireOrg)
	a.Get("/", handlers.ListAutomations)
	a.Post("/", handlers.CreateAutomation)
	a.Get("/:id", handlers.GetAutomation)
	a.Put("/:id", handlers.UpdateAutomation)
	a.Delete("/:id", handlers.DeleteAutomation)
	a.Post("/:id/toggle", handlers.ToggleAutomation)
	a.Get("/:id/executions", handlers.GetAutomationExecutions)

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

	return app, store, publisher
}

// request performs a JSON request against the test app with the org header
// set.
func request(t *testing.T, app *fiber.App, method, url string, body any) *http.Response {
	t.Helper()

	var reader io.Reader

	if body != nil {
		if raw, ok := body.(string); ok {
			reader = bytes.NewBufferString(raw)
		} else {
			raw, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewBuffer(raw)
		}
	}

	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(web.OrgHeader, "org-1")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func validAutomationRequest() web.CreateAutomationRequest {
	return web.CreateAutomationRequest{
		Name: "Quote sent follow-up",
		Trigger: web.TriggerRequest{
			ObjectType: "quote",
			ToStatus:   "sent",
		},
		Nodes: []web.NodeRequest{
			{
				ID:   "check",
				Type: "condition",
				Condition: &web.ConditionRequest{
					Field:    "amount",
					Operator: "exists",
				},
				NextNodeID: strPtr("apply"),
			},
			{
				ID:   "apply",
				Type: "action",
				Action: &web.ActionRequest{
					TargetType: "project",
					ActionType: "update_status",
					NewStatus:  "in-progress",
				},
			},
		},
		CreatedBy: "user-1",
	}
}

func createAutomation(t *testing.T, app *fiber.App) models.WorkflowAutomation {
	t.Helper()

	resp := request(t, app, http.MethodPost, "/automations", validAutomationRequest())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return decodeBody[models.WorkflowAutomation](t, resp)
}

func TestAPIHandlers_RequireOrg(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/automations", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_CreateAutomation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		validateResult func(t *testing.T, automation models.WorkflowAutomation)
	}{
		{
			name:           "successful creation",
			requestBody:    validAutomationRequest(),
			expectedStatus: http.StatusCreated,
			validateResult: func(t *testing.T, automation models.WorkflowAutomation) {
				t.Helper()
				assert.NotEmpty(t, automation.ID)
				assert.Equal(t, "org-1", automation.OrgID)
				assert.Equal(t, "Quote sent follow-up", automation.Name)
				assert.True(t, automation.IsActive)
				assert.Equal(t, models.EntityTypeQuote, automation.Trigger.ObjectType)
				assert.Len(t, automation.Nodes, 2)
				assert.Zero(t, automation.TriggerCount)
			},
		},
		{
			name: "explicitly inactive",
			requestBody: func() web.CreateAutomationRequest {
				req := validAutomationRequest()
				req.IsActive = boolPtr(false)

				return req
			}(),
			expectedStatus: http.StatusCreated,
			validateResult: func(t *testing.T, automation models.WorkflowAutomation) {
				t.Helper()
				assert.False(t, automation.IsActive)
			},
		},
		{
			name: "validation error - missing name",
			requestBody: func() web.CreateAutomationRequest {
				req := validAutomationRequest()
				req.Name = ""

				return req
			}(),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error - no nodes",
			requestBody: func() web.CreateAutomationRequest {
				req := validAutomationRequest()
				req.Nodes = nil

				return req
			}(),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error - dangling branch pointer",
			requestBody: func() web.CreateAutomationRequest {
				req := validAutomationRequest()
				req.Nodes[0].NextNodeID = strPtr("ghost")

				return req
			}(),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error - unknown operator",
			requestBody: func() web.CreateAutomationRequest {
				req := validAutomationRequest()
				req.Nodes[0].Condition.Operator = "near"

				return req
			}(),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error - status outside target vocabulary",
			requestBody: func() web.CreateAutomationRequest {
				req := validAutomationRequest()
				req.Nodes[1].Action.NewStatus = "accepted"

				return req
			}(),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "not-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, _, _ := setupTestApp(t)

			resp := request(t, app, http.MethodPost, "/automations", tt.requestBody)

			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusCreated && tt.validateResult != nil {
				var automation models.WorkflowAutomation
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&automation))
				tt.validateResult(t, automation)
			}
		})
	}
}

func TestAPIHandlers_GetAutomation(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	created := createAutomation(t, app)

	resp := request(t, app, http.MethodGet, "/automations/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	fetched := decodeBody[models.WorkflowAutomation](t, resp)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, created.Name, fetched.Name)

	resp = request(t, app, http.MethodGet, "/automations/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	// Another organization cannot see it.
	req := httptest.NewRequest(http.MethodGet, "/automations/"+created.ID, nil)
	req.Header.Set(web.OrgHeader, "org-2")

	crossOrg, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = crossOrg.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, crossOrg.StatusCode)
}

func TestAPIHandlers_ListAutomations(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	resp := request(t, app, http.MethodGet, "/automations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	empty := decodeBody[struct {
		Automations []models.WorkflowAutomation `json:"automations"`
		Count       int                         `json:"count"`
	}](t, resp)
	assert.Zero(t, empty.Count)
	assert.Empty(t, empty.Automations)

	createAutomation(t, app)
	createAutomation(t, app)

	resp = request(t, app, http.MethodGet, "/automations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	listed := decodeBody[struct {
		Automations []models.WorkflowAutomation `json:"automations"`
		Count       int                         `json:"count"`
	}](t, resp)
	assert.Equal(t, 2, listed.Count)
	assert.Len(t, listed.Automations, 2)
}

func TestAPIHandlers_UpdateAutomation(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	created := createAutomation(t, app)

	update := web.UpdateAutomationRequest{
		Name:    "Quote sent escalation",
		Trigger: web.TriggerRequest{ObjectType: "quote", ToStatus: "accepted"},
		Nodes: []web.NodeRequest{
			{
				ID:   "apply",
				Type: "action",
				Action: &web.ActionRequest{
					TargetType: "project",
					ActionType: "update_status",
					NewStatus:  "completed",
				},
			},
		},
	}

	resp := request(t, app, http.MethodPut, "/automations/"+created.ID, update)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decodeBody[models.WorkflowAutomation](t, resp)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Quote sent escalation", updated.Name)
	assert.Equal(t, models.Status("accepted"), updated.Trigger.ToStatus)
	assert.Len(t, updated.Nodes, 1)
	assert.Equal(t, "user-1", updated.CreatedBy)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	resp = request(t, app, http.MethodPut, "/automations/missing", update)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	bad := update
	bad.Nodes = []web.NodeRequest{{ID: "apply", Type: "action"}}

	resp = request(t, app, http.MethodPut, "/automations/"+created.ID, bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPIHandlers_DeleteAutomation(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	created := createAutomation(t, app)

	resp := request(t, app, http.MethodDelete, "/automations/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	resp = request(t, app, http.MethodGet, "/automations/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	resp = request(t, app, http.MethodDelete, "/automations/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPIHandlers_ToggleAutomation(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	created := createAutomation(t, app)
	require.True(t, created.IsActive)

	resp := request(t, app, http.MethodPost, "/automations/"+created.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	toggled := decodeBody[models.WorkflowAutomation](t, resp)
	assert.False(t, toggled.IsActive)

	resp = request(t, app, http.MethodPost, "/automations/"+created.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	toggled = decodeBody[models.WorkflowAutomation](t, resp)
	assert.True(t, toggled.IsActive)

	resp = request(t, app, http.MethodPost, "/automations/missing/toggle", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPIHandlers_GetAutomationExecutions(t *testing.T) {
	t.Parallel()

	app, store, _ := setupTestApp(t)

	created := createAutomation(t, app)

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"exec-1", "exec-2", "exec-3"} {
		require.NoError(t, store.InsertExecution(t.Context(), &models.WorkflowExecution{
			ID:           id,
			OrgID:        "org-1",
			AutomationID: created.ID,
			TriggeredBy:  "quote-1",
			TriggeredAt:  base.Add(time.Duration(i) * time.Minute),
			Status:       models.ExecutionStatusCompleted,
		}))
	}

	resp := request(t, app, http.MethodGet, "/automations/"+created.ID+"/executions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	all := decodeBody[struct {
		Executions []models.WorkflowExecution `json:"executions"`
		Count      int                        `json:"count"`
	}](t, resp)
	require.Equal(t, 3, all.Count)
	assert.Equal(t, "exec-3", all.Executions[0].ID)

	resp = request(t, app, http.MethodGet, "/automations/"+created.ID+"/executions?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	limited := decodeBody[struct {
		Executions []models.WorkflowExecution `json:"executions"`
		Count      int                        `json:"count"`
	}](t, resp)
	assert.Equal(t, 2, limited.Count)

	resp = request(t, app, http.MethodGet, "/automations/"+created.ID+"/executions?limit=banana", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = request(t, app, http.MethodGet, "/automations/missing/executions", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPIHandlers_IngestStatusChange(t *testing.T) {
	t.Parallel()

	app, _, publisher := setupTestApp(t)

	resp := request(t, app, http.MethodPost, "/ingest/status-change", web.IngestStatusChangeRequest{
		EntityType: "quote",
		EntityID:   "quote-7",
		OldStatus:  "draft",
		NewStatus:  "sent",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	accepted := decodeBody[struct {
		EventID string `json:"eventId"`
	}](t, resp)
	assert.Equal(t, "evt-1", accepted.EventID)

	require.Len(t, publisher.emits, 1)
	assert.Equal(t, "org-1", publisher.orgs[0])
	assert.Equal(t, models.EntityTypeQuote, publisher.emits[0].EntityType)
	assert.Equal(t, models.Status("sent"), publisher.emits[0].NewValue)

	// Vocabulary violations are refused before the bus sees them.
	resp = request(t, app, http.MethodPost, "/ingest/status-change", web.IngestStatusChangeRequest{
		EntityType: "quote",
		EntityID:   "quote-7",
		NewStatus:  "golden",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
	assert.Len(t, publisher.emits, 1)

	resp = request(t, app, http.MethodPost, "/ingest/status-change", web.IngestStatusChangeRequest{
		EntityType: "quote",
		NewStatus:  "sent",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPIHandlers_ReplayEvents(t *testing.T) {
	t.Parallel()

	app, store, publisher := setupTestApp(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"evt-a", "evt-b"} {
		require.NoError(t, store.InsertEvent(t.Context(), &models.DomainEvent{
			ID:            id,
			OrgID:         "org-1",
			Type:          string(events.EntityStatusChangedEvent),
			Status:        models.EventStatusPending,
			CorrelationID: id,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}

	claimed, err := store.ClaimPendingEvents(t.Context(), 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	for _, event := range claimed {
		require.NoError(t, store.MarkEventFailed(t.Context(), event.ID, "boom", time.Now().UTC()))
	}

	resp := request(t, app, http.MethodPost, "/ops/events/replay", web.ReplayEventsRequest{Limit: 0})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[struct {
		Replayed int64 `json:"replayed"`
	}](t, resp)
	assert.Equal(t, int64(2), result.Replayed)
	assert.Equal(t, 1, publisher.kicks)

	pending, err := store.CountPendingEvents(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)
}

func TestAPIHandlers_Cleanup(t *testing.T) {
	t.Parallel()

	app, store, _ := setupTestApp(t)

	old := time.Now().UTC().Add(-72 * time.Hour)
	for i, id := range []string{"evt-old-1", "evt-old-2"} {
		require.NoError(t, store.InsertEvent(t.Context(), &models.DomainEvent{
			ID:            id,
			OrgID:         "org-1",
			Type:          string(events.EntityStatusChangedEvent),
			Status:        models.EventStatusPending,
			CorrelationID: id,
			CreatedAt:     old.Add(time.Duration(i) * time.Minute),
		}))
	}

	claimed, err := store.ClaimPendingEvents(t.Context(), 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	for _, event := range claimed {
		require.NoError(t, store.MarkEventCompleted(t.Context(), event.ID, old))
	}

	require.NoError(t, store.InsertExecution(t.Context(), &models.WorkflowExecution{
		ID:           "exec-old",
		OrgID:        "org-1",
		AutomationID: "auto-1",
		TriggeredBy:  "quote-1",
		TriggeredAt:  old,
		Status:       models.ExecutionStatusCompleted,
	}))

	resp := request(t, app, http.MethodPost, "/ops/cleanup", web.CleanupRequest{
		EventRetentionHours:     24,
		ExecutionRetentionHours: 24,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[struct {
		EventsDeleted     int64 `json:"eventsDeleted"`
		ExecutionsDeleted int64 `json:"executionsDeleted"`
	}](t, resp)
	assert.Equal(t, int64(2), result.EventsDeleted)
	assert.Equal(t, int64(1), result.ExecutionsDeleted)
}

func TestAPIHandlers_EventStats(t *testing.T) {
	t.Parallel()

	app, store, _ := setupTestApp(t)

	now := time.Now().UTC()
	require.NoError(t, store.InsertEvent(t.Context(), &models.DomainEvent{
		ID:            "evt-recent",
		OrgID:         "org-1",
		Type:          string(events.EntityStatusChangedEvent),
		Status:        models.EventStatusPending,
		CorrelationID: "corr-1",
		CreatedAt:     now.Add(-2 * time.Hour),
	}))
	require.NoError(t, store.InsertEvent(t.Context(), &models.DomainEvent{
		ID:            "evt-stale",
		OrgID:         "org-1",
		Type:          string(events.EntityStatusChangedEvent),
		Status:        models.EventStatusPending,
		CorrelationID: "corr-2",
		CreatedAt:     now.Add(-30 * time.Hour),
	}))

	resp := request(t, app, http.MethodGet, "/ops/events/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	day := decodeBody[models.EventStats](t, resp)
	assert.Equal(t, int64(1), day.Total)

	resp = request(t, app, http.MethodGet, "/ops/events/stats?window=48h", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	wide := decodeBody[models.EventStats](t, resp)
	assert.Equal(t, int64(2), wide.Total)
	assert.Equal(t, int64(2), wide.ByStatus["pending"])

	resp = request(t, app, http.MethodGet, "/ops/events/stats?window=banana", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPIHandlers_ExecutionStats(t *testing.T) {
	t.Parallel()

	app, store, _ := setupTestApp(t)

	require.NoError(t, store.InsertExecution(t.Context(), &models.WorkflowExecution{
		ID:           "exec-1",
		OrgID:        "org-1",
		AutomationID: "auto-1",
		TriggeredBy:  "quote-1",
		TriggeredAt:  time.Now().UTC().Add(-time.Hour),
		Status:       models.ExecutionStatusCompleted,
	}))

	resp := request(t, app, http.MethodGet, "/ops/executions/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stats := decodeBody[models.ExecutionStats](t, resp)
	assert.Equal(t, int64(1), stats.Last24h["completed"])
	assert.Equal(t, int64(1), stats.Last7d["completed"])
}

func TestAPIHandlers_GetCorrelationChain(t *testing.T) {
	t.Parallel()

	app, store, _ := setupTestApp(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"evt-1", "evt-2"} {
		require.NoError(t, store.InsertEvent(t.Context(), &models.DomainEvent{
			ID:            id,
			OrgID:         "org-1",
			Type:          string(events.EntityStatusChangedEvent),
			Status:        models.EventStatusCompleted,
			CorrelationID: "corr-1",
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}

	resp := request(t, app, http.MethodGet, "/ops/events/correlation/corr-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	chain := decodeBody[struct {
		Events []models.DomainEvent `json:"events"`
		Count  int                  `json:"count"`
	}](t, resp)
	require.Equal(t, 2, chain.Count)
	assert.Equal(t, "evt-1", chain.Events[0].ID)
	assert.Equal(t, "evt-2", chain.Events[1].ID)
}

func TestAPIHandlers_SeedEntityAndCounts(t *testing.T) {
	t.Parallel()

	app, store, _ := setupTestApp(t)

	for i, status := range []string{"draft", "draft", "accepted"} {
		resp := request(t, app, http.MethodPost, "/ops/entities/seed", web.SeedEntityRequest{
			ID:     fmt.Sprintf("quote-%d", i+1),
			Type:   "quote",
			Status: status,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		_ = resp.Body.Close()
	}

	stored, err := store.EntityByID(t.Context(), "org-1", "quote-1")
	require.NoError(t, err)
	assert.Equal(t, models.Status("draft"), stored.Status)

	resp := request(t, app, http.MethodGet, "/ops/entities/counts?type=quote", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	counts := decodeBody[map[string]int64](t, resp)
	assert.Equal(t, int64(2), counts["draft"])
	assert.Equal(t, int64(1), counts["accepted"])

	resp = request(t, app, http.MethodGet, "/ops/entities/counts", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = request(t, app, http.MethodPost, "/ops/entities/seed", web.SeedEntityRequest{
		ID:     "bad-1",
		Type:   "order",
		Status: "draft",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPIHandlers_StoredOrgDetachedFromRequestBuffer(t *testing.T) {
	t.Parallel()

	app, store, _ := setupTestApp(t)

	created := createAutomation(t, app)

	resp := request(t, app, http.MethodPost, "/ops/entities/seed", web.SeedEntityRequest{
		ID:     "quote-1",
		Type:   "quote",
		Status: "draft",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	// Fiber reuses request buffers, so a later request from a same-length
	// org must not rewrite the owner of rows persisted earlier.
	req := httptest.NewRequest(http.MethodGet, "/automations", nil)
	req.Header.Set(web.OrgHeader, "org-2")

	later, err := app.Test(req)
	require.NoError(t, err)
	_ = later.Body.Close()

	stored, err := store.AutomationByID(t.Context(), "org-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "org-1", stored.OrgID)

	_, err = store.AutomationByID(t.Context(), "org-2", created.ID)
	require.Error(t, err, "the automation must stay invisible to other orgs")

	entity, err := store.EntityByID(t.Context(), "org-1", "quote-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", entity.OrgID)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
}
