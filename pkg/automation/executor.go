package automation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/statusflowhq/statusflow/pkg/cache"
	"github.com/statusflowhq/statusflow/pkg/eventbus"
	"github.com/statusflowhq/statusflow/pkg/events"
	"github.com/statusflowhq/statusflow/pkg/models"
	"github.com/statusflowhq/statusflow/pkg/otelhelper"
	"github.com/statusflowhq/statusflow/pkg/persistence"
	"github.com/statusflowhq/statusflow/pkg/scheduler"
)

const executeJobName = "automation:execute"

// TriggerResult reports what one entry-point invocation did.
type TriggerResult struct {
	// Triggered is the number of executions scheduled.
	Triggered int

	// RecursionLimited is set when the cascade chain hit the depth cutoff;
	// nothing was scheduled.
	RecursionLimited bool

	// RateLimited is set when the org exhausted its execution budget for
	// the trailing window; the whole batch was suppressed.
	RateLimited bool
}

// ExecutionRequest carries one scheduled automation run.
type ExecutionRequest struct {
	ExecutionID    string
	AutomationID   string
	OrgID          string
	ObjectType     models.EntityType
	ObjectID       string
	ExecutionChain []string
	RecursionDepth int
	CorrelationID  string
	CausationID    string
}

// Executor interprets automation graphs in response to status-change
// events. It owns the safety guards: recursion depth, chain loop detection
// and the per-org rate limit all gate here, before any work is scheduled.
type Executor struct {
	store     persistence.Persistence
	bus       *eventbus.Bus
	matcher   *Matcher
	scheduler scheduler.Scheduler
	counters  cache.CounterCache
	logger    *slog.Logger
	tracer    trace.Tracer
	guard     GuardConfig
}

func NewExecutor(
	store persistence.Persistence,
	bus *eventbus.Bus,
	matcher *Matcher,
	sched scheduler.Scheduler,
	counters cache.CounterCache,
	logger *slog.Logger,
	guard GuardConfig,
) *Executor {
	return &Executor{
		store:     store,
		bus:       bus,
		matcher:   matcher,
		scheduler: sched,
		counters:  counters,
		logger:    logger.With("module", "executor"),
		tracer:    otel.Tracer("statusflow/automation"),
		guard:     guard.withDefaults(),
	}
}

// EventHandler adapts the executor's entry point to the bus handler
// contract. Guard verdicts are not errors: a suppressed batch still
// completes its event.
func (e *Executor) EventHandler() eventbus.Handler {
	return func(ctx context.Context, event *models.DomainEvent) error {
		_, err := e.HandleStatusChange(ctx, event)

		return err
	}
}

// HandleStatusChange is the executor's entry point: it decodes the status
// change, applies the recursion and rate guards, matches automations and
// schedules one execution per surviving match.
func (e *Executor) HandleStatusChange(ctx context.Context, event *models.DomainEvent) (TriggerResult, error) {
	change, err := events.DecodeStatusChange(event.Payload)
	if err != nil {
		return TriggerResult{}, err
	}

	ctx, span := e.tracer.Start(ctx, "automation.match", trace.WithAttributes(
		attribute.String(otelhelper.EventIDKey, event.ID),
		attribute.String(otelhelper.OrgIDKey, event.OrgID),
		attribute.String(otelhelper.EntityTypeKey, string(change.EntityType)),
		attribute.String(otelhelper.EntityIDKey, change.EntityID)))
	defer span.End()

	logger := e.logger.With(
		"event_id", event.ID,
		"org_id", event.OrgID,
		"entity_type", change.EntityType,
		"entity_id", change.EntityID)

	chain := change.Metadata.ExecutionChain
	depth := change.Metadata.RecursionDepth

	if e.guard.recursionExceeded(depth) {
		logger.WarnContext(ctx, "Cascade recursion limit reached, nothing scheduled",
			"depth", depth,
			"chain", chain)

		return TriggerResult{RecursionLimited: true}, nil
	}

	matches, err := e.matcher.FindMatching(ctx, event.OrgID, change.EntityType, change.OldValue, change.NewValue)
	if err != nil {
		return TriggerResult{}, err
	}

	if len(matches) == 0 {
		return TriggerResult{}, nil
	}

	limited, err := e.guard.rateExceeded(ctx, e.store, event.OrgID, time.Now().UTC())
	if err != nil {
		return TriggerResult{}, err
	}

	if limited {
		logger.WarnContext(ctx, "Execution rate limit reached, trigger batch aborted",
			"window", e.guard.RateLimitWindow,
			"limit", e.guard.MaxExecutionsPerWindow)

		return TriggerResult{RateLimited: true}, nil
	}

	var result TriggerResult

	for _, matched := range matches {
		if loopDetected(chain, matched.ID) {
			if err := e.recordLoopSkip(ctx, event, matched, change, chain, depth); err != nil {
				return result, err
			}

			logger.InfoContext(ctx, "Loop detected, automation skipped", "automation_id", matched.ID)

			continue
		}

		if err := e.scheduleExecution(ctx, event, matched, change, chain, depth); err != nil {
			return result, err
		}

		result.Triggered++
	}

	return result, nil
}

func (e *Executor) recordLoopSkip(ctx context.Context, event *models.DomainEvent, automation *models.WorkflowAutomation, change events.StatusChange, chain []string, depth int) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate execution id: %w", err)
	}

	now := time.Now().UTC()
	execution := &models.WorkflowExecution{
		ID:             id.String(),
		OrgID:          event.OrgID,
		AutomationID:   automation.ID,
		TriggeredBy:    change.EntityID,
		TriggeredAt:    now,
		Status:         models.ExecutionStatusSkipped,
		ExecutionChain: chain,
		RecursionDepth: depth,
		CompletedAt:    &now,
		Error:          "loop detected: automation already executed in this chain",
	}

	return e.store.InsertExecution(ctx, execution)
}

func (e *Executor) scheduleExecution(ctx context.Context, event *models.DomainEvent, automation *models.WorkflowAutomation, change events.StatusChange, chain []string, depth int) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate execution id: %w", err)
	}

	newChain := make([]string, 0, len(chain)+1)
	newChain = append(newChain, chain...)
	newChain = append(newChain, automation.ID)

	execution := &models.WorkflowExecution{
		ID:             id.String(),
		OrgID:          event.OrgID,
		AutomationID:   automation.ID,
		TriggeredBy:    change.EntityID,
		TriggeredAt:    time.Now().UTC(),
		Status:         models.ExecutionStatusRunning,
		NodesExecuted:  []models.NodeOutcome{},
		ExecutionChain: newChain,
		RecursionDepth: depth,
	}

	if err := e.store.InsertExecution(ctx, execution); err != nil {
		return err
	}

	triggered := events.Triggered{AutomationRecord: events.AutomationRecord{
		AutomationID: automation.ID,
		ExecutionID:  execution.ID,
		EntityType:   change.EntityType,
		EntityID:     change.EntityID,
	}}

	if _, err := e.bus.Publish(ctx, event.OrgID, triggered, events.SourceEngine, event.CorrelationID, event.ID); err != nil {
		// Lifecycle events are observability only; the run proceeds.
		e.logger.WarnContext(ctx, "Failed to publish automation.triggered event",
			"error", err,
			"automation_id", automation.ID)
	}

	req := ExecutionRequest{
		ExecutionID:    execution.ID,
		AutomationID:   automation.ID,
		OrgID:          event.OrgID,
		ObjectType:     change.EntityType,
		ObjectID:       change.EntityID,
		ExecutionChain: newChain,
		RecursionDepth: depth + 1,
		CorrelationID:  event.CorrelationID,
		CausationID:    event.ID,
	}

	e.scheduler.Schedule(executeJobName, 0, func(ctx context.Context) {
		e.ExecuteAutomation(ctx, req)
	})

	return nil
}

// ExecuteAutomation interprets one automation's node graph against the
// triggering entity. Runs as a scheduled job: outcomes land on the
// execution row, never on a caller.
func (e *Executor) ExecuteAutomation(ctx context.Context, req ExecutionRequest) {
	ctx, span := e.tracer.Start(ctx, "automation.execute", trace.WithAttributes(
		attribute.String(otelhelper.AutomationIDKey, req.AutomationID),
		attribute.String(otelhelper.ExecutionIDKey, req.ExecutionID),
		attribute.String(otelhelper.OrgIDKey, req.OrgID),
		attribute.Int(otelhelper.RecursionDepthKey, req.RecursionDepth)))
	defer span.End()

	logger := e.logger.With(
		"execution_id", req.ExecutionID,
		"automation_id", req.AutomationID,
		"org_id", req.OrgID)

	execution, err := e.store.ExecutionByID(ctx, req.OrgID, req.ExecutionID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load execution record", "error", err)

		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "Automation run panicked",
				"panic", r,
				"stack", string(debug.Stack()))
			otelhelper.SetError(span, fmt.Errorf("panic: %v", r))
			e.failExecution(ctx, execution, req, fmt.Sprintf("panic: %v", r), logger)
		}
	}()

	e.run(ctx, execution, req, logger)
}

func (e *Executor) run(ctx context.Context, execution *models.WorkflowExecution, req ExecutionRequest, logger *slog.Logger) {
	automation, err := e.store.AutomationByID(ctx, req.OrgID, req.AutomationID)
	if err != nil {
		if persistence.IsAutomationNotFound(err) {
			e.failExecution(ctx, execution, req, "automation not found: "+req.AutomationID, logger)
		} else {
			e.failExecution(ctx, execution, req, "failed to load automation: "+err.Error(), logger)
		}

		return
	}

	entity, err := e.store.EntityByID(ctx, req.OrgID, req.ObjectID)
	if err != nil {
		if persistence.IsEntityNotFound(err) {
			e.failExecution(ctx, execution, req, "triggering entity not found: "+req.ObjectID, logger)
		} else {
			e.failExecution(ctx, execution, req, "failed to load triggering entity: "+err.Error(), logger)
		}

		return
	}

	if len(automation.Nodes) == 0 {
		e.completeExecution(ctx, execution, automation, req, logger)

		return
	}

	visited := make(map[string]bool)
	currentID := automation.Nodes[0].ID

	for currentID != "" {
		if visited[currentID] {
			e.failExecution(ctx, execution, req, "node cycle detected at "+currentID, logger)

			return
		}

		visited[currentID] = true

		node := automation.FindNode(currentID)
		if node == nil {
			// A dangling pointer ends the walk like a missing next id.
			break
		}

		switch {
		case node.IsCondition() && node.Condition != nil:
			met := evalCondition(node.Condition, entity)
			execution.RecordNode(node.ID, models.OutcomeSuccess, "")

			if met {
				currentID = deref(node.NextNodeID)
			} else {
				currentID = deref(node.ElseNodeID)
			}

		case node.IsAction() && node.Action != nil:
			result, message := e.runAction(ctx, node.Action, entity, req, logger)
			execution.RecordNode(node.ID, result, message)

			if result == models.OutcomeFailed {
				e.failExecution(ctx, execution, req, message, logger)

				return
			}

			currentID = deref(node.NextNodeID)

		default:
			e.failExecution(ctx, execution, req, fmt.Sprintf("node %s is neither condition nor action", node.ID), logger)

			return
		}

		if err := e.store.UpdateExecution(ctx, execution); err != nil {
			logger.ErrorContext(ctx, "Failed to persist node outcome", "error", err)
			e.failExecution(ctx, execution, req, "failed to persist node outcome: "+err.Error(), logger)

			return
		}
	}

	e.completeExecution(ctx, execution, automation, req, logger)
}

// runAction applies an update_status action. Soft resolution failures skip
// the node; an illegal status value or a storage fault fails it, which
// halts the execution.
func (e *Executor) runAction(ctx context.Context, action *models.ActionSpec, trigger *models.Entity, req ExecutionRequest, logger *slog.Logger) (models.OutcomeResult, string) {
	if action.ActionType != models.ActionTypeUpdateStatus {
		return models.OutcomeFailed, fmt.Sprintf("unsupported action type %q", action.ActionType)
	}

	target, err := e.resolveTarget(ctx, trigger, action.TargetType)
	if err != nil {
		return models.OutcomeFailed, "failed to resolve target: " + err.Error()
	}

	if target == nil {
		logger.InfoContext(ctx, "Action target not resolved, node skipped", "target_type", action.TargetType)

		return models.OutcomeSkipped, fmt.Sprintf("%s target not resolved", action.TargetType)
	}

	if !models.ValidStatus(target.Type, action.NewStatus) {
		return models.OutcomeFailed, fmt.Sprintf("status %q is not valid for %s", action.NewStatus, target.Type)
	}

	previous := target.Status
	now := time.Now().UTC()
	target.Status = action.NewStatus
	applyStamp(target, previous, now)
	target.UpdatedAt = now

	if err := e.store.UpdateEntity(ctx, target); err != nil {
		return models.OutcomeFailed, "failed to patch target status: " + err.Error()
	}

	e.refreshCounters(ctx, target, logger)

	if previous != action.NewStatus {
		if err := e.emitCascade(ctx, target, previous, req); err != nil {
			return models.OutcomeFailed, "failed to emit cascade event: " + err.Error()
		}

		logger.InfoContext(ctx, "Status patched",
			"target_type", target.Type,
			"target_id", target.ID,
			"from_status", previous,
			"to_status", target.Status)
	}

	return models.OutcomeSuccess, ""
}

// applyStamp records terminal-transition timestamps when the status moved
// into the terminal value: completion for projects and tasks, acceptance
// for quotes, payment for invoices.
func applyStamp(entity *models.Entity, previous models.Status, now time.Time) {
	if entity.Status == previous {
		return
	}

	switch {
	case entity.Type == models.EntityTypeProject && entity.Status == "completed",
		entity.Type == models.EntityTypeTask && entity.Status == "completed":
		entity.CompletedAt = &now
	case entity.Type == models.EntityTypeQuote && entity.Status == "accepted":
		entity.AcceptedAt = &now
	case entity.Type == models.EntityTypeInvoice && entity.Status == "paid":
		entity.PaidAt = &now
	}
}

func (e *Executor) emitCascade(ctx context.Context, target *models.Entity, previous models.Status, req ExecutionRequest) error {
	change := events.StatusChange{
		EntityType: target.Type,
		EntityID:   target.ID,
		Field:      "status",
		OldValue:   previous,
		NewValue:   target.Status,
		Metadata: events.CascadeMeta{
			ExecutionChain: req.ExecutionChain,
			RecursionDepth: req.RecursionDepth,
			IsCascade:      true,
		},
	}

	_, err := e.bus.Publish(ctx, target.OrgID, change, events.SourceEngine, req.CorrelationID, req.CausationID)

	return err
}

func (e *Executor) refreshCounters(ctx context.Context, target *models.Entity, logger *slog.Logger) {
	counts, err := e.store.CountEntitiesByStatus(ctx, target.OrgID, target.Type)
	if err != nil {
		logger.WarnContext(ctx, "Failed to count entities for counter refresh", "error", err)

		return
	}

	if err := e.counters.RefreshStatusCounts(ctx, target.OrgID, target.Type, counts); err != nil {
		logger.WarnContext(ctx, "Failed to refresh status counters", "error", err)
	}
}

func (e *Executor) completeExecution(ctx context.Context, execution *models.WorkflowExecution, automation *models.WorkflowAutomation, req ExecutionRequest, logger *slog.Logger) {
	now := time.Now().UTC()

	if err := e.store.RecordAutomationTriggered(ctx, automation.ID, now); err != nil {
		logger.WarnContext(ctx, "Failed to bump automation trigger counter", "error", err)
	}

	execution.Status = models.ExecutionStatusCompleted
	execution.CompletedAt = &now

	if err := e.store.UpdateExecution(ctx, execution); err != nil {
		logger.ErrorContext(ctx, "Failed to persist completed execution", "error", err)

		return
	}

	logger.InfoContext(ctx, "Automation completed", "nodes_executed", len(execution.NodesExecuted))
	e.publishLifecycle(ctx, execution, req, "", logger)
}

func (e *Executor) failExecution(ctx context.Context, execution *models.WorkflowExecution, req ExecutionRequest, message string, logger *slog.Logger) {
	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusFailed
	execution.Error = message
	execution.CompletedAt = &now

	if err := e.store.UpdateExecution(ctx, execution); err != nil {
		logger.ErrorContext(ctx, "Failed to persist failed execution", "error", err)
	}

	logger.ErrorContext(ctx, "Automation failed", "reason", message)
	e.publishLifecycle(ctx, execution, req, message, logger)
}

func (e *Executor) publishLifecycle(ctx context.Context, execution *models.WorkflowExecution, req ExecutionRequest, errMessage string, logger *slog.Logger) {
	record := events.AutomationRecord{
		AutomationID: execution.AutomationID,
		ExecutionID:  execution.ID,
		EntityType:   req.ObjectType,
		EntityID:     req.ObjectID,
		Error:        errMessage,
	}

	if _, err := e.bus.Publish(ctx, execution.OrgID, record, events.SourceEngine, req.CorrelationID, req.CausationID); err != nil {
		logger.WarnContext(ctx, "Failed to publish automation lifecycle event", "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
