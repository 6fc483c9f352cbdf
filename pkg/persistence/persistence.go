// Package persistence provides the data storage abstraction layer for
// domain events, automations, executions and entity projections.
package persistence

import (
	"context"
	"time"

	"github.com/statusflowhq/statusflow/pkg/models"
)

// EventRepository stores domain events and drives the claim/retry cycle.
type EventRepository interface {
	InsertEvent(ctx context.Context, event *models.DomainEvent) error

	// ClaimPendingEvents atomically moves up to limit oldest pending events
	// to processing, incrementing their attempt count. Two concurrent
	// claims never return the same event.
	ClaimPendingEvents(ctx context.Context, limit int) ([]*models.DomainEvent, error)

	MarkEventCompleted(ctx context.Context, id string, at time.Time) error

	// ReleaseEvent returns a processing event to pending so a later pass
	// retries it, recording the handler error.
	ReleaseEvent(ctx context.Context, id string, lastError string) error

	MarkEventFailed(ctx context.Context, id string, lastError string, at time.Time) error

	CountPendingEvents(ctx context.Context) (int64, error)
	EventsByCorrelation(ctx context.Context, orgID, correlationID string) ([]*models.DomainEvent, error)

	// ResetFailedEvents moves up to limit failed events back to pending
	// with a fresh attempt budget. An empty orgID spans all organizations.
	// Returns the number reset.
	ResetFailedEvents(ctx context.Context, orgID string, limit int) (int64, error)

	// ReleaseStaleEvents returns events claimed before the deadline to
	// pending. Recovers work orphaned by a crashed engine.
	ReleaseStaleEvents(ctx context.Context, claimedBefore time.Time) (int64, error)

	// DeleteCompletedEventsBefore removes up to limit completed events
	// older than the cutoff. Failed events are kept for inspection.
	DeleteCompletedEventsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)

	// EventStats aggregates counts since the given time. An empty orgID
	// spans all organizations.
	EventStats(ctx context.Context, orgID string, since time.Time) (*models.EventStats, error)
}

// AutomationRepository stores workflow automations.
type AutomationRepository interface {
	SaveAutomation(ctx context.Context, automation *models.WorkflowAutomation) error
	AutomationByID(ctx context.Context, orgID, id string) (*models.WorkflowAutomation, error)
	AutomationsByOrg(ctx context.Context, orgID string) ([]*models.WorkflowAutomation, error)

	// ActiveAutomationsFor returns the active automations whose trigger
	// watches the given object type, in creation order.
	ActiveAutomationsFor(ctx context.Context, orgID string, objectType models.EntityType) ([]*models.WorkflowAutomation, error)

	DeleteAutomation(ctx context.Context, orgID, id string) error
	SetAutomationActive(ctx context.Context, orgID, id string, active bool) error

	// RecordAutomationTriggered bumps the trigger counter and timestamp
	// after a successful run.
	RecordAutomationTriggered(ctx context.Context, id string, at time.Time) error
}

// ExecutionRepository stores the audit log of automation runs.
type ExecutionRepository interface {
	InsertExecution(ctx context.Context, execution *models.WorkflowExecution) error
	ExecutionByID(ctx context.Context, orgID, id string) (*models.WorkflowExecution, error)
	UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error
	ExecutionsByAutomation(ctx context.Context, orgID, automationID string, limit int) ([]*models.WorkflowExecution, error)

	// CountExecutionsSince counts executions triggered for the organization
	// at or after since. Rate limiting reads this, so it must reflect rows
	// already persisted rather than any in-memory view.
	CountExecutionsSince(ctx context.Context, orgID string, since time.Time) (int64, error)

	ExecutionStats(ctx context.Context, orgID string, now time.Time) (*models.ExecutionStats, error)

	// DeleteExecutionsBefore removes up to limit terminal executions
	// triggered before the cutoff.
	DeleteExecutionsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// EntityRepository stores the entity projections automations read and patch.
type EntityRepository interface {
	SaveEntity(ctx context.Context, entity *models.Entity) error
	EntityByID(ctx context.Context, orgID, id string) (*models.Entity, error)
	UpdateEntity(ctx context.Context, entity *models.Entity) error
	CountEntitiesByStatus(ctx context.Context, orgID string, entityType models.EntityType) (map[models.Status]int64, error)
}

type Persistence interface {
	EventRepository
	AutomationRepository
	ExecutionRepository
	EntityRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
