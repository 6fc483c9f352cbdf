package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/statusflowhq/statusflow/pkg/cache"
	"github.com/statusflowhq/statusflow/pkg/events"
	"github.com/statusflowhq/statusflow/pkg/models"
	"github.com/statusflowhq/statusflow/pkg/persistence"
)

// defaultStatsWindow bounds event statistics when the caller does not pick a
// window.
const defaultStatsWindow = 24 * time.Hour

// StatusChangePublisher is the slice of the event bus the operations surface
// needs: intake publishing plus a scheduling kick after replays.
type StatusChangePublisher interface {
	EmitStatusChange(ctx context.Context, orgID string, change events.StatusChange, source, correlationID string) (string, error)
	Kick(delay time.Duration)
}

// Operations is the operational surface of the engine: statistics, failed
// event replay, retention cleanup and the HTTP intake twin of the queue
// receiver.
type Operations struct {
	persistence persistence.Persistence
	publisher   StatusChangePublisher
	counters    cache.CounterCache
	validator   *validator.Validate
}

// NewOperations creates a new operations service.
func NewOperations(persistence persistence.Persistence, publisher StatusChangePublisher) *Operations {
	return &Operations{
		persistence: persistence,
		publisher:   publisher,
		validator:   validator.New(),
	}
}

// WithCounters attaches a counter cache. StatusCounts then serves cached
// aggregates kept fresh by the executor, falling back to the store when the
// cache has nothing for the requested type.
func (s *Operations) WithCounters(counters cache.CounterCache) *Operations {
	s.counters = counters

	return s
}

// EventStats aggregates event counts for an organization over the window
// ending now. A zero window falls back to the default.
func (s *Operations) EventStats(ctx context.Context, orgID string, window time.Duration) (*models.EventStats, error) {
	if window <= 0 {
		window = defaultStatsWindow
	}

	stats, err := s.persistence.EventStats(ctx, orgID, time.Now().UTC().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate event stats: %w", err)
	}

	return stats, nil
}

// ExecutionStats aggregates execution counts for an organization over the
// trailing day and week.
func (s *Operations) ExecutionStats(ctx context.Context, orgID string) (*models.ExecutionStats, error) {
	stats, err := s.persistence.ExecutionStats(ctx, orgID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate execution stats: %w", err)
	}

	return stats, nil
}

// EventsByCorrelation returns the causal chain of events sharing a
// correlation ID, oldest first.
func (s *Operations) EventsByCorrelation(ctx context.Context, orgID, correlationID string) ([]*models.DomainEvent, error) {
	if correlationID == "" {
		return nil, NewValidationError(
			"EventsByCorrelation",
			"CORRELATION_ID_REQUIRED",
			"correlation id cannot be empty",
			ErrInvalidRequest,
		)
	}

	chain, err := s.persistence.EventsByCorrelation(ctx, orgID, correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load correlation chain: %w", err)
	}

	return chain, nil
}

// ReplayFailedEvents moves up to limit failed events back to pending with a
// fresh attempt budget and kicks the scheduler so they run without waiting
// for the next sweep. Returns the number of events replayed.
func (s *Operations) ReplayFailedEvents(ctx context.Context, orgID string, limit int) (int64, error) {
	reset, err := s.persistence.ResetFailedEvents(ctx, orgID, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to replay failed events: %w", err)
	}

	if reset > 0 && s.publisher != nil {
		s.publisher.Kick(0)
	}

	return reset, nil
}

// CleanupOldEvents deletes up to limit completed events older than the
// retention window. Failed events are never deleted here; they stay visible
// until replayed or inspected.
func (s *Operations) CleanupOldEvents(ctx context.Context, retention time.Duration, limit int) (int64, error) {
	if retention <= 0 {
		return 0, NewValidationError(
			"CleanupOldEvents",
			"INVALID_RETENTION",
			"retention must be positive",
			ErrInvalidRequest,
		)
	}

	deleted, err := s.persistence.DeleteCompletedEventsBefore(ctx, time.Now().UTC().Add(-retention), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up events: %w", err)
	}

	return deleted, nil
}

// CleanupOldExecutions deletes up to limit terminal executions older than the
// retention window. Running executions always survive.
func (s *Operations) CleanupOldExecutions(ctx context.Context, retention time.Duration, limit int) (int64, error) {
	if retention <= 0 {
		return 0, NewValidationError(
			"CleanupOldExecutions",
			"INVALID_RETENTION",
			"retention must be positive",
			ErrInvalidRequest,
		)
	}

	deleted, err := s.persistence.DeleteExecutionsBefore(ctx, time.Now().UTC().Add(-retention), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up executions: %w", err)
	}

	return deleted, nil
}

// IngestStatusChangeRequest is an externally reported status transition
// entering through the HTTP surface.
type IngestStatusChangeRequest struct {
	OrgID         string `json:"orgId"      validate:"required"`
	EntityType    string `json:"entityType" validate:"required"`
	EntityID      string `json:"entityId"   validate:"required"`
	OldStatus     string `json:"oldStatus"`
	NewStatus     string `json:"newStatus"  validate:"required"`
	CorrelationID string `json:"correlationId"`
}

// IngestStatusChange records a status change reported over HTTP and hands it
// to the event bus. Returns the stored event's ID so callers can follow the
// correlation chain.
func (s *Operations) IngestStatusChange(ctx context.Context, req IngestStatusChangeRequest) (string, error) {
	if err := s.validateIngest(req); err != nil {
		return "", err
	}

	change := events.NewStatusChange(
		models.EntityType(req.EntityType),
		req.EntityID,
		models.Status(req.OldStatus),
		models.Status(req.NewStatus),
	)

	eventID, err := s.publisher.EmitStatusChange(ctx, req.OrgID, change, events.SourceAPI, req.CorrelationID)
	if err != nil {
		return "", fmt.Errorf("failed to ingest status change: %w", err)
	}

	return eventID, nil
}

func (s *Operations) validateIngest(req IngestStatusChangeRequest) error {
	if err := s.validator.Struct(req); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			return NewValidationError(
				"IngestStatusChange",
				"INVALID_FIELD",
				fmt.Sprintf("field %s failed on the %s rule", fields[0].Field(), fields[0].Tag()),
				ErrInvalidStatusChange,
			)
		}

		return fmt.Errorf("failed to validate status change: %w", err)
	}

	entityType := models.EntityType(req.EntityType)
	if !models.ValidEntityType(entityType) {
		return NewValidationError(
			"IngestStatusChange",
			"UNKNOWN_ENTITY_TYPE",
			fmt.Sprintf("unknown entity type %q", req.EntityType),
			ErrInvalidStatusChange,
		)
	}

	if !models.ValidStatus(entityType, models.Status(req.NewStatus)) {
		return NewValidationError(
			"IngestStatusChange",
			"INVALID_STATUS",
			fmt.Sprintf("status %q is not valid for %s", req.NewStatus, req.EntityType),
			ErrInvalidStatusChange,
		)
	}

	// An empty old status is allowed: first transitions have no origin.
	if req.OldStatus != "" && !models.ValidStatus(entityType, models.Status(req.OldStatus)) {
		return NewValidationError(
			"IngestStatusChange",
			"INVALID_STATUS",
			fmt.Sprintf("status %q is not valid for %s", req.OldStatus, req.EntityType),
			ErrInvalidStatusChange,
		)
	}

	return nil
}

// SeedEntity upserts an entity projection. Development and backfill helper:
// production projections arrive through the entity services' own pipelines.
func (s *Operations) SeedEntity(ctx context.Context, entity *models.Entity) error {
	if entity == nil {
		return ErrEntityNil
	}

	if err := s.validator.Struct(entity); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			return NewValidationError(
				"SeedEntity",
				"INVALID_FIELD",
				fmt.Sprintf("field %s failed on the %s rule", fields[0].Field(), fields[0].Tag()),
				ErrInvalidEntity,
			)
		}

		return fmt.Errorf("failed to validate entity: %w", err)
	}

	if !models.ValidEntityType(entity.Type) {
		return NewValidationError(
			"SeedEntity",
			"UNKNOWN_ENTITY_TYPE",
			fmt.Sprintf("unknown entity type %q", entity.Type),
			ErrInvalidEntity,
		)
	}

	if entity.Status != "" && !models.ValidStatus(entity.Type, entity.Status) {
		return NewValidationError(
			"SeedEntity",
			"INVALID_STATUS",
			fmt.Sprintf("status %q is not valid for %s", entity.Status, entity.Type),
			ErrInvalidEntity,
		)
	}

	entity.UpdatedAt = time.Now().UTC()

	if err := s.persistence.SaveEntity(ctx, entity); err != nil {
		return fmt.Errorf("failed to seed entity: %w", err)
	}

	return nil
}

// StatusCounts returns entity counts grouped by status for a dashboard tile.
func (s *Operations) StatusCounts(ctx context.Context, orgID string, entityType models.EntityType) (map[models.Status]int64, error) {
	if !models.ValidEntityType(entityType) {
		return nil, NewValidationError(
			"StatusCounts",
			"UNKNOWN_ENTITY_TYPE",
			fmt.Sprintf("unknown entity type %q", entityType),
			ErrInvalidRequest,
		)
	}

	if s.counters != nil {
		cached, err := s.counters.StatusCounts(ctx, orgID, entityType)
		if err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	counts, err := s.persistence.CountEntitiesByStatus(ctx, orgID, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to count entities: %w", err)
	}

	if s.counters != nil && len(counts) > 0 {
		// Best effort. A failed refresh only means the next read hits the
		// store again.
		_ = s.counters.RefreshStatusCounts(ctx, orgID, entityType, counts)
	}

	return counts, nil
}
