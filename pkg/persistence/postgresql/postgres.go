// Package postgresql provides PostgreSQL persistence for domain events,
// automations, executions and entity projections.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/statusflowhq/statusflow/pkg/models"
	"github.com/statusflowhq/statusflow/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	eventRepo      *EventRepository
	automationRepo *AutomationRepository
	executionRepo  *ExecutionRepository
	entityRepo     *EntityRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:             database,
		logger:         logger,
		eventRepo:      NewEventRepository(database, logger),
		automationRepo: NewAutomationRepository(database, logger),
		executionRepo:  NewExecutionRepository(database, logger),
		entityRepo:     NewEntityRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) InsertEvent(ctx context.Context, event *models.DomainEvent) error {
	return p.eventRepo.Insert(ctx, event)
}

func (p *Persistence) ClaimPendingEvents(ctx context.Context, limit int) ([]*models.DomainEvent, error) {
	return p.eventRepo.ClaimPending(ctx, limit)
}

func (p *Persistence) MarkEventCompleted(ctx context.Context, id string, at time.Time) error {
	return p.eventRepo.MarkCompleted(ctx, id, at)
}

func (p *Persistence) ReleaseEvent(ctx context.Context, id string, lastError string) error {
	return p.eventRepo.Release(ctx, id, lastError)
}

func (p *Persistence) MarkEventFailed(ctx context.Context, id string, lastError string, at time.Time) error {
	return p.eventRepo.MarkFailed(ctx, id, lastError, at)
}

func (p *Persistence) CountPendingEvents(ctx context.Context) (int64, error) {
	return p.eventRepo.CountPending(ctx)
}

func (p *Persistence) EventsByCorrelation(ctx context.Context, orgID, correlationID string) ([]*models.DomainEvent, error) {
	return p.eventRepo.ByCorrelation(ctx, orgID, correlationID)
}

func (p *Persistence) ResetFailedEvents(ctx context.Context, orgID string, limit int) (int64, error) {
	return p.eventRepo.ResetFailed(ctx, orgID, limit)
}

func (p *Persistence) ReleaseStaleEvents(ctx context.Context, claimedBefore time.Time) (int64, error) {
	return p.eventRepo.ReleaseStale(ctx, claimedBefore)
}

func (p *Persistence) DeleteCompletedEventsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	return p.eventRepo.DeleteCompletedBefore(ctx, cutoff, limit)
}

func (p *Persistence) EventStats(ctx context.Context, orgID string, since time.Time) (*models.EventStats, error) {
	return p.eventRepo.Stats(ctx, orgID, since)
}

func (p *Persistence) SaveAutomation(ctx context.Context, automation *models.WorkflowAutomation) error {
	return p.automationRepo.Save(ctx, automation)
}

func (p *Persistence) AutomationByID(ctx context.Context, orgID, id string) (*models.WorkflowAutomation, error) {
	return p.automationRepo.GetByID(ctx, orgID, id)
}

func (p *Persistence) AutomationsByOrg(ctx context.Context, orgID string) ([]*models.WorkflowAutomation, error) {
	return p.automationRepo.GetByOrg(ctx, orgID)
}

func (p *Persistence) ActiveAutomationsFor(ctx context.Context, orgID string, objectType models.EntityType) ([]*models.WorkflowAutomation, error) {
	return p.automationRepo.ActiveFor(ctx, orgID, objectType)
}

func (p *Persistence) DeleteAutomation(ctx context.Context, orgID, id string) error {
	return p.automationRepo.Delete(ctx, orgID, id)
}

func (p *Persistence) SetAutomationActive(ctx context.Context, orgID, id string, active bool) error {
	return p.automationRepo.SetActive(ctx, orgID, id, active)
}

func (p *Persistence) RecordAutomationTriggered(ctx context.Context, id string, at time.Time) error {
	return p.automationRepo.RecordTriggered(ctx, id, at)
}

func (p *Persistence) InsertExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	return p.executionRepo.Insert(ctx, execution)
}

func (p *Persistence) ExecutionByID(ctx context.Context, orgID, id string) (*models.WorkflowExecution, error) {
	return p.executionRepo.GetByID(ctx, orgID, id)
}

func (p *Persistence) UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	return p.executionRepo.Update(ctx, execution)
}

func (p *Persistence) ExecutionsByAutomation(ctx context.Context, orgID, automationID string, limit int) ([]*models.WorkflowExecution, error) {
	return p.executionRepo.ByAutomation(ctx, orgID, automationID, limit)
}

func (p *Persistence) CountExecutionsSince(ctx context.Context, orgID string, since time.Time) (int64, error) {
	return p.executionRepo.CountSince(ctx, orgID, since)
}

func (p *Persistence) ExecutionStats(ctx context.Context, orgID string, now time.Time) (*models.ExecutionStats, error) {
	return p.executionRepo.Stats(ctx, orgID, now)
}

func (p *Persistence) DeleteExecutionsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	return p.executionRepo.DeleteBefore(ctx, cutoff, limit)
}

func (p *Persistence) SaveEntity(ctx context.Context, entity *models.Entity) error {
	return p.entityRepo.Save(ctx, entity)
}

func (p *Persistence) EntityByID(ctx context.Context, orgID, id string) (*models.Entity, error) {
	return p.entityRepo.GetByID(ctx, orgID, id)
}

func (p *Persistence) UpdateEntity(ctx context.Context, entity *models.Entity) error {
	return p.entityRepo.Update(ctx, entity)
}

func (p *Persistence) CountEntitiesByStatus(ctx context.Context, orgID string, entityType models.EntityType) (map[models.Status]int64, error) {
	return p.entityRepo.CountByStatus(ctx, orgID, entityType)
}
