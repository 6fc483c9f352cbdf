package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/statusflowhq/statusflow/pkg/models"
	"github.com/statusflowhq/statusflow/pkg/persistence"
)

const eventColumns = `
		id
	  , org_id
	  , event_type
	  , event_source
	  , payload
	  , status
	  , attempt_count
	  , correlation_id
	  , causation_id
	  , last_error
	  , created_at
	  , processed_at
	  , failed_at
`

// EventRepository handles domain event database operations.
type EventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *sql.DB, logger *slog.Logger) *EventRepository {
	return &EventRepository{db: db, logger: logger}
}

// Insert stores a new domain event.
func (r *EventRepository) Insert(ctx context.Context, event *models.DomainEvent) error {
	query := `
		INSERT INTO domain_events (id, org_id, event_type, event_source, payload, status,
			attempt_count, correlation_id, causation_id, last_error, created_at, processed_at, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.OrgID,
		event.Type,
		event.Source,
		event.Payload,
		string(event.Status),
		event.AttemptCount,
		event.CorrelationID,
		event.CausationID,
		event.LastError,
		event.CreatedAt,
		event.ProcessedAt,
		event.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// ClaimPending atomically moves up to limit oldest pending events to
// processing. FOR UPDATE SKIP LOCKED lets concurrent engines claim disjoint
// batches without blocking each other.
func (r *EventRepository) ClaimPending(ctx context.Context, limit int) ([]*models.DomainEvent, error) {
	query := `
		WITH picked AS (
			SELECT id
			FROM domain_events
			WHERE status = 'pending'
			ORDER BY created_at, id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE domain_events e
		SET status = 'processing',
			attempt_count = e.attempt_count + 1,
			claimed_at = NOW()
		FROM picked
		WHERE e.id = picked.id
		RETURNING e.id, e.org_id, e.event_type, e.event_source, e.payload, e.status,
			e.attempt_count, e.correlation_id, e.causation_id, e.last_error,
			e.created_at, e.processed_at, e.failed_at
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending events: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	claimed := make([]*models.DomainEvent, 0)

	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed event: %w", err)
		}

		claimed = append(claimed, event)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating claimed events: %w", err)
	}

	// UPDATE ... RETURNING does not guarantee row order.
	sort.Slice(claimed, func(i, j int) bool {
		if claimed[i].CreatedAt.Equal(claimed[j].CreatedAt) {
			return claimed[i].ID < claimed[j].ID
		}

		return claimed[i].CreatedAt.Before(claimed[j].CreatedAt)
	})

	return claimed, nil
}

// MarkCompleted moves a processing event to completed.
func (r *EventRepository) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE domain_events
		SET status = 'completed', processed_at = $2, claimed_at = NULL
		WHERE id = $1 AND status = 'processing'
	`

	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark event completed: %w", err)
	}

	return r.requireClaimed(ctx, "Complete", id, result)
}

// Release returns a processing event to pending, recording the handler error.
func (r *EventRepository) Release(ctx context.Context, id string, lastError string) error {
	query := `
		UPDATE domain_events
		SET status = 'pending', last_error = $2, claimed_at = NULL
		WHERE id = $1 AND status = 'processing'
	`

	result, err := r.db.ExecContext(ctx, query, id, lastError)
	if err != nil {
		return fmt.Errorf("failed to release event: %w", err)
	}

	return r.requireClaimed(ctx, "Release", id, result)
}

// MarkFailed moves an event to failed after its attempt budget is exhausted.
func (r *EventRepository) MarkFailed(ctx context.Context, id string, lastError string, at time.Time) error {
	query := `
		UPDATE domain_events
		SET status = 'failed', last_error = $2, failed_at = $3, claimed_at = NULL
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, lastError, at)
	if err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewEventError("Fail", id, persistence.ErrEventNotFound)
	}

	return nil
}

// CountPending returns the number of events waiting to be claimed.
func (r *EventRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM domain_events WHERE status = 'pending'").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending events: %w", err)
	}

	return count, nil
}

// ByCorrelation returns all events of a correlation chain, oldest first.
func (r *EventRepository) ByCorrelation(ctx context.Context, orgID, correlationID string) ([]*models.DomainEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM domain_events
		WHERE org_id = $1 AND correlation_id = $2
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, orgID, correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by correlation: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	events := make([]*models.DomainEvent, 0)

	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		events = append(events, event)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// ResetFailed moves up to limit failed events back to pending with a fresh
// attempt budget. An empty orgID resets across all organizations.
func (r *EventRepository) ResetFailed(ctx context.Context, orgID string, limit int) (int64, error) {
	query := `
		WITH picked AS (
			SELECT id
			FROM domain_events
			WHERE status = 'failed' AND ($1 = '' OR org_id = $1)
			ORDER BY created_at, id
			LIMIT $2
		)
		UPDATE domain_events e
		SET status = 'pending', attempt_count = 0, last_error = '', failed_at = NULL
		FROM picked
		WHERE e.id = picked.id
	`

	result, err := r.db.ExecContext(ctx, query, orgID, normalizeLimit(limit))
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed events: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

// ReleaseStale returns events claimed before the deadline to pending.
func (r *EventRepository) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	query := `
		UPDATE domain_events
		SET status = 'pending', claimed_at = NULL
		WHERE status = 'processing' AND claimed_at < $1
	`

	result, err := r.db.ExecContext(ctx, query, claimedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale events: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

// DeleteCompletedBefore removes up to limit completed events older than the
// cutoff. Failed events are never deleted here.
func (r *EventRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	query := `
		DELETE FROM domain_events
		WHERE id IN (
			SELECT id
			FROM domain_events
			WHERE status = 'completed' AND COALESCE(processed_at, created_at) < $1
			ORDER BY created_at, id
			LIMIT $2
		)
	`

	result, err := r.db.ExecContext(ctx, query, cutoff, normalizeLimit(limit))
	if err != nil {
		return 0, fmt.Errorf("failed to delete completed events: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

// Stats aggregates event counts created at or after since. An empty orgID
// spans all organizations.
func (r *EventRepository) Stats(ctx context.Context, orgID string, since time.Time) (*models.EventStats, error) {
	query := `
		SELECT status, event_type, COUNT(*)
		FROM domain_events
		WHERE ($1 = '' OR org_id = $1) AND created_at >= $2
		GROUP BY status, event_type
	`

	rows, err := r.db.QueryContext(ctx, query, orgID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query event stats: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	stats := &models.EventStats{
		ByStatus: make(map[string]int64),
		ByType:   make(map[string]int64),
	}

	for rows.Next() {
		var (
			status, eventType string
			count             int64
		)

		err := rows.Scan(&status, &eventType, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event stats: %w", err)
		}

		stats.Total += count
		stats.ByStatus[status] += count
		stats.ByType[eventType] += count
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating event stats: %w", err)
	}

	return stats, nil
}

// requireClaimed distinguishes a missing event from one that was not in the
// processing state after a guarded update matched no rows.
func (r *EventRepository) requireClaimed(ctx context.Context, op, id string, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected > 0 {
		return nil
	}

	var status string

	err = r.db.QueryRowContext(ctx, "SELECT status FROM domain_events WHERE id = $1", id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewEventError(op, id, persistence.ErrEventNotFound)
		}

		return fmt.Errorf("failed to query event status: %w", err)
	}

	return persistence.NewEventError(op, id, persistence.ErrEventNotClaimed)
}

func scanEvent(scanner interface {
	Scan(dest ...any) error
}) (*models.DomainEvent, error) {
	var (
		event  models.DomainEvent
		status string
	)

	err := scanner.Scan(
		&event.ID,
		&event.OrgID,
		&event.Type,
		&event.Source,
		&event.Payload,
		&status,
		&event.AttemptCount,
		&event.CorrelationID,
		&event.CausationID,
		&event.LastError,
		&event.CreatedAt,
		&event.ProcessedAt,
		&event.FailedAt,
	)
	if err != nil {
		return nil, err
	}

	event.Status = models.EventStatus(status)

	return &event, nil
}

// normalizeLimit maps the "no limit" convention onto SQL LIMIT.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return math.MaxInt32
	}

	return limit
}
