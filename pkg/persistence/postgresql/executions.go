package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/statusflowhq/statusflow/pkg/models"
	"github.com/statusflowhq/statusflow/pkg/persistence"
)

const executionColumns = `
		id
	  , org_id
	  , automation_id
	  , triggered_by
	  , triggered_at
	  , status
	  , nodes_executed
	  , execution_chain
	  , recursion_depth
	  , completed_at
	  , error_message
`

// ExecutionRepository handles execution audit log database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Insert stores a new execution record.
func (r *ExecutionRepository) Insert(ctx context.Context, execution *models.WorkflowExecution) error {
	nodesJSON, chainJSON, err := marshalExecutionState(execution)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO executions (id, org_id, automation_id, triggered_by, triggered_at,
			status, nodes_executed, execution_chain, recursion_depth, completed_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.OrgID,
		execution.AutomationID,
		execution.TriggeredBy,
		execution.TriggeredAt,
		string(execution.Status),
		nodesJSON,
		chainJSON,
		execution.RecursionDepth,
		execution.CompletedAt,
		execution.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, orgID, id string) (*models.WorkflowExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE org_id = $1 AND id = $2
	`

	row := r.db.QueryRowContext(ctx, query, orgID, id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// Update persists the mutable progress of a run. Identity and trigger
// columns never change after Insert.
func (r *ExecutionRepository) Update(ctx context.Context, execution *models.WorkflowExecution) error {
	nodesJSON, chainJSON, err := marshalExecutionState(execution)
	if err != nil {
		return err
	}

	query := `
		UPDATE executions
		SET status = $2, nodes_executed = $3, execution_chain = $4,
			recursion_depth = $5, completed_at = $6, error_message = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID,
		string(execution.Status),
		nodesJSON,
		chainJSON,
		execution.RecursionDepth,
		execution.CompletedAt,
		execution.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	return nil
}

// ByAutomation returns up to limit executions of an automation, newest first.
func (r *ExecutionRepository) ByAutomation(ctx context.Context, orgID, automationID string, limit int) ([]*models.WorkflowExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE org_id = $1 AND automation_id = $2
		ORDER BY triggered_at DESC, id DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, orgID, automationID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// CountSince counts executions triggered at or after since. The rate limiter
// reads this, so it counts persisted rows only.
func (r *ExecutionRepository) CountSince(ctx context.Context, orgID string, since time.Time) (int64, error) {
	var count int64

	query := "SELECT COUNT(*) FROM executions WHERE org_id = $1 AND triggered_at >= $2"

	err := r.db.QueryRowContext(ctx, query, orgID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count executions: %w", err)
	}

	return count, nil
}

// Stats aggregates execution counts by status over the trailing day and week.
func (r *ExecutionRepository) Stats(ctx context.Context, orgID string, now time.Time) (*models.ExecutionStats, error) {
	query := `
		SELECT status, COUNT(*) FILTER (WHERE triggered_at >= $2), COUNT(*)
		FROM executions
		WHERE org_id = $1 AND triggered_at >= $3
		GROUP BY status
	`

	dayAgo := now.Add(-24 * time.Hour)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	rows, err := r.db.QueryContext(ctx, query, orgID, dayAgo, weekAgo)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution stats: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	stats := &models.ExecutionStats{
		Last24h: make(map[string]int64),
		Last7d:  make(map[string]int64),
	}

	for rows.Next() {
		var (
			status    string
			day, week int64
		)

		err := rows.Scan(&status, &day, &week)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution stats: %w", err)
		}

		if day > 0 {
			stats.Last24h[status] = day
		}

		stats.Last7d[status] = week
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating execution stats: %w", err)
	}

	return stats, nil
}

// DeleteBefore removes up to limit terminal executions triggered before the
// cutoff. Running executions are kept.
func (r *ExecutionRepository) DeleteBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	query := `
		DELETE FROM executions
		WHERE id IN (
			SELECT id
			FROM executions
			WHERE status <> 'running' AND triggered_at < $1
			ORDER BY triggered_at, id
			LIMIT $2
		)
	`

	result, err := r.db.ExecContext(ctx, query, cutoff, normalizeLimit(limit))
	if err != nil {
		return 0, fmt.Errorf("failed to delete executions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

func marshalExecutionState(execution *models.WorkflowExecution) (nodesJSON, chainJSON []byte, err error) {
	nodes := execution.NodesExecuted
	if nodes == nil {
		nodes = []models.NodeOutcome{}
	}

	chain := execution.ExecutionChain
	if chain == nil {
		chain = []string{}
	}

	nodesJSON, err = json.Marshal(nodes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal node outcomes: %w", err)
	}

	chainJSON, err = json.Marshal(chain)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal execution chain: %w", err)
	}

	return nodesJSON, chainJSON, nil
}

func scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.WorkflowExecution, error) {
	var (
		execution            models.WorkflowExecution
		status               string
		nodesJSON, chainJSON []byte
	)

	err := scanner.Scan(
		&execution.ID,
		&execution.OrgID,
		&execution.AutomationID,
		&execution.TriggeredBy,
		&execution.TriggeredAt,
		&status,
		&nodesJSON,
		&chainJSON,
		&execution.RecursionDepth,
		&execution.CompletedAt,
		&execution.Error,
	)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)

	if nodesJSON != nil {
		err := json.Unmarshal(nodesJSON, &execution.NodesExecuted)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal node outcomes: %w", err)
		}
	}

	if chainJSON != nil {
		err := json.Unmarshal(chainJSON, &execution.ExecutionChain)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution chain: %w", err)
		}
	}

	return &execution, nil
}
