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

const automationColumns = `
		id
	  , org_id
	  , name
	  , is_active
	  , trigger_object_type
	  , trigger_from_status
	  , trigger_to_status
	  , nodes
	  , created_by
	  , created_at
	  , updated_at
	  , last_triggered_at
	  , trigger_count
`

// AutomationRepository handles automation database operations.
type AutomationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAutomationRepository creates a new automation repository.
func NewAutomationRepository(db *sql.DB, logger *slog.Logger) *AutomationRepository {
	return &AutomationRepository{db: db, logger: logger}
}

// Save upserts an automation. The row is stored exactly as given, ID and
// timestamp generation belong to the service layer.
func (r *AutomationRepository) Save(ctx context.Context, automation *models.WorkflowAutomation) error {
	nodesJSON, err := json.Marshal(automation.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal automation nodes: %w", err)
	}

	var fromStatus *string
	if automation.Trigger.FromStatus != nil {
		s := string(*automation.Trigger.FromStatus)
		fromStatus = &s
	}

	query := `
		INSERT INTO automations (id, org_id, name, is_active, trigger_object_type,
			trigger_from_status, trigger_to_status, nodes, created_by, created_at,
			updated_at, last_triggered_at, trigger_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			org_id = EXCLUDED.org_id,
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active,
			trigger_object_type = EXCLUDED.trigger_object_type,
			trigger_from_status = EXCLUDED.trigger_from_status,
			trigger_to_status = EXCLUDED.trigger_to_status,
			nodes = EXCLUDED.nodes,
			created_by = EXCLUDED.created_by,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			last_triggered_at = EXCLUDED.last_triggered_at,
			trigger_count = EXCLUDED.trigger_count
	`

	_, err = r.db.ExecContext(ctx, query,
		automation.ID,
		automation.OrgID,
		automation.Name,
		automation.IsActive,
		string(automation.Trigger.ObjectType),
		fromStatus,
		string(automation.Trigger.ToStatus),
		nodesJSON,
		automation.CreatedBy,
		automation.CreatedAt,
		automation.UpdatedAt,
		automation.LastTriggeredAt,
		automation.TriggerCount,
	)
	if err != nil {
		return fmt.Errorf("failed to save automation: %w", err)
	}

	return nil
}

func (r *AutomationRepository) GetByID(ctx context.Context, orgID, id string) (*models.WorkflowAutomation, error) {
	query := `
		SELECT ` + automationColumns + `
		FROM automations
		WHERE org_id = $1 AND id = $2
	`

	row := r.db.QueryRowContext(ctx, query, orgID, id)

	automation, err := scanAutomation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewAutomationError("GetByID", id, persistence.ErrAutomationNotFound)
		}

		return nil, fmt.Errorf("failed to scan automation: %w", err)
	}

	return automation, nil
}

func (r *AutomationRepository) GetByOrg(ctx context.Context, orgID string) ([]*models.WorkflowAutomation, error) {
	query := `
		SELECT ` + automationColumns + `
		FROM automations
		WHERE org_id = $1
		ORDER BY created_at, id
	`

	return r.queryAutomations(ctx, query, orgID)
}

// ActiveFor returns the active automations watching an object type, in
// creation order. Matching order decides execution order, so it must be
// stable.
func (r *AutomationRepository) ActiveFor(ctx context.Context, orgID string, objectType models.EntityType) ([]*models.WorkflowAutomation, error) {
	query := `
		SELECT ` + automationColumns + `
		FROM automations
		WHERE org_id = $1 AND trigger_object_type = $2 AND is_active
		ORDER BY created_at, id
	`

	return r.queryAutomations(ctx, query, orgID, string(objectType))
}

func (r *AutomationRepository) Delete(ctx context.Context, orgID, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM automations WHERE org_id = $1 AND id = $2", orgID, id)
	if err != nil {
		return fmt.Errorf("failed to delete automation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewAutomationError("Delete", id, persistence.ErrAutomationNotFound)
	}

	return nil
}

func (r *AutomationRepository) SetActive(ctx context.Context, orgID, id string, active bool) error {
	query := `
		UPDATE automations
		SET is_active = $3, updated_at = NOW()
		WHERE org_id = $1 AND id = $2
	`

	result, err := r.db.ExecContext(ctx, query, orgID, id, active)
	if err != nil {
		return fmt.Errorf("failed to set automation active: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewAutomationError("SetActive", id, persistence.ErrAutomationNotFound)
	}

	return nil
}

// RecordTriggered bumps the trigger counter and timestamp after a run.
func (r *AutomationRepository) RecordTriggered(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE automations
		SET trigger_count = trigger_count + 1, last_triggered_at = $2
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to record automation trigger: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewAutomationError("RecordTriggered", id, persistence.ErrAutomationNotFound)
	}

	return nil
}

func (r *AutomationRepository) queryAutomations(ctx context.Context, query string, args ...any) ([]*models.WorkflowAutomation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	automations := make([]*models.WorkflowAutomation, 0)

	for rows.Next() {
		automation, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}

		automations = append(automations, automation)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating automations: %w", err)
	}

	return automations, nil
}

func scanAutomation(scanner interface {
	Scan(dest ...any) error
}) (*models.WorkflowAutomation, error) {
	var (
		automation models.WorkflowAutomation
		objectType string
		fromStatus sql.NullString
		toStatus   string
		nodesJSON  []byte
	)

	err := scanner.Scan(
		&automation.ID,
		&automation.OrgID,
		&automation.Name,
		&automation.IsActive,
		&objectType,
		&fromStatus,
		&toStatus,
		&nodesJSON,
		&automation.CreatedBy,
		&automation.CreatedAt,
		&automation.UpdatedAt,
		&automation.LastTriggeredAt,
		&automation.TriggerCount,
	)
	if err != nil {
		return nil, err
	}

	automation.Trigger.ObjectType = models.EntityType(objectType)
	automation.Trigger.ToStatus = models.Status(toStatus)

	if fromStatus.Valid {
		s := models.Status(fromStatus.String)
		automation.Trigger.FromStatus = &s
	}

	if nodesJSON != nil {
		err := json.Unmarshal(nodesJSON, &automation.Nodes)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal automation nodes: %w", err)
		}
	}

	return &automation, nil
}
