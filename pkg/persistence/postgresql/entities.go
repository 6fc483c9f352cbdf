package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/statusflowhq/statusflow/pkg/models"
	"github.com/statusflowhq/statusflow/pkg/persistence"
)

// EntityRepository handles entity projection database operations.
type EntityRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEntityRepository creates a new entity repository.
func NewEntityRepository(db *sql.DB, logger *slog.Logger) *EntityRepository {
	return &EntityRepository{db: db, logger: logger}
}

// Save upserts an entity projection.
func (r *EntityRepository) Save(ctx context.Context, entity *models.Entity) error {
	fieldsJSON, err := json.Marshal(entity.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal entity fields: %w", err)
	}

	query := `
		INSERT INTO entities (org_id, id, entity_type, status, project_id, client_id,
			quote_id, completed_at, accepted_at, paid_at, fields, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (org_id, id) DO UPDATE SET
			entity_type = EXCLUDED.entity_type,
			status = EXCLUDED.status,
			project_id = EXCLUDED.project_id,
			client_id = EXCLUDED.client_id,
			quote_id = EXCLUDED.quote_id,
			completed_at = EXCLUDED.completed_at,
			accepted_at = EXCLUDED.accepted_at,
			paid_at = EXCLUDED.paid_at,
			fields = EXCLUDED.fields,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		entity.OrgID,
		entity.ID,
		string(entity.Type),
		string(entity.Status),
		entity.ProjectID,
		entity.ClientID,
		entity.QuoteID,
		entity.CompletedAt,
		entity.AcceptedAt,
		entity.PaidAt,
		fieldsJSON,
		entity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}

	return nil
}

func (r *EntityRepository) GetByID(ctx context.Context, orgID, id string) (*models.Entity, error) {
	query := `
		SELECT
			org_id
		  , id
		  , entity_type
		  , status
		  , project_id
		  , client_id
		  , quote_id
		  , completed_at
		  , accepted_at
		  , paid_at
		  , fields
		  , updated_at
		FROM entities
		WHERE org_id = $1 AND id = $2
	`

	var (
		entity           models.Entity
		entityType, stat string
		fieldsJSON       []byte
	)

	err := r.db.QueryRowContext(ctx, query, orgID, id).Scan(
		&entity.OrgID,
		&entity.ID,
		&entityType,
		&stat,
		&entity.ProjectID,
		&entity.ClientID,
		&entity.QuoteID,
		&entity.CompletedAt,
		&entity.AcceptedAt,
		&entity.PaidAt,
		&fieldsJSON,
		&entity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetByID", id, persistence.ErrEntityNotFound)
		}

		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}

	entity.Type = models.EntityType(entityType)
	entity.Status = models.Status(stat)

	if fieldsJSON != nil {
		err := json.Unmarshal(fieldsJSON, &entity.Fields)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal entity fields: %w", err)
		}
	}

	return &entity, nil
}

// Update overwrites an existing entity projection.
func (r *EntityRepository) Update(ctx context.Context, entity *models.Entity) error {
	fieldsJSON, err := json.Marshal(entity.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal entity fields: %w", err)
	}

	query := `
		UPDATE entities
		SET entity_type = $3, status = $4, project_id = $5, client_id = $6,
			quote_id = $7, completed_at = $8, accepted_at = $9, paid_at = $10,
			fields = $11, updated_at = $12
		WHERE org_id = $1 AND id = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		entity.OrgID,
		entity.ID,
		string(entity.Type),
		string(entity.Status),
		entity.ProjectID,
		entity.ClientID,
		entity.QuoteID,
		entity.CompletedAt,
		entity.AcceptedAt,
		entity.PaidAt,
		fieldsJSON,
		entity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewEntityError("Update", entity.ID, persistence.ErrEntityNotFound)
	}

	return nil
}

// CountByStatus returns entity counts per status for an organization and
// type. Backs the cached dashboard counters.
func (r *EntityRepository) CountByStatus(ctx context.Context, orgID string, entityType models.EntityType) (map[models.Status]int64, error) {
	query := `
		SELECT status, COUNT(*)
		FROM entities
		WHERE org_id = $1 AND entity_type = $2
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query, orgID, string(entityType))
	if err != nil {
		return nil, fmt.Errorf("failed to count entities by status: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	counts := make(map[models.Status]int64)

	for rows.Next() {
		var (
			status string
			count  int64
		)

		err := rows.Scan(&status, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity count: %w", err)
		}

		counts[models.Status(status)] = count
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating entity counts: %w", err)
	}

	return counts, nil
}
