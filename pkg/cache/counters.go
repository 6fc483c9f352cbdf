// Package cache maintains cached aggregate counters for entity statuses.
// Dashboards read these instead of scanning entity collections; the executor
// refreshes them after every status patch.
package cache

import (
	"context"

	"github.com/statusflowhq/statusflow/pkg/models"
)

type CounterCache interface {
	// RefreshStatusCounts replaces the cached per-status counts for one
	// organization and entity type.
	RefreshStatusCounts(ctx context.Context, orgID string, entityType models.EntityType, counts map[models.Status]int64) error

	// StatusCounts returns the cached counts. A missing cache entry yields
	// an empty map, not an error.
	StatusCounts(ctx context.Context, orgID string, entityType models.EntityType) (map[models.Status]int64, error)
}
