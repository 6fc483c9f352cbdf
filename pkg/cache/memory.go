package cache

import (
	"context"
	"sync"

	"github.com/statusflowhq/statusflow/pkg/models"
)

// Memory is a process-local counter cache for development and tests.
type Memory struct {
	mu     sync.Mutex
	counts map[string]map[models.Status]int64
}

func NewMemory() *Memory {
	return &Memory{counts: make(map[string]map[models.Status]int64)}
}

func (m *Memory) RefreshStatusCounts(_ context.Context, orgID string, entityType models.EntityType, counts map[models.Status]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make(map[models.Status]int64, len(counts))
	for status, count := range counts {
		stored[status] = count
	}

	m.counts[counterKey(orgID, entityType)] = stored

	return nil
}

func (m *Memory) StatusCounts(_ context.Context, orgID string, entityType models.EntityType) (map[models.Status]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[models.Status]int64)
	for status, count := range m.counts[counterKey(orgID, entityType)] {
		out[status] = count
	}

	return out, nil
}

func counterKey(orgID string, entityType models.EntityType) string {
	return orgID + ":" + string(entityType)
}
