package memory

import (
	"context"
	"sort"
	"time"

	"github.com/statusflowhq/statusflow/pkg/models"
	"github.com/statusflowhq/statusflow/pkg/persistence"
)

func (p *Persistence) InsertExecution(_ context.Context, execution *models.WorkflowExecution) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.executions[execution.ID] = copyExecution(execution)

	return nil
}

func (p *Persistence) ExecutionByID(_ context.Context, orgID, id string) (*models.WorkflowExecution, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	execution, ok := p.executions[id]
	if !ok || execution.OrgID != orgID {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	return copyExecution(execution), nil
}

func (p *Persistence) UpdateExecution(_ context.Context, execution *models.WorkflowExecution) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.executions[execution.ID]; !ok {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	p.executions[execution.ID] = copyExecution(execution)

	return nil
}

func (p *Persistence) ExecutionsByAutomation(_ context.Context, orgID, automationID string, limit int) ([]*models.WorkflowExecution, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	matched := make([]*models.WorkflowExecution, 0)

	for _, execution := range p.executions {
		if execution.OrgID == orgID && execution.AutomationID == automationID {
			matched = append(matched, copyExecution(execution))
		}
	}

	// Newest first.
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].TriggeredAt.Equal(matched[j].TriggeredAt) {
			return matched[i].ID > matched[j].ID
		}

		return matched[i].TriggeredAt.After(matched[j].TriggeredAt)
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, nil
}

func (p *Persistence) CountExecutionsSince(_ context.Context, orgID string, since time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var count int64

	for _, execution := range p.executions {
		if execution.OrgID == orgID && !execution.TriggeredAt.Before(since) {
			count++
		}
	}

	return count, nil
}

func (p *Persistence) ExecutionStats(_ context.Context, orgID string, now time.Time) (*models.ExecutionStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := &models.ExecutionStats{
		Last24h: make(map[string]int64),
		Last7d:  make(map[string]int64),
	}

	dayAgo := now.Add(-24 * time.Hour)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	for _, execution := range p.executions {
		if execution.OrgID != orgID {
			continue
		}

		if !execution.TriggeredAt.Before(weekAgo) {
			stats.Last7d[string(execution.Status)]++
		}

		if !execution.TriggeredAt.Before(dayAgo) {
			stats.Last24h[string(execution.Status)]++
		}
	}

	return stats, nil
}

func (p *Persistence) DeleteExecutionsBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var deleted int64

	for id, execution := range p.executions {
		if limit > 0 && deleted >= int64(limit) {
			break
		}

		if execution.Status == models.ExecutionStatusRunning {
			continue
		}

		if execution.TriggeredAt.Before(cutoff) {
			delete(p.executions, id)
			deleted++
		}
	}

	return deleted, nil
}
