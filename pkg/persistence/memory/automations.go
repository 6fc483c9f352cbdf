package memory

import (
	"context"
	"sort"
	"time"

	"github.com/statusflowhq/statusflow/pkg/models"
	"github.com/statusflowhq/statusflow/pkg/persistence"
)

func (p *Persistence) SaveAutomation(_ context.Context, automation *models.WorkflowAutomation) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.automations[automation.ID] = copyAutomation(automation)

	return nil
}

func (p *Persistence) AutomationByID(_ context.Context, orgID, id string) (*models.WorkflowAutomation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	automation, ok := p.automations[id]
	if !ok || automation.OrgID != orgID {
		return nil, persistence.NewAutomationError("GetByID", id, persistence.ErrAutomationNotFound)
	}

	return copyAutomation(automation), nil
}

func (p *Persistence) AutomationsByOrg(_ context.Context, orgID string) ([]*models.WorkflowAutomation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	matched := make([]*models.WorkflowAutomation, 0)

	for _, automation := range p.automations {
		if automation.OrgID == orgID {
			matched = append(matched, copyAutomation(automation))
		}
	}

	sortAutomations(matched)

	return matched, nil
}

func (p *Persistence) ActiveAutomationsFor(_ context.Context, orgID string, objectType models.EntityType) ([]*models.WorkflowAutomation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	matched := make([]*models.WorkflowAutomation, 0)

	for _, automation := range p.automations {
		if automation.OrgID == orgID && automation.IsActive && automation.Trigger.ObjectType == objectType {
			matched = append(matched, copyAutomation(automation))
		}
	}

	sortAutomations(matched)

	return matched, nil
}

func (p *Persistence) DeleteAutomation(_ context.Context, orgID, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	automation, ok := p.automations[id]
	if !ok || automation.OrgID != orgID {
		return persistence.NewAutomationError("Delete", id, persistence.ErrAutomationNotFound)
	}

	delete(p.automations, id)

	return nil
}

func (p *Persistence) SetAutomationActive(_ context.Context, orgID, id string, active bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	automation, ok := p.automations[id]
	if !ok || automation.OrgID != orgID {
		return persistence.NewAutomationError("SetActive", id, persistence.ErrAutomationNotFound)
	}

	automation.IsActive = active
	automation.UpdatedAt = time.Now().UTC()

	return nil
}

func (p *Persistence) RecordAutomationTriggered(_ context.Context, id string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	automation, ok := p.automations[id]
	if !ok {
		return persistence.NewAutomationError("RecordTriggered", id, persistence.ErrAutomationNotFound)
	}

	automation.TriggerCount++
	automation.LastTriggeredAt = &at

	return nil
}

// Creation order, with IDs breaking timestamp ties so matching stays
// deterministic.
func sortAutomations(automations []*models.WorkflowAutomation) {
	sort.Slice(automations, func(i, j int) bool {
		if automations[i].CreatedAt.Equal(automations[j].CreatedAt) {
			return automations[i].ID < automations[j].ID
		}

		return automations[i].CreatedAt.Before(automations[j].CreatedAt)
	})
}
