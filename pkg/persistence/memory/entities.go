package memory

import (
	"context"

	"github.com/statusflowhq/statusflow/pkg/models"
	"github.com/statusflowhq/statusflow/pkg/persistence"
)

func (p *Persistence) SaveEntity(_ context.Context, entity *models.Entity) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entities[entity.ID] = copyEntity(entity)

	return nil
}

func (p *Persistence) EntityByID(_ context.Context, orgID, id string) (*models.Entity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entity, ok := p.entities[id]
	if !ok || entity.OrgID != orgID {
		return nil, persistence.NewEntityError("GetByID", id, persistence.ErrEntityNotFound)
	}

	return copyEntity(entity), nil
}

func (p *Persistence) UpdateEntity(_ context.Context, entity *models.Entity) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entities[entity.ID]; !ok {
		return persistence.NewEntityError("Update", entity.ID, persistence.ErrEntityNotFound)
	}

	p.entities[entity.ID] = copyEntity(entity)

	return nil
}

func (p *Persistence) CountEntitiesByStatus(_ context.Context, orgID string, entityType models.EntityType) (map[models.Status]int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	counts := make(map[models.Status]int64)

	for _, entity := range p.entities {
		if entity.OrgID == orgID && entity.Type == entityType {
			counts[entity.Status]++
		}
	}

	return counts, nil
}
