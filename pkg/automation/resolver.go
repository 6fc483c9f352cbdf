package automation

import (
	"context"

	"github.com/statusflowhq/statusflow/pkg/models"
	"github.com/statusflowhq/statusflow/pkg/persistence"
)

// resolveTarget resolves an action's target relative to the triggering
// entity. A nil entity with a nil error is a soft failure: the action is
// skipped and the walk continues. Only storage faults return an error.
//
// Resolution walks the triggering entity's own references: a project via
// projectId, a client via clientId or through the project, a quote via
// quoteId. Invoices carry no forward reference from any entity, so an
// invoice target never resolves. Lookups are org-scoped, so a reference
// into another organization behaves like a missing one.
func (e *Executor) resolveTarget(ctx context.Context, trigger *models.Entity, targetType models.TargetType) (*models.Entity, error) {
	switch targetType {
	case models.TargetSelf:
		return trigger, nil

	case models.TargetProject:
		if trigger.Type == models.EntityTypeProject {
			return trigger, nil
		}

		return e.entityRef(ctx, trigger.OrgID, trigger.ProjectID, models.EntityTypeProject)

	case models.TargetClient:
		if trigger.Type == models.EntityTypeClient {
			return trigger, nil
		}

		if trigger.ClientID != "" {
			return e.entityRef(ctx, trigger.OrgID, trigger.ClientID, models.EntityTypeClient)
		}

		// No direct reference: try transitively through the project.
		project, err := e.entityRef(ctx, trigger.OrgID, trigger.ProjectID, models.EntityTypeProject)
		if err != nil || project == nil {
			return nil, err
		}

		return e.entityRef(ctx, trigger.OrgID, project.ClientID, models.EntityTypeClient)

	case models.TargetQuote:
		if trigger.Type == models.EntityTypeQuote {
			return trigger, nil
		}

		return e.entityRef(ctx, trigger.OrgID, trigger.QuoteID, models.EntityTypeQuote)

	case models.TargetInvoice:
		// No reverse lookup is attempted.
		return nil, nil

	default:
		return nil, nil
	}
}

// entityRef loads a referenced entity. Empty references, unknown IDs and
// type mismatches all resolve softly to nil.
func (e *Executor) entityRef(ctx context.Context, orgID, id string, want models.EntityType) (*models.Entity, error) {
	if id == "" {
		return nil, nil
	}

	entity, err := e.store.EntityByID(ctx, orgID, id)
	if err != nil {
		if persistence.IsEntityNotFound(err) {
			return nil, nil
		}

		return nil, err
	}

	if entity.Type != want {
		return nil, nil
	}

	return entity, nil
}
