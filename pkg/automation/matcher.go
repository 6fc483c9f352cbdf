// Package automation matches status-change events against automation
// triggers and interprets the matched automations' node graphs.
package automation

import (
	"context"
	"log/slog"

	"github.com/statusflowhq/statusflow/pkg/models"
	"github.com/statusflowhq/statusflow/pkg/persistence"
)

// Matcher finds the automations whose trigger predicate matches a status
// transition.
type Matcher struct {
	automations persistence.AutomationRepository
	logger      *slog.Logger
}

func NewMatcher(automations persistence.AutomationRepository, logger *slog.Logger) *Matcher {
	return &Matcher{
		automations: automations,
		logger:      logger.With("module", "trigger_matcher"),
	}
}

// FindMatching returns the org's active automations matching the transition,
// in creation order. Read-only: matching never mutates automations.
func (m *Matcher) FindMatching(ctx context.Context, orgID string, objectType models.EntityType, from, to models.Status) ([]*models.WorkflowAutomation, error) {
	candidates, err := m.automations.ActiveAutomationsFor(ctx, orgID, objectType)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.WorkflowAutomation, 0, len(candidates))

	for _, automation := range candidates {
		if TriggerMatches(automation.Trigger, objectType, from, to) {
			matched = append(matched, automation)
		}
	}

	m.logger.DebugContext(ctx, "Matched automations against status change",
		"org_id", orgID,
		"object_type", objectType,
		"from_status", from,
		"to_status", to,
		"candidates", len(candidates),
		"matches", len(matched))

	return matched, nil
}

// TriggerMatches reports whether a trigger predicate matches the transition.
// A nil FromStatus matches a change from any origin status.
func TriggerMatches(trigger models.TriggerCondition, objectType models.EntityType, from, to models.Status) bool {
	if trigger.ObjectType != objectType {
		return false
	}

	if trigger.ToStatus != to {
		return false
	}

	if trigger.FromStatus != nil && *trigger.FromStatus != from {
		return false
	}

	return true
}
