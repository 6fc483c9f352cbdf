package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/statusflowhq/statusflow/pkg/models"
	"github.com/statusflowhq/statusflow/pkg/persistence"
)

var (
	// ErrAutomationNotFound is returned when an automation is not found.
	ErrAutomationNotFound = persistence.ErrAutomationNotFound
)

// Execution listing defaults. The API caps page sizes so a single request
// cannot drag the whole audit log over the wire.
const (
	defaultExecutionLimit = 50
	maxExecutionLimit     = 200
)

// Automations is the management surface for workflow automations. All reads
// and writes are org-scoped; validation runs before anything is persisted so
// the executor only ever loads graphs that are structurally sound.
type Automations struct {
	persistence persistence.Persistence
	validator   *validator.Validate
}

// NewAutomations creates a new automation management service.
func NewAutomations(persistence persistence.Persistence) *Automations {
	return &Automations{
		persistence: persistence,
		validator:   validator.New(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Automations) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns all automations of an organization in creation order.
func (s *Automations) List(ctx context.Context, orgID string) ([]*models.WorkflowAutomation, error) {
	automations, err := s.persistence.AutomationsByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list automations: %w", err)
	}

	return automations, nil
}

// ByID retrieves a single automation within an organization.
func (s *Automations) ByID(ctx context.Context, orgID, id string) (*models.WorkflowAutomation, error) {
	return s.persistence.AutomationByID(ctx, orgID, id)
}

// Create validates and stores a new automation. The service owns identity:
// the ID, timestamps and trigger counters are always assigned here, whatever
// the caller sent.
func (s *Automations) Create(ctx context.Context, automation *models.WorkflowAutomation) (*models.WorkflowAutomation, error) {
	if automation == nil {
		return nil, ErrAutomationNil
	}

	if err := s.validateAutomation(automation); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate automation id: %w", err)
	}

	now := time.Now().UTC()
	automation.ID = id.String()
	automation.CreatedAt = now
	automation.UpdatedAt = now
	automation.LastTriggeredAt = nil
	automation.TriggerCount = 0

	if err := s.persistence.SaveAutomation(ctx, automation); err != nil {
		return nil, fmt.Errorf("failed to create automation: %w", err)
	}

	return automation, nil
}

// Update replaces an existing automation's definition. Identity, creation
// stamp and trigger counters survive the update.
func (s *Automations) Update(ctx context.Context, orgID, id string, automation *models.WorkflowAutomation) (*models.WorkflowAutomation, error) {
	if automation == nil {
		return nil, ErrAutomationNil
	}

	existing, err := s.persistence.AutomationByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	automation.ID = existing.ID
	automation.OrgID = existing.OrgID
	automation.CreatedBy = existing.CreatedBy
	automation.CreatedAt = existing.CreatedAt
	automation.LastTriggeredAt = existing.LastTriggeredAt
	automation.TriggerCount = existing.TriggerCount
	automation.UpdatedAt = time.Now().UTC()

	if err := s.validateAutomation(automation); err != nil {
		return nil, err
	}

	if err := s.persistence.SaveAutomation(ctx, automation); err != nil {
		return nil, fmt.Errorf("failed to update automation: %w", err)
	}

	return automation, nil
}

// Delete removes an automation. Its execution history is kept.
func (s *Automations) Delete(ctx context.Context, orgID, id string) error {
	return s.persistence.DeleteAutomation(ctx, orgID, id)
}

// SetActive flips the active flag and returns the updated automation.
// Deactivation takes effect on the next matching pass; in-flight executions
// run to completion.
func (s *Automations) SetActive(ctx context.Context, orgID, id string, active bool) (*models.WorkflowAutomation, error) {
	if err := s.persistence.SetAutomationActive(ctx, orgID, id, active); err != nil {
		return nil, err
	}

	return s.persistence.AutomationByID(ctx, orgID, id)
}

// Toggle inverts the active flag and returns the updated automation.
func (s *Automations) Toggle(ctx context.Context, orgID, id string) (*models.WorkflowAutomation, error) {
	existing, err := s.persistence.AutomationByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	return s.SetActive(ctx, orgID, id, !existing.IsActive)
}

// Executions returns the newest executions of an automation. A limit of zero
// or below falls back to the default page size.
func (s *Automations) Executions(ctx context.Context, orgID, automationID string, limit int) ([]*models.WorkflowExecution, error) {
	if _, err := s.persistence.AutomationByID(ctx, orgID, automationID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultExecutionLimit
	}

	if limit > maxExecutionLimit {
		limit = maxExecutionLimit
	}

	executions, err := s.persistence.ExecutionsByAutomation(ctx, orgID, automationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return executions, nil
}

// validateAutomation checks the structural rules an automation graph must
// satisfy before it is stored: field-level constraints, a legal trigger and
// a well-formed node graph.
func (s *Automations) validateAutomation(automation *models.WorkflowAutomation) error {
	if err := s.validator.Struct(automation); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			return NewValidationError(
				"validateAutomation",
				"INVALID_FIELD",
				fmt.Sprintf("field %s failed on the %s rule", fields[0].Field(), fields[0].Tag()),
				ErrInvalidAutomation,
			)
		}

		return fmt.Errorf("failed to validate automation: %w", err)
	}

	if err := validateTrigger(automation.Trigger); err != nil {
		return err
	}

	return validateNodes(automation)
}

func validateTrigger(trigger models.TriggerCondition) error {
	if !models.ValidEntityType(trigger.ObjectType) {
		return NewValidationError(
			"validateTrigger",
			"UNKNOWN_OBJECT_TYPE",
			fmt.Sprintf("unknown trigger object type %q", trigger.ObjectType),
			ErrInvalidAutomation,
		)
	}

	if !models.ValidStatus(trigger.ObjectType, trigger.ToStatus) {
		return NewValidationError(
			"validateTrigger",
			"INVALID_TRIGGER_STATUS",
			fmt.Sprintf("status %q is not valid for %s", trigger.ToStatus, trigger.ObjectType),
			ErrInvalidAutomation,
		)
	}

	if trigger.FromStatus != nil && !models.ValidStatus(trigger.ObjectType, *trigger.FromStatus) {
		return NewValidationError(
			"validateTrigger",
			"INVALID_TRIGGER_STATUS",
			fmt.Sprintf("status %q is not valid for %s", *trigger.FromStatus, trigger.ObjectType),
			ErrInvalidAutomation,
		)
	}

	return nil
}

func validateNodes(automation *models.WorkflowAutomation) error {
	ids := make(map[string]bool, len(automation.Nodes))

	for _, node := range automation.Nodes {
		if node == nil {
			return NewValidationError(
				"validateNodes",
				"NODE_NIL",
				"node cannot be null",
				ErrInvalidAutomation,
			)
		}

		if node.ID == "" {
			return NewValidationError(
				"validateNodes",
				"EMPTY_NODE_ID",
				"node id cannot be empty",
				ErrInvalidAutomation,
			)
		}

		if ids[node.ID] {
			return NewValidationError(
				"validateNodes",
				"DUPLICATE_NODE_ID",
				fmt.Sprintf("duplicate node id %q", node.ID),
				ErrInvalidAutomation,
			)
		}

		ids[node.ID] = true
	}

	for _, node := range automation.Nodes {
		if err := validateNode(automation, node, ids); err != nil {
			return err
		}
	}

	return nil
}

func validateNode(automation *models.WorkflowAutomation, node *models.AutomationNode, ids map[string]bool) error {
	switch node.Type {
	case models.NodeTypeCondition:
		if err := validateConditionNode(node); err != nil {
			return err
		}
	case models.NodeTypeAction:
		if err := validateActionNode(automation, node); err != nil {
			return err
		}
	default:
		return NewValidationError(
			"validateNode",
			"UNKNOWN_NODE_TYPE",
			fmt.Sprintf("node %q has unknown type %q", node.ID, node.Type),
			ErrInvalidAutomation,
		)
	}

	// Branch pointers must land on real nodes.
	for _, ref := range []*string{node.NextNodeID, node.ElseNodeID} {
		if ref != nil && !ids[*ref] {
			return NewValidationError(
				"validateNode",
				"UNKNOWN_NODE_REFERENCE",
				fmt.Sprintf("node %q references unknown node %q", node.ID, *ref),
				ErrInvalidAutomation,
			)
		}
	}

	return nil
}

func validateConditionNode(node *models.AutomationNode) error {
	if node.Condition == nil || node.Action != nil {
		return NewValidationError(
			"validateNode",
			"NODE_SPEC_MISMATCH",
			fmt.Sprintf("condition node %q must carry a condition spec and nothing else", node.ID),
			ErrInvalidAutomation,
		)
	}

	if node.Condition.Field == "" {
		return NewValidationError(
			"validateNode",
			"CONDITION_FIELD_REQUIRED",
			fmt.Sprintf("condition node %q has no field", node.ID),
			ErrInvalidAutomation,
		)
	}

	switch node.Condition.Operator {
	case models.OperatorEquals, models.OperatorNotEquals, models.OperatorContains, models.OperatorExists:
	default:
		return NewValidationError(
			"validateNode",
			"UNKNOWN_OPERATOR",
			fmt.Sprintf("condition node %q has unknown operator %q", node.ID, node.Condition.Operator),
			ErrInvalidAutomation,
		)
	}

	return nil
}

func validateActionNode(automation *models.WorkflowAutomation, node *models.AutomationNode) error {
	if node.Action == nil || node.Condition != nil {
		return NewValidationError(
			"validateNode",
			"NODE_SPEC_MISMATCH",
			fmt.Sprintf("action node %q must carry an action spec and nothing else", node.ID),
			ErrInvalidAutomation,
		)
	}

	if node.ElseNodeID != nil {
		return NewValidationError(
			"validateNode",
			"ELSE_ON_ACTION",
			fmt.Sprintf("action node %q cannot branch with elseNodeId", node.ID),
			ErrInvalidAutomation,
		)
	}

	if node.Action.ActionType != models.ActionTypeUpdateStatus {
		return NewValidationError(
			"validateNode",
			"UNKNOWN_ACTION_TYPE",
			fmt.Sprintf("action node %q has unknown action type %q", node.ID, node.Action.ActionType),
			ErrInvalidAutomation,
		)
	}

	targetType, ok := staticTargetType(node.Action.TargetType, automation.Trigger.ObjectType)
	if !ok {
		return NewValidationError(
			"validateNode",
			"UNKNOWN_TARGET_TYPE",
			fmt.Sprintf("action node %q has unknown target type %q", node.ID, node.Action.TargetType),
			ErrInvalidAutomation,
		)
	}

	if !models.ValidStatus(targetType, node.Action.NewStatus) {
		return NewValidationError(
			"validateNode",
			"INVALID_ACTION_STATUS",
			fmt.Sprintf("status %q is not valid for %s", node.Action.NewStatus, targetType),
			ErrInvalidAutomation,
		)
	}

	return nil
}

// staticTargetType resolves the entity type an action target denotes when the
// automation's trigger type is known. Self resolves to the trigger type, so
// validation can check the new status against the right vocabulary.
func staticTargetType(target models.TargetType, triggerType models.EntityType) (models.EntityType, bool) {
	switch target {
	case models.TargetSelf:
		return triggerType, true
	case models.TargetProject:
		return models.EntityTypeProject, true
	case models.TargetClient:
		return models.EntityTypeClient, true
	case models.TargetQuote:
		return models.EntityTypeQuote, true
	case models.TargetInvoice:
		return models.EntityTypeInvoice, true
	default:
		return "", false
	}
}
