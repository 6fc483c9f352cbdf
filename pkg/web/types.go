// Package web provides HTTP request and response types for the automation API.
package web

import "github.com/statusflowhq/statusflow/pkg/models"

// TriggerRequest is the trigger predicate of an automation payload.
type TriggerRequest struct {
	ObjectType string  `json:"objectType" validate:"required"`
	FromStatus *string `json:"fromStatus,omitempty"`
	ToStatus   string  `json:"toStatus"   validate:"required"`
}

// ConditionRequest configures a condition node.
type ConditionRequest struct {
	Field    string `json:"field"    validate:"required"`
	Operator string `json:"operator" validate:"required"`
	Value    any    `json:"value,omitempty"`
}

// ActionRequest configures an action node.
type ActionRequest struct {
	TargetType string `json:"targetType" validate:"required"`
	ActionType string `json:"actionType" validate:"required"`
	NewStatus  string `json:"newStatus"  validate:"required"`
}

// NodeRequest is one node of an automation graph payload. Node-level rules
// (exactly one spec, known operators, resolvable branch pointers) are
// enforced by the automation service, not here.
type NodeRequest struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Condition  *ConditionRequest `json:"condition,omitempty"`
	Action     *ActionRequest    `json:"action,omitempty"`
	NextNodeID *string           `json:"nextNodeId,omitempty"`
	ElseNodeID *string           `json:"elseNodeId,omitempty"`
}

// CreateAutomationRequest represents the request body for creating a new
// automation. The organization comes from the request header, never the body.
type CreateAutomationRequest struct {
	Name      string         `json:"name"    validate:"required,min=3"`
	IsActive  *bool          `json:"isActive,omitempty"`
	Trigger   TriggerRequest `json:"trigger" validate:"required"`
	Nodes     []NodeRequest  `json:"nodes"   validate:"required,min=1"`
	CreatedBy string         `json:"createdBy"`
}

// Model converts the request into the domain model. An omitted isActive
// defaults to active.
func (r *CreateAutomationRequest) Model(orgID string) *models.WorkflowAutomation {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}

	return &models.WorkflowAutomation{
		OrgID:     orgID,
		Name:      r.Name,
		IsActive:  active,
		Trigger:   r.Trigger.model(),
		Nodes:     nodeModels(r.Nodes),
		CreatedBy: r.CreatedBy,
	}
}

// UpdateAutomationRequest represents the request body for replacing an
// automation's definition. Identity, creation stamp and trigger counters are
// preserved server-side.
type UpdateAutomationRequest struct {
	Name     string         `json:"name"    validate:"required,min=3"`
	IsActive *bool          `json:"isActive,omitempty"`
	Trigger  TriggerRequest `json:"trigger" validate:"required"`
	Nodes    []NodeRequest  `json:"nodes"   validate:"required,min=1"`
}

func (r *UpdateAutomationRequest) Model(orgID string) *models.WorkflowAutomation {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}

	return &models.WorkflowAutomation{
		OrgID:    orgID,
		Name:     r.Name,
		IsActive: active,
		Trigger:  r.Trigger.model(),
		Nodes:    nodeModels(r.Nodes),
	}
}

func (r TriggerRequest) model() models.TriggerCondition {
	trigger := models.TriggerCondition{
		ObjectType: models.EntityType(r.ObjectType),
		ToStatus:   models.Status(r.ToStatus),
	}

	if r.FromStatus != nil {
		from := models.Status(*r.FromStatus)
		trigger.FromStatus = &from
	}

	return trigger
}

func nodeModels(requests []NodeRequest) []*models.AutomationNode {
	nodes := make([]*models.AutomationNode, 0, len(requests))

	for _, request := range requests {
		node := &models.AutomationNode{
			ID:         request.ID,
			Type:       models.NodeType(request.Type),
			NextNodeID: request.NextNodeID,
			ElseNodeID: request.ElseNodeID,
		}

		if request.Condition != nil {
			node.Condition = &models.ConditionSpec{
				Field:    request.Condition.Field,
				Operator: models.Operator(request.Condition.Operator),
				Value:    request.Condition.Value,
			}
		}

		if request.Action != nil {
			node.Action = &models.ActionSpec{
				TargetType: models.TargetType(request.Action.TargetType),
				ActionType: request.Action.ActionType,
				NewStatus:  models.Status(request.Action.NewStatus),
			}
		}

		nodes = append(nodes, node)
	}

	return nodes
}

// IngestStatusChangeRequest represents a status-change notice reported over
// HTTP. The twin of the queue receiver's message format.
type IngestStatusChangeRequest struct {
	EntityType    string `json:"entityType" validate:"required"`
	EntityID      string `json:"entityId"   validate:"required"`
	OldStatus     string `json:"oldStatus"`
	NewStatus     string `json:"newStatus"  validate:"required"`
	CorrelationID string `json:"correlationId"`
}

// SeedEntityRequest represents the request body for upserting an entity
// projection.
type SeedEntityRequest struct {
	ID        string         `json:"id"   validate:"required"`
	Type      string         `json:"type" validate:"required"`
	Status    string         `json:"status"`
	ProjectID string         `json:"projectId"`
	ClientID  string         `json:"clientId"`
	QuoteID   string         `json:"quoteId"`
	Fields    map[string]any `json:"fields,omitempty"`
}

func (r *SeedEntityRequest) Model(orgID string) *models.Entity {
	return &models.Entity{
		ID:        r.ID,
		OrgID:     orgID,
		Type:      models.EntityType(r.Type),
		Status:    models.Status(r.Status),
		ProjectID: r.ProjectID,
		ClientID:  r.ClientID,
		QuoteID:   r.QuoteID,
		Fields:    r.Fields,
	}
}

// ReplayEventsRequest represents the request body for replaying failed
// events. A zero limit replays everything.
type ReplayEventsRequest struct {
	Limit int `json:"limit" validate:"min=0"`
}

// CleanupRequest represents the request body for retention cleanup. Zero
// values fall back to the defaults.
type CleanupRequest struct {
	EventRetentionHours     int `json:"eventRetentionHours"     validate:"min=0"`
	ExecutionRetentionHours int `json:"executionRetentionHours" validate:"min=0"`
	Limit                   int `json:"limit"                   validate:"min=0"`
}
