package models

import "time"

// NodeType distinguishes the two kinds of automation graph nodes.
type NodeType string

const (
	NodeTypeCondition NodeType = "condition" // Branches on an entity field
	NodeTypeAction    NodeType = "action"    // Applies a status change
)

// Operator is a condition node comparison operator.
type Operator string

const (
	OperatorEquals    Operator = "equals"
	OperatorNotEquals Operator = "not_equals"
	OperatorContains  Operator = "contains"
	OperatorExists    Operator = "exists"
)

// TargetType names the entity an action node applies to, resolved relative
// to the triggering entity.
type TargetType string

const (
	TargetSelf    TargetType = "self"
	TargetProject TargetType = "project"
	TargetClient  TargetType = "client"
	TargetQuote   TargetType = "quote"
	TargetInvoice TargetType = "invoice"
)

// ActionTypeUpdateStatus is the only action kind the engine executes.
const ActionTypeUpdateStatus = "update_status"

// TriggerCondition is the predicate that selects which status changes fire
// an automation. A nil FromStatus matches a transition from any status.
type TriggerCondition struct {
	ObjectType EntityType `json:"objectType" validate:"required"`
	FromStatus *Status    `json:"fromStatus,omitempty"`
	ToStatus   Status     `json:"toStatus"   validate:"required"`
}

// ConditionSpec configures a condition node.
type ConditionSpec struct {
	Field    string   `json:"field"    validate:"required"`
	Operator Operator `json:"operator" validate:"required"`
	Value    any      `json:"value,omitempty"`
}

// ActionSpec configures an action node.
type ActionSpec struct {
	TargetType TargetType `json:"targetType" validate:"required"`
	ActionType string     `json:"actionType" validate:"required"`
	NewStatus  Status     `json:"newStatus"  validate:"required"`
}

// AutomationNode is one node of an automation graph. Exactly one of
// Condition and Action is set, matching Type. Condition nodes follow
// NextNodeID when true and ElseNodeID when false; action nodes follow
// NextNodeID unconditionally. A nil pointer ends the walk.
type AutomationNode struct {
	ID         string         `json:"id"   validate:"required"`
	Type       NodeType       `json:"type" validate:"required"`
	Condition  *ConditionSpec `json:"condition,omitempty"`
	Action     *ActionSpec    `json:"action,omitempty"`
	NextNodeID *string        `json:"nextNodeId,omitempty"`
	ElseNodeID *string        `json:"elseNodeId,omitempty"`
}

func (n *AutomationNode) IsCondition() bool {
	return n.Type == NodeTypeCondition
}

func (n *AutomationNode) IsAction() bool {
	return n.Type == NodeTypeAction
}

// WorkflowAutomation is a persisted automation: a trigger predicate plus a
// node graph interpreted when the trigger fires. Execution starts at the
// first node of Nodes.
type WorkflowAutomation struct {
	ID              string            `json:"id"`
	OrgID           string            `json:"orgId"   validate:"required"`
	Name            string            `json:"name"    validate:"required,min=3"`
	IsActive        bool              `json:"isActive"`
	Trigger         TriggerCondition  `json:"trigger" validate:"required"`
	Nodes           []*AutomationNode `json:"nodes"   validate:"required,min=1"`
	CreatedBy       string            `json:"createdBy"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	LastTriggeredAt *time.Time        `json:"lastTriggeredAt,omitempty"`
	TriggerCount    int64             `json:"triggerCount"`
}

// EntryNode returns the first node of the graph, or nil for an empty graph.
func (a *WorkflowAutomation) EntryNode() *AutomationNode {
	if len(a.Nodes) == 0 {
		return nil
	}

	return a.Nodes[0]
}

// FindNode returns the node with the given ID, or nil when absent.
func (a *WorkflowAutomation) FindNode(id string) *AutomationNode {
	for _, node := range a.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}
