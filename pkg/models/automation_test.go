package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowAutomation_Validation_ValidAutomation(t *testing.T) {
	automation := &WorkflowAutomation{
		ID:       "auto-1",
		OrgID:    "org-1",
		Name:     "Start project on quote sent",
		IsActive: true,
		Trigger: TriggerCondition{
			ObjectType: EntityTypeQuote,
			ToStatus:   "sent",
		},
		Nodes: []*AutomationNode{
			{
				ID:   "n1",
				Type: NodeTypeAction,
				Action: &ActionSpec{
					TargetType: TargetProject,
					ActionType: ActionTypeUpdateStatus,
					NewStatus:  "in-progress",
				},
			},
		},
		CreatedAt: time.Now().UTC(),
	}

	validate := validator.New()
	assert.NoError(t, validate.Struct(automation))
}

func TestWorkflowAutomation_Validation_MissingFields(t *testing.T) {
	automation := &WorkflowAutomation{
		ID:    "auto-1",
		OrgID: "org-1",
		Name:  "ab", // Below the minimum length
		Trigger: TriggerCondition{
			ObjectType: EntityTypeQuote,
			ToStatus:   "sent",
		},
		Nodes: nil,
	}

	validate := validator.New()
	err := validate.Struct(automation)
	require.Error(t, err)

	var validationErrors validator.ValidationErrors

	require.ErrorAs(t, err, &validationErrors)

	fields := make(map[string]string)
	for _, fieldError := range validationErrors {
		fields[fieldError.Field()] = fieldError.Tag()
	}

	assert.Equal(t, "min", fields["Name"])
	assert.Equal(t, "required", fields["Nodes"])
}

func TestWorkflowAutomation_Validation_EmptyNodes(t *testing.T) {
	automation := &WorkflowAutomation{
		ID:    "auto-1",
		OrgID: "org-1",
		Name:  "Empty graph",
		Trigger: TriggerCondition{
			ObjectType: EntityTypeQuote,
			ToStatus:   "sent",
		},
		// Non-nil but empty: passes required, fails the length floor.
		Nodes: []*AutomationNode{},
	}

	validate := validator.New()
	err := validate.Struct(automation)
	require.Error(t, err)

	var validationErrors validator.ValidationErrors

	require.ErrorAs(t, err, &validationErrors)
	require.Len(t, validationErrors, 1)
	assert.Equal(t, "Nodes", validationErrors[0].Field())
	assert.Equal(t, "min", validationErrors[0].Tag())
}

func TestWorkflowAutomation_JSONSerialization(t *testing.T) {
	from := Status("draft")
	automation := &WorkflowAutomation{
		ID:       "auto-1",
		OrgID:    "org-1",
		Name:     "Accept quotes",
		IsActive: true,
		Trigger: TriggerCondition{
			ObjectType: EntityTypeQuote,
			FromStatus: &from,
			ToStatus:   "sent",
		},
		Nodes: []*AutomationNode{
			{
				ID:   "n1",
				Type: NodeTypeCondition,
				Condition: &ConditionSpec{
					Field:    "amount",
					Operator: OperatorEquals,
					Value:    100,
				},
			},
		},
	}

	data, err := json.Marshal(automation)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"objectType":"quote"`)
	assert.Contains(t, string(data), `"fromStatus":"draft"`)
	assert.Contains(t, string(data), `"toStatus":"sent"`)
	assert.Contains(t, string(data), `"isActive":true`)

	var decoded WorkflowAutomation

	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Trigger.FromStatus)
	assert.Equal(t, Status("draft"), *decoded.Trigger.FromStatus)
	require.Len(t, decoded.Nodes, 1)
	assert.Equal(t, OperatorEquals, decoded.Nodes[0].Condition.Operator)
}

func TestWorkflowAutomation_Lookups(t *testing.T) {
	automation := &WorkflowAutomation{
		ID:    "auto-1",
		OrgID: "org-1",
		Name:  "Lookup test",
		Nodes: []*AutomationNode{
			{ID: "n1", Type: NodeTypeCondition, Condition: &ConditionSpec{Field: "status", Operator: OperatorExists}},
			{ID: "n2", Type: NodeTypeAction, Action: &ActionSpec{TargetType: TargetSelf, ActionType: ActionTypeUpdateStatus, NewStatus: "sent"}},
		},
	}

	entry := automation.EntryNode()
	require.NotNil(t, entry)
	assert.Equal(t, "n1", entry.ID)
	assert.True(t, entry.IsCondition())

	node := automation.FindNode("n2")
	require.NotNil(t, node)
	assert.True(t, node.IsAction())

	assert.Nil(t, automation.FindNode("ghost"))
	assert.Nil(t, (&WorkflowAutomation{}).EntryNode())
}
