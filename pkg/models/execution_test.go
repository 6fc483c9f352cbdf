package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainEvent_Terminal(t *testing.T) {
	assert.False(t, (&DomainEvent{Status: EventStatusPending}).Terminal())
	assert.False(t, (&DomainEvent{Status: EventStatusProcessing}).Terminal())
	assert.True(t, (&DomainEvent{Status: EventStatusCompleted}).Terminal())
	assert.True(t, (&DomainEvent{Status: EventStatusFailed}).Terminal())
}

func TestWorkflowExecution_RecordNode(t *testing.T) {
	execution := &WorkflowExecution{
		ID:          "exec-1",
		OrgID:       "org-1",
		TriggeredAt: time.Now().UTC(),
		Status:      ExecutionStatusRunning,
	}

	execution.RecordNode("n1", OutcomeSuccess, "")
	execution.RecordNode("n2", OutcomeSkipped, "client target not resolved")

	require.Len(t, execution.NodesExecuted, 2)
	assert.Equal(t, "n1", execution.NodesExecuted[0].NodeID)
	assert.Equal(t, OutcomeSuccess, execution.NodesExecuted[0].Result)
	assert.Empty(t, execution.NodesExecuted[0].Error)
	assert.Equal(t, OutcomeSkipped, execution.NodesExecuted[1].Result)
	assert.Equal(t, "client target not resolved", execution.NodesExecuted[1].Error)
}
