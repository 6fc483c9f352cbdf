package models

import "time"

// ExecutionStatus represents the lifecycle state of an automation run.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusSkipped   ExecutionStatus = "skipped" // Suppressed by a safety guard
)

// OutcomeResult classifies how a single node ended.
type OutcomeResult string

const (
	OutcomeSuccess OutcomeResult = "success"
	OutcomeSkipped OutcomeResult = "skipped"
	OutcomeFailed  OutcomeResult = "failed"
)

// NodeOutcome records the result of one node within an execution.
type NodeOutcome struct {
	NodeID string        `json:"nodeId"`
	Result OutcomeResult `json:"result"`
	Error  string        `json:"error,omitempty"`
}

// WorkflowExecution is the audit record of one automation run. A row is
// written when the run is scheduled and updated as nodes complete, so a
// crashed engine leaves evidence of how far the run got.
type WorkflowExecution struct {
	ID             string          `json:"id"`
	OrgID          string          `json:"orgId"`
	AutomationID   string          `json:"automationId"`
	TriggeredBy    string          `json:"triggeredBy"` // Entity ID whose change fired the trigger
	TriggeredAt    time.Time       `json:"triggeredAt"`
	Status         ExecutionStatus `json:"status"`
	NodesExecuted  []NodeOutcome   `json:"nodesExecuted"`
	ExecutionChain []string        `json:"executionChain"` // Automation IDs walked by this cascade
	RecursionDepth int             `json:"recursionDepth"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// RecordNode appends a node outcome to the execution.
func (e *WorkflowExecution) RecordNode(nodeID string, result OutcomeResult, err string) {
	e.NodesExecuted = append(e.NodesExecuted, NodeOutcome{NodeID: nodeID, Result: result, Error: err})
}

// ExecutionStats aggregates execution counts for an organization.
type ExecutionStats struct {
	Last24h map[string]int64 `json:"last24h"`
	Last7d  map[string]int64 `json:"last7d"`
}
