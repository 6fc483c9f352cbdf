// Package memory provides an in-memory persistence implementation. It backs
// local development and tests; nothing survives a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/statusflowhq/statusflow/pkg/models"
)

// Persistence implements persistence.Persistence with mutex-guarded maps.
type Persistence struct {
	mu sync.Mutex

	events      map[string]*models.DomainEvent
	claims      map[string]time.Time // event ID -> claim time, while processing
	automations map[string]*models.WorkflowAutomation
	executions  map[string]*models.WorkflowExecution
	entities    map[string]*models.Entity
}

func NewPersistence() *Persistence {
	return &Persistence{
		events:      make(map[string]*models.DomainEvent),
		claims:      make(map[string]time.Time),
		automations: make(map[string]*models.WorkflowAutomation),
		executions:  make(map[string]*models.WorkflowExecution),
		entities:    make(map[string]*models.Entity),
	}
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func copyEvent(e *models.DomainEvent) *models.DomainEvent {
	out := *e
	out.Payload = append([]byte(nil), e.Payload...)
	out.ProcessedAt = copyTime(e.ProcessedAt)
	out.FailedAt = copyTime(e.FailedAt)

	return &out
}

func copyAutomation(a *models.WorkflowAutomation) *models.WorkflowAutomation {
	out := *a
	out.LastTriggeredAt = copyTime(a.LastTriggeredAt)

	if a.Trigger.FromStatus != nil {
		from := *a.Trigger.FromStatus
		out.Trigger.FromStatus = &from
	}

	out.Nodes = make([]*models.AutomationNode, len(a.Nodes))
	for i, node := range a.Nodes {
		out.Nodes[i] = copyNode(node)
	}

	return &out
}

func copyNode(n *models.AutomationNode) *models.AutomationNode {
	out := *n

	if n.Condition != nil {
		cond := *n.Condition
		out.Condition = &cond
	}

	if n.Action != nil {
		action := *n.Action
		out.Action = &action
	}

	out.NextNodeID = copyString(n.NextNodeID)
	out.ElseNodeID = copyString(n.ElseNodeID)

	return &out
}

func copyExecution(e *models.WorkflowExecution) *models.WorkflowExecution {
	out := *e
	out.NodesExecuted = append([]models.NodeOutcome(nil), e.NodesExecuted...)
	out.ExecutionChain = append([]string(nil), e.ExecutionChain...)
	out.CompletedAt = copyTime(e.CompletedAt)

	return &out
}

func copyEntity(e *models.Entity) *models.Entity {
	out := *e
	out.CompletedAt = copyTime(e.CompletedAt)
	out.AcceptedAt = copyTime(e.AcceptedAt)
	out.PaidAt = copyTime(e.PaidAt)

	if e.Fields != nil {
		out.Fields = make(map[string]any, len(e.Fields))
		for k, v := range e.Fields {
			out.Fields[k] = v
		}
	}

	return &out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	out := *t

	return &out
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}

	out := *s

	return &out
}
