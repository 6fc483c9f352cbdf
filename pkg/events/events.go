// Package events defines the event types and payloads emitted by the
// status-change automation engine.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/statusflowhq/statusflow/pkg/models"
)

type EventType string

// Topic is the announcer topic completed events are broadcast on.
const Topic = "statusflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// EntityStatusChangedEvent is recorded whenever a business object's
	// status field changes, whether by a user action or by an automation.
	EntityStatusChangedEvent EventType = "entity.status_changed"

	// Automation lifecycle events. Informational: they carry no handler and
	// exist for audit trails and external subscribers.
	AutomationTriggeredEvent EventType = "automation.triggered"
	AutomationCompletedEvent EventType = "automation.completed"
	AutomationFailedEvent    EventType = "automation.failed"
)

// Event sources recorded on DomainEvent.Source.
const (
	SourceAPI    = "api"    // Status mutation through the HTTP surface
	SourceIntake = "intake" // Status change consumed from the intake queue
	SourceEngine = "engine" // Cascade or lifecycle event emitted by the engine
)

// Payload is implemented by every typed event payload.
type Payload interface {
	EventType() EventType
}

// CascadeMeta travels with a status-change payload and carries the safety
// state a cascading chain accumulates: the automations already executed and
// how deep the chain has recursed.
type CascadeMeta struct {
	ExecutionChain []string `json:"executionChain,omitempty"`
	RecursionDepth int      `json:"recursionDepth"`
	IsCascade      bool     `json:"isCascade"`
}

// StatusChange is the payload of an EntityStatusChangedEvent.
type StatusChange struct {
	EntityType models.EntityType `json:"entityType" validate:"required"`
	EntityID   string            `json:"entityId"   validate:"required"`
	Field      string            `json:"field"`
	OldValue   models.Status     `json:"oldValue"`
	NewValue   models.Status     `json:"newValue"   validate:"required"`
	Metadata   CascadeMeta       `json:"metadata"`
}

func (StatusChange) EventType() EventType {
	return EntityStatusChangedEvent
}

// NewStatusChange builds a first-cause status change payload (no cascade
// metadata attached).
func NewStatusChange(entityType models.EntityType, entityID string, from, to models.Status) StatusChange {
	return StatusChange{
		EntityType: entityType,
		EntityID:   entityID,
		Field:      "status",
		OldValue:   from,
		NewValue:   to,
	}
}

// AutomationRecord is the payload of the automation.* lifecycle events.
type AutomationRecord struct {
	AutomationID string            `json:"automationId"`
	ExecutionID  string            `json:"executionId"`
	EntityType   models.EntityType `json:"entityType"`
	EntityID     string            `json:"entityId"`
	Error        string            `json:"error,omitempty"`
}

func (r AutomationRecord) EventType() EventType {
	if r.Error != "" {
		return AutomationFailedEvent
	}

	return AutomationCompletedEvent
}

// Triggered wraps the record as an automation.triggered payload.
type Triggered struct {
	AutomationRecord
}

func (Triggered) EventType() EventType {
	return AutomationTriggeredEvent
}

// Encode marshals a payload for storage on a DomainEvent row.
func Encode(p Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", p.EventType(), err)
	}

	return raw, nil
}

// DecodeStatusChange unmarshals a stored entity.status_changed payload.
func DecodeStatusChange(raw []byte) (StatusChange, error) {
	var payload StatusChange
	if err := json.Unmarshal(raw, &payload); err != nil {
		return StatusChange{}, fmt.Errorf("failed to decode status change payload: %w", err)
	}

	return payload, nil
}

// DecodeAutomationRecord unmarshals a stored automation.* payload.
func DecodeAutomationRecord(raw []byte) (AutomationRecord, error) {
	var record AutomationRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return AutomationRecord{}, fmt.Errorf("failed to decode automation record payload: %w", err)
	}

	return record, nil
}

// Announcement is the wire form broadcast to external subscribers after an
// event completes processing.
type Announcement struct {
	ID            string          `json:"id"`
	OrgID         string          `json:"orgId"`
	Type          EventType       `json:"type"`
	Source        string          `json:"source,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlationId"`
	CausationID   string          `json:"causationId,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// NewAnnouncement projects a completed domain event onto the wire form.
func NewAnnouncement(event *models.DomainEvent) Announcement {
	return Announcement{
		ID:            event.ID,
		OrgID:         event.OrgID,
		Type:          EventType(event.Type),
		Source:        event.Source,
		Payload:       json.RawMessage(event.Payload),
		CorrelationID: event.CorrelationID,
		CausationID:   event.CausationID,
		OccurredAt:    event.CreatedAt,
	}
}
