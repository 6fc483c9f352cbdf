// Package models defines the core domain models for status-change automation
package models

import "time"

// EventStatus represents the processing lifecycle state of a domain event.
type EventStatus string

const (
	EventStatusPending    EventStatus = "pending"    // Queued, not yet claimed
	EventStatusProcessing EventStatus = "processing" // Claimed by a processing batch
	EventStatusCompleted  EventStatus = "completed"  // All handlers finished
	EventStatusFailed     EventStatus = "failed"     // Exhausted retry attempts
)

// DomainEvent is a persisted event record. Events are stored before they are
// dispatched so that delivery survives restarts and failed handlers can be
// retried or replayed later.
type DomainEvent struct {
	ID            string      `json:"id"`
	OrgID         string      `json:"orgId"         validate:"required"`
	Type          string      `json:"eventType"     validate:"required"`
	Source        string      `json:"eventSource"`
	Payload       []byte      `json:"payload"`
	Status        EventStatus `json:"status"`
	AttemptCount  int         `json:"attemptCount"`
	CorrelationID string      `json:"correlationId"`
	CausationID   string      `json:"causationId,omitempty"`
	LastError     string      `json:"lastError,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	ProcessedAt   *time.Time  `json:"processedAt,omitempty"`
	FailedAt      *time.Time  `json:"failedAt,omitempty"`
}

// Terminal reports whether the event has reached a final state.
func (e *DomainEvent) Terminal() bool {
	return e.Status == EventStatusCompleted || e.Status == EventStatusFailed
}

// EventStats aggregates event counts for an organization over a window.
type EventStats struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"byStatus"`
	ByType   map[string]int64 `json:"byType"`
}
