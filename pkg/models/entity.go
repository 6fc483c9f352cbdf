package models

import "time"

// EntityType identifies a kind of business object tracked by the engine.
type EntityType string

const (
	EntityTypeClient  EntityType = "client"
	EntityTypeProject EntityType = "project"
	EntityTypeQuote   EntityType = "quote"
	EntityTypeInvoice EntityType = "invoice"
	EntityTypeTask    EntityType = "task"
)

// Status is a lifecycle status value of a business object. Legal values
// depend on the entity type; see StatusesFor.
type Status string

// Per-type status vocabularies. An automation action writing a status
// outside its target's vocabulary is a hard failure.
var statusVocabulary = map[EntityType][]Status{
	EntityTypeClient:  {"lead", "active", "inactive", "archived"},
	EntityTypeProject: {"planned", "in-progress", "on-hold", "completed", "cancelled"},
	EntityTypeQuote:   {"draft", "sent", "accepted", "declined", "expired"},
	EntityTypeInvoice: {"draft", "sent", "paid", "overdue", "cancelled"},
	EntityTypeTask:    {"todo", "in-progress", "completed", "cancelled"},
}

// ValidEntityType reports whether t names a known entity type.
func ValidEntityType(t EntityType) bool {
	_, ok := statusVocabulary[t]

	return ok
}

// StatusesFor returns the legal status values for an entity type, or nil for
// an unknown type.
func StatusesFor(t EntityType) []Status {
	return statusVocabulary[t]
}

// ValidStatus reports whether s is a legal status for entity type t.
func ValidStatus(t EntityType, s Status) bool {
	for _, v := range statusVocabulary[t] {
		if v == s {
			return true
		}
	}

	return false
}

// Entity is the projection of a business object that automations read and
// patch. The authoritative documents live in the entity services; this model
// carries the identity, status, relationship and stamp fields the engine
// needs, plus the remaining document fields for condition evaluation.
type Entity struct {
	ID     string     `json:"id"`
	OrgID  string     `json:"orgId"  validate:"required"`
	Type   EntityType `json:"type"   validate:"required"`
	Status Status     `json:"status"`

	// Relationship references used for target resolution.
	ProjectID string `json:"projectId,omitempty"`
	ClientID  string `json:"clientId,omitempty"`
	QuoteID   string `json:"quoteId,omitempty"`

	// Terminal-transition stamps.
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
	PaidAt      *time.Time `json:"paidAt,omitempty"`

	// Remaining document fields, visible to condition nodes.
	Fields map[string]any `json:"fields,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Field returns a named entity field for condition evaluation. The identity,
// status and relationship columns shadow entries in Fields.
func (e *Entity) Field(name string) (any, bool) {
	switch name {
	case "id":
		return e.ID, true
	case "status":
		return string(e.Status), true
	case "type":
		return string(e.Type), true
	case "projectId":
		return stringField(e.ProjectID)
	case "clientId":
		return stringField(e.ClientID)
	case "quoteId":
		return stringField(e.QuoteID)
	}

	v, ok := e.Fields[name]

	return v, ok
}

func stringField(v string) (any, bool) {
	if v == "" {
		return nil, false
	}

	return v, true
}
