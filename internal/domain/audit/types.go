package audit

import (
	"encoding/json"
	"time"
)

// ActorType represents the type of actor performing an action
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// Outcome represents the result of an audited action
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDenied  Outcome = "denied"
	OutcomeError   Outcome = "error"
)

// AuditEvent represents a single audit log entry
// This is immutable - once created, it should never be modified
type AuditEvent struct {
	ID         string          `json:"id"`
	AgencyID   string          `json:"agencyId"`
	ActorID    string          `json:"actorId"`
	ActorType  ActorType       `json:"actorType"`
	Action     string          `json:"action"`
	EntityType *string         `json:"entityType,omitempty"`
	EntityID   *string         `json:"entityId,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	Outcome    Outcome         `json:"outcome"`
	TraceID    *string         `json:"traceId,omitempty"`
	IPAddress  *string         `json:"ipAddress,omitempty"`
	UserAgent  *string         `json:"userAgent,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// EventDetails captures the specifics of an audited action
type EventDetails struct {
	OldValue interface{} `json:"old_value,omitempty"`
	NewValue interface{} `json:"new_value,omitempty"`
	Changes  []Change    `json:"changes,omitempty"`
	Metadata interface{} `json:"metadata,omitempty"`
}

// Change represents a single field change
type Change struct {
	Field    string      `json:"field"`
	OldValue interface{} `json:"old_value,omitempty"`
	NewValue interface{} `json:"new_value,omitempty"`
}

// Filter narrows List results. Empty fields are ignored.
type Filter struct {
	ActorID    string
	Action     string
	Outcome    Outcome
	EntityType string
	EntityID   string
}
