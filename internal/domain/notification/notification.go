// Package notification records the activity feed. Producers emit structured
// events; the recorder persists them with their display text and republishes
// the stored notification for realtime delivery.
package notification

import (
	"context"
	"strings"
	"time"

	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/eventbus"
)

const (
	// TopicActivity carries Event values from producers to the recorder.
	TopicActivity = "activity.created"
	// TopicStored carries *Notification values after persistence.
	TopicStored = "notification.stored"
)

// Event is one activity performed by an actor on a named entity.
// SubAccountID is empty for agency-level activity.
type Event struct {
	AgencyID     string
	SubAccountID string
	ActorID      string
	Action       string
	EntityType   string
	EntityName   string
}

// NewEvent builds an Event from the caller's scope.
func NewEvent(s access.Scope, action, entityType, entityName string) Event {
	return Event{
		AgencyID:     s.AgencyID,
		SubAccountID: s.SubAccountID,
		ActorID:      s.UserID,
		Action:       action,
		EntityType:   entityType,
		EntityName:   entityName,
	}
}

// Notification is a persisted activity entry.
type Notification struct {
	ID           string    `json:"id"`
	AgencyID     string    `json:"agencyId"`
	SubAccountID *string   `json:"subAccountId,omitempty"`
	UserID       string    `json:"userId"`
	Action       string    `json:"action"`
	EntityType   string    `json:"entityType"`
	EntityName   string    `json:"entityName"`
	Notification string    `json:"notification"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Render produces the display text "<actor> | <action> | <entity name>".
func Render(actorName, action, entityName string) string {
	parts := []string{actorName, action}
	if entityName != "" {
		parts = append(parts, entityName)
	}
	return strings.Join(parts, " | ")
}

// Notifier is implemented by anything that accepts activity events.
// Notify never blocks and never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// BusNotifier publishes events on the event bus for the Recorder.
type BusNotifier struct {
	bus eventbus.EventBus
}

// NewBusNotifier returns a Notifier backed by bus.
func NewBusNotifier(bus eventbus.EventBus) *BusNotifier {
	return &BusNotifier{bus: bus}
}

// Notify publishes evt on TopicActivity.
func (n *BusNotifier) Notify(_ context.Context, evt Event) {
	n.bus.Publish(TopicActivity, evt)
}

// Nop discards events.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, Event) {}
