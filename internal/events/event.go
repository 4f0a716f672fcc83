// Package events provides the in-process event bus and the domain event
// definitions used for decoupled communication between modules.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is the base interface all domain events must implement.
type Event interface {
	// EventName returns a unique identifier for the event type.
	EventName() string
	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent creates a new base event with the current timestamp.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler processes events of a specific type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is an adapter to allow ordinary functions to be used as handlers.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus is the interface for publishing and subscribing to domain events.
type Bus interface {
	// Publish sends an event to all registered handlers for that event type.
	// Handlers are executed asynchronously.
	Publish(ctx context.Context, event Event)

	// PublishSync sends an event and waits for all handlers to complete.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler for a specific event type.
	// The eventName should match the value returned by Event.EventName().
	Subscribe(eventName string, handler Handler)
}

// MessageCreated is published whenever a message is appended to a
// conversation, inbound or outbound.
type MessageCreated struct {
	BaseEvent
	MessageID      uuid.UUID `json:"messageId"`
	ConversationID uuid.UUID `json:"conversationId"`
	Direction      string    `json:"direction"`
	Content        string    `json:"content"`
	MediaType      string    `json:"mediaType,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (e MessageCreated) EventName() string { return "conversations.message.created" }

// ConversationUpdated is published when conversation-level state changes,
// such as automation being toggled or a human taking over.
type ConversationUpdated struct {
	BaseEvent
	ConversationID    uuid.UUID `json:"conversationId"`
	AutomationEnabled bool      `json:"automationEnabled"`
	LastMessageAt     time.Time `json:"lastMessageAt"`
}

func (e ConversationUpdated) EventName() string { return "conversations.conversation.updated" }

// VisitConfirmed is published when a lead confirms a property visit.
type VisitConfirmed struct {
	BaseEvent
	VisitID     uuid.UUID `json:"visitId"`
	LeadID      uuid.UUID `json:"leadId"`
	PropertyID  uuid.UUID `json:"propertyId"`
	BrokerID    uuid.UUID `json:"brokerId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

func (e VisitConfirmed) EventName() string { return "scheduling.visit.confirmed" }

// TurnAbandoned is published when a conversation turn exhausts its retries
// and needs human follow-up.
type TurnAbandoned struct {
	BaseEvent
	Phone  string `json:"phone"`
	Reason string `json:"reason"`
}

func (e TurnAbandoned) EventName() string { return "conversations.turn.abandoned" }
