package events

import (
	"time"

	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated  EventType = "ticket:created"
	EventTicketUpdated  EventType = "ticket:updated"
	EventTicketAssigned EventType = "ticket:assigned"
	EventTicketMessage  EventType = "ticket:message"

	EventChatSessionWaiting  EventType = "chat:session:waiting"
	EventChatSessionAccepted EventType = "chat:session:accepted"
	EventChatSessionUpdated  EventType = "chat:session:updated"
	EventChatMessage         EventType = "chat:message"

	EventTypingStart EventType = "typing:start"
	EventTypingStop  EventType = "typing:stop"
)

// EntityKind distinguishes the aggregate an event refers to.
type EntityKind string

const (
	EntityTicket EntityKind = "ticket"
	EntityChat   EntityKind = "chat"
)

// Event represents a domain event emitted by the managers.
type Event struct {
	ID         string       `json:"id"`
	Type       EventType    `json:"type"`
	EntityKind EntityKind   `json:"entity_kind"`
	EntityID   string       `json:"entity_id"`
	Actor      domain.Actor `json:"actor"`
	// UserIDs lists users whose personal topics should also receive the event.
	UserIDs   []string    `json:"-"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Number     string                `json:"number"`
	CategoryID string                `json:"category_id"`
	Priority   domain.TicketPriority `json:"priority"`
	Subject    string                `json:"subject"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status,omitempty"`
	NewStatus domain.TicketStatus `json:"new_status,omitempty"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	OldAgentID *string `json:"old_agent_id,omitempty"`
	NewAgentID string  `json:"new_agent_id"`
}

// TicketMessagePayload payload.
type TicketMessagePayload struct {
	MessageID  string                  `json:"message_id"`
	SenderType domain.TicketSenderType `json:"sender_type"`
	Content    string                  `json:"content"`
}

// ChatSessionPayload payload for waiting/accepted/updated events.
type ChatSessionPayload struct {
	Number        string            `json:"number"`
	Department    string            `json:"department"`
	Status        domain.ChatStatus `json:"status"`
	QueuePosition int               `json:"queue_position"`
	AgentID       *string           `json:"agent_id,omitempty"`
}

// ChatMessagePayload payload.
type ChatMessagePayload struct {
	MessageID  string                `json:"message_id"`
	SenderType domain.ChatSenderType `json:"sender_type"`
	Content    string                `json:"content"`
}

// TypingPayload payload for typing start/stop.
type TypingPayload struct {
	SessionID string `json:"session_id"`
	Actor     string `json:"actor"`
}
