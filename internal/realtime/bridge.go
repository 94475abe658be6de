package realtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/Abdualsslam/tras-phone-sub000/internal/events"
)

// Bridge forwards dispatcher events onto hub topics. It is the only coupling
// between the domain managers and the websocket layer.
type Bridge struct {
	hub    *Hub
	logger *zap.Logger
}

// NewBridge creates the bridge.
func NewBridge(hub *Hub, logger *zap.Logger) *Bridge {
	return &Bridge{hub: hub, logger: logger}
}

// RegisterHandlers subscribes the bridge to every fan-out event type.
func (b *Bridge) RegisterHandlers(dispatcher events.Dispatcher) {
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketUpdated,
		events.EventTicketAssigned,
		events.EventTicketMessage,
		events.EventChatSessionWaiting,
		events.EventChatSessionAccepted,
		events.EventChatSessionUpdated,
		events.EventChatMessage,
		events.EventTypingStart,
		events.EventTypingStop,
	} {
		dispatcher.Subscribe(eventType, b.handle)
	}
}

func (b *Bridge) handle(_ context.Context, event events.Event) error {
	envelope := Envelope{
		Type:      string(event.Type),
		Timestamp: event.Timestamp,
		Payload:   event.Payload,
	}

	switch event.EntityKind {
	case events.EntityTicket:
		b.hub.Publish(TicketTopic(event.EntityID), envelope)
	case events.EntityChat:
		b.hub.Publish(ChatTopic(event.EntityID), envelope)
	}

	// Waiting-queue events also reach the department topic agents watch.
	if event.Type == events.EventChatSessionWaiting || event.Type == events.EventChatSessionUpdated {
		if payload, ok := event.Payload.(events.ChatSessionPayload); ok && payload.Department != "" {
			b.hub.Publish(DepartmentTopic(payload.Department), envelope)
		}
	}

	for _, userID := range event.UserIDs {
		b.hub.Publish(UserTopic(userID), envelope)
	}
	return nil
}
