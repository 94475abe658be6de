package realtime

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Abdualsslam/tras-phone-sub000/internal/auth"
	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
	"github.com/Abdualsslam/tras-phone-sub000/internal/events"
)

// Gateway upgrades HTTP connections to websockets and scopes each client's
// subscriptions. Agents authenticate with a token and may join ticket, chat,
// department and their own user topics; visitors are restricted to the chat
// topic of the session they present.
type Gateway struct {
	hub        *Hub
	tokens     *auth.TokenManager
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewGateway constructs the gateway.
func NewGateway(hub *Hub, tokens *auth.TokenManager, dispatcher events.Dispatcher, logger *zap.Logger) *Gateway {
	return &Gateway{hub: hub, tokens: tokens, dispatcher: dispatcher, logger: logger}
}

// Upgrade gates the handshake. Fiber requires the upgrade check to run as
// ordinary middleware before the websocket handler.
func (g *Gateway) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// Handler returns the websocket connection handler.
func (g *Gateway) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		token := conn.Query("token")
		sessionID := conn.Query("session_id")

		var (
			actorID   string
			actorType domain.ActorType
			authorize func(topic string) bool
		)
		switch {
		case token != "":
			claims, err := g.tokens.ParseToken(token)
			if err != nil {
				g.logger.Debug("websocket token rejected", zap.Error(err))
				_ = conn.Close()
				return
			}
			actorID = claims.AgentID
			actorType = domain.ActorTypeAgent
			authorize = agentTopics(claims.AgentID)
		case sessionID != "":
			actorID = sessionID
			actorType = domain.ActorTypeVisitor
			authorize = visitorTopics(sessionID)
		default:
			_ = conn.Close()
			return
		}

		client := NewClient(uuid.NewString(), actorID, conn, g.hub, g.logger, authorize, g.typingRelay(actorID, actorType))
		g.hub.Register(client)
		defer g.hub.Unregister(client)

		go client.WritePump()
		client.ReadPump()
	})
}

func (g *Gateway) typingRelay(actorID string, actorType domain.ActorType) func(sessionID, action string) {
	return func(sessionID, action string) {
		eventType := events.EventTypingStart
		if action == "typing_stop" {
			eventType = events.EventTypingStop
		}
		err := g.dispatcher.Publish(context.Background(), events.Event{
			ID:         uuid.NewString(),
			Type:       eventType,
			EntityKind: events.EntityChat,
			EntityID:   sessionID,
			Actor:      domain.Actor{Type: actorType, ID: actorID},
			Timestamp:  time.Now(),
			Payload:    events.TypingPayload{SessionID: sessionID, Actor: actorID},
		})
		if err != nil {
			g.logger.Debug("typing relay failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
}

// agentTopics allows any ticket, chat or department topic plus the agent's
// own user topic.
func agentTopics(agentID string) func(topic string) bool {
	return func(topic string) bool {
		switch {
		case strings.HasPrefix(topic, "ticket:"),
			strings.HasPrefix(topic, "chat:"),
			strings.HasPrefix(topic, "department:"):
			return true
		case topic == UserTopic(agentID):
			return true
		}
		return false
	}
}

// visitorTopics allows only the visitor's own session topic.
func visitorTopics(sessionID string) func(topic string) bool {
	return func(topic string) bool {
		return topic == ChatTopic(sessionID)
	}
}
