package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Envelope is the frame delivered to subscribers of a topic.
type Envelope struct {
	Topic     string      `json:"topic"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Hub maintains topic subscriptions and pushes envelopes to subscribed
// clients. Delivery is best-effort and at-most-once: a slow client is
// dropped, and nothing is persisted or replayed.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[*Client]struct{}
	clients map[*Client]map[string]struct{}
	logger  *zap.Logger
}

// NewHub creates a hub instance.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		topics:  make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]map[string]struct{}),
		logger:  logger,
	}
}

// Register adds a connected client with no subscriptions yet.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = make(map[string]struct{})
}

// Unregister removes the client from every topic and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(client)
}

// Join subscribes the client to a topic.
func (h *Hub) Join(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.clients[client]
	if !ok {
		return
	}
	subs[topic] = struct{}{}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]struct{})
	}
	h.topics[topic][client] = struct{}{}
}

// Leave unsubscribes the client from a topic.
func (h *Hub) Leave(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.clients[client]; ok {
		delete(subs, topic)
	}
	if members, ok := h.topics[topic]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Publish fans an envelope out to every current subscriber of the topic.
func (h *Hub) Publish(topic string, envelope Envelope) {
	envelope.Topic = topic
	data, err := json.Marshal(envelope)
	if err != nil {
		h.logger.Error("marshal envelope", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.topics[topic] {
		select {
		case client.send <- data:
		default:
			// Client's send buffer is full, close and remove it.
			h.logger.Warn("client send buffer full, dropping",
				zap.String("client_id", client.id),
				zap.String("topic", topic))
			h.dropLocked(client)
		}
	}
}

// SubscriberCount returns the number of clients subscribed to a topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) dropLocked(client *Client) {
	subs, ok := h.clients[client]
	if !ok {
		return
	}
	for topic := range subs {
		if members, exists := h.topics[topic]; exists {
			delete(members, client)
			if len(members) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	delete(h.clients, client)
	close(client.send)
}

// TicketTopic renders the topic key for one ticket.
func TicketTopic(id string) string { return "ticket:" + id }

// ChatTopic renders the topic key for one chat session.
func ChatTopic(id string) string { return "chat:" + id }

// UserTopic renders the personal topic key for one user.
func UserTopic(id string) string { return "user:" + id }

// DepartmentTopic renders the agent-side queue topic for one department.
func DepartmentTopic(name string) string { return "department:" + name }
