package realtime

import (
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// ClientFrame is an inbound control frame from a connected client.
type ClientFrame struct {
	Action    string `json:"action"` // subscribe | unsubscribe | typing_start | typing_stop
	Topic     string `json:"topic,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Client is one websocket connection attached to the hub.
type Client struct {
	id      string
	actorID string
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	logger  *zap.Logger
	// authorize decides whether this client may join a topic.
	authorize func(topic string) bool
	// onTyping republished typing frames to the session topic.
	onTyping func(sessionID, action string)
}

// NewClient wraps an accepted websocket connection.
func NewClient(id, actorID string, conn *websocket.Conn, hub *Hub, logger *zap.Logger, authorize func(topic string) bool, onTyping func(sessionID, action string)) *Client {
	return &Client{
		id:        id,
		actorID:   actorID,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		hub:       hub,
		logger:    logger,
		authorize: authorize,
		onTyping:  onTyping,
	}
}

// ReadPump consumes control frames until the connection drops.
// It must run on the connection's handler goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.logger.Debug("invalid client frame", zap.String("client_id", c.id))
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame ClientFrame) {
	switch frame.Action {
	case "subscribe":
		if frame.Topic == "" {
			return
		}
		if c.authorize != nil && !c.authorize(frame.Topic) {
			c.logger.Warn("subscription denied",
				zap.String("client_id", c.id),
				zap.String("topic", frame.Topic))
			return
		}
		c.hub.Join(c, frame.Topic)
	case "unsubscribe":
		if frame.Topic != "" {
			c.hub.Leave(c, frame.Topic)
		}
	case "typing_start", "typing_stop":
		if frame.SessionID != "" && c.onTyping != nil {
			c.onTyping(frame.SessionID, frame.Action)
		}
	}
}

// WritePump pushes queued envelopes and pings to the peer.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
