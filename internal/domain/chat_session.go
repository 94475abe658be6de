package domain

import "time"

// ChatStatus enumerates lifecycle states for chat sessions.
type ChatStatus string

const (
	ChatStatusWaiting   ChatStatus = "WAITING"
	ChatStatusActive    ChatStatus = "ACTIVE"
	ChatStatusOnHold    ChatStatus = "ON_HOLD"
	ChatStatusEnded     ChatStatus = "ENDED"
	ChatStatusAbandoned ChatStatus = "ABANDONED"
)

// VisitorSnapshot embeds the visitor identity and browsing context.
type VisitorSnapshot struct {
	CustomerID   *string
	Name         string
	Email        string
	Phone        string
	CurrentPage  string
	VisitedPages []string
}

// ChatMetrics aggregates per-session counters and durations.
type ChatMetrics struct {
	WaitTime            time.Duration
	ChatDuration        time.Duration
	MessageCount        int
	VisitorMessageCount int
	AgentMessageCount   int
}

// TransferRecord captures one hand-off between agents.
type TransferRecord struct {
	FromAgent string    `json:"from_agent"`
	ToAgent   string    `json:"to_agent"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// ChatSession is the aggregate for live-chat conversations.
// Waiting sessions in one department hold queue positions forming
// a dense 1..N sequence ordered by creation time.
type ChatSession struct {
	ID              string
	Number          string
	Visitor         VisitorSnapshot
	Department      string
	CategoryID      *string
	Status          ChatStatus
	AssignedAgentID *string
	AssignedAt      *time.Time
	QueuePosition   int
	Metrics         ChatMetrics
	Transfers       []TransferRecord
	Rating          *int
	RatingFeedback  *string
	RatedAt         *time.Time
	StartedAt       *time.Time
	EndedAt         *time.Time
	LastActivityAt  time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Terminal reports whether the session can no longer change state.
func (s ChatStatus) Terminal() bool {
	return s == ChatStatusEnded || s == ChatStatusAbandoned
}

// Rateable reports whether a satisfaction rating may still be recorded.
func (c *ChatSession) Rateable() bool {
	return c.Status == ChatStatusEnded && c.Rating == nil
}
