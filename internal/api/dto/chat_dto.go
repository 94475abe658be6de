package dto

import (
	"time"

	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
)

// StartChatRequest payload.
type StartChatRequest struct {
	Visitor        VisitorPayload `json:"visitor"`
	Department     string         `json:"department"`
	CategoryID     *string        `json:"category_id"`
	InitialMessage string         `json:"initial_message"`
}

// VisitorPayload identifies the visitor opening a session.
type VisitorPayload struct {
	CustomerID  *string `json:"customer_id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Phone       string  `json:"phone"`
	CurrentPage string  `json:"current_page"`
}

// TransferRequest payload.
type TransferRequest struct {
	ToAgentID string `json:"to_agent_id"`
	Reason    string `json:"reason"`
}

// AddChatMessageRequest payload.
type AddChatMessageRequest struct {
	Sender     domain.ChatSenderType `json:"sender"`
	SenderID   *string               `json:"sender_id"`
	Content    string                `json:"content"`
	IsInternal bool                  `json:"is_internal"`
}

// UpdatePageRequest payload.
type UpdatePageRequest struct {
	Page string `json:"page"`
}

// ChatSessionSummary response.
type ChatSessionSummary struct {
	ID              string            `json:"id"`
	Number          string            `json:"number"`
	Department      string            `json:"department"`
	Status          domain.ChatStatus `json:"status"`
	QueuePosition   int               `json:"queue_position"`
	AssignedAgentID *string           `json:"assigned_agent_id"`
	MessageCount    int               `json:"message_count"`
	CreatedAt       time.Time         `json:"created_at"`
	LastActivityAt  time.Time         `json:"last_activity_at"`
}

// ChatSessionDetail response.
type ChatSessionDetail struct {
	ChatSessionSummary
	Visitor          VisitorPayload          `json:"visitor"`
	WaitSeconds      int64                   `json:"wait_seconds"`
	DurationSeconds  int64                   `json:"duration_seconds"`
	VisitorMessages  int                     `json:"visitor_message_count"`
	AgentMessages    int                     `json:"agent_message_count"`
	Transfers        []domain.TransferRecord `json:"transfers"`
	Rating           *int                    `json:"rating,omitempty"`
	StartedAt        *time.Time              `json:"started_at,omitempty"`
	EndedAt          *time.Time              `json:"ended_at,omitempty"`
	Messages         []ChatMessageView       `json:"messages"`
}

// ChatMessageView response.
type ChatMessageView struct {
	ID            string                `json:"id"`
	SenderType    domain.ChatSenderType `json:"sender_type"`
	SenderID      *string               `json:"sender_id,omitempty"`
	Content       string                `json:"content"`
	IsInternal    bool                  `json:"is_internal"`
	ReadByAgent   bool                  `json:"read_by_agent"`
	ReadByVisitor bool                  `json:"read_by_visitor"`
	CreatedAt     time.Time             `json:"created_at"`
}
