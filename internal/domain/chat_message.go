package domain

import "time"

// ChatSenderType indicates who authored a chat message.
type ChatSenderType string

const (
	ChatSenderVisitor ChatSenderType = "VISITOR"
	ChatSenderAgent   ChatSenderType = "AGENT"
	ChatSenderSystem  ChatSenderType = "SYSTEM"
	ChatSenderBot     ChatSenderType = "BOT"
)

// ChatMessage is a single message inside a chat session.
type ChatMessage struct {
	ID            string
	SessionID     string
	SenderType    ChatSenderType
	SenderID      *string
	Content       string
	IsInternal    bool
	ReadByAgent   bool
	ReadByVisitor bool
	CreatedAt     time.Time
}
