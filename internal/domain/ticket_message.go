package domain

import "time"

// TicketSenderType indicates who authored a ticket message.
type TicketSenderType string

const (
	TicketSenderCustomer TicketSenderType = "CUSTOMER"
	TicketSenderAgent    TicketSenderType = "AGENT"
	TicketSenderSystem   TicketSenderType = "SYSTEM"
)

// TicketMessage captures communications in a ticket thread.
// Internal messages never reach the customer or the fan-out gateway.
type TicketMessage struct {
	ID         string
	TicketID   string
	SenderType TicketSenderType
	SenderID   *string
	Content    string
	IsInternal bool
	CreatedAt  time.Time
}
