package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen             TicketStatus = "OPEN"
	TicketStatusAwaitingResponse TicketStatus = "AWAITING_RESPONSE"
	TicketStatusInProgress       TicketStatus = "IN_PROGRESS"
	TicketStatusOnHold           TicketStatus = "ON_HOLD"
	TicketStatusEscalated        TicketStatus = "ESCALATED"
	TicketStatusResolved         TicketStatus = "RESOLVED"
	TicketStatusClosed           TicketStatus = "CLOSED"
	TicketStatusReopened         TicketStatus = "REOPENED"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// CustomerSnapshot embeds the customer identity captured at creation time.
type CustomerSnapshot struct {
	CustomerID string
	Name       string
	Email      string
	Phone      string
}

// SLAInfo tracks the deadlines fixed at creation and their outcomes.
// Breached flags are monotonic: once true they never revert.
type SLAInfo struct {
	FirstResponseDue      time.Time
	ResolutionDue         time.Time
	FirstRespondedAt      *time.Time
	ResolvedAt            *time.Time
	FirstResponseBreached bool
	ResolutionBreached    bool
}

// Resolution records how a ticket was closed out.
type Resolution struct {
	Summary    string
	Type       string
	ResolvedBy string
	ResolvedAt time.Time
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID                string
	Number            string
	Customer          CustomerSnapshot
	CategoryID        string
	Subject           string
	Description       string
	Status            TicketStatus
	Priority          TicketPriority
	AssignedAgentID   *string
	AssignedAt        *time.Time
	SLA               SLAInfo
	Resolution        *Resolution
	EscalationLevel   int
	MergedInto        *string
	MergedTickets     []string
	MessageCount      int
	InternalNoteCount int
	LastCustomerReply *time.Time
	LastAgentReply    *time.Time
	Rating            *int
	RatingFeedback    *string
	RatedAt           *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Merged reports whether the ticket has been folded into another one.
// Merged tickets are immutable except for being further referenced.
func (t *Ticket) Merged() bool {
	return t.MergedInto != nil
}

// Rateable reports whether a satisfaction rating may still be recorded.
func (t *Ticket) Rateable() bool {
	return (t.Status == TicketStatusResolved || t.Status == TicketStatusClosed) && t.Rating == nil
}
