package dto

import (
	"time"

	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Customer    CustomerPayload       `json:"customer"`
	CategoryID  string                `json:"category_id"`
	Subject     string                `json:"subject"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
}

// CustomerPayload identifies the requesting customer.
type CustomerPayload struct {
	CustomerID string `json:"customer_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status     domain.TicketStatus `json:"status"`
	Resolution *ResolutionPayload  `json:"resolution"`
}

// ResolutionPayload accompanies Resolved and Closed transitions.
type ResolutionPayload struct {
	Summary string `json:"summary"`
	Type    string `json:"type"`
}

// AssignRequest payload.
type AssignRequest struct {
	AgentID string `json:"agent_id"`
}

// EscalateRequest payload.
type EscalateRequest struct {
	Reason string `json:"reason"`
}

// MergeRequest payload.
type MergeRequest struct {
	SecondaryIDs []string `json:"secondary_ids"`
}

// AddTicketMessageRequest payload.
type AddTicketMessageRequest struct {
	Content    string `json:"content"`
	IsInternal bool   `json:"is_internal"`
}

// RateRequest payload for tickets and chat sessions.
type RateRequest struct {
	Rating   int     `json:"rating"`
	Feedback *string `json:"feedback"`
}

// TicketSummary response.
type TicketSummary struct {
	ID              string                `json:"id"`
	Number          string                `json:"number"`
	CategoryID      string                `json:"category_id"`
	Subject         string                `json:"subject"`
	Status          domain.TicketStatus   `json:"status"`
	Priority        domain.TicketPriority `json:"priority"`
	AssignedAgentID *string               `json:"assigned_agent_id"`
	MessageCount    int                   `json:"message_count"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// SLAView response block.
type SLAView struct {
	FirstResponseDue      time.Time  `json:"first_response_due"`
	ResolutionDue         time.Time  `json:"resolution_due"`
	FirstRespondedAt      *time.Time `json:"first_responded_at"`
	ResolvedAt            *time.Time `json:"resolved_at"`
	FirstResponseBreached bool       `json:"first_response_breached"`
	ResolutionBreached    bool       `json:"resolution_breached"`
}

// TicketDetail response.
type TicketDetail struct {
	TicketSummary
	Customer        CustomerPayload     `json:"customer"`
	Description     string              `json:"description"`
	SLA             SLAView             `json:"sla"`
	Resolution      *ResolutionView     `json:"resolution,omitempty"`
	EscalationLevel int                 `json:"escalation_level"`
	MergedInto      *string             `json:"merged_into,omitempty"`
	MergedTickets   []string            `json:"merged_tickets"`
	Rating          *int                `json:"rating,omitempty"`
	Messages        []TicketMessageView `json:"messages"`
}

// ResolutionView response block.
type ResolutionView struct {
	Summary    string    `json:"summary"`
	Type       string    `json:"type"`
	ResolvedBy string    `json:"resolved_by"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// TicketMessageView response.
type TicketMessageView struct {
	ID         string                  `json:"id"`
	SenderType domain.TicketSenderType `json:"sender_type"`
	SenderID   *string                 `json:"sender_id,omitempty"`
	Content    string                  `json:"content"`
	IsInternal bool                    `json:"is_internal"`
	CreatedAt  time.Time               `json:"created_at"`
}
