package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Abdualsslam/tras-phone-sub000/internal/api/dto"
	"github.com/Abdualsslam/tras-phone-sub000/internal/auth"
	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
	"github.com/Abdualsslam/tras-phone-sub000/internal/repository"
	"github.com/Abdualsslam/tras-phone-sub000/internal/service"
	apperrors "github.com/Abdualsslam/tras-phone-sub000/pkg/errorutil"
)

// TicketsHandler manages ticket endpoints for both customers and agents.
type TicketsHandler struct {
	tickets  *service.TicketService
	messages *service.MessageService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, messageService *service.MessageService) *TicketsHandler {
	return &TicketsHandler{tickets: ticketService, messages: messageService}
}

// Create POST /tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Customer.CustomerID == "" {
		return apperrors.NewValidationError("customer.customer_id required", nil)
	}

	ticket, err := h.tickets.CreateTicket(c.UserContext(), service.TicketCreateInput{
		Customer: domain.CustomerSnapshot{
			CustomerID: req.Customer.CustomerID,
			Name:       req.Customer.Name,
			Email:      req.Customer.Email,
			Phone:      req.Customer.Phone,
		},
		CategoryID:  req.CategoryID,
		Subject:     req.Subject,
		Description: req.Description,
		Priority:    req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// GetPublic GET /tickets/:id for customers; internal notes are hidden.
func (h *TicketsHandler) GetPublic(c *fiber.Ctx) error {
	ticket, msgs, err := h.tickets.GetTicket(c.UserContext(), c.Params("id"), false)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, msgs)})
}

// AddCustomerMessage POST /tickets/:id/messages for customers.
func (h *TicketsHandler) AddCustomerMessage(c *fiber.Ctx) error {
	var req dto.AddTicketMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.messages.AddTicketMessage(c.UserContext(), c.Params("id"), service.TicketMessageInput{
		Sender:  domain.TicketSenderCustomer,
		Content: req.Content,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketMessageView(msg)})
}

// Rate POST /tickets/:id/rating.
func (h *TicketsHandler) Rate(c *fiber.Ctx) error {
	var req dto.RateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.Rate(c.UserContext(), c.Params("id"), req.Rating, req.Feedback)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// List GET /tickets for agents.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	tickets, err := h.tickets.ListTickets(c.UserContext(), parseTicketQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /tickets/:id for agents; internal notes included.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	ticket, msgs, err := h.tickets.GetTicket(c.UserContext(), c.Params("id"), true)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, msgs)})
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	var resolution *service.ResolutionInput
	if req.Resolution != nil {
		resolution = &service.ResolutionInput{Summary: req.Resolution.Summary, Type: req.Resolution.Type}
	}
	ticket, err := h.tickets.UpdateStatus(c.UserContext(), c.Params("id"), req.Status, principal.Actor(), resolution)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Assign POST /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.AgentID == "" {
		return apperrors.NewValidationError("agent_id required", nil)
	}
	ticket, err := h.tickets.Assign(c.UserContext(), c.Params("id"), req.AgentID, principal.Actor())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Escalate POST /tickets/:id/escalate.
func (h *TicketsHandler) Escalate(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.EscalateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.Escalate(c.UserContext(), c.Params("id"), principal.Actor(), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Merge POST /tickets/:id/merge.
func (h *TicketsHandler) Merge(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.MergeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.SecondaryIDs) == 0 {
		return apperrors.NewValidationError("secondary_ids required", nil)
	}
	ticket, err := h.tickets.MergeTickets(c.UserContext(), c.Params("id"), req.SecondaryIDs, principal.Actor())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// AddAgentMessage POST /tickets/:id/messages for agents; may be internal.
func (h *TicketsHandler) AddAgentMessage(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.AddTicketMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	agentID := principal.Agent.ID
	msg, err := h.messages.AddTicketMessage(c.UserContext(), c.Params("id"), service.TicketMessageInput{
		Sender:     domain.TicketSenderAgent,
		SenderID:   &agentID,
		Content:    req.Content,
		IsInternal: req.IsInternal,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketMessageView(msg)})
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{
		Limit:  50,
		Offset: 0,
	}
	if v := c.Query("customer_id"); v != "" {
		filter.CustomerID = &v
	}
	if v := c.Query("category_id"); v != "" {
		filter.CategoryID = &v
	}
	if v := c.Query("assignee_id"); v != "" {
		filter.AssigneeID = &v
	}
	if v := c.Query("search"); v != "" {
		filter.SearchTerm = &v
	}
	for _, raw := range splitCSV(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(raw)))
	}
	for _, raw := range splitCSV(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.ToUpper(raw)))
	}
	if v := c.Query("created_from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.CreatedFrom = &t
		}
	}
	if v := c.Query("created_to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.CreatedTo = &t
		}
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 200 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		filter.Offset = v
	}
	return filter
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:              ticket.ID,
		Number:          ticket.Number,
		CategoryID:      ticket.CategoryID,
		Subject:         ticket.Subject,
		Status:          ticket.Status,
		Priority:        ticket.Priority,
		AssignedAgentID: ticket.AssignedAgentID,
		MessageCount:    ticket.MessageCount,
		CreatedAt:       ticket.CreatedAt,
		UpdatedAt:       ticket.UpdatedAt,
	}
}

func ticketDetail(ticket *domain.Ticket, msgs []domain.TicketMessage) dto.TicketDetail {
	detail := dto.TicketDetail{
		TicketSummary: ticketSummary(ticket),
		Customer: dto.CustomerPayload{
			CustomerID: ticket.Customer.CustomerID,
			Name:       ticket.Customer.Name,
			Email:      ticket.Customer.Email,
			Phone:      ticket.Customer.Phone,
		},
		Description: ticket.Description,
		SLA: dto.SLAView{
			FirstResponseDue:      ticket.SLA.FirstResponseDue,
			ResolutionDue:         ticket.SLA.ResolutionDue,
			FirstRespondedAt:      ticket.SLA.FirstRespondedAt,
			ResolvedAt:            ticket.SLA.ResolvedAt,
			FirstResponseBreached: ticket.SLA.FirstResponseBreached,
			ResolutionBreached:    ticket.SLA.ResolutionBreached,
		},
		EscalationLevel: ticket.EscalationLevel,
		MergedInto:      ticket.MergedInto,
		MergedTickets:   ticket.MergedTickets,
		Rating:          ticket.Rating,
		Messages:        make([]dto.TicketMessageView, 0, len(msgs)),
	}
	if ticket.Resolution != nil {
		detail.Resolution = &dto.ResolutionView{
			Summary:    ticket.Resolution.Summary,
			Type:       ticket.Resolution.Type,
			ResolvedBy: ticket.Resolution.ResolvedBy,
			ResolvedAt: ticket.Resolution.ResolvedAt,
		}
	}
	for i := range msgs {
		detail.Messages = append(detail.Messages, ticketMessageView(&msgs[i]))
	}
	return detail
}

func ticketMessageView(msg *domain.TicketMessage) dto.TicketMessageView {
	return dto.TicketMessageView{
		ID:         msg.ID,
		SenderType: msg.SenderType,
		SenderID:   msg.SenderID,
		Content:    msg.Content,
		IsInternal: msg.IsInternal,
		CreatedAt:  msg.CreatedAt,
	}
}
