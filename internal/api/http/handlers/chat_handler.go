package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Abdualsslam/tras-phone-sub000/internal/api/dto"
	"github.com/Abdualsslam/tras-phone-sub000/internal/auth"
	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
	"github.com/Abdualsslam/tras-phone-sub000/internal/repository"
	"github.com/Abdualsslam/tras-phone-sub000/internal/service"
	apperrors "github.com/Abdualsslam/tras-phone-sub000/pkg/errorutil"
)

// ChatHandler manages live-chat endpoints for both visitors and agents.
type ChatHandler struct {
	chats    *service.ChatService
	messages *service.MessageService
}

// NewChatHandler constructs handler.
func NewChatHandler(chatService *service.ChatService, messageService *service.MessageService) *ChatHandler {
	return &ChatHandler{chats: chatService, messages: messageService}
}

// Start POST /chat/sessions.
func (h *ChatHandler) Start(c *fiber.Ctx) error {
	var req dto.StartChatRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	session, err := h.chats.CreateSession(c.UserContext(), service.ChatCreateInput{
		Visitor: domain.VisitorSnapshot{
			CustomerID:   req.Visitor.CustomerID,
			Name:         req.Visitor.Name,
			Email:        req.Visitor.Email,
			Phone:        req.Visitor.Phone,
			CurrentPage:  req.Visitor.CurrentPage,
			VisitedPages: []string{req.Visitor.CurrentPage},
		},
		Department:     req.Department,
		CategoryID:     req.CategoryID,
		InitialMessage: req.InitialMessage,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": sessionSummary(session)})
}

// GetPublic GET /chat/sessions/:id for visitors; internal messages hidden.
func (h *ChatHandler) GetPublic(c *fiber.Ctx) error {
	session, msgs, err := h.chats.GetSession(c.UserContext(), c.Params("id"), false)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sessionDetail(session, msgs)})
}

// AddVisitorMessage POST /chat/sessions/:id/messages for visitors.
func (h *ChatHandler) AddVisitorMessage(c *fiber.Ctx) error {
	var req dto.AddChatMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.messages.AddChatMessage(c.UserContext(), c.Params("id"), service.ChatMessageInput{
		Sender:   domain.ChatSenderVisitor,
		SenderID: req.SenderID,
		Content:  req.Content,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": chatMessageView(msg)})
}

// UpdatePage PATCH /chat/sessions/:id/page.
func (h *ChatHandler) UpdatePage(c *fiber.Ctx) error {
	var req dto.UpdatePageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Page == "" {
		return apperrors.NewValidationError("page required", nil)
	}
	session, err := h.chats.UpdateVisitorPage(c.UserContext(), c.Params("id"), req.Page)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sessionSummary(session)})
}

// MarkReadVisitor POST /chat/sessions/:id/read for visitors.
func (h *ChatHandler) MarkReadVisitor(c *fiber.Ctx) error {
	if err := h.chats.MarkMessagesAsRead(c.UserContext(), c.Params("id"), false); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// EndPublic POST /chat/sessions/:id/end for visitors.
func (h *ChatHandler) EndPublic(c *fiber.Ctx) error {
	session, err := h.chats.EndSession(c.UserContext(), c.Params("id"), domain.Actor{Type: domain.ActorTypeVisitor, ID: c.Params("id")})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sessionSummary(session)})
}

// Rate POST /chat/sessions/:id/rating.
func (h *ChatHandler) Rate(c *fiber.Ctx) error {
	var req dto.RateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	session, err := h.chats.RateSession(c.UserContext(), c.Params("id"), req.Rating, req.Feedback)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sessionSummary(session)})
}

// List GET /chat/sessions for agents.
func (h *ChatHandler) List(c *fiber.Ctx) error {
	sessions, err := h.chats.ListSessions(c.UserContext(), parseChatQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.ChatSessionSummary, 0, len(sessions))
	for i := range sessions {
		items = append(items, sessionSummary(&sessions[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /chat/sessions/:id for agents; internal messages included.
func (h *ChatHandler) Get(c *fiber.Ctx) error {
	session, msgs, err := h.chats.GetSession(c.UserContext(), c.Params("id"), true)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sessionDetail(session, msgs)})
}

// Accept POST /chat/sessions/:id/accept.
func (h *ChatHandler) Accept(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	session, err := h.chats.AcceptSession(c.UserContext(), c.Params("id"), principal.Agent.ID, principal.Actor())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sessionSummary(session)})
}

// Transfer POST /chat/sessions/:id/transfer.
func (h *ChatHandler) Transfer(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.TransferRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ToAgentID == "" {
		return apperrors.NewValidationError("to_agent_id required", nil)
	}
	session, err := h.chats.TransferSession(c.UserContext(), c.Params("id"), principal.Agent.ID, req.ToAgentID, req.Reason, principal.Actor())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sessionSummary(session)})
}

// End POST /chat/sessions/:id/end for agents.
func (h *ChatHandler) End(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	session, err := h.chats.EndSession(c.UserContext(), c.Params("id"), principal.Actor())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sessionSummary(session)})
}

// AddAgentMessage POST /chat/sessions/:id/messages for agents.
func (h *ChatHandler) AddAgentMessage(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.AddChatMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	agentID := principal.Agent.ID
	msg, err := h.messages.AddChatMessage(c.UserContext(), c.Params("id"), service.ChatMessageInput{
		Sender:     domain.ChatSenderAgent,
		SenderID:   &agentID,
		Content:    req.Content,
		IsInternal: req.IsInternal,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": chatMessageView(msg)})
}

// MarkRead POST /chat/sessions/:id/read for agents.
func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	if err := h.chats.MarkMessagesAsRead(c.UserContext(), c.Params("id"), true); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func parseChatQuery(c *fiber.Ctx) repository.ChatSessionFilter {
	filter := repository.ChatSessionFilter{Limit: 50}
	if v := c.Query("department"); v != "" {
		filter.Department = &v
	}
	if v := c.Query("assignee_id"); v != "" {
		filter.AssigneeID = &v
	}
	for _, raw := range splitCSV(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.ChatStatus(strings.ToUpper(raw)))
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 200 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		filter.Offset = v
	}
	return filter
}

func sessionSummary(session *domain.ChatSession) dto.ChatSessionSummary {
	return dto.ChatSessionSummary{
		ID:              session.ID,
		Number:          session.Number,
		Department:      session.Department,
		Status:          session.Status,
		QueuePosition:   session.QueuePosition,
		AssignedAgentID: session.AssignedAgentID,
		MessageCount:    session.Metrics.MessageCount,
		CreatedAt:       session.CreatedAt,
		LastActivityAt:  session.LastActivityAt,
	}
}

func sessionDetail(session *domain.ChatSession, msgs []domain.ChatMessage) dto.ChatSessionDetail {
	detail := dto.ChatSessionDetail{
		ChatSessionSummary: sessionSummary(session),
		Visitor: dto.VisitorPayload{
			CustomerID:  session.Visitor.CustomerID,
			Name:        session.Visitor.Name,
			Email:       session.Visitor.Email,
			Phone:       session.Visitor.Phone,
			CurrentPage: session.Visitor.CurrentPage,
		},
		WaitSeconds:     int64(session.Metrics.WaitTime.Seconds()),
		DurationSeconds: int64(session.Metrics.ChatDuration.Seconds()),
		VisitorMessages: session.Metrics.VisitorMessageCount,
		AgentMessages:   session.Metrics.AgentMessageCount,
		Transfers:       session.Transfers,
		Rating:          session.Rating,
		StartedAt:       session.StartedAt,
		EndedAt:         session.EndedAt,
		Messages:        make([]dto.ChatMessageView, 0, len(msgs)),
	}
	for i := range msgs {
		detail.Messages = append(detail.Messages, chatMessageView(&msgs[i]))
	}
	return detail
}

func chatMessageView(msg *domain.ChatMessage) dto.ChatMessageView {
	return dto.ChatMessageView{
		ID:            msg.ID,
		SenderType:    msg.SenderType,
		SenderID:      msg.SenderID,
		Content:       msg.Content,
		IsInternal:    msg.IsInternal,
		ReadByAgent:   msg.ReadByAgent,
		ReadByVisitor: msg.ReadByVisitor,
		CreatedAt:     msg.CreatedAt,
	}
}
