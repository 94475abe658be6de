package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Abdualsslam/tras-phone-sub000/internal/audit"
	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
	"github.com/Abdualsslam/tras-phone-sub000/internal/events"
	"github.com/Abdualsslam/tras-phone-sub000/internal/notify"
	"github.com/Abdualsslam/tras-phone-sub000/internal/repository"
	apperrors "github.com/Abdualsslam/tras-phone-sub000/pkg/errorutil"
)

// MessageService appends messages and applies lifecycle counters/timestamps
// as a side effect of the insertion. Ticket status transitions triggered by
// messages live here, as does the bot routing for queued chat sessions.
type MessageService struct {
	tickets        repository.TicketRepository
	ticketMessages repository.TicketMessageRepository
	sessions       repository.ChatSessionRepository
	chatMessages   repository.ChatMessageRepository
	bot            *BotMatcher
	side           collaborators
	now            func() time.Time
}

// MessageDependencies bundles repositories and collaborators.
type MessageDependencies struct {
	TicketRepo        repository.TicketRepository
	TicketMessageRepo repository.TicketMessageRepository
	SessionRepo       repository.ChatSessionRepository
	ChatMessageRepo   repository.ChatMessageRepository
	BotMatcher        *BotMatcher
	Dispatcher        events.Dispatcher
	Auditor           audit.Recorder
	Notifier          notify.Notifier
	Logger            *zap.Logger
}

// NewMessageService constructs the engine.
func NewMessageService(deps MessageDependencies) *MessageService {
	return &MessageService{
		tickets:        deps.TicketRepo,
		ticketMessages: deps.TicketMessageRepo,
		sessions:       deps.SessionRepo,
		chatMessages:   deps.ChatMessageRepo,
		bot:            deps.BotMatcher,
		side: collaborators{
			dispatcher: deps.Dispatcher,
			auditor:    deps.Auditor,
			notifier:   deps.Notifier,
			logger:     deps.Logger,
		},
		now: time.Now,
	}
}

// TicketMessageInput describes one ticket message append.
type TicketMessageInput struct {
	Sender     domain.TicketSenderType
	SenderID   *string
	Content    string
	IsInternal bool
}

// AddTicketMessage persists the message and its counter/status effects
// atomically, then fans out unless the message is internal.
func (s *MessageService) AddTicketMessage(ctx context.Context, ticketID string, input TicketMessageInput) (*domain.TicketMessage, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, apperrors.NewValidationError("content required", nil)
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.Merged() {
		return nil, apperrors.NewInvalidState("ticket merged into another ticket", map[string]any{"merged_into": *ticket.MergedInto})
	}

	now := s.now()
	effects := ticketMessageEffects(ticket, input.Sender, input.IsInternal, now)
	msg := &domain.TicketMessage{
		TicketID:   ticket.ID,
		SenderType: input.Sender,
		SenderID:   input.SenderID,
		Content:    strings.TrimSpace(input.Content),
		IsInternal: input.IsInternal,
	}
	if err := s.ticketMessages.Append(ctx, msg, effects); err != nil {
		return nil, apperrors.MapError(err)
	}

	if !msg.IsInternal {
		s.side.publish(ctx, events.Event{
			Type:       events.EventTicketMessage,
			EntityKind: events.EntityTicket,
			EntityID:   ticket.ID,
			Actor:      messageActor(input.Sender, input.SenderID),
			UserIDs:    ticketAudience(ticket),
			Payload: events.TicketMessagePayload{
				MessageID:  msg.ID,
				SenderType: msg.SenderType,
				Content:    msg.Content,
			},
		})
		s.notifyTicketMessage(ctx, ticket, msg)
	}
	return msg, nil
}

// ticketMessageEffects derives the counter and lifecycle updates a message
// insertion must carry:
//   - a customer message while AwaitingResponse reopens the ticket;
//   - a public agent message while Open/InProgress moves it to
//     AwaitingResponse, stamping first response on the first such message and
//     evaluating the first-response breach at that instant.
func ticketMessageEffects(ticket *domain.Ticket, sender domain.TicketSenderType, isInternal bool, now time.Time) repository.TicketMessageEffects {
	effects := repository.TicketMessageEffects{}
	if isInternal {
		effects.IncrementInternalNotes = true
	} else {
		effects.IncrementMessages = true
	}

	switch sender {
	case domain.TicketSenderCustomer:
		effects.LastCustomerReplyAt = &now
		if ticket.Status == domain.TicketStatusAwaitingResponse {
			status := domain.TicketStatusOpen
			effects.NewStatus = &status
		}
	case domain.TicketSenderAgent:
		if isInternal {
			break
		}
		effects.LastAgentReplyAt = &now
		if ticket.Status == domain.TicketStatusOpen || ticket.Status == domain.TicketStatusInProgress {
			status := domain.TicketStatusAwaitingResponse
			effects.NewStatus = &status
		}
		if ticket.SLA.FirstRespondedAt == nil {
			effects.FirstRespondedAt = &now
			if now.After(ticket.SLA.FirstResponseDue) {
				effects.FirstResponseBreached = true
			}
		}
	}
	return effects
}

// ChatMessageInput describes one chat message append.
type ChatMessageInput struct {
	Sender     domain.ChatSenderType
	SenderID   *string
	Content    string
	IsInternal bool
}

// AddChatMessage persists the message with its session counters, routes
// visitor messages on queued sessions through the bot matcher, and fans out
// unless the message is internal.
func (s *MessageService) AddChatMessage(ctx context.Context, sessionID string, input ChatMessageInput) (*domain.ChatMessage, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, apperrors.NewValidationError("content required", nil)
	}
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("chat session", map[string]any{"session_id": sessionID})
		}
		return nil, apperrors.MapError(err)
	}
	if session.Status.Terminal() {
		return nil, apperrors.NewInvalidState("session already ended", map[string]any{"status": session.Status})
	}

	now := s.now()
	msg := &domain.ChatMessage{
		SessionID:     session.ID,
		SenderType:    input.Sender,
		SenderID:      input.SenderID,
		Content:       strings.TrimSpace(input.Content),
		IsInternal:    input.IsInternal,
		ReadByAgent:   input.Sender == domain.ChatSenderAgent,
		ReadByVisitor: input.Sender == domain.ChatSenderVisitor,
	}
	effects := repository.ChatMessageEffects{
		IncrementMessages: true,
		IncrementVisitor:  input.Sender == domain.ChatSenderVisitor,
		IncrementAgent:    input.Sender == domain.ChatSenderAgent && !input.IsInternal,
		ActivityAt:        now,
	}
	if err := s.chatMessages.Append(ctx, msg, effects); err != nil {
		return nil, apperrors.MapError(err)
	}

	if !msg.IsInternal {
		s.side.publish(ctx, events.Event{
			Type:       events.EventChatMessage,
			EntityKind: events.EntityChat,
			EntityID:   session.ID,
			Actor:      chatActor(input.Sender, input.SenderID),
			UserIDs:    chatAudience(session),
			Payload: events.ChatMessagePayload{
				MessageID:  msg.ID,
				SenderType: msg.SenderType,
				Content:    msg.Content,
			},
		})
	}

	if input.Sender == domain.ChatSenderVisitor && session.Status == domain.ChatStatusWaiting {
		s.autoReply(ctx, session.ID, msg.Content)
	}
	return msg, nil
}

// autoReply asks the bot matcher for a canned response and re-enters the
// engine with it. Failures are logged, never surfaced.
func (s *MessageService) autoReply(ctx context.Context, sessionID, text string) {
	if s.bot == nil {
		return
	}
	reply, err := s.bot.ProcessMessage(ctx, text)
	if err != nil {
		s.side.logger.Warn("bot matching failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if reply == nil {
		return
	}
	if _, err := s.AddChatMessage(ctx, sessionID, ChatMessageInput{
		Sender:  domain.ChatSenderBot,
		Content: reply.Response,
	}); err != nil {
		s.side.logger.Warn("bot reply append failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *MessageService) notifyTicketMessage(ctx context.Context, ticket *domain.Ticket, msg *domain.TicketMessage) {
	switch msg.SenderType {
	case domain.TicketSenderCustomer:
		if ticket.AssignedAgentID != nil {
			s.side.sendNotification(ctx, notify.Notification{
				RecipientID:   *ticket.AssignedAgentID,
				RecipientType: notify.RecipientAgent,
				Category:      "ticket_message",
				Title:         "New customer reply",
				Body:          msg.Content,
				ActionRef:     ticket.Number,
			})
		}
	case domain.TicketSenderAgent:
		s.side.sendNotification(ctx, notify.Notification{
			RecipientID:   ticket.Customer.CustomerID,
			RecipientType: notify.RecipientCustomer,
			Category:      "ticket_message",
			Title:         "New reply on " + ticket.Number,
			Body:          msg.Content,
			ActionRef:     ticket.Number,
		})
	}
}

func messageActor(sender domain.TicketSenderType, senderID *string) domain.Actor {
	id := ""
	if senderID != nil {
		id = *senderID
	}
	switch sender {
	case domain.TicketSenderAgent:
		return domain.Actor{Type: domain.ActorTypeAgent, ID: id}
	case domain.TicketSenderCustomer:
		return domain.Actor{Type: domain.ActorTypeCustomer, ID: id}
	default:
		return domain.SystemActor
	}
}

func chatActor(sender domain.ChatSenderType, senderID *string) domain.Actor {
	id := ""
	if senderID != nil {
		id = *senderID
	}
	switch sender {
	case domain.ChatSenderAgent:
		return domain.Actor{Type: domain.ActorTypeAgent, ID: id}
	case domain.ChatSenderVisitor:
		return domain.Actor{Type: domain.ActorTypeVisitor, ID: id}
	default:
		return domain.SystemActor
	}
}

func ticketAudience(ticket *domain.Ticket) []string {
	audience := []string{ticket.Customer.CustomerID}
	if ticket.AssignedAgentID != nil {
		audience = append(audience, *ticket.AssignedAgentID)
	}
	return audience
}

func chatAudience(session *domain.ChatSession) []string {
	var audience []string
	if session.Visitor.CustomerID != nil {
		audience = append(audience, *session.Visitor.CustomerID)
	}
	if session.AssignedAgentID != nil {
		audience = append(audience, *session.AssignedAgentID)
	}
	return audience
}
