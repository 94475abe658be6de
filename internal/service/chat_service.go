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

const chatNumberPrefix = "CHAT"

// ChatService owns the live-chat session lifecycle: queueing, acceptance,
// transfer, ending and abandonment.
type ChatService struct {
	sessions  repository.ChatSessionRepository
	messages  repository.ChatMessageRepository
	sequences repository.SequenceRepository
	engine    *MessageService
	side      collaborators
	welcome   string
	now       func() time.Time
}

// ChatDependencies bundles repositories for the chat service.
type ChatDependencies struct {
	SessionRepo  repository.ChatSessionRepository
	MessageRepo  repository.ChatMessageRepository
	SequenceRepo repository.SequenceRepository
	Engine       *MessageService
	Dispatcher   events.Dispatcher
	Auditor      audit.Recorder
	Notifier     notify.Notifier
	Logger       *zap.Logger
	Welcome      string
}

// NewChatService constructs the service.
func NewChatService(deps ChatDependencies) *ChatService {
	return &ChatService{
		sessions:  deps.SessionRepo,
		messages:  deps.MessageRepo,
		sequences: deps.SequenceRepo,
		engine:    deps.Engine,
		side: collaborators{
			dispatcher: deps.Dispatcher,
			auditor:    deps.Auditor,
			notifier:   deps.Notifier,
			logger:     deps.Logger,
		},
		welcome: deps.Welcome,
		now:     time.Now,
	}
}

// ChatCreateInput describes the session creation payload.
type ChatCreateInput struct {
	Visitor        domain.VisitorSnapshot
	Department     string
	CategoryID     *string
	InitialMessage string
}

// CreateSession enqueues a new waiting session at the back of its department
// queue, stores the visitor's first message and posts the bot welcome.
func (s *ChatService) CreateSession(ctx context.Context, input ChatCreateInput) (*domain.ChatSession, error) {
	if strings.TrimSpace(input.Department) == "" {
		return nil, apperrors.NewValidationError("department required", nil)
	}

	now := s.now()
	year := now.Year()
	seq, err := s.sequences.Next(ctx, "chat", year)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	waiting, err := s.sessions.CountWaiting(ctx, input.Department)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	session := &domain.ChatSession{
		Number:         repository.FormatNumber(chatNumberPrefix, year, seq),
		Visitor:        input.Visitor,
		Department:     input.Department,
		CategoryID:     input.CategoryID,
		Status:         domain.ChatStatusWaiting,
		QueuePosition:  waiting + 1,
		Transfers:      []domain.TransferRecord{},
		LastActivityAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, apperrors.MapError(err)
	}

	if strings.TrimSpace(input.InitialMessage) != "" {
		if _, err := s.engine.AddChatMessage(ctx, session.ID, ChatMessageInput{
			Sender:   domain.ChatSenderVisitor,
			SenderID: input.Visitor.CustomerID,
			Content:  input.InitialMessage,
		}); err != nil {
			s.side.logger.Warn("initial chat message failed", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	if s.welcome != "" {
		if _, err := s.engine.AddChatMessage(ctx, session.ID, ChatMessageInput{
			Sender:  domain.ChatSenderBot,
			Content: s.welcome,
		}); err != nil {
			s.side.logger.Warn("welcome message failed", zap.String("session_id", session.ID), zap.Error(err))
		}
	}

	actor := visitorActor(session)
	s.side.publish(ctx, events.Event{
		Type:       events.EventChatSessionWaiting,
		EntityKind: events.EntityChat,
		EntityID:   session.ID,
		Actor:      actor,
		Payload:    sessionPayload(session),
	})
	s.side.recordAudit(ctx, audit.Entry{
		Action:     "chat.create",
		EntityType: "chat_session",
		EntityID:   session.ID,
		Actor:      actor,
		NewValues:  map[string]any{"number": session.Number, "department": session.Department, "queue_position": session.QueuePosition},
	})
	return session, nil
}

// AcceptSession claims a waiting session for an agent. Claiming is a
// compare-and-set on the Waiting status, so concurrent agents cannot both
// win the same session. The rest of the department queue is renumbered to
// stay dense.
func (s *ChatService) AcceptSession(ctx context.Context, id, agentID string, actor domain.Actor) (*domain.ChatSession, error) {
	now := s.now()
	session, err := s.sessions.AcceptWaiting(ctx, id, agentID, now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			existing, getErr := s.sessions.GetByID(ctx, id)
			if getErr != nil {
				if errors.Is(getErr, pgx.ErrNoRows) {
					return nil, apperrors.NewNotFound("chat session", map[string]any{"session_id": id})
				}
				return nil, apperrors.MapError(getErr)
			}
			return nil, apperrors.NewInvalidState("session is not waiting", map[string]any{"status": existing.Status})
		}
		return nil, apperrors.MapError(err)
	}

	if err := s.sessions.RenumberWaiting(ctx, session.Department); err != nil {
		s.side.logger.Warn("queue renumber failed", zap.String("department", session.Department), zap.Error(err))
	}

	s.systemChatNote(ctx, session.ID, "Agent joined the chat")
	s.side.publish(ctx, events.Event{
		Type:       events.EventChatSessionAccepted,
		EntityKind: events.EntityChat,
		EntityID:   session.ID,
		Actor:      actor,
		UserIDs:    []string{agentID},
		Payload:    sessionPayload(session),
	})
	s.side.recordAudit(ctx, audit.Entry{
		Action:     "chat.accept",
		EntityType: "chat_session",
		EntityID:   session.ID,
		Actor:      actor,
		NewValues:  map[string]any{"agent_id": agentID, "status": session.Status},
	})
	return session, nil
}

// TransferSession hands an active session from its current agent to another.
func (s *ChatService) TransferSession(ctx context.Context, id, fromAgentID, toAgentID, reason string, actor domain.Actor) (*domain.ChatSession, error) {
	session, err := s.getSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.ChatStatusActive {
		return nil, apperrors.NewInvalidState("session is not active", map[string]any{"status": session.Status})
	}
	if session.AssignedAgentID == nil || *session.AssignedAgentID != fromAgentID {
		return nil, apperrors.NewInvalidState("session is not owned by the transferring agent", map[string]any{
			"assigned_agent_id": session.AssignedAgentID,
		})
	}

	now := s.now()
	session.Transfers = append(session.Transfers, domain.TransferRecord{
		FromAgent: fromAgentID,
		ToAgent:   toAgentID,
		Reason:    reason,
		At:        now,
	})
	session.AssignedAgentID = &toAgentID
	session.AssignedAt = &now
	session.LastActivityAt = now
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.systemChatNote(ctx, session.ID, "Chat transferred to another agent")
	s.side.publish(ctx, events.Event{
		Type:       events.EventChatSessionUpdated,
		EntityKind: events.EntityChat,
		EntityID:   session.ID,
		Actor:      actor,
		UserIDs:    []string{fromAgentID, toAgentID},
		Payload:    sessionPayload(session),
	})
	s.side.recordAudit(ctx, audit.Entry{
		Action:     "chat.transfer",
		EntityType: "chat_session",
		EntityID:   session.ID,
		Actor:      actor,
		OldValues:  map[string]any{"agent_id": fromAgentID},
		NewValues:  map[string]any{"agent_id": toAgentID, "reason": reason},
	})
	s.side.sendNotification(ctx, notify.Notification{
		RecipientID:   toAgentID,
		RecipientType: notify.RecipientAgent,
		Category:      "chat_transferred",
		Title:         "Chat transferred to you",
		Body:          reason,
		ActionRef:     session.Number,
	})
	return session, nil
}

// EndSession closes the session and finalizes its duration. A session that
// was never accepted ends with zero chat duration.
func (s *ChatService) EndSession(ctx context.Context, id string, actor domain.Actor) (*domain.ChatSession, error) {
	session, err := s.getSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, apperrors.NewInvalidState("session already ended", map[string]any{"status": session.Status})
	}
	s.systemChatNote(ctx, session.ID, "Chat ended")

	now := s.now()
	wasWaiting := session.Status == domain.ChatStatusWaiting
	session.Status = domain.ChatStatusEnded
	session.EndedAt = &now
	session.QueuePosition = 0
	session.LastActivityAt = now
	if session.StartedAt != nil {
		session.Metrics.ChatDuration = now.Sub(*session.StartedAt)
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, apperrors.MapError(err)
	}
	if wasWaiting {
		if err := s.sessions.RenumberWaiting(ctx, session.Department); err != nil {
			s.side.logger.Warn("queue renumber failed", zap.String("department", session.Department), zap.Error(err))
		}
	}

	s.side.publish(ctx, events.Event{
		Type:       events.EventChatSessionUpdated,
		EntityKind: events.EntityChat,
		EntityID:   session.ID,
		Actor:      actor,
		UserIDs:    chatAudience(session),
		Payload:    sessionPayload(session),
	})
	s.side.recordAudit(ctx, audit.Entry{
		Action:     "chat.end",
		EntityType: "chat_session",
		EntityID:   session.ID,
		Actor:      actor,
		NewValues:  map[string]any{"status": session.Status, "duration_seconds": int64(session.Metrics.ChatDuration.Seconds())},
	})
	return session, nil
}

// RateSession records a visitor satisfaction rating for an ended session.
func (s *ChatService) RateSession(ctx context.Context, id string, rating int, feedback *string) (*domain.ChatSession, error) {
	if rating < 1 || rating > 5 {
		return nil, apperrors.NewValidationError("rating must be between 1 and 5", nil)
	}
	session, err := s.getSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.Rateable() {
		return nil, apperrors.NewInvalidState("session cannot be rated", map[string]any{
			"status": session.Status,
			"rated":  session.Rating != nil,
		})
	}

	now := s.now()
	session.Rating = &rating
	session.RatingFeedback = feedback
	session.RatedAt = &now
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.side.recordAudit(ctx, audit.Entry{
		Action:     "chat.rate",
		EntityType: "chat_session",
		EntityID:   session.ID,
		Actor:      visitorActor(session),
		NewValues:  map[string]any{"rating": rating},
	})
	return session, nil
}

// UpdateVisitorPage tracks the page the visitor is currently on and refreshes
// session activity.
func (s *ChatService) UpdateVisitorPage(ctx context.Context, id, page string) (*domain.ChatSession, error) {
	session, err := s.getSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, apperrors.NewInvalidState("session already ended", map[string]any{"status": session.Status})
	}

	now := s.now()
	if session.Visitor.CurrentPage != page {
		session.Visitor.VisitedPages = append(session.Visitor.VisitedPages, page)
	}
	session.Visitor.CurrentPage = page
	session.LastActivityAt = now
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, apperrors.MapError(err)
	}
	return session, nil
}

// MarkMessagesAsRead flags the session's messages as read by one side.
func (s *ChatService) MarkMessagesAsRead(ctx context.Context, id string, byAgent bool) error {
	if _, err := s.getSession(ctx, id); err != nil {
		return err
	}
	if err := s.messages.MarkRead(ctx, id, byAgent); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// GetSession fetches one session with its message thread. Internal messages
// are filtered out unless includeInternal is set.
func (s *ChatService) GetSession(ctx context.Context, id string, includeInternal bool) (*domain.ChatSession, []domain.ChatMessage, error) {
	session, err := s.getSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	if !includeInternal {
		filtered := make([]domain.ChatMessage, 0, len(msgs))
		for _, msg := range msgs {
			if msg.IsInternal {
				continue
			}
			filtered = append(filtered, msg)
		}
		msgs = filtered
	}
	return session, msgs, nil
}

// ListSessions returns sessions matching the filter.
func (s *ChatService) ListSessions(ctx context.Context, filter repository.ChatSessionFilter) ([]domain.ChatSession, error) {
	sessions, err := s.sessions.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return sessions, nil
}

// SweepAbandoned marks waiting sessions idle past the cutoff as abandoned
// and renumbers the affected department queues. Used by the background
// monitor loop.
func (s *ChatService) SweepAbandoned(ctx context.Context, idleFor time.Duration) ([]domain.ChatSession, error) {
	now := s.now()
	swept, err := s.sessions.SweepAbandoned(ctx, now.Add(-idleFor), now)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	departments := map[string]struct{}{}
	for i := range swept {
		session := &swept[i]
		departments[session.Department] = struct{}{}
		s.side.publish(ctx, events.Event{
			Type:       events.EventChatSessionUpdated,
			EntityKind: events.EntityChat,
			EntityID:   session.ID,
			Actor:      domain.SystemActor,
			Payload:    sessionPayload(session),
		})
		s.side.recordAudit(ctx, audit.Entry{
			Action:     "chat.abandon",
			EntityType: "chat_session",
			EntityID:   session.ID,
			Actor:      domain.SystemActor,
			NewValues:  map[string]any{"status": session.Status},
		})
	}
	for department := range departments {
		if err := s.sessions.RenumberWaiting(ctx, department); err != nil {
			s.side.logger.Warn("queue renumber failed", zap.String("department", department), zap.Error(err))
		}
	}
	return swept, nil
}

func (s *ChatService) getSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("chat session", map[string]any{"session_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return session, nil
}

func (s *ChatService) systemChatNote(ctx context.Context, sessionID, content string) {
	if _, err := s.engine.AddChatMessage(ctx, sessionID, ChatMessageInput{
		Sender:  domain.ChatSenderSystem,
		Content: content,
	}); err != nil {
		s.side.logger.Warn("system chat message failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func sessionPayload(session *domain.ChatSession) events.ChatSessionPayload {
	return events.ChatSessionPayload{
		Number:        session.Number,
		Department:    session.Department,
		Status:        session.Status,
		QueuePosition: session.QueuePosition,
		AgentID:       session.AssignedAgentID,
	}
}

func visitorActor(session *domain.ChatSession) domain.Actor {
	id := "visitor"
	if session.Visitor.CustomerID != nil {
		id = *session.Visitor.CustomerID
	}
	return domain.Actor{Type: domain.ActorTypeVisitor, ID: id}
}
