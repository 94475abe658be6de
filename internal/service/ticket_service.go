package service

import (
	"context"
	"errors"
	"fmt"
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

const ticketNumberPrefix = "TKT"

// TicketService owns ticket state transitions, SLA deadline computation,
// assignment, escalation and merge.
type TicketService struct {
	tickets    repository.TicketRepository
	messages   repository.TicketMessageRepository
	categories repository.CategoryRepository
	sequences  repository.SequenceRepository
	engine     *MessageService
	side       collaborators
	now        func() time.Time
}

// TicketDependencies bundles repositories for the ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	MessageRepo  repository.TicketMessageRepository
	CategoryRepo repository.CategoryRepository
	SequenceRepo repository.SequenceRepository
	Engine       *MessageService
	Dispatcher   events.Dispatcher
	Auditor      audit.Recorder
	Notifier     notify.Notifier
	Logger       *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		categories: deps.CategoryRepo,
		sequences:  deps.SequenceRepo,
		engine:     deps.Engine,
		side: collaborators{
			dispatcher: deps.Dispatcher,
			auditor:    deps.Auditor,
			notifier:   deps.Notifier,
			logger:     deps.Logger,
		},
		now: time.Now,
	}
}

// TicketCreateInput describes the ticket creation payload.
type TicketCreateInput struct {
	Customer    domain.CustomerSnapshot
	CategoryID  string
	Subject     string
	Description string
	Priority    domain.TicketPriority
}

// ResolutionInput describes a resolution payload accompanying a transition
// into Resolved or Closed.
type ResolutionInput struct {
	Summary string
	Type    string
}

// CreateTicket loads the category, fixes SLA deadlines, assigns the
// category default agent when present, and appends the initial customer
// message through the message engine.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.Subject) == "" || strings.TrimSpace(input.Description) == "" {
		return nil, apperrors.NewValidationError("subject and description required", nil)
	}
	category, err := s.categories.GetByID(ctx, input.CategoryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("category", map[string]any{"category_id": input.CategoryID})
		}
		return nil, apperrors.MapError(err)
	}

	now := s.now()
	number, err := s.nextNumber(ctx, ticketNumberPrefix, "ticket", now)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	priority := input.Priority
	if priority == "" {
		priority = category.DefaultPriority
	}

	ticket := &domain.Ticket{
		Number:        number,
		Customer:      input.Customer,
		CategoryID:    category.ID,
		Subject:       strings.TrimSpace(input.Subject),
		Description:   strings.TrimSpace(input.Description),
		Status:        domain.TicketStatusOpen,
		Priority:      priority,
		MergedTickets: []string{},
		SLA: domain.SLAInfo{
			FirstResponseDue: category.FirstResponseDue(now),
			ResolutionDue:    category.ResolutionDue(now),
		},
	}
	if category.DefaultAssigneeID != nil {
		ticket.AssignedAgentID = category.DefaultAssigneeID
		assignedAt := now
		ticket.AssignedAt = &assignedAt
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if _, err := s.engine.AddTicketMessage(ctx, ticket.ID, TicketMessageInput{
		Sender:   domain.TicketSenderCustomer,
		SenderID: &ticket.Customer.CustomerID,
		Content:  ticket.Description,
	}); err != nil {
		s.side.logger.Warn("initial ticket message failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	} else {
		ticket.MessageCount++
	}

	if err := s.categories.IncrementCounters(ctx, category.ID, 1, 1); err != nil {
		s.side.logger.Warn("category counters update failed", zap.String("category_id", category.ID), zap.Error(err))
	}

	actor := domain.Actor{Type: domain.ActorTypeCustomer, ID: ticket.Customer.CustomerID}
	s.side.publish(ctx, events.Event{
		Type:       events.EventTicketCreated,
		EntityKind: events.EntityTicket,
		EntityID:   ticket.ID,
		Actor:      actor,
		UserIDs:    ticketAudience(ticket),
		Payload: events.TicketCreatedPayload{
			Number:     ticket.Number,
			CategoryID: ticket.CategoryID,
			Priority:   ticket.Priority,
			Subject:    ticket.Subject,
		},
	})
	s.side.recordAudit(ctx, audit.Entry{
		Action:     "ticket.create",
		EntityType: "ticket",
		EntityID:   ticket.ID,
		Actor:      actor,
		NewValues:  map[string]any{"number": ticket.Number, "status": ticket.Status, "priority": ticket.Priority},
	})
	if ticket.AssignedAgentID != nil {
		s.side.sendNotification(ctx, notify.Notification{
			RecipientID:   *ticket.AssignedAgentID,
			RecipientType: notify.RecipientAgent,
			Category:      "ticket_assigned",
			Title:         "New ticket assigned",
			Body:          ticket.Subject,
			ActionRef:     ticket.Number,
		})
	}
	return ticket, nil
}

// GetTicket fetches one ticket with its message thread. Internal notes are
// filtered out unless includeInternal is set.
func (s *TicketService) GetTicket(ctx context.Context, id string, includeInternal bool) (*domain.Ticket, []domain.TicketMessage, error) {
	ticket, err := s.getTicket(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	if !includeInternal {
		filtered := make([]domain.TicketMessage, 0, len(msgs))
		for _, msg := range msgs {
			if msg.IsInternal {
				continue
			}
			filtered = append(filtered, msg)
		}
		msgs = filtered
	}
	return ticket, msgs, nil
}

// ListTickets returns tickets matching the filter.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// UpdateStatus transitions the ticket, handling resolution stamping, breach
// evaluation at resolution time, and category open-ticket counters.
func (s *TicketService) UpdateStatus(ctx context.Context, id string, newStatus domain.TicketStatus, actor domain.Actor, resolution *ResolutionInput) (*domain.Ticket, error) {
	if !validTicketStatus(newStatus) {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": newStatus})
	}
	ticket, err := s.getTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Merged() {
		return nil, apperrors.NewInvalidState("ticket merged into another ticket", map[string]any{"merged_into": *ticket.MergedInto})
	}
	if ticket.Status == newStatus {
		return ticket, nil
	}

	now := s.now()
	oldStatus := ticket.Status
	wasOpen := !closedLike(oldStatus)
	ticket.Status = newStatus

	if closedLike(newStatus) {
		resolvedAt := now
		ticket.SLA.ResolvedAt = &resolvedAt
		if now.After(ticket.SLA.ResolutionDue) {
			ticket.SLA.ResolutionBreached = true
		}
		if resolution != nil {
			ticket.Resolution = &domain.Resolution{
				Summary:    resolution.Summary,
				Type:       resolution.Type,
				ResolvedBy: actor.ID,
				ResolvedAt: now,
			}
		}
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if wasOpen && closedLike(newStatus) {
		s.bumpOpenCount(ctx, ticket.CategoryID, -1)
	} else if !wasOpen && newStatus == domain.TicketStatusReopened {
		s.bumpOpenCount(ctx, ticket.CategoryID, 1)
	}

	s.systemNote(ctx, ticket.ID, fmt.Sprintf("Status changed from %s to %s", oldStatus, newStatus))
	s.side.publish(ctx, events.Event{
		Type:       events.EventTicketUpdated,
		EntityKind: events.EntityTicket,
		EntityID:   ticket.ID,
		Actor:      actor,
		UserIDs:    ticketAudience(ticket),
		Payload:    events.TicketUpdatedPayload{OldStatus: oldStatus, NewStatus: newStatus},
	})
	s.side.recordAudit(ctx, audit.Entry{
		Action:     "ticket.status",
		EntityType: "ticket",
		EntityID:   ticket.ID,
		Actor:      actor,
		OldValues:  map[string]any{"status": oldStatus},
		NewValues:  map[string]any{"status": newStatus},
	})
	return ticket, nil
}

// Assign reassigns the ticket unconditionally and records old/new assignee.
func (s *TicketService) Assign(ctx context.Context, id, agentID string, actor domain.Actor) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Merged() {
		return nil, apperrors.NewInvalidState("ticket merged into another ticket", map[string]any{"merged_into": *ticket.MergedInto})
	}

	now := s.now()
	oldAgent := ticket.AssignedAgentID
	ticket.AssignedAgentID = &agentID
	ticket.AssignedAt = &now
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.systemNote(ctx, ticket.ID, fmt.Sprintf("Assigned to agent %s", agentID))
	s.side.recordAudit(ctx, audit.Entry{
		Action:     "ticket.assign",
		EntityType: "ticket",
		EntityID:   ticket.ID,
		Actor:      actor,
		OldValues:  map[string]any{"assigned_agent_id": oldAgent},
		NewValues:  map[string]any{"assigned_agent_id": agentID},
	})
	s.side.publish(ctx, events.Event{
		Type:       events.EventTicketAssigned,
		EntityKind: events.EntityTicket,
		EntityID:   ticket.ID,
		Actor:      actor,
		UserIDs:    ticketAudience(ticket),
		Payload:    events.TicketAssignedPayload{OldAgentID: oldAgent, NewAgentID: agentID},
	})
	s.side.sendNotification(ctx, notify.Notification{
		RecipientID:   agentID,
		RecipientType: notify.RecipientAgent,
		Category:      "ticket_assigned",
		Title:         "Ticket assigned to you",
		Body:          ticket.Subject,
		ActionRef:     ticket.Number,
	})
	return ticket, nil
}

// Escalate raises the escalation level and moves the ticket to Escalated.
func (s *TicketService) Escalate(ctx context.Context, id string, actor domain.Actor, reason string) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Merged() {
		return nil, apperrors.NewInvalidState("ticket merged into another ticket", map[string]any{"merged_into": *ticket.MergedInto})
	}
	// A resolved or closed ticket must be reopened before it can escalate,
	// keeping the category open-ticket counter honest.
	if closedLike(ticket.Status) {
		return nil, apperrors.NewInvalidState("ticket is not open", map[string]any{"status": ticket.Status})
	}

	oldStatus := ticket.Status
	ticket.Status = domain.TicketStatusEscalated
	ticket.EscalationLevel++
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.systemNote(ctx, ticket.ID, fmt.Sprintf("Escalated to level %d: %s", ticket.EscalationLevel, reason))
	s.side.recordAudit(ctx, audit.Entry{
		Action:     "ticket.escalate",
		EntityType: "ticket",
		EntityID:   ticket.ID,
		Actor:      actor,
		OldValues:  map[string]any{"status": oldStatus, "escalation_level": ticket.EscalationLevel - 1},
		NewValues:  map[string]any{"status": ticket.Status, "escalation_level": ticket.EscalationLevel, "reason": reason},
	})
	s.side.publish(ctx, events.Event{
		Type:       events.EventTicketUpdated,
		EntityKind: events.EntityTicket,
		EntityID:   ticket.ID,
		Actor:      actor,
		UserIDs:    ticketAudience(ticket),
		Payload:    events.TicketUpdatedPayload{OldStatus: oldStatus, NewStatus: ticket.Status, Comment: reason},
	})
	return ticket, nil
}

// MergeTickets folds each secondary into the primary: messages are copied
// across with a merge marker, secondaries are closed and stamped with a
// one-way pointer. The operation is irreversible.
func (s *TicketService) MergeTickets(ctx context.Context, primaryID string, secondaryIDs []string, actor domain.Actor) (*domain.Ticket, error) {
	primary, err := s.tickets.GetByID(ctx, primaryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewInvalidReference("merge primary does not exist", map[string]any{"primary_id": primaryID})
		}
		return nil, apperrors.MapError(err)
	}
	if primary.Merged() {
		return nil, apperrors.NewInvalidState("primary is itself merged", map[string]any{"merged_into": *primary.MergedInto})
	}

	merged := make([]string, 0, len(secondaryIDs))
	for _, secondaryID := range secondaryIDs {
		if secondaryID == primary.ID {
			continue
		}
		secondary, err := s.getTicket(ctx, secondaryID)
		if err != nil {
			return nil, err
		}
		if secondary.Merged() {
			return nil, apperrors.NewInvalidState("secondary already merged", map[string]any{"ticket_id": secondaryID})
		}

		if err := s.copyMessages(ctx, secondary, primary); err != nil {
			return nil, err
		}

		wasOpen := !closedLike(secondary.Status)
		secondary.MergedInto = &primary.ID
		secondary.Status = domain.TicketStatusClosed
		if err := s.tickets.Update(ctx, secondary); err != nil {
			return nil, apperrors.MapError(err)
		}
		if wasOpen {
			s.bumpOpenCount(ctx, secondary.CategoryID, -1)
		}
		merged = append(merged, secondary.ID)
	}

	primary.MergedTickets = append(primary.MergedTickets, merged...)
	if err := s.tickets.Update(ctx, primary); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.systemNote(ctx, primary.ID, fmt.Sprintf("Merged %d ticket(s) into this ticket", len(merged)))
	s.side.recordAudit(ctx, audit.Entry{
		Action:     "ticket.merge",
		EntityType: "ticket",
		EntityID:   primary.ID,
		Actor:      actor,
		NewValues:  map[string]any{"merged_tickets": merged},
	})
	s.side.publish(ctx, events.Event{
		Type:       events.EventTicketUpdated,
		EntityKind: events.EntityTicket,
		EntityID:   primary.ID,
		Actor:      actor,
		UserIDs:    ticketAudience(primary),
		Payload:    events.TicketUpdatedPayload{NewStatus: primary.Status, Comment: "merge"},
	})
	return primary, nil
}

// Rate records a satisfaction rating once the ticket is Resolved or Closed.
func (s *TicketService) Rate(ctx context.Context, id string, rating int, feedback *string) (*domain.Ticket, error) {
	if rating < 1 || rating > 5 {
		return nil, apperrors.NewValidationError("rating must be between 1 and 5", nil)
	}
	ticket, err := s.getTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ticket.Rateable() {
		return nil, apperrors.NewInvalidState("ticket cannot be rated", map[string]any{
			"status": ticket.Status,
			"rated":  ticket.Rating != nil,
		})
	}

	now := s.now()
	ticket.Rating = &rating
	ticket.RatingFeedback = feedback
	ticket.RatedAt = &now
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.side.recordAudit(ctx, audit.Entry{
		Action:     "ticket.rate",
		EntityType: "ticket",
		EntityID:   ticket.ID,
		Actor:      domain.Actor{Type: domain.ActorTypeCustomer, ID: ticket.Customer.CustomerID},
		NewValues:  map[string]any{"rating": rating},
	})
	return ticket, nil
}

func (s *TicketService) getTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) copyMessages(ctx context.Context, from, to *domain.Ticket) error {
	msgs, err := s.messages.ListByTicket(ctx, from.ID)
	if err != nil {
		return apperrors.MapError(err)
	}
	var public, internal int
	for _, msg := range msgs {
		copied := &domain.TicketMessage{
			TicketID:   to.ID,
			SenderType: msg.SenderType,
			SenderID:   msg.SenderID,
			Content:    fmt.Sprintf("[Merged from %s] %s", from.Number, msg.Content),
			IsInternal: msg.IsInternal,
		}
		if err := s.messages.Create(ctx, copied); err != nil {
			return apperrors.MapError(err)
		}
		if msg.IsInternal {
			internal++
		} else {
			public++
		}
	}
	if public > 0 || internal > 0 {
		if err := s.messages.BumpMessageCounts(ctx, to.ID, public, internal); err != nil {
			s.side.logger.Warn("merge counter bump failed", zap.String("ticket_id", to.ID), zap.Error(err))
		}
	}
	return nil
}

// systemNote appends an internal system message; failures are logged only.
func (s *TicketService) systemNote(ctx context.Context, ticketID, content string) {
	if _, err := s.engine.AddTicketMessage(ctx, ticketID, TicketMessageInput{
		Sender:     domain.TicketSenderSystem,
		Content:    content,
		IsInternal: true,
	}); err != nil {
		s.side.logger.Warn("system note failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (s *TicketService) bumpOpenCount(ctx context.Context, categoryID string, delta int) {
	if err := s.categories.IncrementCounters(ctx, categoryID, 0, delta); err != nil {
		s.side.logger.Warn("category open counter update failed", zap.String("category_id", categoryID), zap.Error(err))
	}
}

func (s *TicketService) nextNumber(ctx context.Context, prefix, scope string, now time.Time) (string, error) {
	year := now.Year()
	seq, err := s.sequences.Next(ctx, scope, year)
	if err != nil {
		return "", err
	}
	return repository.FormatNumber(prefix, year, seq), nil
}

func closedLike(status domain.TicketStatus) bool {
	return status == domain.TicketStatusResolved || status == domain.TicketStatusClosed
}

func validTicketStatus(status domain.TicketStatus) bool {
	switch status {
	case domain.TicketStatusOpen, domain.TicketStatusAwaitingResponse, domain.TicketStatusInProgress,
		domain.TicketStatusOnHold, domain.TicketStatusEscalated, domain.TicketStatusResolved,
		domain.TicketStatusClosed, domain.TicketStatusReopened:
		return true
	}
	return false
}
