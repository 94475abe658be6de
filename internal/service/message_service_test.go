package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
	"github.com/Abdualsslam/tras-phone-sub000/internal/events"
	apperrors "github.com/Abdualsslam/tras-phone-sub000/pkg/errorutil"
)

type messageHarness struct {
	service    *MessageService
	tickets    *fakeTicketRepo
	ticketMsgs *fakeTicketMessageRepo
	sessions   *fakeChatSessionRepo
	chatMsgs   *fakeChatMessageRepo
	dispatcher *recordingDispatcher
	notifier   *recordingNotifier
}

func newMessageHarness(t *testing.T, bot *BotMatcher, clock func() time.Time) *messageHarness {
	t.Helper()
	tickets := newFakeTicketRepo()
	ticketMsgs := newFakeTicketMessageRepo(tickets)
	sessions := newFakeChatSessionRepo()
	chatMsgs := newFakeChatMessageRepo(sessions)
	dispatcher := &recordingDispatcher{}
	notifier := &recordingNotifier{}

	svc := NewMessageService(MessageDependencies{
		TicketRepo:        tickets,
		TicketMessageRepo: ticketMsgs,
		SessionRepo:       sessions,
		ChatMessageRepo:   chatMsgs,
		BotMatcher:        bot,
		Dispatcher:        dispatcher,
		Auditor:           &recordingAuditor{},
		Notifier:          notifier,
		Logger:            zap.NewNop(),
	})
	if clock != nil {
		svc.now = clock
	}
	return &messageHarness{
		service:    svc,
		tickets:    tickets,
		ticketMsgs: ticketMsgs,
		sessions:   sessions,
		chatMsgs:   chatMsgs,
		dispatcher: dispatcher,
		notifier:   notifier,
	}
}

func seedTicket(t *testing.T, h *messageHarness, status domain.TicketStatus, due time.Time) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		Number:     "TKT-2026-000001",
		Customer:   domain.CustomerSnapshot{CustomerID: "cust-1", Name: "Dana"},
		CategoryID: "cat-1",
		Subject:    "printer on fire",
		Status:     status,
		Priority:   domain.TicketPriorityMedium,
		SLA: domain.SLAInfo{
			FirstResponseDue: due,
			ResolutionDue:    due.Add(24 * time.Hour),
		},
	}
	if err := h.tickets.Create(context.Background(), ticket); err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	stored := h.tickets.tickets[ticket.ID]
	stored.CreatedAt = due.Add(-4 * time.Hour)
	return ticket
}

func TestAgentFirstResponseStampsOnce(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newMessageHarness(t, nil, func() time.Time { return now })
	ticket := seedTicket(t, h, domain.TicketStatusOpen, now.Add(time.Hour))

	agentID := "agent-1"
	if _, err := h.service.AddTicketMessage(context.Background(), ticket.ID, TicketMessageInput{
		Sender: domain.TicketSenderAgent, SenderID: &agentID, Content: "on it",
	}); err != nil {
		t.Fatalf("first agent message: %v", err)
	}

	stored, _ := h.tickets.GetByID(context.Background(), ticket.ID)
	if stored.SLA.FirstRespondedAt == nil || !stored.SLA.FirstRespondedAt.Equal(now) {
		t.Fatalf("expected first response stamped at %v, got %v", now, stored.SLA.FirstRespondedAt)
	}
	if stored.SLA.FirstResponseBreached {
		t.Error("on-time response must not flag breach")
	}
	if stored.Status != domain.TicketStatusAwaitingResponse {
		t.Errorf("agent reply on OPEN should move to AWAITING_RESPONSE, got %s", stored.Status)
	}

	// A second reply keeps the original stamp.
	later := now.Add(2 * time.Hour)
	h.service.now = func() time.Time { return later }
	if _, err := h.service.AddTicketMessage(context.Background(), ticket.ID, TicketMessageInput{
		Sender: domain.TicketSenderAgent, SenderID: &agentID, Content: "still on it",
	}); err != nil {
		t.Fatalf("second agent message: %v", err)
	}
	stored, _ = h.tickets.GetByID(context.Background(), ticket.ID)
	if !stored.SLA.FirstRespondedAt.Equal(now) {
		t.Errorf("first response stamp must not move, got %v", stored.SLA.FirstRespondedAt)
	}
}

func TestLateFirstResponseFlagsBreach(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newMessageHarness(t, nil, func() time.Time { return now })
	ticket := seedTicket(t, h, domain.TicketStatusOpen, now.Add(-time.Minute))

	agentID := "agent-1"
	if _, err := h.service.AddTicketMessage(context.Background(), ticket.ID, TicketMessageInput{
		Sender: domain.TicketSenderAgent, SenderID: &agentID, Content: "sorry for the delay",
	}); err != nil {
		t.Fatalf("agent message: %v", err)
	}

	stored, _ := h.tickets.GetByID(context.Background(), ticket.ID)
	if !stored.SLA.FirstResponseBreached {
		t.Error("late first response must flag breach")
	}
	if stored.SLA.FirstRespondedAt == nil {
		t.Error("late response still stamps first response")
	}
}

func TestCustomerReplyReopensAwaitingTicket(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newMessageHarness(t, nil, func() time.Time { return now })
	ticket := seedTicket(t, h, domain.TicketStatusAwaitingResponse, now.Add(time.Hour))

	if _, err := h.service.AddTicketMessage(context.Background(), ticket.ID, TicketMessageInput{
		Sender: domain.TicketSenderCustomer, Content: "it is still broken",
	}); err != nil {
		t.Fatalf("customer message: %v", err)
	}

	stored, _ := h.tickets.GetByID(context.Background(), ticket.ID)
	if stored.Status != domain.TicketStatusOpen {
		t.Errorf("customer reply on AWAITING_RESPONSE should reopen, got %s", stored.Status)
	}
	if stored.LastCustomerReply == nil || !stored.LastCustomerReply.Equal(now) {
		t.Errorf("expected last customer reply at %v, got %v", now, stored.LastCustomerReply)
	}
	if stored.MessageCount != 1 {
		t.Errorf("expected message count 1, got %d", stored.MessageCount)
	}
}

func TestInternalNoteSkipsFanOutAndStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	h := newMessageHarness(t, nil, func() time.Time { return now })
	ticket := seedTicket(t, h, domain.TicketStatusOpen, now.Add(time.Hour))

	agentID := "agent-1"
	if _, err := h.service.AddTicketMessage(context.Background(), ticket.ID, TicketMessageInput{
		Sender: domain.TicketSenderAgent, SenderID: &agentID, Content: "customer sounds upset", IsInternal: true,
	}); err != nil {
		t.Fatalf("internal note: %v", err)
	}

	stored, _ := h.tickets.GetByID(context.Background(), ticket.ID)
	if stored.InternalNoteCount != 1 || stored.MessageCount != 0 {
		t.Errorf("internal note must count separately, got messages=%d notes=%d", stored.MessageCount, stored.InternalNoteCount)
	}
	if stored.Status != domain.TicketStatusOpen {
		t.Errorf("internal note must not change status, got %s", stored.Status)
	}
	if stored.SLA.FirstRespondedAt != nil {
		t.Error("internal note must not stamp first response")
	}
	if got := len(h.dispatcher.byType(events.EventTicketMessage)); got != 0 {
		t.Errorf("internal note must not fan out, got %d events", got)
	}
}

func TestMessageOnMergedTicketRejected(t *testing.T) {
	h := newMessageHarness(t, nil, nil)
	ticket := seedTicket(t, h, domain.TicketStatusClosed, time.Now())
	primaryID := "ticket-primary"
	h.tickets.tickets[ticket.ID].MergedInto = &primaryID

	_, err := h.service.AddTicketMessage(context.Background(), ticket.ID, TicketMessageInput{
		Sender: domain.TicketSenderCustomer, Content: "hello?",
	})
	if !apperrors.IsInvalidState(err) {
		t.Fatalf("expected INVALID_STATE for merged ticket, got %v", err)
	}
}

func seedSession(t *testing.T, h *messageHarness, status domain.ChatStatus) *domain.ChatSession {
	t.Helper()
	session := &domain.ChatSession{
		Number:     "CHAT-2026-000001",
		Visitor:    domain.VisitorSnapshot{Name: "visitor"},
		Department: "sales",
		Status:     status,
	}
	if err := h.sessions.Create(context.Background(), session); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return session
}

func TestChatMessageOnEndedSessionRejected(t *testing.T) {
	h := newMessageHarness(t, nil, nil)
	session := seedSession(t, h, domain.ChatStatusEnded)

	_, err := h.service.AddChatMessage(context.Background(), session.ID, ChatMessageInput{
		Sender: domain.ChatSenderVisitor, Content: "anyone there?",
	})
	if !apperrors.IsInvalidState(err) {
		t.Fatalf("expected INVALID_STATE for ended session, got %v", err)
	}
}

func TestVisitorMessageOnWaitingSessionGetsBotReply(t *testing.T) {
	rules := newFakeBotRuleRepo(
		domain.BotRule{ID: "hours", Priority: 5, Patterns: []string{"(?i)hours"}, Response: "Open 9-5 weekdays.", IsActive: true},
	)
	bot := NewBotMatcher(rules, zap.NewNop())
	h := newMessageHarness(t, bot, nil)
	session := seedSession(t, h, domain.ChatStatusWaiting)

	if _, err := h.service.AddChatMessage(context.Background(), session.ID, ChatMessageInput{
		Sender: domain.ChatSenderVisitor, Content: "what are your hours?",
	}); err != nil {
		t.Fatalf("visitor message: %v", err)
	}

	msgs, _ := h.chatMsgs.ListBySession(context.Background(), session.ID)
	if len(msgs) != 2 {
		t.Fatalf("expected visitor message plus bot reply, got %d messages", len(msgs))
	}
	if msgs[1].SenderType != domain.ChatSenderBot || msgs[1].Content != "Open 9-5 weekdays." {
		t.Errorf("expected bot reply second, got %+v", msgs[1])
	}

	stored, _ := h.sessions.GetByID(context.Background(), session.ID)
	if stored.Metrics.MessageCount != 2 {
		t.Errorf("expected message count 2, got %d", stored.Metrics.MessageCount)
	}
	if stored.Metrics.VisitorMessageCount != 1 {
		t.Errorf("expected visitor count 1, got %d", stored.Metrics.VisitorMessageCount)
	}
}

func TestActiveSessionSkipsBot(t *testing.T) {
	rules := newFakeBotRuleRepo(
		domain.BotRule{ID: "hours", Priority: 5, Patterns: []string{".*"}, Response: "canned", IsActive: true},
	)
	bot := NewBotMatcher(rules, zap.NewNop())
	h := newMessageHarness(t, bot, nil)
	session := seedSession(t, h, domain.ChatStatusActive)

	if _, err := h.service.AddChatMessage(context.Background(), session.ID, ChatMessageInput{
		Sender: domain.ChatSenderVisitor, Content: "hello agent",
	}); err != nil {
		t.Fatalf("visitor message: %v", err)
	}
	msgs, _ := h.chatMsgs.ListBySession(context.Background(), session.ID)
	if len(msgs) != 1 {
		t.Fatalf("bot must not reply on active sessions, got %d messages", len(msgs))
	}
}
