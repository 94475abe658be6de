package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Abdualsslam/tras-phone-sub000/internal/audit"
	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
	"github.com/Abdualsslam/tras-phone-sub000/internal/events"
	"github.com/Abdualsslam/tras-phone-sub000/internal/notify"
	"github.com/Abdualsslam/tras-phone-sub000/internal/repository"
)

// In-memory stand-ins for the pgx repositories. They reproduce the atomic
// effect application the SQL implementations perform so service behavior can
// be exercised without a database.

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	nextID  int
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: map[string]*domain.Ticket{}}
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ticket.ID = fmt.Sprintf("ticket-%d", r.nextID)
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *fakeTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	// Breach flags only ever go from false to true.
	ticket.SLA.FirstResponseBreached = ticket.SLA.FirstResponseBreached || stored.SLA.FirstResponseBreached
	ticket.SLA.ResolutionBreached = ticket.SLA.ResolutionBreached || stored.SLA.ResolutionBreached
	clone := *ticket
	// Counters and reply stamps move only through message effects.
	clone.MessageCount = stored.MessageCount
	clone.InternalNoteCount = stored.InternalNoteCount
	clone.LastCustomerReply = stored.LastCustomerReply
	clone.LastAgentReply = stored.LastAgentReply
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *stored
	return &clone, nil
}

func (r *fakeTicketRepo) GetByNumber(_ context.Context, number string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.tickets {
		if stored.Number == number {
			clone := *stored
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) ListWithFilter(_ context.Context, _ repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Ticket, 0, len(r.tickets))
	for _, stored := range r.tickets {
		out = append(out, *stored)
	}
	return out, nil
}

func (r *fakeTicketRepo) MarkFirstResponseBreached(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[id]
	if !ok || stored.SLA.FirstResponseBreached || stored.SLA.FirstRespondedAt != nil {
		return false, nil
	}
	stored.SLA.FirstResponseBreached = true
	return true, nil
}

func (r *fakeTicketRepo) MarkResolutionBreached(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[id]
	if !ok || stored.SLA.ResolutionBreached || stored.SLA.ResolvedAt != nil {
		return false, nil
	}
	stored.SLA.ResolutionBreached = true
	return true, nil
}

func (r *fakeTicketRepo) ListOpenForSLA(_ context.Context) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, stored := range r.tickets {
		switch stored.Status {
		case domain.TicketStatusResolved, domain.TicketStatusClosed:
		default:
			if stored.MergedInto == nil {
				out = append(out, *stored)
			}
		}
	}
	return out, nil
}

func (r *fakeTicketRepo) ListUnassignedUrgent(_ context.Context) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, stored := range r.tickets {
		if stored.Priority == domain.TicketPriorityUrgent && stored.AssignedAgentID == nil && !stored.Merged() {
			out = append(out, *stored)
		}
	}
	return out, nil
}

func (r *fakeTicketRepo) ListStaleAssigned(_ context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, stored := range r.tickets {
		if stored.AssignedAgentID == nil {
			continue
		}
		last := stored.CreatedAt
		if stored.LastAgentReply != nil {
			last = *stored.LastAgentReply
		}
		if last.Before(cutoff) {
			out = append(out, *stored)
		}
	}
	return out, nil
}

type fakeTicketMessageRepo struct {
	mu       sync.Mutex
	tickets  *fakeTicketRepo
	messages map[string][]domain.TicketMessage
	nextID   int
}

func newFakeTicketMessageRepo(tickets *fakeTicketRepo) *fakeTicketMessageRepo {
	return &fakeTicketMessageRepo{tickets: tickets, messages: map[string][]domain.TicketMessage{}}
}

func (r *fakeTicketMessageRepo) Append(ctx context.Context, msg *domain.TicketMessage, effects repository.TicketMessageEffects) error {
	if err := r.Create(ctx, msg); err != nil {
		return err
	}
	r.tickets.mu.Lock()
	defer r.tickets.mu.Unlock()
	ticket, ok := r.tickets.tickets[msg.TicketID]
	if !ok {
		return pgx.ErrNoRows
	}
	if effects.IncrementMessages {
		ticket.MessageCount++
	}
	if effects.IncrementInternalNotes {
		ticket.InternalNoteCount++
	}
	if effects.NewStatus != nil {
		ticket.Status = *effects.NewStatus
	}
	if effects.FirstRespondedAt != nil && ticket.SLA.FirstRespondedAt == nil {
		ticket.SLA.FirstRespondedAt = effects.FirstRespondedAt
	}
	ticket.SLA.FirstResponseBreached = ticket.SLA.FirstResponseBreached || effects.FirstResponseBreached
	if effects.LastCustomerReplyAt != nil {
		ticket.LastCustomerReply = effects.LastCustomerReplyAt
	}
	if effects.LastAgentReplyAt != nil {
		ticket.LastAgentReply = effects.LastAgentReplyAt
	}
	return nil
}

func (r *fakeTicketMessageRepo) Create(_ context.Context, msg *domain.TicketMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	msg.ID = fmt.Sprintf("tmsg-%d", r.nextID)
	msg.CreatedAt = time.Now()
	r.messages[msg.TicketID] = append(r.messages[msg.TicketID], *msg)
	return nil
}

func (r *fakeTicketMessageRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TicketMessage(nil), r.messages[ticketID]...), nil
}

func (r *fakeTicketMessageRepo) BumpMessageCounts(_ context.Context, ticketID string, messages, internalNotes int) error {
	r.tickets.mu.Lock()
	defer r.tickets.mu.Unlock()
	ticket, ok := r.tickets.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.MessageCount += messages
	ticket.InternalNoteCount += internalNotes
	return nil
}

type fakeChatSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.ChatSession
	nextID   int
}

func newFakeChatSessionRepo() *fakeChatSessionRepo {
	return &fakeChatSessionRepo{sessions: map[string]*domain.ChatSession{}}
}

func (r *fakeChatSessionRepo) Create(_ context.Context, session *domain.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	session.ID = fmt.Sprintf("session-%d", r.nextID)
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	clone := *session
	r.sessions[session.ID] = &clone
	return nil
}

func (r *fakeChatSessionRepo) Update(_ context.Context, session *domain.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[session.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	clone := *session
	// Message counters move only through message effects.
	clone.Metrics.MessageCount = stored.Metrics.MessageCount
	clone.Metrics.VisitorMessageCount = stored.Metrics.VisitorMessageCount
	clone.Metrics.AgentMessageCount = stored.Metrics.AgentMessageCount
	r.sessions[session.ID] = &clone
	return nil
}

func (r *fakeChatSessionRepo) GetByID(_ context.Context, id string) (*domain.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *stored
	return &clone, nil
}

func (r *fakeChatSessionRepo) ListWithFilter(_ context.Context, _ repository.ChatSessionFilter) ([]domain.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ChatSession, 0, len(r.sessions))
	for _, stored := range r.sessions {
		out = append(out, *stored)
	}
	return out, nil
}

func (r *fakeChatSessionRepo) CountWaiting(_ context.Context, department string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, stored := range r.sessions {
		if stored.Department == department && stored.Status == domain.ChatStatusWaiting {
			count++
		}
	}
	return count, nil
}

func (r *fakeChatSessionRepo) AcceptWaiting(_ context.Context, id, agentID string, now time.Time) (*domain.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[id]
	if !ok || stored.Status != domain.ChatStatusWaiting {
		return nil, pgx.ErrNoRows
	}
	stored.Status = domain.ChatStatusActive
	stored.AssignedAgentID = &agentID
	stored.AssignedAt = &now
	started := now
	stored.StartedAt = &started
	stored.QueuePosition = 0
	stored.Metrics.WaitTime = now.Sub(stored.CreatedAt)
	stored.LastActivityAt = now
	clone := *stored
	return &clone, nil
}

func (r *fakeChatSessionRepo) RenumberWaiting(_ context.Context, department string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var waiting []*domain.ChatSession
	for _, stored := range r.sessions {
		if stored.Department == department && stored.Status == domain.ChatStatusWaiting {
			waiting = append(waiting, stored)
		}
	}
	for i := 0; i < len(waiting); i++ {
		for j := i + 1; j < len(waiting); j++ {
			if waiting[j].CreatedAt.Before(waiting[i].CreatedAt) {
				waiting[i], waiting[j] = waiting[j], waiting[i]
			}
		}
	}
	for i, stored := range waiting {
		stored.QueuePosition = i + 1
	}
	return nil
}

func (r *fakeChatSessionRepo) SweepAbandoned(_ context.Context, cutoff, now time.Time) ([]domain.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var swept []domain.ChatSession
	for _, stored := range r.sessions {
		if stored.Status == domain.ChatStatusWaiting && stored.LastActivityAt.Before(cutoff) {
			stored.Status = domain.ChatStatusAbandoned
			stored.EndedAt = &now
			stored.QueuePosition = 0
			swept = append(swept, *stored)
		}
	}
	return swept, nil
}

func (r *fakeChatSessionRepo) TouchActivity(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[id]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.LastActivityAt = at
	return nil
}

type fakeChatMessageRepo struct {
	mu       sync.Mutex
	sessions *fakeChatSessionRepo
	messages map[string][]domain.ChatMessage
	nextID   int
}

func newFakeChatMessageRepo(sessions *fakeChatSessionRepo) *fakeChatMessageRepo {
	return &fakeChatMessageRepo{sessions: sessions, messages: map[string][]domain.ChatMessage{}}
}

func (r *fakeChatMessageRepo) Append(_ context.Context, msg *domain.ChatMessage, effects repository.ChatMessageEffects) error {
	r.mu.Lock()
	r.nextID++
	msg.ID = fmt.Sprintf("cmsg-%d", r.nextID)
	msg.CreatedAt = time.Now()
	r.messages[msg.SessionID] = append(r.messages[msg.SessionID], *msg)
	r.mu.Unlock()

	r.sessions.mu.Lock()
	defer r.sessions.mu.Unlock()
	session, ok := r.sessions.sessions[msg.SessionID]
	if !ok {
		return pgx.ErrNoRows
	}
	if effects.IncrementMessages {
		session.Metrics.MessageCount++
	}
	if effects.IncrementVisitor {
		session.Metrics.VisitorMessageCount++
	}
	if effects.IncrementAgent {
		session.Metrics.AgentMessageCount++
	}
	session.LastActivityAt = effects.ActivityAt
	return nil
}

func (r *fakeChatMessageRepo) ListBySession(_ context.Context, sessionID string) ([]domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ChatMessage(nil), r.messages[sessionID]...), nil
}

func (r *fakeChatMessageRepo) MarkRead(_ context.Context, sessionID string, byAgent bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[sessionID]
	for i := range msgs {
		if byAgent {
			msgs[i].ReadByAgent = true
		} else {
			msgs[i].ReadByVisitor = true
		}
	}
	return nil
}

type fakeCategoryRepo struct {
	mu         sync.Mutex
	categories map[string]*domain.Category
}

func newFakeCategoryRepo(categories ...*domain.Category) *fakeCategoryRepo {
	repo := &fakeCategoryRepo{categories: map[string]*domain.Category{}}
	for _, category := range categories {
		repo.categories[category.ID] = category
	}
	return repo
}

func (r *fakeCategoryRepo) GetByID(_ context.Context, id string) (*domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.categories[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *stored
	return &clone, nil
}

func (r *fakeCategoryRepo) List(_ context.Context) ([]domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Category, 0, len(r.categories))
	for _, stored := range r.categories {
		out = append(out, *stored)
	}
	return out, nil
}

func (r *fakeCategoryRepo) IncrementCounters(_ context.Context, id string, totalDelta, openDelta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.categories[id]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.TotalTickets += totalDelta
	stored.OpenTickets += openDelta
	if stored.OpenTickets < 0 {
		stored.OpenTickets = 0
	}
	return nil
}

type fakeSequenceRepo struct {
	mu     sync.Mutex
	values map[string]int64
}

func newFakeSequenceRepo() *fakeSequenceRepo {
	return &fakeSequenceRepo{values: map[string]int64{}}
}

func (r *fakeSequenceRepo) Next(_ context.Context, scope string, year int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("%s-%d", scope, year)
	r.values[key]++
	return r.values[key], nil
}

type fakeBotRuleRepo struct {
	mu    sync.Mutex
	rules []domain.BotRule
	used  map[string]int
}

func newFakeBotRuleRepo(rules ...domain.BotRule) *fakeBotRuleRepo {
	return &fakeBotRuleRepo{rules: rules, used: map[string]int{}}
}

func (r *fakeBotRuleRepo) ListActive(_ context.Context) ([]domain.BotRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var active []domain.BotRule
	for _, rule := range r.rules {
		if rule.IsActive {
			active = append(active, rule)
		}
	}
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			if active[j].Priority > active[i].Priority {
				active[i], active[j] = active[j], active[i]
			}
		}
	}
	return active, nil
}

func (r *fakeBotRuleRepo) RecordUsage(_ context.Context, id string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.used[id]++
	return nil
}

// Collaborator recorders.

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(_ events.EventType, _ events.EventHandler) {}

func (d *recordingDispatcher) byType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.Event
	for _, event := range d.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *recordingAuditor) Record(_ context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (n *recordingNotifier) Send(_ context.Context, notification notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}
