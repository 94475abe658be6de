package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Abdualsslam/tras-phone-sub000/internal/config"
	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
	"github.com/Abdualsslam/tras-phone-sub000/internal/events"
	"github.com/Abdualsslam/tras-phone-sub000/internal/notify"
	"github.com/Abdualsslam/tras-phone-sub000/internal/observability"
	"github.com/Abdualsslam/tras-phone-sub000/internal/repository"
)

type memTicketRepo struct {
	tickets map[string]*domain.Ticket
}

func newMemTicketRepo(tickets ...*domain.Ticket) *memTicketRepo {
	repo := &memTicketRepo{tickets: map[string]*domain.Ticket{}}
	for _, ticket := range tickets {
		repo.tickets[ticket.ID] = ticket
	}
	return repo
}

func (r *memTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.tickets[ticket.ID] = ticket
	return nil
}

func (r *memTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.tickets[ticket.ID] = ticket
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return ticket, nil
}

func (r *memTicketRepo) GetByNumber(_ context.Context, _ string) (*domain.Ticket, error) {
	return nil, pgx.ErrNoRows
}

func (r *memTicketRepo) ListWithFilter(_ context.Context, _ repository.TicketFilter) ([]domain.Ticket, error) {
	return nil, nil
}

func (r *memTicketRepo) MarkFirstResponseBreached(_ context.Context, id string) (bool, error) {
	ticket := r.tickets[id]
	if ticket == nil || ticket.SLA.FirstResponseBreached || ticket.SLA.FirstRespondedAt != nil {
		return false, nil
	}
	ticket.SLA.FirstResponseBreached = true
	return true, nil
}

func (r *memTicketRepo) MarkResolutionBreached(_ context.Context, id string) (bool, error) {
	ticket := r.tickets[id]
	if ticket == nil || ticket.SLA.ResolutionBreached || ticket.SLA.ResolvedAt != nil {
		return false, nil
	}
	ticket.SLA.ResolutionBreached = true
	return true, nil
}

func (r *memTicketRepo) ListOpenForSLA(_ context.Context) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, ticket := range r.tickets {
		switch ticket.Status {
		case domain.TicketStatusResolved, domain.TicketStatusClosed:
		default:
			out = append(out, *ticket)
		}
	}
	return out, nil
}

func (r *memTicketRepo) ListUnassignedUrgent(_ context.Context) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.Priority == domain.TicketPriorityUrgent && ticket.AssignedAgentID == nil {
			out = append(out, *ticket)
		}
	}
	return out, nil
}

func (r *memTicketRepo) ListStaleAssigned(_ context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.AssignedAgentID == nil {
			continue
		}
		last := ticket.CreatedAt
		if ticket.LastAgentReply != nil {
			last = *ticket.LastAgentReply
		}
		if last.Before(cutoff) {
			out = append(out, *ticket)
		}
	}
	return out, nil
}

type memLeaser struct {
	grant  bool
	marked map[string]bool
}

func newMemLeaser(grant bool) *memLeaser {
	return &memLeaser{grant: grant, marked: map[string]bool{}}
}

func (l *memLeaser) AcquireLease(_ context.Context, _, _ string, _ time.Duration) (bool, error) {
	return l.grant, nil
}

func (l *memLeaser) MarkOnce(_ context.Context, key string, _ time.Duration) (bool, error) {
	if l.marked[key] {
		return false, nil
	}
	l.marked[key] = true
	return true, nil
}

type memNotifier struct {
	sent []notify.Notification
}

func (n *memNotifier) Send(_ context.Context, notification notify.Notification) error {
	n.sent = append(n.sent, notification)
	return nil
}

func (n *memNotifier) byCategory(category string) []notify.Notification {
	var out []notify.Notification
	for _, sent := range n.sent {
		if sent.Category == category {
			out = append(out, sent)
		}
	}
	return out
}

func slaConfig() config.SLAConfig {
	return config.SLAConfig{
		ScanIntervalMinutes:  10,
		WarningPercent:       80,
		StaleAgentReplyHours: 24,
		LeaseTTLSeconds:      60,
		WarningDedupHours:    4,
	}
}

func newTestMonitor(repo *memTicketRepo, leaser *memLeaser, notifier *memNotifier, now time.Time) (*SLAMonitor, *observability.Metrics) {
	metrics := observability.NewMetrics()
	m := NewSLAMonitor(repo, leaser, notifier, metrics, events.NewInMemoryDispatcher(), zap.NewNop(), slaConfig())
	m.now = func() time.Time { return now }
	return m, metrics
}

func openTicket(id string, createdAt time.Time, responseHours, resolutionHours int) *domain.Ticket {
	agent := "agent-1"
	return &domain.Ticket{
		ID:              id,
		Number:          "TKT-2026-0001" + id,
		CategoryID:      "cat-1",
		Subject:         "help",
		Status:          domain.TicketStatusOpen,
		Priority:        domain.TicketPriorityMedium,
		AssignedAgentID: &agent,
		CreatedAt:       createdAt,
		SLA: domain.SLAInfo{
			FirstResponseDue: createdAt.Add(time.Duration(responseHours) * time.Hour),
			ResolutionDue:    createdAt.Add(time.Duration(resolutionHours) * time.Hour),
		},
	}
}

func TestScanWarnsNearDeadlineOnce(t *testing.T) {
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	// 3.5h into a 4h window: 87.5% consumed.
	now := created.Add(3*time.Hour + 30*time.Minute)

	repo := newMemTicketRepo(openTicket("t1", created, 4, 48))
	leaser := newMemLeaser(true)
	notifier := &memNotifier{}
	m, metrics := newTestMonitor(repo, leaser, notifier, now)

	m.Scan(context.Background())

	if got := len(notifier.byCategory("sla_warning")); got != 1 {
		t.Fatalf("expected one warning, got %d", got)
	}
	if repo.tickets["t1"].SLA.FirstResponseBreached {
		t.Error("warning must not flip the breach flag")
	}
	if metrics.SLAAlertCount("first_response_warning") != 1 {
		t.Error("warning metric not recorded")
	}

	// A second scan within the dedup window stays quiet.
	m.Scan(context.Background())
	if got := len(notifier.byCategory("sla_warning")); got != 1 {
		t.Errorf("warning must dedup, got %d", got)
	}
}

func TestScanFlagsBreachExactlyOnce(t *testing.T) {
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	now := created.Add(5 * time.Hour)

	repo := newMemTicketRepo(openTicket("t1", created, 4, 48))
	leaser := newMemLeaser(true)
	notifier := &memNotifier{}
	m, metrics := newTestMonitor(repo, leaser, notifier, now)

	m.Scan(context.Background())
	if !repo.tickets["t1"].SLA.FirstResponseBreached {
		t.Fatal("breach flag must flip past the deadline")
	}
	if got := len(notifier.byCategory("sla_breach")); got != 1 {
		t.Fatalf("expected one breach alert, got %d", got)
	}

	m.Scan(context.Background())
	if got := len(notifier.byCategory("sla_breach")); got != 1 {
		t.Errorf("breach alert must fire exactly once, got %d", got)
	}
	if metrics.SLAAlertCount("first_response_breach") != 1 {
		t.Errorf("breach metric must count once, got %d", metrics.SLAAlertCount("first_response_breach"))
	}
}

func TestScanSkipsRespondedTickets(t *testing.T) {
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	now := created.Add(10 * time.Hour)

	ticket := openTicket("t1", created, 4, 48)
	responded := created.Add(time.Hour)
	ticket.SLA.FirstRespondedAt = &responded

	repo := newMemTicketRepo(ticket)
	notifier := &memNotifier{}
	m, _ := newTestMonitor(repo, newMemLeaser(true), notifier, now)

	m.Scan(context.Background())

	if ticket.SLA.FirstResponseBreached {
		t.Error("responded ticket must not breach first response")
	}
	if got := len(notifier.byCategory("sla_breach")); got != 0 {
		t.Errorf("expected no breach alerts, got %d", got)
	}
}

func TestScanWithoutLeaseDoesNothing(t *testing.T) {
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	now := created.Add(10 * time.Hour)

	repo := newMemTicketRepo(openTicket("t1", created, 4, 48))
	notifier := &memNotifier{}
	m, _ := newTestMonitor(repo, newMemLeaser(false), notifier, now)

	m.Scan(context.Background())

	if repo.tickets["t1"].SLA.FirstResponseBreached {
		t.Error("scan must be a no-op without the lease")
	}
	if len(notifier.sent) != 0 {
		t.Errorf("expected no notifications, got %d", len(notifier.sent))
	}
}

func TestScanAlertsUnassignedUrgent(t *testing.T) {
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	now := created.Add(time.Hour)

	ticket := openTicket("t1", created, 48, 96)
	ticket.Priority = domain.TicketPriorityUrgent
	ticket.AssignedAgentID = nil

	repo := newMemTicketRepo(ticket)
	notifier := &memNotifier{}
	m, _ := newTestMonitor(repo, newMemLeaser(true), notifier, now)

	m.Scan(context.Background())
	if got := len(notifier.byCategory("unassigned_urgent")); got != 1 {
		t.Fatalf("expected one unassigned-urgent alert, got %d", got)
	}
	if notifier.byCategory("unassigned_urgent")[0].RecipientType != notify.RecipientSupervisors {
		t.Error("unassigned-urgent alerts go to supervisors")
	}

	m.Scan(context.Background())
	if got := len(notifier.byCategory("unassigned_urgent")); got != 1 {
		t.Errorf("alert must dedup across scans, got %d", got)
	}
}

func TestScanRemindsStaleAssignment(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := created.Add(48 * time.Hour)

	// Long deadlines keep the deadline checks quiet; only staleness fires.
	ticket := openTicket("t1", created, 200, 400)
	repo := newMemTicketRepo(ticket)
	notifier := &memNotifier{}
	m, _ := newTestMonitor(repo, newMemLeaser(true), notifier, now)

	m.Scan(context.Background())
	alerts := notifier.byCategory("stale_assignment")
	if len(alerts) != 1 {
		t.Fatalf("expected one stale-assignment reminder, got %d", len(alerts))
	}
	if alerts[0].RecipientID != "agent-1" {
		t.Errorf("reminder must target the assignee, got %s", alerts[0].RecipientID)
	}
}

func TestDeadlineProgress(t *testing.T) {
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	due := created.Add(10 * time.Hour)

	cases := []struct {
		at   time.Time
		want float64
	}{
		{created, 0},
		{created.Add(5 * time.Hour), 0.5},
		{created.Add(8 * time.Hour), 0.8},
		{due, 1},
	}
	for _, tc := range cases {
		if got := deadlineProgress(created, due, tc.at); got != tc.want {
			t.Errorf("progress at %v: got %v want %v", tc.at, got, tc.want)
		}
	}
	if got := deadlineProgress(created, created, due); got != 1 {
		t.Errorf("zero window must count as consumed, got %v", got)
	}
}
