package monitor

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Abdualsslam/tras-phone-sub000/internal/config"
	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
	"github.com/Abdualsslam/tras-phone-sub000/internal/events"
	"github.com/Abdualsslam/tras-phone-sub000/internal/notify"
	"github.com/Abdualsslam/tras-phone-sub000/internal/observability"
	"github.com/Abdualsslam/tras-phone-sub000/internal/repository"
)

const leaseName = "sla-monitor"

// Leaser grants short-lived single-runner leases and one-shot dedup marks.
type Leaser interface {
	AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// SLAMonitor periodically scans open tickets against their deadlines.
// Warnings fire when a deadline is nearly consumed; breaches flip the
// monotonic flags exactly once. Only one replica runs a scan at a time,
// guarded by a lease.
type SLAMonitor struct {
	tickets  repository.TicketRepository
	leaser   Leaser
	notifier notify.Notifier
	metrics  *observability.Metrics
	events   events.Dispatcher
	logger   *zap.Logger
	cfg      config.SLAConfig
	holder   string
	now      func() time.Time
}

// NewSLAMonitor constructs the monitor.
func NewSLAMonitor(
	tickets repository.TicketRepository,
	leaser Leaser,
	notifier notify.Notifier,
	metrics *observability.Metrics,
	dispatcher events.Dispatcher,
	logger *zap.Logger,
	cfg config.SLAConfig,
) *SLAMonitor {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "local"
	}
	return &SLAMonitor{
		tickets:  tickets,
		leaser:   leaser,
		notifier: notifier,
		metrics:  metrics,
		events:   dispatcher,
		logger:   logger,
		cfg:      cfg,
		holder:   fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		now:      time.Now,
	}
}

// Run blocks scanning on the configured interval until ctx is canceled.
func (m *SLAMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ScanInterval())
	defer ticker.Stop()
	m.logger.Info("sla monitor started", zap.Duration("interval", m.cfg.ScanInterval()))
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("sla monitor stopped")
			return
		case <-ticker.C:
			m.Scan(ctx)
		}
	}
}

// Scan runs one full pass: deadline checks, unassigned-urgent alerts and
// stale-assignment reminders. It is a no-op when another replica holds
// the lease.
func (m *SLAMonitor) Scan(ctx context.Context) {
	acquired, err := m.leaser.AcquireLease(ctx, leaseName, m.holder, m.cfg.LeaseTTL())
	if err != nil {
		m.logger.Warn("sla lease check failed", zap.Error(err))
		return
	}
	if !acquired {
		return
	}

	m.scanDeadlines(ctx)
	m.scanUnassignedUrgent(ctx)
	m.scanStaleAssigned(ctx)
}

func (m *SLAMonitor) scanDeadlines(ctx context.Context) {
	tickets, err := m.tickets.ListOpenForSLA(ctx)
	if err != nil {
		m.logger.Error("sla ticket scan failed", zap.Error(err))
		return
	}

	now := m.now()
	for i := range tickets {
		ticket := &tickets[i]
		if ticket.SLA.FirstRespondedAt == nil && !ticket.SLA.FirstResponseBreached {
			m.checkDeadline(ctx, ticket, "first_response", ticket.SLA.FirstResponseDue, now, m.tickets.MarkFirstResponseBreached)
		}
		if ticket.SLA.ResolvedAt == nil && !ticket.SLA.ResolutionBreached {
			m.checkDeadline(ctx, ticket, "resolution", ticket.SLA.ResolutionDue, now, m.tickets.MarkResolutionBreached)
		}
	}
}

func (m *SLAMonitor) checkDeadline(
	ctx context.Context,
	ticket *domain.Ticket,
	kind string,
	due time.Time,
	now time.Time,
	mark func(context.Context, string) (bool, error),
) {
	if !now.Before(due) {
		flipped, err := mark(ctx, ticket.ID)
		if err != nil {
			m.logger.Error("breach mark failed", zap.String("ticket_id", ticket.ID), zap.String("kind", kind), zap.Error(err))
			return
		}
		if !flipped {
			return
		}
		m.metrics.RecordSLAAlert(kind + "_breach")
		m.logger.Warn("sla breached",
			zap.String("ticket_number", ticket.Number),
			zap.String("kind", kind))
		m.alertTicket(ctx, ticket, "sla_breach", fmt.Sprintf("SLA %s deadline breached for %s", kind, ticket.Number))
		m.publishFlags(ctx, ticket)
		return
	}

	if deadlineProgress(ticket.CreatedAt, due, now)*100 < m.cfg.WarningPercent {
		return
	}
	key := fmt.Sprintf("sla:warn:%s:%s", kind, ticket.ID)
	first, err := m.leaser.MarkOnce(ctx, key, m.cfg.WarningDedup())
	if err != nil {
		m.logger.Warn("warning dedup failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	if !first {
		return
	}
	m.metrics.RecordSLAAlert(kind + "_warning")
	m.alertTicket(ctx, ticket, "sla_warning", fmt.Sprintf("SLA %s deadline for %s is almost due", kind, ticket.Number))
}

func (m *SLAMonitor) scanUnassignedUrgent(ctx context.Context) {
	tickets, err := m.tickets.ListUnassignedUrgent(ctx)
	if err != nil {
		m.logger.Error("unassigned urgent scan failed", zap.Error(err))
		return
	}
	for i := range tickets {
		ticket := &tickets[i]
		key := fmt.Sprintf("sla:unassigned:%s", ticket.ID)
		first, err := m.leaser.MarkOnce(ctx, key, m.cfg.WarningDedup())
		if err != nil || !first {
			continue
		}
		m.metrics.RecordSLAAlert("unassigned_urgent")
		m.sendNotification(ctx, notify.Notification{
			RecipientID:   ticket.CategoryID,
			RecipientType: notify.RecipientSupervisors,
			Category:      "unassigned_urgent",
			Title:         "Urgent ticket has no assignee",
			Body:          ticket.Subject,
			ActionRef:     ticket.Number,
		})
	}
}

func (m *SLAMonitor) scanStaleAssigned(ctx context.Context) {
	cutoff := m.now().Add(-m.cfg.StaleAgentReply())
	tickets, err := m.tickets.ListStaleAssigned(ctx, cutoff)
	if err != nil {
		m.logger.Error("stale assignment scan failed", zap.Error(err))
		return
	}
	for i := range tickets {
		ticket := &tickets[i]
		if ticket.AssignedAgentID == nil {
			continue
		}
		key := fmt.Sprintf("sla:stale:%s", ticket.ID)
		first, err := m.leaser.MarkOnce(ctx, key, m.cfg.WarningDedup())
		if err != nil || !first {
			continue
		}
		m.metrics.RecordSLAAlert("stale_assignment")
		m.sendNotification(ctx, notify.Notification{
			RecipientID:   *ticket.AssignedAgentID,
			RecipientType: notify.RecipientAgent,
			Category:      "stale_assignment",
			Title:         "Ticket awaiting your reply",
			Body:          ticket.Subject,
			ActionRef:     ticket.Number,
		})
	}
}

func (m *SLAMonitor) alertTicket(ctx context.Context, ticket *domain.Ticket, category, body string) {
	if ticket.AssignedAgentID != nil {
		m.sendNotification(ctx, notify.Notification{
			RecipientID:   *ticket.AssignedAgentID,
			RecipientType: notify.RecipientAgent,
			Category:      category,
			Title:         "SLA alert",
			Body:          body,
			ActionRef:     ticket.Number,
		})
		return
	}
	m.sendNotification(ctx, notify.Notification{
		RecipientID:   ticket.CategoryID,
		RecipientType: notify.RecipientSupervisors,
		Category:      category,
		Title:         "SLA alert",
		Body:          body,
		ActionRef:     ticket.Number,
	})
}

func (m *SLAMonitor) sendNotification(ctx context.Context, n notify.Notification) {
	if err := m.notifier.Send(ctx, n); err != nil {
		m.logger.Warn("sla notification failed", zap.String("category", n.Category), zap.Error(err))
	}
}

func (m *SLAMonitor) publishFlags(ctx context.Context, ticket *domain.Ticket) {
	err := m.events.Publish(ctx, events.Event{
		ID:         fmt.Sprintf("sla-%s-%d", ticket.ID, m.now().UnixNano()),
		Type:       events.EventTicketUpdated,
		EntityKind: events.EntityTicket,
		EntityID:   ticket.ID,
		Actor:      domain.SystemActor,
		Timestamp:  m.now(),
		Payload:    events.TicketUpdatedPayload{NewStatus: ticket.Status, Comment: "sla breach"},
	})
	if err != nil {
		m.logger.Warn("sla event publish failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

// deadlineProgress reports how much of the window from createdAt to due has
// elapsed at now, as a fraction of 1. A zero or inverted window counts as
// fully consumed.
func deadlineProgress(createdAt, due, now time.Time) float64 {
	window := due.Sub(createdAt)
	if window <= 0 {
		return 1
	}
	return float64(now.Sub(createdAt)) / float64(window)
}
