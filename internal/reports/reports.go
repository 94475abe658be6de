package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TicketReport is the aggregate read model served to supervisors.
type TicketReport struct {
	Total               int            `json:"total"`
	ByStatus            map[string]int `json:"by_status"`
	ByPriority          map[string]int `json:"by_priority"`
	FirstResponseBreach int            `json:"first_response_breaches"`
	ResolutionBreach    int            `json:"resolution_breaches"`
	SLACompliancePct    float64        `json:"sla_compliance_pct"`
	AvgFirstResponseSec float64        `json:"avg_first_response_seconds"`
	AvgRating           float64        `json:"avg_rating"`
}

// ChatReport aggregates live-chat outcomes.
type ChatReport struct {
	Total           int            `json:"total"`
	ByStatus        map[string]int `json:"by_status"`
	AvgWaitSec      float64        `json:"avg_wait_seconds"`
	AvgDurationSec  float64        `json:"avg_duration_seconds"`
	AbandonmentPct  float64        `json:"abandonment_pct"`
	AvgRating       float64        `json:"avg_rating"`
	CurrentlyQueued int            `json:"currently_queued"`
}

// Service computes reports straight from the store; nothing here mutates.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs the report service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Tickets builds the ticket report for the window [from, to).
func (s *Service) Tickets(ctx context.Context, from, to time.Time) (*TicketReport, error) {
	report := &TicketReport{
		ByStatus:   map[string]int{},
		ByPriority: map[string]int{},
	}

	rows, err := s.pool.Query(ctx, `
        SELECT status, priority, COUNT(*)
        FROM tickets
        WHERE created_at >= $1 AND created_at < $2
        GROUP BY status, priority`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status, priority string
		var count int
		if err := rows.Scan(&status, &priority, &count); err != nil {
			return nil, err
		}
		report.Total += count
		report.ByStatus[status] += count
		report.ByPriority[priority] += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.pool.QueryRow(ctx, `
        SELECT
            COUNT(*) FILTER (WHERE first_response_breached),
            COUNT(*) FILTER (WHERE resolution_breached),
            COALESCE(AVG(EXTRACT(EPOCH FROM (first_responded_at - created_at))), 0),
            COALESCE(AVG(rating), 0)
        FROM tickets
        WHERE created_at >= $1 AND created_at < $2`, from, to).Scan(
		&report.FirstResponseBreach,
		&report.ResolutionBreach,
		&report.AvgFirstResponseSec,
		&report.AvgRating,
	)
	if err != nil {
		return nil, err
	}

	if report.Total > 0 {
		breached := report.FirstResponseBreach + report.ResolutionBreach
		compliant := report.Total - min(breached, report.Total)
		report.SLACompliancePct = float64(compliant) / float64(report.Total) * 100
	}
	return report, nil
}

// Chats builds the chat report for the window [from, to).
func (s *Service) Chats(ctx context.Context, from, to time.Time) (*ChatReport, error) {
	report := &ChatReport{ByStatus: map[string]int{}}

	rows, err := s.pool.Query(ctx, `
        SELECT status, COUNT(*)
        FROM chat_sessions
        WHERE created_at >= $1 AND created_at < $2
        GROUP BY status`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		report.Total += count
		report.ByStatus[status] += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.pool.QueryRow(ctx, `
        SELECT
            COALESCE(AVG(wait_time_seconds) FILTER (WHERE started_at IS NOT NULL), 0),
            COALESCE(AVG(chat_duration_seconds) FILTER (WHERE ended_at IS NOT NULL), 0),
            COALESCE(AVG(rating), 0)
        FROM chat_sessions
        WHERE created_at >= $1 AND created_at < $2`, from, to).Scan(
		&report.AvgWaitSec,
		&report.AvgDurationSec,
		&report.AvgRating,
	)
	if err != nil {
		return nil, err
	}

	if report.Total > 0 {
		report.AbandonmentPct = float64(report.ByStatus["ABANDONED"]) / float64(report.Total) * 100
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chat_sessions WHERE status='WAITING'`).Scan(&report.CurrentlyQueued)
	if err != nil {
		return nil, err
	}
	return report, nil
}

