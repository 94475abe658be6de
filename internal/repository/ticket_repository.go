package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	CustomerID  *string
	CategoryID  *string
	AssigneeID  *string
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)

	// MarkFirstResponseBreached flips the monotonic flag; it reports whether
	// this call performed the flip (false when already breached or responded).
	MarkFirstResponseBreached(ctx context.Context, id string) (bool, error)
	// MarkResolutionBreached is the resolution-deadline counterpart.
	MarkResolutionBreached(ctx context.Context, id string) (bool, error)

	// ListOpenForSLA returns tickets still subject to deadline checks.
	ListOpenForSLA(ctx context.Context) ([]domain.Ticket, error)
	// ListUnassignedUrgent returns URGENT open tickets without an assignee.
	ListUnassignedUrgent(ctx context.Context) ([]domain.Ticket, error)
	// ListStaleAssigned returns assigned tickets with no agent reply since cutoff.
	ListStaleAssigned(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, number, customer_id, customer_name, customer_email, customer_phone,
       category_id, subject, description, status, priority, assigned_agent_id, assigned_at,
       first_response_due, resolution_due, first_responded_at, resolved_at,
       first_response_breached, resolution_breached,
       resolution_summary, resolution_type, resolution_by, resolution_at,
       escalation_level, merged_into, merged_tickets, message_count, internal_note_count,
       last_customer_reply_at, last_agent_reply_at, rating, rating_feedback, rated_at,
       created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (number, customer_id, customer_name, customer_email, customer_phone,
            category_id, subject, description, status, priority, assigned_agent_id, assigned_at,
            first_response_due, resolution_due, merged_tickets)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Number,
		ticket.Customer.CustomerID,
		ticket.Customer.Name,
		ticket.Customer.Email,
		ticket.Customer.Phone,
		ticket.CategoryID,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.AssignedAgentID,
		ticket.AssignedAt,
		ticket.SLA.FirstResponseDue,
		ticket.SLA.ResolutionDue,
		ticket.MergedTickets,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET status=$1, priority=$2, assigned_agent_id=$3, assigned_at=$4,
            first_responded_at=$5, resolved_at=$6,
            first_response_breached = first_response_breached OR $7,
            resolution_breached = resolution_breached OR $8,
            resolution_summary=$9, resolution_type=$10, resolution_by=$11, resolution_at=$12,
            escalation_level=$13, merged_into=$14, merged_tickets=$15,
            rating=$16, rating_feedback=$17, rated_at=$18, updated_at=NOW()
        WHERE id=$19`
	var resSummary, resType, resBy *string
	var resAt *time.Time
	if ticket.Resolution != nil {
		resSummary = &ticket.Resolution.Summary
		resType = &ticket.Resolution.Type
		resBy = &ticket.Resolution.ResolvedBy
		resAt = &ticket.Resolution.ResolvedAt
	}
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Status,
		ticket.Priority,
		ticket.AssignedAgentID,
		ticket.AssignedAt,
		ticket.SLA.FirstRespondedAt,
		ticket.SLA.ResolvedAt,
		ticket.SLA.FirstResponseBreached,
		ticket.SLA.ResolutionBreached,
		resSummary,
		resType,
		resBy,
		resAt,
		ticket.EscalationLevel,
		ticket.MergedInto,
		ticket.MergedTickets,
		ticket.Rating,
		ticket.RatingFeedback,
		ticket.RatedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE number=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, number)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	return scanTicket(row)
}

func (r *ticketRepository) MarkFirstResponseBreached(ctx context.Context, id string) (bool, error) {
	const query = `
        UPDATE tickets SET first_response_breached=TRUE, updated_at=NOW()
        WHERE id=$1 AND first_response_breached=FALSE AND first_responded_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) MarkResolutionBreached(ctx context.Context, id string) (bool, error) {
	const query = `
        UPDATE tickets SET resolution_breached=TRUE, updated_at=NOW()
        WHERE id=$1 AND resolution_breached=FALSE AND resolved_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) ListOpenForSLA(ctx context.Context) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE status NOT IN ('RESOLVED','CLOSED') AND merged_into IS NULL
        ORDER BY created_at`, ticketColumns)
	return r.list(ctx, query)
}

func (r *ticketRepository) ListUnassignedUrgent(ctx context.Context) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE priority='URGENT' AND assigned_agent_id IS NULL AND status='OPEN'
        ORDER BY created_at`, ticketColumns)
	return r.list(ctx, query)
}

func (r *ticketRepository) ListStaleAssigned(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE assigned_agent_id IS NOT NULL
          AND status NOT IN ('RESOLVED','CLOSED')
          AND COALESCE(last_agent_reply_at, created_at) < $1
        ORDER BY created_at`, ticketColumns)
	return r.list(ctx, query, cutoff)
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id=$%d", len(args)))
	}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		clauses = append(clauses, fmt.Sprintf("category_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assigned_agent_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(subject) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)
	return r.list(ctx, query, args...)
}

func (r *ticketRepository) list(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var resSummary, resType, resBy *string
	var resAt *time.Time
	if err := row.Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.Customer.CustomerID,
		&ticket.Customer.Name,
		&ticket.Customer.Email,
		&ticket.Customer.Phone,
		&ticket.CategoryID,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.AssignedAgentID,
		&ticket.AssignedAt,
		&ticket.SLA.FirstResponseDue,
		&ticket.SLA.ResolutionDue,
		&ticket.SLA.FirstRespondedAt,
		&ticket.SLA.ResolvedAt,
		&ticket.SLA.FirstResponseBreached,
		&ticket.SLA.ResolutionBreached,
		&resSummary,
		&resType,
		&resBy,
		&resAt,
		&ticket.EscalationLevel,
		&ticket.MergedInto,
		&ticket.MergedTickets,
		&ticket.MessageCount,
		&ticket.InternalNoteCount,
		&ticket.LastCustomerReply,
		&ticket.LastAgentReply,
		&ticket.Rating,
		&ticket.RatingFeedback,
		&ticket.RatedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if resSummary != nil {
		ticket.Resolution = &domain.Resolution{
			Summary:    *resSummary,
			ResolvedBy: deref(resBy),
		}
		if resType != nil {
			ticket.Resolution.Type = *resType
		}
		if resAt != nil {
			ticket.Resolution.ResolvedAt = *resAt
		}
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
