package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
)

// ChatSessionFilter captures agent-side listing parameters.
type ChatSessionFilter struct {
	Department *string
	Statuses   []domain.ChatStatus
	AssigneeID *string
	Limit      int
	Offset     int
}

// ChatSessionRepository encapsulates chat session persistence.
type ChatSessionRepository interface {
	Create(ctx context.Context, session *domain.ChatSession) error
	Update(ctx context.Context, session *domain.ChatSession) error
	GetByID(ctx context.Context, id string) (*domain.ChatSession, error)
	ListWithFilter(ctx context.Context, filter ChatSessionFilter) ([]domain.ChatSession, error)

	// CountWaiting returns the number of Waiting sessions in a department.
	CountWaiting(ctx context.Context, department string) (int, error)
	// AcceptWaiting performs the conditional Waiting->Active transition.
	// It returns pgx.ErrNoRows when the session is absent OR not Waiting;
	// the caller disambiguates via GetByID.
	AcceptWaiting(ctx context.Context, id, agentID string, now time.Time) (*domain.ChatSession, error)
	// RenumberWaiting restores the dense 1..N queue ordering by creation time
	// for the department's Waiting sessions.
	RenumberWaiting(ctx context.Context, department string) error
	// SweepAbandoned marks Waiting/Active sessions idle since before cutoff as
	// Abandoned and returns the sessions it transitioned.
	SweepAbandoned(ctx context.Context, cutoff, now time.Time) ([]domain.ChatSession, error)
	// TouchActivity bumps last_activity_at.
	TouchActivity(ctx context.Context, id string, at time.Time) error
}

type chatSessionRepository struct {
	pool *pgxpool.Pool
}

// NewChatSessionRepository instantiates repository.
func NewChatSessionRepository(pool *pgxpool.Pool) ChatSessionRepository {
	return &chatSessionRepository{pool: pool}
}

const chatSessionColumns = `id, number, visitor_customer_id, visitor_name, visitor_email, visitor_phone,
       current_page, visited_pages, department, category_id, status, assigned_agent_id, assigned_at,
       queue_position, wait_time_seconds, chat_duration_seconds,
       message_count, visitor_message_count, agent_message_count, transfers,
       rating, rating_feedback, rated_at, started_at, ended_at, last_activity_at,
       created_at, updated_at`

func (r *chatSessionRepository) Create(ctx context.Context, session *domain.ChatSession) error {
	transfers, err := json.Marshal(session.Transfers)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO chat_sessions (number, visitor_customer_id, visitor_name, visitor_email, visitor_phone,
            current_page, visited_pages, department, category_id, status, queue_position, transfers, last_activity_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		session.Number,
		session.Visitor.CustomerID,
		session.Visitor.Name,
		session.Visitor.Email,
		session.Visitor.Phone,
		session.Visitor.CurrentPage,
		session.Visitor.VisitedPages,
		session.Department,
		session.CategoryID,
		session.Status,
		session.QueuePosition,
		transfers,
		session.LastActivityAt,
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
}

func (r *chatSessionRepository) Update(ctx context.Context, session *domain.ChatSession) error {
	transfers, err := json.Marshal(session.Transfers)
	if err != nil {
		return err
	}
	const query = `
        UPDATE chat_sessions SET current_page=$1, visited_pages=$2, status=$3,
            assigned_agent_id=$4, assigned_at=$5, queue_position=$6,
            wait_time_seconds=$7, chat_duration_seconds=$8, transfers=$9,
            rating=$10, rating_feedback=$11, rated_at=$12,
            started_at=$13, ended_at=$14, last_activity_at=$15, updated_at=NOW()
        WHERE id=$16`
	cmd, err := r.pool.Exec(ctx, query,
		session.Visitor.CurrentPage,
		session.Visitor.VisitedPages,
		session.Status,
		session.AssignedAgentID,
		session.AssignedAt,
		session.QueuePosition,
		int64(session.Metrics.WaitTime.Seconds()),
		int64(session.Metrics.ChatDuration.Seconds()),
		transfers,
		session.Rating,
		session.RatingFeedback,
		session.RatedAt,
		session.StartedAt,
		session.EndedAt,
		session.LastActivityAt,
		session.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *chatSessionRepository) GetByID(ctx context.Context, id string) (*domain.ChatSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM chat_sessions WHERE id=$1`, chatSessionColumns)
	row := r.pool.QueryRow(ctx, query, id)
	return scanChatSession(row)
}

func (r *chatSessionRepository) CountWaiting(ctx context.Context, department string) (int, error) {
	const query = `SELECT COUNT(*) FROM chat_sessions WHERE department=$1 AND status='WAITING'`
	var count int
	err := r.pool.QueryRow(ctx, query, department).Scan(&count)
	return count, err
}

func (r *chatSessionRepository) AcceptWaiting(ctx context.Context, id, agentID string, now time.Time) (*domain.ChatSession, error) {
	// Compare-and-swap on the current status closes the double-accept race.
	query := fmt.Sprintf(`
        UPDATE chat_sessions SET status='ACTIVE', assigned_agent_id=$1, assigned_at=$2,
            started_at=$2, queue_position=0,
            wait_time_seconds=EXTRACT(EPOCH FROM ($2::timestamptz - created_at))::bigint,
            last_activity_at=$2, updated_at=NOW()
        WHERE id=$3 AND status='WAITING'
        RETURNING %s`, chatSessionColumns)
	row := r.pool.QueryRow(ctx, query, agentID, now, id)
	return scanChatSession(row)
}

func (r *chatSessionRepository) RenumberWaiting(ctx context.Context, department string) error {
	const query = `
        WITH ranked AS (
            SELECT id, ROW_NUMBER() OVER (ORDER BY created_at) AS rn
            FROM chat_sessions
            WHERE department=$1 AND status='WAITING'
        )
        UPDATE chat_sessions s
        SET queue_position = r.rn, updated_at = NOW()
        FROM ranked r
        WHERE s.id = r.id AND s.queue_position <> r.rn`
	_, err := r.pool.Exec(ctx, query, department)
	return err
}

func (r *chatSessionRepository) SweepAbandoned(ctx context.Context, cutoff, now time.Time) ([]domain.ChatSession, error) {
	query := fmt.Sprintf(`
        UPDATE chat_sessions SET status='ABANDONED', ended_at=$1, queue_position=0, updated_at=NOW()
        WHERE status IN ('WAITING','ACTIVE') AND last_activity_at < $2
        RETURNING %s`, chatSessionColumns)
	rows, err := r.pool.Query(ctx, query, now, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChatSessions(rows)
}

func (r *chatSessionRepository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE chat_sessions SET last_activity_at=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.pool.Exec(ctx, query, at, id)
	return err
}

func (r *chatSessionRepository) ListWithFilter(ctx context.Context, filter ChatSessionFilter) ([]domain.ChatSession, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Department != nil {
		args = append(args, *filter.Department)
		clauses = append(clauses, fmt.Sprintf("department=$%d", len(args)))
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

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM chat_sessions WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		chatSessionColumns, strings.Join(clauses, " AND "), limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChatSessions(rows)
}

func scanChatSession(row pgx.Row) (*domain.ChatSession, error) {
	var session domain.ChatSession
	var waitSec, durationSec int64
	var transfers []byte
	if err := row.Scan(
		&session.ID,
		&session.Number,
		&session.Visitor.CustomerID,
		&session.Visitor.Name,
		&session.Visitor.Email,
		&session.Visitor.Phone,
		&session.Visitor.CurrentPage,
		&session.Visitor.VisitedPages,
		&session.Department,
		&session.CategoryID,
		&session.Status,
		&session.AssignedAgentID,
		&session.AssignedAt,
		&session.QueuePosition,
		&waitSec,
		&durationSec,
		&session.Metrics.MessageCount,
		&session.Metrics.VisitorMessageCount,
		&session.Metrics.AgentMessageCount,
		&transfers,
		&session.Rating,
		&session.RatingFeedback,
		&session.RatedAt,
		&session.StartedAt,
		&session.EndedAt,
		&session.LastActivityAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	); err != nil {
		return nil, err
	}
	session.Metrics.WaitTime = time.Duration(waitSec) * time.Second
	session.Metrics.ChatDuration = time.Duration(durationSec) * time.Second
	if len(transfers) > 0 {
		if err := json.Unmarshal(transfers, &session.Transfers); err != nil {
			return nil, err
		}
	}
	return &session, nil
}

func scanChatSessions(rows pgx.Rows) ([]domain.ChatSession, error) {
	var result []domain.ChatSession
	for rows.Next() {
		session, err := scanChatSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *session)
	}
	return result, rows.Err()
}
