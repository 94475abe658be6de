package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
)

// TicketMessageEffects describes the counter and lifecycle updates that must
// land atomically with a message insert. The message engine computes them;
// the repository applies message and effects in one transaction.
type TicketMessageEffects struct {
	IncrementMessages      bool
	IncrementInternalNotes bool
	NewStatus              *domain.TicketStatus
	FirstRespondedAt       *time.Time
	FirstResponseBreached  bool
	LastCustomerReplyAt    *time.Time
	LastAgentReplyAt       *time.Time
}

// TicketMessageRepository encapsulates ticket message persistence.
type TicketMessageRepository interface {
	// Append inserts the message and applies the effects to the owning ticket
	// as a single atomic unit.
	Append(ctx context.Context, msg *domain.TicketMessage, effects TicketMessageEffects) error
	Create(ctx context.Context, msg *domain.TicketMessage) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error)
	// BumpMessageCounts adjusts the ticket counters without inserting, used
	// when messages are copied in bulk during a merge. Internal notes count
	// separately from public messages.
	BumpMessageCounts(ctx context.Context, ticketID string, messages, internalNotes int) error
}

type ticketMessageRepository struct {
	pool *pgxpool.Pool
}

// NewTicketMessageRepository instantiates repository.
func NewTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool}
}

const insertTicketMessage = `
    INSERT INTO ticket_messages (ticket_id, sender_type, sender_id, content, is_internal)
    VALUES ($1,$2,$3,$4,$5)
    RETURNING id, created_at`

func (r *ticketMessageRepository) Append(ctx context.Context, msg *domain.TicketMessage, effects TicketMessageEffects) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := tx.QueryRow(ctx, insertTicketMessage,
		msg.TicketID, msg.SenderType, msg.SenderID, msg.Content, msg.IsInternal,
	).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return err
	}

	const update = `
        UPDATE tickets SET
            message_count = message_count + $1,
            internal_note_count = internal_note_count + $2,
            status = COALESCE($3, status),
            first_responded_at = COALESCE(first_responded_at, $4),
            first_response_breached = first_response_breached OR $5,
            last_customer_reply_at = COALESCE($6, last_customer_reply_at),
            last_agent_reply_at = COALESCE($7, last_agent_reply_at),
            updated_at = NOW()
        WHERE id = $8`
	cmd, err := tx.Exec(ctx, update,
		boolToInt(effects.IncrementMessages),
		boolToInt(effects.IncrementInternalNotes),
		effects.NewStatus,
		effects.FirstRespondedAt,
		effects.FirstResponseBreached,
		effects.LastCustomerReplyAt,
		effects.LastAgentReplyAt,
		msg.TicketID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}

func (r *ticketMessageRepository) Create(ctx context.Context, msg *domain.TicketMessage) error {
	return r.pool.QueryRow(ctx, insertTicketMessage,
		msg.TicketID, msg.SenderType, msg.SenderID, msg.Content, msg.IsInternal,
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	const query = `
        SELECT id, ticket_id, sender_type, sender_id, content, is_internal, created_at
        FROM ticket_messages WHERE ticket_id=$1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketMessage
	for rows.Next() {
		var msg domain.TicketMessage
		if err := rows.Scan(&msg.ID, &msg.TicketID, &msg.SenderType, &msg.SenderID, &msg.Content, &msg.IsInternal, &msg.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *ticketMessageRepository) BumpMessageCounts(ctx context.Context, ticketID string, messages, internalNotes int) error {
	const query = `
        UPDATE tickets SET message_count = message_count + $1,
            internal_note_count = internal_note_count + $2, updated_at=NOW()
        WHERE id=$3`
	_, err := r.pool.Exec(ctx, query, messages, internalNotes, ticketID)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
