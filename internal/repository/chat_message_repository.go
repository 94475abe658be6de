package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
)

// ChatMessageEffects describes the session counter updates applied atomically
// with a message insert.
type ChatMessageEffects struct {
	IncrementMessages bool
	IncrementVisitor  bool
	IncrementAgent    bool
	ActivityAt        time.Time
}

// ChatMessageRepository encapsulates chat message persistence.
type ChatMessageRepository interface {
	// Append inserts the message and applies counter effects to the owning
	// session in one transaction.
	Append(ctx context.Context, msg *domain.ChatMessage, effects ChatMessageEffects) error
	ListBySession(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
	// MarkRead flags all of a session's messages as read by the given side.
	MarkRead(ctx context.Context, sessionID string, byAgent bool) error
}

type chatMessageRepository struct {
	pool *pgxpool.Pool
}

// NewChatMessageRepository instantiates repository.
func NewChatMessageRepository(pool *pgxpool.Pool) ChatMessageRepository {
	return &chatMessageRepository{pool: pool}
}

func (r *chatMessageRepository) Append(ctx context.Context, msg *domain.ChatMessage, effects ChatMessageEffects) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insert = `
        INSERT INTO chat_messages (session_id, sender_type, sender_id, content, is_internal, read_by_agent, read_by_visitor)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	if err := tx.QueryRow(ctx, insert,
		msg.SessionID, msg.SenderType, msg.SenderID, msg.Content, msg.IsInternal, msg.ReadByAgent, msg.ReadByVisitor,
	).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return err
	}

	const update = `
        UPDATE chat_sessions SET
            message_count = message_count + $1,
            visitor_message_count = visitor_message_count + $2,
            agent_message_count = agent_message_count + $3,
            last_activity_at = $4,
            updated_at = NOW()
        WHERE id = $5`
	cmd, err := tx.Exec(ctx, update,
		boolToInt(effects.IncrementMessages),
		boolToInt(effects.IncrementVisitor),
		boolToInt(effects.IncrementAgent),
		effects.ActivityAt,
		msg.SessionID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}

func (r *chatMessageRepository) ListBySession(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	const query = `
        SELECT id, session_id, sender_type, sender_id, content, is_internal, read_by_agent, read_by_visitor, created_at
        FROM chat_messages WHERE session_id=$1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ChatMessage
	for rows.Next() {
		var msg domain.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.SenderType, &msg.SenderID, &msg.Content, &msg.IsInternal, &msg.ReadByAgent, &msg.ReadByVisitor, &msg.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *chatMessageRepository) MarkRead(ctx context.Context, sessionID string, byAgent bool) error {
	query := `UPDATE chat_messages SET read_by_visitor=TRUE WHERE session_id=$1 AND read_by_visitor=FALSE`
	if byAgent {
		query = `UPDATE chat_messages SET read_by_agent=TRUE WHERE session_id=$1 AND read_by_agent=FALSE`
	}
	_, err := r.pool.Exec(ctx, query, sessionID)
	return err
}
