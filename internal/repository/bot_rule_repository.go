package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
)

// BotRuleRepository encapsulates bot rule persistence.
type BotRuleRepository interface {
	// ListActive returns active rules in descending priority order.
	ListActive(ctx context.Context) ([]domain.BotRule, error)
	// RecordUsage atomically bumps the usage counter and last-used timestamp.
	RecordUsage(ctx context.Context, id string, at time.Time) error
}

type botRuleRepository struct {
	pool *pgxpool.Pool
}

// NewBotRuleRepository instantiates repository.
func NewBotRuleRepository(pool *pgxpool.Pool) BotRuleRepository {
	return &botRuleRepository{pool: pool}
}

func (r *botRuleRepository) ListActive(ctx context.Context) ([]domain.BotRule, error) {
	const query = `
        SELECT id, name, priority, patterns, response, quick_replies, is_active,
               usage_count, last_used_at, created_at, updated_at
        FROM bot_rules WHERE is_active ORDER BY priority DESC, created_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.BotRule
	for rows.Next() {
		var rule domain.BotRule
		if err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.Priority,
			&rule.Patterns,
			&rule.Response,
			&rule.QuickReplies,
			&rule.IsActive,
			&rule.UsageCount,
			&rule.LastUsedAt,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func (r *botRuleRepository) RecordUsage(ctx context.Context, id string, at time.Time) error {
	const query = `
        UPDATE bot_rules SET usage_count = usage_count + 1, last_used_at = $1, updated_at = NOW()
        WHERE id = $2`
	_, err := r.pool.Exec(ctx, query, at, id)
	return err
}
