package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SequenceRepository hands out year-scoped sequential numbers for persisted
// identifiers (ticket numbers, session numbers).
type SequenceRepository interface {
	Next(ctx context.Context, scope string, year int) (int64, error)
}

type sequenceRepository struct {
	pool *pgxpool.Pool
}

// NewSequenceRepository instantiates repository.
func NewSequenceRepository(pool *pgxpool.Pool) SequenceRepository {
	return &sequenceRepository{pool: pool}
}

func (r *sequenceRepository) Next(ctx context.Context, scope string, year int) (int64, error) {
	const query = `
        INSERT INTO sequences (scope, year, value) VALUES ($1, $2, 1)
        ON CONFLICT (scope, year) DO UPDATE SET value = sequences.value + 1
        RETURNING value`
	var value int64
	if err := r.pool.QueryRow(ctx, query, scope, year).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}

// FormatNumber renders a year-scoped identifier such as TKT-2026-000042.
func FormatNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, year, seq)
}
