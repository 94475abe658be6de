package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
)

// CategoryRepository encapsulates category persistence.
type CategoryRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
	// IncrementCounters atomically adjusts the aggregate ticket counters.
	IncrementCounters(ctx context.Context, id string, totalDelta, openDelta int) error
}

type categoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository instantiates repository.
func NewCategoryRepository(pool *pgxpool.Pool) CategoryRepository {
	return &categoryRepository{pool: pool}
}

func (r *categoryRepository) GetByID(ctx context.Context, id string) (*domain.Category, error) {
	const query = `
        SELECT id, name, response_time_hours, resolution_time_hours, default_priority,
               default_assignee_id, total_tickets, open_tickets, created_at, updated_at
        FROM categories WHERE id=$1`
	var category domain.Category
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&category.ID,
		&category.Name,
		&category.ResponseTimeHours,
		&category.ResolutionTimeHours,
		&category.DefaultPriority,
		&category.DefaultAssigneeID,
		&category.TotalTickets,
		&category.OpenTickets,
		&category.CreatedAt,
		&category.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *categoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	const query = `
        SELECT id, name, response_time_hours, resolution_time_hours, default_priority,
               default_assignee_id, total_tickets, open_tickets, created_at, updated_at
        FROM categories ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Category
	for rows.Next() {
		var category domain.Category
		if err := rows.Scan(
			&category.ID,
			&category.Name,
			&category.ResponseTimeHours,
			&category.ResolutionTimeHours,
			&category.DefaultPriority,
			&category.DefaultAssigneeID,
			&category.TotalTickets,
			&category.OpenTickets,
			&category.CreatedAt,
			&category.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, category)
	}
	return result, rows.Err()
}

func (r *categoryRepository) IncrementCounters(ctx context.Context, id string, totalDelta, openDelta int) error {
	const query = `
        UPDATE categories SET total_tickets = total_tickets + $1,
            open_tickets = GREATEST(open_tickets + $2, 0), updated_at=NOW()
        WHERE id=$3`
	_, err := r.pool.Exec(ctx, query, totalDelta, openDelta, id)
	return err
}
