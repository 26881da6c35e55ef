package repositoryimpl

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kazz187/agentforge/internal/task"
	"github.com/kazz187/agentforge/pkg/cerr"
)

const taskColumns = `id, user_id, title, category, priority, description, notes, tags, status, created_at, updated_at`

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func scanTask(row pgx.Row) (*task.Task, error) {
	var t task.Task
	var status string
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Category, &t.Priority, &t.Description, &t.Notes, &t.Tags, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = task.Status(status)
	return &t, nil
}

func (r *PostgresRepository) Create(ctx context.Context, t *task.Task) error {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (user_id, title, category, priority, description, notes, tags, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		t.UserID, t.Title, t.Category, t.Priority, t.Description, t.Notes, tags, string(t.Status), t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to insert task: %w", err))
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*task.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cerr.NewError(cerr.NotFound, "task not found", err)
	}
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to select task: %w", err))
	}
	return t, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string, limit, offset int) ([]*task.Task, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM tasks WHERE ($1 = '' OR user_id = $1)`, userID).Scan(&total); err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to count tasks: %w", err))
	}

	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY id
		LIMIT $2 OFFSET $3`, userID, lim, offset)
	if err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to list tasks: %w", err))
	}
	defer rows.Close()

	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to scan task: %w", err))
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to list tasks: %w", err))
	}
	return out, total, nil
}

func (r *PostgresRepository) Update(ctx context.Context, t *task.Task) error {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks SET title = $2, category = $3, priority = $4, description = $5, notes = $6,
			tags = $7, status = $8, updated_at = $9
		WHERE id = $1`,
		t.ID, t.Title, t.Category, t.Priority, t.Description, t.Notes, tags, string(t.Status), t.UpdatedAt)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to update task: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to delete task: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return nil
}
