package task

import "context"

type Repository interface {
	// Create assigns the next id to t.
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id int64) (*Task, error)
	List(ctx context.Context, userID string, limit, offset int) ([]*Task, int, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id int64) error
}
