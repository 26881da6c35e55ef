package execution

import "context"

type Repository interface {
	Create(ctx context.Context, e *Execution) error
	Get(ctx context.Context, id string) (*Execution, error)
	// Update writes e only if the stored status still equals expect. A
	// mismatch fails with cerr.Aborted and leaves the record untouched.
	Update(ctx context.Context, e *Execution, expect Status) error
	FindActiveByTask(ctx context.Context, taskID int64) (*Execution, error)
	ListActive(ctx context.Context) ([]*Execution, error)
	// ListByTask returns the task's executions, newest first.
	ListByTask(ctx context.Context, taskID int64, limit, offset int) ([]*Execution, int, error)
}
