package executionlog

import "context"

type Repository interface {
	Append(ctx context.Context, e *Entry) error
	// List returns entries newest first together with the total count.
	List(ctx context.Context, executionID string, limit, offset int) ([]*Entry, int, error)
}
