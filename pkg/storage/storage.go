package storage

import (
	"context"
	"errors"
)

// ErrNotFound is wrapped by Read and Delete when path holds no document.
var ErrNotFound = errors.New("not found")

// Storage is the document store behind the YAML repositories: tasks,
// executions, execution logs and push subscriptions each live under their
// own prefix as one file per record. Paths are slash separated and relative
// to the backend root (a directory, or an S3 bucket prefix).
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	// Write replaces the document at path, creating parents as needed.
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	// List returns the document paths directly under prefix, without
	// recursing.
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}
