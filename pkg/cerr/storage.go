package cerr

import (
	"context"
	"errors"
	"fmt"

	"github.com/kazz187/agentforge/pkg/storage"
)

type storageOp string

const (
	opRead   storageOp = "read"
	opWrite  storageOp = "write"
	opDelete storageOp = "delete"
)

// wrapStorage maps a storage failure on target (e.g. "execution") to a code.
// A missing document is NotFound except on write; an expired deadline keeps
// its own code so a timed out execution is not reported as a server error.
func wrapStorage(op storageOp, target string, err error) error {
	switch {
	case op != opWrite && errors.Is(err, storage.ErrNotFound):
		return NewError(NotFound, fmt.Sprintf("%s not found", target), err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(DeadlineExceeded, fmt.Sprintf("%s %s timed out", op, target), err)
	}
	return NewError(Internal, "server error", fmt.Errorf("failed to %s %s: %w", op, target, err))
}

func WrapStorageReadError(target string, err error) error {
	return wrapStorage(opRead, target, err)
}

func WrapStorageWriteError(target string, err error) error {
	return wrapStorage(opWrite, target, err)
}

func WrapStorageDeleteError(target string, err error) error {
	return wrapStorage(opDelete, target, err)
}
