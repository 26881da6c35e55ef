package cerr

import (
	"context"
	"errors"
	"fmt"
)

// WrapExternalError marks a failed call to a text-generation, version-control
// or CI provider. Deadlines keep their own code so callers can tell a timeout
// apart from a provider outage.
func WrapExternalError(service string, err error) error {
	if err == nil {
		return nil
	}
	var cErr *Error
	if errors.As(err, &cErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(DeadlineExceeded, fmt.Sprintf("%s call timed out", service), err)
	}
	return NewError(Unavailable, fmt.Sprintf("%s call failed", service), err)
}
