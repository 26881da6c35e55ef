// Package panicerr converts panics in supervised goroutines into errors.
package panicerr

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// Run calls fn and returns its error, or the recovered panic (with stack)
// as an error when fn panics.
func Run(ctx context.Context, fn func(context.Context) error) error {
	var (
		catcher panics.Catcher
		err     error
	)
	catcher.Try(func() {
		err = fn(ctx)
	})
	if r := catcher.Recovered(); r != nil {
		return r.AsError()
	}
	return err
}
