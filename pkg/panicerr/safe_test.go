package panicerr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, Run(ctx, func(context.Context) error { return nil }))

	want := errors.New("boom")
	assert.ErrorIs(t, Run(ctx, func(context.Context) error { return want }), want)

	err := Run(ctx, func(context.Context) error { panic("worker exploded") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker exploded")
}
