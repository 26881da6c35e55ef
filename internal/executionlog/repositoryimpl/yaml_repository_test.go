package repositoryimpl

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/agentforge/internal/executionlog"
	"github.com/kazz187/agentforge/pkg/storage"
)

func TestYAMLRepository_AppendAndListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := NewYAMLRepository(s)

	// Same timestamp on purpose: ordering must come from the id.
	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Append(ctx, &executionlog.Entry{
			ID:          ulid.Make().String(),
			ExecutionID: "exec1",
			Type:        executionlog.TypeInfo,
			Message:     fmt.Sprintf("msg %d", i),
			Metadata:    map[string]any{"phase": "analysis"},
			CreatedAt:   now,
		}))
	}
	require.NoError(t, repo.Append(ctx, &executionlog.Entry{ID: ulid.Make().String(), ExecutionID: "exec2", Type: executionlog.TypeError}))

	logs, total, err := repo.List(ctx, "exec1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, logs, 2)
	assert.Equal(t, "msg 4", logs[0].Message)
	assert.Equal(t, "msg 3", logs[1].Message)
	assert.Equal(t, "analysis", logs[0].Metadata["phase"])

	logs, _, err = repo.List(ctx, "exec1", 50, 4)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "msg 0", logs[0].Message)

	logs, total, err = repo.List(ctx, "missing", 50, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, logs)
}
