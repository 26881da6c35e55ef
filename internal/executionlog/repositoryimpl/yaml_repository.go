package repositoryimpl

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/agentforge/internal/executionlog"
	"github.com/kazz187/agentforge/pkg/cerr"
	"github.com/kazz187/agentforge/pkg/storage"
)

const logsPrefix = "execution_logs"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func dir(executionID string) string {
	return fmt.Sprintf("%s/%s", logsPrefix, executionID)
}

func path(executionID, id string) string {
	return fmt.Sprintf("%s/%s.yaml", dir(executionID), id)
}

func (r *YAMLRepository) Append(ctx context.Context, e *executionlog.Entry) error {
	data, err := yaml.Marshal(e)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal execution log: %w", err))
	}
	if err := r.storage.Write(ctx, path(e.ExecutionID, e.ID), data); err != nil {
		return cerr.WrapStorageWriteError("execution log", err)
	}
	return nil
}

func (r *YAMLRepository) List(ctx context.Context, executionID string, limit, offset int) ([]*executionlog.Entry, int, error) {
	paths, err := r.storage.List(ctx, dir(executionID))
	if err != nil {
		return nil, 0, cerr.WrapStorageReadError("execution logs", err)
	}

	// File names are ULIDs, so reverse lexical order is newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))

	total := len(paths)
	if offset >= total {
		return nil, total, nil
	}
	paths = paths[offset:]
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}

	out := make([]*executionlog.Entry, 0, len(paths))
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			return nil, 0, cerr.WrapStorageReadError("execution log", err)
		}
		var e executionlog.Entry
		if err := yaml.Unmarshal(data, &e); err != nil {
			return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal execution log: %w", err))
		}
		out = append(out, &e)
	}
	return out, total, nil
}
