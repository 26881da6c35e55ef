package repositoryimpl

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/agentforge/internal/execution"
	"github.com/kazz187/agentforge/pkg/cerr"
	"github.com/kazz187/agentforge/pkg/storage"
)

const executionsPrefix = "executions"

type YAMLRepository struct {
	storage storage.Storage
	mu      sync.Mutex
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", executionsPrefix, id)
}

func (r *YAMLRepository) Create(ctx context.Context, e *execution.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	exists, err := r.storage.Exists(ctx, path(e.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("execution", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "execution already exists", nil)
	}
	return r.write(ctx, e)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*execution.Execution, error) {
	return r.read(ctx, path(id))
}

func (r *YAMLRepository) Update(ctx context.Context, e *execution.Execution, expect execution.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.read(ctx, path(e.ID))
	if err != nil {
		return err
	}
	if current.Status != expect {
		return cerr.NewError(cerr.Aborted,
			fmt.Sprintf("execution is %s, expected %s", current.Status, expect), nil)
	}
	if err := checkTransition(expect, e.Status); err != nil {
		return err
	}
	return r.write(ctx, e)
}

func (r *YAMLRepository) FindActiveByTask(ctx context.Context, taskID int64) (*execution.Execution, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range all {
		if e.TaskID == taskID && e.Status.IsActive() {
			return e, nil
		}
	}
	return nil, cerr.NewError(cerr.NotFound, "no active execution", nil)
}

func (r *YAMLRepository) ListActive(ctx context.Context) ([]*execution.Execution, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	var active []*execution.Execution
	for _, e := range all {
		if e.Status.IsActive() {
			active = append(active, e)
		}
	}
	return active, nil
}

func (r *YAMLRepository) ListByTask(ctx context.Context, taskID int64, limit, offset int) ([]*execution.Execution, int, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, 0, err
	}
	var matched []*execution.Execution
	for _, e := range all {
		if e.TaskID == taskID {
			matched = append(matched, e)
		}
	}
	// ULIDs sort by creation time.
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (r *YAMLRepository) all(ctx context.Context) ([]*execution.Execution, error) {
	paths, err := r.storage.List(ctx, executionsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("executions", err)
	}
	sort.Strings(paths)

	out := make([]*execution.Execution, 0, len(paths))
	for _, p := range paths {
		e, err := r.read(ctx, p)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *YAMLRepository) read(ctx context.Context, p string) (*execution.Execution, error) {
	data, err := r.storage.Read(ctx, p)
	if err != nil {
		return nil, cerr.WrapStorageReadError("execution", err)
	}
	var e execution.Execution
	if err := yaml.Unmarshal(data, &e); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal execution: %w", err))
	}
	return &e, nil
}

func (r *YAMLRepository) write(ctx context.Context, e *execution.Execution) error {
	data, err := yaml.Marshal(e)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal execution: %w", err))
	}
	if err := r.storage.Write(ctx, path(e.ID), data); err != nil {
		return cerr.WrapStorageWriteError("execution", err)
	}
	return nil
}
