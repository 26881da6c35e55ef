package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kazz187/agentforge/internal/config"
	"github.com/kazz187/agentforge/internal/execution"
	execrepo "github.com/kazz187/agentforge/internal/execution/repositoryimpl"
	"github.com/kazz187/agentforge/internal/executionlog"
	execlogrepo "github.com/kazz187/agentforge/internal/executionlog/repositoryimpl"
	"github.com/kazz187/agentforge/internal/pushsubscription"
	pushsubrepo "github.com/kazz187/agentforge/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/agentforge/internal/task"
	taskrepo "github.com/kazz187/agentforge/internal/task/repositoryimpl"
	"github.com/kazz187/agentforge/migrations"
	"github.com/kazz187/agentforge/pkg/storage"
)

type repositories struct {
	task         task.Repository
	execution    execution.Repository
	executionLog executionlog.Repository
	pushSub      pushsubscription.Repository
	close        func()
}

func newRepositories(ctx context.Context, env *config.StorageEnv) (*repositories, error) {
	switch env.Type {
	case "postgres":
		if env.PostgresMigrate {
			if err := migrations.Up(env.PostgresURL); err != nil {
				return nil, err
			}
		}
		pool, err := pgxpool.New(ctx, env.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping postgres: %w", err)
		}
		slog.Info("using postgres storage")
		return &repositories{
			task:         taskrepo.NewPostgresRepository(pool),
			execution:    execrepo.NewPostgresRepository(pool),
			executionLog: execlogrepo.NewPostgresRepository(pool),
			pushSub:      pushsubrepo.NewPostgresRepository(pool),
			close:        pool.Close,
		}, nil
	case "s3":
		store, err := storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 storage: %w", err)
		}
		slog.Info("using s3 storage", "bucket", env.S3Bucket, "prefix", env.S3Prefix)
		return yamlRepositories(store), nil
	case "local", "":
		store, err := storage.NewLocalStorage(env.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create local storage: %w", err)
		}
		slog.Info("using local storage", "base_dir", env.BaseDir)
		return yamlRepositories(store), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", env.Type)
	}
}

func yamlRepositories(store storage.Storage) *repositories {
	return &repositories{
		task:         taskrepo.NewYAMLRepository(store),
		execution:    execrepo.NewYAMLRepository(store),
		executionLog: execlogrepo.NewYAMLRepository(store),
		pushSub:      pushsubrepo.NewYAMLRepository(store),
		close:        func() {},
	}
}
