package repositoryimpl

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kazz187/agentforge/internal/executionlog"
	"github.com/kazz187/agentforge/pkg/cerr"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Append(ctx context.Context, e *executionlog.Entry) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal log metadata: %w", err))
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO execution_logs (id, execution_id, type, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.ExecutionID, string(e.Type), e.Message, metadata, e.CreatedAt)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to insert execution log: %w", err))
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, executionID string, limit, offset int) ([]*executionlog.Entry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM execution_logs WHERE execution_id = $1`, executionID).Scan(&total); err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to count execution logs: %w", err))
	}
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, execution_id, type, message, metadata, created_at
		FROM execution_logs
		WHERE execution_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, executionID, lim, offset)
	if err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to list execution logs: %w", err))
	}
	defer rows.Close()

	var out []*executionlog.Entry
	for rows.Next() {
		var e executionlog.Entry
		var typ string
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.ExecutionID, &typ, &e.Message, &metadata, &e.CreatedAt); err != nil {
			return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to scan execution log: %w", err))
		}
		e.Type = executionlog.Type(typ)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal log metadata: %w", err))
			}
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to list execution logs: %w", err))
	}
	return out, total, nil
}
