package repositoryimpl

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kazz187/agentforge/internal/execution"
	"github.com/kazz187/agentforge/pkg/cerr"
)

const executionColumns = `id, task_id, user_id, status, branch_name, commit_sha, commit_url, ci_status, ci_url,
	files_changed, error, created_at, started_at, completed_at, updated_at`

// uniqueViolation is raised by executions_one_active_per_task.
const uniqueViolation = "23505"

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func scanExecution(row pgx.Row) (*execution.Execution, error) {
	var e execution.Execution
	var status, ciStatus string
	err := row.Scan(&e.ID, &e.TaskID, &e.UserID, &status, &e.BranchName, &e.CommitSHA, &e.CommitURL, &ciStatus, &e.CIURL,
		&e.FilesChanged, &e.Error, &e.CreatedAt, &e.StartedAt, &e.CompletedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Status = execution.Status(status)
	e.CIStatus = execution.CIStatus(ciStatus)
	return &e, nil
}

func (r *PostgresRepository) Create(ctx context.Context, e *execution.Execution) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO executions (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		e.ID, e.TaskID, e.UserID, string(e.Status), e.BranchName, e.CommitSHA, e.CommitURL, string(e.CIStatus), e.CIURL,
		e.FilesChanged, e.Error, e.CreatedAt, e.StartedAt, e.CompletedAt, e.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return cerr.NewError(cerr.AlreadyExists, "an execution is already active for this task", err)
		}
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to insert execution: %w", err))
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*execution.Execution, error) {
	e, err := scanExecution(r.pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cerr.NewError(cerr.NotFound, "execution not found", err)
	}
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to select execution: %w", err))
	}
	return e, nil
}

func (r *PostgresRepository) Update(ctx context.Context, e *execution.Execution, expect execution.Status) error {
	if err := checkTransition(expect, e.Status); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE executions SET status = $3, branch_name = $4, commit_sha = $5, commit_url = $6, ci_status = $7,
			ci_url = $8, files_changed = $9, error = $10, started_at = $11, completed_at = $12, updated_at = $13
		WHERE id = $1 AND status = $2`,
		e.ID, string(expect), string(e.Status), e.BranchName, e.CommitSHA, e.CommitURL, string(e.CIStatus),
		e.CIURL, e.FilesChanged, e.Error, e.StartedAt, e.CompletedAt, e.UpdatedAt)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to update execution: %w", err))
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	current, err := r.Get(ctx, e.ID)
	if err != nil {
		return err
	}
	return cerr.NewError(cerr.Aborted, fmt.Sprintf("execution is %s, expected %s", current.Status, expect), nil)
}

func (r *PostgresRepository) FindActiveByTask(ctx context.Context, taskID int64) (*execution.Execution, error) {
	e, err := scanExecution(r.pool.QueryRow(ctx, `
		SELECT `+executionColumns+` FROM executions
		WHERE task_id = $1 AND status IN ('pending', 'running')
		LIMIT 1`, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cerr.NewError(cerr.NotFound, "no active execution", err)
	}
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to select execution: %w", err))
	}
	return e, nil
}

func (r *PostgresRepository) ListActive(ctx context.Context) ([]*execution.Execution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+executionColumns+` FROM executions
		WHERE status IN ('pending', 'running')
		ORDER BY id`)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to list executions: %w", err))
	}
	return collect(rows)
}

func (r *PostgresRepository) ListByTask(ctx context.Context, taskID int64, limit, offset int) ([]*execution.Execution, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM executions WHERE task_id = $1`, taskID).Scan(&total); err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to count executions: %w", err))
	}
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+executionColumns+` FROM executions
		WHERE task_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`, taskID, lim, offset)
	if err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to list executions: %w", err))
	}
	out, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func collect(rows pgx.Rows) ([]*execution.Execution, error) {
	defer rows.Close()
	var out []*execution.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to scan execution: %w", err))
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read executions: %w", err))
	}
	return out, nil
}
