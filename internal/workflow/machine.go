// Package workflow drives one execution through its phases: prepare a
// branch, analyse the task, generate an implementation, commit it and watch
// CI. Every step is logged and pushed to the user's live connections.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/agentforge/internal/execution"
	"github.com/kazz187/agentforge/internal/executionlog"
	"github.com/kazz187/agentforge/internal/hub"
	"github.com/kazz187/agentforge/internal/task"
	"github.com/kazz187/agentforge/pkg/cerr"
	"github.com/kazz187/agentforge/pkg/githost"
)

type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type VersionControl interface {
	DefaultBranch(ctx context.Context) (string, error)
	CreateBranch(ctx context.Context, name, base string) error
	CreateCommit(ctx context.Context, branch, message string, files []githost.FileChange) (*githost.Commit, error)
}

type CIStatusProvider interface {
	GetCommitStatus(ctx context.Context, ref string) (*githost.CommitStatus, error)
}

type Notifier interface {
	Publish(userID string, ev hub.Event)
}

type Config struct {
	BaseBranch       string // empty: the repository default branch
	CIPollInterval   time.Duration
	CIMaxAttempts    int
	ExecutionTimeout time.Duration
}

const (
	defaultCIPollInterval = 10 * time.Second
	defaultCIMaxAttempts  = 20
)

// errStopped reports that the execution was cancelled or its record moved
// on without us. The machine returns without further writes.
var errStopped = errors.New("execution stopped")

type Machine struct {
	cfg      Config
	execRepo execution.Repository
	logRepo  executionlog.Repository
	taskRepo task.Repository
	textGen  TextGenerator
	vcs      VersionControl
	ci       CIStatusProvider
	notifier Notifier
	now      func() time.Time
}

func NewMachine(
	cfg Config,
	execRepo execution.Repository,
	logRepo executionlog.Repository,
	taskRepo task.Repository,
	textGen TextGenerator,
	vcs VersionControl,
	ci CIStatusProvider,
	notifier Notifier,
) *Machine {
	if cfg.CIPollInterval <= 0 {
		cfg.CIPollInterval = defaultCIPollInterval
	}
	if cfg.CIMaxAttempts <= 0 {
		cfg.CIMaxAttempts = defaultCIMaxAttempts
	}
	return &Machine{
		cfg:      cfg,
		execRepo: execRepo,
		logRepo:  logRepo,
		taskRepo: taskRepo,
		textGen:  textGen,
		vcs:      vcs,
		ci:       ci,
		notifier: notifier,
		now:      time.Now,
	}
}

// run is the mutable state of one execution while the machine drives it.
type run struct {
	exec     *execution.Execution
	task     *task.Task
	stop     <-chan struct{}
	analysis string
	files    []githost.FileChange
}

// Run drives a pending execution to a terminal state. Failures inside the
// workflow are recorded by Run itself; a returned error means the failure
// could not be recorded and the caller should resolve it with Fail.
func (m *Machine) Run(ctx context.Context, executionID string, stop <-chan struct{}) error {
	exec, err := m.execRepo.Get(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status != execution.StatusPending {
		slog.InfoContext(ctx, "execution is no longer pending, skipping", "execution_id", exec.ID, "status", exec.Status)
		return nil
	}
	t, err := m.taskRepo.Get(ctx, exec.TaskID)
	if err != nil {
		return fmt.Errorf("load task %d: %w", exec.TaskID, err)
	}

	r := &run{exec: exec, task: t, stop: stop}
	if err := m.start(ctx, r); err != nil {
		if cerr.IsCode(err, cerr.Aborted) {
			return nil
		}
		return err
	}

	err = m.runPhases(ctx, r)
	if err == nil {
		m.complete(ctx, r)
		return nil
	}
	if errors.Is(err, errStopped) {
		slog.InfoContext(ctx, "execution stopped", "execution_id", exec.ID)
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("execution timed out after %s", m.cfg.ExecutionTimeout)
	}
	m.fail(ctx, r.exec, err)
	return nil
}

// Fail resolves a non-terminal execution to failed. It is a no-op for
// executions that already reached a terminal state.
func (m *Machine) Fail(ctx context.Context, executionID string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	exec, err := m.execRepo.Get(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.IsTerminal() {
		return nil
	}
	m.fail(ctx, exec, cause)
	return nil
}

func (m *Machine) start(ctx context.Context, r *run) error {
	now := m.now()
	next := r.exec.Clone()
	next.Status = execution.StatusRunning
	next.StartedAt = &now
	next.UpdatedAt = now
	if err := m.execRepo.Update(ctx, next, execution.StatusPending); err != nil {
		return err
	}
	r.exec = next

	slog.InfoContext(ctx, "execution started", "execution_id", next.ID, "task_id", next.TaskID)
	m.publish(next, hub.EventStarted, map[string]any{"status": next.Status, "startedAt": now})
	m.publishStatus(next, nil)
	m.log(ctx, next, executionlog.TypeInfo, fmt.Sprintf("Execution started for task #%d", r.task.ID), nil)
	return nil
}

func (m *Machine) complete(ctx context.Context, r *run) {
	ctx = context.WithoutCancel(ctx)
	now := m.now()
	next := r.exec.Clone()
	next.Status = execution.StatusCompleted
	next.CompletedAt = &now
	next.UpdatedAt = now
	if err := m.execRepo.Update(ctx, next, execution.StatusRunning); err != nil {
		if cerr.IsCode(err, cerr.Aborted) {
			slog.InfoContext(ctx, "completion suppressed, execution already terminal", "execution_id", next.ID)
			return
		}
		m.fail(ctx, r.exec, err)
		return
	}

	m.log(ctx, next, executionlog.TypeInfo, "Execution completed", nil)
	m.setTaskStatus(ctx, next.TaskID, task.StatusCompleted)
	m.publish(next, hub.EventCompleted, map[string]any{
		"progress": progressCompleted,
		"result": map[string]any{
			"branch":       next.BranchName,
			"commitSha":    next.CommitSHA,
			"commitUrl":    next.CommitURL,
			"ciStatus":     next.CIStatus,
			"ciUrl":        next.CIURL,
			"filesChanged": next.FilesChanged,
		},
	})
	m.publishStatus(next, nil)
	slog.InfoContext(ctx, "execution completed", "execution_id", next.ID, "task_id", next.TaskID, "ci_status", next.CIStatus)
}

// fail writes the error log, then the failed status, then parks the task.
// It does nothing once the execution has moved on, e.g. a cancel that landed
// while an adapter call was failing.
func (m *Machine) fail(ctx context.Context, exec *execution.Execution, cause error) {
	ctx = context.WithoutCancel(ctx)
	if cur, err := m.execRepo.Get(ctx, exec.ID); err == nil && cur.Status != exec.Status {
		slog.InfoContext(ctx, "failure suppressed, execution already resolved",
			"execution_id", exec.ID, "status", cur.Status, "error", cause)
		return
	}
	msg := cause.Error()
	slog.ErrorContext(ctx, "execution failed", "execution_id", exec.ID, "task_id", exec.TaskID, "error", cause)

	m.log(ctx, exec, executionlog.TypeError, msg, nil)

	now := m.now()
	next := exec.Clone()
	next.Status = execution.StatusFailed
	next.Error = msg
	next.CompletedAt = &now
	next.UpdatedAt = now
	if err := m.execRepo.Update(ctx, next, exec.Status); err != nil {
		slog.WarnContext(ctx, "failed to record execution failure", "execution_id", exec.ID, "error", err)
		return
	}

	m.setTaskStatus(ctx, next.TaskID, task.StatusOnHold)
	m.publish(next, hub.EventError, map[string]any{"error": msg})
	m.publishStatus(next, nil)
}

// save persists the running execution. A lost compare-and-set means the
// execution was cancelled meanwhile.
func (m *Machine) save(ctx context.Context, r *run) error {
	r.exec.UpdatedAt = m.now()
	if err := m.execRepo.Update(ctx, r.exec, execution.StatusRunning); err != nil {
		if cerr.IsCode(err, cerr.Aborted) {
			return errStopped
		}
		return err
	}
	return nil
}

func (m *Machine) checkStop(ctx context.Context, r *run) error {
	select {
	case <-r.stop:
		return errStopped
	default:
	}
	return ctx.Err()
}

// sleep waits for d unless the execution is stopped or ctx ends first. A
// stop wins over a cancelled ctx.
func (m *Machine) sleep(ctx context.Context, r *run, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-r.stop:
	case <-ctx.Done():
	case <-timer.C:
		return nil
	}
	return m.checkStop(ctx, r)
}

func (m *Machine) setTaskStatus(ctx context.Context, taskID int64, status task.Status) {
	t, err := m.taskRepo.Get(ctx, taskID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load task for status update", "task_id", taskID, "error", err)
		return
	}
	t.Status = status
	t.UpdatedAt = m.now()
	if err := m.taskRepo.Update(ctx, t); err != nil {
		slog.ErrorContext(ctx, "failed to update task status", "task_id", taskID, "status", status, "error", err)
	}
}

// log appends an entry to the execution log and pushes it live.
func (m *Machine) log(ctx context.Context, exec *execution.Execution, typ executionlog.Type, msg string, metadata map[string]any) {
	entry := &executionlog.Entry{
		ID:          ulid.Make().String(),
		ExecutionID: exec.ID,
		Type:        typ,
		Message:     msg,
		Metadata:    metadata,
		CreatedAt:   m.now(),
	}
	if err := m.logRepo.Append(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "failed to append execution log", "execution_id", exec.ID, "type", typ, "error", err)
	}
	data := map[string]any{"type": typ, "message": msg}
	if metadata != nil {
		data["metadata"] = metadata
	}
	m.publish(exec, hub.EventLog, data)
}

func (m *Machine) publish(exec *execution.Execution, typ hub.EventType, data map[string]any) {
	m.notifier.Publish(exec.UserID, hub.Event{
		Type:        typ,
		ExecutionID: exec.ID,
		TaskID:      exec.TaskID,
		Data:        data,
		Timestamp:   m.now(),
	})
}

func (m *Machine) publishStatus(exec *execution.Execution, extra map[string]any) {
	data := map[string]any{"status": exec.Status}
	for k, v := range extra {
		data[k] = v
	}
	m.publish(exec, hub.EventStatusChange, data)
}
