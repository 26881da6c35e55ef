// Package scheduler accepts execution requests, keeps at most one active
// execution per task and dispatches queued executions to the workflow
// machine in FIFO order under a concurrency cap.
package scheduler

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc"

	"github.com/kazz187/agentforge/internal/execution"
	"github.com/kazz187/agentforge/internal/executionlog"
	"github.com/kazz187/agentforge/internal/hub"
	"github.com/kazz187/agentforge/internal/task"
	"github.com/kazz187/agentforge/pkg/cerr"
	"github.com/kazz187/agentforge/pkg/panicerr"
)

// Runner drives a single execution. Run is expected to resolve the execution
// itself; Fail is the fallback when Run errors or panics.
type Runner interface {
	Run(ctx context.Context, executionID string, stop <-chan struct{}) error
	Fail(ctx context.Context, executionID string, cause error) error
}

type Notifier interface {
	Publish(userID string, ev hub.Event)
}

type Metrics interface {
	SetQueueDepth(n int)
	SetActiveExecutions(n int)
	ExecutionFinished(status string, d time.Duration)
}

type Config struct {
	MaxConcurrentTasks int
	ExecutionTimeout   time.Duration
}

const (
	defaultMaxConcurrentTasks = 1
	defaultExecutionTimeout   = 30 * time.Minute

	defaultListLimit = 50
	maxListLimit     = 500
)

var (
	errInterruptedByRestart = errors.New("execution interrupted by server restart")
	errShuttingDown         = errors.New("scheduler shutting down")
	errNoTerminalState      = errors.New("execution ended without reaching a terminal state")
)

type item struct {
	executionID string
	taskID      int64
	userID      string
}

// unit is a dispatched execution.
type unit struct {
	item
	stop     chan struct{}
	stopOnce sync.Once
	reason   error
}

// interrupt closes the stop channel once. It must be called with the
// scheduler mutex held.
func (u *unit) interrupt(reason error) {
	u.stopOnce.Do(func() {
		u.reason = reason
		close(u.stop)
	})
}

type Scheduler struct {
	cfg      Config
	taskRepo task.Repository
	execRepo execution.Repository
	logRepo  executionlog.Repository
	runner   Runner
	notifier Notifier
	metrics  Metrics
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     *conc.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
	queue   *list.List
	queued  map[string]*list.Element
	byTask  map[int64]string
	active  map[string]*unit
}

func New(
	cfg Config,
	taskRepo task.Repository,
	execRepo execution.Repository,
	logRepo executionlog.Repository,
	runner Runner,
	notifier Notifier,
	metrics Metrics,
) *Scheduler {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = defaultMaxConcurrentTasks
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = defaultExecutionTimeout
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:      cfg,
		taskRepo: taskRepo,
		execRepo: execRepo,
		logRepo:  logRepo,
		runner:   runner,
		notifier: notifier,
		metrics:  metrics,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		wg:       conc.NewWaitGroup(),
		queue:    list.New(),
		queued:   make(map[string]*list.Element),
		byTask:   make(map[int64]string),
		active:   make(map[string]*unit),
	}
}

// Start resolves executions a previous process left pending or running and
// then begins accepting submissions.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.mu.Unlock()

	orphans, err := s.execRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list orphaned executions: %w", err)
	}
	for _, e := range orphans {
		slog.WarnContext(ctx, "recovering orphaned execution", "execution_id", e.ID, "task_id", e.TaskID, "status", e.Status)
		if err := s.runner.Fail(ctx, e.ID, errInterruptedByRestart); err != nil {
			return fmt.Errorf("recover execution %s: %w", e.ID, err)
		}
		s.metrics.ExecutionFinished(string(execution.StatusFailed), 0)
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	slog.InfoContext(ctx, "scheduler started",
		"max_concurrent_tasks", s.cfg.MaxConcurrentTasks,
		"execution_timeout", s.cfg.ExecutionTimeout,
		"recovered", len(orphans))
	return nil
}

// Shutdown stops accepting submissions, cancels queued executions and waits
// for running ones until ctx ends. Executions still running then are stopped
// and marked failed.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	var queued []item
	for el := s.queue.Front(); el != nil; el = el.Next() {
		it := el.Value.(item)
		queued = append(queued, it)
		delete(s.queued, it.executionID)
		delete(s.byTask, it.taskID)
	}
	s.queue.Init()
	s.updateGaugesLocked()
	s.mu.Unlock()

	for _, it := range queued {
		if err := s.cancelPending(ctx, it, errShuttingDown.Error()); err != nil {
			slog.WarnContext(ctx, "failed to cancel queued execution", "execution_id", it.executionID, "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
	}

	s.mu.Lock()
	for _, u := range s.active {
		u.interrupt(errShuttingDown)
	}
	s.mu.Unlock()
	s.cancel()
	<-done
	slog.WarnContext(ctx, "scheduler stopped before running executions finished")
	return ctx.Err()
}

func (s *Scheduler) Submit(ctx context.Context, taskID int64, userID string) (*execution.Execution, error) {
	if taskID <= 0 {
		return nil, cerr.NewError(cerr.InvalidArgument, "invalid task id", nil).AddDetailMessage("taskId", "must be positive")
	}
	if userID == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "user id is required", nil).AddDetailMessage("userId", "must not be empty")
	}
	t, err := s.ownedTask(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if err := s.acceptingLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if id, ok := s.byTask[taskID]; ok {
		s.mu.Unlock()
		return nil, conflict(taskID, id)
	}
	s.byTask[taskID] = ""
	s.mu.Unlock()

	exec, err := s.create(ctx, t)

	s.mu.Lock()
	if err != nil {
		delete(s.byTask, taskID)
		s.mu.Unlock()
		return nil, err
	}
	it := item{executionID: exec.ID, taskID: taskID, userID: userID}
	if s.closed {
		delete(s.byTask, taskID)
		s.mu.Unlock()
		if err := s.cancelPending(ctx, it, errShuttingDown.Error()); err != nil {
			slog.WarnContext(ctx, "failed to cancel execution submitted during shutdown", "execution_id", exec.ID, "error", err)
		}
		return nil, cerr.NewError(cerr.Unavailable, "scheduler is shutting down", nil)
	}
	s.byTask[taskID] = exec.ID
	s.queued[exec.ID] = s.queue.PushBack(it)
	s.updateGaugesLocked()
	s.mu.Unlock()

	slog.InfoContext(ctx, "execution submitted", "execution_id", exec.ID, "task_id", taskID)
	s.processQueue()
	return exec, nil
}

func (s *Scheduler) create(ctx context.Context, t *task.Task) (*execution.Execution, error) {
	switch active, err := s.execRepo.FindActiveByTask(ctx, t.ID); {
	case err == nil:
		return nil, conflict(t.ID, active.ID)
	case !cerr.IsCode(err, cerr.NotFound):
		return nil, err
	}

	now := s.now()
	exec := &execution.Execution{
		ID:        ulid.Make().String(),
		TaskID:    t.ID,
		UserID:    t.UserID,
		Status:    execution.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.execRepo.Create(ctx, exec); err != nil {
		return nil, err
	}
	s.log(ctx, exec, executionlog.TypeInfo, "Execution submitted")
	return exec, nil
}

func (s *Scheduler) Cancel(ctx context.Context, executionID, userID string) (*execution.Execution, error) {
	exec, err := s.ownedExecution(ctx, executionID, userID)
	if err != nil {
		return nil, err
	}
	if !exec.Status.IsActive() {
		return nil, notCancellable(exec)
	}

	s.mu.Lock()
	el, queued := s.queued[executionID]
	if queued {
		s.queue.Remove(el)
		delete(s.queued, executionID)
		s.updateGaugesLocked()
	}
	s.mu.Unlock()

	next, err := s.markCancelled(ctx, exec)
	if err != nil {
		if queued {
			s.mu.Lock()
			s.queued[executionID] = s.queue.PushFront(item{executionID: exec.ID, taskID: exec.TaskID, userID: exec.UserID})
			s.updateGaugesLocked()
			s.mu.Unlock()
		}
		return nil, err
	}

	s.mu.Lock()
	if queued {
		s.releaseTaskLocked(next.TaskID, next.ID)
	} else if u, ok := s.active[executionID]; ok {
		u.interrupt(context.Canceled)
	}
	s.mu.Unlock()

	if queued {
		s.metrics.ExecutionFinished(string(execution.StatusCancelled), 0)
	}
	slog.InfoContext(ctx, "execution cancelled", "execution_id", next.ID, "task_id", next.TaskID)
	s.log(ctx, next, executionlog.TypeInfo, "Execution cancelled by user")
	s.publishStatus(next)
	return next, nil
}

// markCancelled moves an active execution to cancelled, retrying when the
// workflow changes the status underneath.
func (s *Scheduler) markCancelled(ctx context.Context, exec *execution.Execution) (*execution.Execution, error) {
	for {
		now := s.now()
		next := exec.Clone()
		next.Status = execution.StatusCancelled
		next.CompletedAt = &now
		next.UpdatedAt = now
		err := s.execRepo.Update(ctx, next, exec.Status)
		if err == nil {
			return next, nil
		}
		if !cerr.IsCode(err, cerr.Aborted) {
			return nil, err
		}
		if exec, err = s.execRepo.Get(ctx, exec.ID); err != nil {
			return nil, err
		}
		if !exec.Status.IsActive() {
			return nil, notCancellable(exec)
		}
	}
}

// cancelPending resolves a queued execution that will never be dispatched.
func (s *Scheduler) cancelPending(ctx context.Context, it item, msg string) error {
	exec, err := s.execRepo.Get(ctx, it.executionID)
	if err != nil {
		return err
	}
	if exec.Status != execution.StatusPending {
		return nil
	}
	s.log(ctx, exec, executionlog.TypeInfo, msg)
	next, err := s.markCancelled(ctx, exec)
	if err != nil {
		return err
	}
	s.metrics.ExecutionFinished(string(execution.StatusCancelled), 0)
	s.publishStatus(next)
	return nil
}

func (s *Scheduler) GetExecution(ctx context.Context, executionID, userID string) (*execution.Execution, error) {
	return s.ownedExecution(ctx, executionID, userID)
}

// ListLogs returns an execution's log, newest first.
func (s *Scheduler) ListLogs(ctx context.Context, executionID, userID string, limit, offset int) ([]*executionlog.Entry, int, error) {
	if _, err := s.ownedExecution(ctx, executionID, userID); err != nil {
		return nil, 0, err
	}
	limit, offset = page(limit, offset)
	return s.logRepo.List(ctx, executionID, limit, offset)
}

// ListExecutions returns a task's executions, newest first.
func (s *Scheduler) ListExecutions(ctx context.Context, taskID int64, userID string, limit, offset int) ([]*execution.Execution, int, error) {
	if _, err := s.ownedTask(ctx, taskID, userID); err != nil {
		return nil, 0, err
	}
	limit, offset = page(limit, offset)
	return s.execRepo.ListByTask(ctx, taskID, limit, offset)
}

func (s *Scheduler) processQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.queue.Len() > 0 && len(s.active) < s.cfg.MaxConcurrentTasks {
		it := s.queue.Remove(s.queue.Front()).(item)
		delete(s.queued, it.executionID)
		u := &unit{item: it, stop: make(chan struct{})}
		s.active[it.executionID] = u
		s.wg.Go(func() {
			s.execute(u)
		})
	}
	s.updateGaugesLocked()
}

func (s *Scheduler) execute(u *unit) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ExecutionTimeout)
	defer cancel()
	started := s.now()

	err := panicerr.Run(ctx, func(ctx context.Context) error {
		return s.runner.Run(ctx, u.executionID, u.stop)
	})
	if err != nil {
		slog.ErrorContext(ctx, "execution aborted unexpectedly", "execution_id", u.executionID, "error", err)
		s.fail(ctx, u.executionID, err)
	}
	s.finish(ctx, u, started)
}

// finish makes sure the execution is terminal, then frees its slot.
func (s *Scheduler) finish(ctx context.Context, u *unit, started time.Time) {
	ctx = context.WithoutCancel(ctx)
	exec, err := s.execRepo.Get(ctx, u.executionID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load finished execution", "execution_id", u.executionID, "error", err)
	} else if !exec.Status.IsTerminal() {
		s.mu.Lock()
		reason := u.reason
		s.mu.Unlock()
		if reason == nil || errors.Is(reason, context.Canceled) {
			reason = errNoTerminalState
		}
		s.fail(ctx, u.executionID, reason)
		if exec, err = s.execRepo.Get(ctx, u.executionID); err != nil {
			slog.ErrorContext(ctx, "failed to reload execution", "execution_id", u.executionID, "error", err)
		}
	}

	var status string
	if exec != nil {
		status = string(exec.Status)
	}
	s.metrics.ExecutionFinished(status, s.now().Sub(started))

	s.mu.Lock()
	delete(s.active, u.executionID)
	s.releaseTaskLocked(u.taskID, u.executionID)
	s.updateGaugesLocked()
	s.mu.Unlock()

	s.processQueue()
}

func (s *Scheduler) fail(ctx context.Context, executionID string, cause error) {
	if err := s.runner.Fail(context.WithoutCancel(ctx), executionID, cause); err != nil {
		slog.ErrorContext(ctx, "failed to mark execution failed", "execution_id", executionID, "error", err)
	}
}

func (s *Scheduler) acceptingLocked() error {
	switch {
	case s.closed:
		return cerr.NewError(cerr.Unavailable, "scheduler is shutting down", nil)
	case !s.started:
		return cerr.NewError(cerr.Unavailable, "scheduler is not running", nil)
	}
	return nil
}

func (s *Scheduler) releaseTaskLocked(taskID int64, executionID string) {
	if s.byTask[taskID] == executionID {
		delete(s.byTask, taskID)
	}
}

func (s *Scheduler) updateGaugesLocked() {
	s.metrics.SetQueueDepth(s.queue.Len())
	s.metrics.SetActiveExecutions(len(s.active))
}

func (s *Scheduler) ownedTask(ctx context.Context, taskID int64, userID string) (*task.Task, error) {
	t, err := s.taskRepo.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("task %d not found", taskID), nil)
	}
	return t, nil
}

func (s *Scheduler) ownedExecution(ctx context.Context, executionID, userID string) (*execution.Execution, error) {
	if executionID == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "execution id is required", nil).AddDetailMessage("executionId", "must not be empty")
	}
	exec, err := s.execRepo.Get(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.UserID != userID {
		return nil, cerr.NewError(cerr.PermissionDenied, "execution belongs to another user", nil)
	}
	return exec, nil
}

func (s *Scheduler) log(ctx context.Context, exec *execution.Execution, typ executionlog.Type, msg string) {
	entry := &executionlog.Entry{
		ID:          ulid.Make().String(),
		ExecutionID: exec.ID,
		Type:        typ,
		Message:     msg,
		CreatedAt:   s.now(),
	}
	if err := s.logRepo.Append(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "failed to append execution log", "execution_id", exec.ID, "error", err)
	}
	s.publish(exec, hub.EventLog, map[string]any{"type": typ, "message": msg})
}

func (s *Scheduler) publishStatus(exec *execution.Execution) {
	s.publish(exec, hub.EventStatusChange, map[string]any{"status": exec.Status})
}

func (s *Scheduler) publish(exec *execution.Execution, typ hub.EventType, data map[string]any) {
	s.notifier.Publish(exec.UserID, hub.Event{
		Type:        typ,
		ExecutionID: exec.ID,
		TaskID:      exec.TaskID,
		Data:        data,
		Timestamp:   s.now(),
	})
}

func conflict(taskID int64, executionID string) error {
	msg := fmt.Sprintf("task %d already has an active execution", taskID)
	if executionID != "" {
		msg = fmt.Sprintf("task %d already has an active execution %s", taskID, executionID)
	}
	return cerr.NewError(cerr.AlreadyExists, msg, nil)
}

func notCancellable(exec *execution.Execution) error {
	return cerr.NewError(cerr.FailedPrecondition,
		fmt.Sprintf("execution %s is %s and cannot be cancelled", exec.ID, exec.Status), nil)
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

type nopMetrics struct{}

func (nopMetrics) SetQueueDepth(int) {}

func (nopMetrics) SetActiveExecutions(int) {}

func (nopMetrics) ExecutionFinished(string, time.Duration) {}
