package execution

import (
	"context"

	"connectrpc.com/connect"

	agentforgev1 "github.com/kazz187/agentforge/api/agentforge/v1"
	"github.com/kazz187/agentforge/api/agentforge/v1/agentforgev1connect"
	"github.com/kazz187/agentforge/internal/executionlog"
	"github.com/kazz187/agentforge/internal/identity"
)

var _ agentforgev1connect.ExecutionServiceHandler = (*Server)(nil)

// Service is the engine behind the RPC surface.
type Service interface {
	Submit(ctx context.Context, taskID int64, userID string) (*Execution, error)
	Cancel(ctx context.Context, executionID, userID string) (*Execution, error)
	GetExecution(ctx context.Context, executionID, userID string) (*Execution, error)
	ListLogs(ctx context.Context, executionID, userID string, limit, offset int) ([]*executionlog.Entry, int, error)
	ListExecutions(ctx context.Context, taskID int64, userID string, limit, offset int) ([]*Execution, int, error)
}

type Server struct {
	svc Service
}

func NewServer(svc Service) *Server {
	return &Server{svc: svc}
}

func (s *Server) SubmitTask(ctx context.Context, req *connect.Request[agentforgev1.SubmitTaskRequest]) (*connect.Response[agentforgev1.SubmitTaskResponse], error) {
	userID, err := identity.UserID(ctx)
	if err != nil {
		return nil, err
	}
	e, err := s.svc.Submit(ctx, req.Msg.TaskID, userID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentforgev1.SubmitTaskResponse{Execution: toMessage(e)}), nil
}

func (s *Server) CancelExecution(ctx context.Context, req *connect.Request[agentforgev1.CancelExecutionRequest]) (*connect.Response[agentforgev1.CancelExecutionResponse], error) {
	userID, err := identity.UserID(ctx)
	if err != nil {
		return nil, err
	}
	e, err := s.svc.Cancel(ctx, req.Msg.ExecutionID, userID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentforgev1.CancelExecutionResponse{Execution: toMessage(e)}), nil
}

func (s *Server) GetExecution(ctx context.Context, req *connect.Request[agentforgev1.GetExecutionRequest]) (*connect.Response[agentforgev1.GetExecutionResponse], error) {
	userID, err := identity.UserID(ctx)
	if err != nil {
		return nil, err
	}
	e, err := s.svc.GetExecution(ctx, req.Msg.ExecutionID, userID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&agentforgev1.GetExecutionResponse{Execution: toMessage(e)}), nil
}

func (s *Server) ListExecutionLogs(ctx context.Context, req *connect.Request[agentforgev1.ListExecutionLogsRequest]) (*connect.Response[agentforgev1.ListExecutionLogsResponse], error) {
	userID, err := identity.UserID(ctx)
	if err != nil {
		return nil, err
	}
	entries, total, err := s.svc.ListLogs(ctx, req.Msg.ExecutionID, userID, int(req.Msg.Limit), int(req.Msg.Offset))
	if err != nil {
		return nil, err
	}
	logs := make([]*agentforgev1.ExecutionLog, 0, len(entries))
	for _, entry := range entries {
		logs = append(logs, &agentforgev1.ExecutionLog{
			ID:          entry.ID,
			ExecutionID: entry.ExecutionID,
			Type:        string(entry.Type),
			Message:     entry.Message,
			Metadata:    entry.Metadata,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return connect.NewResponse(&agentforgev1.ListExecutionLogsResponse{Logs: logs, Total: int32(total)}), nil
}

func (s *Server) ListExecutions(ctx context.Context, req *connect.Request[agentforgev1.ListExecutionsRequest]) (*connect.Response[agentforgev1.ListExecutionsResponse], error) {
	userID, err := identity.UserID(ctx)
	if err != nil {
		return nil, err
	}
	execs, total, err := s.svc.ListExecutions(ctx, req.Msg.TaskID, userID, int(req.Msg.Limit), int(req.Msg.Offset))
	if err != nil {
		return nil, err
	}
	msgs := make([]*agentforgev1.Execution, 0, len(execs))
	for _, e := range execs {
		msgs = append(msgs, toMessage(e))
	}
	return connect.NewResponse(&agentforgev1.ListExecutionsResponse{Executions: msgs, Total: int32(total)}), nil
}

func toMessage(e *Execution) *agentforgev1.Execution {
	return &agentforgev1.Execution{
		ID:           e.ID,
		TaskID:       e.TaskID,
		Status:       string(e.Status),
		BranchName:   e.BranchName,
		CommitSHA:    e.CommitSHA,
		CommitURL:    e.CommitURL,
		CIStatus:     string(e.CIStatus),
		CIURL:        e.CIURL,
		FilesChanged: int32(e.FilesChanged),
		Error:        e.Error,
		CreatedAt:    e.CreatedAt,
		StartedAt:    e.StartedAt,
		CompletedAt:  e.CompletedAt,
	}
}
