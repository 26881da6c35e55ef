package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentforgev1 "github.com/kazz187/agentforge/api/agentforge/v1"
	"github.com/kazz187/agentforge/api/agentforge/v1/agentforgev1connect"
	"github.com/kazz187/agentforge/internal/client"
)

type recordingService struct {
	apiKey string
	userID string
}

func (s *recordingService) record(h http.Header) {
	s.apiKey = h.Get("X-API-Key")
	s.userID = h.Get("X-User-ID")
}

func (s *recordingService) SubmitTask(_ context.Context, req *connect.Request[agentforgev1.SubmitTaskRequest]) (*connect.Response[agentforgev1.SubmitTaskResponse], error) {
	s.record(req.Header())
	return connect.NewResponse(&agentforgev1.SubmitTaskResponse{
		Execution: &agentforgev1.Execution{ID: "exec-1", TaskID: req.Msg.TaskID, Status: "pending"},
	}), nil
}

func (s *recordingService) CancelExecution(_ context.Context, req *connect.Request[agentforgev1.CancelExecutionRequest]) (*connect.Response[agentforgev1.CancelExecutionResponse], error) {
	s.record(req.Header())
	return nil, connect.NewError(connect.CodeFailedPrecondition, errors.New("execution is not active"))
}

func (s *recordingService) GetExecution(_ context.Context, req *connect.Request[agentforgev1.GetExecutionRequest]) (*connect.Response[agentforgev1.GetExecutionResponse], error) {
	s.record(req.Header())
	return connect.NewResponse(&agentforgev1.GetExecutionResponse{
		Execution: &agentforgev1.Execution{ID: req.Msg.ExecutionID, Status: "running"},
	}), nil
}

func (s *recordingService) ListExecutionLogs(_ context.Context, req *connect.Request[agentforgev1.ListExecutionLogsRequest]) (*connect.Response[agentforgev1.ListExecutionLogsResponse], error) {
	s.record(req.Header())
	return connect.NewResponse(&agentforgev1.ListExecutionLogsResponse{
		Logs:  []*agentforgev1.ExecutionLog{{ID: "log-1", ExecutionID: req.Msg.ExecutionID, Type: "info", Message: "Execution submitted"}},
		Total: 1,
	}), nil
}

func (s *recordingService) ListExecutions(_ context.Context, req *connect.Request[agentforgev1.ListExecutionsRequest]) (*connect.Response[agentforgev1.ListExecutionsResponse], error) {
	s.record(req.Header())
	return connect.NewResponse(&agentforgev1.ListExecutionsResponse{
		Executions: []*agentforgev1.Execution{{ID: "exec-2", TaskID: req.Msg.TaskID}, {ID: "exec-1", TaskID: req.Msg.TaskID}},
		Total:      2,
	}), nil
}

func newTestClient(t *testing.T) (*client.ExecutionClient, *recordingService) {
	t.Helper()
	svc := &recordingService{}
	mux := http.NewServeMux()
	mux.Handle(agentforgev1connect.NewExecutionServiceHandler(svc))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return client.NewExecutionClient(client.Config{
		BaseURL:    srv.URL,
		APIKey:     "secret",
		UserID:     "alice",
		HTTPClient: srv.Client(),
	}), svc
}

func TestExecutionClient_SendsCredentials(t *testing.T) {
	c, svc := newTestClient(t)

	exec, err := c.SubmitTask(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", exec.ID)
	assert.Equal(t, int64(7), exec.TaskID)
	assert.Equal(t, "secret", svc.apiKey)
	assert.Equal(t, "alice", svc.userID)
}

func TestExecutionClient_Reads(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	exec, err := c.GetExecution(ctx, "exec-9")
	require.NoError(t, err)
	assert.Equal(t, "running", exec.Status)

	logs, total, err := c.ListExecutionLogs(ctx, "exec-9", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), total)
	require.Len(t, logs, 1)
	assert.Equal(t, "exec-9", logs[0].ExecutionID)

	execs, total, err := c.ListExecutions(ctx, 3, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), total)
	assert.Equal(t, "exec-2", execs[0].ID)
}

func TestExecutionClient_ErrorCode(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.CancelExecution(context.Background(), "exec-1")
	require.Error(t, err)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
}
