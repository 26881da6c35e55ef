package execution_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentforgev1 "github.com/kazz187/agentforge/api/agentforge/v1"
	"github.com/kazz187/agentforge/api/agentforge/v1/agentforgev1connect"
	"github.com/kazz187/agentforge/internal/execution"
	"github.com/kazz187/agentforge/internal/executionlog"
	"github.com/kazz187/agentforge/internal/identity"
	"github.com/kazz187/agentforge/pkg/cerr"
)

type fakeService struct {
	userID string
	err    error
	exec   *execution.Execution
}

func (f *fakeService) Submit(_ context.Context, taskID int64, userID string) (*execution.Execution, error) {
	f.userID = userID
	if f.err != nil {
		return nil, f.err
	}
	e := f.exec.Clone()
	e.TaskID = taskID
	return e, nil
}

func (f *fakeService) Cancel(_ context.Context, _, userID string) (*execution.Execution, error) {
	f.userID = userID
	if f.err != nil {
		return nil, f.err
	}
	e := f.exec.Clone()
	e.Status = execution.StatusCancelled
	return e, nil
}

func (f *fakeService) GetExecution(_ context.Context, _, userID string) (*execution.Execution, error) {
	f.userID = userID
	return f.exec, f.err
}

func (f *fakeService) ListLogs(_ context.Context, id, userID string, limit, offset int) ([]*executionlog.Entry, int, error) {
	f.userID = userID
	return []*executionlog.Entry{
		{ID: "l2", ExecutionID: id, Type: executionlog.TypeProgress, Message: "Phase analysis started"},
		{ID: "l1", ExecutionID: id, Type: executionlog.TypeInfo, Message: "Execution submitted"},
	}, 7, f.err
}

func (f *fakeService) ListExecutions(_ context.Context, _ int64, userID string, _, _ int) ([]*execution.Execution, int, error) {
	f.userID = userID
	return []*execution.Execution{f.exec}, 1, f.err
}

func newClient(t *testing.T, svc execution.Service) agentforgev1connect.ExecutionServiceClient {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle(agentforgev1connect.NewExecutionServiceHandler(
		execution.NewServer(svc),
		connect.WithInterceptors(identity.NewInterceptor(), cerr.NewConvertConnectErrorInterceptor()),
	))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return agentforgev1connect.NewExecutionServiceClient(srv.Client(), srv.URL,
		connect.WithInterceptors(identity.NewInterceptor()))
}

func TestServer_SubmitTask(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	svc := &fakeService{exec: &execution.Execution{ID: "e1", Status: execution.StatusPending, CreatedAt: now}}
	client := newClient(t, svc)
	ctx := identity.WithUserID(context.Background(), "user-1")

	resp, err := client.SubmitTask(ctx, connect.NewRequest(&agentforgev1.SubmitTaskRequest{TaskID: 42}))
	require.NoError(t, err)
	assert.Equal(t, "user-1", svc.userID)
	assert.Equal(t, "e1", resp.Msg.Execution.ID)
	assert.Equal(t, int64(42), resp.Msg.Execution.TaskID)
	assert.Equal(t, "pending", resp.Msg.Execution.Status)
	assert.True(t, now.Equal(resp.Msg.Execution.CreatedAt))
}

func TestServer_RequiresUser(t *testing.T) {
	client := newClient(t, &fakeService{exec: &execution.Execution{ID: "e1"}})

	_, err := client.GetExecution(context.Background(), connect.NewRequest(&agentforgev1.GetExecutionRequest{ExecutionID: "e1"}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestServer_ErrorCodes(t *testing.T) {
	tests := []struct {
		code cerr.Code
		want connect.Code
	}{
		{cerr.AlreadyExists, connect.CodeAlreadyExists},
		{cerr.NotFound, connect.CodeNotFound},
		{cerr.PermissionDenied, connect.CodePermissionDenied},
		{cerr.FailedPrecondition, connect.CodeFailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			svc := &fakeService{err: cerr.NewError(tt.code, "nope", nil)}
			client := newClient(t, svc)
			ctx := identity.WithUserID(context.Background(), "user-1")

			_, err := client.CancelExecution(ctx, connect.NewRequest(&agentforgev1.CancelExecutionRequest{ExecutionID: "e1"}))
			require.Error(t, err)
			assert.Equal(t, tt.want, connect.CodeOf(err))
		})
	}
}

func TestServer_ListExecutionLogs(t *testing.T) {
	svc := &fakeService{exec: &execution.Execution{ID: "e1"}}
	client := newClient(t, svc)
	ctx := identity.WithUserID(context.Background(), "user-1")

	resp, err := client.ListExecutionLogs(ctx, connect.NewRequest(&agentforgev1.ListExecutionLogsRequest{ExecutionID: "e1", Limit: 2}))
	require.NoError(t, err)
	assert.Equal(t, int32(7), resp.Msg.Total)
	require.Len(t, resp.Msg.Logs, 2)
	assert.Equal(t, "progress", resp.Msg.Logs[0].Type)
	assert.Equal(t, "Execution submitted", resp.Msg.Logs[1].Message)

	history, err := client.ListExecutions(ctx, connect.NewRequest(&agentforgev1.ListExecutionsRequest{TaskID: 1}))
	require.NoError(t, err)
	assert.Equal(t, int32(1), history.Msg.Total)
	require.Len(t, history.Msg.Executions, 1)
	assert.Equal(t, "e1", history.Msg.Executions[0].ID)
}
