package client

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"

	agentforgev1 "github.com/kazz187/agentforge/api/agentforge/v1"
	"github.com/kazz187/agentforge/api/agentforge/v1/agentforgev1connect"
	"github.com/kazz187/agentforge/internal/identity"
)

const apiKeyHeader = "X-API-Key"

type Config struct {
	BaseURL    string
	APIKey     string
	UserID     string
	HTTPClient connect.HTTPClient
}

// ExecutionClient provides client operations for executions
type ExecutionClient struct {
	client agentforgev1connect.ExecutionServiceClient
	userID string
}

func NewExecutionClient(cfg Config) *ExecutionClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	client := agentforgev1connect.NewExecutionServiceClient(
		httpClient,
		cfg.BaseURL,
		connect.WithInterceptors(newAPIKeyInterceptor(cfg.APIKey), identity.NewInterceptor()),
	)
	return &ExecutionClient{
		client: client,
		userID: cfg.UserID,
	}
}

func (c *ExecutionClient) ctx(ctx context.Context) context.Context {
	if c.userID == "" {
		return ctx
	}
	return identity.WithUserID(ctx, c.userID)
}

// SubmitTask queues a new execution of the task
func (c *ExecutionClient) SubmitTask(ctx context.Context, taskID int64) (*agentforgev1.Execution, error) {
	resp, err := c.client.SubmitTask(c.ctx(ctx), connect.NewRequest(&agentforgev1.SubmitTaskRequest{
		TaskID: taskID,
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to submit task: %w", err)
	}
	return resp.Msg.Execution, nil
}

// CancelExecution cancels a queued or running execution
func (c *ExecutionClient) CancelExecution(ctx context.Context, executionID string) (*agentforgev1.Execution, error) {
	resp, err := c.client.CancelExecution(c.ctx(ctx), connect.NewRequest(&agentforgev1.CancelExecutionRequest{
		ExecutionID: executionID,
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to cancel execution: %w", err)
	}
	return resp.Msg.Execution, nil
}

// GetExecution gets a specific execution
func (c *ExecutionClient) GetExecution(ctx context.Context, executionID string) (*agentforgev1.Execution, error) {
	resp, err := c.client.GetExecution(c.ctx(ctx), connect.NewRequest(&agentforgev1.GetExecutionRequest{
		ExecutionID: executionID,
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return resp.Msg.Execution, nil
}

// ListExecutionLogs lists the logs of an execution in creation order
func (c *ExecutionClient) ListExecutionLogs(ctx context.Context, executionID string, limit, offset int32) ([]*agentforgev1.ExecutionLog, int32, error) {
	resp, err := c.client.ListExecutionLogs(c.ctx(ctx), connect.NewRequest(&agentforgev1.ListExecutionLogsRequest{
		ExecutionID: executionID,
		Limit:       limit,
		Offset:      offset,
	}))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list execution logs: %w", err)
	}
	return resp.Msg.Logs, resp.Msg.Total, nil
}

// ListExecutions lists the executions of a task, newest first
func (c *ExecutionClient) ListExecutions(ctx context.Context, taskID int64, limit, offset int32) ([]*agentforgev1.Execution, int32, error) {
	resp, err := c.client.ListExecutions(c.ctx(ctx), connect.NewRequest(&agentforgev1.ListExecutionsRequest{
		TaskID: taskID,
		Limit:  limit,
		Offset: offset,
	}))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list executions: %w", err)
	}
	return resp.Msg.Executions, resp.Msg.Total, nil
}

type apiKeyInterceptor struct {
	key string
}

func newAPIKeyInterceptor(key string) connect.Interceptor {
	return &apiKeyInterceptor{key: key}
}

func (i *apiKeyInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient && i.key != "" {
			req.Header().Set(apiKeyHeader, i.key)
		}
		return next(ctx, req)
	}
}

func (i *apiKeyInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		if i.key != "" {
			conn.RequestHeader().Set(apiKeyHeader, i.key)
		}
		return conn
	}
}

func (i *apiKeyInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
