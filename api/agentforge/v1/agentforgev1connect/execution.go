// Package agentforgev1connect wires the agentforge.v1 services to connect
// handlers and clients.
package agentforgev1connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	v1 "github.com/kazz187/agentforge/api/agentforge/v1"
	"github.com/kazz187/agentforge/pkg/rpcjson"
)

const ExecutionServiceName = "agentforge.v1.ExecutionService"

const (
	ExecutionServiceSubmitTaskProcedure        = "/agentforge.v1.ExecutionService/SubmitTask"
	ExecutionServiceCancelExecutionProcedure   = "/agentforge.v1.ExecutionService/CancelExecution"
	ExecutionServiceGetExecutionProcedure      = "/agentforge.v1.ExecutionService/GetExecution"
	ExecutionServiceListExecutionLogsProcedure = "/agentforge.v1.ExecutionService/ListExecutionLogs"
	ExecutionServiceListExecutionsProcedure    = "/agentforge.v1.ExecutionService/ListExecutions"
)

type ExecutionServiceHandler interface {
	SubmitTask(context.Context, *connect.Request[v1.SubmitTaskRequest]) (*connect.Response[v1.SubmitTaskResponse], error)
	CancelExecution(context.Context, *connect.Request[v1.CancelExecutionRequest]) (*connect.Response[v1.CancelExecutionResponse], error)
	GetExecution(context.Context, *connect.Request[v1.GetExecutionRequest]) (*connect.Response[v1.GetExecutionResponse], error)
	ListExecutionLogs(context.Context, *connect.Request[v1.ListExecutionLogsRequest]) (*connect.Response[v1.ListExecutionLogsResponse], error)
	ListExecutions(context.Context, *connect.Request[v1.ListExecutionsRequest]) (*connect.Response[v1.ListExecutionsResponse], error)
}

// NewExecutionServiceHandler returns the mount path and handler for svc.
func NewExecutionServiceHandler(svc ExecutionServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{rpcjson.WithCodec()}, opts...)
	handlers := map[string]http.Handler{
		ExecutionServiceSubmitTaskProcedure:        connect.NewUnaryHandler(ExecutionServiceSubmitTaskProcedure, svc.SubmitTask, opts...),
		ExecutionServiceCancelExecutionProcedure:   connect.NewUnaryHandler(ExecutionServiceCancelExecutionProcedure, svc.CancelExecution, opts...),
		ExecutionServiceGetExecutionProcedure:      connect.NewUnaryHandler(ExecutionServiceGetExecutionProcedure, svc.GetExecution, opts...),
		ExecutionServiceListExecutionLogsProcedure: connect.NewUnaryHandler(ExecutionServiceListExecutionLogsProcedure, svc.ListExecutionLogs, opts...),
		ExecutionServiceListExecutionsProcedure:    connect.NewUnaryHandler(ExecutionServiceListExecutionsProcedure, svc.ListExecutions, opts...),
	}
	return "/" + ExecutionServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

type ExecutionServiceClient interface {
	SubmitTask(context.Context, *connect.Request[v1.SubmitTaskRequest]) (*connect.Response[v1.SubmitTaskResponse], error)
	CancelExecution(context.Context, *connect.Request[v1.CancelExecutionRequest]) (*connect.Response[v1.CancelExecutionResponse], error)
	GetExecution(context.Context, *connect.Request[v1.GetExecutionRequest]) (*connect.Response[v1.GetExecutionResponse], error)
	ListExecutionLogs(context.Context, *connect.Request[v1.ListExecutionLogsRequest]) (*connect.Response[v1.ListExecutionLogsResponse], error)
	ListExecutions(context.Context, *connect.Request[v1.ListExecutionsRequest]) (*connect.Response[v1.ListExecutionsResponse], error)
}

func NewExecutionServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) ExecutionServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{rpcjson.WithCodec()}, opts...)
	return &executionServiceClient{
		submitTask:        connect.NewClient[v1.SubmitTaskRequest, v1.SubmitTaskResponse](httpClient, baseURL+ExecutionServiceSubmitTaskProcedure, opts...),
		cancelExecution:   connect.NewClient[v1.CancelExecutionRequest, v1.CancelExecutionResponse](httpClient, baseURL+ExecutionServiceCancelExecutionProcedure, opts...),
		getExecution:      connect.NewClient[v1.GetExecutionRequest, v1.GetExecutionResponse](httpClient, baseURL+ExecutionServiceGetExecutionProcedure, opts...),
		listExecutionLogs: connect.NewClient[v1.ListExecutionLogsRequest, v1.ListExecutionLogsResponse](httpClient, baseURL+ExecutionServiceListExecutionLogsProcedure, opts...),
		listExecutions:    connect.NewClient[v1.ListExecutionsRequest, v1.ListExecutionsResponse](httpClient, baseURL+ExecutionServiceListExecutionsProcedure, opts...),
	}
}

type executionServiceClient struct {
	submitTask        *connect.Client[v1.SubmitTaskRequest, v1.SubmitTaskResponse]
	cancelExecution   *connect.Client[v1.CancelExecutionRequest, v1.CancelExecutionResponse]
	getExecution      *connect.Client[v1.GetExecutionRequest, v1.GetExecutionResponse]
	listExecutionLogs *connect.Client[v1.ListExecutionLogsRequest, v1.ListExecutionLogsResponse]
	listExecutions    *connect.Client[v1.ListExecutionsRequest, v1.ListExecutionsResponse]
}

func (c *executionServiceClient) SubmitTask(ctx context.Context, req *connect.Request[v1.SubmitTaskRequest]) (*connect.Response[v1.SubmitTaskResponse], error) {
	return c.submitTask.CallUnary(ctx, req)
}

func (c *executionServiceClient) CancelExecution(ctx context.Context, req *connect.Request[v1.CancelExecutionRequest]) (*connect.Response[v1.CancelExecutionResponse], error) {
	return c.cancelExecution.CallUnary(ctx, req)
}

func (c *executionServiceClient) GetExecution(ctx context.Context, req *connect.Request[v1.GetExecutionRequest]) (*connect.Response[v1.GetExecutionResponse], error) {
	return c.getExecution.CallUnary(ctx, req)
}

func (c *executionServiceClient) ListExecutionLogs(ctx context.Context, req *connect.Request[v1.ListExecutionLogsRequest]) (*connect.Response[v1.ListExecutionLogsResponse], error) {
	return c.listExecutionLogs.CallUnary(ctx, req)
}

func (c *executionServiceClient) ListExecutions(ctx context.Context, req *connect.Request[v1.ListExecutionsRequest]) (*connect.Response[v1.ListExecutionsResponse], error) {
	return c.listExecutions.CallUnary(ctx, req)
}
