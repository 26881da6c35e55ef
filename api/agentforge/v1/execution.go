// Package agentforgev1 holds the wire messages of the agentforge.v1 RPC
// services. Messages are plain structs carried by the rpcjson codec.
package agentforgev1

import "time"

type Execution struct {
	ID           string     `json:"id"`
	TaskID       int64      `json:"taskId"`
	Status       string     `json:"status"`
	BranchName   string     `json:"branchName,omitempty"`
	CommitSHA    string     `json:"commitSha,omitempty"`
	CommitURL    string     `json:"commitUrl,omitempty"`
	CIStatus     string     `json:"ciStatus,omitempty"`
	CIURL        string     `json:"ciUrl,omitempty"`
	FilesChanged int32      `json:"filesChanged"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

type ExecutionLog struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"executionId"`
	Type        string         `json:"type"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

type SubmitTaskRequest struct {
	TaskID int64 `json:"taskId"`
}

type SubmitTaskResponse struct {
	Execution *Execution `json:"execution"`
}

type CancelExecutionRequest struct {
	ExecutionID string `json:"executionId"`
}

type CancelExecutionResponse struct {
	Execution *Execution `json:"execution"`
}

type GetExecutionRequest struct {
	ExecutionID string `json:"executionId"`
}

type GetExecutionResponse struct {
	Execution *Execution `json:"execution"`
}

type ListExecutionLogsRequest struct {
	ExecutionID string `json:"executionId"`
	Limit       int32  `json:"limit,omitempty"`
	Offset      int32  `json:"offset,omitempty"`
}

type ListExecutionLogsResponse struct {
	Logs  []*ExecutionLog `json:"logs"`
	Total int32           `json:"total"`
}

type ListExecutionsRequest struct {
	TaskID int64 `json:"taskId"`
	Limit  int32 `json:"limit,omitempty"`
	Offset int32 `json:"offset,omitempty"`
}

type ListExecutionsResponse struct {
	Executions []*Execution `json:"executions"`
	Total      int32        `json:"total"`
}
