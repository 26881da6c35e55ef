package executionlog

import "time"

type Type string

const (
	TypeInfo     Type = "info"
	TypeWarning  Type = "warning"
	TypeError    Type = "error"
	TypeProgress Type = "progress"
)

// Entry is an append-only record of what happened during an execution.
type Entry struct {
	ID          string         `yaml:"id" json:"id"`
	ExecutionID string         `yaml:"execution_id" json:"executionId"`
	Type        Type           `yaml:"type" json:"type"`
	Message     string         `yaml:"message" json:"message"`
	Metadata    map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt   time.Time      `yaml:"created_at" json:"createdAt"`
}
