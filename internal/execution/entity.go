package execution

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsActive reports whether the status counts toward the one-active-execution
// per task rule.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusRunning
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether to is reachable from s in one step.
// Terminal states are absorbing.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusRunning || to == StatusFailed || to == StatusCancelled
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	default:
		return false
	}
}

type CIStatus string

const (
	CIStatusPending CIStatus = "pending"
	CIStatusSuccess CIStatus = "success"
	CIStatusFailure CIStatus = "failure"
	CIStatusUnknown CIStatus = "unknown"
)

// Execution is one attempt to carry out a task with the agent.
type Execution struct {
	ID           string     `yaml:"id" json:"id"`
	TaskID       int64      `yaml:"task_id" json:"taskId"`
	UserID       string     `yaml:"user_id" json:"userId"`
	Status       Status     `yaml:"status" json:"status"`
	BranchName   string     `yaml:"branch_name,omitempty" json:"branchName,omitempty"`
	CommitSHA    string     `yaml:"commit_sha,omitempty" json:"commitSha,omitempty"`
	CommitURL    string     `yaml:"commit_url,omitempty" json:"commitUrl,omitempty"`
	CIStatus     CIStatus   `yaml:"ci_status,omitempty" json:"ciStatus,omitempty"`
	CIURL        string     `yaml:"ci_url,omitempty" json:"ciUrl,omitempty"`
	FilesChanged int        `yaml:"files_changed" json:"filesChanged"`
	Error        string     `yaml:"error,omitempty" json:"error,omitempty"`
	CreatedAt    time.Time  `yaml:"created_at" json:"createdAt"`
	StartedAt    *time.Time `yaml:"started_at,omitempty" json:"startedAt,omitempty"`
	CompletedAt  *time.Time `yaml:"completed_at,omitempty" json:"completedAt,omitempty"`
	UpdatedAt    time.Time  `yaml:"updated_at" json:"updatedAt"`
}

func (e *Execution) Clone() *Execution {
	c := *e
	if e.StartedAt != nil {
		t := *e.StartedAt
		c.StartedAt = &t
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
