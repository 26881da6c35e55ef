package task

import "time"

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusOnHold     Status = "on_hold"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusCompleted, StatusOnHold:
		return true
	}
	return false
}

// Task is a unit of development work owned by a user. The execution engine
// reads it to build prompts and only ever writes Status.
type Task struct {
	ID          int64     `yaml:"id" json:"id"`
	UserID      string    `yaml:"user_id" json:"userId"`
	Title       string    `yaml:"title" json:"title"`
	Category    string    `yaml:"category" json:"category"`
	Priority    string    `yaml:"priority" json:"priority"`
	Description string    `yaml:"description" json:"description"`
	Notes       string    `yaml:"notes" json:"notes"`
	Tags        []string  `yaml:"tags" json:"tags"`
	Status      Status    `yaml:"status" json:"status"`
	CreatedAt   time.Time `yaml:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `yaml:"updated_at" json:"updatedAt"`
}
