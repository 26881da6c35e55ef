package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kazz187/agentforge/internal/task"
)

func TestBranchName(t *testing.T) {
	tests := []struct {
		name  string
		id    int64
		title string
		want  string
	}{
		{"simple", 1, "Add dark mode", "ai-agent/task-1-add-dark-mode"},
		{"punctuation runs collapse", 2, "  Hello,   World!! ", "ai-agent/task-2-hello-world"},
		{"truncated to 30", 3, "Implement the new portfolio gallery with filters", "ai-agent/task-3-implement-the-new-portfolio-ga"},
		{"hyphen trimmed after truncation", 4, "abcdefghijklmnopqrstuvwxyzabc defg", "ai-agent/task-4-abcdefghijklmnopqrstuvwxyzabc"},
		{"non-ascii letters separate", 5, "Café menu", "ai-agent/task-5-caf-menu"},
		{"nothing usable", 6, "!!!", "ai-agent/task-6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BranchName(tt.id, tt.title))
		})
	}
}

func TestSlug_Length(t *testing.T) {
	s := Slug("a b c d e f g h i j k l m n o p q r s t u v w x y z", 30)
	assert.LessOrEqual(t, len(s), 30)
	assert.NotEqual(t, '-', rune(s[len(s)-1]))
}

func TestCommitMessage(t *testing.T) {
	assert.Equal(t,
		"Feature: Add dark mode\n\nImplemented by AI Agent\nTask ID: #1",
		CommitMessage(&task.Task{ID: 1, Title: "Add dark mode", Category: "feature"}))
	assert.Equal(t,
		"Task: Fix footer\n\nImplemented by AI Agent\nTask ID: #12",
		CommitMessage(&task.Task{ID: 12, Title: "Fix footer"}))
}
