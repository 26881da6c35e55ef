package workflow

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kazz187/agentforge/internal/task"
)

const (
	branchPrefix  = "ai-agent/task-"
	maxSlugLength = 30
)

// BranchName returns ai-agent/task-<id>-<slug>, or ai-agent/task-<id> when
// the title has no usable characters.
func BranchName(id int64, title string) string {
	slug := Slug(title, maxSlugLength)
	if slug == "" {
		return fmt.Sprintf("%s%d", branchPrefix, id)
	}
	return fmt.Sprintf("%s%d-%s", branchPrefix, id, slug)
}

// Slug lower-cases s, collapses every run of characters outside [a-z0-9]
// into one hyphen and cuts the result to max characters.
func Slug(s string, max int) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		if r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	slug := b.String()
	if len(slug) > max {
		slug = strings.TrimRight(slug[:max], "-")
	}
	return slug
}

// CommitMessage formats the agent's commit message for t.
func CommitMessage(t *task.Task) string {
	return fmt.Sprintf("%s: %s\n\nImplemented by AI Agent\nTask ID: #%d", capitalize(t.Category), t.Title, t.ID)
}

func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "Task"
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
