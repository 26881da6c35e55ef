package workflow

import (
	"fmt"
	"strings"

	"github.com/kazz187/agentforge/internal/task"
)

func AnalysisPrompt(t *task.Task) string {
	var b strings.Builder
	b.WriteString("Analyse the following development task for a personal portfolio and tools website.\n\n")
	writeTask(&b, t)
	b.WriteString("\nDescribe the files that need to change, the approach you will take and any risks. ")
	b.WriteString("Keep the answer concise.\n")
	return b.String()
}

func ImplementationPrompt(t *task.Task, analysis string) string {
	var b strings.Builder
	b.WriteString("Implement the following development task.\n\n")
	writeTask(&b, t)
	b.WriteString("\nAnalysis:\n")
	b.WriteString(strings.TrimSpace(analysis))
	b.WriteString("\n\nRespond with a JSON array of file changes, each element shaped as ")
	b.WriteString(`{"path": "relative/path/to/file", "content": "full new file content"}`)
	b.WriteString(". Paths are relative to the repository root. Include every file in full.\n")
	return b.String()
}

func writeTask(b *strings.Builder, t *task.Task) {
	fmt.Fprintf(b, "Title: %s\n", t.Title)
	fmt.Fprintf(b, "Category: %s\n", orNone(t.Category))
	fmt.Fprintf(b, "Priority: %s\n", orNone(t.Priority))
	fmt.Fprintf(b, "Description: %s\n", orNone(t.Description))
	fmt.Fprintf(b, "Notes: %s\n", orNone(t.Notes))
	if len(t.Tags) > 0 {
		fmt.Fprintf(b, "Tags: %s\n", strings.Join(t.Tags, ", "))
	} else {
		b.WriteString("Tags: none\n")
	}
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}
