package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/agentforge/pkg/githost"
)

func TestExtractChanges(t *testing.T) {
	t.Run("array wrapped in prose and a code fence", func(t *testing.T) {
		text := "Here are the changes:\n```json\n[\n  {\"path\": \"src/theme.ts\", \"content\": \"export const dark = true;\\n\"}\n]\n```\nLet me know [if] anything is missing."
		got, ok := ExtractChanges(text).(ParsedChanges)
		require.True(t, ok)
		assert.Equal(t, []githost.FileChange{{Path: "src/theme.ts", Content: "export const dark = true;\n"}}, got.Files)
	})

	t.Run("arrays that are not file changes are skipped", func(t *testing.T) {
		text := `Steps [1, 2] done. Result: [{"path": "a.go", "content": "package a"}]`
		got, ok := ExtractChanges(text).(ParsedChanges)
		require.True(t, ok)
		require.Len(t, got.Files, 1)
		assert.Equal(t, "a.go", got.Files[0].Path)
	})

	t.Run("unsafe paths are dropped", func(t *testing.T) {
		text := `[{"path": "../etc/passwd", "content": "x"}, {"path": "/abs.txt", "content": "y"}, {"path": "src/./ok.ts", "content": "z"}, {"path": ".git/config", "content": "w"}]`
		got, ok := ExtractChanges(text).(ParsedChanges)
		require.True(t, ok)
		assert.Equal(t, []githost.FileChange{{Path: "src/ok.ts", Content: "z"}}, got.Files)
		assert.Equal(t, []string{"../etc/passwd", "/abs.txt", ".git/config"}, got.Dropped)
	})

	t.Run("empty array", func(t *testing.T) {
		got, ok := ExtractChanges("No changes needed: []").(ParsedChanges)
		require.True(t, ok)
		assert.Empty(t, got.Files)
	})

	t.Run("no array", func(t *testing.T) {
		got, ok := ExtractChanges("I could not implement this task.").(ParseFailure)
		require.True(t, ok)
		assert.Equal(t, "I could not implement this task.", got.Raw)
		assert.NotEmpty(t, got.Reason)
	})

	t.Run("malformed array", func(t *testing.T) {
		_, ok := ExtractChanges(`[{"path": "a.go", "content": ]`).(ParseFailure)
		assert.True(t, ok)
	})

	t.Run("missing content field", func(t *testing.T) {
		_, ok := ExtractChanges(`[{"path": "a.go"}]`).(ParseFailure)
		assert.True(t, ok)
	})
}
