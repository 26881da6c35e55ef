package workflow

import (
	"encoding/json"
	"path"
	"strings"

	"github.com/kazz187/agentforge/pkg/githost"
)

// ChangeSet is the outcome of reading file changes out of a model response:
// either ParsedChanges or ParseFailure.
type ChangeSet interface {
	isChangeSet()
}

type ParsedChanges struct {
	Files []githost.FileChange
	// Dropped lists paths rejected as unsafe.
	Dropped []string
}

type ParseFailure struct {
	Raw    string
	Reason string
}

func (ParsedChanges) isChangeSet() {}
func (ParseFailure) isChangeSet()  {}

// ExtractChanges finds the first well-formed JSON array of {path, content}
// objects in text. Surrounding prose and code fences are ignored.
func ExtractChanges(text string) ChangeSet {
	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}
		var raw []json.RawMessage
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		if err := dec.Decode(&raw); err != nil {
			continue
		}
		files, dropped, ok := decodeFileChanges(raw)
		if !ok {
			continue
		}
		return ParsedChanges{Files: files, Dropped: dropped}
	}
	return ParseFailure{Raw: text, Reason: "no JSON array of file changes found in response"}
}

type fileChange struct {
	Path    *string `json:"path"`
	Content *string `json:"content"`
}

func decodeFileChanges(raw []json.RawMessage) ([]githost.FileChange, []string, bool) {
	files := make([]githost.FileChange, 0, len(raw))
	var dropped []string
	for _, item := range raw {
		var fc fileChange
		if err := json.Unmarshal(item, &fc); err != nil || fc.Path == nil || fc.Content == nil {
			return nil, nil, false
		}
		p, ok := cleanPath(*fc.Path)
		if !ok {
			dropped = append(dropped, *fc.Path)
			continue
		}
		files = append(files, githost.FileChange{Path: p, Content: *fc.Content})
	}
	return files, dropped, true
}

// cleanPath rejects absolute paths and paths escaping the repository root.
func cleanPath(p string) (string, bool) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" || strings.HasPrefix(p, "/") || (len(p) > 1 && p[1] == ':') {
		return "", false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", false
		}
	}
	cleaned := path.Clean(p)
	if cleaned == "." || strings.HasPrefix(cleaned, ".git/") || cleaned == ".git" {
		return "", false
	}
	return cleaned, true
}
