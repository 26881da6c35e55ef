// Package workflowtest provides in-memory adapters for exercising the
// workflow machine and the scheduler in tests.
package workflowtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/kazz187/agentforge/internal/hub"
	"github.com/kazz187/agentforge/pkg/githost"
)

const (
	DefaultAnalysis = "Add a theme toggle to the header and persist the choice."
	DefaultChanges  = `Here you go:
[{"path": "src/theme.ts", "content": "export const theme = 'dark';\n"}]`
)

// TextGenerator answers analysis calls with DefaultAnalysis and
// implementation calls with DefaultChanges unless Fn is set.
type TextGenerator struct {
	mu      sync.Mutex
	prompts []string
	Fn      func(ctx context.Context, call int, prompt string) (string, error)
}

func (g *TextGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	call := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	fn := g.Fn
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, call, prompt)
	}
	if call%2 == 0 {
		return DefaultAnalysis, nil
	}
	return DefaultChanges, nil
}

func (g *TextGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

type CommitCall struct {
	Branch  string
	Message string
	Files   []githost.FileChange
}

type VersionControl struct {
	mu        sync.Mutex
	branches  []string
	commits   []CommitCall
	BranchErr error
	CommitErr error
}

func (v *VersionControl) DefaultBranch(context.Context) (string, error) {
	return "main", nil
}

func (v *VersionControl) CreateBranch(_ context.Context, name, _ string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.branches = append(v.branches, name)
	return v.BranchErr
}

func (v *VersionControl) CreateCommit(_ context.Context, branch, message string, files []githost.FileChange) (*githost.Commit, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.CommitErr != nil {
		return nil, v.CommitErr
	}
	v.commits = append(v.commits, CommitCall{Branch: branch, Message: message, Files: files})
	sha := fmt.Sprintf("sha%d", len(v.commits))
	return &githost.Commit{SHA: sha, URL: "https://github.com/o/r/commit/" + sha}, nil
}

func (v *VersionControl) Branches() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.branches...)
}

func (v *VersionControl) Commits() []CommitCall {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]CommitCall(nil), v.commits...)
}

// CIStatusProvider returns States in order, repeating the last one. With no
// states it reports success.
type CIStatusProvider struct {
	mu     sync.Mutex
	calls  int
	States []githost.CIState
	Err    error
}

func (c *CIStatusProvider) GetCommitStatus(_ context.Context, ref string) (*githost.CommitStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.Err != nil {
		return nil, c.Err
	}
	state := githost.CISuccess
	if len(c.States) > 0 {
		i := c.calls - 1
		if i >= len(c.States) {
			i = len(c.States) - 1
		}
		state = c.States[i]
	}
	return &githost.CommitStatus{State: state, URL: "https://ci.example.com/" + ref}, nil
}

func (c *CIStatusProvider) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type Notifier struct {
	mu     sync.Mutex
	events []hub.Event
}

func (n *Notifier) Publish(userID string, ev hub.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ev.UserID = userID
	n.events = append(n.events, ev)
}

func (n *Notifier) Events(executionID string) []hub.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []hub.Event
	for _, ev := range n.events {
		if ev.ExecutionID == executionID {
			out = append(out, ev)
		}
	}
	return out
}

func (n *Notifier) Types(executionID string) []hub.EventType {
	var out []hub.EventType
	for _, ev := range n.Events(executionID) {
		out = append(out, ev.Type)
	}
	return out
}
