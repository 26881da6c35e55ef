package githost

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-github/v62/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/agentforge/pkg/cerr"
)

// fakeGitHub emulates the slice of the REST API the client uses.
type fakeGitHub struct {
	mu        sync.Mutex
	refs      map[string]string // branch -> sha
	blobs     []string
	treeBase  string
	treePaths []string
	commits   int
	checkRuns []map[string]any
	combined  map[string]any
	failRefs  bool
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{refs: map[string]string{"main": "base-sha"}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/v3/repos/o/r"), "/")
	switch {
	case r.Method == http.MethodGet && p == "":
		writeJSON(w, 200, map[string]any{"default_branch": "main"})
	case strings.HasPrefix(p, "git/ref/heads/") && r.Method == http.MethodGet:
		branch := strings.TrimPrefix(p, "git/ref/heads/")
		sha, ok := f.refs[branch]
		if !ok {
			writeJSON(w, 404, map[string]any{"message": "Not Found"})
			return
		}
		writeJSON(w, 200, map[string]any{"ref": "refs/heads/" + branch, "object": map[string]any{"sha": sha, "type": "commit"}})
	case p == "git/refs" && r.Method == http.MethodPost:
		if f.failRefs {
			writeJSON(w, 500, map[string]any{"message": "boom"})
			return
		}
		var body struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		branch := strings.TrimPrefix(body.Ref, "refs/heads/")
		if _, ok := f.refs[branch]; ok {
			writeJSON(w, 422, map[string]any{"message": "Reference already exists"})
			return
		}
		f.refs[branch] = body.SHA
		writeJSON(w, 201, map[string]any{"ref": body.Ref, "object": map[string]any{"sha": body.SHA}})
	case strings.HasPrefix(p, "git/commits/") && r.Method == http.MethodGet:
		writeJSON(w, 200, map[string]any{"sha": strings.TrimPrefix(p, "git/commits/"), "tree": map[string]any{"sha": "base-tree"}})
	case p == "git/blobs" && r.Method == http.MethodPost:
		var body struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.blobs = append(f.blobs, body.Content)
		writeJSON(w, 201, map[string]any{"sha": "blob-sha"})
	case p == "git/trees" && r.Method == http.MethodPost:
		var body struct {
			BaseTree string `json:"base_tree"`
			Tree     []struct {
				Path string `json:"path"`
			} `json:"tree"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.treeBase = body.BaseTree
		for _, e := range body.Tree {
			f.treePaths = append(f.treePaths, e.Path)
		}
		writeJSON(w, 201, map[string]any{"sha": "new-tree"})
	case p == "git/commits" && r.Method == http.MethodPost:
		var body struct {
			Tree string `json:"tree"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.commits++
		writeJSON(w, 201, map[string]any{"sha": "commit-sha", "tree": map[string]any{"sha": body.Tree}, "html_url": "https://github.com/o/r/commit/commit-sha"})
	case strings.HasPrefix(p, "git/refs/heads/") && r.Method == http.MethodPatch:
		var body struct {
			SHA   string `json:"sha"`
			Force bool   `json:"force"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.refs[strings.TrimPrefix(p, "git/refs/heads/")] = body.SHA
		writeJSON(w, 200, map[string]any{"object": map[string]any{"sha": body.SHA}})
	case strings.HasSuffix(p, "/check-runs"):
		writeJSON(w, 200, map[string]any{"total_count": len(f.checkRuns), "check_runs": f.checkRuns})
	case strings.HasSuffix(p, "/status"):
		writeJSON(w, 200, f.combined)
	default:
		writeJSON(w, 404, map[string]any{"message": "unexpected " + r.Method + " " + r.URL.Path})
	}
}

func (f *fakeGitHub) ref(branch string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refs[branch]
}

func (f *fakeGitHub) set(fn func(f *fakeGitHub)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeGitHub) get(fn func(f *fakeGitHub)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func newTestClient(t *testing.T) (*Client, *fakeGitHub) {
	t.Helper()
	fake := newFakeGitHub()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c, err := New(Config{Token: "t", Owner: "o", Repo: "r", APIURL: srv.URL + "/"})
	require.NoError(t, err)
	return c, fake
}

func TestClient_DefaultBranch(t *testing.T) {
	c, _ := newTestClient(t)
	b, err := c.DefaultBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main", b)
}

func TestClient_CreateBranch(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.CreateBranch(ctx, "ai-agent/task-1-x", "main"))
	assert.Equal(t, "base-sha", fake.ref("ai-agent/task-1-x"))

	err := c.CreateBranch(ctx, "ai-agent/task-1-x", "main")
	assert.True(t, errors.Is(err, ErrBranchExists))

	fake.set(func(f *fakeGitHub) { f.failRefs = true })
	err = c.CreateBranch(ctx, "other", "main")
	assert.True(t, cerr.IsCode(err, cerr.Unavailable))
	assert.False(t, errors.Is(err, ErrBranchExists))
}

func TestClient_CreateCommit(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.CreateBranch(ctx, "feature", "main"))

	commit, err := c.CreateCommit(ctx, "feature", "Feature: x", []FileChange{
		{Path: "src/a.ts", Content: "a"},
		{Path: "src/b.ts", Content: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "commit-sha", commit.SHA)
	assert.Equal(t, "https://github.com/o/r/commit/commit-sha", commit.URL)
	fake.get(func(f *fakeGitHub) {
		assert.Equal(t, []string{"a", "b"}, f.blobs)
		assert.Equal(t, "base-tree", f.treeBase)
		assert.Equal(t, []string{"src/a.ts", "src/b.ts"}, f.treePaths)
	})
	assert.Equal(t, "commit-sha", fake.ref("feature"))
}

func TestClient_CreateCommitWithoutFilesIsEmptyCommit(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.CreateBranch(ctx, "feature", "main"))

	_, err := c.CreateCommit(ctx, "feature", "Task: x", nil)
	require.NoError(t, err)
	fake.get(func(f *fakeGitHub) {
		assert.Empty(t, f.blobs)
		assert.Empty(t, f.treePaths)
		assert.Equal(t, 1, f.commits)
	})
}

func TestClient_GetCommitStatus(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	fake.set(func(f *fakeGitHub) { f.combined = map[string]any{"state": "pending", "total_count": 0} })
	st, err := c.GetCommitStatus(ctx, "sha")
	require.NoError(t, err)
	assert.Equal(t, CIPending, st.State)

	fake.set(func(f *fakeGitHub) {
		f.combined = map[string]any{"state": "failure", "total_count": 1, "statuses": []map[string]any{{"target_url": "https://ci/1"}}}
	})
	st, err = c.GetCommitStatus(ctx, "sha")
	require.NoError(t, err)
	assert.Equal(t, CIFailure, st.State)
	assert.Equal(t, "https://ci/1", st.URL)

	fake.set(func(f *fakeGitHub) {
		f.checkRuns = []map[string]any{
			{"status": "completed", "conclusion": "success", "html_url": "https://ci/a"},
			{"status": "in_progress", "html_url": "https://ci/b"},
		}
	})
	st, err = c.GetCommitStatus(ctx, "sha")
	require.NoError(t, err)
	assert.Equal(t, CIPending, st.State)
	assert.Equal(t, "https://ci/b", st.URL)
}

func TestFoldCheckRuns(t *testing.T) {
	run := func(status, conclusion, url string) *github.CheckRun {
		return &github.CheckRun{Status: github.String(status), Conclusion: github.String(conclusion), HTMLURL: github.String(url)}
	}
	assert.Equal(t, &CommitStatus{State: CISuccess, URL: "a"}, foldCheckRuns([]*github.CheckRun{run("completed", "success", "a"), run("completed", "skipped", "b")}))
	assert.Equal(t, &CommitStatus{State: CIFailure, URL: "c"}, foldCheckRuns([]*github.CheckRun{run("queued", "", "a"), run("completed", "failure", "c")}))
}
