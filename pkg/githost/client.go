// Package githost talks to a GitHub repository: branches and commits through
// the git data API, CI results through check runs and commit statuses.
package githost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v62/github"

	"github.com/kazz187/agentforge/pkg/cerr"
)

var ErrBranchExists = errors.New("branch already exists")

const service = "github"

type Config struct {
	Token  string
	Owner  string
	Repo   string
	APIURL string // GitHub Enterprise base URL, empty for github.com
}

type FileChange struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type Commit struct {
	SHA string
	URL string
}

type CIState string

const (
	CIPending CIState = "pending"
	CISuccess CIState = "success"
	CIFailure CIState = "failure"
)

type CommitStatus struct {
	State CIState
	URL   string
}

type Client struct {
	gh    *github.Client
	owner string
	repo  string
}

func New(cfg Config) (*Client, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("github owner and repo are required")
	}
	gh := github.NewClient(nil)
	if cfg.Token != "" {
		gh = gh.WithAuthToken(cfg.Token)
	}
	if cfg.APIURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(cfg.APIURL, cfg.APIURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github api url: %w", err)
		}
	}
	return &Client{gh: gh, owner: cfg.Owner, repo: cfg.Repo}, nil
}

func (c *Client) DefaultBranch(ctx context.Context) (string, error) {
	repo, _, err := c.gh.Repositories.Get(ctx, c.owner, c.repo)
	if err != nil {
		return "", cerr.WrapExternalError(service, err)
	}
	return repo.GetDefaultBranch(), nil
}

// CreateBranch points a new branch at the tip of base. It returns an error
// wrapping ErrBranchExists when the branch is already there.
func (c *Client) CreateBranch(ctx context.Context, name, base string) error {
	baseRef, _, err := c.gh.Git.GetRef(ctx, c.owner, c.repo, "heads/"+base)
	if err != nil {
		return cerr.WrapExternalError(service, fmt.Errorf("resolve base branch %s: %w", base, err))
	}
	_, _, err = c.gh.Git.CreateRef(ctx, c.owner, c.repo, &github.Reference{
		Ref:    github.String("refs/heads/" + name),
		Object: &github.GitObject{SHA: baseRef.GetObject().SHA},
	})
	if err != nil {
		if isRefExists(err) {
			return fmt.Errorf("%s: %w", name, ErrBranchExists)
		}
		return cerr.WrapExternalError(service, fmt.Errorf("create branch %s: %w", name, err))
	}
	return nil
}

func isRefExists(err error) bool {
	var respErr *github.ErrorResponse
	if !errors.As(err, &respErr) || respErr.Response == nil {
		return false
	}
	return respErr.Response.StatusCode == http.StatusUnprocessableEntity &&
		strings.Contains(strings.ToLower(respErr.Message), "already exists")
}

// CreateCommit writes files on top of the branch tip and fast-forwards the
// branch to the new commit. No files yields an empty commit.
func (c *Client) CreateCommit(ctx context.Context, branch, message string, files []FileChange) (*Commit, error) {
	ref, _, err := c.gh.Git.GetRef(ctx, c.owner, c.repo, "heads/"+branch)
	if err != nil {
		return nil, cerr.WrapExternalError(service, fmt.Errorf("resolve branch %s: %w", branch, err))
	}
	parentSHA := ref.GetObject().GetSHA()
	parent, _, err := c.gh.Git.GetCommit(ctx, c.owner, c.repo, parentSHA)
	if err != nil {
		return nil, cerr.WrapExternalError(service, fmt.Errorf("read commit %s: %w", parentSHA, err))
	}
	treeSHA := parent.GetTree().GetSHA()

	if len(files) > 0 {
		entries := make([]*github.TreeEntry, 0, len(files))
		for _, f := range files {
			blob, _, err := c.gh.Git.CreateBlob(ctx, c.owner, c.repo, &github.Blob{
				Content:  github.String(f.Content),
				Encoding: github.String("utf-8"),
			})
			if err != nil {
				return nil, cerr.WrapExternalError(service, fmt.Errorf("create blob for %s: %w", f.Path, err))
			}
			entries = append(entries, &github.TreeEntry{
				Path: github.String(f.Path),
				Mode: github.String("100644"),
				Type: github.String("blob"),
				SHA:  blob.SHA,
			})
		}
		tree, _, err := c.gh.Git.CreateTree(ctx, c.owner, c.repo, treeSHA, entries)
		if err != nil {
			return nil, cerr.WrapExternalError(service, fmt.Errorf("create tree: %w", err))
		}
		treeSHA = tree.GetSHA()
	}

	commit, _, err := c.gh.Git.CreateCommit(ctx, c.owner, c.repo, &github.Commit{
		Message: github.String(message),
		Tree:    &github.Tree{SHA: github.String(treeSHA)},
		Parents: []*github.Commit{{SHA: github.String(parentSHA)}},
	}, nil)
	if err != nil {
		return nil, cerr.WrapExternalError(service, fmt.Errorf("create commit: %w", err))
	}

	ref.Object = &github.GitObject{SHA: commit.SHA}
	if _, _, err := c.gh.Git.UpdateRef(ctx, c.owner, c.repo, ref, false); err != nil {
		return nil, cerr.WrapExternalError(service, fmt.Errorf("update branch %s: %w", branch, err))
	}

	url := commit.GetHTMLURL()
	if url == "" {
		url = fmt.Sprintf("https://github.com/%s/%s/commit/%s", c.owner, c.repo, commit.GetSHA())
	}
	return &Commit{SHA: commit.GetSHA(), URL: url}, nil
}

// GetCommitStatus folds the check runs of ref into one state, falling back
// to the combined commit status when no check runs exist.
func (c *Client) GetCommitStatus(ctx context.Context, ref string) (*CommitStatus, error) {
	runs, _, err := c.gh.Checks.ListCheckRunsForRef(ctx, c.owner, c.repo, ref, &github.ListCheckRunsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, cerr.WrapExternalError(service, fmt.Errorf("list check runs: %w", err))
	}
	if len(runs.CheckRuns) > 0 {
		return foldCheckRuns(runs.CheckRuns), nil
	}

	combined, _, err := c.gh.Repositories.GetCombinedStatus(ctx, c.owner, c.repo, ref, nil)
	if err != nil {
		return nil, cerr.WrapExternalError(service, fmt.Errorf("get combined status: %w", err))
	}
	return foldCombinedStatus(combined), nil
}

func foldCheckRuns(runs []*github.CheckRun) *CommitStatus {
	st := &CommitStatus{State: CISuccess, URL: runs[0].GetHTMLURL()}
	for _, r := range runs {
		if r.GetStatus() != "completed" {
			if st.State == CISuccess {
				st.State = CIPending
				st.URL = r.GetHTMLURL()
			}
			continue
		}
		switch r.GetConclusion() {
		case "failure", "timed_out", "cancelled", "action_required", "startup_failure":
			return &CommitStatus{State: CIFailure, URL: r.GetHTMLURL()}
		}
	}
	return st
}

func foldCombinedStatus(s *github.CombinedStatus) *CommitStatus {
	url := ""
	if len(s.Statuses) > 0 {
		url = s.Statuses[0].GetTargetURL()
	}
	switch s.GetState() {
	case "success":
		if s.GetTotalCount() == 0 {
			return &CommitStatus{State: CIPending, URL: url}
		}
		return &CommitStatus{State: CISuccess, URL: url}
	case "failure", "error":
		return &CommitStatus{State: CIFailure, URL: url}
	default:
		return &CommitStatus{State: CIPending, URL: url}
	}
}
