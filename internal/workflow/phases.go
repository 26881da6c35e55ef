package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/kazz187/agentforge/internal/execution"
	"github.com/kazz187/agentforge/internal/executionlog"
	"github.com/kazz187/agentforge/internal/hub"
	"github.com/kazz187/agentforge/pkg/githost"
)

type Phase string

const (
	PhasePrepare        Phase = "prepare"
	PhaseAnalysis       Phase = "analysis"
	PhaseImplementation Phase = "implementation"
	PhaseCommit         Phase = "commit"
	PhaseCIMonitor      Phase = "ci_monitor"
)

const progressCompleted = 100

type phaseStep struct {
	phase    Phase
	progress int
	run      func(ctx context.Context, r *run) error
}

func (m *Machine) phases() []phaseStep {
	return []phaseStep{
		{PhasePrepare, 10, m.prepare},
		{PhaseAnalysis, 30, m.analyse},
		{PhaseImplementation, 50, m.implement},
		{PhaseCommit, 70, m.commit},
		{PhaseCIMonitor, 90, m.monitorCI},
	}
}

func (m *Machine) runPhases(ctx context.Context, r *run) error {
	for _, p := range m.phases() {
		if err := m.checkStop(ctx, r); err != nil {
			return err
		}
		m.publish(r.exec, hub.EventProgress, map[string]any{"phase": p.phase, "progress": p.progress})
		m.log(ctx, r.exec, executionlog.TypeProgress, fmt.Sprintf("Phase %s started", p.phase),
			map[string]any{"phase": p.phase, "progress": p.progress})
		if err := p.run(ctx, r); err != nil {
			return fmt.Errorf("%s phase: %w", p.phase, err)
		}
	}
	return m.checkStop(ctx, r)
}

// prepare creates the working branch. Branch creation is best effort: an
// existing branch is reused and other errors only produce a warning.
func (m *Machine) prepare(ctx context.Context, r *run) error {
	branch := BranchName(r.task.ID, r.task.Title)
	base, err := m.createBranch(ctx, branch)
	if stopErr := m.checkStop(ctx, r); stopErr != nil {
		return stopErr
	}
	switch {
	case err == nil:
		m.log(ctx, r.exec, executionlog.TypeInfo, fmt.Sprintf("Created branch %s from %s", branch, base),
			map[string]any{"branch": branch, "base": base})
	case errors.Is(err, githost.ErrBranchExists):
		m.log(ctx, r.exec, executionlog.TypeInfo, fmt.Sprintf("Branch %s already exists, reusing it", branch),
			map[string]any{"branch": branch})
	default:
		m.log(ctx, r.exec, executionlog.TypeWarning, fmt.Sprintf("Could not create branch %s: %v", branch, err),
			map[string]any{"branch": branch})
	}

	r.exec.BranchName = branch
	return m.save(ctx, r)
}

func (m *Machine) createBranch(ctx context.Context, branch string) (string, error) {
	base := m.cfg.BaseBranch
	if base == "" {
		var err error
		if base, err = m.vcs.DefaultBranch(ctx); err != nil {
			return "", fmt.Errorf("resolve default branch: %w", err)
		}
	}
	return base, m.vcs.CreateBranch(ctx, branch, base)
}

func (m *Machine) analyse(ctx context.Context, r *run) error {
	text, err := m.textGen.Generate(ctx, AnalysisPrompt(r.task))
	if stopErr := m.checkStop(ctx, r); stopErr != nil {
		return stopErr
	}
	if err != nil {
		return err
	}
	r.analysis = text
	m.log(ctx, r.exec, executionlog.TypeInfo, text, map[string]any{"phase": PhaseAnalysis})
	return nil
}

func (m *Machine) implement(ctx context.Context, r *run) error {
	text, err := m.textGen.Generate(ctx, ImplementationPrompt(r.task, r.analysis))
	if stopErr := m.checkStop(ctx, r); stopErr != nil {
		return stopErr
	}
	if err != nil {
		return err
	}

	switch cs := ExtractChanges(text).(type) {
	case ParsedChanges:
		for _, p := range cs.Dropped {
			m.log(ctx, r.exec, executionlog.TypeWarning, fmt.Sprintf("Ignored unsafe path %q", p), map[string]any{"path": p})
		}
		paths := make([]string, len(cs.Files))
		for i, f := range cs.Files {
			paths[i] = f.Path
		}
		r.files = cs.Files
		m.log(ctx, r.exec, executionlog.TypeInfo, fmt.Sprintf("Generated changes for %d files", len(cs.Files)),
			map[string]any{"files": paths})
	case ParseFailure:
		r.files = nil
		m.log(ctx, r.exec, executionlog.TypeWarning, "Could not parse file changes, continuing without changes: "+cs.Reason,
			map[string]any{"response": cs.Raw})
	}
	return nil
}

func (m *Machine) commit(ctx context.Context, r *run) error {
	c, err := m.vcs.CreateCommit(ctx, r.exec.BranchName, CommitMessage(r.task), r.files)
	if stopErr := m.checkStop(ctx, r); stopErr != nil {
		return stopErr
	}
	if err != nil {
		return err
	}

	r.exec.CommitSHA = c.SHA
	r.exec.CommitURL = c.URL
	r.exec.FilesChanged = len(r.files)
	if err := m.save(ctx, r); err != nil {
		return err
	}
	m.log(ctx, r.exec, executionlog.TypeInfo, fmt.Sprintf("Created commit %s with %d files", c.SHA, len(r.files)),
		map[string]any{"commitSha": c.SHA, "commitUrl": c.URL, "filesChanged": len(r.files)})
	return nil
}

// monitorCI polls the commit status a bounded number of times. Running out
// of attempts leaves the CI status unknown without failing the execution.
func (m *Machine) monitorCI(ctx context.Context, r *run) error {
	for attempt := 1; attempt <= m.cfg.CIMaxAttempts; attempt++ {
		st, err := m.ci.GetCommitStatus(ctx, r.exec.CommitSHA)
		if stopErr := m.checkStop(ctx, r); stopErr != nil {
			return stopErr
		}
		if err != nil {
			return err
		}

		state := execution.CIStatus(st.State)
		if state != r.exec.CIStatus || st.URL != r.exec.CIURL {
			if err := m.recordCI(ctx, r, state, st.URL); err != nil {
				return err
			}
		}
		if state == execution.CIStatusSuccess || state == execution.CIStatusFailure {
			return nil
		}
		if attempt == m.cfg.CIMaxAttempts {
			break
		}
		if err := m.sleep(ctx, r, m.cfg.CIPollInterval); err != nil {
			return err
		}
	}

	m.log(ctx, r.exec, executionlog.TypeWarning,
		fmt.Sprintf("CI did not finish within %d checks, status unknown", m.cfg.CIMaxAttempts), nil)
	return m.recordCI(ctx, r, execution.CIStatusUnknown, r.exec.CIURL)
}

func (m *Machine) recordCI(ctx context.Context, r *run, state execution.CIStatus, url string) error {
	r.exec.CIStatus = state
	r.exec.CIURL = url
	if err := m.save(ctx, r); err != nil {
		return err
	}
	m.publishStatus(r.exec, map[string]any{"ciStatus": state, "ciUrl": url})
	m.log(ctx, r.exec, executionlog.TypeInfo, fmt.Sprintf("CI status: %s", state),
		map[string]any{"ciStatus": state, "ciUrl": url})
	return nil
}
