package workspace

import (
	"context"
	"fmt"
	"iter"
	"path/filepath"
	"sync"

	"github.com/nicobailon/kiosk/internal/errs"
	"github.com/nicobailon/kiosk/internal/git"
	"github.com/nicobailon/kiosk/internal/naming"
	"github.com/nicobailon/kiosk/internal/scanner"
	"github.com/nicobailon/kiosk/internal/tmux"
	"github.com/nicobailon/kiosk/internal/worktree"
)

type sent struct {
	target  string
	payload tmux.Payload
}

type fakeSession struct {
	dir     string
	panes   []tmux.Pane
	clients []string
	// commands, when set, replaces the first pane's command on successive
	// ListPanes calls; the last one sticks.
	commands []string
}

type fakeMux struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	captures map[string]string
	inside   bool
	// loseRace makes CreateSession behave as if another process created
	// the session first.
	loseRace  bool
	created   []string
	killed    []string
	sent      []sent
	piped     map[string]string
	switched  string
	attached  string
	paneCount int
}

func newFakeMux() *fakeMux {
	return &fakeMux{sessions: map[string]*fakeSession{}, captures: map[string]string{}, piped: map[string]string{}}
}

func (m *fakeMux) addSession(name, dir string, commands ...string) *fakeSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addSessionLocked(name, dir, commands...)
}

func (m *fakeMux) addSessionLocked(name, dir string, commands ...string) *fakeSession {
	s := &fakeSession{dir: dir}
	for i, c := range commands {
		s.panes = append(s.panes, tmux.Pane{Index: i, ID: fmt.Sprintf("%%%d", m.paneCount), Command: c, PID: 100 + m.paneCount})
		m.paneCount++
	}
	m.sessions[name] = s
	return s
}

func (m *fakeMux) SessionExists(_ context.Context, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[name]
	return ok
}

func (m *fakeMux) CreateSession(_ context.Context, name, dir string, opts tmux.CreateOptions) (tmux.Session, error) {
	// Check and insert under one hold, like tmux's own new-session.
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[name]; exists || m.loseRace {
		if m.loseRace {
			m.addSessionLocked(name, dir, "zsh")
		}
		return tmux.Session{}, fmt.Errorf("%s: %w", name, tmux.ErrDuplicateSession)
	}
	cmds := []string{"zsh"}
	if opts.SplitCommand != "" {
		cmds = append(cmds, "zsh")
	}
	m.addSessionLocked(name, dir, cmds...)
	m.created = append(m.created, name)
	return tmux.Session{Name: name, Dir: dir}, nil
}

func (m *fakeMux) KillSession(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, name)
	m.killed = append(m.killed, name)
	return nil
}

func (m *fakeMux) SwitchClient(_ context.Context, name string) error {
	m.switched = name
	return nil
}

func (m *fakeMux) Attach(_ context.Context, name string) error {
	m.attached = name
	return nil
}

func (m *fakeMux) IsInsideTmux() bool { return m.inside }

func (m *fakeMux) SendKeys(_ context.Context, target string, p tmux.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sent{target: target, payload: p})
	return nil
}

func (m *fakeMux) CapturePane(_ context.Context, target string, tailLines int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return tmux.TailLines(m.captures[target], tailLines), nil
}

func (m *fakeMux) ListSessions(_ context.Context) ([]tmux.SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tmux.SessionInfo
	for name, s := range m.sessions {
		out = append(out, tmux.SessionInfo{Name: name, Windows: 1, Attached: len(s.clients)})
	}
	return out, nil
}

func (m *fakeMux) ListPanes(_ context.Context, session string) ([]tmux.Pane, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[session]
	if !ok {
		return nil, errs.New(errs.SessionNotFound, "session %s not found", session)
	}
	if len(s.commands) > 0 && len(s.panes) > 0 {
		s.panes[0].Command = s.commands[0]
		if len(s.commands) > 1 {
			s.commands = s.commands[1:]
		}
	}
	return append([]tmux.Pane(nil), s.panes...), nil
}

func (m *fakeMux) ResolvePane(ctx context.Context, session string, index int) (tmux.Pane, error) {
	panes, err := m.ListPanes(ctx, session)
	if err != nil {
		return tmux.Pane{}, err
	}
	if index < 0 || index >= len(panes) {
		return tmux.Pane{}, errs.New(errs.PaneNotFound, "pane %d not found", index)
	}
	return panes[index], nil
}

func (m *fakeMux) ListClients(_ context.Context, session string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[session]; ok {
		return s.clients, nil
	}
	return nil, nil
}

func (m *fakeMux) PipePane(_ context.Context, target, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.piped[target] = path
	return nil
}

func (m *fakeMux) DescendantArgs(context.Context, int) []string { return nil }

type fakeVCS struct {
	mu        sync.Mutex
	def       string
	root      string
	branches  []string
	remote    map[string]string
	worktrees []git.Worktree
	dirty     map[string]bool
	prunes    int
}

func newFakeVCS(root string, branches ...string) *fakeVCS {
	return &fakeVCS{
		def:       "main",
		root:      root,
		branches:  append([]string{"main"}, branches...),
		remote:    map[string]string{},
		worktrees: []git.Worktree{{Path: root, Branch: "main"}},
		dirty:     map[string]bool{},
	}
}

func (v *fakeVCS) addWorktree(branch, path string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.worktrees = append(v.worktrees, git.Worktree{Path: path, Branch: branch})
}

func (v *fakeVCS) DefaultBranch(context.Context) string { return v.def }

func (v *fakeVCS) Branches(context.Context) ([]string, error) {
	return append([]string(nil), v.branches...), nil
}

func (v *fakeVCS) RemoteBranches(context.Context) (map[string]string, error) { return v.remote, nil }

func (v *fakeVCS) WorktreeList(context.Context) ([]git.Worktree, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]git.Worktree(nil), v.worktrees...), nil
}

func (v *fakeVCS) WorktreePrune(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prunes++
	return nil
}

func (v *fakeVCS) Status(_ context.Context, path string) (*git.StatusSummary, error) {
	if v.dirty[path] {
		return &git.StatusSummary{Modified: 1}, nil
	}
	return &git.StatusSummary{Clean: true}, nil
}

type fakeWorktrees struct {
	mu      sync.Mutex
	vcs     map[string]*fakeVCS
	ensures int
	deleted []string
	orphans []worktree.Orphan
	removed []worktree.Orphan
}

func (w *fakeWorktrees) Ensure(_ context.Context, repo scanner.Repo, branch string, opts worktree.EnsureOptions) (worktree.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ensures++
	v := w.vcs[repo.Path]
	for _, wt := range v.worktrees {
		if wt.Branch == branch {
			return worktree.Result{Path: wt.Path}, nil
		}
	}
	known := opts.NewBranch
	for _, b := range v.branches {
		known = known || b == branch
	}
	if !known {
		return worktree.Result{}, errs.New(errs.BranchNotFound, "branch %q not found", branch)
	}
	path := naming.WorktreeDir(repo.Path, repo.Name, branch)
	v.addWorktree(branch, path)
	return worktree.Result{Path: path, Created: true}, nil
}

func (w *fakeWorktrees) Delete(_ context.Context, repo scanner.Repo, branch string, _ worktree.DeleteOptions) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := w.vcs[repo.Path]
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, wt := range v.worktrees {
		if wt.Branch == branch {
			v.worktrees = append(v.worktrees[:i], v.worktrees[i+1:]...)
			w.deleted = append(w.deleted, wt.Path)
			return wt.Path, nil
		}
	}
	return "", errs.New(errs.BranchNotFound, "no worktree for %q", branch)
}

func (w *fakeWorktrees) ListOrphans(context.Context, []scanner.Repo) iter.Seq[worktree.Orphan] {
	return func(yield func(worktree.Orphan) bool) {
		for _, o := range w.orphans {
			if !yield(o) {
				return
			}
		}
	}
}

func (w *fakeWorktrees) RemoveOrphan(_ context.Context, o worktree.Orphan) error {
	w.removed = append(w.removed, o)
	return nil
}

type fixture struct {
	svc  *Service
	mux  *fakeMux
	vcs  *fakeVCS
	wts  *fakeWorktrees
	repo scanner.Repo
	logs string
}

func repoPath(dir string) string { return filepath.Join(dir, "code", "app") }
