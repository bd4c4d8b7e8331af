// Package workspace implements kiosk's commands on top of git worktrees,
// tmux sessions and the agent classifier.
package workspace

import (
	"context"
	"io"
	"iter"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"

	"github.com/nicobailon/kiosk/internal/config"
	"github.com/nicobailon/kiosk/internal/git"
	"github.com/nicobailon/kiosk/internal/naming"
	"github.com/nicobailon/kiosk/internal/recent"
	"github.com/nicobailon/kiosk/internal/scanner"
	"github.com/nicobailon/kiosk/internal/tmux"
	"github.com/nicobailon/kiosk/internal/wait"
	"github.com/nicobailon/kiosk/internal/worktree"
	"github.com/nicobailon/kiosk/internal/xdg"
)

// Multiplexer is the tmux driver. *tmux.Tmux satisfies it.
type Multiplexer interface {
	SessionExists(ctx context.Context, name string) bool
	CreateSession(ctx context.Context, name, dir string, opts tmux.CreateOptions) (tmux.Session, error)
	KillSession(ctx context.Context, name string) error
	SwitchClient(ctx context.Context, name string) error
	Attach(ctx context.Context, name string) error
	IsInsideTmux() bool
	SendKeys(ctx context.Context, target string, p tmux.Payload) error
	CapturePane(ctx context.Context, target string, tailLines int) (string, error)
	ListSessions(ctx context.Context) ([]tmux.SessionInfo, error)
	ListPanes(ctx context.Context, session string) ([]tmux.Pane, error)
	ResolvePane(ctx context.Context, session string, index int) (tmux.Pane, error)
	ListClients(ctx context.Context, session string) ([]string, error)
	PipePane(ctx context.Context, target, path string) error
	DescendantArgs(ctx context.Context, pid int) []string
}

// Worktrees is the worktree lifecycle manager. *worktree.Manager satisfies it.
type Worktrees interface {
	Ensure(ctx context.Context, repo scanner.Repo, branch string, opts worktree.EnsureOptions) (worktree.Result, error)
	Delete(ctx context.Context, repo scanner.Repo, branch string, opts worktree.DeleteOptions) (string, error)
	ListOrphans(ctx context.Context, repos []scanner.Repo) iter.Seq[worktree.Orphan]
	RemoveOrphan(ctx context.Context, o worktree.Orphan) error
}

// VCS is the read side of git used for branch listings. *git.Git satisfies it.
type VCS interface {
	DefaultBranch(ctx context.Context) string
	Branches(ctx context.Context) ([]string, error)
	RemoteBranches(ctx context.Context) (map[string]string, error)
	WorktreeList(ctx context.Context) ([]git.Worktree, error)
	WorktreePrune(ctx context.Context) error
	Status(ctx context.Context, path string) (*git.StatusSummary, error)
}

// Waiter runs a wait, optionally drawing progress. The default runs it
// bare.
type Waiter func(ctx context.Context, label string, timeout time.Duration, run func(ctx context.Context, onPoll func(wait.Observation)) (wait.Result, error)) (wait.Result, error)

type Service struct {
	Mux       Multiplexer
	Worktrees Worktrees
	VCS       func(repoPath string) VCS
	// Repos lists the repositories under the configured search dirs. It is
	// called at most once per operation.
	Repos      func() []scanner.Repo
	Recent     *recent.Store
	Config     *config.Config
	Logger     *log.Logger
	LogPath    func(session string) string
	IsTerminal func() bool
	Waiter     Waiter
}

func NewService(mux Multiplexer, wts Worktrees, vcs func(string) VCS, cfg *config.Config, store *recent.Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Service{
		Mux:        mux,
		Worktrees:  wts,
		VCS:        vcs,
		Repos:      func() []scanner.Repo { return scanner.ScanRepos(cfg.SearchDirs) },
		Recent:     store,
		Config:     cfg,
		Logger:     logger,
		LogPath:    xdg.SessionLog,
		IsTerminal: func() bool { return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) },
	}
}

// Target is a resolved (repository, branch) pair. Branch is empty for the
// repository's default branch.
type Target struct {
	Repo          scanner.Repo
	Branch        string
	DefaultBranch string
	Session       string
}

// DisplayBranch is Branch, or the default branch's name.
func (t Target) DisplayBranch() string {
	if t.Branch == "" {
		return t.DefaultBranch
	}
	return t.Branch
}

func (s *Service) resolve(ctx context.Context, repoName, branch string) (Target, error) {
	repo, err := scanner.Find(s.Repos(), repoName)
	if err != nil {
		return Target{}, err
	}
	return s.target(ctx, repo, branch), nil
}

func (s *Service) target(ctx context.Context, repo scanner.Repo, branch string) Target {
	def := s.VCS(repo.Path).DefaultBranch(ctx)
	if branch == def {
		branch = ""
	}
	return Target{
		Repo:          repo,
		Branch:        branch,
		DefaultBranch: def,
		Session:       naming.SessionName(repo.Name, branch),
	}
}

// worktreePath is where t is checked out, or "" when it is not.
func (s *Service) worktreePath(ctx context.Context, t Target) (string, error) {
	if t.Branch == "" {
		return t.Repo.Path, nil
	}
	wts, err := s.VCS(t.Repo.Path).WorktreeList(ctx)
	if err != nil {
		return "", err
	}
	for _, wt := range wts {
		if wt.Branch == t.Branch && !wt.Bare {
			return wt.Path, nil
		}
	}
	return "", nil
}

func (s *Service) rememberRecent(t Target, path string) {
	if s.Recent == nil {
		return
	}
	e := recent.Entry{
		Repo:     t.Repo.Name,
		RepoPath: t.Repo.Path,
		Branch:   t.Branch,
		Session:  t.Session,
		Path:     path,
	}
	if err := s.Recent.Update(func(r *recent.Store) { r.Add(e) }); err != nil {
		s.Logger.Warn("save recent targets", "err", err)
	}
}

func (s *Service) forgetRecent(t Target) {
	if s.Recent == nil {
		return
	}
	if err := s.Recent.Update(func(r *recent.Store) { r.Remove(t.Repo.Path, t.Branch) }); err != nil {
		s.Logger.Warn("save recent targets", "err", err)
	}
}
