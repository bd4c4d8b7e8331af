// Package worktree creates, deletes and audits the git worktrees kiosk
// keeps under each repository's .kiosk_worktrees storage root.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"

	"github.com/nicobailon/kiosk/internal/errs"
	"github.com/nicobailon/kiosk/internal/git"
	"github.com/nicobailon/kiosk/internal/naming"
	"github.com/nicobailon/kiosk/internal/scanner"
	"github.com/nicobailon/kiosk/internal/shell"
)

const (
	DefaultLockTimeout = 30 * time.Second
	lockRetryDelay     = 50 * time.Millisecond
	maxDirSuffix       = 999
)

// VCS is the slice of git the manager drives. *git.Git satisfies it.
type VCS interface {
	DefaultBranch(ctx context.Context) string
	BranchExists(ctx context.Context, name string) bool
	RemoteBranches(ctx context.Context) (map[string]string, error)
	WorktreeList(ctx context.Context) ([]git.Worktree, error)
	WorktreeAdd(ctx context.Context, path, branch string) error
	WorktreeAddNew(ctx context.Context, path, branch, base string) error
	WorktreeAddTracking(ctx context.Context, path, branch, remoteRef string) error
	WorktreeRemove(ctx context.Context, path string, force bool) error
	WorktreePrune(ctx context.Context) error
	Status(ctx context.Context, path string) (*git.StatusSummary, error)
}

type SessionChecker interface {
	SessionExists(ctx context.Context, name string) bool
}

type Manager struct {
	Open     func(repoPath string) VCS
	Sessions SessionChecker
	Pending  *Ledger
	// LockTimeout bounds the wait for another process's ensure of the same target.
	LockTimeout time.Duration
	Log         *log.Logger
}

func NewManager(cmd shell.Commander, sessions SessionChecker, pending *Ledger, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Manager{
		Open:        func(root string) VCS { return git.New(root, cmd, logger) },
		Sessions:    sessions,
		Pending:     pending,
		LockTimeout: DefaultLockTimeout,
		Log:         logger,
	}
}

type EnsureOptions struct {
	// NewBranch creates the branch from Base instead of resolving an
	// existing one.
	NewBranch bool
	Base      string
}

type Result struct {
	Path    string `json:"path" yaml:"path"`
	Created bool   `json:"created" yaml:"created"`
}

// Ensure returns the worktree checked out on branch, creating it when
// missing. Creation runs under an flock keyed by (repo, branch), so
// concurrent callers for one target end up sharing a single worktree.
func (m *Manager) Ensure(ctx context.Context, repo scanner.Repo, branch string, opts EnsureOptions) (Result, error) {
	if branch == "" {
		return Result{}, errs.New(errs.InvalidArgument, "branch name is empty")
	}
	vcs := m.Open(repo.Path)
	if !opts.NewBranch {
		// A checkout still being populated counts as missing here; the
		// lock below waits for its creator to finish.
		path, ok, err := m.findWorktree(ctx, vcs, branch)
		if err != nil && !errors.Is(err, errInitializing) {
			return Result{}, err
		}
		if ok {
			return Result{Path: path}, nil
		}
	}

	unlock, err := m.lock(ctx, repo, branch)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	if opts.NewBranch {
		return m.createBranch(ctx, vcs, repo, branch, opts.Base)
	}
	// Another process may have finished while we waited for the lock.
	path, ok, err := m.findWorktree(ctx, vcs, branch)
	if errors.Is(err, errInitializing) {
		return Result{}, errs.New(errs.WorktreeBusy,
			"worktree for %s in %s is still being created by another process", branch, repo.Name)
	}
	if err != nil {
		return Result{}, err
	}
	if ok {
		m.Log.Debug("worktree appeared while waiting for lock", "repo", repo.Name, "branch", branch)
		return Result{Path: path}, nil
	}

	dir, err := freeDir(naming.WorktreeDir(repo.Path, repo.Name, branch))
	if err != nil {
		return Result{}, err
	}
	switch {
	case vcs.BranchExists(ctx, branch):
		err = vcs.WorktreeAdd(ctx, dir, branch)
	default:
		remotes, rerr := vcs.RemoteBranches(ctx)
		if rerr != nil {
			return Result{}, rerr
		}
		ref, ok := remotes[branch]
		if !ok {
			return Result{}, errs.New(errs.BranchNotFound,
				"branch %q not found in %s (use --new-branch %s --base <ref> to create it)", branch, repo.Name, branch)
		}
		err = vcs.WorktreeAddTracking(ctx, dir, branch, ref)
	}
	if err != nil {
		return Result{}, err
	}
	m.Log.Info("created worktree", "repo", repo.Name, "branch", branch, "path", dir)
	return Result{Path: dir, Created: true}, nil
}

func (m *Manager) createBranch(ctx context.Context, vcs VCS, repo scanner.Repo, branch, base string) (Result, error) {
	if base == "" {
		return Result{}, errs.New(errs.InvalidArgument, "--new-branch requires --base")
	}
	remotes, err := vcs.RemoteBranches(ctx)
	if err != nil {
		return Result{}, err
	}
	if _, remote := remotes[branch]; remote || vcs.BranchExists(ctx, branch) {
		return Result{}, errs.New(errs.InvalidArgument, "branch %q already exists in %s", branch, repo.Name)
	}
	if !vcs.BranchExists(ctx, base) && !hasValue(remotes, base) {
		return Result{}, errs.New(errs.BranchNotFound, "base %q not found in %s", base, repo.Name)
	}
	dir, err := freeDir(naming.WorktreeDir(repo.Path, repo.Name, branch))
	if err != nil {
		return Result{}, err
	}
	if err := vcs.WorktreeAddNew(ctx, dir, branch, base); err != nil {
		return Result{}, err
	}
	m.Log.Info("created branch and worktree", "repo", repo.Name, "branch", branch, "base", base, "path", dir)
	return Result{Path: dir, Created: true}, nil
}

func hasValue(m map[string]string, v string) bool {
	for _, x := range m {
		if x == v {
			return true
		}
	}
	return false
}

// errInitializing reports a worktree on the branch that `git worktree add`
// has registered but not finished checking out.
var errInitializing = errors.New("worktree is still initializing")

// findWorktree looks for a live worktree on branch. Stale registrations
// whose directory vanished are pruned so the branch can be checked out again.
func (m *Manager) findWorktree(ctx context.Context, vcs VCS, branch string) (string, bool, error) {
	wts, err := vcs.WorktreeList(ctx)
	if err != nil {
		return "", false, err
	}
	stale := false
	for _, wt := range wts {
		if wt.Bare || wt.Branch != branch {
			continue
		}
		if wt.Locked && wt.LockReason == "initializing" {
			return "", false, errInitializing
		}
		if wt.Prunable || !exists(wt.Path) {
			stale = true
			continue
		}
		return wt.Path, true, nil
	}
	if stale {
		m.Log.Debug("pruning stale worktree registration", "branch", branch)
		if err := vcs.WorktreePrune(ctx); err != nil {
			return "", false, err
		}
	}
	return "", false, nil
}

func (m *Manager) lock(ctx context.Context, repo scanner.Repo, branch string) (func(), error) {
	path := naming.LockPath(repo.Path, repo.Name, branch)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "create lock dir")
	}
	timeout := m.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fl := flock.New(path)
	ok, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if err == nil && ok {
		return func() { _ = fl.Unlock() }, nil
	}
	switch {
	case ctx.Err() != nil:
		return nil, errs.Wrap(errs.Cancelled, ctx.Err(), "waiting for worktree lock")
	case lockCtx.Err() != nil:
		return nil, errs.New(errs.TimedOut, "timed out after %s waiting for %s", timeout, path)
	case err != nil:
		return nil, errs.Wrap(errs.Internal, err, "lock %s", path)
	default:
		return nil, errs.New(errs.Internal, "could not lock %s", path)
	}
}

// freeDir returns want, or the first of want-2 .. want-999 that does not
// exist yet.
func freeDir(want string) (string, error) {
	if !exists(want) {
		return want, nil
	}
	for i := 2; i <= maxDirSuffix; i++ {
		candidate := fmt.Sprintf("%s-%d", want, i)
		if !exists(candidate) {
			return candidate, nil
		}
	}
	return "", errs.New(errs.Internal, "no free worktree directory for %s", want)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

type DeleteOptions struct {
	// Force removes dirty worktrees.
	Force bool
	// IgnoreSessions skips the live-session check.
	IgnoreSessions bool
}

// Delete removes the worktree for branch and prunes git's bookkeeping. The
// branch ref itself is kept. It returns the removed path.
func (m *Manager) Delete(ctx context.Context, repo scanner.Repo, branch string, opts DeleteOptions) (string, error) {
	vcs := m.Open(repo.Path)
	if branch == "" || branch == vcs.DefaultBranch(ctx) {
		return "", errs.New(errs.InvalidArgument, "cannot delete the primary checkout of %s", repo.Name)
	}
	wts, err := vcs.WorktreeList(ctx)
	if err != nil {
		return "", err
	}
	var target *git.Worktree
	for i, wt := range wts {
		if wt.Branch == branch && !wt.Bare {
			target = &wts[i]
			break
		}
	}
	if target == nil {
		return "", errs.New(errs.BranchNotFound, "no worktree for branch %q in %s", branch, repo.Name)
	}
	if len(wts) > 0 && target.Path == wts[0].Path {
		return "", errs.New(errs.InvalidArgument, "cannot delete the primary checkout of %s", repo.Name)
	}

	session := naming.SessionName(repo.Name, branch)
	if !opts.IgnoreSessions && m.Sessions != nil && m.Sessions.SessionExists(ctx, session) {
		return "", errs.New(errs.WorktreeBusy, "session %s still uses %s", session, target.Path)
	}

	if m.Pending != nil {
		id, err := m.Pending.Begin(repo.Path, branch, target.Path)
		if err != nil {
			return "", err
		}
		m.Log.Debug("delete started", "op", id, "repo", repo.Name, "branch", branch)
		defer func() {
			if err := m.Pending.End(id); err != nil {
				m.Log.Warn("clear pending delete", "op", id, "err", err)
			}
		}()
	}

	if !exists(target.Path) {
		return target.Path, vcs.WorktreePrune(ctx)
	}
	if !opts.Force {
		st, err := vcs.Status(ctx, target.Path)
		if err != nil {
			return "", err
		}
		if !st.Clean {
			return "", errs.New(errs.WorktreeDirty,
				"%s has uncommitted changes (%d staged, %d modified, %d untracked); use --force",
				target.Path, st.Staged, st.Modified, st.Untracked)
		}
	}
	if err := vcs.WorktreeRemove(ctx, target.Path, opts.Force); err != nil {
		return "", err
	}
	if err := vcs.WorktreePrune(ctx); err != nil {
		return "", err
	}
	m.Log.Info("deleted worktree", "repo", repo.Name, "branch", branch, "path", target.Path)
	return target.Path, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
