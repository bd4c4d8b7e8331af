package git

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nicobailon/kiosk/internal/errs"
	"github.com/nicobailon/kiosk/internal/shell"
)

const defaultBackoff = 250 * time.Millisecond

type Git struct {
	RepoRoot string
	Cmd      shell.Commander
	// Backoff is the pause before the single retry of a lock-contended command.
	Backoff time.Duration
	Log     *log.Logger
}

func New(root string, cmd shell.Commander, logger *log.Logger) *Git {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Git{RepoRoot: root, Cmd: cmd, Backoff: defaultBackoff, Log: logger}
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	return g.runIn(ctx, g.RepoRoot, args...)
}

func (g *Git) runIn(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := g.Cmd.RunDir(ctx, dir, "git", args...)
	if err != nil && isLockContention(err) {
		g.Log.Debug("git lock contention, retrying", "dir", dir, "args", args)
		timer := time.NewTimer(g.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
		out, err = g.Cmd.RunDir(ctx, dir, "git", args...)
		if err != nil && isLockContention(err) {
			return string(out), errs.Wrap(errs.VcsOperationFailed,
				fmt.Errorf("%w: %w", errs.ErrLockContention, err), "git %s", subcommand(args))
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return string(out), ctx.Err()
		}
		return string(out), errs.Wrap(errs.VcsOperationFailed, err, "git %s", subcommand(args))
	}
	return string(out), nil
}

func subcommand(args []string) string {
	if len(args) > 2 {
		args = args[:2]
	}
	return strings.Join(args, " ")
}

var lockMessages = []string{
	"index.lock",
	"another git process seems to be running",
	".lock': file exists",
	"could not lock config file",
	"cannot lock ref",
}

func isLockContention(err error) bool {
	msg := strings.ToLower(shell.Stderr(err))
	for _, m := range lockMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// DefaultBranch is the branch checked out in the primary checkout, falling
// back to origin's HEAD and then "main" when HEAD is detached.
func (g *Git) DefaultBranch(ctx context.Context) string {
	if out, err := g.run(ctx, "symbolic-ref", "--quiet", "--short", "HEAD"); err == nil {
		if b := strings.TrimSpace(out); b != "" {
			return b
		}
	}
	if out, err := g.run(ctx, "symbolic-ref", "refs/remotes/origin/HEAD"); err == nil {
		return strings.TrimPrefix(strings.TrimSpace(out), "refs/remotes/origin/")
	}
	return "main"
}

func (g *Git) Branches(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, "branch", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	var branches []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
		if line != "" {
			branches = append(branches, line)
		}
	}
	return branches, nil
}

// RemoteBranches maps branch name to its remote-tracking ref ("feat" ->
// "origin/feat"). The first remote listed wins when several carry a branch.
func (g *Git) RemoteBranches(ctx context.Context) (map[string]string, error) {
	out, err := g.run(ctx, "for-each-ref", "--format=%(refname:short)", "refs/remotes")
	if err != nil {
		return nil, err
	}
	branches := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		ref := strings.TrimSpace(line)
		remote, name, ok := strings.Cut(ref, "/")
		if !ok || remote == "" || name == "" || name == "HEAD" {
			continue
		}
		if _, seen := branches[name]; !seen {
			branches[name] = ref
		}
	}
	return branches, nil
}

func (g *Git) BranchExists(ctx context.Context, name string) bool {
	_, err := g.run(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

type Worktree struct {
	Path     string
	Name     string
	Branch   string
	Head     string
	Detached bool
	Bare     bool
	Prunable bool
	Locked   bool

	// LockReason is "initializing" while `git worktree add` is still
	// populating the checkout.
	LockReason string
}

func (g *Git) WorktreeList(ctx context.Context) ([]Worktree, error) {
	out, err := g.run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return ParseWorktreeList(out), nil
}

// ParseWorktreeList parses `git worktree list --porcelain`. The first
// entry is always the primary checkout.
func ParseWorktreeList(out string) []Worktree {
	var wts []Worktree
	var current Worktree
	flush := func() {
		if current.Path != "" {
			wts = append(wts, current)
		}
		current = Worktree{}
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "worktree":
			flush()
			current.Path = filepath.Clean(value)
			current.Name = filepath.Base(current.Path)
		case "HEAD":
			current.Head = value
		case "branch":
			current.Branch = strings.TrimPrefix(value, "refs/heads/")
		case "detached":
			current.Detached = true
		case "bare":
			current.Bare = true
		case "prunable":
			current.Prunable = true
		case "locked":
			current.Locked = true
			current.LockReason = value
		case "":
			flush()
		}
	}
	flush()
	return wts
}

// WorktreeAdd checks out an existing local branch at path.
func (g *Git) WorktreeAdd(ctx context.Context, path, branch string) error {
	_, err := g.run(ctx, "worktree", "add", path, branch)
	return err
}

// WorktreeAddNew creates branch from base and checks it out at path.
func (g *Git) WorktreeAddNew(ctx context.Context, path, branch, base string) error {
	_, err := g.run(ctx, "worktree", "add", "-b", branch, path, base)
	return err
}

// WorktreeAddTracking creates a local branch tracking remoteRef and checks
// it out at path.
func (g *Git) WorktreeAddTracking(ctx context.Context, path, branch, remoteRef string) error {
	_, err := g.run(ctx, "worktree", "add", "--track", "-b", branch, path, remoteRef)
	return err
}

func (g *Git) WorktreeRemove(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove", path}
	if force {
		args = append(args, "--force")
	}
	_, err := g.run(ctx, args...)
	return err
}

func (g *Git) WorktreePrune(ctx context.Context) error {
	_, err := g.run(ctx, "worktree", "prune")
	return err
}

type StatusSummary struct {
	Staged    int
	Modified  int
	Untracked int
	Clean     bool
}

func (g *Git) Status(ctx context.Context, path string) (*StatusSummary, error) {
	out, err := g.runIn(ctx, path, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	summary := &StatusSummary{}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" || len(line) < 2 {
			continue
		}
		switch {
		case strings.HasPrefix(line, "??"):
			summary.Untracked++
		case line[1] != ' ':
			summary.Modified++
		default:
			summary.Staged++
		}
	}
	summary.Clean = summary.Staged == 0 && summary.Modified == 0 && summary.Untracked == 0
	return summary, nil
}
