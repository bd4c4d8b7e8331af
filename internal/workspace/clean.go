package workspace

import (
	"context"
	"errors"
	"os"

	"github.com/nicobailon/kiosk/internal/errs"
	"github.com/nicobailon/kiosk/internal/worktree"
)

type DeleteResult struct {
	Repo          string `json:"repo" yaml:"repo"`
	Branch        string `json:"branch" yaml:"branch"`
	Session       string `json:"session" yaml:"session"`
	Path          string `json:"path" yaml:"path"`
	KilledSession bool   `json:"killed_session" yaml:"killed_session"`
}

// Delete kills the target's session and removes its worktree. Without
// force it refuses dirty worktrees and sessions with attached clients.
func (s *Service) Delete(ctx context.Context, repoName, branch string, force bool) (DeleteResult, error) {
	t, err := s.resolve(ctx, repoName, branch)
	if err != nil {
		return DeleteResult{}, err
	}
	if t.Branch == "" {
		return DeleteResult{}, errs.New(errs.InvalidArgument, "cannot delete the primary checkout of %s", t.Repo.Name)
	}
	res := DeleteResult{Repo: t.Repo.Name, Branch: t.Branch, Session: t.Session}
	path, err := s.worktreePath(ctx, t)
	if err != nil {
		return res, err
	}
	if path == "" {
		return res, errs.New(errs.BranchNotFound, "no worktree for branch %q in %s", t.Branch, t.Repo.Name)
	}
	res.Path = path

	// Checked before the session goes so a refused delete leaves it running.
	if !force {
		if _, err := os.Stat(path); err == nil {
			st, err := s.VCS(t.Repo.Path).Status(ctx, path)
			if err != nil {
				return res, err
			}
			if !st.Clean {
				return res, errs.New(errs.WorktreeDirty,
					"%s has uncommitted changes (%d staged, %d modified, %d untracked); use --force",
					path, st.Staged, st.Modified, st.Untracked)
			}
		}
	}

	if s.Mux.SessionExists(ctx, t.Session) {
		clients, err := s.Mux.ListClients(ctx, t.Session)
		if err != nil {
			return res, err
		}
		if len(clients) > 0 && !force {
			return res, errs.New(errs.WorktreeBusy, "session %s has %d attached client(s); use --force", t.Session, len(clients))
		}
		if err := s.Mux.KillSession(ctx, t.Session); err != nil {
			return res, err
		}
		res.KilledSession = true
		s.Logger.Info("killed session", "session", t.Session)
	}

	if _, err := s.Worktrees.Delete(ctx, t.Repo, t.Branch, worktree.DeleteOptions{Force: force, IgnoreSessions: true}); err != nil {
		return res, err
	}
	if err := os.Remove(s.LogPath(t.Session)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.Logger.Warn("remove session log", "session", t.Session, "err", err)
	}
	s.forgetRecent(t)
	return res, nil
}

type CleanOptions struct {
	DryRun      bool
	Yes         bool
	KillOrphans bool
	// Confirm is shown what was found and decides whether to remove it.
	// Nil means no one can be asked, and nothing is removed without Yes.
	Confirm func(found CleanResult) bool
}

type CleanResult struct {
	Orphans  []worktree.Orphan `json:"orphans" yaml:"orphans"`
	Sessions []SessionRow      `json:"orphaned_sessions" yaml:"orphaned_sessions"`
	Removed  int               `json:"removed" yaml:"removed"`
	Killed   int               `json:"killed" yaml:"killed"`
	// Applied is false when nothing was removed because of --dry-run or a
	// declined or impossible confirmation.
	Applied bool `json:"applied" yaml:"applied"`
}

// Clean finds orphaned worktrees (and, with KillOrphans, orphaned
// sessions) and removes them once confirmed. Every repository is pruned
// afterwards.
func (s *Service) Clean(ctx context.Context, opts CleanOptions) (CleanResult, error) {
	repos := s.Repos()
	res := CleanResult{Orphans: []worktree.Orphan{}, Sessions: []SessionRow{}}
	for o := range s.Worktrees.ListOrphans(ctx, repos) {
		res.Orphans = append(res.Orphans, o)
	}
	if err := ctx.Err(); err != nil {
		return res, errs.Wrap(errs.Cancelled, err, "clean cancelled")
	}
	if opts.KillOrphans {
		rows, err := s.Sessions(ctx)
		if err != nil {
			return res, err
		}
		for _, r := range rows {
			if r.Orphaned {
				res.Sessions = append(res.Sessions, r)
			}
		}
	}

	total := len(res.Orphans) + len(res.Sessions)
	if total == 0 || opts.DryRun {
		return res, nil
	}
	if !opts.Yes && (opts.Confirm == nil || !opts.Confirm(res)) {
		return res, nil
	}
	res.Applied = true

	var failed []error
	for _, o := range res.Orphans {
		if err := s.Worktrees.RemoveOrphan(ctx, o); err != nil {
			s.Logger.Warn("remove orphan", "path", o.Path, "err", err)
			failed = append(failed, err)
			continue
		}
		res.Removed++
	}
	for _, r := range res.Sessions {
		if err := s.Mux.KillSession(ctx, r.Name); err != nil {
			s.Logger.Warn("kill orphaned session", "session", r.Name, "err", err)
			failed = append(failed, err)
			continue
		}
		res.Killed++
	}
	for _, repo := range repos {
		if err := s.VCS(repo.Path).WorktreePrune(ctx); err != nil {
			s.Logger.Warn("prune worktrees", "repo", repo.Name, "err", err)
		}
	}
	s.Logger.Info("clean finished", "removed", res.Removed, "killed", res.Killed, "failed", len(failed))
	return res, errors.Join(failed...)
}
