package workspace

import (
	"context"
	"sort"
	"time"

	"github.com/nicobailon/kiosk/internal/agent"
	"github.com/nicobailon/kiosk/internal/naming"
	"github.com/nicobailon/kiosk/internal/scanner"
)

func (s *Service) ListRepos() []scanner.Repo {
	return s.Repos()
}

type SessionRow struct {
	Name         string    `json:"name" yaml:"name"`
	Repo         string    `json:"repo" yaml:"repo"`
	Branch       string    `json:"branch,omitempty" yaml:"branch,omitempty"`
	Path         string    `json:"path,omitempty" yaml:"path,omitempty"`
	Attached     bool      `json:"attached" yaml:"attached"`
	Windows      int       `json:"windows" yaml:"windows"`
	LastActivity time.Time `json:"last_activity" yaml:"last_activity"`
	// Orphaned sessions follow a repo's naming scheme but no checkout of
	// that repo maps to them any more.
	Orphaned bool `json:"orphaned" yaml:"orphaned"`
}

type checkout struct {
	branch string
	path   string
}

// checkouts maps the session name of every checkout of repo to it.
func (s *Service) checkouts(ctx context.Context, repo scanner.Repo) map[string]checkout {
	vcs := s.VCS(repo.Path)
	def := vcs.DefaultBranch(ctx)
	out := map[string]checkout{
		naming.SessionName(repo.Name, ""): {branch: def, path: repo.Path},
	}
	wts, err := vcs.WorktreeList(ctx)
	if err != nil {
		s.Logger.Warn("list worktrees", "repo", repo.Name, "err", err)
		return out
	}
	for i, wt := range wts {
		if i == 0 || wt.Bare || wt.Prunable || wt.Branch == "" || wt.Branch == def {
			continue
		}
		out[naming.SessionName(repo.Name, wt.Branch)] = checkout{branch: wt.Branch, path: wt.Path}
	}
	return out
}

// owner picks the repo whose naming scheme session follows. Longer names
// win so "app--api" is not claimed by "app" when both repos exist.
func owner(session string, repos []scanner.Repo) (scanner.Repo, bool) {
	var best scanner.Repo
	found := false
	for _, r := range repos {
		if !naming.BelongsTo(session, r.Name) {
			continue
		}
		if !found || len(r.Name) > len(best.Name) {
			best, found = r, true
		}
	}
	return best, found
}

// Sessions lists live sessions belonging to discovered repositories.
func (s *Service) Sessions(ctx context.Context) ([]SessionRow, error) {
	live, err := s.Mux.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	repos := s.Repos()
	known := map[string]map[string]checkout{}

	var rows []SessionRow
	for _, info := range live {
		repo, ok := owner(info.Name, repos)
		if !ok {
			continue
		}
		cos, seen := known[repo.Path]
		if !seen {
			cos = s.checkouts(ctx, repo)
			known[repo.Path] = cos
		}
		row := SessionRow{
			Name:         info.Name,
			Repo:         repo.Name,
			Attached:     info.Attached > 0,
			Windows:      info.Windows,
			LastActivity: info.LastActivity,
		}
		if co, ok := cos[info.Name]; ok {
			row.Branch, row.Path = co.branch, co.path
		} else {
			row.Orphaned = true
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows, nil
}

type BranchRow struct {
	Name     string      `json:"name" yaml:"name"`
	Current  bool        `json:"current" yaml:"current"`
	Worktree bool        `json:"worktree" yaml:"worktree"`
	Session  bool        `json:"session" yaml:"session"`
	Remote   bool        `json:"remote" yaml:"remote"`
	Path     string      `json:"path,omitempty" yaml:"path,omitempty"`
	State    agent.State `json:"state,omitempty" yaml:"state,omitempty"`
}

// Flags renders the row as the compact "*WSR" column.
func (b BranchRow) Flags() string {
	flag := func(on bool, c byte) byte {
		if on {
			return c
		}
		return ' '
	}
	return string([]byte{flag(b.Current, '*'), flag(b.Worktree, 'W'), flag(b.Session, 'S'), flag(b.Remote, 'R')})
}

// Branches lists local branches, then remote-only ones, with the
// worktree, session and agent state of each.
func (s *Service) Branches(ctx context.Context, repoName string) ([]BranchRow, error) {
	repo, err := scanner.Find(s.Repos(), repoName)
	if err != nil {
		return nil, err
	}
	vcs := s.VCS(repo.Path)
	def := vcs.DefaultBranch(ctx)
	local, err := vcs.Branches(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := vcs.RemoteBranches(ctx)
	if err != nil {
		return nil, err
	}
	paths := map[string]string{def: repo.Path}
	for _, co := range s.checkouts(ctx, repo) {
		paths[co.branch] = co.path
	}
	live := map[string]bool{}
	if sessions, err := s.Mux.ListSessions(ctx); err == nil {
		for _, info := range sessions {
			live[info.Name] = true
		}
	} else {
		s.Logger.Warn("list sessions", "err", err)
	}

	row := func(name string, isRemote bool) BranchRow {
		session := name
		if name == def {
			session = ""
		}
		session = naming.SessionName(repo.Name, session)
		r := BranchRow{Name: name, Current: name == def, Remote: isRemote, Session: live[session]}
		if path, ok := paths[name]; ok {
			r.Worktree = name != def
			r.Path = path
		}
		if r.Session {
			r.State = s.sessionState(ctx, session)
		}
		return r
	}

	var rows []BranchRow
	seen := map[string]bool{}
	sort.Slice(local, func(i, j int) bool {
		if (local[i] == def) != (local[j] == def) {
			return local[i] == def
		}
		return local[i] < local[j]
	})
	for _, b := range local {
		seen[b] = true
		rows = append(rows, row(b, false))
	}
	var remoteOnly []string
	for b := range remote {
		if !seen[b] {
			remoteOnly = append(remoteOnly, b)
		}
	}
	sort.Strings(remoteOnly)
	for _, b := range remoteOnly {
		rows = append(rows, row(b, true))
	}
	return rows, nil
}

// sessionState is the state of the session's most urgent pane, Unknown
// when it cannot be read.
func (s *Service) sessionState(ctx context.Context, session string) agent.State {
	panes, err := s.Mux.ListPanes(ctx, session)
	if err != nil || len(panes) == 0 {
		return agent.Unknown
	}
	statuses := make([]PaneStatus, 0, len(panes))
	for _, p := range panes {
		st, _, err := s.inspectPane(ctx, p, s.statusLines(0))
		if err != nil {
			return agent.Unknown
		}
		statuses = append(statuses, st)
	}
	return statuses[mostUrgent(statuses)].State
}
