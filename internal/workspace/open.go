package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/nicobailon/kiosk/internal/errs"
	"github.com/nicobailon/kiosk/internal/tmux"
	"github.com/nicobailon/kiosk/internal/worktree"
)

type OpenOptions struct {
	Branch string
	// NewBranch creates this branch from Base; Branch must be empty.
	NewBranch string
	Base      string
	Run       string
	Keys      string
	Text      string
	Pane      int
	NoSwitch  bool
	Wait      bool
	// WaitTimeout of zero falls back to wait.timeout from the config.
	WaitTimeout time.Duration
	WaitPane    int
	Log         bool
}

type OpenResult struct {
	Repo            string      `json:"repo" yaml:"repo"`
	Branch          string      `json:"branch" yaml:"branch"`
	Session         string      `json:"session" yaml:"session"`
	Path            string      `json:"path" yaml:"path"`
	CreatedWorktree bool        `json:"created_worktree" yaml:"created_worktree"`
	CreatedSession  bool        `json:"created_session" yaml:"created_session"`
	Sent            string      `json:"sent,omitempty" yaml:"sent,omitempty"`
	LogPath         string      `json:"log_path,omitempty" yaml:"log_path,omitempty"`
	Wait            *WaitResult `json:"wait,omitempty" yaml:"wait,omitempty"`
	Switched        bool        `json:"switched" yaml:"switched"`
}

func (o OpenOptions) payload() (*tmux.Payload, error) {
	var set []tmux.Payload
	if o.Run != "" {
		set = append(set, tmux.Command(o.Run))
	}
	if o.Keys != "" {
		set = append(set, tmux.Keys(o.Keys))
	}
	if o.Text != "" {
		set = append(set, tmux.Text(o.Text))
	}
	switch len(set) {
	case 0:
		return nil, nil
	case 1:
		return &set[0], nil
	default:
		return nil, errs.New(errs.InvalidArgument, "--run, --keys and --text are mutually exclusive")
	}
}

func (o OpenOptions) validate() error {
	switch {
	case o.Branch != "" && o.NewBranch != "":
		return errs.New(errs.InvalidArgument, "a branch argument and --new-branch are mutually exclusive")
	case o.NewBranch != "" && o.Base == "":
		return errs.New(errs.InvalidArgument, "--new-branch requires --base")
	case o.Base != "" && o.NewBranch == "":
		return errs.New(errs.InvalidArgument, "--base requires --new-branch")
	case o.WaitTimeout < 0:
		return errs.New(errs.InvalidArgument, "--wait-timeout must not be negative")
	}
	return nil
}

// Open brings up the session for (repo, branch): an existing session is
// reused untouched; otherwise the worktree is ensured and a session
// created in it. Then it optionally pipes output to a log, sends a payload,
// waits, and switches the client to the session.
func (s *Service) Open(ctx context.Context, repoName string, opts OpenOptions) (OpenResult, error) {
	if err := opts.validate(); err != nil {
		return OpenResult{}, err
	}
	payload, err := opts.payload()
	if err != nil {
		return OpenResult{}, err
	}
	inside := s.Mux.IsInsideTmux()
	if !opts.NoSwitch && !inside && !s.IsTerminal() {
		return OpenResult{}, errs.New(errs.InvalidArgument, "not inside tmux, use --no-switch")
	}

	branch := opts.Branch
	if opts.NewBranch != "" {
		branch = opts.NewBranch
	}
	t, err := s.resolve(ctx, repoName, branch)
	if err != nil {
		return OpenResult{}, err
	}
	if opts.NewBranch != "" && t.Branch == "" {
		return OpenResult{}, errs.New(errs.InvalidArgument, "branch %q already exists in %s", opts.NewBranch, t.Repo.Name)
	}
	res := OpenResult{Repo: t.Repo.Name, Branch: t.DisplayBranch(), Session: t.Session}
	log := s.Logger.With("repo", t.Repo.Name, "branch", res.Branch, "session", t.Session)

	if opts.NewBranch == "" && s.Mux.SessionExists(ctx, t.Session) {
		log.Debug("session exists, reusing")
		if res.Path, err = s.worktreePath(ctx, t); err != nil {
			return res, err
		}
	} else {
		if err := ctx.Err(); err != nil {
			return res, errs.Wrap(errs.Cancelled, err, "open cancelled")
		}
		dir := t.Repo.Path
		if t.Branch != "" {
			ensure := worktree.EnsureOptions{}
			if opts.NewBranch != "" {
				ensure = worktree.EnsureOptions{NewBranch: true, Base: opts.Base}
			}
			wt, err := s.Worktrees.Ensure(ctx, t.Repo, t.Branch, ensure)
			if err != nil {
				return res, err
			}
			dir, res.CreatedWorktree = wt.Path, wt.Created
		}
		res.Path = dir

		split := ""
		if s.Config != nil {
			split = s.Config.Session.SplitCommand
		}
		_, err := s.Mux.CreateSession(ctx, t.Session, dir, tmux.CreateOptions{SplitCommand: split})
		switch {
		case err == nil:
			res.CreatedSession = true
			log.Info("created session", "dir", dir)
		case errors.Is(err, tmux.ErrDuplicateSession) && s.Mux.SessionExists(ctx, t.Session):
			log.Debug("lost session creation race, reusing")
		case errors.Is(err, tmux.ErrDuplicateSession):
			return res, errs.Wrap(errs.SessionCreateFailed, err, "create session %s", t.Session)
		default:
			// The worktree stays; a retried open reuses it.
			return res, err
		}
	}

	if opts.Log {
		path := s.LogPath(t.Session)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return res, errs.Wrap(errs.Internal, err, "create log dir")
		}
		pane, err := s.Mux.ResolvePane(ctx, t.Session, 0)
		if err != nil {
			return res, err
		}
		if err := s.Mux.PipePane(ctx, pane.ID, path); err != nil {
			return res, err
		}
		res.LogPath = path
	}

	if payload != nil {
		pane, err := s.Mux.ResolvePane(ctx, t.Session, opts.Pane)
		if err != nil {
			return res, err
		}
		if err := s.Mux.SendKeys(ctx, pane.ID, *payload); err != nil {
			return res, err
		}
		res.Sent = payload.Kind.String()
		log.Debug("sent payload", "kind", payload.Kind, "pane", pane.ID)
	}

	s.rememberRecent(t, res.Path)

	if opts.Wait {
		timeout := opts.WaitTimeout
		if timeout == 0 && s.Config != nil {
			timeout = s.Config.Wait.Timeout
		}
		w, err := s.waitOn(ctx, t.Session, WaitOptions{
			Pane:           opts.WaitPane,
			Timeout:        timeout,
			RequireRunning: payload != nil,
		})
		res.Wait = &w
		if err != nil {
			return res, err
		}
	}

	if opts.NoSwitch {
		return res, nil
	}
	if inside {
		err = s.Mux.SwitchClient(ctx, t.Session)
	} else {
		err = s.Mux.Attach(ctx, t.Session)
	}
	if err != nil {
		return res, err
	}
	res.Switched = true
	return res, nil
}

type SendResult struct {
	Session string `json:"session" yaml:"session"`
	Pane    int    `json:"pane" yaml:"pane"`
	PaneID  string `json:"pane_id" yaml:"pane_id"`
	Kind    string `json:"kind" yaml:"kind"`
}

// Send delivers p to the pane-th pane of the target's live session.
func (s *Service) Send(ctx context.Context, repoName, branch string, p tmux.Payload, pane int) (SendResult, error) {
	if p.Value == "" {
		return SendResult{}, errs.New(errs.InvalidArgument, "nothing to send")
	}
	t, err := s.resolve(ctx, repoName, branch)
	if err != nil {
		return SendResult{}, err
	}
	if !s.Mux.SessionExists(ctx, t.Session) {
		return SendResult{}, errs.New(errs.SessionNotFound, "session %s not found (run kiosk open %s %s first)", t.Session, t.Repo.Name, t.DisplayBranch())
	}
	target, err := s.Mux.ResolvePane(ctx, t.Session, pane)
	if err != nil {
		return SendResult{}, err
	}
	if err := s.Mux.SendKeys(ctx, target.ID, p); err != nil {
		return SendResult{}, err
	}
	s.Logger.Debug("sent payload", "session", t.Session, "pane", target.ID, "kind", p.Kind)
	return SendResult{Session: t.Session, Pane: target.Index, PaneID: target.ID, Kind: p.Kind.String()}, nil
}
