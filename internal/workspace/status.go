package workspace

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/nicobailon/kiosk/internal/agent"
	"github.com/nicobailon/kiosk/internal/errs"
	"github.com/nicobailon/kiosk/internal/tmux"
	"github.com/nicobailon/kiosk/internal/wait"
)

const defaultStatusLines = 50

// AutoPane asks for the pane that most needs attention.
const AutoPane = -1

type PaneStatus struct {
	Index   int         `json:"index" yaml:"index"`
	ID      string      `json:"id" yaml:"id"`
	Window  int         `json:"window" yaml:"window"`
	Command string      `json:"command" yaml:"command"`
	PID     int         `json:"pid" yaml:"pid"`
	Agent   agent.Kind  `json:"agent,omitempty" yaml:"agent,omitempty"`
	State   agent.State `json:"state" yaml:"state"`
	Dead    bool        `json:"dead" yaml:"dead"`
}

func (s *Service) statusLines(n int) int {
	switch {
	case n > 0:
		return n
	case s.Config != nil && s.Config.Status.Lines > 0:
		return s.Config.Status.Lines
	default:
		return defaultStatusLines
	}
}

func (s *Service) inspectPane(ctx context.Context, p tmux.Pane, lines int) (PaneStatus, string, error) {
	capture, err := s.Mux.CapturePane(ctx, p.ID, lines)
	if err != nil {
		return PaneStatus{}, "", err
	}
	var desc []string
	if !p.Dead && p.PID > 0 && agent.IsHost(p.Command) {
		desc = s.Mux.DescendantArgs(ctx, p.PID)
	}
	st := agent.Assess(agent.Snapshot{Command: p.Command, Descendants: desc, Capture: capture, Dead: p.Dead})
	return PaneStatus{
		Index:   p.Index,
		ID:      p.ID,
		Window:  p.Window,
		Command: p.Command,
		PID:     p.PID,
		Agent:   st.Agent,
		State:   st.State,
		Dead:    st.Dead,
	}, capture, nil
}

// mostUrgent picks the live pane with the highest attention, the first one
// on ties. With every pane dead it picks the first.
func mostUrgent(panes []PaneStatus) int {
	var live []agent.State
	for _, p := range panes {
		if !p.Dead {
			live = append(live, p.State)
		}
	}
	want := agent.Attention(agent.MostUrgent(live...))
	for i, p := range panes {
		if !p.Dead && agent.Attention(p.State) == want {
			return i
		}
	}
	return 0
}

type StatusOptions struct {
	Pane  int
	Lines int
}

type StatusResult struct {
	Repo     string      `json:"repo" yaml:"repo"`
	Branch   string      `json:"branch" yaml:"branch"`
	Session  string      `json:"session" yaml:"session"`
	Path     string      `json:"path,omitempty" yaml:"path,omitempty"`
	Live     bool        `json:"live" yaml:"live"`
	Attached bool        `json:"attached" yaml:"attached"`
	Clients  int         `json:"clients" yaml:"clients"`
	Pane     *PaneStatus `json:"pane,omitempty" yaml:"pane,omitempty"`
	Output   string      `json:"output" yaml:"output"`
}

// Status classifies one pane of the target's session. Without a live
// session it reports the tail of the session log, if one was kept.
func (s *Service) Status(ctx context.Context, repoName, branch string, opts StatusOptions) (StatusResult, error) {
	t, err := s.resolve(ctx, repoName, branch)
	if err != nil {
		return StatusResult{}, err
	}
	lines := s.statusLines(opts.Lines)
	res := StatusResult{Repo: t.Repo.Name, Branch: t.DisplayBranch(), Session: t.Session}
	res.Path, err = s.worktreePath(ctx, t)
	if err != nil {
		return StatusResult{}, err
	}

	if !s.Mux.SessionExists(ctx, t.Session) {
		out, err := s.readLog(t.Session, lines)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return StatusResult{}, errs.New(errs.SessionNotFound, "session %s not found and no log kept (open with --log)", t.Session)
			}
			return StatusResult{}, errs.Wrap(errs.Internal, err, "read log")
		}
		res.Output = out
		return res, nil
	}
	res.Live = true

	clients, err := s.Mux.ListClients(ctx, t.Session)
	if err != nil {
		return StatusResult{}, err
	}
	res.Clients = len(clients)
	res.Attached = len(clients) > 0

	panes, err := s.Mux.ListPanes(ctx, t.Session)
	if err != nil {
		return StatusResult{}, err
	}
	if opts.Pane != AutoPane {
		if opts.Pane < 0 || opts.Pane >= len(panes) {
			return StatusResult{}, errs.New(errs.PaneNotFound, "pane %d not found in session %s (%d panes)", opts.Pane, t.Session, len(panes))
		}
		panes = panes[opts.Pane : opts.Pane+1]
	}
	statuses := make([]PaneStatus, 0, len(panes))
	captures := make([]string, 0, len(panes))
	for _, p := range panes {
		st, capture, err := s.inspectPane(ctx, p, lines)
		if err != nil {
			return StatusResult{}, err
		}
		statuses = append(statuses, st)
		captures = append(captures, capture)
	}
	if len(statuses) == 0 {
		return res, nil
	}
	i := mostUrgent(statuses)
	res.Pane = &statuses[i]
	res.Output = captures[i]
	return res, nil
}

func (s *Service) readLog(session string, lines int) (string, error) {
	data, err := os.ReadFile(s.LogPath(session))
	if err != nil {
		return "", err
	}
	return tmux.TailLines(ansi.Strip(string(data)), lines), nil
}

// Panes lists every pane of the target's session with its classification.
func (s *Service) Panes(ctx context.Context, repoName, branch string) ([]PaneStatus, error) {
	t, err := s.resolve(ctx, repoName, branch)
	if err != nil {
		return nil, err
	}
	if !s.Mux.SessionExists(ctx, t.Session) {
		return nil, errs.New(errs.SessionNotFound, "session %s not found", t.Session)
	}
	panes, err := s.Mux.ListPanes(ctx, t.Session)
	if err != nil {
		return nil, err
	}
	out := make([]PaneStatus, 0, len(panes))
	for _, p := range panes {
		st, _, err := s.inspectPane(ctx, p, s.statusLines(0))
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

type WaitOptions struct {
	Pane     int
	Timeout  time.Duration
	Interval time.Duration
	// RequireRunning is set after sending a command; see wait.Options.
	RequireRunning bool
}

type WaitResult struct {
	Session string      `json:"session" yaml:"session"`
	State   agent.State `json:"state" yaml:"state"`
	Dead    bool        `json:"dead" yaml:"dead"`
	Polls   int         `json:"polls" yaml:"polls"`
	Elapsed float64     `json:"elapsed_seconds" yaml:"elapsed_seconds"`
}

func (s *Service) Wait(ctx context.Context, repoName, branch string, opts WaitOptions) (WaitResult, error) {
	t, err := s.resolve(ctx, repoName, branch)
	if err != nil {
		return WaitResult{}, err
	}
	return s.waitOn(ctx, t.Session, opts)
}

func (s *Service) waitOn(ctx context.Context, session string, opts WaitOptions) (WaitResult, error) {
	if !s.Mux.SessionExists(ctx, session) {
		return WaitResult{}, errs.New(errs.SessionNotFound, "session %s not found", session)
	}
	if opts.Pane != AutoPane {
		if _, err := s.Mux.ResolvePane(ctx, session, opts.Pane); err != nil {
			return WaitResult{}, err
		}
	}
	if opts.Timeout < 0 {
		return WaitResult{}, errs.New(errs.InvalidArgument, "timeout must not be negative")
	}
	interval := opts.Interval
	if interval <= 0 && s.Config != nil {
		interval = s.Config.Wait.PollInterval
	}
	lines := s.statusLines(0)

	probe := func(ctx context.Context) (wait.Observation, error) {
		panes, err := s.Mux.ListPanes(ctx, session)
		if err != nil {
			return wait.Observation{}, err
		}
		if opts.Pane != AutoPane {
			if opts.Pane >= len(panes) {
				return wait.Observation{}, errs.New(errs.PaneNotFound, "pane %d of %s is gone", opts.Pane, session)
			}
			panes = panes[opts.Pane : opts.Pane+1]
		}
		if len(panes) == 0 {
			return wait.Observation{State: agent.Unknown, Dead: true}, nil
		}
		statuses := make([]PaneStatus, 0, len(panes))
		for _, p := range panes {
			st, _, err := s.inspectPane(ctx, p, lines)
			if err != nil {
				return wait.Observation{}, err
			}
			statuses = append(statuses, st)
		}
		picked := statuses[mostUrgent(statuses)]
		return wait.Observation{State: picked.State, Dead: picked.Dead}, nil
	}

	wopts := wait.Options{Timeout: opts.Timeout, Interval: interval, RequireRunning: opts.RequireRunning}
	run := func(ctx context.Context, onPoll func(wait.Observation)) (wait.Result, error) {
		o := wopts
		o.OnPoll = onPoll
		return wait.Wait(ctx, probe, o)
	}
	s.Logger.Debug("wait", "session", session, "pane", opts.Pane, "timeout", opts.Timeout, "require_running", opts.RequireRunning)

	var res wait.Result
	var err error
	if s.Waiter != nil {
		res, err = s.Waiter(ctx, session, opts.Timeout, run)
	} else {
		res, err = run(ctx, nil)
	}
	out := WaitResult{
		Session: session,
		State:   res.State,
		Dead:    res.Dead,
		Polls:   res.Polls,
		Elapsed: res.Elapsed.Seconds(),
	}
	s.Logger.Debug("wait finished", "session", session, "state", res.State, "dead", res.Dead, "polls", res.Polls, "err", err)
	return out, err
}
