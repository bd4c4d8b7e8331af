package tmux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nicobailon/kiosk/internal/errs"
	"github.com/nicobailon/kiosk/internal/shell"
)

// ErrDuplicateSession is returned by CreateSession when another process
// created a session of the same name first.
var ErrDuplicateSession = errors.New("duplicate session")

type Tmux struct {
	Cmd shell.Commander
	Log *log.Logger
	// ProcRoot is the procfs mount used for process-tree inspection.
	ProcRoot string
}

func New(cmd shell.Commander, logger *log.Logger) *Tmux {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Tmux{Cmd: cmd, Log: logger, ProcRoot: "/proc"}
}

// exact makes tmux match the session name literally instead of by prefix.
func exact(name string) string { return "=" + name }

func (t *Tmux) run(ctx context.Context, args ...string) (string, error) {
	out, err := t.Cmd.Run(ctx, "tmux", args...)
	if err != nil {
		if ctx.Err() != nil {
			return string(out), ctx.Err()
		}
		return string(out), err
	}
	return string(out), nil
}

func stderrHas(err error, needles ...string) bool {
	msg := strings.ToLower(shell.Stderr(err))
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}

func isNoServer(err error) bool {
	return stderrHas(err, "no server running", "error connecting to", "no sessions")
}

func isMissingSession(err error) bool {
	return isNoServer(err) || stderrHas(err, "can't find session", "session not found")
}

// targetError converts a tmux failure against target into a typed error.
func targetError(err error, target string) error {
	var kerr *errs.Error
	switch {
	case errors.As(err, &kerr), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case stderrHas(err, "can't find pane", "can't find window"):
		return errs.Wrap(errs.PaneNotFound, err, "pane %s not found", target)
	case isMissingSession(err):
		return errs.Wrap(errs.SessionNotFound, err, "session %s not found", strings.TrimPrefix(target, "="))
	default:
		return errs.Wrap(errs.MultiplexerFailed, err, "tmux")
	}
}

func (t *Tmux) SessionExists(ctx context.Context, name string) bool {
	_, err := t.run(ctx, "has-session", "-t", exact(name))
	return err == nil
}

type CreateOptions struct {
	// InitialCommand replaces the login shell of the first pane.
	InitialCommand string
	// SplitCommand, when set, runs in a second pane split to the right.
	SplitCommand string
}

type Session struct {
	Name string
	Dir  string
}

func (t *Tmux) CreateSession(ctx context.Context, name, dir string, opts CreateOptions) (Session, error) {
	args := []string{"new-session", "-d", "-s", name, "-c", dir}
	if opts.InitialCommand != "" {
		args = append(args, opts.InitialCommand)
	}
	if _, err := t.run(ctx, args...); err != nil {
		if stderrHas(err, "duplicate session") {
			return Session{}, fmt.Errorf("%s: %w", name, ErrDuplicateSession)
		}
		if ctx.Err() != nil {
			return Session{}, ctx.Err()
		}
		return Session{}, errs.Wrap(errs.SessionCreateFailed, err, "create session %s", name)
	}
	if opts.SplitCommand != "" {
		if _, err := t.run(ctx, "split-window", "-h", "-t", exact(name)+":", "-c", dir, opts.SplitCommand); err != nil {
			// A half-built session would be reused as-is by the next open.
			_ = t.KillSession(context.WithoutCancel(ctx), name)
			return Session{}, errs.Wrap(errs.SessionCreateFailed, err, "split session %s", name)
		}
	}
	t.Log.Debug("created session", "session", name, "dir", dir, "split", opts.SplitCommand != "")
	return Session{Name: name, Dir: dir}, nil
}

func (t *Tmux) KillSession(ctx context.Context, name string) error {
	if _, err := t.run(ctx, "kill-session", "-t", exact(name)); err != nil {
		if isMissingSession(err) {
			return nil
		}
		return targetError(err, exact(name))
	}
	return nil
}

func (t *Tmux) SwitchClient(ctx context.Context, name string) error {
	if _, err := t.run(ctx, "switch-client", "-t", exact(name)); err != nil {
		return targetError(err, exact(name))
	}
	return nil
}

// Attach takes over the caller's terminal until the client detaches.
func (t *Tmux) Attach(ctx context.Context, name string) error {
	if err := t.Cmd.Attach(ctx, "tmux", "attach-session", "-t", exact(name)); err != nil {
		return targetError(err, exact(name))
	}
	return nil
}

func (t *Tmux) IsInsideTmux() bool {
	return os.Getenv("TMUX") != ""
}

type PayloadKind int

const (
	PayloadCommand PayloadKind = iota
	PayloadKeys
	PayloadText
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadKeys:
		return "keys"
	case PayloadText:
		return "text"
	default:
		return "command"
	}
}

// Payload is what SendKeys types into a pane. Keys holds space separated
// tmux key names (C-c, Escape, Up); the other kinds are typed literally.
type Payload struct {
	Kind        PayloadKind
	Value       string
	AppendEnter bool
}

func Command(cmd string) Payload { return Payload{Kind: PayloadCommand, Value: cmd, AppendEnter: true} }
func Keys(keys string) Payload { return Payload{Kind: PayloadKeys, Value: keys} }
func Text(text string) Payload { return Payload{Kind: PayloadText, Value: text} }

func (t *Tmux) SendKeys(ctx context.Context, target string, p Payload) error {
	switch p.Kind {
	case PayloadKeys:
		keys := strings.Fields(p.Value)
		if len(keys) == 0 {
			return errs.New(errs.InvalidArgument, "no keys to send")
		}
		if _, err := t.run(ctx, append([]string{"send-keys", "-t", target}, keys...)...); err != nil {
			return targetError(err, target)
		}
	default:
		if p.Value != "" {
			if _, err := t.run(ctx, "send-keys", "-t", target, "-l", "--", p.Value); err != nil {
				return targetError(err, target)
			}
		}
	}
	if p.AppendEnter {
		if _, err := t.run(ctx, "send-keys", "-t", target, "Enter"); err != nil {
			return targetError(err, target)
		}
	}
	return nil
}

// CapturePane returns the pane's text with trailing blank lines removed.
// With tailLines > 0 only that many final lines are kept.
func (t *Tmux) CapturePane(ctx context.Context, target string, tailLines int) (string, error) {
	args := []string{"capture-pane", "-p", "-J", "-t", target}
	if tailLines > 0 {
		args = append(args, "-S", "-"+strconv.Itoa(tailLines))
	}
	out, err := t.run(ctx, args...)
	if err != nil {
		return "", targetError(err, target)
	}
	return TailLines(out, tailLines), nil
}

// TailLines drops trailing blank lines and keeps the last n lines (all when n <= 0).
func TailLines(text string, n int) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	lines = lines[:end]
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

type SessionInfo struct {
	Name         string
	Windows      int
	Attached     int
	LastActivity time.Time
}

const sessionFormat = "#{session_name}\t#{session_activity}\t#{session_attached}\t#{session_windows}"

func (t *Tmux) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	out, err := t.run(ctx, "list-sessions", "-F", sessionFormat)
	if err != nil {
		if isNoServer(err) {
			return nil, nil
		}
		return nil, targetError(err, "")
	}
	var sessions []SessionInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 4 || fields[0] == "" {
			continue
		}
		info := SessionInfo{Name: fields[0]}
		if ts, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
			info.LastActivity = time.Unix(ts, 0)
		}
		info.Attached, _ = strconv.Atoi(fields[2])
		info.Windows, _ = strconv.Atoi(fields[3])
		sessions = append(sessions, info)
	}
	return sessions, nil
}

type Pane struct {
	// Index is the pane's position in the session listing, starting at 0.
	Index   int
	ID      string
	Window  int
	Command string
	PID     int
	Dead    bool
}

const paneFormat = "#{pane_index}\t#{pane_id}\t#{pane_current_command}\t#{pane_pid}\t#{pane_dead}\t#{window_index}"

func (t *Tmux) ListPanes(ctx context.Context, session string) ([]Pane, error) {
	out, err := t.run(ctx, "list-panes", "-s", "-t", exact(session), "-F", paneFormat)
	if err != nil {
		return nil, targetError(err, exact(session))
	}
	var panes []Pane
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 6 {
			continue
		}
		p := Pane{Index: len(panes), ID: fields[1], Command: fields[2], Dead: fields[4] == "1"}
		p.PID, _ = strconv.Atoi(fields[3])
		p.Window, _ = strconv.Atoi(fields[5])
		panes = append(panes, p)
	}
	return panes, nil
}

// ResolvePane finds the index-th pane of session.
func (t *Tmux) ResolvePane(ctx context.Context, session string, index int) (Pane, error) {
	panes, err := t.ListPanes(ctx, session)
	if err != nil {
		return Pane{}, err
	}
	if index < 0 || index >= len(panes) {
		return Pane{}, errs.New(errs.PaneNotFound, "pane %d not found in session %s (%d panes)", index, session, len(panes))
	}
	return panes[index], nil
}

func (t *Tmux) ListClients(ctx context.Context, session string) ([]string, error) {
	out, err := t.run(ctx, "list-clients", "-t", exact(session), "-F", "#{client_tty}")
	if err != nil {
		if isMissingSession(err) {
			return nil, nil
		}
		return nil, targetError(err, exact(session))
	}
	var clients []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			clients = append(clients, line)
		}
	}
	return clients, nil
}

// PipePane appends everything target prints to path. An existing pipe is
// left in place.
func (t *Tmux) PipePane(ctx context.Context, target, path string) error {
	if _, err := t.run(ctx, "pipe-pane", "-o", "-t", target, "cat >> "+shellQuote(path)); err != nil {
		return targetError(err, target)
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
