// Package tui draws the interactive progress line shown while kiosk waits
// on a pane.
package tui

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nicobailon/kiosk/internal/agent"
	"github.com/nicobailon/kiosk/internal/tui/theme"
	"github.com/nicobailon/kiosk/internal/wait"
)

// WaitFunc runs the wait, reporting every poll through onPoll.
type WaitFunc func(ctx context.Context, onPoll func(wait.Observation)) (wait.Result, error)

type observationMsg wait.Observation

type doneMsg struct {
	res wait.Result
	err error
}

type waitModel struct {
	target  string
	timeout time.Duration
	started time.Time
	now     func() time.Time
	spinner spinner.Model
	obs     wait.Observation
	polls   int
	done    bool
	cancel  context.CancelFunc
}

func newWaitModel(target string, timeout time.Duration, cancel context.CancelFunc) waitModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.SpinnerStyle
	return waitModel{
		target:  target,
		timeout: timeout,
		started: time.Now(),
		now:     time.Now,
		spinner: sp,
		obs:     wait.Observation{State: agent.Unknown},
		cancel:  cancel,
	}
}

func (m waitModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m waitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case observationMsg:
		m.obs = wait.Observation(msg)
		m.polls++
		return m, nil
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// The wait loop notices the cancel and reports Cancelled.
			m.cancel()
		}
	}
	return m, nil
}

func (m waitModel) View() string {
	if m.done {
		return ""
	}
	elapsed := m.now().Sub(m.started).Truncate(time.Second)
	clock := elapsed.String()
	if m.timeout > 0 {
		clock += " / " + m.timeout.String()
	}
	badge := theme.StateBadge(m.obs.State)
	if m.obs.Dead {
		badge = theme.DeadBadge()
	}
	return fmt.Sprintf("%s %s %s %s  %s\n",
		m.spinner.View(),
		theme.TextStyle.Render("waiting on"),
		theme.TitleStyle.Render(m.target),
		badge,
		theme.DimStyle.Render(clock+"  "+theme.KeyStyle.Render("ctrl+c")+" to stop"),
	)
}

// RunWait runs fn behind a spinner drawn on out. If the display cannot
// start, fn still runs to completion without it.
func RunWait(ctx context.Context, out io.Writer, target string, timeout time.Duration, fn WaitFunc) (wait.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newWaitModel(target, timeout, cancel), tea.WithOutput(out), tea.WithContext(ctx))
	results := make(chan doneMsg, 1)
	go func() {
		res, err := fn(ctx, func(o wait.Observation) { p.Send(observationMsg(o)) })
		results <- doneMsg{res: res, err: err}
		p.Send(doneMsg{res: res, err: err})
	}()

	_, _ = p.Run()
	r := <-results
	return r.res, r.err
}
