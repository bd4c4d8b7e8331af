// Package wait blocks until a pane settles, polling it on a fixed interval
// under an optional deadline.
package wait

import (
	"context"
	"time"

	"github.com/nicobailon/kiosk/internal/agent"
	"github.com/nicobailon/kiosk/internal/errs"
)

const (
	DefaultInterval  = 500 * time.Millisecond
	DefaultIdleGrace = 3
)

type Observation struct {
	State agent.State
	Dead  bool
}

// Probe takes a fresh look at the target. A SessionNotFound or
// PaneNotFound error means the target is gone and ends the wait.
type Probe func(ctx context.Context) (Observation, error)

type Options struct {
	// Timeout of zero waits forever.
	Timeout  time.Duration
	Interval time.Duration
	// RequireRunning ignores Idle until Running has been seen, or until
	// IdleGrace consecutive Idle polls. Used right after sending a command,
	// when the pane may not have started it yet.
	RequireRunning bool
	IdleGrace      int
	OnPoll         func(Observation)
}

type Result struct {
	State      agent.State
	Dead       bool
	SawRunning bool
	Polls      int
	Elapsed    time.Duration
}

type tracker struct {
	opts       Options
	sawRunning bool
	idleStreak int
}

func (t *tracker) terminal(obs Observation) bool {
	if obs.Dead {
		return true
	}
	switch obs.State {
	case agent.Running:
		t.sawRunning = true
		t.idleStreak = 0
	case agent.WaitingForInput:
		return true
	case agent.Idle:
		if !t.opts.RequireRunning || t.sawRunning {
			return true
		}
		t.idleStreak++
		return t.idleStreak >= t.opts.IdleGrace
	}
	return false
}

func Wait(ctx context.Context, probe Probe, opts Options) (Result, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout > 0 && opts.Interval >= opts.Timeout {
		opts.Interval = max(opts.Timeout/4, time.Millisecond)
	}
	if opts.IdleGrace <= 0 {
		opts.IdleGrace = DefaultIdleGrace
	}

	start := time.Now()
	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	t := &tracker{opts: opts}
	res := Result{State: agent.Unknown}
	for {
		if err := ctx.Err(); err != nil {
			return res, errs.Wrap(errs.Cancelled, err, "wait cancelled")
		}
		obs, err := probe(ctx)
		res.Polls++
		res.Elapsed = time.Since(start)
		switch {
		case err == nil:
		case errs.Is(err, errs.SessionNotFound), errs.Is(err, errs.PaneNotFound):
			obs = Observation{State: agent.Unknown, Dead: true}
		case ctx.Err() != nil:
			return res, errs.Wrap(errs.Cancelled, ctx.Err(), "wait cancelled")
		default:
			return res, err
		}

		res.State, res.Dead = obs.State, obs.Dead
		if opts.OnPoll != nil {
			opts.OnPoll(obs)
		}
		done := t.terminal(obs)
		res.SawRunning = t.sawRunning
		if done {
			return res, nil
		}

		select {
		case <-ctx.Done():
			return res, errs.Wrap(errs.Cancelled, ctx.Err(), "wait cancelled")
		case <-deadline:
			res.Elapsed = time.Since(start)
			return res, errs.New(errs.TimedOut, "still %s after %s", res.State, opts.Timeout)
		case <-ticker.C:
		}
	}
}
