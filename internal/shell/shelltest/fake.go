// Package shelltest provides a scripted shell.Commander for tests.
package shelltest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/nicobailon/kiosk/internal/shell"
)

type Call struct {
	Dir  string
	Name string
	Args []string
}

func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

type handler struct {
	prefix string
	fn     func(c Call) (string, error)
}

// Fake records every invocation and answers from handlers matched by
// command-line prefix. The most recently registered match wins; unmatched
// calls succeed with empty output.
type Fake struct {
	mu       sync.Mutex
	calls    []Call
	handlers []handler
}

func (f *Fake) On(prefix, out string, err error) {
	f.OnFunc(prefix, func(Call) (string, error) { return out, err })
}

func (f *Fake) OnFunc(prefix string, fn func(c Call) (string, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler{prefix: prefix, fn: fn})
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Commands returns the recorded calls rendered as command lines.
func (f *Fake) Commands() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, c.String())
	}
	return out
}

func (f *Fake) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f.RunDir(ctx, "", name, args...)
}

func (f *Fake) RunDir(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := Call{Dir: dir, Name: name, Args: append([]string(nil), args...)}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	var fn func(Call) (string, error)
	line := c.String()
	for i := len(f.handlers) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, f.handlers[i].prefix) {
			fn = f.handlers[i].fn
			break
		}
	}
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	out, err := fn(c)
	return []byte(out), err
}

func (f *Fake) Attach(ctx context.Context, name string, args ...string) error {
	_, err := f.Run(ctx, name, args...)
	return err
}

// Fail builds the error a real command exiting 1 with stderr would return.
func Fail(name, stderr string) error {
	return &shell.ExitError{Name: name, Stderr: stderr, Code: 1, Err: errors.New("exit status 1")}
}

var _ shell.Commander = (*Fake)(nil)
