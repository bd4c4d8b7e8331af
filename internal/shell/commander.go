package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Commander runs external programs. Implementations must honour ctx
// cancellation and return stdout only; stderr travels inside *ExitError.
type Commander interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	RunDir(ctx context.Context, dir, name string, args ...string) ([]byte, error)
	// Attach runs the program connected to the caller's terminal.
	Attach(ctx context.Context, name string, args ...string) error
}

type ExecCommander struct{}

func (e *ExecCommander) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return e.RunDir(ctx, "", name, args...)
}

func (e *ExecCommander) RunDir(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stdout.Bytes(), ctxErr
		}
		return stdout.Bytes(), newExitError(name, args, stderr.String(), err)
	}
	return stdout.Bytes(), nil
}

func (e *ExecCommander) Attach(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return newExitError(name, args, "", err)
	}
	return nil
}

// ExitError describes a program that ran and failed, or could not start.
type ExitError struct {
	Name   string
	Args   []string
	Stderr string
	Code   int
	Err    error
}

func newExitError(name string, args []string, stderr string, err error) *ExitError {
	code := -1
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code = ee.ExitCode()
	}
	return &ExitError{Name: name, Args: args, Stderr: strings.TrimSpace(stderr), Code: code, Err: err}
}

func (e *ExitError) Error() string {
	cmdline := strings.TrimSpace(e.Name + " " + strings.Join(e.Args, " "))
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %s", cmdline, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", cmdline, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Stderr returns the captured stderr of a failed command, or "".
func Stderr(err error) string {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Stderr
	}
	return ""
}

// ExitCode returns the exit status of a failed command, -1 when unknown.
func ExitCode(err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return -1
}
