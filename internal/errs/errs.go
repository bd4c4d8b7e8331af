// Package errs defines the error kinds surfaced by kiosk and the process
// exit codes they map to.
package errs

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	ConfigInvalid       Kind = "ConfigInvalid"
	InvalidArgument     Kind = "InvalidArgument"
	RepoNotFound        Kind = "RepoNotFound"
	BranchNotFound      Kind = "BranchNotFound"
	SessionNotFound     Kind = "SessionNotFound"
	PaneNotFound        Kind = "PaneNotFound"
	VcsOperationFailed  Kind = "VcsOperationFailed"
	WorktreeDirty       Kind = "WorktreeDirty"
	WorktreeBusy        Kind = "WorktreeBusy"
	SessionCreateFailed Kind = "SessionCreateFailed"
	MultiplexerFailed   Kind = "MultiplexerFailed"
	ToolMissing         Kind = "ToolMissing"
	TimedOut            Kind = "TimedOut"
	Cancelled           Kind = "Cancelled"
	Internal            Kind = "Internal"
)

// ErrLockContention marks a version-control failure caused by another
// process holding a repository lock. It only ever appears wrapped.
var ErrLockContention = errors.New("repository lock held by another process")

const (
	ExitOK        = 0
	ExitUser      = 1
	ExitConfig    = 2
	ExitNotFound  = 3
	ExitTimeout   = 4
	ExitTool      = 5
	ExitInternal  = 70
	ExitCancelled = 130
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err != nil:
		return e.Err.Error()
	case e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return Cancelled
	case errors.Is(err, context.DeadlineExceeded):
		return TimedOut
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case InvalidArgument, WorktreeDirty, WorktreeBusy:
		return ExitUser
	case ConfigInvalid:
		return ExitConfig
	case RepoNotFound, BranchNotFound, SessionNotFound, PaneNotFound:
		return ExitNotFound
	case TimedOut:
		return ExitTimeout
	case VcsOperationFailed, SessionCreateFailed, MultiplexerFailed, ToolMissing:
		return ExitTool
	case Cancelled:
		return ExitCancelled
	default:
		return ExitInternal
	}
}
