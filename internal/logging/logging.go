// Package logging builds the debug log shared by every kiosk component.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nicobailon/kiosk/internal/errs"
	"github.com/nicobailon/kiosk/internal/xdg"
)

type Options struct {
	// Level is a charmbracelet/log level name; empty means info.
	Level string
	// Verbose forces debug and mirrors the log to Stderr.
	Verbose bool
	// Path defaults to $XDG_STATE_HOME/kiosk/kiosk.log.
	Path   string
	Stderr io.Writer
}

func DefaultPath() string {
	return filepath.Join(xdg.StateDir(), "kiosk.log")
}

// New opens the log file for appending and returns the logger plus a
// closer for the file. If the file cannot be opened, logging goes to
// Stderr when verbose and nowhere otherwise.
func New(opts Options) (*log.Logger, io.Closer, error) {
	level := log.InfoLevel
	if opts.Level != "" {
		l, err := log.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, errs.Wrap(errs.ConfigInvalid, err, "log level")
		}
		level = l
	}
	if opts.Verbose {
		level = log.DebugLevel
	}
	if opts.Path == "" {
		opts.Path = DefaultPath()
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	var sinks []io.Writer
	var closer io.Closer = nopCloser{}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err == nil {
		if f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			sinks = append(sinks, f)
			closer = f
		}
	}
	if opts.Verbose {
		sinks = append(sinks, opts.Stderr)
	}
	var w io.Writer = io.Discard
	if len(sinks) > 0 {
		w = io.MultiWriter(sinks...)
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          "kiosk",
	})
	return logger.With("pid", os.Getpid()), closer, nil
}

// Discard is a logger that drops everything, for tests and library defaults.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
