// Package output renders command results as colored text, tables, JSON or
// YAML.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"gopkg.in/yaml.v3"

	"github.com/nicobailon/kiosk/internal/agent"
	"github.com/nicobailon/kiosk/internal/errs"
)

type Format string

const (
	Text Format = "text"
	JSON Format = "json"
	YAML Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case Text, JSON, YAML:
		return f, nil
	case "":
		return Text, nil
	default:
		return "", errs.New(errs.InvalidArgument, "unknown output format %q (want text, json or yaml)", s)
	}
}

// UI provides colored output and respects verbose mode.
type UI struct {
	Format  Format
	Verbose bool
	Out     io.Writer
	ErrOut  io.Writer
}

// New creates a UI with default stdout/stderr writers.
func New(format Format) *UI {
	return &UI{Format: format, Out: os.Stdout, ErrOut: os.Stderr}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	warningPrefix = color.New(color.FgHiYellow).Sprint("⚠")
	errorPrefix   = color.New(color.FgHiRed).Sprint("✗")
	verbosePrefix = color.New(color.FgHiBlue).Sprint("  →")
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
	faint         = color.New(color.Faint).SprintFunc()
)

func Cyan(s string) string   { return cyan(s) }
func Green(s string) string  { return green(s) }
func Yellow(s string) string { return yellow(s) }
func Red(s string) string    { return red(s) }
func Faint(s string) string  { return faint(s) }

// StateColor colors an agent state by how much it needs the user.
func StateColor(s agent.State) string {
	switch s {
	case agent.WaitingForInput:
		return red(string(s))
	case agent.Idle:
		return green(string(s))
	case agent.Running:
		return yellow(string(s))
	default:
		return faint(string(s))
	}
}

// Structured reports whether results are machine-readable.
func (u *UI) Structured() bool {
	return u.Format == JSON || u.Format == YAML
}

// Info and Success are silenced in structured modes so stdout stays parseable.
func (u *UI) Info(format string, a ...any) {
	if u.Structured() {
		return
	}
	fmt.Fprintf(u.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	if u.Structured() {
		return
	}
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) VerboseLog(format string, a ...any) {
	if u.Verbose {
		fmt.Fprintf(u.ErrOut, "%s %s\n", verbosePrefix, fmt.Sprintf(format, a...))
	}
}

// Table creates a new tablewriter configured with consistent styling.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

// Emit writes v in the structured format. In text mode it falls back to
// indented JSON.
func (u *UI) Emit(v any) error {
	if u.Format == YAML {
		enc := yaml.NewEncoder(u.Out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(u.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type errorBody struct {
	Kind    errs.Kind `json:"kind" yaml:"kind"`
	Message string    `json:"message" yaml:"message"`
}

type errorEnvelope struct {
	Error  errorBody `json:"error" yaml:"error"`
	Result any       `json:"result,omitempty" yaml:"result,omitempty"`
}

// partialError carries what a command managed to do before failing.
type partialError struct {
	err    error
	result any
}

func (e *partialError) Error() string { return e.err.Error() }
func (e *partialError) Unwrap() error { return e.err }

// WithResult attaches the partial result of a failed command to err, so
// structured output reports it next to the error.
func WithResult(err error, result any) error {
	if err == nil {
		return nil
	}
	return &partialError{err: err, result: result}
}

// PrintError reports err as {"error":{"kind","message"}} on stdout in
// structured modes, plus "result" when err came from WithResult, or as a
// red line on stderr otherwise.
func (u *UI) PrintError(err error) {
	if err == nil {
		return
	}
	if u.Structured() {
		env := errorEnvelope{Error: errorBody{Kind: errs.KindOf(err), Message: err.Error()}}
		var partial *partialError
		if errors.As(err, &partial) {
			env.Result = partial.result
		}
		_ = u.Emit(env)
		return
	}
	u.Error("%v", err)
}
