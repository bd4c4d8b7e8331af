// Package agent recognises coding-agent CLIs running in a pane and turns
// their screen contents into a coarse run state.
package agent

import (
	"path/filepath"
	"strings"
)

type Kind string

const (
	None        Kind = ""
	ClaudeCode  Kind = "claude"
	Codex       Kind = "codex"
	CursorAgent Kind = "cursor-agent"
	OpenCode    Kind = "opencode"
	Gemini      Kind = "gemini"
)

// Kinds lists every supported agent in detection order.
var Kinds = []Kind{CursorAgent, OpenCode, ClaudeCode, Codex, Gemini}

type State string

const (
	Unknown         State = "Unknown"
	Idle            State = "Idle"
	Running         State = "Running"
	WaitingForInput State = "WaitingForInput"
)

// Detect finds the agent in the pane's foreground command, then in the
// command lines of its descendants. "cursor-agent" is tried before
// anything shorter that it contains.
func Detect(paneCommand string, descendantArgs []string) Kind {
	if k := match(paneCommand); k != None {
		return k
	}
	for _, args := range descendantArgs {
		if k := match(args); k != None {
			return k
		}
	}
	return None
}

func match(s string) Kind {
	s = strings.ToLower(s)
	if s == "" {
		return None
	}
	for _, k := range Kinds {
		if strings.Contains(s, string(k)) {
			return k
		}
	}
	return None
}

var shells = map[string]bool{
	"bash": true, "zsh": true, "fish": true, "sh": true, "dash": true, "ksh": true,
	"tcsh": true, "csh": true, "nu": true, "nushell": true, "pwsh": true,
}

func commandName(cmd string) string {
	return filepath.Base(strings.TrimPrefix(strings.TrimSpace(cmd), "-"))
}

// IsShell reports whether a pane's foreground command is an interactive shell.
func IsShell(cmd string) bool {
	return shells[commandName(cmd)]
}

// IsHost reports whether an agent may be hiding below cmd, so that the
// process tree is worth walking. Node-based agents show up as "node".
func IsHost(cmd string) bool {
	name := commandName(cmd)
	return shells[name] || name == "node"
}

// Attention ranks states by how urgently a person should look at them.
func Attention(s State) int {
	switch s {
	case WaitingForInput:
		return 3
	case Idle:
		return 2
	case Running:
		return 1
	default:
		return 0
	}
}

// MostUrgent returns the state with the highest Attention.
func MostUrgent(states ...State) State {
	best := Unknown
	for _, s := range states {
		if Attention(s) > Attention(best) {
			best = s
		}
	}
	return best
}

// Snapshot is what a pane looks like at one instant.
type Snapshot struct {
	Command     string
	Descendants []string
	Capture     string
	Dead        bool
}

type Status struct {
	Agent Kind
	State State
	Dead  bool
}

// Assess classifies a pane. Without an agent the foreground process
// decides: a shell means the last command finished.
func Assess(s Snapshot) Status {
	kind := Detect(s.Command, s.Descendants)
	st := Status{Agent: kind, Dead: s.Dead}
	switch {
	case s.Dead:
		st.State = Unknown
	case kind != None:
		st.State = Classify(s.Capture, kind)
	case IsShell(s.Command):
		st.State = Idle
	case s.Command == "":
		st.State = Classify(s.Capture, None)
	default:
		st.State = Running
	}
	return st
}
