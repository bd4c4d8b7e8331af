package agent

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

const (
	bodyLines   = 30
	tailLines   = 5
	promptLines = 3
)

type window int

const (
	body     window = iota // last 30 non-empty lines
	tail                   // last 5 non-empty lines
	prompt                 // last 3 non-empty lines
	lastLine               // final non-empty line
)

type matcher int

const (
	containsAny      matcher = iota // any needle occurs anywhere
	wordWithEllipsis                // a needle directly followed by "…" or "..."
	linePrefix                      // some line starts with a needle after indentation
	lineSuffix                      // the text ends with a needle
)

type rule struct {
	window  window
	matcher matcher
	needles []string
	state   State
}

type screen struct {
	windows [4]string
	lines   [4][]string
}

func newScreen(capture string) *screen {
	var nonEmpty []string
	for _, line := range strings.Split(ansi.Strip(capture), "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) != "" {
			nonEmpty = append(nonEmpty, strings.ToLower(line))
		}
	}
	s := &screen{}
	for w, n := range map[window]int{body: bodyLines, tail: tailLines, prompt: promptLines, lastLine: 1} {
		lines := nonEmpty
		if len(lines) > n {
			lines = lines[len(lines)-n:]
		}
		s.lines[w] = lines
		s.windows[w] = strings.Join(lines, "\n")
	}
	return s
}

func (r rule) matches(s *screen) bool {
	text := s.windows[r.window]
	if text == "" {
		return false
	}
	for _, n := range r.needles {
		switch r.matcher {
		case containsAny:
			if strings.Contains(text, n) {
				return true
			}
		case wordWithEllipsis:
			if strings.Contains(text, n+"…") || strings.Contains(text, n+"...") {
				return true
			}
		case linePrefix:
			for _, line := range s.lines[r.window] {
				if strings.HasPrefix(strings.TrimLeft(line, " \t"), n) {
					return true
				}
			}
		case lineSuffix:
			if strings.HasSuffix(text, n) {
				return true
			}
		}
	}
	return false
}

// Classify maps a pane capture to a run state using kind's rules and then
// the generic fallbacks. It is pure; when nothing matches it returns
// Unknown rather than guessing.
func Classify(capture string, kind Kind) State {
	s := newScreen(capture)
	for _, rules := range [][]rule{profiles[kind], fallback} {
		for _, r := range rules {
			if r.matches(s) {
				return r.state
			}
		}
	}
	return Unknown
}
