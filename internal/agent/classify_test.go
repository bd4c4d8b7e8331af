package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyFixtures(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		capture string
		want    State
	}{
		{"claude running", ClaudeCode, "⠋ Reading file src/main.rs\nesc to interrupt", Running},
		{"claude thinking word", ClaudeCode, "> fix the flaky test\n\n✦ Noodling… 42 tokens", Running},
		{"claude waiting", ClaudeCode, "Allow write to src/main.rs?\n  Yes, allow\n  No, deny", WaitingForInput},
		{"claude trust dialog", ClaudeCode, "Do you trust the files in this folder?\n❯ 1. Yes, proceed\n  2. No, exit", WaitingForInput},
		{"claude idle footer", ClaudeCode, "❯ \n? for shortcuts", Idle},
		{"claude idle prompt only", ClaudeCode, "● Done. All tests pass.\n\n❯ ", Idle},
		{"claude idle with ansi", ClaudeCode, "\x1b[2m? for shortcuts\x1b[0m", Idle},

		{"codex running", Codex, "⠋ Searching codebase\nesc to interrupt", Running},
		{"codex waiting", Codex, strings.Join([]string{
			"Would you like to run the following command?",
			"$ touch test.txt",
			"› 1. Yes, proceed (y)",
			"  2. Yes, and don't ask again (p)",
			"  3. No (esc)",
			"",
			"  Press enter to confirm or esc to cancel",
		}, "\n"), WaitingForInput},
		{"codex idle", Codex, strings.Join([]string{
			"╭──────────────────────────────╮",
			"│ >_ OpenAI Codex (v0.104.0)   │",
			"╰──────────────────────────────╯",
			"",
			"› Type a message",
			"",
			"  ? for shortcuts",
		}, "\n"), Idle},
		{"codex running beside idle footer", Codex, "• Running cargo test\nesc to interrupt\n? for shortcuts", Running},
		{"codex stale prompt in scrollback", Codex, strings.Join([]string{
			"Press enter to continue",
			"line 1", "line 2", "line 3", "line 4", "line 5", "line 6",
			"› Summarize the diff",
		}, "\n"), Unknown},

		{"cursor running", CursorAgent, "⠋ Editing file src/main.rs\nesc to interrupt", Running},
		{"cursor waiting", CursorAgent, strings.Join([]string{
			"⚠ Workspace Trust Required",
			"Do you trust the contents of this directory?",
			"▶ [a] Trust this workspace",
			"  [q] Quit",
			"Use arrow keys to navigate, Enter to select",
		}, "\n"), WaitingForInput},
		{"cursor idle", CursorAgent, "> ", Idle},

		{"opencode running", OpenCode, "┃ Build  claude-sonnet\n⬝■■■ esc interrupt", Running},
		{"opencode waiting", OpenCode, "△ Permission required\nbash: rm -rf dist\n  Allow once   Allow always   Reject", WaitingForInput},
		{"opencode idle footer", OpenCode, "┃ Build\n  tab agents  ctrl+p commands", Idle},
		{"opencode idle prompt bar", OpenCode, "┃  Build  anthropic/claude-sonnet", Idle},

		{"gemini running", Gemini, "⠼ Thinking about the approach (esc to cancel, 3s)", Running},
		{"gemini waiting", Gemini, "Allow execution of: 'rm -rf build'?\n● 1. Yes, allow once\n  2. No", WaitingForInput},
		{"gemini idle", Gemini, ">   Type your message or @path/to/file", Idle},

		{"plain shell prompt", None, "$ make\nok\nuser@host:~/src$ ", Idle},
		{"plain spinner", None, "building\n⠙ linking", Running},
		{"plain output", None, "compiling 42 crates", Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.capture, tt.kind))
		})
	}
}

func TestClassifyEmptyOrGarbledIsUnknown(t *testing.T) {
	garbled := "\x1b[31m\x00\x01@@!!~~\x1b[0m\n\x1b]0;title\x07 ¤¤¤ !"
	for _, k := range append([]Kind{None}, Kinds...) {
		assert.Equal(t, Unknown, Classify("", k), "empty capture for %q", k)
		assert.Equal(t, Unknown, Classify("\n\n   \n", k), "blank capture for %q", k)
		assert.Equal(t, Unknown, Classify(garbled, k), "garbled capture for %q", k)
	}
}

func TestClassifyIsPure(t *testing.T) {
	capture := "⠋ Reading file\nesc to interrupt"
	first := Classify(capture, ClaudeCode)
	for range 5 {
		assert.Equal(t, first, Classify(capture, ClaudeCode))
	}
}

func TestEveryAgentHasRules(t *testing.T) {
	for _, k := range Kinds {
		assert.NotEmpty(t, profiles[k], "no rules for %s", k)
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		command string
		args    []string
		want    Kind
	}{
		{"claude", nil, ClaudeCode},
		{"Codex", nil, Codex},
		{"gemini", nil, Gemini},
		{"opencode", nil, OpenCode},
		{"zsh", []string{"node /usr/local/bin/cursor-agent --resume"}, CursorAgent},
		{"node", []string{"node", "/home/u/.npm/bin/codex --full-auto"}, Codex},
		{"bash", []string{"vim main.go"}, None},
		{"zsh", nil, None},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Detect(tt.command, tt.args), "%s %v", tt.command, tt.args)
	}
}

func TestShellAndHost(t *testing.T) {
	assert.True(t, IsShell("zsh"))
	assert.True(t, IsShell("-bash"))
	assert.True(t, IsShell("/usr/bin/fish"))
	assert.False(t, IsShell("node"))
	assert.True(t, IsHost("node"))
	assert.False(t, IsHost("vim"))
}

func TestMostUrgent(t *testing.T) {
	assert.Equal(t, WaitingForInput, MostUrgent(Running, WaitingForInput, Idle))
	assert.Equal(t, Idle, MostUrgent(Running, Idle, Unknown))
	assert.Equal(t, Running, MostUrgent(Unknown, Running))
	assert.Equal(t, Unknown, MostUrgent())
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want Status
	}{
		{"shell at prompt", Snapshot{Command: "zsh", Capture: "anything"}, Status{State: Idle}},
		{"foreground job", Snapshot{Command: "make", Capture: "cc -o main"}, Status{State: Running}},
		{"agent under shell", Snapshot{Command: "zsh", Descendants: []string{"claude"}, Capture: "esc to interrupt"},
			Status{Agent: ClaudeCode, State: Running}},
		{"dead pane", Snapshot{Command: "claude", Dead: true}, Status{Agent: ClaudeCode, State: Unknown, Dead: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Assess(tt.snap))
		})
	}
}
