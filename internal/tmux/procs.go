package tmux

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const maxProcessDepth = 8

// DescendantArgs returns the command lines of every process below pid,
// walking at most maxProcessDepth levels. Agents launched from a shell
// show up here rather than in pane_current_command.
func (t *Tmux) DescendantArgs(ctx context.Context, pid int) []string {
	var out []string
	seen := map[int]bool{pid: true}
	t.collectArgs(ctx, pid, 0, seen, &out)
	return out
}

func (t *Tmux) collectArgs(ctx context.Context, pid, depth int, seen map[int]bool, out *[]string) {
	if depth >= maxProcessDepth || ctx.Err() != nil {
		return
	}
	for _, child := range t.children(ctx, pid) {
		if seen[child] {
			continue
		}
		seen[child] = true
		if args := t.processArgs(ctx, child); args != "" {
			*out = append(*out, args)
		}
		t.collectArgs(ctx, child, depth+1, seen, out)
	}
}

func (t *Tmux) children(ctx context.Context, pid int) []int {
	id := strconv.Itoa(pid)
	if data, err := os.ReadFile(filepath.Join(t.ProcRoot, id, "task", id, "children")); err == nil {
		return parsePIDs(string(data))
	}
	out, err := t.Cmd.Run(ctx, "pgrep", "-P", id)
	if err != nil {
		return nil
	}
	return parsePIDs(string(out))
}

func (t *Tmux) processArgs(ctx context.Context, pid int) string {
	id := strconv.Itoa(pid)
	if data, err := os.ReadFile(filepath.Join(t.ProcRoot, id, "cmdline")); err == nil && len(data) > 0 {
		return strings.TrimSpace(strings.ReplaceAll(string(data), "\x00", " "))
	}
	out, err := t.Cmd.Run(ctx, "ps", "-o", "args=", "-p", id)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func parsePIDs(s string) []int {
	var pids []int
	for _, f := range strings.Fields(s) {
		if pid, err := strconv.Atoi(f); err == nil && pid > 0 {
			pids = append(pids, pid)
		}
	}
	return pids
}
