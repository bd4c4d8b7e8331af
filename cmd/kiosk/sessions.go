package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nicobailon/kiosk/internal/output"
	"github.com/nicobailon/kiosk/internal/recent"
	"github.com/nicobailon/kiosk/internal/scanner"
)

var recentLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List live sessions of discovered repositories",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		rows, err := svc.Sessions(cmd.Context())
		if err != nil {
			return err
		}
		if ui.Structured() {
			return ui.Emit(rows)
		}
		if len(rows) == 0 {
			ui.Info("No kiosk sessions running")
			return nil
		}
		table := ui.Table([]string{"SESSION", "REPO", "BRANCH", "ATTACHED", "ACTIVITY", "PATH"})
		for _, r := range rows {
			branch, path := r.Branch, r.Path
			if r.Orphaned {
				branch, path = output.Yellow("orphaned"), output.Faint("(no worktree)")
			}
			attached := ""
			if r.Attached {
				attached = output.Green("yes")
			}
			_ = table.Append([]string{output.Cyan(r.Name), r.Repo, branch, attached, ago(r.LastActivity), path})
		}
		return table.Render()
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List repositories under the configured search dirs",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		repos := scanner.ScanRepos(cfg.SearchDirs)
		if ui.Structured() {
			if repos == nil {
				repos = []scanner.Repo{}
			}
			return ui.Emit(repos)
		}
		if len(repos) == 0 {
			ui.Warning("No repositories found under search_dirs")
			return nil
		}
		table := ui.Table([]string{"REPO", "PATH"})
		for _, r := range repos {
			_ = table.Append([]string{output.Cyan(r.Name), r.Path})
		}
		return table.Render()
	},
}

var branchesCmd = &cobra.Command{
	Use:   "branches <repo>",
	Short: "List local and remote-only branches with worktree and session flags",
	Long: `Flags: * default branch, W has a worktree, S has a live session,
R exists only on a remote.`,
	Args: exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		rows, err := svc.Branches(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if ui.Structured() {
			return ui.Emit(rows)
		}
		table := ui.Table([]string{"", "BRANCH", "STATE", "PATH"})
		for _, b := range rows {
			state := ""
			if b.Session {
				state = output.StateColor(b.State)
			}
			_ = table.Append([]string{b.Flags(), b.Name, state, output.Faint(b.Path)})
		}
		return table.Render()
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently opened targets",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := recent.Load(recent.DefaultPath())
		if err != nil {
			return err
		}
		entries := store.List(recentLimit)
		if ui.Structured() {
			return ui.Emit(entries)
		}
		if len(entries) == 0 {
			ui.Info("Nothing opened yet")
			return nil
		}
		table := ui.Table([]string{"SESSION", "REPO", "BRANCH", "OPENED", "PATH"})
		for _, e := range entries {
			_ = table.Append([]string{output.Cyan(e.Session), e.Repo, e.Branch, ago(e.LastAccess), output.Faint(e.Path)})
		}
		return table.Render()
	},
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return strconv.Itoa(int(d.Hours()/24)) + "d ago"
	}
}

func init() {
	recentCmd.Flags().IntVarP(&recentLimit, "limit", "n", 10, "Entries to show, 0 for all")
	rootCmd.AddCommand(sessionsCmd, listCmd, branchesCmd, recentCmd)
}
