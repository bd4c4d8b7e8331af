package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/nicobailon/kiosk/internal/output"
	"github.com/nicobailon/kiosk/internal/workspace"
)

var (
	cleanOpts   workspace.CleanOptions
	deleteForce bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove orphaned worktrees (and sessions with --kill-orphans)",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		opts := cleanOpts
		if !ui.Structured() && isatty.IsTerminal(os.Stdin.Fd()) {
			opts.Confirm = confirm
		}
		res, err := svc.Clean(cmd.Context(), opts)
		if ui.Structured() {
			if err != nil {
				return err
			}
			return ui.Emit(res)
		}
		switch {
		case len(res.Orphans)+len(res.Sessions) == 0:
			ui.Success("All clean, no orphans found")
		case res.Applied:
			ui.Success("Removed %d worktree(s), killed %d session(s)", res.Removed, res.Killed)
		case cleanOpts.DryRun:
			printOrphans(res)
			ui.Info("Dry run, nothing removed")
		case opts.Confirm == nil:
			printOrphans(res)
			ui.Info("Nothing removed (use --yes)")
		default:
			ui.Info("Nothing removed")
		}
		return err
	},
}

func printOrphans(res workspace.CleanResult) {
	for _, o := range res.Orphans {
		fmt.Fprintf(ui.Out, "  %s %s %s\n", output.Yellow(string(o.Reason)), o.Repo.Name, o.Path)
	}
	for _, s := range res.Sessions {
		fmt.Fprintf(ui.Out, "  %s %s\n", output.Yellow("orphaned-session"), s.Name)
	}
}

func confirm(found workspace.CleanResult) bool {
	printOrphans(found)
	fmt.Fprintf(ui.ErrOut, "Remove %d item(s)? [y/N] ", len(found.Orphans)+len(found.Sessions))
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

var deleteCmd = &cobra.Command{
	Use:   "delete <repo> <branch>",
	Short: "Kill a branch's session and remove its worktree (the branch is kept)",
	Args:  exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		res, err := svc.Delete(cmd.Context(), args[0], args[1], deleteForce)
		if err != nil {
			return err
		}
		if ui.Structured() {
			return ui.Emit(res)
		}
		if res.KilledSession {
			ui.Success("Killed session %s", output.Cyan(res.Session))
		}
		ui.Success("Removed worktree %s", output.Cyan(res.Path))
		return nil
	},
}

func init() {
	cleanCmd.Flags().BoolVarP(&cleanOpts.Yes, "yes", "y", false, "Remove without asking")
	cleanCmd.Flags().BoolVarP(&cleanOpts.DryRun, "dry-run", "n", false, "Only list what would be removed")
	cleanCmd.Flags().BoolVar(&cleanOpts.KillOrphans, "kill-orphans", false, "Also kill sessions whose worktree is gone")
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Delete dirty worktrees and sessions with attached clients")
	rootCmd.AddCommand(cleanCmd, deleteCmd)
}
