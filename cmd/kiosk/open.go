package main

import (
	"github.com/spf13/cobra"

	"github.com/nicobailon/kiosk/internal/output"
	"github.com/nicobailon/kiosk/internal/workspace"
)

var openOpts workspace.OpenOptions

var openCmd = &cobra.Command{
	Use:   "open <repo> [branch]",
	Short: "Create or reuse the worktree and session for a branch",
	Long: `Open ensures a worktree for the branch (the repository root for the default
branch) and a tmux session named <repo>--<branch>, then switches to it.
An existing session is reused as-is.`,
	Args: targetArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		opts := openOpts
		opts.Branch = ""
		if len(args) > 1 {
			opts.Branch = args[1]
		}
		res, err := svc.Open(cmd.Context(), args[0], opts)
		if ui.Structured() {
			if err != nil {
				if res.Session == "" {
					return err
				}
				// The worktree or session may already exist; say so.
				return output.WithResult(err, res)
			}
			return ui.Emit(res)
		}
		printOpen(res)
		return err
	},
}

func printOpen(res workspace.OpenResult) {
	if res.Session == "" {
		return
	}
	if res.CreatedWorktree {
		ui.Success("Created worktree %s", output.Cyan(res.Path))
	}
	if res.CreatedSession {
		ui.Success("Created session %s", output.Cyan(res.Session))
	} else if res.Path != "" {
		ui.Info("Using session %s", output.Cyan(res.Session))
	}
	if res.LogPath != "" {
		ui.VerboseLog("logging to %s", res.LogPath)
	}
	if res.Sent != "" {
		ui.VerboseLog("sent %s", res.Sent)
	}
	if res.Wait != nil && res.Wait.Polls > 0 {
		ui.Info("%s is %s after %.1fs", res.Session, output.StateColor(res.Wait.State), res.Wait.Elapsed)
	}
}

func init() {
	f := openCmd.Flags()
	f.StringVar(&openOpts.NewBranch, "new-branch", "", "Create this branch (requires --base)")
	f.StringVar(&openOpts.Base, "base", "", "Start point for --new-branch")
	f.StringVar(&openOpts.Run, "run", "", "Type a command into the pane and press Enter")
	f.StringVar(&openOpts.Keys, "keys", "", "Send space separated tmux key names")
	f.StringVar(&openOpts.Text, "text", "", "Send literal text without Enter")
	f.IntVar(&openOpts.Pane, "pane", 0, "Pane that receives --run, --keys or --text")
	f.BoolVar(&openOpts.NoSwitch, "no-switch", false, "Do not switch to or attach the session")
	f.BoolVar(&openOpts.Wait, "wait", false, "Wait until the pane is idle or needs input")
	f.DurationVar(&openOpts.WaitTimeout, "wait-timeout", 0, "Give up waiting after this long (default wait.timeout)")
	f.IntVar(&openOpts.WaitPane, "wait-pane", workspace.AutoPane, "Pane to wait on (default: the one needing most attention)")
	f.BoolVar(&openOpts.Log, "log", false, "Append the pane's output to the session log")
	rootCmd.AddCommand(openCmd)
}
