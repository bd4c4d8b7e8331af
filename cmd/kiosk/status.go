package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nicobailon/kiosk/internal/output"
	"github.com/nicobailon/kiosk/internal/workspace"
)

var (
	statusPane  int
	statusLines int

	waitTimeout time.Duration
	waitPane    int
)

var statusCmd = &cobra.Command{
	Use:   "status <repo> [branch]",
	Short: "Show the agent state and recent output of a session",
	Args:  targetArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		repo, branch := splitTarget(args)
		res, err := svc.Status(cmd.Context(), repo, branch, workspace.StatusOptions{Pane: statusPane, Lines: statusLines})
		if err != nil {
			return err
		}
		if ui.Structured() {
			return ui.Emit(res)
		}
		printStatus(res)
		return nil
	},
}

func printStatus(res workspace.StatusResult) {
	out := ui.Out
	fmt.Fprintf(out, "%s %s\n", output.Cyan(res.Session), output.Faint(res.Path))
	if !res.Live {
		fmt.Fprintln(out, output.Faint("session not running, showing the session log"))
	} else {
		attached := "detached"
		if res.Attached {
			attached = fmt.Sprintf("attached (%d clients)", res.Clients)
		}
		fmt.Fprintln(out, attached)
	}
	if p := res.Pane; p != nil {
		state := output.StateColor(p.State)
		if p.Dead {
			state = output.Red("dead")
		}
		agent := string(p.Agent)
		if agent == "" {
			agent = "-"
		}
		fmt.Fprintf(out, "pane %d (%s) %s agent=%s %s\n", p.Index, p.ID, p.Command, agent, state)
	}
	if res.Output != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, res.Output)
	}
}

var waitCmd = &cobra.Command{
	Use:   "wait <repo> [branch]",
	Short: "Block until a session's pane is idle, needs input or dies",
	Args:  targetArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		timeout := waitTimeout
		if !cmd.Flags().Changed("timeout") {
			timeout = svc.Config.Wait.Timeout
		}
		repo, branch := splitTarget(args)
		res, err := svc.Wait(cmd.Context(), repo, branch, workspace.WaitOptions{Pane: waitPane, Timeout: timeout})
		if err != nil && ui.Structured() && res.Polls > 0 {
			return output.WithResult(err, res)
		}
		if err != nil {
			return err
		}
		if ui.Structured() {
			return ui.Emit(res)
		}
		state := output.StateColor(res.State)
		if res.Dead {
			state = output.Red("dead")
		}
		fmt.Fprintf(ui.Out, "%s %s after %.1fs\n", output.Cyan(res.Session), state, res.Elapsed)
		return nil
	},
}

var panesCmd = &cobra.Command{
	Use:   "panes <repo> [branch]",
	Short: "List a session's panes with their agent state",
	Args:  targetArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadService()
		if err != nil {
			return err
		}
		repo, branch := splitTarget(args)
		panes, err := svc.Panes(cmd.Context(), repo, branch)
		if err != nil {
			return err
		}
		if ui.Structured() {
			return ui.Emit(panes)
		}
		table := ui.Table([]string{"PANE", "ID", "COMMAND", "PID", "AGENT", "STATE"})
		for _, p := range panes {
			state := output.StateColor(p.State)
			if p.Dead {
				state = output.Red("dead")
			}
			_ = table.Append([]string{strconv.Itoa(p.Index), p.ID, p.Command, strconv.Itoa(p.PID), string(p.Agent), state})
		}
		return table.Render()
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusPane, "pane", workspace.AutoPane, "Pane index (default: the one needing most attention)")
	statusCmd.Flags().IntVar(&statusLines, "lines", 0, "Output lines to show (default status.lines)")
	waitCmd.Flags().DurationVar(&waitTimeout, "timeout", 0, "Give up after this long, 0 waits forever (default wait.timeout)")
	waitCmd.Flags().IntVar(&waitPane, "pane", workspace.AutoPane, "Pane index (default: the one needing most attention)")
	rootCmd.AddCommand(statusCmd, waitCmd, panesCmd)
}
