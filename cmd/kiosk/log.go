package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nicobailon/kiosk/internal/errs"
)

var (
	logTail   int
	logFollow bool
)

var logCmd = &cobra.Command{
	Use:   "log <repo> [branch]",
	Short: "Print the session log kept by open --log",
	Args:  targetArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if logFollow && ui.Structured() {
			return errs.New(errs.InvalidArgument, "--follow only works with text output")
		}
		svc, err := loadService()
		if err != nil {
			return err
		}
		repo, branch := splitTarget(args)
		if logFollow {
			return svc.LogFollow(cmd.Context(), repo, branch, logTail, ui.Out)
		}
		res, err := svc.Log(cmd.Context(), repo, branch, logTail)
		if err != nil {
			return err
		}
		if ui.Structured() {
			return ui.Emit(res)
		}
		if res.Output != "" {
			fmt.Fprintln(ui.Out, res.Output)
		}
		return nil
	},
}

func init() {
	logCmd.Flags().IntVarP(&logTail, "tail", "n", 100, "Lines from the end, 0 for the whole log")
	logCmd.Flags().BoolVarP(&logFollow, "follow", "f", false, "Keep printing as the log grows")
	rootCmd.AddCommand(logCmd)
}
