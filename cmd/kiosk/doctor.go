package main

import (
	"github.com/spf13/cobra"

	"github.com/nicobailon/kiosk/internal/deps"
	"github.com/nicobailon/kiosk/internal/errs"
	"github.com/nicobailon/kiosk/internal/output"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that git and tmux are installed",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		results := deps.Check(deps.All...)
		var missing int
		for _, r := range results {
			if !r.Found {
				missing++
			}
		}
		if ui.Structured() {
			if err := ui.Emit(results); err != nil {
				return err
			}
		} else {
			for _, r := range results {
				if r.Found {
					ui.Success("%s %s", r.Name, output.Faint(r.Path))
				} else {
					ui.Error("%s not found, try: %s", r.Name, r.Hint)
				}
			}
		}
		if missing > 0 {
			return errs.New(errs.ToolMissing, "%d required program(s) missing", missing)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
