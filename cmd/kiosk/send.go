package main

import (
	"github.com/spf13/cobra"

	"github.com/nicobailon/kiosk/internal/errs"
	"github.com/nicobailon/kiosk/internal/output"
	"github.com/nicobailon/kiosk/internal/tmux"
)

var (
	sendCommand string
	sendKeys    string
	sendText    string
	sendPane    int
)

var sendCmd = &cobra.Command{
	Use:   "send <repo> [branch]",
	Short: "Type a command, keys or text into a session's pane",
	Args:  targetArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := sendPayload(cmd)
		if err != nil {
			return err
		}
		svc, err := loadService()
		if err != nil {
			return err
		}
		repo, branch := splitTarget(args)
		res, err := svc.Send(cmd.Context(), repo, branch, p, sendPane)
		if err != nil {
			return err
		}
		if ui.Structured() {
			return ui.Emit(res)
		}
		ui.Success("Sent %s to %s (pane %d)", res.Kind, output.Cyan(res.Session), res.Pane)
		return nil
	},
}

func sendPayload(cmd *cobra.Command) (tmux.Payload, error) {
	var set []tmux.Payload
	if cmd.Flags().Changed("command") {
		set = append(set, tmux.Command(sendCommand))
	}
	if cmd.Flags().Changed("keys") {
		set = append(set, tmux.Keys(sendKeys))
	}
	if cmd.Flags().Changed("text") {
		set = append(set, tmux.Text(sendText))
	}
	if len(set) != 1 {
		return tmux.Payload{}, errs.New(errs.InvalidArgument, "exactly one of --command, --keys or --text is required")
	}
	return set[0], nil
}

func init() {
	f := sendCmd.Flags()
	f.StringVar(&sendCommand, "command", "", "Type this and press Enter")
	f.StringVar(&sendKeys, "keys", "", "Space separated tmux key names (C-c, Escape, Up)")
	f.StringVar(&sendText, "text", "", "Literal text, no Enter")
	f.IntVar(&sendPane, "pane", 0, "Pane index, 0-based in tmux listing order")
	rootCmd.AddCommand(sendCmd)
}
