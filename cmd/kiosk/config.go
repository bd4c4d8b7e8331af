package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/nicobailon/kiosk/internal/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long: `Show kiosk configuration.

Running bare 'kiosk config' is the same as 'kiosk config show'.`,
	Args: exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

func configShowRun() error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	values := cfg.Values()
	if ui.Structured() {
		return ui.Emit(values)
	}
	file := cfg.File
	if file == "" {
		file = "(none, using defaults)"
	}
	fmt.Fprintf(ui.Out, "%s %s\n\n", output.Faint("config file:"), file)
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "file" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	table := ui.Table([]string{"KEY", "VALUE"})
	for _, k := range keys {
		_ = table.Append([]string{output.Cyan(k), fmt.Sprint(values[k])})
	}
	return table.Render()
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
