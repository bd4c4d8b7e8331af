package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/nicobailon/kiosk/internal/config"
	"github.com/nicobailon/kiosk/internal/deps"
	"github.com/nicobailon/kiosk/internal/errs"
	"github.com/nicobailon/kiosk/internal/git"
	"github.com/nicobailon/kiosk/internal/logging"
	"github.com/nicobailon/kiosk/internal/output"
	"github.com/nicobailon/kiosk/internal/recent"
	"github.com/nicobailon/kiosk/internal/shell"
	"github.com/nicobailon/kiosk/internal/tmux"
	"github.com/nicobailon/kiosk/internal/tui"
	"github.com/nicobailon/kiosk/internal/wait"
	"github.com/nicobailon/kiosk/internal/workspace"
	"github.com/nicobailon/kiosk/internal/worktree"
	"github.com/nicobailon/kiosk/internal/xdg"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

var (
	outputFlag string
	jsonFlag   bool
	configPath string
	verbose    bool

	ui      *output.UI
	closers []io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "kiosk",
	Short: "One git worktree and one tmux session per branch, driven from scripts and agents",
	Long: `kiosk maps every (repository, branch) pair to a git worktree and a tmux
session with a predictable name, and reports what coding agents running in
those sessions are doing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return errs.New(errs.InvalidArgument, "unknown command %q for %s", args[0], cmd.CommandPath())
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(outputFlag)
		if err != nil {
			return err
		}
		if jsonFlag {
			format = output.JSON
		}
		ui = output.New(format)
		ui.Verbose = verbose
		return nil
	},
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "text", "Output format: text, json or yaml")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Shorthand for --output json")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/kiosk/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging, mirrored to stderr")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errs.Wrap(errs.InvalidArgument, err, "%s", cmd.CommandPath())
	})
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	for _, c := range closers {
		_ = c.Close()
	}
	if err == nil {
		return errs.ExitOK
	}
	if ui == nil {
		ui = output.New(output.Text)
	}
	ui.PrintError(err)
	return errs.ExitCode(err)
}

// loadConfig reads the config and opens the debug log.
func loadConfig() (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, closer, err := logging.New(logging.Options{Level: cfg.Log.Level, Verbose: verbose})
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, closer)
	logger.Debug("config loaded", "file", cfg.File)
	return cfg, logger, nil
}

func loadService() (*workspace.Service, error) {
	if err := deps.Require(deps.Git, deps.Tmux); err != nil {
		return nil, err
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := recent.Load(recent.DefaultPath())
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "load recent targets")
	}

	cmd := &shell.ExecCommander{}
	mux := tmux.New(cmd, logger)
	ledger := worktree.NewLedger(filepath.Join(xdg.StateDir(), "pending_deletes.toml"))
	wts := worktree.NewManager(cmd, mux, ledger, logger)
	wts.LockTimeout = cfg.Lock.Timeout
	vcs := func(root string) workspace.VCS { return git.New(root, cmd, logger) }

	svc := workspace.NewService(mux, wts, vcs, cfg, store, logger)
	svc.Waiter = progressWaiter
	return svc, nil
}

// progressWaiter draws a spinner on stderr while waiting, but only for
// people: structured output and redirected stderr get a bare wait.
func progressWaiter(ctx context.Context, label string, timeout time.Duration, fn func(context.Context, func(wait.Observation)) (wait.Result, error)) (wait.Result, error) {
	if ui.Structured() || !isatty.IsTerminal(os.Stderr.Fd()) {
		return fn(ctx, nil)
	}
	return tui.RunWait(ctx, os.Stderr, label, timeout, fn)
}

// targetArgs accepts `<repo> [branch]`.
func targetArgs(cmd *cobra.Command, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errs.New(errs.InvalidArgument, "usage: %s", cmd.UseLine())
	}
	return nil
}

func splitTarget(args []string) (repo, branch string) {
	if len(args) > 1 {
		return args[0], args[1]
	}
	return args[0], ""
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return errs.New(errs.InvalidArgument, "usage: %s", cmd.UseLine())
		}
		return nil
	}
}
