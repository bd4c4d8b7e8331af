package xdg

import (
	"os"
	"path/filepath"
)

const appName = "kiosk"

func base(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" && filepath.IsAbs(dir) {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(append([]string{home}, fallback...)...)
}

// ConfigDir is $XDG_CONFIG_HOME/kiosk (default ~/.config/kiosk).
func ConfigDir() string {
	return filepath.Join(base("XDG_CONFIG_HOME", ".config"), appName)
}

// StateDir is $XDG_STATE_HOME/kiosk (default ~/.local/state/kiosk).
func StateDir() string {
	return filepath.Join(base("XDG_STATE_HOME", ".local", "state"), appName)
}

// DataDir is $XDG_DATA_HOME/kiosk (default ~/.local/share/kiosk).
func DataDir() string {
	return filepath.Join(base("XDG_DATA_HOME", ".local", "share"), appName)
}

func LogDir() string {
	return filepath.Join(DataDir(), "logs")
}

// SessionLog is where `open --log` pipes a session's pane output.
func SessionLog(session string) string {
	return filepath.Join(LogDir(), session+".log")
}

// ExpandHome resolves a leading ~/ and environment references.
func ExpandHome(path string) string {
	path = os.ExpandEnv(path)
	if path == "~" || len(path) > 1 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
