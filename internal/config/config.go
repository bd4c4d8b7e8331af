package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/nicobailon/kiosk/internal/errs"
	"github.com/nicobailon/kiosk/internal/scanner"
	"github.com/nicobailon/kiosk/internal/xdg"
)

const (
	defaultSearchDir    = "~/code"
	defaultPollInterval = 500 * time.Millisecond
	defaultStatusLines  = 50
	defaultLogLevel     = "info"
	defaultLockTimeout  = 30 * time.Second
	envPrefix           = "KIOSK"
)

type SessionConfig struct {
	// SplitCommand runs in a second pane of every new session.
	SplitCommand string `mapstructure:"split_command"`
}

type WaitConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// Timeout of zero waits forever.
	Timeout time.Duration `mapstructure:"timeout"`
}

type StatusConfig struct {
	Lines int `mapstructure:"lines"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type LockConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type Config struct {
	// SearchDirs is decoded by hand: entries are either "path" or {path, depth}.
	SearchDirs []scanner.SearchDir `mapstructure:"-"`
	Session    SessionConfig       `mapstructure:"session"`
	Wait       WaitConfig          `mapstructure:"wait"`
	Status     StatusConfig        `mapstructure:"status"`
	Log        LogConfig           `mapstructure:"log"`
	Lock       LockConfig          `mapstructure:"lock"`
	// File is the config file that was read, empty when running on defaults.
	File string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search_dirs", []string{defaultSearchDir})
	v.SetDefault("session.split_command", "")
	v.SetDefault("wait.poll_interval", defaultPollInterval)
	v.SetDefault("wait.timeout", time.Duration(0))
	v.SetDefault("status.lines", defaultStatusLines)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("lock.timeout", defaultLockTimeout)
}

// Load reads path, or config.{toml,yaml} from the XDG config dir and then
// ~/.config/kiosk when path is empty. A missing default file is not an
// error. KIOSK_* environment variables override file values
// (KIOSK_WAIT_TIMEOUT for wait.timeout).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(xdg.ExpandHome(path))
		if err := v.ReadInConfig(); err != nil {
			return nil, errs.Wrap(errs.ConfigInvalid, err, "read config %s", path)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(xdg.ConfigDir())
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "kiosk"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errs.Wrap(errs.ConfigInvalid, err, "read config")
			}
		}
	}

	cfg := &Config{File: v.ConfigFileUsed()}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errs.Wrap(errs.ConfigInvalid, err, "decode config")
	}
	dirs, err := parseSearchDirs(v.Get("search_dirs"))
	if err != nil {
		return nil, err
	}
	cfg.SearchDirs = dirs
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseSearchDirs(raw any) ([]scanner.SearchDir, error) {
	var items []any
	switch list := raw.(type) {
	case nil:
		return nil, nil
	case string:
		// KIOSK_SEARCH_DIRS is a PATH-style list.
		for _, p := range filepath.SplitList(list) {
			items = append(items, p)
		}
	case []string:
		for _, p := range list {
			items = append(items, p)
		}
	case []any:
		items = list
	default:
		return nil, errs.New(errs.ConfigInvalid, "search_dirs: expected a list, got %T", raw)
	}

	dirs := make([]scanner.SearchDir, 0, len(items))
	for i, item := range items {
		dir := scanner.SearchDir{Depth: scanner.DefaultDepth}
		switch entry := item.(type) {
		case string:
			dir.Path = entry
		case map[string]any:
			p, _ := entry["path"].(string)
			dir.Path = p
			if d, ok := entry["depth"]; ok {
				n, err := toInt(d)
				if err != nil {
					return nil, errs.Wrap(errs.ConfigInvalid, err, "search_dirs[%d].depth", i)
				}
				dir.Depth = n
			}
		default:
			return nil, errs.New(errs.ConfigInvalid, "search_dirs[%d]: expected a path or {path, depth}, got %T", i, item)
		}
		if strings.TrimSpace(dir.Path) == "" {
			return nil, errs.New(errs.ConfigInvalid, "search_dirs[%d]: empty path", i)
		}
		dir.Path = xdg.ExpandHome(dir.Path)
		dirs = append(dirs, dir)
	}
	return dirs, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%v is not a whole number", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func (c *Config) Validate() error {
	for i, d := range c.SearchDirs {
		if d.Depth < 1 || d.Depth > scanner.MaxDepth {
			return errs.New(errs.ConfigInvalid, "search_dirs[%d].depth must be between 1 and %d, got %d", i, scanner.MaxDepth, d.Depth)
		}
	}
	if c.Wait.PollInterval <= 0 {
		return errs.New(errs.ConfigInvalid, "wait.poll_interval must be positive, got %s", c.Wait.PollInterval)
	}
	if c.Wait.Timeout < 0 {
		return errs.New(errs.ConfigInvalid, "wait.timeout must not be negative, got %s", c.Wait.Timeout)
	}
	if c.Lock.Timeout <= 0 {
		return errs.New(errs.ConfigInvalid, "lock.timeout must be positive, got %s", c.Lock.Timeout)
	}
	if c.Status.Lines < 1 {
		return errs.New(errs.ConfigInvalid, "status.lines must be at least 1, got %d", c.Status.Lines)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errs.Wrap(errs.ConfigInvalid, err, "log.level")
	}
	return nil
}

// Values flattens the effective configuration into dotted keys for
// `kiosk config show`.
func (c *Config) Values() map[string]any {
	dirs := make([]map[string]any, 0, len(c.SearchDirs))
	for _, d := range c.SearchDirs {
		dirs = append(dirs, map[string]any{"path": d.Path, "depth": d.Depth})
	}
	return map[string]any{
		"file":                  c.File,
		"search_dirs":           dirs,
		"session.split_command": c.Session.SplitCommand,
		"wait.poll_interval":    c.Wait.PollInterval.String(),
		"wait.timeout":          c.Wait.Timeout.String(),
		"status.lines":          c.Status.Lines,
		"log.level":             c.Log.Level,
		"lock.timeout":          c.Lock.Timeout.String(),
	}
}
