package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicobailon/kiosk/internal/errs"
	"github.com/nicobailon/kiosk/internal/scanner"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	tmp := t.TempDir()
	confDir := filepath.Join(tmp, "kiosk")
	require.NoError(t, os.MkdirAll(confDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(confDir, name), []byte(content), 0o644))
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("HOME", t.TempDir())
	return filepath.Join(confDir, name)
}

func TestLoadTOMLConfig(t *testing.T) {
	path := writeConfig(t, "config.toml", `
search_dirs = ["/src", { path = "/work", depth = 3 }]

[session]
split_command = "lazygit"

[wait]
poll_interval = "250ms"
timeout = "10m"

[status]
lines = 20

[log]
level = "debug"
`)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)
	assert.Equal(t, []scanner.SearchDir{{Path: "/src", Depth: 1}, {Path: "/work", Depth: 3}}, cfg.SearchDirs)
	assert.Equal(t, "lazygit", cfg.Session.SplitCommand)
	assert.Equal(t, 250*time.Millisecond, cfg.Wait.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Wait.Timeout)
	assert.Equal(t, 20, cfg.Status.Lines)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.Lock.Timeout)
}

func TestLoadYAMLConfig(t *testing.T) {
	writeConfig(t, "config.yaml", `search_dirs:
  - /src
  - path: /work
    depth: 2
wait:
  timeout: 90s
`)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []scanner.SearchDir{{Path: "/src", Depth: 1}, {Path: "/work", Depth: 2}}, cfg.SearchDirs)
	assert.Equal(t, 90*time.Second, cfg.Wait.Timeout)
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", home)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.File)
	assert.Equal(t, []scanner.SearchDir{{Path: filepath.Join(home, "code"), Depth: 1}}, cfg.SearchDirs)
	assert.Equal(t, 500*time.Millisecond, cfg.Wait.PollInterval)
	assert.Zero(t, cfg.Wait.Timeout)
	assert.Equal(t, 50, cfg.Status.Lines)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestEnvironmentOverrides(t *testing.T) {
	writeConfig(t, "config.toml", `[wait]
timeout = "1m"
`)
	t.Setenv("KIOSK_WAIT_TIMEOUT", "5s")
	t.Setenv("KIOSK_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Wait.Timeout)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`search_dirs = ["/x"]`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/x", cfg.SearchDirs[0].Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Equal(t, errs.ConfigInvalid, errs.KindOf(err))
}

func TestInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"bad duration":  "[wait]\ntimeout = \"soon\"\n",
		"zero depth":    "search_dirs = [{ path = \"/x\", depth = 0 }]\n",
		"deep depth":    "search_dirs = [{ path = \"/x\", depth = 9 }]\n",
		"empty path":    "search_dirs = [\"\"]\n",
		"bad level":     "[log]\nlevel = \"loud\"\n",
		"bad lines":     "[status]\nlines = 0\n",
		"broken syntax": "search_dirs = [\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			writeConfig(t, "config.toml", content)
			_, err := Load("")
			require.Error(t, err)
			assert.Equal(t, errs.ConfigInvalid, errs.KindOf(err))
			assert.Equal(t, errs.ExitConfig, errs.ExitCode(err))
		})
	}
}

func TestValues(t *testing.T) {
	cfg := &Config{
		SearchDirs: []scanner.SearchDir{{Path: "/src", Depth: 2}},
		Wait:       WaitConfig{PollInterval: time.Second},
		Log:        LogConfig{Level: "info"},
	}
	v := cfg.Values()
	assert.Equal(t, "1s", v["wait.poll_interval"])
	assert.Equal(t, "0s", v["wait.timeout"])
	assert.Equal(t, []map[string]any{{"path": "/src", "depth": 2}}, v["search_dirs"])
}
