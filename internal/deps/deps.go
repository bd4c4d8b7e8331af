// Package deps checks that the external programs kiosk drives are installed.
package deps

import (
	"os/exec"
	"runtime"
	"strings"

	"github.com/nicobailon/kiosk/internal/errs"
)

type Dependency struct {
	Name       string
	Command    string
	InstallCmd map[string]string
}

type Result struct {
	Name  string `json:"name" yaml:"name"`
	Path  string `json:"path,omitempty" yaml:"path,omitempty"`
	Found bool   `json:"found" yaml:"found"`
	Hint  string `json:"hint,omitempty" yaml:"hint,omitempty"`
}

var Git = Dependency{
	Name:    "git",
	Command: "git",
	InstallCmd: map[string]string{
		"darwin": "brew install git",
		"linux":  "sudo apt install git",
	},
}

var Tmux = Dependency{
	Name:    "tmux",
	Command: "tmux",
	InstallCmd: map[string]string{
		"darwin": "brew install tmux",
		"linux":  "sudo apt install tmux",
	},
}

var All = []Dependency{Git, Tmux}

// LookPath is swapped in tests.
var LookPath = exec.LookPath

// Check reports every dependency, found or not, for `kiosk doctor`.
func Check(list ...Dependency) []Result {
	if len(list) == 0 {
		list = All
	}
	results := make([]Result, 0, len(list))
	for _, dep := range list {
		r := Result{Name: dep.Name}
		if path, err := LookPath(dep.Command); err == nil {
			r.Found, r.Path = true, path
		} else {
			r.Hint = InstallHint(dep)
		}
		results = append(results, r)
	}
	return results
}

// Require fails with ToolMissing naming every absent dependency.
func Require(list ...Dependency) error {
	var missing []string
	for _, r := range Check(list...) {
		if !r.Found {
			missing = append(missing, r.Name+" ("+r.Hint+")")
		}
	}
	if len(missing) > 0 {
		return errs.New(errs.ToolMissing, "required program not found: %s", strings.Join(missing, ", "))
	}
	return nil
}

func InstallHint(dep Dependency) string {
	if cmd, ok := dep.InstallCmd[runtime.GOOS]; ok {
		return cmd
	}
	return "install " + dep.Name + " via your package manager"
}
