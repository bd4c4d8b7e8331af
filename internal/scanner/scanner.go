// Package scanner discovers git repositories under the configured search
// directories.
package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nicobailon/kiosk/internal/errs"
	"github.com/nicobailon/kiosk/internal/naming"
	"github.com/nicobailon/kiosk/internal/xdg"
)

const (
	DefaultDepth = 1
	MaxDepth     = 8
)

type Repo struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}

// SearchDir is scanned Depth levels deep; depth 1 looks only at direct
// children of Path.
type SearchDir struct {
	Path  string
	Depth int
}

// ScanRepos returns every repository found under dirs, sorted by name then
// path. Unreadable directories are skipped.
func ScanRepos(dirs []SearchDir) []Repo {
	var repos []Repo
	seen := map[string]bool{}
	for _, d := range dirs {
		root := xdg.ExpandHome(d.Path)
		depth := d.Depth
		if depth < 1 {
			depth = DefaultDepth
		}
		walk(root, 1, min(depth, MaxDepth), func(path string) {
			if resolved, err := filepath.EvalSymlinks(path); err == nil {
				path = resolved
			}
			if seen[path] {
				return
			}
			seen[path] = true
			repos = append(repos, Repo{Name: filepath.Base(path), Path: path})
		})
	}
	sort.Slice(repos, func(i, j int) bool {
		if repos[i].Name != repos[j].Name {
			return repos[i].Name < repos[j].Name
		}
		return repos[i].Path < repos[j].Path
	})
	return repos
}

func walk(dir string, level, depth int, found func(string)) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") || name == naming.WorktreeDirName {
			continue
		}
		path := filepath.Join(dir, name)
		if isRepo(path) {
			found(path)
			continue
		}
		if level < depth {
			walk(path, level+1, depth, found)
		}
	}
}

// isRepo accepts primary checkouts only; linked worktrees carry a .git file.
func isRepo(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil && info.IsDir()
}

// Find picks the repository called name.
func Find(repos []Repo, name string) (Repo, error) {
	var matches []Repo
	for _, r := range repos {
		if r.Name == name {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		names := make([]string, 0, len(repos))
		for _, r := range repos {
			names = append(names, r.Name)
		}
		if len(names) == 0 {
			return Repo{}, errs.New(errs.RepoNotFound, "repository %q not found (no repositories under search_dirs)", name)
		}
		return Repo{}, errs.New(errs.RepoNotFound, "repository %q not found (available: %s)", name, strings.Join(names, ", "))
	default:
		paths := make([]string, 0, len(matches))
		for _, r := range matches {
			paths = append(paths, r.Path)
		}
		return Repo{}, errs.New(errs.InvalidArgument, "repository name %q is ambiguous: %s", name, strings.Join(paths, ", "))
	}
}
