// Package naming derives session names and worktree locations from a
// repository and branch. Automation predicts these names, so the rules
// here are a compatibility surface.
package naming

import (
	"path/filepath"
	"strings"
)

const (
	// WorktreeDirName is created next to each repository and holds its worktrees.
	WorktreeDirName = ".kiosk_worktrees"
	lockDirName     = ".locks"
	separator       = "--"
)

// tmux refuses '.' and ':' in session names; '/' is kept out for readability.
var sessionReplacer = strings.NewReplacer(".", "_", ":", "_", "/", "-")

var dirReplacer = strings.NewReplacer("/", "-", string(filepath.Separator), "-")

// SessionName returns `<repo>` for the default branch (branch == "") and
// `<repo>--<branch>` otherwise. Distinct inputs can collide after
// sanitization ("a/b" and "a-b"); callers accept that.
func SessionName(repo, branch string) string {
	name := sessionReplacer.Replace(repo)
	if branch == "" {
		return name
	}
	return name + separator + sessionReplacer.Replace(branch)
}

// BelongsTo reports whether session follows the naming scheme of repo.
func BelongsTo(session, repo string) bool {
	base := SessionName(repo, "")
	return session == base || strings.HasPrefix(session, base+separator)
}

func BranchDir(branch string) string {
	return dirReplacer.Replace(branch)
}

// StorageRoot is the per-parent directory holding every kiosk worktree of
// repositories that live in the same parent directory.
func StorageRoot(repoPath string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(repoPath)), WorktreeDirName)
}

func WorktreeDir(repoPath, repoName, branch string) string {
	return filepath.Join(StorageRoot(repoPath), repoName, BranchDir(branch))
}

// LockPath is the advisory lock file guarding creation of one
// (repository, branch) worktree.
func LockPath(repoPath, repoName, branch string) string {
	return filepath.Join(StorageRoot(repoPath), lockDirName, repoName+separator+BranchDir(branch)+".lock")
}
