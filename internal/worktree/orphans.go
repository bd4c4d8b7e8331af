package worktree

import (
	"context"
	"iter"
	"os"
	"path/filepath"

	"github.com/nicobailon/kiosk/internal/errs"
	"github.com/nicobailon/kiosk/internal/naming"
	"github.com/nicobailon/kiosk/internal/scanner"
)

type OrphanReason string

const (
	// MissingRegistration: the directory exists but git no longer knows it.
	MissingRegistration OrphanReason = "missing-registration"
	// MissingDirectory: git still lists the worktree but its directory is gone.
	MissingDirectory OrphanReason = "missing-directory"
)

type Orphan struct {
	Repo   scanner.Repo `json:"repo" yaml:"repo"`
	Path   string       `json:"path" yaml:"path"`
	Branch string       `json:"branch,omitempty" yaml:"branch,omitempty"`
	Reason OrphanReason `json:"reason" yaml:"reason"`
}

// ListOrphans walks the storage root of every repo and yields worktrees
// whose directory and git registration disagree. Repos whose worktree list
// cannot be read are skipped. The sequence re-reads disk and git each time
// it is ranged over.
func (m *Manager) ListOrphans(ctx context.Context, repos []scanner.Repo) iter.Seq[Orphan] {
	return func(yield func(Orphan) bool) {
		for _, repo := range repos {
			if ctx.Err() != nil {
				return
			}
			wts, err := m.Open(repo.Path).WorktreeList(ctx)
			if err != nil {
				m.Log.Warn("skip orphan scan", "repo", repo.Name, "err", err)
				continue
			}
			storage := filepath.Join(naming.StorageRoot(repo.Path), repo.Name)
			registered := map[string]bool{}
			for i, wt := range wts {
				registered[canonical(wt.Path)] = true
				if i == 0 || wt.Bare || !within(storage, wt.Path) {
					continue
				}
				if wt.Prunable || !exists(wt.Path) {
					if !yield(Orphan{Repo: repo, Path: wt.Path, Branch: wt.Branch, Reason: MissingDirectory}) {
						return
					}
				}
			}

			entries, err := os.ReadDir(storage)
			if err != nil {
				continue
			}
			for _, e := range entries {
				if !e.IsDir() {
					continue
				}
				path := filepath.Join(storage, e.Name())
				if registered[canonical(path)] {
					continue
				}
				if !yield(Orphan{Repo: repo, Path: path, Reason: MissingRegistration}) {
					return
				}
			}
		}
	}
}

// RemoveOrphan deletes an unregistered directory or prunes a registration
// whose directory is gone.
func (m *Manager) RemoveOrphan(ctx context.Context, o Orphan) error {
	switch o.Reason {
	case MissingDirectory:
		m.Log.Info("pruning orphaned registration", "repo", o.Repo.Name, "path", o.Path)
		return m.Open(o.Repo.Path).WorktreePrune(ctx)
	case MissingRegistration:
		if !within(naming.StorageRoot(o.Repo.Path), o.Path) {
			return errs.New(errs.InvalidArgument, "refusing to remove %s outside %s", o.Path, naming.WorktreeDirName)
		}
		m.Log.Info("removing orphaned directory", "repo", o.Repo.Name, "path", o.Path)
		if err := os.RemoveAll(o.Path); err != nil {
			return errs.Wrap(errs.Internal, err, "remove %s", o.Path)
		}
		return nil
	default:
		return errs.New(errs.Internal, "unknown orphan reason %q", o.Reason)
	}
}

func canonical(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}
