package worktree

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicobailon/kiosk/internal/errs"
	"github.com/nicobailon/kiosk/internal/git"
	"github.com/nicobailon/kiosk/internal/git/gittest"
	"github.com/nicobailon/kiosk/internal/scanner"
	"github.com/nicobailon/kiosk/internal/shell"
)

type fakeSessions map[string]bool

func (f fakeSessions) SessionExists(_ context.Context, name string) bool { return f[name] }

func setup(t *testing.T) (*Manager, scanner.Repo) {
	t.Helper()
	parent := gittest.Dir(t)
	path := gittest.InitRepo(t, parent, "api")
	m := NewManager(&shell.ExecCommander{}, fakeSessions{}, NewLedger(filepath.Join(parent, "state", "pending_deletes.toml")), nil)
	return m, scanner.Repo{Name: "api", Path: path}
}

func worktrees(t *testing.T, repo scanner.Repo) []git.Worktree {
	t.Helper()
	wts, err := git.New(repo.Path, &shell.ExecCommander{}, nil).WorktreeList(context.Background())
	require.NoError(t, err)
	return wts
}

func TestEnsureCreatesThenReuses(t *testing.T) {
	m, repo := setup(t)
	gittest.Run(t, repo.Path, "branch", "feat/login")
	ctx := context.Background()

	first, err := m.Ensure(ctx, repo, "feat/login", EnsureOptions{})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, filepath.Join(filepath.Dir(repo.Path), ".kiosk_worktrees", "api", "feat-login"), first.Path)
	assert.DirExists(t, first.Path)

	second, err := m.Ensure(ctx, repo, "feat/login", EnsureOptions{})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Path, second.Path)
	assert.Len(t, worktrees(t, repo), 2)
}

func TestEnsureConcurrentCallersShareOneWorktree(t *testing.T) {
	m, repo := setup(t)
	gittest.Run(t, repo.Path, "branch", "feat")

	const n = 6
	var wg sync.WaitGroup
	results := make([]Result, n)
	failures := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], failures[i] = m.Ensure(context.Background(), repo, "feat", EnsureOptions{})
		}()
	}
	wg.Wait()

	created := 0
	for i := range n {
		require.NoError(t, failures[i])
		assert.Equal(t, results[0].Path, results[i].Path)
		if results[i].Created {
			created++
		}
	}
	assert.Equal(t, 1, created)
	assert.Len(t, worktrees(t, repo), 2)
}

func TestEnsureWaitsOutInitializingWorktree(t *testing.T) {
	m, repo := setup(t)
	gittest.Run(t, repo.Path, "branch", "feat")
	ctx := context.Background()
	dir := filepath.Join(filepath.Dir(repo.Path), ".kiosk_worktrees", "api", "feat")

	// A creator holding the lock has registered the worktree but git has
	// not yet cleared its "initializing" lock.
	unlock, err := m.lock(ctx, repo, "feat")
	require.NoError(t, err)
	gittest.Run(t, repo.Path, "worktree", "add", "-q", dir, "feat")
	marker := filepath.Join(repo.Path, ".git", "worktrees", "feat", "locked")
	require.NoError(t, os.WriteFile(marker, []byte("initializing"), 0o644))
	require.Equal(t, "initializing", worktrees(t, repo)[1].LockReason)

	m.LockTimeout = 100 * time.Millisecond
	_, err = m.Ensure(ctx, repo, "feat", EnsureOptions{})
	assert.Equal(t, errs.TimedOut, errs.KindOf(err))

	// Creator gave up without clearing the marker.
	unlock()
	_, err = m.Ensure(ctx, repo, "feat", EnsureOptions{})
	assert.Equal(t, errs.WorktreeBusy, errs.KindOf(err))

	require.NoError(t, os.Remove(marker))
	res, err := m.Ensure(ctx, repo, "feat", EnsureOptions{})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, dir, res.Path)
}

func TestEnsureUnknownBranch(t *testing.T) {
	m, repo := setup(t)

	_, err := m.Ensure(context.Background(), repo, "nope", EnsureOptions{})
	require.Error(t, err)
	assert.Equal(t, errs.BranchNotFound, errs.KindOf(err))
	assert.Contains(t, err.Error(), "--new-branch")
}

func TestEnsureNewBranch(t *testing.T) {
	m, repo := setup(t)
	ctx := context.Background()

	res, err := m.Ensure(ctx, repo, "feat/new", EnsureOptions{NewBranch: true, Base: "main"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "feat/new", worktrees(t, repo)[1].Branch)

	_, err = m.Ensure(ctx, repo, "feat/new", EnsureOptions{NewBranch: true, Base: "main"})
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))

	_, err = m.Ensure(ctx, repo, "other", EnsureOptions{NewBranch: true, Base: "missing"})
	assert.Equal(t, errs.BranchNotFound, errs.KindOf(err))

	_, err = m.Ensure(ctx, repo, "other", EnsureOptions{NewBranch: true})
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}

func TestEnsureTracksRemoteOnlyBranch(t *testing.T) {
	m, upstream := setup(t)
	gittest.Run(t, upstream.Path, "branch", "remote-feat")
	parent := filepath.Dir(upstream.Path)
	gittest.Run(t, parent, "clone", "-q", upstream.Path, "clone")
	repo := scanner.Repo{Name: "clone", Path: filepath.Join(parent, "clone")}

	res, err := m.Ensure(context.Background(), repo, "remote-feat", EnsureOptions{})
	require.NoError(t, err)
	assert.True(t, res.Created)
	upstreamRef := gittest.Run(t, res.Path, "rev-parse", "--abbrev-ref", "@{upstream}")
	assert.Equal(t, "origin/remote-feat\n", upstreamRef)
}

func TestEnsureSkipsOccupiedDirectory(t *testing.T) {
	m, repo := setup(t)
	gittest.Run(t, repo.Path, "branch", "feat")
	occupied := filepath.Join(filepath.Dir(repo.Path), ".kiosk_worktrees", "api", "feat")
	require.NoError(t, os.MkdirAll(occupied, 0o755))

	res, err := m.Ensure(context.Background(), repo, "feat", EnsureOptions{})
	require.NoError(t, err)
	assert.Equal(t, occupied+"-2", res.Path)
}

func TestEnsureRecoversFromDeletedDirectory(t *testing.T) {
	m, repo := setup(t)
	gittest.Run(t, repo.Path, "branch", "feat")
	ctx := context.Background()
	res, err := m.Ensure(ctx, repo, "feat", EnsureOptions{})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(res.Path))

	again, err := m.Ensure(ctx, repo, "feat", EnsureOptions{})
	require.NoError(t, err)
	assert.True(t, again.Created)
	assert.Equal(t, res.Path, again.Path)
}

func TestEnsureLockTimeout(t *testing.T) {
	m, repo := setup(t)
	gittest.Run(t, repo.Path, "branch", "feat")
	unlock, err := m.lock(context.Background(), repo, "feat")
	require.NoError(t, err)
	defer unlock()

	m.LockTimeout = 100 * time.Millisecond
	_, err = m.Ensure(context.Background(), repo, "feat", EnsureOptions{})
	assert.Equal(t, errs.TimedOut, errs.KindOf(err))
}

func TestDelete(t *testing.T) {
	m, repo := setup(t)
	gittest.Run(t, repo.Path, "branch", "feat")
	ctx := context.Background()
	res, err := m.Ensure(ctx, repo, "feat", EnsureOptions{})
	require.NoError(t, err)

	path, err := m.Delete(ctx, repo, "feat", DeleteOptions{})
	require.NoError(t, err)
	assert.Equal(t, res.Path, path)
	assert.NoDirExists(t, res.Path)
	assert.Len(t, worktrees(t, repo), 1)
	// the branch ref survives
	gittest.Run(t, repo.Path, "show-ref", "--verify", "refs/heads/feat")
}

func TestDeleteDirtyNeedsForce(t *testing.T) {
	m, repo := setup(t)
	gittest.Run(t, repo.Path, "branch", "feat")
	ctx := context.Background()
	res, err := m.Ensure(ctx, repo, "feat", EnsureOptions{})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(res.Path, "scratch.txt"), []byte("wip"), 0o644))

	_, err = m.Delete(ctx, repo, "feat", DeleteOptions{})
	assert.Equal(t, errs.WorktreeDirty, errs.KindOf(err))
	assert.DirExists(t, res.Path)

	_, err = m.Delete(ctx, repo, "feat", DeleteOptions{Force: true})
	require.NoError(t, err)
	assert.NoDirExists(t, res.Path)
}

func TestDeleteRefusals(t *testing.T) {
	m, repo := setup(t)
	gittest.Run(t, repo.Path, "branch", "feat")
	ctx := context.Background()
	res, err := m.Ensure(ctx, repo, "feat", EnsureOptions{})
	require.NoError(t, err)

	_, err = m.Delete(ctx, repo, "main", DeleteOptions{Force: true})
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))

	_, err = m.Delete(ctx, repo, "ghost", DeleteOptions{})
	assert.Equal(t, errs.BranchNotFound, errs.KindOf(err))

	m.Sessions = fakeSessions{"api--feat": true}
	_, err = m.Delete(ctx, repo, "feat", DeleteOptions{})
	assert.Equal(t, errs.WorktreeBusy, errs.KindOf(err))

	m.Sessions = fakeSessions{}
	id, err := m.Pending.Begin(repo.Path, "feat", res.Path)
	require.NoError(t, err)
	_, err = m.Delete(ctx, repo, "feat", DeleteOptions{})
	assert.Equal(t, errs.WorktreeBusy, errs.KindOf(err))
	assert.Contains(t, err.Error(), "already in progress")

	require.NoError(t, m.Pending.End(id))
	_, err = m.Delete(ctx, repo, "feat", DeleteOptions{})
	require.NoError(t, err)
}

func TestOrphansDetectedAndRemoved(t *testing.T) {
	m, repo := setup(t)
	gittest.Run(t, repo.Path, "branch", "gone")
	gittest.Run(t, repo.Path, "branch", "kept")
	ctx := context.Background()
	gone, err := m.Ensure(ctx, repo, "gone", EnsureOptions{})
	require.NoError(t, err)
	_, err = m.Ensure(ctx, repo, "kept", EnsureOptions{})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(gone.Path))
	stray := filepath.Join(filepath.Dir(repo.Path), ".kiosk_worktrees", "api", "stray")
	require.NoError(t, os.MkdirAll(stray, 0o755))

	var orphans []Orphan
	for o := range m.ListOrphans(ctx, []scanner.Repo{repo}) {
		orphans = append(orphans, o)
	}
	require.Len(t, orphans, 2)
	assert.Equal(t, Orphan{Repo: repo, Path: gone.Path, Branch: "gone", Reason: MissingDirectory}, orphans[0])
	assert.Equal(t, Orphan{Repo: repo, Path: stray, Reason: MissingRegistration}, orphans[1])

	for _, o := range orphans {
		require.NoError(t, m.RemoveOrphan(ctx, o))
	}
	assert.NoDirExists(t, stray)
	for o := range m.ListOrphans(ctx, []scanner.Repo{repo}) {
		t.Errorf("unexpected orphan after clean: %+v", o)
	}
	assert.Len(t, worktrees(t, repo), 2)
}

func TestRemoveOrphanStaysInsideStorage(t *testing.T) {
	m, repo := setup(t)
	err := m.RemoveOrphan(context.Background(), Orphan{Repo: repo, Path: repo.Path, Reason: MissingRegistration})
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
	assert.DirExists(t, repo.Path)
}
