package recent

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddOrdersAndDeduplicates(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "recent.json"))
	require.NoError(t, err)
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	s.Add(Entry{Repo: "api", RepoPath: "/c/api", Session: "api", LastAccess: t0})
	s.Add(Entry{Repo: "api", RepoPath: "/c/api", Branch: "feat", Session: "api--feat", LastAccess: t0.Add(time.Minute)})
	s.Add(Entry{Repo: "api", RepoPath: "/c/api", Session: "api", LastAccess: t0.Add(2 * time.Minute)})

	got := s.List(0)
	require.Len(t, got, 2)
	assert.Equal(t, "api", got[0].Session)
	assert.Equal(t, "api--feat", got[1].Session)
	assert.Len(t, s.List(1), 1)
}

func TestSaveLoadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "recent.json")
	s, err := Load(path)
	require.NoError(t, err)
	s.Add(Entry{Repo: "api", RepoPath: "/c/api", Branch: "feat", Session: "api--feat", Path: "/c/.kiosk_worktrees/api/feat"})
	require.NoError(t, s.Save())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Entries, 1)
	assert.Equal(t, "/c/.kiosk_worktrees/api/feat", loaded.Entries[0].Path)

	loaded.Remove("/c/api", "feat")
	assert.Empty(t, loaded.List(0))
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recent.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, s.Entries)
}

func TestPruneKeepsNewest(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "recent.json"))
	require.NoError(t, err)
	t0 := time.Now()
	for i := range maxEntries + 5 {
		s.Add(Entry{RepoPath: "/c/api", Branch: string(rune('a' + i)), LastAccess: t0.Add(time.Duration(i) * time.Second)})
	}
	assert.Len(t, s.Entries, maxEntries)
	assert.Equal(t, string(rune('a'+maxEntries+4)), s.Entries[0].Branch)
}

func TestUpdateKeepsEntriesFromOtherWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "recent.json")

	// Each store stands in for a separate kiosk process holding a stale
	// in-memory copy loaded before the others wrote.
	const n = 8
	stores := make([]*Store, n)
	for i := range n {
		s, err := Load(path)
		require.NoError(t, err)
		stores[i] = s
	}
	var wg sync.WaitGroup
	for i, s := range stores {
		wg.Add(1)
		go func() {
			defer wg.Done()
			branch := fmt.Sprintf("feat-%d", i)
			assert.NoError(t, s.Update(func(s *Store) {
				s.Add(Entry{Repo: "api", RepoPath: "/c/api", Branch: branch, Session: "api--" + branch})
			}))
		}()
	}
	wg.Wait()

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, loaded.List(0), n)

	require.NoError(t, stores[0].Update(func(s *Store) { s.Remove("/c/api", "feat-3") }))
	loaded, err = Load(path)
	require.NoError(t, err)
	assert.Len(t, loaded.List(0), n-1)
	for _, e := range loaded.List(0) {
		assert.NotEqual(t, "feat-3", e.Branch)
	}
}
