// Package recent remembers the targets most recently opened with kiosk.
package recent

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/nicobailon/kiosk/internal/xdg"
)

const maxEntries = 30

type Entry struct {
	Repo       string    `json:"repo" yaml:"repo"`
	RepoPath   string    `json:"repo_path" yaml:"repo_path"`
	Branch     string    `json:"branch,omitempty" yaml:"branch,omitempty"`
	Session    string    `json:"session" yaml:"session"`
	Path       string    `json:"path" yaml:"path"`
	LastAccess time.Time `json:"last_access" yaml:"last_access"`
}

type Store struct {
	Entries []Entry `json:"entries"`
	path    string
	mu      sync.Mutex
}

func DefaultPath() string {
	return filepath.Join(xdg.StateDir(), "recent.json")
}

// Load reads the store at path. A missing or unreadable file yields an
// empty store.
func Load(path string) (*Store, error) {
	s := &Store{path: path, Entries: []Entry{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	s.decode(data)
	return s, nil
}

func (s *Store) decode(data []byte) {
	if err := json.Unmarshal(data, s); err != nil {
		s.Entries = []Entry{}
	}
}

// Update re-reads the file under an flock, applies fn and writes the
// result back, so concurrent kiosk processes never drop each other's
// entries.
func (s *Store) Update(fn func(*Store)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		s.Entries = []Entry{}
		s.decode(data)
	case !errors.Is(err, os.ErrNotExist):
		return err
	}
	fn(s)
	return s.Save()
}

// Save writes the store as is. Callers racing other processes should use
// Update instead.
func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Add records e (or refreshes an existing entry for the same session).
func (s *Store) Add(e Entry) {
	if e.LastAccess.IsZero() {
		e.LastAccess = time.Now()
	}
	for i, existing := range s.Entries {
		if existing.RepoPath == e.RepoPath && existing.Branch == e.Branch {
			s.Entries[i] = e
			s.prune()
			return
		}
	}
	s.Entries = append(s.Entries, e)
	s.prune()
}

func (s *Store) prune() {
	sort.SliceStable(s.Entries, func(i, j int) bool {
		return s.Entries[i].LastAccess.After(s.Entries[j].LastAccess)
	})
	if len(s.Entries) > maxEntries {
		s.Entries = s.Entries[:maxEntries]
	}
}

func (s *Store) Remove(repoPath, branch string) {
	filtered := s.Entries[:0]
	for _, e := range s.Entries {
		if !(e.RepoPath == repoPath && e.Branch == branch) {
			filtered = append(filtered, e)
		}
	}
	s.Entries = filtered
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]Entry(nil), s.Entries...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
