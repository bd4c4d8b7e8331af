package worktree

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"

	"github.com/nicobailon/kiosk/internal/errs"
)

const (
	ledgerVersion = 1
	DefaultTTL    = 24 * time.Hour
)

// PendingDelete records a deletion in flight so a second process deleting
// the same target backs off instead of racing git.
type PendingDelete struct {
	ID           string    `toml:"id"`
	RepoPath     string    `toml:"repo_path"`
	Branch       string    `toml:"branch"`
	WorktreePath string    `toml:"worktree_path"`
	PID          int       `toml:"pid"`
	StartedAt    time.Time `toml:"started_at"`
}

type ledgerFile struct {
	Version int             `toml:"version"`
	Entries []PendingDelete `toml:"entries"`
}

// Ledger is the pending-delete state file. Every read-modify-write holds an
// flock on Path + ".lock". Entries older than TTL are ignored and dropped.
type Ledger struct {
	Path string
	TTL  time.Duration
	now  func() time.Time
}

func NewLedger(path string) *Ledger {
	return &Ledger{Path: path, TTL: DefaultTTL, now: time.Now}
}

func newID(now time.Time) string {
	entropy := rand.New(rand.NewSource(now.UnixNano()))
	return ulid.MustNew(ulid.Timestamp(now), ulid.Monotonic(entropy, 0)).String()
}

// Begin registers a deletion of (repoPath, branch) and returns its ID. It
// fails with WorktreeBusy when a live entry for the same target exists.
func (l *Ledger) Begin(repoPath, branch, worktreePath string) (string, error) {
	var id string
	err := l.update(func(entries []PendingDelete) ([]PendingDelete, error) {
		for _, e := range entries {
			if e.RepoPath == repoPath && e.Branch == branch {
				return nil, errs.New(errs.WorktreeBusy,
					"deletion of %s already in progress (pid %d, since %s)", branch, e.PID, e.StartedAt.Format(time.RFC3339))
			}
		}
		now := l.now()
		id = newID(now)
		return append(entries, PendingDelete{
			ID:           id,
			RepoPath:     repoPath,
			Branch:       branch,
			WorktreePath: worktreePath,
			PID:          os.Getpid(),
			StartedAt:    now.UTC().Truncate(time.Second),
		}), nil
	})
	return id, err
}

// End drops the entry with id. Unknown IDs are ignored.
func (l *Ledger) End(id string) error {
	return l.update(func(entries []PendingDelete) ([]PendingDelete, error) {
		kept := entries[:0]
		for _, e := range entries {
			if e.ID != id {
				kept = append(kept, e)
			}
		}
		return kept, nil
	})
}

// List returns the unexpired entries.
func (l *Ledger) List() ([]PendingDelete, error) {
	return l.read()
}

func (l *Ledger) update(fn func([]PendingDelete) ([]PendingDelete, error)) error {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return errs.Wrap(errs.Internal, err, "create state dir")
	}
	lock := flock.New(l.Path + ".lock")
	if err := lock.Lock(); err != nil {
		return errs.Wrap(errs.Internal, err, "lock %s", l.Path)
	}
	defer func() { _ = lock.Unlock() }()

	entries, err := l.read()
	if err != nil {
		return err
	}
	entries, err = fn(entries)
	if err != nil {
		return err
	}
	return l.write(entries)
}

func (l *Ledger) read() ([]PendingDelete, error) {
	var f ledgerFile
	// Missing, unreadable and foreign-version ledgers all read as empty.
	if _, err := toml.DecodeFile(l.Path, &f); err != nil || f.Version != ledgerVersion {
		return nil, nil
	}
	cutoff := l.now().Add(-l.TTL)
	var live []PendingDelete
	for _, e := range f.Entries {
		if e.StartedAt.After(cutoff) {
			live = append(live, e)
		}
	}
	return live, nil
}

func (l *Ledger) write(entries []PendingDelete) error {
	if len(entries) == 0 {
		if err := os.Remove(l.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errs.Wrap(errs.Internal, err, "remove %s", l.Path)
		}
		return nil
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(ledgerFile{Version: ledgerVersion, Entries: entries}); err != nil {
		return errs.Wrap(errs.Internal, err, "encode pending deletes")
	}
	tmp := l.Path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return errs.Wrap(errs.Internal, err, "write %s", tmp)
	}
	if err := os.Rename(tmp, l.Path); err != nil {
		return errs.Wrap(errs.Internal, err, "replace %s", l.Path)
	}
	return nil
}
