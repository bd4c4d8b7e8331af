package workspace

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/x/ansi"
	"github.com/fsnotify/fsnotify"

	"github.com/nicobailon/kiosk/internal/errs"
)

type LogResult struct {
	Session string `json:"session" yaml:"session"`
	Path    string `json:"path" yaml:"path"`
	Output  string `json:"output" yaml:"output"`
}

func (s *Service) logFile(ctx context.Context, repoName, branch string) (string, string, error) {
	t, err := s.resolve(ctx, repoName, branch)
	if err != nil {
		return "", "", err
	}
	path := s.LogPath(t.Session)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", errs.New(errs.SessionNotFound, "no log for session %s (open with --log)", t.Session)
		}
		return "", "", errs.Wrap(errs.Internal, err, "stat %s", path)
	}
	return t.Session, path, nil
}

// Log returns the last tail lines of the session log, with escape
// sequences stripped. tail <= 0 returns the whole file.
func (s *Service) Log(ctx context.Context, repoName, branch string, tail int) (LogResult, error) {
	session, path, err := s.logFile(ctx, repoName, branch)
	if err != nil {
		return LogResult{}, err
	}
	out, err := s.readLog(session, tail)
	if err != nil {
		return LogResult{}, errs.Wrap(errs.Internal, err, "read %s", path)
	}
	return LogResult{Session: session, Path: path, Output: out}, nil
}

// LogFollow writes the log tail to w and then everything appended to the
// log until ctx is done.
func (s *Service) LogFollow(ctx context.Context, repoName, branch string, tail int, w io.Writer) error {
	session, path, err := s.logFile(ctx, repoName, branch)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(errs.Internal, err, "create log watcher")
	}
	defer watcher.Close()
	// The directory is watched so a log recreated by a new pipe is seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errs.Wrap(errs.Internal, err, "watch %s", filepath.Dir(path))
	}

	initial, err := s.readLog(session, tail)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "read %s", path)
	}
	if initial != "" {
		if _, err := io.WriteString(w, initial+"\n"); err != nil {
			return err
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "stat %s", path)
	}
	offset := info.Size()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != path || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			if offset, err = copyFrom(path, offset, w); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.Logger.Warn("log watcher", "path", path, "err", err)
		}
	}
}

// copyFrom writes path's bytes past offset to w and returns the new end.
// A file shorter than offset was truncated and is read from the start.
func copyFrom(path string, offset int64, w io.Writer) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, errs.Wrap(errs.Internal, err, "open %s", path)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return offset, errs.Wrap(errs.Internal, err, "stat %s", path)
	}
	if info.Size() < offset {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, errs.Wrap(errs.Internal, err, "seek %s", path)
	}
	chunk, err := io.ReadAll(f)
	if err != nil {
		return offset, errs.Wrap(errs.Internal, err, "read %s", path)
	}
	if len(chunk) == 0 {
		return offset, nil
	}
	if _, err := io.WriteString(w, ansi.Strip(string(chunk))); err != nil {
		return offset, err
	}
	return offset + int64(len(chunk)), nil
}
