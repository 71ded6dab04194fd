package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/sessionmesh/core"
	"github.com/hupe1980/sessionmesh/logging"
)

// FileStore keeps one file per session named "<prefix>_<id>" inside the
// save path handed to Create. Writes go through a temporary file and a
// rename so readers never observe a partial payload. GC compares file
// modification times against the maximum lifetime.
type FileStore struct {
	mu     sync.RWMutex
	dir    string
	prefix string
	mode   fs.FileMode
	now    func() time.Time
	logger logging.Logger
}

// FileOptions configures a FileStore.
type FileOptions struct {
	// Dir is used until Create supplies a save path (defaults to os.TempDir()).
	Dir string
	// Prefix of every session file (defaults to "sess").
	Prefix string
	// FileMode of session files (defaults to 0600).
	FileMode fs.FileMode
	// Clock returns the current time (defaults to time.Now).
	Clock func() time.Time
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

var _ core.Handler = (*FileStore)(nil)

// NewFileStore creates a FileStore.
func NewFileStore(optFns ...func(o *FileOptions)) *FileStore {
	opts := FileOptions{
		Dir:      os.TempDir(),
		Prefix:   "sess",
		FileMode: 0o600,
		Clock:    time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &FileStore{
		dir:    opts.Dir,
		prefix: opts.Prefix,
		mode:   opts.FileMode,
		now:    opts.Clock,
		logger: logging.OrNoOp(opts.Logger),
	}
}

// Dir returns the directory session files are stored in.
func (s *FileStore) Dir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dir
}

// Path returns the file path used for id.
func (s *FileStore) Path(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pathLocked(id)
}

func (s *FileStore) pathLocked(id string) string {
	return filepath.Join(s.dir, s.prefix+"_"+id)
}

// Create switches to path (when non-empty) and makes sure it exists.
func (s *FileStore) Create(path, name string, _ core.CreateNext) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path != "" {
		s.dir = path
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		s.logger.Error("failed to create session directory", "dir", s.dir, "name", name, "error", err)
		return false
	}
	return true
}

// Read returns the file content, or "" when the session does not exist or
// cannot be read.
func (s *FileStore) Read(id string, _ core.ReadNext) string {
	if !ValidID(id) {
		s.logger.Warn("rejected session read", "error", ErrInvalidID)
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(s.pathLocked(id))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("failed to read session file", "id", id, "error", err)
		}
		return ""
	}
	return string(data)
}

// Write replaces the session file atomically.
func (s *FileStore) Write(id, data string, _ core.WriteNext) bool {
	if !ValidID(id) {
		s.logger.Warn("rejected session write", "error", ErrInvalidID)
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLocked(id, data); err != nil {
		s.logger.Error("failed to write session file", "id", id, "error", err)
		return false
	}
	return true
}

func (s *FileStore) writeLocked(id, data string) error {
	tmp, err := os.CreateTemp(s.dir, "."+s.prefix+"_"+id+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(s.mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.pathLocked(id)); err != nil {
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}

// Delete removes the session file; a missing file counts as success.
func (s *FileStore) Delete(id string, _ core.DeleteNext) bool {
	if !ValidID(id) {
		s.logger.Warn("rejected session delete", "error", ErrInvalidID)
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.pathLocked(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Error("failed to delete session file", "id", id, "error", err)
		return false
	}
	return true
}

// Clean removes session files not modified within maxLifetime seconds.
func (s *FileStore) Clean(maxLifetime int, _ core.CleanNext) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true
		}
		s.logger.Error("failed to list session directory", "dir", s.dir, "error", err)
		return false
	}

	cutoff := s.now().Add(-time.Duration(maxLifetime) * time.Second)
	ok, removed := true, 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), s.prefix+"_") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed concurrently
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("failed to remove expired session file", "file", e.Name(), "error", err)
			ok = false
			continue
		}
		removed++
	}
	s.logger.Debug("session files collected", "dir", s.dir, "removed", removed)
	return ok
}
