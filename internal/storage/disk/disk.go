package disk

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"pkt.systems/pslog"

	"pkt.systems/stockd/internal/storage"
)

// Config captures the tunables for the disk backend.
type Config struct {
	// Path is the snapshot file. Its directory is created when missing.
	Path string
	// FileMode applied to the snapshot. Defaults to 0o644.
	FileMode os.FileMode
}

// Store implements storage.Backend backed by a single flat file on the
// local filesystem. Writes go to a temp file in the same directory and are
// renamed over the snapshot so readers never observe a partial document.
type Store struct {
	path     string
	dir      string
	lockPath string
	mode     os.FileMode

	mu         sync.Mutex
	lastDigest [sha256.Size]byte
	haveDigest bool
}

// New initialises a disk-backed snapshot at cfg.Path.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("disk: snapshot path required")
	}
	path := filepath.Clean(cfg.Path)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil, fmt.Errorf("disk: %q is a directory", path)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disk: prepare directory %q: %w", dir, err)
	}
	mode := cfg.FileMode
	if mode == 0 {
		mode = 0o644
	}
	return &Store{
		path:     path,
		dir:      dir,
		lockPath: path + ".lock",
		mode:     mode,
	}, nil
}

// Path returns the snapshot file location.
func (s *Store) Path() string { return s.path }

// Describe identifies the backend.
func (s *Store) Describe() string { return "disk://" + s.path }

// Close releases no resources; the lock file is kept for other processes.
func (s *Store) Close() error { return nil }

type fileLock struct {
	file *os.File
}

func (f *fileLock) Unlock() error {
	if f.file == nil {
		return nil
	}
	if err := unlockFile(f.file); err != nil {
		f.file.Close()
		return err
	}
	return f.file.Close()
}

func (s *Store) acquireFileLock(exclusive bool) (*fileLock, error) {
	f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("disk: open lock: %w", err)
	}
	if err := lockFile(f, exclusive); err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: lock snapshot: %w", err)
	}
	return &fileLock{file: f}, nil
}

func (s *Store) loggers(ctx context.Context) pslog.Logger {
	return pslog.LoggerFromContext(ctx)
}

// Load reads the snapshot file.
func (s *Store) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := s.loggers(ctx)
	lock, err := s.acquireFileLock(false)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("disk.load.not_found", "path", s.path)
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("disk: read snapshot: %w", err)
	}
	s.remember(data)
	logger.Trace("disk.load.success", "path", s.path, "bytes", len(data))
	return data, nil
}

// Save atomically replaces the snapshot file with data.
func (s *Store) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := s.loggers(ctx)
	lock, err := s.acquireFileLock(true)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	if err := s.writeBytesAtomic(data); err != nil {
		logger.Debug("disk.save.error", "path", s.path, "error", err)
		return fmt.Errorf("disk: write snapshot: %w", err)
	}
	s.remember(data)
	logger.Trace("disk.save.success", "path", s.path, "bytes", len(data))
	return nil
}

func (s *Store) writeBytesAtomic(payload []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(s.path)+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Chmod(s.mode); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := syncFile(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	_ = syncDir(s.dir)
	return nil
}

func (s *Store) remember(data []byte) {
	digest := sha256.Sum256(data)
	s.mu.Lock()
	s.lastDigest = digest
	s.haveDigest = true
	s.mu.Unlock()
}

// changedSinceLast reports whether data differs from what this store last
// read or wrote.
func (s *Store) changedSinceLast(data []byte) bool {
	digest := sha256.Sum256(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.haveDigest || digest != s.lastDigest
}
