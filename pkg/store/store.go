// Package store persists memory records as individual markdown files under
// a single root directory.
//
// Layout per store root:
//
//	files/    one .md per memory, named {YYYYMMDD_HHMMSS}_{id}.md
//	backups/  timestamped copies taken before overwrite or repair
//	temp/     scratch space
//	locks/    per-path lock files
//
// Writes are atomic: the document is rendered to a temporary file in the
// files directory, flushed to durable storage, then renamed onto the final
// path, all under a path-scoped exclusive lock. A reader never observes a
// partially written memory file.
//
// Corruption never aborts a bulk operation. Reads go through ParseFileSafe,
// which degrades a bad file to "contributes nothing" after handing it to the
// injected Repairer once.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/errkind"
	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/validate"
)

const (
	// DefaultLockTimeout bounds the wait for the per-path write lock.
	DefaultLockTimeout = 30 * time.Second

	// lockRetryDelay is the poll interval while waiting on a held lock.
	lockRetryDelay = 100 * time.Millisecond
)

// Config holds storage layer configuration.
type Config struct {
	// Root is the base engram directory. Memory files live in Root/files.
	Root string

	// LockTimeout bounds the wait for the per-path write lock. Zero means
	// DefaultLockTimeout.
	LockTimeout time.Duration
}

// FilesDir is the directory holding one .md file per memory.
func (c Config) FilesDir() string { return filepath.Join(c.Root, "files") }

// BackupsDir holds timestamped pre-overwrite copies.
func (c Config) BackupsDir() string { return filepath.Join(c.Root, "backups") }

// TempDir is scratch space for atomic writes.
func (c Config) TempDir() string { return filepath.Join(c.Root, "temp") }

// LocksDir holds per-path lock files.
func (c Config) LocksDir() string { return filepath.Join(c.Root, "locks") }

// Repairer attempts to fix a corrupted memory file in place, reporting
// whether a retry is worthwhile. Handed to the store at construction so the
// read path never reaches out to ad hoc recovery machinery.
type Repairer interface {
	Repair(path string) bool
}

// Notifier receives the id and filename of every durably stored memory for
// background synchronization. Implementations must not block; a slow or
// unreachable remote never delays the caller that stored the memory.
type Notifier interface {
	MemoryStored(id, filename string)
}

// Store reads and writes memory files.
type Store struct {
	config   Config
	repairer Repairer
	notifier Notifier
	logger   *zap.Logger
}

// SaveResult is the success payload of a store operation.
type SaveResult struct {
	MemoryID  string `json:"memory_id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Filename  string `json:"filename"`
}

// RecallResult holds one requested id's outcome: either the full memory or
// a structured per-id error. Exactly one field is set.
type RecallResult struct {
	Memory *memory.Memory
	Err    *errkind.Error
}

// New creates a Store rooted at config.Root, creating the directory layout
// if needed. repairer and notifier may be nil to disable recovery and sync
// handoff respectively.
func New(config Config, repairer Repairer, notifier Notifier, logger *zap.Logger) (*Store, error) {
	if config.Root == "" {
		return nil, fmt.Errorf("store config: Root is required")
	}
	if config.LockTimeout == 0 {
		config.LockTimeout = DefaultLockTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, dir := range []string{config.FilesDir(), config.BackupsDir(), config.TempDir(), config.LocksDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}

	return &Store{
		config:   config,
		repairer: repairer,
		notifier: notifier,
		logger:   logger,
	}, nil
}

// Save validates, sanitizes, and durably writes a new memory, then hands the
// (id, filename) pair to the notifier for background sync. Validation
// failures return a structured error with no side effects.
func (s *Store) Save(ctx context.Context, agent, user string, topics []string, content string) (*SaveResult, error) {
	in, verr := validate.Memory(agent, user, topics, content)
	if verr != nil {
		return nil, verr
	}

	mem := &memory.Memory{
		ID:        memory.NewID(),
		Timestamp: time.Now(),
		Agent:     in.Agent,
		User:      in.User,
		Topics:    in.Topics,
		Content:   in.Content,
	}
	filename := mem.Filename()
	finalPath := filepath.Join(s.config.FilesDir(), filename)

	unlock, err := s.lockPath(ctx, filename)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Ids are unique per write, so the target practically never exists.
	// Back it up anyway before overwriting.
	if _, statErr := os.Stat(finalPath); statErr == nil {
		if backupPath, backupErr := CreateBackup(s.config, finalPath); backupErr == nil {
			s.logger.Info("created backup before overwrite",
				zap.String("backup", backupPath),
			)
		}
	}

	if err := s.writeAtomic(finalPath, memory.Encode(mem)); err != nil {
		return nil, err
	}

	s.logger.Debug("memory file created",
		zap.String("memory_id", mem.ID),
		zap.String("filename", filename),
	)

	if s.notifier != nil {
		s.notifier.MemoryStored(mem.ID, filename)
	}

	return &SaveResult{
		MemoryID:  mem.ID,
		Message:   fmt.Sprintf("Memory stored successfully with ID: %s", mem.ID),
		Timestamp: mem.Timestamp.Format(time.RFC3339Nano),
		Filename:  filename,
	}, nil
}

// Recall resolves each id to its full memory. Lookup matches the decoded id
// inside each file, never the filename, which is advisory only. One id's
// failure never aborts the others.
func (s *Store) Recall(ctx context.Context, ids []string) []RecallResult {
	paths, err := s.List()
	if err != nil {
		s.logger.Error("listing memory files for recall", zap.Error(err))
		paths = nil
	}

	byID := make(map[string]*memory.Memory, len(paths))
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		if mem := s.ParseFileSafe(path); mem != nil {
			byID[mem.ID] = mem
		}
	}

	results := make([]RecallResult, 0, len(ids))
	for _, id := range ids {
		if mem, ok := byID[id]; ok {
			results = append(results, RecallResult{Memory: mem})
			continue
		}
		results = append(results, RecallResult{
			Err: errkind.Memory(errkind.CodeMemoryNotFound,
				fmt.Sprintf("Memory file not found: %s", id),
			).WithContext(map[string]any{
				"memory_id": id,
				"operation": "recall",
			}),
		})
	}

	return results
}

// List returns the paths of all memory files, sorted by name. With the
// timestamped naming scheme this is rough chronological order.
func (s *Store) List() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(s.config.FilesDir(), "*.md"))
	if err != nil {
		return nil, fmt.Errorf("listing memory files: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// ParseFileSafe decodes a memory file, attempting one repair round trip on
// failure. It never returns an error: a file that stays unreadable after
// repair contributes nothing.
func (s *Store) ParseFileSafe(path string) *memory.Memory {
	if mem := s.parseFile(path); mem != nil {
		return mem
	}

	s.logger.Warn("corrupted memory file detected", zap.String("file", filepath.Base(path)))

	if s.repairer == nil || !s.repairer.Repair(path) {
		return nil
	}

	if mem := s.parseFile(path); mem != nil {
		s.logger.Info("repaired corrupted memory file", zap.String("file", filepath.Base(path)))
		return mem
	}
	return nil
}

func (s *Store) parseFile(path string) *memory.Memory {
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("reading memory file", zap.String("file", filepath.Base(path)), zap.Error(err))
		return nil
	}
	return memory.Decode(data)
}

// lockPath acquires the path-scoped exclusive lock for filename, waiting up
// to the configured timeout. The returned func releases the lock.
func (s *Store) lockPath(ctx context.Context, filename string) (func(), error) {
	lockFile := flock.New(filepath.Join(s.config.LocksDir(), filename+".lock"))

	lockCtx, cancel := context.WithTimeout(ctx, s.config.LockTimeout)
	defer cancel()

	locked, err := lockFile.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil || !locked {
		return nil, errkind.Memory(errkind.CodeMemoryLockTimeout,
			fmt.Sprintf("Failed to acquire file lock for memory storage within timeout: %s", filename),
		).WithContext(map[string]any{
			"operation": "store_memory_atomic",
			"filename":  filename,
		})
	}

	return func() {
		if unlockErr := lockFile.Unlock(); unlockErr != nil {
			s.logger.Warn("releasing path lock", zap.Error(unlockErr))
		}
	}, nil
}

// renameFile is swapped out in tests to fail the final rename step.
var renameFile = os.Rename

// writeAtomic writes data to path via a temp file in the same directory,
// fsyncs, then renames. On failure the temp file is removed and the final
// path is untouched.
func (s *Store) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return s.classifyWriteError(err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return s.classifyWriteError(err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return s.classifyWriteError(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return s.classifyWriteError(err)
	}

	if err := renameFile(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return s.classifyWriteError(err)
	}

	return nil
}

func (s *Store) classifyWriteError(err error) *errkind.Error {
	var pathErr *fs.PathError

	switch {
	case errors.Is(err, fs.ErrPermission):
		return errkind.Memory(errkind.CodeMemoryPermissionDenied,
			fmt.Sprintf("Permission denied when writing memory file: %v", err))
	case errors.As(err, &pathErr):
		return errkind.Memory(errkind.CodeMemoryIOError,
			fmt.Sprintf("File system error when writing memory: %v", err))
	default:
		return errkind.Memory(errkind.CodeMemoryWriteError,
			fmt.Sprintf("Failed to write memory file: %v", err))
	}
}
