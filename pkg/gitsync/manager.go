// Package gitsync mirrors the memory store into a git repository. All
// operations are best effort: a sync failure is logged and reported as a
// structured Result but never fails the store path that triggered it.
package gitsync

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/errkind"
	"github.com/papercomputeco/engram/pkg/memory"
)

const (
	defaultIdentityName  = "engram"
	defaultIdentityEmail = "engram@localhost"

	defaultRetryAttempts uint          = 3
	defaultRetryDelay    time.Duration = time.Second
)

// ignoreFile is written on first init so store housekeeping artifacts
// never end up in the repository.
const ignoreFile = `backups/
temp/
locks/
*.lock
*.tmp
`

// cloneAllowList names files that may exist in the target directory
// without blocking a clone. They are relocated aside and restored after.
var cloneAllowList = map[string]bool{
	".gitignore":  true,
	"README.md":   true,
	"README.txt":  true,
	"LICENSE":     true,
	"LICENSE.txt": true,
}

// Config configures a sync Manager.
type Config struct {
	// Root is the store root directory that doubles as the git work tree.
	Root string

	// RemoteURL is the mirror remote. Empty disables remote operations;
	// commits still land in the local repository.
	RemoteURL string

	// RetryAttempts bounds retries per git step (defaults to 3).
	RetryAttempts uint

	// RetryDelay is the base backoff delay (defaults to 1s). Each retry
	// doubles it.
	RetryDelay time.Duration

	// IdentityName and IdentityEmail set the commit identity when the
	// repository has none configured.
	IdentityName  string
	IdentityEmail string
}

// Manager owns one repository. Write operations are serialized by a
// per-manager mutex so concurrent store calls cannot interleave git
// index mutations.
type Manager struct {
	root          string
	remoteURL     string
	retryAttempts uint
	retryDelay    time.Duration
	identityName  string
	identityEmail string

	runner Runner
	logger *zap.Logger

	writeMu sync.Mutex

	infoMu sync.Mutex
	info   *RepoInfo
}

// NewManager creates a Manager. runner may be nil to use the real git
// binary.
func NewManager(config Config, runner Runner, logger *zap.Logger) (*Manager, error) {
	if config.Root == "" {
		return nil, fmt.Errorf("gitsync config: Root is required")
	}
	if runner == nil {
		runner = NewExecRunner()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = defaultRetryAttempts
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = defaultRetryDelay
	}
	if config.IdentityName == "" {
		config.IdentityName = defaultIdentityName
	}
	if config.IdentityEmail == "" {
		config.IdentityEmail = defaultIdentityEmail
	}

	return &Manager{
		root:          config.Root,
		remoteURL:     config.RemoteURL,
		retryAttempts: config.RetryAttempts,
		retryDelay:    config.RetryDelay,
		identityName:  config.IdentityName,
		identityEmail: config.IdentityEmail,
		runner:        runner,
		logger:        logger,
	}, nil
}

// Initialize brings the repository to a usable baseline: init if absent,
// identity if unset, remote configured when a URL is given, ignore file on
// first run. Validation problems are logged as warnings, never returned.
func (m *Manager) Initialize(ctx context.Context) Result {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	defer m.invalidate()

	const op = "initialize"

	if _, err := os.Stat(filepath.Join(m.root, ".git")); err != nil {
		if _, err := m.runner.Run(ctx, m.root, timeoutLocal, "init"); err != nil {
			m.logger.Error("git init failed", zap.Error(err))
			return failure(op, fmt.Sprintf("git init failed: %v", err), 1, errkind.CodeGitInitFailed)
		}
		m.logger.Info("initialized git repository", zap.String("root", m.root))
	}

	m.ensureIdentity(ctx)

	if m.remoteURL != "" {
		if err := m.configureRemote(ctx); err != nil {
			m.logger.Error("configuring remote failed", zap.String("remote", m.remoteURL), zap.Error(err))
			return failure(op, fmt.Sprintf("configuring remote failed: %v", err), 1, errkind.CodeGitRemoteConfig)
		}
	}

	ignorePath := filepath.Join(m.root, ".gitignore")
	if _, err := os.Stat(ignorePath); os.IsNotExist(err) {
		if err := os.WriteFile(ignorePath, []byte(ignoreFile), 0o644); err != nil {
			m.logger.Warn("writing ignore file failed", zap.Error(err))
		}
	}

	m.validateSetup(ctx)

	return success(op, "repository initialized", 1)
}

// ensureIdentity sets user.name and user.email if neither local nor
// global config provides them.
func (m *Manager) ensureIdentity(ctx context.Context) {
	name, err := m.runner.Run(ctx, m.root, timeoutLocal, "config", "user.name")
	if err != nil || strings.TrimSpace(name) == "" {
		if _, err := m.runner.Run(ctx, m.root, timeoutLocal, "config", "user.name", m.identityName); err != nil {
			m.logger.Warn("setting user.name failed", zap.Error(err))
		}
	}

	email, err := m.runner.Run(ctx, m.root, timeoutLocal, "config", "user.email")
	if err != nil || strings.TrimSpace(email) == "" {
		if _, err := m.runner.Run(ctx, m.root, timeoutLocal, "config", "user.email", m.identityEmail); err != nil {
			m.logger.Warn("setting user.email failed", zap.Error(err))
		}
	}
}

// configureRemote adds or updates origin to point at the configured URL.
func (m *Manager) configureRemote(ctx context.Context) error {
	current, err := m.runner.Run(ctx, m.root, timeoutLocal, "remote", "get-url", "origin")
	if err != nil {
		_, err := m.runner.Run(ctx, m.root, timeoutLocal, "remote", "add", "origin", m.remoteURL)
		return err
	}

	if strings.TrimSpace(current) != m.remoteURL {
		_, err := m.runner.Run(ctx, m.root, timeoutLocal, "remote", "set-url", "origin", m.remoteURL)
		return err
	}

	return nil
}

// validateSetup checks identity and remote after initialization and logs
// anything off. Setup problems degrade sync, they do not block storage.
func (m *Manager) validateSetup(ctx context.Context) {
	name, _ := m.runner.Run(ctx, m.root, timeoutLocal, "config", "user.name")
	email, _ := m.runner.Run(ctx, m.root, timeoutLocal, "config", "user.email")
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" {
		m.logger.Warn("git identity incomplete",
			zap.String("name", name),
			zap.String("email", email),
		)
	}

	if m.remoteURL != "" {
		current, err := m.runner.Run(ctx, m.root, timeoutLocal, "remote", "get-url", "origin")
		if err != nil || strings.TrimSpace(current) != m.remoteURL {
			m.logger.Warn("remote URL mismatch",
				zap.String("expected", m.remoteURL),
				zap.String("actual", current),
			)
		}
	}
}

// Clone pulls down an existing remote repository into the store root.
// Only valid when no local repository exists and a remote is configured.
// Allow-listed files already in the target are moved aside and restored
// after the clone when they do not collide with cloned content.
func (m *Manager) Clone(ctx context.Context) Result {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	defer m.invalidate()

	const op = "clone"

	if _, err := os.Stat(filepath.Join(m.root, ".git")); err == nil {
		return failure(op, "local repository already exists", 1, errkind.CodeGitLocalRepoExists)
	}
	if m.remoteURL == "" {
		return failure(op, "no remote URL configured", 1, errkind.CodeGitNoRemoteURL)
	}

	relocated, err := m.relocateAllowListed()
	if err != nil {
		return failure(op, err.Error(), 1, errkind.CodeGitTargetDirNotEmpty)
	}

	if _, err := m.runner.Run(ctx, "", timeoutClone,
		"clone", "--single-branch", "--depth", "1", m.remoteURL, m.root); err != nil {
		m.restoreRelocated(relocated)
		m.logger.Error("clone failed", zap.String("remote", m.remoteURL), zap.Error(err))
		return failure(op, fmt.Sprintf("clone failed: %v", err), 1, errkind.CodeGitCloneFailed)
	}

	m.restoreRelocated(relocated)

	if err := m.validateClone(ctx); err != nil {
		m.logger.Error("clone validation failed", zap.Error(err))
		return failure(op, fmt.Sprintf("clone validation failed: %v", err), 1, errkind.CodeGitCloneFailed)
	}

	m.ensureIdentity(ctx)

	m.logger.Info("cloned remote repository",
		zap.String("remote", m.remoteURL),
		zap.String("root", m.root),
	)
	return success(op, "repository cloned", 1)
}

// relocateAllowListed moves allow-listed files out of the clone target
// into a temp dir. Any other file refuses the clone.
func (m *Manager) relocateAllowListed() (map[string]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading target dir: %w", err)
	}

	var toMove []string
	for _, e := range entries {
		name := e.Name()
		if cloneAllowList[name] || strings.HasPrefix(name, ".") {
			toMove = append(toMove, name)
			continue
		}
		return nil, fmt.Errorf("target directory not empty: %s", name)
	}

	if len(toMove) == 0 {
		return nil, nil
	}

	holding, err := os.MkdirTemp("", "engram-clone-*")
	if err != nil {
		return nil, fmt.Errorf("creating holding dir: %w", err)
	}

	relocated := make(map[string]string, len(toMove))
	for _, name := range toMove {
		dst := filepath.Join(holding, name)
		if err := os.Rename(filepath.Join(m.root, name), dst); err != nil {
			m.restoreRelocated(relocated)
			return nil, fmt.Errorf("relocating %s: %w", name, err)
		}
		relocated[name] = dst
	}

	return relocated, nil
}

// restoreRelocated moves files back after a clone. Collisions with cloned
// content are left in the holding dir and logged.
func (m *Manager) restoreRelocated(relocated map[string]string) {
	for name, src := range relocated {
		dst := filepath.Join(m.root, name)
		if _, err := os.Stat(dst); err == nil {
			m.logger.Warn("relocated file collides with cloned content, keeping cloned version",
				zap.String("file", name),
				zap.String("held_at", src),
			)
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			m.logger.Warn("restoring relocated file failed", zap.String("file", name), zap.Error(err))
		}
	}
}

// validateClone verifies the clone produced a usable repository.
func (m *Manager) validateClone(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(m.root, ".git")); err != nil {
		return fmt.Errorf(".git missing after clone")
	}

	if _, err := m.runner.Run(ctx, m.root, timeoutLocal, "status", "--porcelain"); err != nil {
		return fmt.Errorf("status check: %w", err)
	}

	url, err := m.runner.Run(ctx, m.root, timeoutLocal, "remote", "get-url", "origin")
	if err != nil || strings.TrimSpace(url) != m.remoteURL {
		return fmt.Errorf("origin URL mismatch: got %q", url)
	}

	branch, err := m.runner.Run(ctx, m.root, timeoutLocal, "branch", "--show-current")
	if err != nil || strings.TrimSpace(branch) == "" {
		return fmt.Errorf("no current branch after clone")
	}

	return nil
}

// EnsureTracking makes sure branch exists locally and tracks
// origin/<branch>.
func (m *Manager) EnsureTracking(ctx context.Context, branch string) error {
	if _, err := m.runner.Run(ctx, m.root, timeoutLocal,
		"rev-parse", "--verify", branch); err != nil {
		if _, err := m.runner.Run(ctx, m.root, timeoutLocal,
			"branch", branch, fmt.Sprintf("origin/%s", branch)); err != nil {
			return fmt.Errorf("creating branch %s: %w", branch, err)
		}
	}

	if _, err := m.runner.Run(ctx, m.root, timeoutLocal,
		"branch", fmt.Sprintf("--set-upstream-to=origin/%s", branch), branch); err != nil {
		return fmt.Errorf("setting upstream for %s: %w", branch, err)
	}

	if !m.trackingConfigured(ctx, branch) {
		return fmt.Errorf("tracking not configured after setup for %s", branch)
	}

	return nil
}

// Synchronize performs a full pull-based sync, preferring remote content
// on conflict. The working copy is backed up before the pull and restored
// on unrecoverable failure.
func (m *Manager) Synchronize(ctx context.Context) Result {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	defer m.invalidate()

	const op = "synchronize"

	info := m.detect(ctx)
	if !info.ExistsLocal {
		return failure(op, "no local repository", 1, errkind.CodeGitNoLocalRepo)
	}
	if !info.RemoteConfigured {
		return failure(op, "no remote configured", 1, errkind.CodeGitNoRemoteURL)
	}
	if !info.RemoteAccessible {
		return failure(op, "remote not accessible", 1, errkind.CodeGitRemoteUnreachable)
	}

	branch := info.DefaultBranch
	if _, err := m.runner.Run(ctx, m.root, timeoutLocal, "checkout", branch); err != nil {
		if _, err := m.runner.Run(ctx, m.root, timeoutLocal, "checkout", "-b", branch); err != nil {
			return failure(op, fmt.Sprintf("switching to %s failed: %v", branch, err), 1, errkind.CodeGitBranchCheckout)
		}
	}

	if err := m.EnsureTracking(ctx, branch); err != nil {
		m.logger.Warn("tracking setup failed", zap.Error(err))
	}

	if _, err := m.runner.Run(ctx, m.root, timeoutFetch, "fetch", "origin"); err != nil {
		return failure(op, fmt.Sprintf("fetch failed: %v", err), 1, errkind.CodeGitFetchFailed)
	}

	local, _ := m.runner.Run(ctx, m.root, timeoutLocal, "rev-parse", "HEAD")
	remote, _ := m.runner.Run(ctx, m.root, timeoutLocal, "rev-parse", fmt.Sprintf("origin/%s", branch))
	if local != "" && local == remote {
		m.validateMemoryFiles()
		return success(op, "already synchronized", 1)
	}

	backup, err := m.backupWorkingCopy()
	if err != nil {
		m.logger.Warn("working copy backup failed, continuing without", zap.Error(err))
	}

	if _, err := m.runner.Run(ctx, m.root, timeoutPull,
		"pull", "-s", "recursive", "-X", "theirs", "origin", branch); err != nil {
		if resolveErr := m.resolveConflicts(ctx); resolveErr != nil {
			m.restoreWorkingCopy(backup)
			m.logger.Error("sync failed, working copy restored",
				zap.Error(err),
				zap.NamedError("resolve_error", resolveErr),
			)
			return failure(op, fmt.Sprintf("pull failed: %v", err), 1, errkind.CodeGitPullFailed)
		}
	}

	if backup != "" {
		os.RemoveAll(backup)
	}

	m.validateMemoryFiles()

	m.logger.Info("synchronized with remote", zap.String("branch", branch))
	return success(op, "synchronized with remote", 1)
}

// resolveConflicts resolves every conflicted file by taking the remote
// side, then completes the merge commit.
func (m *Manager) resolveConflicts(ctx context.Context) error {
	out, err := m.runner.Run(ctx, m.root, timeoutLocal,
		"diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return fmt.Errorf("listing conflicts: %w", err)
	}

	files := strings.Fields(out)
	if len(files) == 0 {
		return fmt.Errorf("pull failed with no conflicted files")
	}

	for _, f := range files {
		if _, err := m.runner.Run(ctx, m.root, timeoutLocal, "checkout", "--theirs", f); err != nil {
			return fmt.Errorf("taking remote version of %s: %w", f, err)
		}
		if _, err := m.runner.Run(ctx, m.root, timeoutLocal, "add", f); err != nil {
			return fmt.Errorf("staging %s: %w", f, err)
		}
		m.logger.Info("resolved conflict preferring remote", zap.String("file", f))
	}

	if _, err := m.runner.Run(ctx, m.root, timeoutLocal, "commit", "--no-edit"); err != nil {
		return fmt.Errorf("merge commit: %w", err)
	}

	return nil
}

// backupWorkingCopy copies files/ to a temp dir and returns its path.
func (m *Manager) backupWorkingCopy() (string, error) {
	src := filepath.Join(m.root, "files")
	if _, err := os.Stat(src); err != nil {
		return "", nil
	}

	dst, err := os.MkdirTemp("", "engram-sync-backup-*")
	if err != nil {
		return "", err
	}

	if err := copyDir(src, filepath.Join(dst, "files")); err != nil {
		os.RemoveAll(dst)
		return "", err
	}

	return dst, nil
}

// restoreWorkingCopy puts the backed-up files/ tree back after a failed
// sync.
func (m *Manager) restoreWorkingCopy(backup string) {
	if backup == "" {
		return
	}

	src := filepath.Join(backup, "files")
	dst := filepath.Join(m.root, "files")

	if err := os.RemoveAll(dst); err != nil {
		m.logger.Error("clearing files dir for restore failed", zap.Error(err))
		return
	}
	if err := copyDir(src, dst); err != nil {
		m.logger.Error("restoring working copy failed", zap.Error(err))
		return
	}

	os.RemoveAll(backup)
	m.logger.Info("working copy restored from backup")
}

// validateMemoryFiles parses every memory file after a pull and warns
// about documents missing required fields. Validation never fails a sync;
// a bad file from the remote is a visibility problem, not a stop-the-world
// problem.
func (m *Manager) validateMemoryFiles() {
	paths, err := filepath.Glob(filepath.Join(m.root, "files", "*.md"))
	if err != nil {
		return
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			m.logger.Warn("unreadable memory file after sync", zap.String("path", path), zap.Error(err))
			continue
		}

		mem := memory.Decode(data)
		if mem == nil {
			m.logger.Warn("unparseable memory file after sync", zap.String("path", path))
			continue
		}

		if mem.ID == "" || mem.Timestamp.IsZero() || mem.Agent == "" ||
			mem.User == "" || len(mem.Topics) == 0 || mem.Content == "" {
			m.logger.Warn("memory file missing required fields after sync",
				zap.String("path", path),
				zap.String("id", mem.ID),
			)
		}
	}
}

// CommitMemory commits one stored memory file and pushes it when a remote
// is configured. This is the hot path invoked after every store; each git
// step is retried with exponential backoff. A push that keeps failing
// degrades to success so the memory stays stored locally.
func (m *Manager) CommitMemory(ctx context.Context, id, filename string) Result {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	defer m.invalidate()

	const op = "commit_memory"

	relPath := filepath.Join("files", filename)
	if _, attempts, err := m.retry(ctx, timeoutLocal, "add", relPath); err != nil {
		m.logger.Error("staging memory failed",
			zap.String("memory_id", id),
			zap.Uint("attempts", attempts),
			zap.Error(err),
		)
		return failure(op, fmt.Sprintf("staging failed: %v", err), attempts, errkind.CodeGitMaxRetries)
	}

	msg := fmt.Sprintf("Add memory %s", id)
	out, attempts, err := m.retry(ctx, timeoutLocal, "commit", "-m", msg)
	if err != nil {
		if strings.Contains(out, "nothing to commit") {
			return success(op, "nothing to commit", attempts)
		}
		m.logger.Error("committing memory failed",
			zap.String("memory_id", id),
			zap.Uint("attempts", attempts),
			zap.Error(err),
		)
		return failure(op, fmt.Sprintf("commit failed: %v", err), attempts, errkind.CodeGitMaxRetries)
	}

	if m.remoteURL == "" {
		return success(op, "memory committed locally", attempts)
	}

	if _, pushAttempts, err := m.retry(ctx, timeoutPush, "push", "origin", "HEAD"); err != nil {
		m.logger.Warn("push failed, memory stored locally",
			zap.String("memory_id", id),
			zap.Uint("attempts", pushAttempts),
			zap.Error(err),
		)
		r := success(op, "memory stored locally, sync degraded", pushAttempts)
		r.ErrorCode = errkind.CodeGitMaxRetries
		return r
	}

	m.logger.Info("memory committed and pushed", zap.String("memory_id", id))
	return success(op, "memory committed and pushed", attempts)
}

// retry runs one git step with exponential backoff up to the configured
// attempt count. Returns the last output, the attempts used, and the final
// error if all attempts failed.
func (m *Manager) retry(ctx context.Context, timeout time.Duration, args ...string) (string, uint, error) {
	var attempts uint
	var lastOut string

	operation := func() (string, error) {
		attempts++
		out, err := m.runner.Run(ctx, m.root, timeout, args...)
		lastOut = out
		return out, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.retryDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2

	out, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(m.retryAttempts),
	)
	if err != nil {
		return lastOut, attempts, err
	}

	return out, attempts, nil
}

// copyDir recursively copies a directory tree.
func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if fi.IsDir() {
			return os.MkdirAll(target, fi.Mode())
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fi.Mode())
		if err != nil {
			return err
		}
		defer out.Close()

		_, err = io.Copy(out, in)
		return err
	})
}
