package gitsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// State classifies the relationship between the local store directory and
// its configured remote.
type State string

const (
	// StateNewLocal means no local repository exists yet.
	StateNewLocal State = "new_local"

	// StateExistingLocal means a local repository exists but no remote
	// is configured.
	StateExistingLocal State = "existing_local"

	// StateExistingRemote means a remote is configured and has commits
	// the local copy does not.
	StateExistingRemote State = "existing_remote"

	// StateSynchronized means local and remote agree as far as we can tell.
	StateSynchronized State = "synchronized"
)

// RepoInfo is a snapshot of repository state. It is computed lazily and
// cached on the manager; state-changing operations invalidate it.
type RepoInfo struct {
	State            State  `json:"state"`
	ExistsLocal      bool   `json:"exists_local"`
	RemoteConfigured bool   `json:"remote_configured"`
	RemoteAccessible bool   `json:"remote_accessible"`
	DefaultBranch    string `json:"default_branch"`
	TrackingSet      bool   `json:"tracking_set"`
	NeedsSync        bool   `json:"needs_sync"`
}

// Info returns the cached repository snapshot, computing it on first use.
func (m *Manager) Info(ctx context.Context) *RepoInfo {
	m.infoMu.Lock()
	defer m.infoMu.Unlock()

	if m.info != nil {
		return m.info
	}

	m.info = m.detect(ctx)
	return m.info
}

// invalidate drops the cached snapshot so the next Info recomputes it.
// Called after any operation that changes repository state.
func (m *Manager) invalidate() {
	m.infoMu.Lock()
	m.info = nil
	m.infoMu.Unlock()
}

// detect computes the repository snapshot. Detection checks in priority
// order: local .git presence, locally configured remote, then a fetch plus
// behind-count probe. Probe failures degrade to not-behind rather than
// erroring; state detection must never block a store operation.
func (m *Manager) detect(ctx context.Context) *RepoInfo {
	info := &RepoInfo{}

	if _, err := os.Stat(filepath.Join(m.root, ".git")); err != nil {
		info.State = StateNewLocal
		info.DefaultBranch = m.defaultBranch(ctx)
		return info
	}
	info.ExistsLocal = true

	remoteURL, err := m.runner.Run(ctx, m.root, timeoutLocal, "remote", "get-url", "origin")
	if err != nil || remoteURL == "" {
		info.State = StateExistingLocal
		info.DefaultBranch = m.localBranch(ctx)
		return info
	}
	info.RemoteConfigured = true
	info.DefaultBranch = m.defaultBranch(ctx)
	info.TrackingSet = m.trackingConfigured(ctx, info.DefaultBranch)

	behind, accessible := m.behindProbe(ctx, info.DefaultBranch)
	info.RemoteAccessible = accessible
	info.NeedsSync = behind > 0

	if info.NeedsSync {
		info.State = StateExistingRemote
	} else {
		info.State = StateSynchronized
	}

	return info
}

// behindProbe fetches and counts commits on origin/<branch> not in HEAD.
// Returns (0, false) when the remote cannot be reached; a degraded probe
// reports not-behind so callers proceed with local-only behavior.
func (m *Manager) behindProbe(ctx context.Context, branch string) (int, bool) {
	if _, err := m.runner.Run(ctx, m.root, timeoutFetch, "fetch", "origin"); err != nil {
		m.logger.Warn("fetch failed during state probe", zap.Error(err))
		return 0, false
	}

	out, err := m.runner.Run(ctx, m.root, timeoutLocal,
		"rev-list", "--count", fmt.Sprintf("HEAD..origin/%s", branch))
	if err != nil {
		m.logger.Warn("behind probe failed", zap.String("branch", branch), zap.Error(err))
		return 0, true
	}

	behind, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, true
	}

	return behind, true
}

// defaultBranch resolves the branch to track. Resolution order: the
// remote's symbolic HEAD, then probing well-known branch names on the
// remote, then "main".
func (m *Manager) defaultBranch(ctx context.Context) string {
	if m.remoteURL != "" {
		out, err := m.runner.Run(ctx, m.root, timeoutProbe, "ls-remote", "--symref", m.remoteURL, "HEAD")
		if err == nil {
			// First line looks like: "ref: refs/heads/main\tHEAD"
			for _, line := range strings.Split(out, "\n") {
				if !strings.HasPrefix(line, "ref:") {
					continue
				}
				fields := strings.Fields(line)
				if len(fields) >= 2 {
					return strings.TrimPrefix(fields[1], "refs/heads/")
				}
			}
		}

		for _, candidate := range []string{"main", "master", "develop"} {
			out, err := m.runner.Run(ctx, m.root, timeoutProbe,
				"ls-remote", "--heads", m.remoteURL, candidate)
			if err == nil && strings.TrimSpace(out) != "" {
				return candidate
			}
		}
	}

	if local := m.localBranch(ctx); local != "" {
		return local
	}

	return "main"
}

// localBranch returns the currently checked-out branch name, or "".
func (m *Manager) localBranch(ctx context.Context) string {
	out, err := m.runner.Run(ctx, m.root, timeoutLocal, "branch", "--show-current")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// trackingConfigured reports whether branch has both a remote and a merge
// ref configured.
func (m *Manager) trackingConfigured(ctx context.Context, branch string) bool {
	remote, err := m.runner.Run(ctx, m.root, timeoutLocal,
		"config", "--get", fmt.Sprintf("branch.%s.remote", branch))
	if err != nil || strings.TrimSpace(remote) == "" {
		return false
	}

	merge, err := m.runner.Run(ctx, m.root, timeoutLocal,
		"config", "--get", fmt.Sprintf("branch.%s.merge", branch))
	return err == nil && strings.TrimSpace(merge) != ""
}
