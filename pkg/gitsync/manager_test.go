package gitsync_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/errkind"
	"github.com/papercomputeco/engram/pkg/gitsync"
	"github.com/papercomputeco/engram/pkg/logger"
)

// fakeRunner scripts git command responses by argument prefix, recording
// every call so tests can assert on what ran.
type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	stubs []fakeStub
}

type fakeStub struct {
	prefix string
	fn     func(args []string) (string, error)
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{}
}

// on registers a handler for commands whose joined args start with prefix.
// Later registrations take precedence.
func (f *fakeRunner) on(prefix string, fn func(args []string) (string, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs = append([]fakeStub{{prefix: prefix, fn: fn}}, f.stubs...)
}

func (f *fakeRunner) respond(prefix, out string) {
	f.on(prefix, func([]string) (string, error) { return out, nil })
}

func (f *fakeRunner) fail(prefix, msg string) {
	f.on(prefix, func([]string) (string, error) { return msg, errors.New(msg) })
}

func (f *fakeRunner) Run(_ context.Context, _ string, _ time.Duration, args ...string) (string, error) {
	joined := strings.Join(args, " ")

	f.mu.Lock()
	f.calls = append(f.calls, joined)
	stubs := f.stubs
	f.mu.Unlock()

	for _, s := range stubs {
		if strings.HasPrefix(joined, s.prefix) {
			return s.fn(args)
		}
	}
	return "", nil
}

func (f *fakeRunner) called(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (f *fakeRunner) countCalls(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

var _ = Describe("Manager", func() {
	var (
		tmpDir string
		runner *fakeRunner
		ctx    context.Context
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "gitsync-test-*")
		Expect(err).NotTo(HaveOccurred())
		runner = newFakeRunner()
		ctx = context.Background()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	newManager := func(remote string) *gitsync.Manager {
		m, err := gitsync.NewManager(gitsync.Config{
			Root:       tmpDir,
			RemoteURL:  remote,
			RetryDelay: time.Millisecond,
		}, runner, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		return m
	}

	gitDir := func() {
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".git"), 0o755)).To(Succeed())
	}

	Describe("NewManager", func() {
		It("requires a root", func() {
			_, err := gitsync.NewManager(gitsync.Config{}, runner, logger.Nop())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Initialize", func() {
		It("runs git init when no repository exists", func() {
			m := newManager("")

			result := m.Initialize(ctx)
			Expect(result.Success).To(BeTrue())
			Expect(runner.called("init")).To(BeTrue())
		})

		It("skips git init when a repository already exists", func() {
			gitDir()
			m := newManager("")

			result := m.Initialize(ctx)
			Expect(result.Success).To(BeTrue())
			Expect(runner.called("init")).To(BeFalse())
		})

		It("sets identity when unset", func() {
			runner.respond("config user.name", "")
			runner.respond("config user.email", "")
			m := newManager("")

			result := m.Initialize(ctx)
			Expect(result.Success).To(BeTrue())
			Expect(runner.called("config user.name engram")).To(BeTrue())
			Expect(runner.called("config user.email engram@localhost")).To(BeTrue())
		})

		It("leaves an existing identity alone", func() {
			runner.respond("config user.name", "Someone")
			runner.respond("config user.email", "someone@example.com")
			m := newManager("")

			m.Initialize(ctx)
			Expect(runner.called("config user.name engram")).To(BeFalse())
		})

		It("adds the remote when configured and absent", func() {
			runner.fail("remote get-url origin", "no such remote")
			m := newManager("git@example.com:m.git")

			result := m.Initialize(ctx)
			Expect(result.Success).To(BeTrue())
			Expect(runner.called("remote add origin git@example.com:m.git")).To(BeTrue())
		})

		It("updates the remote when the URL differs", func() {
			runner.respond("remote get-url origin", "git@example.com:old.git")
			m := newManager("git@example.com:new.git")

			result := m.Initialize(ctx)
			Expect(result.Success).To(BeTrue())
			Expect(runner.called("remote set-url origin git@example.com:new.git")).To(BeTrue())
		})

		It("writes the ignore file on first run", func() {
			m := newManager("")

			m.Initialize(ctx)

			data, err := os.ReadFile(filepath.Join(tmpDir, ".gitignore"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("backups/"))
			Expect(string(data)).To(ContainSubstring("temp/"))
			Expect(string(data)).To(ContainSubstring("locks/"))
		})

		It("does not overwrite an existing ignore file", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, ".gitignore"), []byte("custom\n"), 0o644)).To(Succeed())
			m := newManager("")

			m.Initialize(ctx)

			data, err := os.ReadFile(filepath.Join(tmpDir, ".gitignore"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("custom\n"))
		})

		It("fails when git init fails", func() {
			runner.fail("init", "permission denied")
			m := newManager("")

			result := m.Initialize(ctx)
			Expect(result.Success).To(BeFalse())
			Expect(result.ErrorCode).To(Equal(errkind.CodeGitInitFailed))
		})
	})

	Describe("Info", func() {
		It("reports new_local when no repository exists", func() {
			m := newManager("")

			info := m.Info(ctx)
			Expect(info.State).To(Equal(gitsync.StateNewLocal))
			Expect(info.ExistsLocal).To(BeFalse())
		})

		It("reports existing_local when no remote is configured", func() {
			gitDir()
			runner.fail("remote get-url origin", "no such remote")
			m := newManager("")

			info := m.Info(ctx)
			Expect(info.State).To(Equal(gitsync.StateExistingLocal))
			Expect(info.ExistsLocal).To(BeTrue())
			Expect(info.RemoteConfigured).To(BeFalse())
		})

		It("reports existing_remote when behind the remote", func() {
			gitDir()
			runner.respond("remote get-url origin", "git@example.com:m.git")
			runner.respond("branch --show-current", "main")
			runner.respond("config --get branch.main.remote", "origin")
			runner.respond("config --get branch.main.merge", "refs/heads/main")
			runner.respond("rev-list --count HEAD..origin/main", "2")
			m := newManager("git@example.com:m.git")

			info := m.Info(ctx)
			Expect(info.State).To(Equal(gitsync.StateExistingRemote))
			Expect(info.NeedsSync).To(BeTrue())
			Expect(info.RemoteAccessible).To(BeTrue())
		})

		It("reports synchronized when not behind", func() {
			gitDir()
			runner.respond("remote get-url origin", "git@example.com:m.git")
			runner.respond("branch --show-current", "main")
			runner.respond("rev-list --count HEAD..origin/main", "0")
			m := newManager("git@example.com:m.git")

			info := m.Info(ctx)
			Expect(info.State).To(Equal(gitsync.StateSynchronized))
			Expect(info.NeedsSync).To(BeFalse())
		})

		It("degrades to not-behind when the fetch fails", func() {
			gitDir()
			runner.respond("remote get-url origin", "git@example.com:m.git")
			runner.respond("branch --show-current", "main")
			runner.fail("fetch origin", "could not resolve host")
			m := newManager("git@example.com:m.git")

			info := m.Info(ctx)
			Expect(info.State).To(Equal(gitsync.StateSynchronized))
			Expect(info.RemoteAccessible).To(BeFalse())
		})

		It("caches the snapshot between calls", func() {
			m := newManager("")

			m.Info(ctx)
			m.Info(ctx)

			// No .git, so detection only touches the filesystem; the
			// default branch probe runs once per detection.
			Expect(runner.countCalls("branch --show-current")).To(Equal(1))
		})

		It("resolves the default branch from the remote symref", func() {
			gitDir()
			runner.respond("remote get-url origin", "git@example.com:m.git")
			runner.respond("ls-remote --symref git@example.com:m.git HEAD",
				"ref: refs/heads/trunk\tHEAD\nabc123\tHEAD")
			runner.respond("rev-list --count HEAD..origin/trunk", "0")
			m := newManager("git@example.com:m.git")

			info := m.Info(ctx)
			Expect(info.DefaultBranch).To(Equal("trunk"))
		})

		It("falls back to probing well-known branches", func() {
			gitDir()
			runner.respond("remote get-url origin", "git@example.com:m.git")
			runner.fail("ls-remote --symref", "not supported")
			runner.respond("ls-remote --heads git@example.com:m.git main", "")
			runner.respond("ls-remote --heads git@example.com:m.git master", "abc123\trefs/heads/master")
			runner.respond("rev-list --count HEAD..origin/master", "0")
			m := newManager("git@example.com:m.git")

			info := m.Info(ctx)
			Expect(info.DefaultBranch).To(Equal("master"))
		})
	})

	Describe("Clone", func() {
		It("refuses when a local repository exists", func() {
			gitDir()
			m := newManager("git@example.com:m.git")

			result := m.Clone(ctx)
			Expect(result.Success).To(BeFalse())
			Expect(result.ErrorCode).To(Equal(errkind.CodeGitLocalRepoExists))
		})

		It("refuses without a remote URL", func() {
			m := newManager("")

			result := m.Clone(ctx)
			Expect(result.Success).To(BeFalse())
			Expect(result.ErrorCode).To(Equal(errkind.CodeGitNoRemoteURL))
		})

		It("refuses a non-empty target with disallowed files", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "data.db"), []byte("x"), 0o644)).To(Succeed())
			m := newManager("git@example.com:m.git")

			result := m.Clone(ctx)
			Expect(result.Success).To(BeFalse())
			Expect(result.ErrorCode).To(Equal(errkind.CodeGitTargetDirNotEmpty))
			Expect(runner.called("clone")).To(BeFalse())
		})

		It("relocates allow-listed files and restores them after the clone", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "README.md"), []byte("readme"), 0o644)).To(Succeed())

			runner.on("clone", func([]string) (string, error) {
				// Simulate what a real clone produces.
				Expect(os.MkdirAll(filepath.Join(tmpDir, ".git"), 0o755)).To(Succeed())
				return "", nil
			})
			runner.respond("remote get-url origin", "git@example.com:m.git")
			runner.respond("branch --show-current", "main")

			m := newManager("git@example.com:m.git")

			result := m.Clone(ctx)
			Expect(result.Success).To(BeTrue())

			data, err := os.ReadFile(filepath.Join(tmpDir, "README.md"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("readme"))
		})

		It("fails when the clone command fails", func() {
			runner.fail("clone", "could not resolve host")
			m := newManager("git@example.com:m.git")

			result := m.Clone(ctx)
			Expect(result.Success).To(BeFalse())
			Expect(result.ErrorCode).To(Equal(errkind.CodeGitCloneFailed))
		})

		It("fails validation when no branch is checked out", func() {
			runner.on("clone", func([]string) (string, error) {
				Expect(os.MkdirAll(filepath.Join(tmpDir, ".git"), 0o755)).To(Succeed())
				return "", nil
			})
			runner.respond("remote get-url origin", "git@example.com:m.git")
			runner.respond("branch --show-current", "")

			m := newManager("git@example.com:m.git")

			result := m.Clone(ctx)
			Expect(result.Success).To(BeFalse())
			Expect(result.ErrorCode).To(Equal(errkind.CodeGitCloneFailed))
		})
	})

	Describe("Synchronize", func() {
		It("fails without a local repository", func() {
			m := newManager("git@example.com:m.git")

			result := m.Synchronize(ctx)
			Expect(result.Success).To(BeFalse())
			Expect(result.ErrorCode).To(Equal(errkind.CodeGitNoLocalRepo))
		})

		It("fails without a configured remote", func() {
			gitDir()
			runner.fail("remote get-url origin", "no such remote")
			m := newManager("")

			result := m.Synchronize(ctx)
			Expect(result.Success).To(BeFalse())
			Expect(result.ErrorCode).To(Equal(errkind.CodeGitNoRemoteURL))
		})

		It("fails when the remote is unreachable", func() {
			gitDir()
			runner.respond("remote get-url origin", "git@example.com:m.git")
			runner.respond("branch --show-current", "main")
			runner.fail("fetch origin", "could not resolve host")
			m := newManager("git@example.com:m.git")

			result := m.Synchronize(ctx)
			Expect(result.Success).To(BeFalse())
			Expect(result.ErrorCode).To(Equal(errkind.CodeGitRemoteUnreachable))
		})

		It("returns already-synchronized when HEAD matches the remote", func() {
			gitDir()
			runner.respond("remote get-url origin", "git@example.com:m.git")
			runner.respond("branch --show-current", "main")
			runner.respond("rev-list --count HEAD..origin/main", "0")
			runner.respond("rev-parse HEAD", "abc123")
			runner.respond("rev-parse origin/main", "abc123")
			m := newManager("git@example.com:m.git")

			result := m.Synchronize(ctx)
			Expect(result.Success).To(BeTrue())
			Expect(result.Message).To(ContainSubstring("already synchronized"))
			Expect(runner.called("pull")).To(BeFalse())
		})

		It("pulls preferring remote content when behind", func() {
			gitDir()
			runner.respond("remote get-url origin", "git@example.com:m.git")
			runner.respond("branch --show-current", "main")
			runner.respond("rev-list --count HEAD..origin/main", "1")
			runner.respond("rev-parse HEAD", "abc123")
			runner.respond("rev-parse origin/main", "def456")
			m := newManager("git@example.com:m.git")

			result := m.Synchronize(ctx)
			Expect(result.Success).To(BeTrue())
			Expect(runner.called("pull -s recursive -X theirs origin main")).To(BeTrue())
		})

		It("resolves conflicts by taking the remote side", func() {
			gitDir()
			runner.respond("remote get-url origin", "git@example.com:m.git")
			runner.respond("branch --show-current", "main")
			runner.respond("rev-list --count HEAD..origin/main", "1")
			runner.respond("rev-parse HEAD", "abc123")
			runner.respond("rev-parse origin/main", "def456")
			runner.fail("pull", "merge conflict")
			runner.respond("diff --name-only --diff-filter=U", "files/a.md\nfiles/b.md")
			m := newManager("git@example.com:m.git")

			result := m.Synchronize(ctx)
			Expect(result.Success).To(BeTrue())
			Expect(runner.called("checkout --theirs files/a.md")).To(BeTrue())
			Expect(runner.called("checkout --theirs files/b.md")).To(BeTrue())
			Expect(runner.called("add files/a.md")).To(BeTrue())
			Expect(runner.called("commit --no-edit")).To(BeTrue())
		})

		It("restores the working copy when the pull fails unrecoverably", func() {
			filesDir := filepath.Join(tmpDir, "files")
			Expect(os.MkdirAll(filesDir, 0o755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(filesDir, "keep.md"), []byte("precious"), 0o644)).To(Succeed())

			gitDir()
			runner.respond("remote get-url origin", "git@example.com:m.git")
			runner.respond("branch --show-current", "main")
			runner.respond("rev-list --count HEAD..origin/main", "1")
			runner.respond("rev-parse HEAD", "abc123")
			runner.respond("rev-parse origin/main", "def456")
			runner.on("pull", func([]string) (string, error) {
				// Simulate a pull that clobbers the working copy and fails.
				os.RemoveAll(filesDir)
				return "fatal", errors.New("fatal")
			})
			runner.respond("diff --name-only --diff-filter=U", "")
			m := newManager("git@example.com:m.git")

			result := m.Synchronize(ctx)
			Expect(result.Success).To(BeFalse())
			Expect(result.ErrorCode).To(Equal(errkind.CodeGitPullFailed))

			data, err := os.ReadFile(filepath.Join(filesDir, "keep.md"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("precious"))
		})
	})

	Describe("CommitMemory", func() {
		It("stages, commits, and pushes when a remote is configured", func() {
			gitDir()
			m := newManager("git@example.com:m.git")

			result := m.CommitMemory(ctx, "abcd1234", "20260830_120000_abcd1234.md")
			Expect(result.Success).To(BeTrue())
			Expect(result.ErrorCode).To(BeEmpty())
			Expect(runner.called("add files/20260830_120000_abcd1234.md")).To(BeTrue())
			Expect(runner.called("commit -m Add memory abcd1234")).To(BeTrue())
			Expect(runner.called("push origin HEAD")).To(BeTrue())
		})

		It("skips the push without a remote", func() {
			gitDir()
			m := newManager("")

			result := m.CommitMemory(ctx, "abcd1234", "20260830_120000_abcd1234.md")
			Expect(result.Success).To(BeTrue())
			Expect(runner.called("push")).To(BeFalse())
		})

		It("treats nothing-to-commit as success", func() {
			gitDir()
			runner.on("commit", func([]string) (string, error) {
				return "nothing to commit, working tree clean", errors.New("exit status 1")
			})
			m := newManager("")

			result := m.CommitMemory(ctx, "abcd1234", "f.md")
			Expect(result.Success).To(BeTrue())
			Expect(result.Message).To(ContainSubstring("nothing to commit"))
		})

		It("retries failed steps up to the configured attempts", func() {
			gitDir()
			runner.fail("add", "index locked")
			m := newManager("")

			result := m.CommitMemory(ctx, "abcd1234", "f.md")
			Expect(result.Success).To(BeFalse())
			Expect(result.ErrorCode).To(Equal(errkind.CodeGitMaxRetries))
			Expect(runner.countCalls("add")).To(Equal(3))
		})

		It("degrades to local success when the push keeps failing", func() {
			gitDir()
			runner.fail("push", "could not resolve host")
			m := newManager("git@example.com:m.git")

			result := m.CommitMemory(ctx, "abcd1234", "f.md")
			Expect(result.Success).To(BeTrue())
			Expect(result.ErrorCode).To(Equal(errkind.CodeGitMaxRetries))
			Expect(result.Message).To(ContainSubstring("sync degraded"))
			Expect(runner.countCalls("push")).To(Equal(3))
		})

		It("recovers when a retried step eventually succeeds", func() {
			gitDir()
			attempts := 0
			runner.on("add", func([]string) (string, error) {
				attempts++
				if attempts < 3 {
					return "index locked", errors.New("index locked")
				}
				return "", nil
			})
			m := newManager("")

			result := m.CommitMemory(ctx, "abcd1234", "f.md")
			Expect(result.Success).To(BeTrue())
			Expect(attempts).To(Equal(3))
		})
	})
})
