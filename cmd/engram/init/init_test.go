package initcmder

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Init command", func() {
	var dir string

	BeforeEach(func() {
		dir = filepath.Join(GinkgoT().TempDir(), ".engram")
	})

	Describe("resolveDir", func() {
		It("creates the override directory", func() {
			cmder := &InitCommander{}

			resolved, existed, err := cmder.resolveDir(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeFalse())
			Expect(resolved).To(BeADirectory())
		})

		It("reports when the directory already exists", func() {
			Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
			cmder := &InitCommander{}

			_, existed, err := cmder.resolveDir(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeTrue())
		})
	})

	Describe("createLayout", func() {
		It("creates the store subdirectories", func() {
			cmder := &InitCommander{}
			Expect(os.MkdirAll(dir, 0o755)).To(Succeed())

			Expect(cmder.createLayout(dir)).To(Succeed())

			for _, sub := range []string{"files", "backups", "temp", "locks"} {
				Expect(filepath.Join(dir, sub)).To(BeADirectory())
			}
		})
	})

	Describe("ensureConfig", func() {
		It("writes a default config.toml", func() {
			cmder := &InitCommander{}
			Expect(os.MkdirAll(dir, 0o755)).To(Succeed())

			cfg, err := cmder.ensureConfig(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Sync.Enabled).To(BeTrue())
			Expect(filepath.Join(dir, "config.toml")).To(BeARegularFile())
		})

		It("records the remote flag in the config", func() {
			cmder := &InitCommander{remote: "git@example.com:me/memories.git"}
			Expect(os.MkdirAll(dir, 0o755)).To(Succeed())

			cfg, err := cmder.ensureConfig(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Sync.Remote).To(Equal("git@example.com:me/memories.git"))

			data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("git@example.com:me/memories.git"))
		})

		It("preserves existing settings", func() {
			Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[search]\nmax_results = 7\n"), 0o644)).To(Succeed())

			cmder := &InitCommander{}
			cfg, err := cmder.ensureConfig(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Search.MaxResults).To(Equal(uint(7)))
		})
	})
})
