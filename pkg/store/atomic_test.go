package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/errkind"
)

var _ = Describe("Atomic writes", func() {
	var tmpDir string
	var cfg Config
	var s *Store

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "atomic-test-*")
		Expect(err).NotTo(HaveOccurred())

		cfg = Config{Root: tmpDir}
		s, err = New(cfg, nil, nil, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("leaves the store untouched when the final rename fails", func() {
		original := renameFile
		renameFile = func(oldpath, newpath string) error {
			return fmt.Errorf("rename blocked")
		}
		defer func() { renameFile = original }()

		_, err := s.Save(context.Background(), "claude", "alex", []string{"notes"}, "content")
		Expect(err).To(HaveOccurred())
		Expect(errkind.IsCode(err, errkind.CodeMemoryWriteError)).To(BeTrue())

		files, globErr := filepath.Glob(filepath.Join(cfg.FilesDir(), "*.md"))
		Expect(globErr).NotTo(HaveOccurred())
		Expect(files).To(BeEmpty())

		leftovers, globErr := filepath.Glob(filepath.Join(cfg.FilesDir(), "*.tmp"))
		Expect(globErr).NotTo(HaveOccurred())
		Expect(leftovers).To(BeEmpty())
	})

	It("recovers once the rename failure clears", func() {
		original := renameFile
		calls := 0
		renameFile = func(oldpath, newpath string) error {
			calls++
			if calls == 1 {
				return fmt.Errorf("rename blocked")
			}
			return os.Rename(oldpath, newpath)
		}
		defer func() { renameFile = original }()

		_, err := s.Save(context.Background(), "claude", "alex", []string{"notes"}, "first attempt")
		Expect(err).To(HaveOccurred())

		result, err := s.Save(context.Background(), "claude", "alex", []string{"notes"}, "second attempt")
		Expect(err).NotTo(HaveOccurred())

		files, globErr := filepath.Glob(filepath.Join(cfg.FilesDir(), "*.md"))
		Expect(globErr).NotTo(HaveOccurred())
		Expect(files).To(HaveLen(1))
		Expect(filepath.Base(files[0])).To(Equal(result.Filename))
	})
})
