package search_test

import (
	"context"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/errkind"
	"github.com/papercomputeco/engram/pkg/logger"
	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/search"
)

type fakeRepo struct {
	memories   map[string]*memory.Memory
	listErr    error
	parseCalls int
}

func (r *fakeRepo) List() ([]string, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	paths := make([]string, 0, len(r.memories))
	for path := range r.memories {
		paths = append(paths, path)
	}
	return paths, nil
}

func (r *fakeRepo) ParseFileSafe(path string) *memory.Memory {
	r.parseCalls++
	return r.memories[path]
}

func newMemory(id, content string, topics ...string) *memory.Memory {
	return &memory.Memory{
		ID:        id,
		Timestamp: time.Now(),
		Agent:     "claude",
		User:      "dev",
		Topics:    topics,
		Content:   content,
	}
}

var _ = Describe("Engine", func() {
	var (
		repo   *fakeRepo
		engine *search.Engine
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = &fakeRepo{memories: map[string]*memory.Memory{}}
		engine = search.New(search.Config{}, repo, logger.Nop())
	})

	Describe("Search", func() {
		It("returns empty results for blank keywords", func() {
			repo.memories["a.md"] = newMemory("a", "deployment notes")

			results, err := engine.Search(ctx, []string{"  ", ""})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		It("returns empty results when the store is empty", func() {
			results, err := engine.Search(ctx, []string{"deploy"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		It("finds memories by content keyword", func() {
			repo.memories["a.md"] = newMemory("a", "the deploy failed on friday")
			repo.memories["b.md"] = newMemory("b", "unrelated grocery list")

			results, err := engine.Search(ctx, []string{"deploy"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].MemoryID).To(Equal("a"))
			Expect(results[0].Agent).To(Equal("claude"))
			Expect(results[0].RelevanceScore).To(BeNumerically(">", 0))
		})

		It("ranks topic matches above content-only matches", func() {
			repo.memories["topical.md"] = newMemory("topical", "notes from the standup", "deploy")
			repo.memories["content.md"] = newMemory("content", "we talked about the deploy")

			results, err := engine.Search(ctx, []string{"deploy"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].MemoryID).To(Equal("topical"))
			Expect(results[0].MatchingTopics).To(ConsistOf("deploy"))
		})

		It("matches keywords case-insensitively", func() {
			repo.memories["a.md"] = newMemory("a", "Deploy went fine")

			results, err := engine.Search(ctx, []string{"DEPLOY"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
		})

		It("truncates long content previews", func() {
			repo.memories["a.md"] = newMemory("a", "deploy "+strings.Repeat("x", 300))

			results, err := engine.Search(ctx, []string{"deploy"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ContentPreviewIsTruncated).To(BeTrue())
			Expect(results[0].ContentPreview).To(HaveSuffix("..."))
		})

		It("bounds the result list to MaxResults", func() {
			engine = search.New(search.Config{MaxResults: 2}, repo, logger.Nop())
			for _, id := range []string{"a", "b", "c", "d", "e"} {
				repo.memories[id+".md"] = newMemory(id, "deploy log entry "+id)
			}

			results, err := engine.Search(ctx, []string{"deploy"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
		})

		It("wraps listing failures in a structured error", func() {
			repo.listErr = context.DeadlineExceeded

			_, err := engine.Search(ctx, []string{"deploy"})
			Expect(err).To(HaveOccurred())
			Expect(errkind.IsCode(err, errkind.CodeMemoryGeneral)).To(BeTrue())
		})
	})

	Describe("parse cache", func() {
		It("serves repeat searches without re-parsing", func() {
			repo.memories["a.md"] = newMemory("a", "deploy notes")

			_, err := engine.Search(ctx, []string{"deploy"})
			Expect(err).NotTo(HaveOccurred())
			parsed := repo.parseCalls

			_, err = engine.Search(ctx, []string{"deploy"})
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.parseCalls).To(Equal(parsed))

			stats := engine.Stats()
			Expect(stats.CacheHits).To(BeNumerically(">", 0))
		})

		It("re-parses after invalidation", func() {
			repo.memories["a.md"] = newMemory("a", "deploy notes")

			_, err := engine.Search(ctx, []string{"deploy"})
			Expect(err).NotTo(HaveOccurred())
			parsed := repo.parseCalls

			engine.InvalidateCache()

			_, err = engine.Search(ctx, []string{"deploy"})
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.parseCalls).To(BeNumerically(">", parsed))
		})
	})

	Describe("Stats", func() {
		It("counts searches and tracks timing", func() {
			repo.memories["a.md"] = newMemory("a", "deploy notes")

			_, err := engine.Search(ctx, []string{"deploy"})
			Expect(err).NotTo(HaveOccurred())
			_, err = engine.Search(ctx, []string{"nothing"})
			Expect(err).NotTo(HaveOccurred())

			stats := engine.Stats()
			Expect(stats.TotalSearches).To(Equal(int64(2)))
			Expect(stats.AvgSearchTime).To(BeNumerically(">=", 0))
		})

		It("resets counters", func() {
			repo.memories["a.md"] = newMemory("a", "deploy notes")

			_, err := engine.Search(ctx, []string{"deploy"})
			Expect(err).NotTo(HaveOccurred())

			engine.ResetStats()
			Expect(engine.Stats().TotalSearches).To(Equal(int64(0)))
		})
	})
})
