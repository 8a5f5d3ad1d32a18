package mcp

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/engram/pkg/errkind"
	"github.com/papercomputeco/engram/pkg/logger"
	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/search"
	"github.com/papercomputeco/engram/pkg/store"
)

// fakeStorer scripts the storage layer for handler tests.
type fakeStorer struct {
	saved     *store.SaveResult
	saveErr   error
	memories  map[string]*memory.Memory
	listPaths []string
}

func (f *fakeStorer) Save(_ context.Context, _, _ string, _ []string, _ string) (*store.SaveResult, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	return f.saved, nil
}

func (f *fakeStorer) Recall(_ context.Context, ids []string) []store.RecallResult {
	results := make([]store.RecallResult, 0, len(ids))
	for _, id := range ids {
		if mem, ok := f.memories[id]; ok {
			results = append(results, store.RecallResult{Memory: mem})
			continue
		}
		results = append(results, store.RecallResult{
			Err: errkind.Memory(errkind.CodeMemoryNotFound,
				fmt.Sprintf("Memory file not found: %s", id)),
		})
	}
	return results
}

func (f *fakeStorer) List() ([]string, error) {
	return f.listPaths, nil
}

// fakeSearcher scripts the search engine for handler tests.
type fakeSearcher struct {
	results   []search.Result
	searchErr error
	stats     search.Stats
}

func (f *fakeSearcher) Search(context.Context, []string) ([]search.Result, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

func (f *fakeSearcher) Stats() search.Stats {
	return f.stats
}

func textOf(result *mcpsdk.CallToolResult) string {
	Expect(result.Content).To(HaveLen(1))
	text, ok := result.Content[0].(*mcpsdk.TextContent)
	Expect(ok).To(BeTrue())
	return text.Text
}

var _ = Describe("Tool handlers", func() {
	var (
		server   *Server
		storer   *fakeStorer
		searcher *fakeSearcher
		ctx      context.Context
	)

	BeforeEach(func() {
		storer = &fakeStorer{
			saved: &store.SaveResult{
				MemoryID:  "abcd1234",
				Message:   "Memory stored successfully with ID: abcd1234",
				Timestamp: "2026-08-30T12:00:00Z",
				Filename:  "20260830_120000_abcd1234.md",
			},
			memories: map[string]*memory.Memory{},
		}
		searcher = &fakeSearcher{}
		ctx = context.Background()

		var err error
		server, err = NewServer(Config{
			Store:    storer,
			Searcher: searcher,
			Logger:   logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("remember", func() {
		It("returns the stored memory id", func() {
			result, output, err := server.handleRemember(ctx, nil, RememberInput{
				Agent:   "assistant",
				User:    "alice",
				Topics:  []string{"golang"},
				Content: "alice prefers table tests",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeFalse())
			Expect(output.MemoryID).To(Equal("abcd1234"))
			Expect(output.Filename).To(Equal("20260830_120000_abcd1234.md"))
			Expect(textOf(result)).To(ContainSubstring(`"memory_id":"abcd1234"`))
		})

		It("returns a structured error result when storage fails", func() {
			storer.saveErr = errkind.Validation(errkind.CodeInvalidContent, "Content cannot be empty")

			result, output, err := server.handleRemember(ctx, nil, RememberInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
			Expect(output).To(Equal(RememberOutput{}))
			Expect(textOf(result)).To(ContainSubstring("VALIDATION_INVALID_CONTENT"))
		})

		It("wraps plain errors in a structured error", func() {
			storer.saveErr = errors.New("disk on fire")

			result, _, err := server.handleRemember(ctx, nil, RememberInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
			Expect(textOf(result)).To(ContainSubstring("MEMORY_GENERAL_ERROR"))
			Expect(textOf(result)).To(ContainSubstring("disk on fire"))
		})
	})

	Describe("think", func() {
		It("returns ranked results", func() {
			searcher.results = []search.Result{
				{MemoryID: "abcd1234", RelevanceScore: 4.2, ContentPreview: "alice prefers table tests"},
			}

			result, output, err := server.handleThink(ctx, nil, ThinkInput{
				Keywords: []string{"table", "tests"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeFalse())
			Expect(output.Count).To(Equal(1))
			Expect(output.Results[0].MemoryID).To(Equal("abcd1234"))
		})

		It("returns an empty list when nothing matches", func() {
			result, output, err := server.handleThink(ctx, nil, ThinkInput{
				Keywords: []string{"unmatched"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeFalse())
			Expect(output.Count).To(Equal(0))
			Expect(output.Results).NotTo(BeNil())
		})

		It("rejects an empty keyword list", func() {
			result, _, err := server.handleThink(ctx, nil, ThinkInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
			Expect(textOf(result)).To(ContainSubstring("VALIDATION"))
		})

		It("returns a structured error result when the search fails", func() {
			searcher.searchErr = errkind.Memory(errkind.CodeMemoryGeneral, "Search failed: boom")

			result, _, err := server.handleThink(ctx, nil, ThinkInput{
				Keywords: []string{"anything"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
			Expect(textOf(result)).To(ContainSubstring("MEMORY_GENERAL_ERROR"))
		})
	})

	Describe("recall", func() {
		It("returns full memories with per-id errors for unknown ids", func() {
			storer.memories["abcd1234"] = &memory.Memory{
				ID:      "abcd1234",
				Agent:   "assistant",
				User:    "alice",
				Topics:  []string{"golang"},
				Content: "alice prefers table tests",
			}

			result, output, err := server.handleRecall(ctx, nil, RecallInput{
				MemoryIDs: []string{"abcd1234", "deadbeef"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeFalse())
			Expect(output.Count).To(Equal(2))

			Expect(output.Memories[0].MemoryID).To(Equal("abcd1234"))
			Expect(output.Memories[0].Content).To(Equal("alice prefers table tests"))
			Expect(output.Memories[0].Error).To(BeNil())

			Expect(output.Memories[1].MemoryID).To(Equal("deadbeef"))
			Expect(output.Memories[1].Error).NotTo(BeNil())
			Expect(output.Memories[1].Error.Code).To(Equal(errkind.CodeMemoryNotFound))
		})

		It("rejects malformed memory ids", func() {
			result, _, err := server.handleRecall(ctx, nil, RecallInput{
				MemoryIDs: []string{"../../../etc/passwd"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
			Expect(textOf(result)).To(ContainSubstring("VALIDATION"))
		})

		It("rejects an empty id list", func() {
			result, _, err := server.handleRecall(ctx, nil, RecallInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeTrue())
		})
	})

	Describe("performance_stats", func() {
		It("reports search counters and the stored file count", func() {
			searcher.stats = search.Stats{
				TotalSearches: 7,
				CacheHits:     10,
				CacheMisses:   2,
			}
			storer.listPaths = []string{"a.md", "b.md", "c.md"}

			result, output, err := server.handleStats(ctx, nil, StatsInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.IsError).To(BeFalse())
			Expect(output.Search.TotalSearches).To(Equal(int64(7)))
			Expect(output.MemoryFiles).To(Equal(3))
		})
	})
})
