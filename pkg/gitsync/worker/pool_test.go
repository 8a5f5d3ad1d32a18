package worker

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/gitsync"
)

// fakeSyncer records committed memories. Callers should "wp.Close()" to
// drain enqueued jobs before asserting on committed state.
type fakeSyncer struct {
	mu        sync.Mutex
	committed []Job
	block     chan struct{}
	fail      bool
}

func (f *fakeSyncer) CommitMemory(_ context.Context, id, filename string) gitsync.Result {
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	f.committed = append(f.committed, Job{MemoryID: id, Filename: filename})
	f.mu.Unlock()

	if f.fail {
		return gitsync.Result{Success: false, Operation: "commit_memory", Message: "boom"}
	}
	return gitsync.Result{Success: true, Operation: "commit_memory", Message: "ok"}
}

func (f *fakeSyncer) committedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.committed))
	for _, j := range f.committed {
		ids = append(ids, j.MemoryID)
	}
	return ids
}

func newTestPool(syncer *fakeSyncer) *Pool {
	logger, _ := zap.NewDevelopment()

	wp, err := NewPool(&Config{
		Syncer: syncer,
		Logger: logger,
	})
	Expect(err).NotTo(HaveOccurred())

	return wp
}

var _ = Describe("Worker Pool", func() {
	Describe("NewPool", func() {
		It("requires a syncer", func() {
			_, err := NewPool(&Config{})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			syncer := &fakeSyncer{}
			wp := newTestPool(syncer)

			ok := wp.Enqueue(Job{MemoryID: "abcd1234", Filename: "20260830_120000_abcd1234.md"})
			Expect(ok).To(BeTrue())
			wp.Close()

			Expect(syncer.committedIDs()).To(ContainElement("abcd1234"))
		})

		It("drops jobs when the queue is full", func() {
			block := make(chan struct{})
			syncer := &fakeSyncer{block: block}

			logger, _ := zap.NewDevelopment()
			wp, err := NewPool(&Config{
				Syncer:     syncer,
				NumWorkers: 1,
				QueueSize:  1,
				Logger:     logger,
			})
			Expect(err).NotTo(HaveOccurred())

			// First job occupies the single worker, second fills the queue.
			// Everything after that must drop rather than block.
			wp.Enqueue(Job{MemoryID: "aaaa0001"})

			Eventually(func() bool {
				return wp.Enqueue(Job{MemoryID: "aaaa0002"}) == false
			}).Should(BeTrue())

			close(block)
			wp.Close()
		})
	})

	Describe("MemoryStored", func() {
		It("enqueues a commit job for the stored memory", func() {
			syncer := &fakeSyncer{}
			wp := newTestPool(syncer)

			wp.MemoryStored("abcd1234", "20260830_120000_abcd1234.md")
			wp.Close()

			Expect(syncer.committed).To(HaveLen(1))
			Expect(syncer.committed[0].Filename).To(Equal("20260830_120000_abcd1234.md"))
		})
	})

	Describe("Close", func() {
		It("drains all queued jobs before returning", func() {
			syncer := &fakeSyncer{}
			wp := newTestPool(syncer)

			for _, id := range []string{"aaaa0001", "aaaa0002", "aaaa0003", "aaaa0004"} {
				Expect(wp.Enqueue(Job{MemoryID: id})).To(BeTrue())
			}
			wp.Close()

			Expect(syncer.committedIDs()).To(ConsistOf("aaaa0001", "aaaa0002", "aaaa0003", "aaaa0004"))
		})
	})

	Describe("processJob", func() {
		It("survives a failing commit", func() {
			syncer := &fakeSyncer{fail: true}
			wp := newTestPool(syncer)

			Expect(wp.Enqueue(Job{MemoryID: "abcd1234"})).To(BeTrue())
			wp.Close()

			Expect(syncer.committed).To(HaveLen(1))
		})
	})
})
