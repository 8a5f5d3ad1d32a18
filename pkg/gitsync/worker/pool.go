// Package worker provides the asynchronous pool that hands stored memories
// to the git sync manager.
//
// The pool decouples git operations from the store's write hot path so that
// a slow or unreachable remote never delays the caller that stored the
// memory.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/gitsync"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Syncer commits a stored memory to the repository. Satisfied by
// *gitsync.Manager.
type Syncer interface {
	CommitMemory(ctx context.Context, id, filename string) gitsync.Result
}

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	MemoryID string
	Filename string
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Syncer performs the git commit for each job.
	Syncer Syncer

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes sync jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Syncer == nil {
		return nil, fmt.Errorf("worker config: Syncer is required")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// MemoryStored implements the store's notifier hook. The memory is already
// durable on disk; a full queue drops the sync job, it never blocks the
// store.
func (p *Pool) MemoryStored(id, filename string) {
	p.Enqueue(Job{MemoryID: id, Filename: filename})
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("sync job queued",
			zap.String("memory_id", job.MemoryID),
			zap.String("filename", job.Filename),
		)
		return true
	default:
		p.logger.Error("sync job not queued, queue full, job dropped",
			zap.String("memory_id", job.MemoryID),
			zap.String("filename", job.Filename),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("sync worker stopped", zap.Uint("worker_id", id))
}

// processJob commits one stored memory. Failures are logged; the memory is
// already safe on disk.
func (p *Pool) processJob(job Job) {
	result := p.config.Syncer.CommitMemory(context.Background(), job.MemoryID, job.Filename)
	if !result.Success {
		p.logger.Error("async memory sync failed",
			zap.String("memory_id", job.MemoryID),
			zap.String("error_code", string(result.ErrorCode)),
			zap.String("message", result.Message),
		)
		return
	}

	p.logger.Info("memory synced",
		zap.String("memory_id", job.MemoryID),
		zap.String("message", result.Message),
	)
}
