package jobserver

import (
	"context"
	"errors"
	"sync"

	"log/slog"

	"github.com/CCSDForge/episciences-front-next-sub002/internal/rebuild"
)

// ErrQueueClosed is returned for submissions after shutdown.
var ErrQueueClosed = errors.New("rebuild queue closed")

// Executor runs one rebuild to completion.
type Executor interface {
	Run(ctx context.Context, d rebuild.Descriptor, emit rebuild.Emitter) rebuild.Result
}

// Queue bounds rebuild concurrency with a fixed worker pool and
// serializes jobs per journal, so overlapping requests for the same
// tenant never race the build tool. Callers block until their job
// completes.
type Queue struct {
	exec    Executor
	logger  *slog.Logger
	tasks   chan task
	wg      sync.WaitGroup
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	closed  bool
	closeMu sync.RWMutex
}

type task struct {
	ctx    context.Context
	desc   rebuild.Descriptor
	emit   rebuild.Emitter
	result chan rebuild.Result
}

// NewQueue starts workers goroutines over a backlog-sized channel.
func NewQueue(exec Executor, workers, backlog int, logger *slog.Logger) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if backlog <= 0 {
		backlog = 16
	}
	q := &Queue{
		exec:   exec,
		logger: logger,
		tasks:  make(chan task, backlog),
		locks:  make(map[string]*sync.Mutex),
	}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	logger.Info("rebuild queue started", "workers", workers, "backlog", backlog)
	return q
}

// Submit enqueues a job and waits for its result. Context
// cancellation is honored only while the job is still queued: once a
// build subprocess is spawned it runs to completion.
func (q *Queue) Submit(ctx context.Context, d rebuild.Descriptor, emit rebuild.Emitter) (rebuild.Result, error) {
	q.closeMu.RLock()
	if q.closed {
		q.closeMu.RUnlock()
		return rebuild.Result{}, ErrQueueClosed
	}
	t := task{ctx: context.WithoutCancel(ctx), desc: d, emit: emit, result: make(chan rebuild.Result, 1)}

	select {
	case q.tasks <- t:
		q.closeMu.RUnlock()
	case <-ctx.Done():
		q.closeMu.RUnlock()
		return rebuild.Result{}, ctx.Err()
	}
	return <-t.result, nil
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		lock := q.lockFor(t.desc.Journal)
		if !lock.TryLock() {
			q.logger.Debug("waiting for in-flight job", "journal", t.desc.Journal)
			lock.Lock()
		}
		res := q.exec.Run(t.ctx, t.desc, t.emit)
		lock.Unlock()
		t.result <- res
	}
}

func (q *Queue) lockFor(journal string) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	lock, ok := q.locks[journal]
	if !ok {
		lock = &sync.Mutex{}
		q.locks[journal] = lock
	}
	return lock
}

// Close stops accepting jobs and waits for in-flight work. Workers
// keep draining the backlog, so pending submitters are not abandoned.
func (q *Queue) Close() {
	q.closeMu.Lock()
	if q.closed {
		q.closeMu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.closeMu.Unlock()
	q.wg.Wait()
	q.logger.Info("rebuild queue stopped")
}
