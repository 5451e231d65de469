// Package taskq is a priority work queue for auxiliary jobs that must not
// ride the lockstep clock: dataset preloading, periodic snapshotting,
// journaling. Lower priority ranks run first. The worker pool grows with
// backlog up to a cap and shrinks again when workers sit idle.
//
// Queue workers never touch the ledger or trade registries directly; any
// state mutation goes through the matching engine like everyone else's.
package taskq

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrQueueClosed is returned by Submit after shutdown has begun.
var ErrQueueClosed = errors.New("taskq: queue closed")

// ShutdownPolicy selects what happens to pending work on shutdown.
type ShutdownPolicy int

const (
	// CancelAll drops pending items and cancels running ones immediately.
	CancelAll ShutdownPolicy = iota
	// DrainCritical discards non-critical backlog, runs every must-complete
	// item to completion, then stops.
	DrainCritical
)

// Item is one unit of background work.
type Item struct {
	Name     string
	Priority int // lower runs first
	Critical bool // must complete even during a graceful shutdown
	Fn       func(ctx context.Context) error

	seq uint64 // FIFO tie-break within a priority
}

// Options tunes the pool. Zero values pick the defaults.
type Options struct {
	MinWorkers  int           // default 1
	MaxWorkers  int           // default 4
	IdleTimeout time.Duration // worker shrink delay, default 250ms
	Logger      *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MinWorkers <= 0 {
		o.MinWorkers = 1
	}
	if o.MaxWorkers < o.MinWorkers {
		o.MaxWorkers = max(4, o.MinWorkers)
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 250 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Queue owns the backlog and the worker pool.
type Queue struct {
	opts Options
	log  *zap.Logger

	mu      sync.Mutex
	items   itemHeap
	seq     uint64
	workers int
	idle    int
	active  int
	closed  bool

	notify  chan struct{}
	closing chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	completed atomic.Int64
	failed    atomic.Int64
}

// New builds a queue and starts the minimum worker set.
func New(opts Options) *Queue {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		opts:      opts,
		log:       opts.Logger,
		notify:    make(chan struct{}, 64),
		closing:   make(chan struct{}),
		runCtx:    ctx,
		runCancel: cancel,
	}
	q.mu.Lock()
	for i := 0; i < opts.MinWorkers; i++ {
		q.spawnLocked()
	}
	q.mu.Unlock()
	return q
}

// Submit queues one item. The pool grows by one worker when no one is idle
// and the cap allows it.
func (q *Queue) Submit(item Item) error {
	if item.Fn == nil {
		return errors.New("taskq: item requires a callable")
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.seq++
	item.seq = q.seq
	heap.Push(&q.items, item)

	if q.idle == 0 && q.workers < q.opts.MaxWorkers {
		q.spawnLocked()
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the backlog size.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Workers returns the current pool size.
func (q *Queue) Workers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.workers
}

// Stats returns completed and failed item counts.
func (q *Queue) Stats() (completed, failed int64) {
	return q.completed.Load(), q.failed.Load()
}

// WaitIdle blocks until the queue has no backlog and no running items for
// the given settle duration, or ctx expires. Used to bound a run by queue
// idleness.
func (q *Queue) WaitIdle(ctx context.Context, settle time.Duration) error {
	if settle <= 0 {
		settle = 10 * time.Millisecond
	}
	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()

	var idleSince time.Time
	for {
		q.mu.Lock()
		quiet := q.items.Len() == 0 && q.active == 0
		q.mu.Unlock()

		now := time.Now()
		if !quiet {
			idleSince = time.Time{}
		} else if idleSince.IsZero() {
			idleSince = now
		} else if now.Sub(idleSince) >= settle {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown stops the queue. CancelAll drops the backlog and cancels running
// items; DrainCritical keeps only must-complete items and runs them out.
// The wait for workers is bounded by ctx; on expiry everything is
// hard-canceled.
func (q *Queue) Shutdown(ctx context.Context, policy ShutdownPolicy) error {
	q.mu.Lock()
	first := !q.closed
	dropped := 0
	if first {
		q.closed = true
		switch policy {
		case CancelAll:
			dropped = q.items.Len()
			q.items = nil
		case DrainCritical:
			kept := make(itemHeap, 0, len(q.items))
			for _, it := range q.items {
				if it.Critical {
					kept = append(kept, it)
				} else {
					dropped++
				}
			}
			q.items = kept
			heap.Init(&q.items)
		}
		close(q.closing)
	}
	q.mu.Unlock()

	if first {
		if dropped > 0 {
			q.log.Debug("dropped pending tasks", zap.Int("count", dropped))
		}
		if policy == CancelAll {
			q.runCancel()
		}
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.runCancel()
		return nil
	case <-ctx.Done():
		q.runCancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) spawnLocked() {
	q.workers++
	q.wg.Add(1)
	go q.worker()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			item := heap.Pop(&q.items).(Item)
			q.active++
			q.mu.Unlock()
			q.run(item)
			q.mu.Lock()
			q.active--
			q.mu.Unlock()
			continue
		}
		if q.closed {
			q.workers--
			q.mu.Unlock()
			return
		}
		q.idle++
		q.mu.Unlock()

		select {
		case <-q.notify:
			q.mu.Lock()
			q.idle--
			q.mu.Unlock()
		case <-q.closing:
			q.mu.Lock()
			q.idle--
			q.mu.Unlock()
		case <-time.After(q.opts.IdleTimeout):
			q.mu.Lock()
			q.idle--
			if q.workers > q.opts.MinWorkers {
				q.workers--
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
		}
	}
}

// run executes one item, isolating failures: an error or panic is logged
// and counted, never propagated to sibling workers.
func (q *Queue) run(item Item) {
	defer func() {
		if r := recover(); r != nil {
			q.failed.Add(1)
			q.log.Error("task panicked",
				zap.String("task", item.Name),
				zap.Any("panic", r))
		}
	}()

	if err := item.Fn(q.runCtx); err != nil {
		q.failed.Add(1)
		q.log.Warn("task failed",
			zap.String("task", item.Name),
			zap.Error(err))
		return
	}
	q.completed.Add(1)
}

// itemHeap orders by (priority, submission order).
type itemHeap []Item

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(Item)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
