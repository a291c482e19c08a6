// Package taskprocessor implements the named worker-thread pool that owns
// every task's entire lifetime (§3 Task processor, §4.2).
//
// A "worker" here is a dispatcher goroutine: it pops the next ready item off
// the FIFO queue, hands the item's body to a dedicated goroutine of its own,
// and immediately loops back to pop the next one. It never blocks inside a
// task body, so when that body suspends (parks on a mutex, a condition
// variable, a semaphore, ...) the worker has already re-entered the loop —
// WorkerThreads bounds dispatch concurrency, not the number of live
// (including parked) tasks. Live-task concurrency is instead bounded by
// coropool.Pool (CoropoolConfig.MaxSize), acquired once per Spawn and
// released once the body completes, matching the spec's separation of
// worker_threads from coroutine_pool.max_size (§4.1/§6.4). The ready-queue,
// FIFO admission order, soft-limit overload policy, and graceful/ungraceful
// shutdown contracts named in §4.2 all hold under this mapping.
package taskprocessor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/goengine/coropool"
	"github.com/joeycumines/goengine/deadline"
	"github.com/joeycumines/goengine/internal/enginelog"
	"github.com/joeycumines/goengine/internal/errs"
	"github.com/joeycumines/goengine/task"
	"github.com/joeycumines/goengine/tasklocal"
)

// OverloadAction is the policy a Processor applies when its ready-queue
// length exceeds QueueSoftLimit (§3 Task processor, §4.8).
type OverloadAction int

const (
	// OverloadIgnore admits spawns regardless of queue length.
	OverloadIgnore OverloadAction = iota
	// OverloadCancelNewTasks rejects new spawns with ErrOverload once the
	// soft limit is exceeded.
	OverloadCancelNewTasks
)

// Config configures a Processor.
type Config struct {
	Name            string
	WorkerThreads   int
	QueueSoftLimit  int
	OverloadAction  OverloadAction
	CoropoolConfig  coropool.Config
	Logger          *enginelog.Logger
}

type queueItem struct {
	ctx    *task.Context
	run    func()
	cancel func() // completes the task with a cancellation error, body unrun
}

// Processor is a named pool of worker goroutines draining a shared FIFO
// ready-queue (§3 Task processor).
type Processor struct {
	cfg    Config
	pool   *coropool.Pool
	logger *enginelog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	items    []queueItem
	closed   bool
	draining bool

	nextID    atomic.Uint64
	liveTasks atomic.Int64
	spawned   atomic.Uint64
	rejected  atomic.Uint64
	completed atomic.Uint64

	wg     sync.WaitGroup // dispatcher (workerLoop) goroutines
	bodyWG sync.WaitGroup // in-flight task-body goroutines
}

// newUnstarted builds a Processor with cfg's defaults applied but no
// dispatcher goroutines running yet. Split out of New so tests can drive the
// ready-queue deterministically (admit spawns, inspect queueLen) before any
// dispatcher has a chance to pop them.
func newUnstarted(cfg Config) *Processor {
	if cfg.WorkerThreads <= 0 {
		cfg.WorkerThreads = runtime.GOMAXPROCS(0)
	}
	if cfg.CoropoolConfig.MaxSize == 0 {
		cfg.CoropoolConfig.MaxSize = cfg.WorkerThreads
	}
	logger := cfg.Logger
	if logger == nil {
		logger = enginelog.Discard
	}
	p := &Processor{
		cfg:    cfg,
		pool:   coropool.New(cfg.CoropoolConfig),
		logger: logger,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// startWorkers launches n additional dispatcher goroutines.
func (p *Processor) startWorkers(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}
}

// New constructs and starts a Processor per cfg.
func New(cfg Config) *Processor {
	p := newUnstarted(cfg)
	p.startWorkers(p.cfg.WorkerThreads)
	return p
}

// Name returns the processor's configured name.
func (p *Processor) Name() string { return p.cfg.Name }

func (p *Processor) workerLoop() {
	defer p.wg.Done()
	for {
		item, ok := p.pop()
		if !ok {
			return
		}
		item.ctx.MarkRunning()
		if item.ctx.ShouldCancel() {
			// cancel_requested_before_start (§4.2): complete immediately
			// without ever invoking the body.
			item.cancel()
			continue
		}
		// Hand the body to its own goroutine and re-enter the loop
		// immediately: the dispatcher must never block on a task that
		// parks (§4.2's worker-releases-on-suspend contract). Live
		// concurrency is bounded by coropool, not by this loop.
		p.bodyWG.Add(1)
		go func() {
			defer p.bodyWG.Done()
			item.run()
		}()
	}
}

func (p *Processor) pop() (queueItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.items) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.items) == 0 {
		return queueItem{}, false
	}
	item := p.items[0]
	p.items = p.items[1:]
	return item, true
}

func (p *Processor) queueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func (p *Processor) push(item queueItem) {
	p.mu.Lock()
	p.items = append(p.items, item)
	p.mu.Unlock()
	p.cond.Signal()
}

// Spawn starts fn as a new task, mirroring spawn(function, inherited,
// deadline) -> task_handle (§4.2/§6.1). fn receives the task's own Context
// and returns its result; the typed result is available via the returned
// Handle's Join.
func Spawn[T any](p *Processor, inherited *tasklocal.Map, dl deadline.Deadline, fn func(*task.Context) (T, error)) (*task.Handle[T], error) {
	p.mu.Lock()
	closed := p.closed
	overloaded := len(p.items) >= p.cfg.QueueSoftLimit && p.cfg.OverloadAction == OverloadCancelNewTasks && p.cfg.QueueSoftLimit > 0
	p.mu.Unlock()
	if closed {
		p.rejected.Add(1)
		return nil, errs.ErrOverload
	}
	if overloaded {
		p.rejected.Add(1)
		p.logger.Warning().Str("processor", p.cfg.Name).Log("spawn rejected: queue soft limit exceeded")
		return nil, errs.ErrOverload
	}

	slot, err := p.pool.Acquire(context.Background())
	if err != nil {
		p.rejected.Add(1)
		return nil, err
	}

	id := p.nextID.Add(1)
	p.liveTasks.Add(1)
	p.spawned.Add(1)

	handle := task.NewHandle[T]()
	handle.OnAbandoned(func(err error) {
		p.logger.Err().Str("processor", p.cfg.Name).Uint64("task_id", id).Err(err).Log("task completed with an error but was never joined or detached")
	})
	ctx := task.New(id, p.cfg.Name, inherited, dl, func() {
		p.liveTasks.Add(-1)
		p.completed.Add(1)
		p.pool.Release(slot)
	})

	run := func() {
		defer func() {
			if r := recover(); r != nil {
				handle.SetError(fmt.Errorf("goengine: task panicked: %v", r))
				ctx.MarkCompleted()
			}
		}()
		v, err := fn(ctx)
		handle.SetResult(v, err)
		ctx.MarkCompleted()
	}
	cancel := func() {
		handle.SetError(errs.NewCancelled(ctx.CancellationReason()))
		ctx.MarkCompleted()
	}

	handle.BindContext(ctx)
	ctx.MarkQueued()
	p.push(queueItem{ctx: ctx, run: run, cancel: cancel})
	return handle, nil
}

// Stop mirrors stop(graceful) (§4.2). When graceful, it stops accepting new
// spawns and waits for every already-queued and already-running task to
// finish. When not graceful, it additionally cancels every task still
// sitting in the ready-queue (not yet running) via the overload reason
// before waking workers, per the Open Question resolution in SPEC_FULL.md
// §9: shutdown always behaves like cancel_new_tasks for new spawns, while
// in-flight bodies that never reach a suspension/cancellation check keep
// running in the background rather than being forcibly killed (Go provides
// no safe mechanism to preempt a running goroutine).
func (p *Processor) Stop(ctx context.Context, graceful bool) error {
	p.mu.Lock()
	p.closed = true
	if !graceful {
		for _, item := range p.items {
			item.ctx.RequestCancelOverload()
		}
	}
	p.mu.Unlock()
	p.cond.Broadcast()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		p.bodyWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports point-in-time processor occupancy and counters.
type Stats struct {
	Name         string
	QueueLen     int
	LiveTasks    int64
	Spawned      uint64
	Rejected     uint64
	Completed    uint64
	CoropoolStat coropool.Stats
}

// Stats returns a snapshot of processor occupancy.
func (p *Processor) Stats() Stats {
	return Stats{
		Name:         p.cfg.Name,
		QueueLen:     p.queueLen(),
		LiveTasks:    p.liveTasks.Load(),
		Spawned:      p.spawned.Load(),
		Rejected:     p.rejected.Load(),
		Completed:    p.completed.Load(),
		CoropoolStat: p.pool.Stats(),
	}
}
