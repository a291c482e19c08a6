// Package coropool implements the stackful-coroutine pool (§4.1): a bounded
// count of live execution contexts, handed out and recycled.
//
// Go goroutines already have runtime-managed, growable, recyclable stacks,
// so this pool does not allocate memory for stacks itself; it instead
// enforces the contract the rest of the engine relies on — a hard ceiling on
// live concurrent task bodies, and a synchronous, non-blocking failure when
// that ceiling is hit — via a buffered-channel counting token pool, the same
// shape as a semaphore. StackBytes is recorded as advisory metadata only:
// Go provides no portable API to preallocate or cap one goroutine's stack,
// so this one field is intentionally not enforced (see DESIGN.md).
package coropool

import (
	"context"

	"github.com/joeycumines/goengine/internal/errs"
)

// Config configures a Pool.
type Config struct {
	// InitialSize is the number of slots considered "preallocated"; it only
	// affects Stats.Preallocated bookkeeping, since Go has no separate
	// stack-preallocation step.
	InitialSize int
	// MaxSize is the hard ceiling on concurrently live slots. Zero means no
	// slots are ever available (Acquire always fails with ErrPoolExhausted),
	// matching the "capacity-0 pool" boundary behavior in §8.
	MaxSize int
	// StackBytes is advisory per-slot stack size metadata, exposed via
	// Stats but not enforced.
	StackBytes int
}

// Pool hands out and recycles bounded coroutine slots.
type Pool struct {
	cfg    Config
	tokens chan struct{}
}

// New constructs a Pool per cfg.
func New(cfg Config) *Pool {
	p := &Pool{cfg: cfg, tokens: make(chan struct{}, cfg.MaxSize)}
	for i := 0; i < cfg.MaxSize; i++ {
		p.tokens <- struct{}{}
	}
	return p
}

// Slot is a single checked-out coroutine slot; it must be released exactly
// once.
type Slot struct {
	pool *Pool
}

// Acquire attempts to check out a slot. If ctx is non-nil and already
// has a deadline/cancellation, Acquire still only ever fails synchronously
// with ErrPoolExhausted — per §4.1 "a spawn operation fails synchronously
// with a pool-exhausted error" — it never blocks waiting for a slot; ctx is
// accepted only for consistency with the rest of the package's call
// signatures and is not currently used to block.
func (p *Pool) Acquire(ctx context.Context) (*Slot, error) {
	select {
	case <-p.tokens:
		return &Slot{pool: p}, nil
	default:
		return nil, errs.ErrPoolExhausted
	}
}

// Release returns slot to the pool. Release must be called at most once per
// Slot; calling it twice is a programming error that Release does not
// detect.
func (p *Pool) Release(slot *Slot) {
	if slot == nil || slot.pool != p {
		errs.Misuse("coropool: release of slot not owned by this pool")
	}
	p.tokens <- struct{}{}
}

// Stats reports point-in-time pool occupancy.
type Stats struct {
	MaxSize      int
	LiveSlots    int
	FreeSlots    int
	Preallocated int
	StackBytes   int
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	free := len(p.tokens)
	return Stats{
		MaxSize:      p.cfg.MaxSize,
		LiveSlots:    p.cfg.MaxSize - free,
		FreeSlots:    free,
		Preallocated: p.cfg.InitialSize,
		StackBytes:   p.cfg.StackBytes,
	}
}
