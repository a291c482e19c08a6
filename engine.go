// Package engine is the root entry point (§6.1, §6.4): it wires a set of
// named task-processors, a coroutine pool per processor, and an optional
// shared I/O loop into the single façade most callers interact with —
// Async/AsyncWithDeadline to spawn, Stop to shut down.
package engine

import (
	"context"
	"fmt"

	"github.com/joeycumines/goengine/deadline"
	"github.com/joeycumines/goengine/internal/enginelog"
	"github.com/joeycumines/goengine/ioloop"
	"github.com/joeycumines/goengine/task"
	"github.com/joeycumines/goengine/taskprocessor"
	"github.com/joeycumines/goengine/tasklocal"
)

// Config configures an Engine. DefaultTaskProcessor names which entry in
// TaskProcessors new Async calls target when no explicit processor name is
// given.
type Config struct {
	TaskProcessors       []taskprocessor.Config
	DefaultTaskProcessor string
	EnableIOLoop         bool
	Logger               *enginelog.Logger
}

// Engine owns a set of named task-processors and, optionally, a shared I/O
// loop (§6.3).
type Engine struct {
	processors map[string]*taskprocessor.Processor
	defaultTP  string
	loop       *ioloop.Loop
	logger     *enginelog.Logger
}

// New constructs an Engine per cfg, starting every configured processor (and
// the I/O loop, if enabled) immediately.
func New(cfg Config) (*Engine, error) {
	if len(cfg.TaskProcessors) == 0 {
		return nil, fmt.Errorf("goengine: at least one task processor must be configured")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = enginelog.Discard
	}

	e := &Engine{
		processors: make(map[string]*taskprocessor.Processor, len(cfg.TaskProcessors)),
		logger:     logger,
	}
	for _, pc := range cfg.TaskProcessors {
		if pc.Logger == nil {
			pc.Logger = logger
		}
		if _, exists := e.processors[pc.Name]; exists {
			return nil, fmt.Errorf("goengine: duplicate task processor name %q", pc.Name)
		}
		e.processors[pc.Name] = taskprocessor.New(pc)
	}

	e.defaultTP = cfg.DefaultTaskProcessor
	if e.defaultTP == "" {
		e.defaultTP = cfg.TaskProcessors[0].Name
	}
	if _, ok := e.processors[e.defaultTP]; !ok {
		return nil, fmt.Errorf("goengine: default task processor %q is not configured", e.defaultTP)
	}

	if cfg.EnableIOLoop {
		loop, err := ioloop.New()
		if err != nil {
			return nil, fmt.Errorf("goengine: starting io loop: %w", err)
		}
		e.loop = loop
	}

	return e, nil
}

// IOLoop returns the engine's shared I/O loop, or nil if EnableIOLoop was
// false.
func (e *Engine) IOLoop() *ioloop.Loop { return e.loop }

// Processor returns the named task-processor, or nil if unconfigured.
func (e *Engine) Processor(name string) *taskprocessor.Processor {
	return e.processors[name]
}

// Async spawns fn on the default task-processor with no deadline, mirroring
// spawn(function, inherited, deadline=never) (§4.2/§6.1).
func Async[T any](e *Engine, fn func(*task.Context) (T, error)) (*task.Handle[T], error) {
	return AsyncOn(e, e.defaultTP, nil, deadline.Never, fn)
}

// AsyncWithDeadline spawns fn on the default task-processor with dl.
func AsyncWithDeadline[T any](e *Engine, dl deadline.Deadline, fn func(*task.Context) (T, error)) (*task.Handle[T], error) {
	return AsyncOn(e, e.defaultTP, nil, dl, fn)
}

// AsyncOn spawns fn on the named task-processor with the given inherited
// task-local data and deadline — the most general form, exposing every
// parameter spawn() takes (§4.2).
func AsyncOn[T any](e *Engine, processorName string, inherited *tasklocal.Map, dl deadline.Deadline, fn func(*task.Context) (T, error)) (*task.Handle[T], error) {
	p := e.processors[processorName]
	if p == nil {
		return nil, fmt.Errorf("goengine: unknown task processor %q", processorName)
	}
	return taskprocessor.Spawn(p, inherited, dl, fn)
}

// Stop stops every configured task-processor (and the I/O loop, if any),
// per processor's own graceful/ungraceful Stop semantics (§4.2, §9).
func (e *Engine) Stop(ctx context.Context, graceful bool) error {
	for name, p := range e.processors {
		if err := p.Stop(ctx, graceful); err != nil {
			return fmt.Errorf("goengine: stopping processor %q: %w", name, err)
		}
	}
	if e.loop != nil {
		if err := e.loop.Close(); err != nil {
			return fmt.Errorf("goengine: closing io loop: %w", err)
		}
	}
	return nil
}
