// Package enginelog provides the concrete logiface.Event backend used as
// this module's ambient structured logger, the same way the corpus's own
// logiface-zerolog/logiface-slog/logiface-stumpy packages each provide one
// concrete backend for the generic github.com/joeycumines/logiface Logger.
// This one writes flat key=value lines to an io.Writer (default os.Stderr);
// it exists so taskprocessor/ioloop/sync primitives can log anomalies
// (abandoned-task errors, pool exhaustion, overload rejections) through the
// corpus's own logging library rather than fmt.Println/log.Printf.
package enginelog

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/joeycumines/logiface"
)

// Event is the concrete, poolable logiface.Event implementation backing
// Logger.
type Event struct {
	level  logiface.Level
	msg    string
	err    error
	fields []field
}

type field struct {
	key string
	val any
}

func (e *Event) Level() logiface.Level { return e.level }

func (e *Event) AddField(key string, val any) {
	e.fields = append(e.fields, field{key, val})
}

func (e *Event) AddMessage(msg string) bool {
	e.msg = msg
	return true
}

func (e *Event) AddError(err error) bool {
	e.err = err
	return true
}

func (e *Event) reset() {
	e.msg = ""
	e.err = nil
	e.fields = e.fields[:0]
}

// Logger is the concrete logger type components in this module accept.
type Logger = logiface.Logger[*Event]

var pool = sync.Pool{New: func() any { return new(Event) }}

// New constructs a ready-to-use Logger writing to w (defaults to os.Stderr
// when w is nil) at the given minimum level.
func New(w io.Writer, level logiface.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	var mu sync.Mutex
	return logiface.New[*Event](
		logiface.WithLevel[*Event](level),
		logiface.WithEventFactory[*Event](logiface.NewEventFactoryFunc(func(lvl logiface.Level) *Event {
			e := pool.Get().(*Event)
			e.reset()
			e.level = lvl
			return e
		})),
		logiface.WithEventReleaser[*Event](logiface.NewEventReleaserFunc(func(e *Event) {
			pool.Put(e)
		})),
		logiface.WithWriter[*Event](logiface.NewWriterFunc(func(e *Event) error {
			mu.Lock()
			defer mu.Unlock()
			if _, err := fmt.Fprintf(w, "level=%s msg=%q", e.level, e.msg); err != nil {
				return err
			}
			if e.err != nil {
				if _, err := fmt.Fprintf(w, " err=%q", e.err); err != nil {
					return err
				}
			}
			for _, f := range e.fields {
				if _, err := fmt.Fprintf(w, " %s=%v", f.key, f.val); err != nil {
					return err
				}
			}
			_, err := fmt.Fprintln(w)
			return err
		})),
	)
}

// Discard is a Logger that drops everything, for components constructed
// without an explicit logger.
var Discard = New(io.Discard, logiface.LevelEmergency)
