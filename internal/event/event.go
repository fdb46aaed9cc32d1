// Package event defines the observer seam the export pipeline reports through.
//
// Pipeline packages never print. They emit events to an Observer, and the
// command wires an Observer backed by the process logger.
package event

import "fmt"

// Level is the severity of an event.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Observer receives pipeline events. kv holds alternating key/value pairs.
type Observer interface {
	OnEvent(level Level, msg string, kv ...any)
}

// Nop discards every event.
type Nop struct{}

func (Nop) OnEvent(Level, string, ...any) {}

// OrNop returns o, or Nop when o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return Nop{}
	}
	return o
}

// With returns an Observer that appends kv to every event.
func With(o Observer, kv ...any) Observer {
	if len(kv) == 0 {
		return OrNop(o)
	}
	return withObserver{next: OrNop(o), kv: kv}
}

type withObserver struct {
	next Observer
	kv   []any
}

func (w withObserver) OnEvent(level Level, msg string, kv ...any) {
	all := make([]any, 0, len(w.kv)+len(kv))
	all = append(all, w.kv...)
	all = append(all, kv...)
	w.next.OnEvent(level, msg, all...)
}

// Recorder keeps events in memory. Used by tests.
type Recorder struct {
	Events []Recorded
}

// Recorded is one captured event.
type Recorded struct {
	Level Level
	Msg   string
	KV    []any
}

func (r *Recorder) OnEvent(level Level, msg string, kv ...any) {
	r.Events = append(r.Events, Recorded{Level: level, Msg: msg, KV: append([]any(nil), kv...)})
}

// Count returns the number of events at level.
func (r *Recorder) Count(level Level) int {
	n := 0
	for _, e := range r.Events {
		if e.Level == level {
			n++
		}
	}
	return n
}
