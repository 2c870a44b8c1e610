// Package diag defines the non-hot-path diagnostic logging seam shared by
// internal/loop and internal/gc (SPEC_FULL.md §10). Hot paths (the GC
// compaction inner loop, the event-loop tick, coroutine resume) keep
// logging with the standard library log package exactly the way
// eventloop.Loop's safeExecute does; this interface is for the
// infrequent, structured events an embedder may want routed through
// github.com/joeycumines/logiface instead: runtime start/stop, a
// GC-compaction summary, an unhandled promise rejection.
//
// The interface is deliberately tiny and non-generic so internal/loop and
// internal/gc need not themselves become generic over logiface's Event
// type parameter; Wrap adapts any *logiface.Logger[E] to it.
package diag

// Builder accumulates fields for one log entry before Msg flushes it.
type Builder interface {
	Str(key, val string) Builder
	Int(key string, val int) Builder
	Uint64(key string, val uint64) Builder
	Err(err error) Builder
	Log(msg string)
}

// Logger is the subset of *logiface.Logger[E] that internal/loop and
// internal/gc consume.
type Logger interface {
	Info() Builder
	Warning() Builder
	Err() Builder
}
