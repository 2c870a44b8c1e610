package diag

import "github.com/joeycumines/logiface"

// builderAdapter satisfies Builder by forwarding to a live
// *logiface.Builder[E], generic over the embedder's chosen Event
// implementation (stumpy/zerolog/slog/logrus are all siblings in the
// teacher pack; none is imported here).
type builderAdapter[E logiface.Event] struct {
	b *logiface.Builder[E]
}

func (a builderAdapter[E]) Str(key, val string) Builder {
	a.b.Str(key, val)
	return a
}

func (a builderAdapter[E]) Int(key string, val int) Builder {
	a.b.Int(key, val)
	return a
}

func (a builderAdapter[E]) Uint64(key string, val uint64) Builder {
	a.b.Uint64(key, val)
	return a
}

func (a builderAdapter[E]) Err(err error) Builder {
	a.b.Err(err)
	return a
}

func (a builderAdapter[E]) Log(msg string) { a.b.Log(msg) }

type loggerAdapter[E logiface.Event] struct {
	l *logiface.Logger[E]
}

func (a loggerAdapter[E]) Info() Builder    { return builderAdapter[E]{a.l.Info()} }
func (a loggerAdapter[E]) Warning() Builder { return builderAdapter[E]{a.l.Warning()} }
func (a loggerAdapter[E]) Err() Builder     { return builderAdapter[E]{a.l.Err()} }

// Wrap adapts any *logiface.Logger[E] (e.g. one built over
// logiface-zerolog, logiface-slog, or logiface-stumpy's Event
// implementation) to the Logger interface internal/loop and internal/gc
// consume, so neither package has to import logiface's generic type
// parameter itself.
func Wrap[E logiface.Event](l *logiface.Logger[E]) Logger {
	if l == nil {
		return nil
	}
	return loggerAdapter[E]{l}
}
