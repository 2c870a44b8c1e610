package ant

import (
	"fmt"
	"io"

	"github.com/joeycumines/logiface"

	"github.com/theMackabu/ant/internal/arena"
	"github.com/theMackabu/ant/internal/diag"
)

// runtimeOptions holds resolved configuration for Runtime creation.
type runtimeOptions struct {
	arena       arena.Config
	gcThreshold uint64
	filename    string
	stdout      io.Writer
	stderr      io.Writer
	diag        diag.Logger
}

// Option configures a Runtime instance.
type Option interface {
	applyRuntime(*runtimeOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyRuntimeFunc func(*runtimeOptions) error
}

func (o *optionImpl) applyRuntime(opts *runtimeOptions) error {
	return o.applyRuntimeFunc(opts)
}

// WithInitialMemory sets the arena's initial committed size in bytes.
// Defaults to 32 KiB.
func WithInitialMemory(n uint64) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if n == 0 {
			return fmt.Errorf("ant: initial memory must be positive")
		}
		opts.arena.Min = n
		return nil
	}}
}

// WithMaxMemory sets the arena's hard ceiling in bytes; allocation past it
// surfaces as a RangeError. Defaults to 256 GiB. Setting it equal to the
// initial size gives a fixed-size heap.
func WithMaxMemory(n uint64) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if n == 0 {
			return fmt.Errorf("ant: max memory must be positive")
		}
		opts.arena.Max = n
		return nil
	}}
}

// WithGCThreshold fixes the allocation count (bytes since the last
// collection) that triggers a compaction, replacing the size-scaled
// formula.
func WithGCThreshold(n uint64) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.gcThreshold = n
		return nil
	}}
}

// WithFilename sets the file name reported in stack traces for code passed
// to Eval.
func WithFilename(name string) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.filename = name
		return nil
	}}
}

// WithStdout redirects the console global's output stream.
func WithStdout(w io.Writer) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.stdout = w
		return nil
	}}
}

// WithStderr redirects the console global's error stream.
func WithStderr(w io.Writer) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.stderr = w
		return nil
	}}
}

// WithLogger routes structured diagnostic events (runtime lifecycle,
// GC-compaction summaries, unhandled rejections) through a logiface
// logger. Hot paths are unaffected.
func WithLogger[E logiface.Event](l *logiface.Logger[E]) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.diag = diag.Wrap(l)
		return nil
	}}
}

// resolveOptions applies Option instances over the defaults.
func resolveOptions(opts []Option) (*runtimeOptions, error) {
	cfg := &runtimeOptions{arena: arena.Config{}}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyRuntime(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.arena.Max != 0 && cfg.arena.Min > cfg.arena.Max {
		return nil, fmt.Errorf("ant: initial memory %d exceeds max memory %d", cfg.arena.Min, cfg.arena.Max)
	}
	return cfg, nil
}
