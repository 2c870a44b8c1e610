package loop

import "errors"

// IOEvents mirrors eventloop's readiness bitmask (SPEC_FULL.md §11): the
// core does not itself open fs/fetch/http-server file descriptors (those
// are external collaborators per spec §1), but it does own the single
// OS-level readiness multiplexer those collaborators register against, the
// same way eventloop.Loop owns one FastPoller instance per loop.
type IOEvents uint32

const (
	EventRead IOEvents = 1 << iota
	EventWrite
	EventError
	EventHangup
)

// IOCallback is invoked with the readiness bitmask that fired.
type IOCallback func(IOEvents)

var (
	ErrFDAlreadyRegistered = errors.New("loop: fd already registered")
	ErrFDNotRegistered     = errors.New("loop: fd not registered")
	ErrPollerClosed        = errors.New("loop: poller closed")
)

// FDPoller is the registration surface a platform poller exposes to
// external collaborators. Unlike eventloop's FastPoller, this has no
// internal locking: spec §5 guarantees exactly one goroutine ever drives
// the loop, so RegisterFD/UnregisterFD/ModifyFD/Poll all run on that same
// goroutine and a plain map suffices.
type FDPoller interface {
	Poller
	RegisterFD(fd int, events IOEvents, cb IOCallback) error
	UnregisterFD(fd int) error
	ModifyFD(fd int, events IOEvents) error
	Close() error
}
