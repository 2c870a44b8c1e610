//go:build linux

package loop

import (
	"time"

	"golang.org/x/sys/unix"
)

// EpollPoller implements FDPoller with Linux epoll, grounded on
// eventloop/poller_linux.go's FastPoller (SPEC_FULL.md §11) but simplified
// for this package's single-goroutine model: no RWMutex, no version
// counter, no betteralign cache-line padding, since only the loop
// goroutine ever touches it.
type EpollPoller struct {
	epfd     int
	fds      map[int]fdEntry
	eventBuf []unix.EpollEvent
	closed   bool
}

type fdEntry struct {
	events IOEvents
	cb     IOCallback
}

// NewEpollPoller creates and initializes an epoll instance.
func NewEpollPoller() (*EpollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &EpollPoller{
		epfd:     epfd,
		fds:      make(map[int]fdEntry),
		eventBuf: make([]unix.EpollEvent, 256),
	}, nil
}

func (p *EpollPoller) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	if p.closed {
		return ErrPollerClosed
	}
	if _, ok := p.fds[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	ev := &unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return err
	}
	p.fds[fd] = fdEntry{events: events, cb: cb}
	return nil
}

func (p *EpollPoller) UnregisterFD(fd int) error {
	if _, ok := p.fds[fd]; !ok {
		return ErrFDNotRegistered
	}
	delete(p.fds, fd)
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *EpollPoller) ModifyFD(fd int, events IOEvents) error {
	entry, ok := p.fds[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	entry.events = events
	p.fds[fd] = entry
	ev := &unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *EpollPoller) Close() error {
	p.closed = true
	return unix.Close(p.epfd)
}

func (p *EpollPoller) Pending() bool {
	return !p.closed && len(p.fds) > 0
}

// Poll blocks up to timeout for readiness and dispatches callbacks,
// matching eventloop.FastPoller.PollIO's EINTR-retry-as-no-op behavior.
func (p *EpollPoller) Poll(timeout time.Duration) bool {
	if p.closed || len(p.fds) == 0 {
		return false
	}
	n, err := unix.EpollWait(p.epfd, p.eventBuf, int(timeout.Milliseconds()))
	if err != nil {
		return false
	}
	fired := false
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		entry, ok := p.fds[fd]
		if !ok || entry.cb == nil {
			continue
		}
		entry.cb(epollToEvents(p.eventBuf[i].Events))
		fired = true
	}
	return fired
}

func eventsToEpoll(events IOEvents) uint32 {
	var e uint32
	if events&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToEvents(e uint32) IOEvents {
	var events IOEvents
	if e&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if e&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}
