//go:build darwin

package loop

import (
	"time"

	"golang.org/x/sys/unix"
)

// KqueuePoller implements FDPoller with Darwin/BSD kqueue, grounded on
// eventloop/poller_darwin.go's FastPoller (SPEC_FULL.md §11), simplified
// for this package's single-goroutine model (see poller_linux.go).
type KqueuePoller struct {
	kq       int
	fds      map[int]fdEntry
	eventBuf []unix.Kevent_t
	closed   bool
}

func NewKqueuePoller() (*KqueuePoller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	return &KqueuePoller{
		kq:       kq,
		fds:      make(map[int]fdEntry),
		eventBuf: make([]unix.Kevent_t, 256),
	}, nil
}

func (p *KqueuePoller) register(fd int, events IOEvents, flags uint16) error {
	var changes []unix.Kevent_t
	if events&EventRead != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&EventWrite != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *KqueuePoller) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	if p.closed {
		return ErrPollerClosed
	}
	if _, ok := p.fds[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	if err := p.register(fd, events, unix.EV_ADD|unix.EV_ENABLE); err != nil {
		return err
	}
	p.fds[fd] = fdEntry{events: events, cb: cb}
	return nil
}

func (p *KqueuePoller) UnregisterFD(fd int) error {
	entry, ok := p.fds[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	delete(p.fds, fd)
	return p.register(fd, entry.events, unix.EV_DELETE)
}

func (p *KqueuePoller) ModifyFD(fd int, events IOEvents) error {
	entry, ok := p.fds[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	_ = p.register(fd, entry.events, unix.EV_DELETE)
	if err := p.register(fd, events, unix.EV_ADD|unix.EV_ENABLE); err != nil {
		return err
	}
	entry.events = events
	p.fds[fd] = entry
	return nil
}

func (p *KqueuePoller) Close() error {
	p.closed = true
	return unix.Close(p.kq)
}

func (p *KqueuePoller) Pending() bool {
	return !p.closed && len(p.fds) > 0
}

func (p *KqueuePoller) Poll(timeout time.Duration) bool {
	if p.closed || len(p.fds) == 0 {
		return false
	}
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	n, err := unix.Kevent(p.kq, nil, p.eventBuf, &ts)
	if err != nil {
		return false
	}
	fired := false
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		entry, ok := p.fds[fd]
		if !ok || entry.cb == nil {
			continue
		}
		var events IOEvents
		switch p.eventBuf[i].Filter {
		case unix.EVFILT_READ:
			events = EventRead
		case unix.EVFILT_WRITE:
			events = EventWrite
		}
		if p.eventBuf[i].Flags&unix.EV_EOF != 0 {
			events |= EventHangup
		}
		if p.eventBuf[i].Flags&unix.EV_ERROR != 0 {
			events |= EventError
		}
		entry.cb(events)
		fired = true
	}
	return fired
}
