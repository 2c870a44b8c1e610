// Package loop implements the single-threaded event loop of spec.md §4.K:
// it drains microtasks to quiescence, resumes ready coroutines (bounded by
// coro.CoroPerTickLimit), fires expired timers, and polls I/O pollers
// contributed by external collaborators, repeating while any work remains.
//
// Unlike the teacher package (eventloop.Loop), this loop is not a
// concurrent task queue fed by other goroutines: spec §5 mandates a single
// evaluator, so there is exactly one Go goroutine driving Tick/Run at a
// time and no ingress-queue/mutex/atomics machinery is needed for that
// part. What *is* kept from the teacher, because spec §4.K asks for
// exactly this shape, is its timer min-heap (container/heap over a
// time.Time-ordered slice) and its signal-driven stop path.
package loop

import (
	"container/heap"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/theMackabu/ant/internal/coro"
	"github.com/theMackabu/ant/internal/diag"
	"github.com/theMackabu/ant/internal/value"
)

// Errors mirror eventloop's own sentinel-per-condition convention
// (SPEC_FULL.md §10 "Error handling").
var (
	ErrLoopAlreadyRunning = errors.New("loop: already running")
	ErrLoopClosed         = errors.New("loop: closed")
)

// Poller is the pluggable I/O-readiness source contributed by external
// collaborators (fetch, fs, an http server) per spec §1/§4.K. This package
// ships NoopPoller plus the FDPoller implementations EpollPoller (Linux),
// KqueuePoller (Darwin) and PortablePoller (elsewhere; its Poll never
// reports readiness); New accepts any of them or an embedder's own.
type Poller interface {
	// Poll blocks up to timeout for I/O readiness and invokes ready
	// callbacks; returns true if any callback ran.
	Poll(timeout time.Duration) bool
	// Pending reports whether any I/O registration is outstanding, which
	// keeps the loop alive even with no timers/microtasks/coroutines
	// pending (spec §4.K step 5).
	Pending() bool
}

// NoopPoller never has pending I/O; used when the embedder has not wired a
// real poller (e.g. a pure-computation script).
type NoopPoller struct{}

func (NoopPoller) Poll(time.Duration) bool { return false }
func (NoopPoller) Pending() bool           { return false }

// timerEntry is one setTimeout/setInterval registration.
type timerEntry struct {
	id       uint64
	when     time.Time
	interval time.Duration // 0 for a one-shot setTimeout
	fn       func()
	canceled bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].id < h[j].id
	}
	return h[i].when.Before(h[j].when)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Loop drives one runtime's pending work to fixed-point each Tick, per
// spec §4.K.
type Loop struct {
	microtasks []func()
	timers     timerHeap
	nextTimer  uint64

	ready *coro.Ready

	poller Poller

	running   atomic.Bool
	stopped   bool
	sigCh     chan os.Signal
	Logger    *log.Logger
	onPanic   func(r any)

	// Diag, if set, receives structured lifecycle events (loop start/stop)
	// via logiface (SPEC_FULL.md §10); unlike Logger it is never called
	// from DrainMicrotasks/DrainReadyCoroutines/DrainExpiredTimers.
	Diag diag.Logger
}

// New constructs a Loop with the given poller (use NoopPoller if the
// embedder has no external I/O to drive).
func New(poller Poller) *Loop {
	if poller == nil {
		poller = NoopPoller{}
	}
	l := &Loop{poller: poller, ready: &coro.Ready{}}
	heap.Init(&l.timers)
	return l
}

// Ready exposes the coroutine ready queue so internal/coro producers
// (async function calls, generator .next()) can enqueue onto the same
// queue the loop drains.
func (l *Loop) Ready() *coro.Ready { return l.ready }

func (l *Loop) logf(format string, args ...any) {
	if l.Logger != nil {
		l.Logger.Printf(format, args...)
		return
	}
	log.Printf("ant: loop: "+format, args...)
}

// QueueMicrotask appends fn to the microtask queue (spec §4.K
// "queueMicrotask(fn) appends to the microtask queue"); it implements
// promise.Microtasker.
func (l *Loop) QueueMicrotask(fn func()) {
	l.microtasks = append(l.microtasks, fn)
}

// DrainMicrotasks runs queued microtasks to quiescence (spec §4.K step 1,
// §5 "Microtasks run to quiescence before timers or I/O callbacks"). A
// microtask queueing another microtask is handled correctly because the
// loop re-reads l.microtasks' length on every iteration.
func (l *Loop) DrainMicrotasks() {
	for len(l.microtasks) > 0 {
		task := l.microtasks[0]
		l.microtasks = l.microtasks[1:]
		l.safeExec(task)
	}
}

// safeExec runs fn, recovering a panic into a logged error rather than
// crashing the whole runtime -- mirroring eventloop.Loop's safeExecute
// (SPEC_FULL.md §10).
func (l *Loop) safeExec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if l.onPanic != nil {
				l.onPanic(r)
				return
			}
			l.logf("ERROR: recovered panic: %v", r)
		}
	}()
	fn()
}

// OnPanic installs a handler for panics recovered from microtasks, timers,
// and coroutine resumes, overriding the default log-and-continue.
func (l *Loop) OnPanic(fn func(r any)) { l.onPanic = fn }

// SetTimeout registers a one-shot timer firing after delay (spec §4.K),
// returning an id usable with ClearTimeout.
func (l *Loop) SetTimeout(delay time.Duration, fn func()) uint64 {
	return l.schedule(delay, 0, fn)
}

// SetInterval registers a timer that reschedules itself every interval
// until cleared. An interval below 1ms is raised to 1ms.
func (l *Loop) SetInterval(interval time.Duration, fn func()) uint64 {
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	return l.schedule(interval, interval, fn)
}

func (l *Loop) schedule(delay, interval time.Duration, fn func()) uint64 {
	l.nextTimer++
	id := l.nextTimer
	heap.Push(&l.timers, &timerEntry{
		id:       id,
		when:     time.Now().Add(delay),
		interval: interval,
		fn:       fn,
	})
	return id
}

// ClearTimeout marks a timer inactive; it is harvested (removed from the
// heap) lazily at the next sweep past it (spec §5 "Cancellation").
func (l *Loop) ClearTimeout(id uint64) {
	for _, t := range l.timers {
		if t.id == id {
			t.canceled = true
			return
		}
	}
}

// DrainExpiredTimers fires every timer due at or before now, rescheduling
// intervals (spec §4.K step 3, §5 "Timers with equal deadlines fire in
// insertion order" -- container/heap is not stable, so Less breaks equal
// deadlines by timer id, which grows in scheduling order).
func (l *Loop) DrainExpiredTimers(now time.Time) {
	for l.timers.Len() > 0 {
		next := l.timers[0]
		if next.canceled {
			heap.Pop(&l.timers)
			continue
		}
		if next.when.After(now) {
			return
		}
		heap.Pop(&l.timers)
		l.safeExec(next.fn)
		if next.interval > 0 && !next.canceled {
			next.when = now.Add(next.interval)
			heap.Push(&l.timers, next)
		}
	}
}

// nextTimerDeadline returns the time the poller should wait up to before
// the next timer fires, or false if no timer is pending.
func (l *Loop) nextTimerDeadline() (time.Time, bool) {
	for l.timers.Len() > 0 {
		if l.timers[0].canceled {
			heap.Pop(&l.timers)
			continue
		}
		return l.timers[0].when, true
	}
	return time.Time{}, false
}

// ResumeMsg is the payload a ready coroutine is resumed with; val/isError
// mirror coro.Coroutine.Resume's parameters.
type ResumeMsg struct {
	Value   value.Value
	IsError bool
}

// DrainReadyCoroutines resumes every currently-ready coroutine once (spec
// §4.K step 2, §5 "Coroutines are resumed in FIFO order within a tick"),
// stopping at CoroPerTickLimit resumes to guard against an infinite spawn
// loop (spec §4.J). resume is supplied by internal/eval, since only it
// knows how to perform the saved-state swap around a Resume call.
func (l *Loop) DrainReadyCoroutines(resume func(c *coro.Coroutine)) error {
	n := 0
	for {
		c, ok := l.ready.Dequeue()
		if !ok {
			return nil
		}
		n++
		if n > coro.CoroPerTickLimit {
			return coro.ErrBudgetExceeded
		}
		l.safeExec(func() { resume(c) })
		if !c.IsDone && c.IsReady {
			l.ready.Enqueue(c)
		}
	}
}

// Pending reports whether any work remains (spec §4.K step 5).
func (l *Loop) Pending() bool {
	if len(l.microtasks) > 0 || l.ready.Len() > 0 {
		return true
	}
	if _, ok := l.nextTimerDeadline(); ok {
		return true
	}
	return l.poller.Pending()
}

// Tick performs one full iteration of spec §4.K's five steps.
func (l *Loop) Tick(resume func(c *coro.Coroutine)) error {
	l.DrainMicrotasks()
	if err := l.DrainReadyCoroutines(resume); err != nil {
		return err
	}
	l.DrainExpiredTimers(time.Now())
	l.DrainMicrotasks()

	timeout := 10 * time.Millisecond
	if when, ok := l.nextTimerDeadline(); ok {
		if d := time.Until(when); d < timeout {
			if d < 0 {
				d = 0
			}
			timeout = d
		}
	}
	if l.poller.Poll(timeout) {
		l.DrainMicrotasks()
	} else if _, ok := l.nextTimerDeadline(); ok && timeout > 0 && len(l.microtasks) == 0 && l.ready.Len() == 0 {
		// A poller with nothing registered returns immediately; without
		// this the loop would spin hot until the next timer deadline.
		time.Sleep(timeout)
	}
	return nil
}

// Run drives Tick to fixed-point (spec §4.K's "Repeat while any... is
// pending"), installing SIGINT/SIGTERM handlers that stop the loop (spec
// §4.K "Signals install a handler that stops the loop").
func (l *Loop) Run(resume func(c *coro.Coroutine)) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopAlreadyRunning
	}
	defer l.running.Store(false)

	l.sigCh = make(chan os.Signal, 1)
	signal.Notify(l.sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(l.sigCh)

	if l.Diag != nil {
		l.Diag.Info().Log("loop: run started")
		defer l.Diag.Info().Log("loop: run stopped")
	}

	for {
		select {
		case <-l.sigCh:
			l.stopped = true
		default:
		}
		if l.stopped {
			return nil
		}
		if err := l.Tick(resume); err != nil {
			return err
		}
		if !l.Pending() {
			return nil
		}
	}
}

// Stop requests the loop exit after its current tick.
func (l *Loop) Stop() { l.stopped = true }
