// Package sched implements the single cooperative event loop (spec
// §4.5): a monotonic-deadline min-heap of timers plus a
// select-multiplexed wait over the scheduler's readiness channels, in
// the fixed priority RCP > timer > TUN > RPL > DHCP > mgmt spec §4.5
// names. Built on container/heap — justified in DESIGN.md as the one
// ambient concern with no third-party equivalent anywhere in the
// retrieved corpus.
package sched

import (
	"container/heap"
	"context"
	"time"

	"github.com/wisun-fan/wsrouterd/tstime/mono"
	"github.com/wisun-fan/wsrouterd/types/logger"
)

// Timer is a handle to an armed deadline. The zero Timer is not
// usable; obtain one from Loop.NewTimer.
type Timer struct {
	loop *Loop
	idx  int // heap position at arming time; not kept current (Cancel finds the item by gen)
	gen  uint64
}

// timerItem is one entry in the scheduler's deadline heap.
type timerItem struct {
	deadline mono.Time
	gen      uint64
	fn       func()
	index    int // heap.Interface bookkeeping
}

type timerHeap []*timerItem

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline < h[j].deadline }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeap) Push(x any) {
	it := x.(*timerItem)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Source is one of the priority-ordered readiness channels spec §4.5
// names (RCP, TUN, timer fd, DHCP, mgmt), plus the added RPL work
// channel SPEC_FULL §4.5 carries for periodic Trickle/DAO bookkeeping
// that doesn't fit the deadline heap.
type Source int

const (
	SourceRCP Source = iota
	SourceTimer
	SourceTUN
	SourceRPL
	SourceDHCP
	SourceMgmt
	numSources
)

// Loop is the single dispatch loop. It owns the deadline heap and a
// fixed-priority array of readiness channels; Run blocks until ctx is
// cancelled.
type Loop struct {
	logf logger.Logf

	heap timerHeap
	gen  uint64

	ready [numSources]<-chan func()
}

// NewLoop constructs an empty scheduler loop.
func NewLoop(logf logger.Logf) *Loop {
	if logf == nil {
		logf = logger.Discard
	}
	return &Loop{logf: logf}
}

// Bind attaches src's readiness channel: each value received is a
// thunk the loop invokes in dispatch-priority order (spec §4.5 step
// 3). Collaborators construct one such channel per source and feed it
// from their own event production.
func (l *Loop) Bind(src Source, ch <-chan func()) {
	l.ready[src] = ch
}

// NewTimer arms a new timer firing fn at deadline. Timer callbacks
// must not block (spec §4.5).
func (l *Loop) NewTimer(deadline mono.Time, fn func()) *Timer {
	l.gen++
	it := &timerItem{deadline: deadline, gen: l.gen, fn: fn}
	heap.Push(&l.heap, it)
	return &Timer{loop: l, idx: it.index, gen: it.gen}
}

// Rearm replaces t's deadline, idempotently (spec §4.5: "rearming an
// active timer replaces its deadline"). It cancels t if still pending
// and returns a new timer firing fn at deadline, so it succeeds whether
// or not t was already cancelled or fired; t's old callback is not
// kept, and callers that still need it pass it again as fn.
func (l *Loop) Rearm(t *Timer, deadline mono.Time, fn func()) *Timer {
	l.Cancel(t)
	return l.NewTimer(deadline, fn)
}

// Cancel removes t from the heap if still pending. Safe to call
// multiple times or on an already-fired timer (spec §4.5: idempotent).
func (l *Loop) Cancel(t *Timer) {
	if t == nil || t.loop != l {
		return
	}
	for i, it := range l.heap {
		if it.gen == t.gen {
			heap.Remove(&l.heap, i)
			return
		}
	}
}

// Run is the single dispatch loop (spec §4.5): compute sleep until
// the earliest deadline, block on a multiplexed wait for the next
// event, then drain ready sources in the fixed priority RCP > timer >
// TUN > RPL > DHCP > mgmt before blocking again. It returns when ctx
// is cancelled, beginning the teardown sequence of spec §5.
//
// A single bare select across all of l.ready[...] cannot enforce this
// ordering: when two sources are simultaneously ready, Go picks
// uniformly at random among their cases, so a lower-priority source
// can win over RCP. dispatchReady instead polls each source in
// priority order with a non-blocking select, so a higher-priority
// source already holding work is always serviced first; the blocking
// select below only ever runs when dispatchReady found nothing
// pending, at which point any one waking case is by definition the
// only thing ready.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if l.dispatchReady() {
			continue
		}

		var timerC <-chan time.Time
		if l.heap.Len() > 0 {
			d := l.heap[0].deadline.Sub(mono.Now())
			if d < 0 {
				d = 0
			}
			timerC = time.After(d)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timerC:
			l.fireExpired()
		case fn := <-l.ready[SourceRCP]:
			fn()
		case fn := <-l.ready[SourceTimer]:
			fn()
		case fn := <-l.ready[SourceTUN]:
			fn()
		case fn := <-l.ready[SourceRPL]:
			fn()
		case fn := <-l.ready[SourceDHCP]:
			fn()
		case fn := <-l.ready[SourceMgmt]:
			fn()
		}
	}
}

// dispatchReady services at most one unit of work from the
// highest-priority source that currently has any, in the fixed order
// spec §4.5 names, and reports whether it did anything. The timer
// heap sits at the "timer" priority tier: if the earliest deadline
// has already passed, fireExpired runs before any lower-priority
// source is considered.
func (l *Loop) dispatchReady() bool {
	select {
	case fn := <-l.ready[SourceRCP]:
		fn()
		return true
	default:
	}

	if l.heap.Len() > 0 && !l.heap[0].deadline.After(mono.Now()) {
		l.fireExpired()
		return true
	}
	select {
	case fn := <-l.ready[SourceTimer]:
		fn()
		return true
	default:
	}

	select {
	case fn := <-l.ready[SourceTUN]:
		fn()
		return true
	default:
	}

	select {
	case fn := <-l.ready[SourceRPL]:
		fn()
		return true
	default:
	}

	select {
	case fn := <-l.ready[SourceDHCP]:
		fn()
		return true
	default:
	}

	select {
	case fn := <-l.ready[SourceMgmt]:
		fn()
		return true
	default:
	}

	return false
}

// fireExpired pops and invokes every timer whose deadline has passed,
// in deadline order.
func (l *Loop) fireExpired() {
	now := mono.Now()
	for l.heap.Len() > 0 && !l.heap[0].deadline.After(now) {
		it := heap.Pop(&l.heap).(*timerItem)
		it.fn()
	}
}
