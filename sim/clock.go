package sim

import (
	"container/heap"

	"github.com/sirupsen/logrus"
)

// Clock owns virtual time and the queue of pending events.
// Time only moves when the clock pops an event; processes never set it.
//
// Thread-safety: NOT thread-safe. All calls happen inside the single
// execution context that drives the simulation.
type Clock struct {
	now      int64
	nextSeq  uint64
	queue    eventQueue
	live     int // scheduled, not yet executed, not cancelled
	executed int
}

// NewClock creates a clock at tick 0 with an empty queue.
func NewClock() *Clock {
	c := &Clock{queue: make(eventQueue, 0)}
	heap.Init(&c.queue)
	return c
}

// Now returns the current virtual time.
func (c *Clock) Now() int64 {
	return c.now
}

// Pending returns the number of live (not cancelled) events still queued.
func (c *Clock) Pending() int {
	return c.live
}

// Executed returns how many events have run so far.
func (c *Clock) Executed() int {
	return c.executed
}

// Schedule enqueues fn to run delay ticks from now.
// The returned handle may be passed to Cancel.
func (c *Clock) Schedule(delay int64, fn func()) (*Event, error) {
	if delay < 0 {
		return nil, &SchedulingError{Now: c.now, Delay: delay, What: "event"}
	}
	if fn == nil {
		panic("Schedule: fn must not be nil")
	}
	ev := &Event{
		time: c.now + delay,
		seq:  c.nextSeq,
		fn:   fn,
	}
	c.nextSeq++
	heap.Push(&c.queue, ev)
	c.live++
	return ev, nil
}

// Cancel makes ev inert. Cancelling an event that already ran, or was
// already cancelled, has no effect.
func (c *Clock) Cancel(ev *Event) {
	if ev == nil || ev.done || ev.cancelled {
		return
	}
	ev.cancelled = true
	c.live--
}

// NextTime returns the timestamp of the next live event, discarding inert
// entries at the head of the queue.
func (c *Clock) NextTime() (int64, bool) {
	c.dropInert()
	if len(c.queue) == 0 {
		return 0, false
	}
	return c.queue[0].time, true
}

// Advance pops the earliest live event, moves the clock to its timestamp and
// runs it. Returns false when no live event remains.
func (c *Clock) Advance() bool {
	c.dropInert()
	if len(c.queue) == 0 {
		return false
	}
	ev := heap.Pop(&c.queue).(*Event)
	if ev.time < c.now {
		panic("Advance: event queue yielded an event in the past")
	}
	c.now = ev.time
	ev.done = true
	c.live--
	c.executed++
	logrus.Tracef("[tick %07d] Executing event seq=%d", c.now, ev.seq)
	ev.fn()
	return true
}

// RunUntil advances while the next live event is due at or before horizon.
// Later events stay queued; the clock is left at horizon.
func (c *Clock) RunUntil(horizon int64) error {
	if horizon < c.now {
		return &SchedulingError{Now: c.now, Delay: horizon - c.now, What: "horizon"}
	}
	for {
		next, ok := c.NextTime()
		if !ok || next > horizon {
			break
		}
		c.Advance()
	}
	c.now = horizon
	return nil
}

func (c *Clock) dropInert() {
	for len(c.queue) > 0 && c.queue[0].cancelled {
		heap.Pop(&c.queue)
	}
}
