package sim

// Event is a scheduled continuation. Once scheduled its time and sequence never
// change; only the cancellation flag can be flipped, via Clock.Cancel.
type Event struct {
	time      int64
	seq       uint64
	fn        func()
	cancelled bool
	done      bool
	index     int // heap position, -1 once popped
}

// Timestamp returns the tick at which the event fires.
func (e *Event) Timestamp() int64 {
	return e.time
}

// Seq returns the scheduling sequence number used to break time ties.
func (e *Event) Seq() uint64 {
	return e.seq
}

// Cancelled reports whether the event was made inert before it fired.
func (e *Event) Cancelled() bool {
	return e.cancelled
}

// Done reports whether the event has already executed.
func (e *Event) Done() bool {
	return e.done
}

// eventQueue implements heap.Interface ordered by (time, seq).
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-PriorityQueue
type eventQueue []*Event

func (eq eventQueue) Len() int { return len(eq) }

func (eq eventQueue) Less(i, j int) bool {
	if eq[i].time != eq[j].time {
		return eq[i].time < eq[j].time
	}
	// tie-breaker: earlier scheduled first
	return eq[i].seq < eq[j].seq
}

func (eq eventQueue) Swap(i, j int) {
	eq[i], eq[j] = eq[j], eq[i]
	eq[i].index = i
	eq[j].index = j
}

func (eq *eventQueue) Push(x any) {
	ev := x.(*Event)
	ev.index = len(*eq)
	*eq = append(*eq, ev)
}

func (eq *eventQueue) Pop() any {
	old := *eq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*eq = old[0 : n-1]
	return item
}
