// Implements the WaitQueue, which holds all requests waiting for a pool unit.
// Requests are enqueued on Acquire when no unit is free

package sim

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"
)

// WaitQueue is the single canonical ordering of pending requests:
// (priority ascending, arrival time ascending, sequence ascending).
// Sequence makes the order strict even when priority and arrival tie.
type WaitQueue struct {
	queue requestHeap
}

// requestLess reports whether a is granted before b.
func requestLess(a, b *Request) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if a.ArrivalTime != b.ArrivalTime {
		return a.ArrivalTime < b.ArrivalTime
	}
	return a.Seq < b.Seq
}

type requestHeap []*Request

func (h requestHeap) Len() int           { return len(h) }
func (h requestHeap) Less(i, j int) bool { return requestLess(h[i], h[j]) }
func (h requestHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *requestHeap) Push(x any) {
	r := x.(*Request)
	r.index = len(*h)
	*h = append(*h, r)
}

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[0 : n-1]
	return item
}

// Enqueue inserts a pending request.
func (wq *WaitQueue) Enqueue(r *Request) {
	if r == nil {
		panic("Enqueue: r must not be nil")
	}
	heap.Push(&wq.queue, r)
}

// Len returns the number of waiting requests.
func (wq *WaitQueue) Len() int {
	return len(wq.queue)
}

// Peek returns the next request to be granted without removing it.
// Returns nil if the queue is empty.
func (wq *WaitQueue) Peek() *Request {
	if len(wq.queue) == 0 {
		return nil
	}
	return wq.queue[0]
}

// Dequeue removes and returns the next request to be granted.
func (wq *WaitQueue) Dequeue() *Request {
	if len(wq.queue) == 0 {
		return nil
	}
	return heap.Pop(&wq.queue).(*Request)
}

// Remove withdraws r from the queue. Returns false if r is not queued.
func (wq *WaitQueue) Remove(r *Request) bool {
	if r == nil || r.index < 0 || r.index >= len(wq.queue) || wq.queue[r.index] != r {
		return false
	}
	heap.Remove(&wq.queue, r.index)
	return true
}

// Ordered returns a copy of the queue contents in grant order.
func (wq *WaitQueue) Ordered() []*Request {
	out := make([]*Request, len(wq.queue))
	copy(out, wq.queue)
	sort.Slice(out, func(i, j int) bool { return requestLess(out[i], out[j]) })
	return out
}

func (wq *WaitQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, val := range wq.Ordered() {
		sb.WriteString(fmt.Sprint(val))
		if i < len(wq.queue)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}
