package sim

import (
	"container/heap"
	"fmt"

	"github.com/sirupsen/logrus"
)

// unitHeap keeps free units ordered by identity so the lowest identity is
// always handed out first.
type unitHeap []*Unit

func (h unitHeap) Len() int           { return len(h) }
func (h unitHeap) Less(i, j int) bool { return h[i].ID < h[j].ID }
func (h unitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *unitHeap) Push(x any) {
	*h = append(*h, x.(*Unit))
}

func (h *unitHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return item
}

// Pool is a priority store of interchangeable units.
//
// Pending requests are served in (priority, arrival time, sequence) order.
// Invariant: Available()+InUse() == Size() <= Capacity(), and a unit is never
// both free and granted.
type Pool struct {
	name     string
	capacity int
	sim      *Simulator

	units    map[int]*Unit
	free     unitHeap
	waitQ    *WaitQueue
	granted  int
	nextSeq  uint64
	draining bool
}

// NewPool creates a pool of the given capacity. With no units supplied the
// pool is populated with identities 1..capacity.
func NewPool(s *Simulator, name string, capacity int, units ...*Unit) (*Pool, error) {
	p, err := NewDynamicPool(s, name, capacity)
	if err != nil {
		return nil, err
	}
	if len(units) > capacity {
		return nil, &CapacityError{Pool: name, Capacity: capacity,
			Reason: fmt.Sprintf("%d initial units exceed capacity", len(units))}
	}
	if len(units) == 0 {
		for i := 0; i < capacity; i++ {
			units = append(units, &Unit{ID: i + 1})
		}
	}
	for _, u := range units {
		if err := p.Put(u); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// NewDynamicPool creates an empty pool that grows through Put, up to capacity.
func NewDynamicPool(s *Simulator, name string, capacity int) (*Pool, error) {
	if s == nil {
		panic("NewDynamicPool: simulator must not be nil")
	}
	if capacity <= 0 {
		return nil, &CapacityError{Pool: name, Capacity: capacity, Reason: "capacity must be positive"}
	}
	return &Pool{
		name:     name,
		capacity: capacity,
		sim:      s,
		units:    make(map[int]*Unit, capacity),
		free:     make(unitHeap, 0, capacity),
		waitQ:    &WaitQueue{},
	}, nil
}

// Name returns the pool name used in transitions and logs.
func (p *Pool) Name() string { return p.name }

// Capacity returns the declared maximum number of units.
func (p *Pool) Capacity() int { return p.capacity }

// Size returns the number of units the pool currently owns.
func (p *Pool) Size() int { return len(p.units) }

// Available returns the number of free units.
func (p *Pool) Available() int { return len(p.free) }

// InUse returns the number of units currently granted.
func (p *Pool) InUse() int { return p.granted }

// QueueLen returns the number of pending requests.
func (p *Pool) QueueLen() int { return p.waitQ.Len() }

// Waiting returns the pending requests in the order they would be granted.
func (p *Pool) Waiting() []*Request { return p.waitQ.Ordered() }

// Put adds a new unit to the pool and serves waiting requests with it.
func (p *Pool) Put(u *Unit) error {
	if u == nil {
		return &CapacityError{Pool: p.name, Capacity: p.capacity, Reason: "nil unit"}
	}
	if u.ID <= 0 {
		return &CapacityError{Pool: p.name, Capacity: p.capacity,
			Reason: fmt.Sprintf("unit identity must be positive, got %d", u.ID)}
	}
	if _, dup := p.units[u.ID]; dup {
		return &CapacityError{Pool: p.name, Capacity: p.capacity,
			Reason: fmt.Sprintf("duplicate unit identity %d", u.ID)}
	}
	if len(p.units) >= p.capacity {
		return &CapacityError{Pool: p.name, Capacity: p.capacity,
			Reason: fmt.Sprintf("pool is full, cannot add unit %d", u.ID)}
	}
	u.inUse = false
	p.units[u.ID] = u
	heap.Push(&p.free, u)
	p.drain()
	return nil
}

// Acquire submits a request for one unit. If a unit is free it is granted
// straight away; otherwise the request waits. Either way the grant reaches
// notify through a zero-delay event, never synchronously.
func (p *Pool) Acquire(owner ProcessID, priority int, notify func(*Guard)) *Request {
	req := &Request{
		Priority:    priority,
		ArrivalTime: p.sim.Clock.Now(),
		Seq:         p.nextSeq,
		Owner:       owner,
		status:      StatusPending,
		pool:        p,
		notify:      notify,
		index:       -1,
	}
	p.nextSeq++
	req.guard = &Guard{request: req}
	p.emit(req, 0, TransitionSubmitted)

	if len(p.free) > 0 && p.waitQ.Len() == 0 {
		p.grant(req, heap.Pop(&p.free).(*Unit))
		return req
	}
	p.waitQ.Enqueue(req)
	logrus.Debugf("[tick %07d] pool %s: process %d queued (priority %d, %d waiting)",
		req.ArrivalTime, p.name, owner, priority, p.waitQ.Len())
	return req
}

// Cancel withdraws a pending request. Cancelling a granted or already
// cancelled request is a contract violation.
func (p *Pool) Cancel(req *Request) error {
	if req == nil {
		return &InvalidStateError{Op: "cancel", Reason: "nil request"}
	}
	if req.pool == nil {
		return &InvalidStateError{Op: "cancel", Reason: "request was not submitted to any pool"}
	}
	if req.pool != p {
		return &InvalidStateError{Op: "cancel", Reason: fmt.Sprintf("request belongs to pool %q, not %q", req.pool.Name(), p.name)}
	}
	switch req.status {
	case StatusGranted:
		return &InvalidStateError{Op: "cancel", Reason: "request already granted"}
	case StatusCancelled:
		return &InvalidStateError{Op: "cancel", Reason: "request already cancelled"}
	}
	if !p.waitQ.Remove(req) {
		panic(fmt.Sprintf("Cancel: pending request missing from wait queue of pool %q", p.name))
	}
	req.status = StatusCancelled
	p.emit(req, 0, TransitionCancelled)
	return nil
}

// Release returns the guard's unit and grants freed units to waiting
// requests in order.
func (p *Pool) Release(g *Guard) error {
	if g == nil {
		return &InvalidStateError{Op: "release", Reason: "nil guard"}
	}
	req := g.request
	if req == nil || req.pool == nil {
		return &InvalidStateError{Op: "release", Reason: "guard was not issued by any pool"}
	}
	if req.pool != p {
		return &InvalidStateError{Op: "release", Reason: fmt.Sprintf("guard belongs to pool %q, not %q", req.pool.Name(), p.name)}
	}
	if g.unit == nil {
		if req.status == StatusCancelled {
			return nil
		}
		return &InvalidStateError{Op: "release", Reason: "request has not been granted"}
	}
	if g.released {
		return &InvalidStateError{Op: "release", Reason: fmt.Sprintf("unit %d already released", g.unit.ID)}
	}
	if p.units[g.unit.ID] != g.unit || !g.unit.inUse {
		return &InvalidStateError{Op: "release", Reason: fmt.Sprintf("unit %d is not held by this guard", g.unit.ID)}
	}

	g.released = true
	g.unit.inUse = false
	p.granted--
	heap.Push(&p.free, g.unit)
	p.emit(req, g.unit.ID, TransitionReleased)
	p.drain()
	return nil
}

// Renege abandons a request: a pending one is cancelled, a granted one whose
// grant was discarded (e.g. it lost a race) has its unit released.
func (p *Pool) Renege(req *Request) error {
	if req != nil && req.status == StatusGranted {
		return p.Release(req.guard)
	}
	return p.Cancel(req)
}

// drain hands free units to waiting requests until one side runs out.
// Iterative so long release cascades never grow the call stack.
func (p *Pool) drain() {
	if p.draining {
		return
	}
	p.draining = true
	defer func() { p.draining = false }()

	for len(p.free) > 0 && p.waitQ.Len() > 0 {
		next := p.waitQ.Dequeue()
		p.grant(next, heap.Pop(&p.free).(*Unit))
	}
}

func (p *Pool) grant(req *Request, u *Unit) {
	if u.inUse {
		panic(fmt.Sprintf("grant: unit %d of pool %q is already in use", u.ID, p.name))
	}
	u.inUse = true
	p.granted++
	req.status = StatusGranted
	req.guard.unit = u
	p.emit(req, u.ID, TransitionGranted)

	if _, err := p.sim.Clock.Schedule(0, func() {
		if req.notify != nil {
			req.notify(req.guard)
		}
	}); err != nil {
		panic(err)
	}
}

func (p *Pool) emit(req *Request, unit int, kind TransitionKind) {
	now := p.sim.Clock.Now()
	logrus.Debugf("[tick %07d] pool %s: process %d %s unit=%d", now, p.name, req.Owner, kind, unit)
	p.sim.sink.Record(Transition{
		Process:  req.Owner,
		Pool:     p.name,
		Unit:     unit,
		Priority: req.Priority,
		Time:     now,
		Kind:     kind,
	})
}
