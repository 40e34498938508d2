package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// ProcessID identifies a process within one Simulator. IDs start at 1.
type ProcessID int64

// ProcessState represents the lifecycle state of a process.
type ProcessState string

const (
	ProcessRunnable  ProcessState = "runnable"
	ProcessSuspended ProcessState = "suspended"
	ProcessCompleted ProcessState = "completed"
)

// Suspension describes where a process yields. It is one of Timeout, Acquire
// or Race.
type Suspension interface {
	suspension()
}

// Timeout resumes the process Duration ticks from now.
type Timeout struct {
	Duration int64
}

// Acquire resumes the process once Pool grants it a unit.
type Acquire struct {
	Pool     *Pool
	Priority int
}

func (Timeout) suspension() {}
func (Acquire) suspension() {}
func (Race) suspension()    {}

// Step advances a process by one step. It receives the outcome of the previous
// suspension and returns the next suspension together with the step to run
// when that suspension resolves. A nil Suspension completes the process.
//
// Per-process state belongs in the record the step methods hang off, e.g.
//
//	func (pt *patient) arrive(p *sim.Process, _ sim.Outcome) (sim.Suspension, sim.Step) {
//	    return sim.Acquire{Pool: pt.bays, Priority: pt.priority}, pt.treat
//	}
type Step func(p *Process, out Outcome) (Suspension, Step)

// Outcome is the single value a process resumes with.
type Outcome struct {
	Time     int64
	Winner   int      // index of the winning Race branch, -1 outside a race
	Guard    *Guard   // set when an Acquire resolved
	Request  *Request // set when an Acquire resolved
	Branches []Branch // handles of every Race branch, nil outside a race
}

// Granted reports whether the outcome carries a unit.
func (o Outcome) Granted() bool {
	return o.Guard != nil && o.Guard.unit != nil
}

// Branch exposes the cancellable state of one Race branch.
type Branch struct {
	Request *Request // Acquire branches
	Timer   *Event   // Timeout branches
}

// Process is one simulated entity's timeline. While suspended it is owned by
// the simulator and resumes with exactly one Outcome.
type Process struct {
	id        ProcessID
	name      string
	state     ProcessState
	sim       *Simulator
	next      Step
	pending   Suspension
	requests  []*Request
	spawnedAt int64
}

// ID returns the process identifier.
func (p *Process) ID() ProcessID { return p.id }

// Name returns the label given at Spawn.
func (p *Process) Name() string { return p.name }

// State returns the current lifecycle state.
func (p *Process) State() ProcessState { return p.state }

// Pending returns the suspension the process is parked on, or nil.
func (p *Process) Pending() Suspension { return p.pending }

// SpawnedAt returns the tick at which the process was spawned.
func (p *Process) SpawnedAt() int64 { return p.spawnedAt }

// Now returns the current virtual time.
func (p *Process) Now() int64 { return p.sim.Clock.Now() }

// Simulator returns the simulator that owns the process.
func (p *Process) Simulator() *Simulator { return p.sim }

func (p *Process) String() string {
	return fmt.Sprintf("Process: (ID: %d, Name: %s, State: %s)", p.id, p.name, p.state)
}

func (p *Process) resume(out Outcome) {
	if p.state == ProcessCompleted {
		return
	}
	if p.sim.err != nil {
		return
	}
	step := p.next
	p.next = nil
	p.pending = nil
	p.state = ProcessRunnable

	susp, next := step(p, out)
	if susp == nil {
		p.complete()
		return
	}
	if next == nil {
		p.sim.fail(&InvalidStateError{Op: p.name, Reason: fmt.Sprintf("suspension %T returned without a continuation", susp)})
		return
	}
	p.next = next
	p.pending = susp
	p.state = ProcessSuspended

	switch v := susp.(type) {
	case Race:
		p.race(v)
	default:
		if _, err := p.arm(susp, p.resume); err != nil {
			p.sim.fail(err)
		}
	}
}

// arm registers a Timeout or Acquire and arranges for deliver to be called
// exactly once when it fires.
func (p *Process) arm(susp Suspension, deliver func(Outcome)) (Branch, error) {
	clock := p.sim.Clock
	switch v := susp.(type) {
	case Timeout:
		if v.Duration < 0 {
			return Branch{}, &SchedulingError{Now: clock.Now(), Delay: v.Duration, What: fmt.Sprintf("timeout for %s", p.name)}
		}
		ev, err := clock.Schedule(v.Duration, func() {
			deliver(Outcome{Time: clock.Now(), Winner: -1})
		})
		if err != nil {
			return Branch{}, err
		}
		return Branch{Timer: ev}, nil
	case Acquire:
		if v.Pool == nil {
			return Branch{}, &InvalidStateError{Op: p.name, Reason: "acquire on nil pool"}
		}
		req := v.Pool.Acquire(p.id, v.Priority, func(g *Guard) {
			deliver(Outcome{Time: clock.Now(), Winner: -1, Guard: g, Request: g.request})
		})
		p.requests = append(p.settle(), req)
		return Branch{Request: req}, nil
	case Race:
		return Branch{}, &InvalidStateError{Op: p.name, Reason: "races cannot be nested"}
	default:
		return Branch{}, &InvalidStateError{Op: p.name, Reason: fmt.Sprintf("unknown suspension %T", susp)}
	}
}

// settle drops requests that need no cleanup at scope exit: cancelled ones
// and granted ones whose unit is already back in the pool.
func (p *Process) settle() []*Request {
	live := p.requests[:0]
	for _, req := range p.requests {
		switch {
		case req.status == StatusCancelled:
		case req.status == StatusGranted && req.guard.released:
		default:
			live = append(live, req)
		}
	}
	for i := len(live); i < len(p.requests); i++ {
		p.requests[i] = nil
	}
	return live
}

// complete ends the process scope: guards still held are released and
// requests still pending are withdrawn.
func (p *Process) complete() {
	p.state = ProcessCompleted
	for _, req := range p.requests {
		var err error
		switch req.status {
		case StatusPending:
			err = req.pool.Cancel(req)
		case StatusGranted:
			if !req.guard.released {
				err = req.pool.Release(req.guard)
			}
		}
		if err != nil {
			p.sim.fail(err)
		}
	}
	p.requests = nil
	logrus.Debugf("[tick %07d] process %d (%s) completed", p.sim.Clock.Now(), p.id, p.name)
}
