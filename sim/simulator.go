// sim/simulator.go
package sim

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// Simulator is the core object that holds the clock, the processes and the
// sink that observes pool transitions.
//
// Exactly one process step runs at any instant, so nothing here is locked.
type Simulator struct {
	// Clock owns virtual time and every pending event
	Clock *Clock

	sink      LogSink
	processes []*Process
	nextPID   ProcessID
	err       error
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithSink routes pool transitions to sink.
func WithSink(sink LogSink) Option {
	return func(s *Simulator) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// NewSimulator creates a simulator at tick 0.
func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		Clock: NewClock(),
		sink:  nopSink{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the current virtual time.
func (s *Simulator) Now() int64 {
	return s.Clock.Now()
}

// Err returns the first fatal error raised while running, if any.
func (s *Simulator) Err() error {
	return s.err
}

// Spawn registers a new process. Its first step runs from a zero-delay event,
// after any work already scheduled for the current tick.
func (s *Simulator) Spawn(name string, step Step) *Process {
	if step == nil {
		panic("Spawn: step must not be nil")
	}
	s.nextPID++
	p := &Process{
		id:        s.nextPID,
		name:      name,
		state:     ProcessRunnable,
		sim:       s,
		next:      step,
		spawnedAt: s.Clock.Now(),
	}
	s.processes = append(s.processes, p)
	if _, err := s.Clock.Schedule(0, func() {
		p.resume(Outcome{Time: s.Clock.Now(), Winner: -1})
	}); err != nil {
		panic(err)
	}
	logrus.Debugf("[tick %07d] spawned process %d (%s)", s.Clock.Now(), p.id, name)
	return p
}

// Process returns the process with the given id, or nil.
func (s *Simulator) Process(id ProcessID) *Process {
	if id <= 0 || int(id) > len(s.processes) {
		return nil
	}
	return s.processes[id-1]
}

// Processes returns every process spawned so far, in spawn order.
func (s *Simulator) Processes() []*Process {
	return s.processes
}

// Abandoned returns the processes that have not completed. After RunUntil
// these are simply left behind; their completion logic never runs.
func (s *Simulator) Abandoned() []*Process {
	var out []*Process
	for _, p := range s.processes {
		if p.state != ProcessCompleted {
			out = append(out, p)
		}
	}
	return out
}

// RunUntil processes every event due at or before horizon. Reaching the
// horizon with suspended processes is normal termination.
// Returns the first fatal error raised by a process step.
func (s *Simulator) RunUntil(horizon int64) error {
	if horizon < s.Clock.Now() {
		return &SchedulingError{Now: s.Clock.Now(), Delay: horizon - s.Clock.Now(), What: "horizon"}
	}
	for s.err == nil {
		next, ok := s.Clock.NextTime()
		if !ok || next > horizon {
			break
		}
		s.Clock.Advance()
	}
	if s.err != nil {
		return s.err
	}
	if err := s.Clock.RunUntil(horizon); err != nil {
		return err
	}
	logrus.Infof("[tick %07d] Simulation reached horizon, %d events executed, %d processes abandoned",
		s.Clock.Now(), s.Clock.Executed(), len(s.Abandoned()))
	return nil
}

// Run processes events until the queue is empty or a fatal error is raised.
func (s *Simulator) Run() error {
	for s.err == nil {
		if !s.Clock.Advance() {
			break
		}
	}
	if s.err == nil {
		logrus.Infof("[tick %07d] Simulation ended, %d events executed", s.Clock.Now(), s.Clock.Executed())
	}
	return s.err
}

// Discard cancels the losing branches of a race outcome: pending timers are
// made inert and acquire branches are reneged. Races never do this on their own.
func (s *Simulator) Discard(out Outcome) error {
	var errs []error
	for i, b := range out.Branches {
		if i == out.Winner {
			continue
		}
		if b.Timer != nil {
			s.Clock.Cancel(b.Timer)
		}
		if b.Request == nil {
			continue
		}
		switch b.Request.status {
		case StatusCancelled:
			continue
		case StatusGranted:
			if b.Request.guard.released {
				continue
			}
		}
		if err := b.Request.pool.Renege(b.Request); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Simulator) fail(err error) {
	if s.err != nil {
		return
	}
	s.err = err
	logrus.Errorf("[tick %07d] %v", s.Clock.Now(), err)
}
