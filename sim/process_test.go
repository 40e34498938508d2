package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// holdFor returns a step chain that acquires one unit of pool, holds it for
// hold ticks, releases it and completes. Grant times are appended to grants.
func holdFor(pool *Pool, priority int, hold int64, grants *[]int64) Step {
	var guard *Guard
	var release Step = func(p *Process, _ Outcome) (Suspension, Step) {
		if err := pool.Release(guard); err != nil {
			panic(err)
		}
		return nil, nil
	}
	var held Step = func(p *Process, out Outcome) (Suspension, Step) {
		guard = out.Guard
		if grants != nil {
			*grants = append(*grants, out.Time)
		}
		return Timeout{Duration: hold}, release
	}
	return func(p *Process, _ Outcome) (Suspension, Step) {
		return Acquire{Pool: pool, Priority: priority}, held
	}
}

func TestProcess_Timeout_ResumesAfterDuration(t *testing.T) {
	s := NewSimulator()
	var resumedAt int64 = -1
	p := s.Spawn("sleeper", func(p *Process, _ Outcome) (Suspension, Step) {
		return Timeout{Duration: 15}, func(p *Process, out Outcome) (Suspension, Step) {
			resumedAt = out.Time
			return nil, nil
		}
	})

	require.NoError(t, s.Run())
	assert.Equal(t, int64(15), resumedAt)
	assert.Equal(t, ProcessCompleted, p.State())
	assert.Equal(t, int64(15), s.Now())
}

func TestProcess_Spawn_FirstStepRunsFromEvent(t *testing.T) {
	// GIVEN a spawned process
	s := NewSimulator()
	ran := false
	p := s.Spawn("late", func(p *Process, _ Outcome) (Suspension, Step) {
		ran = true
		return nil, nil
	})

	// THEN nothing runs until the clock advances
	assert.False(t, ran)
	assert.Equal(t, ProcessRunnable, p.State())
	require.NoError(t, s.Run())
	assert.True(t, ran)
	assert.Equal(t, ProcessID(1), p.ID())
	assert.Same(t, p, s.Process(1))
	assert.Nil(t, s.Process(2))
}

func TestProcess_ScopeExit_ReleasesHeldGuard(t *testing.T) {
	// GIVEN a process that acquires a unit and completes without releasing it
	s := NewSimulator()
	pool, err := NewPool(s, "bays", 1)
	require.NoError(t, err)
	s.Spawn("forgetful", func(p *Process, _ Outcome) (Suspension, Step) {
		return Acquire{Pool: pool, Priority: 1}, func(p *Process, out Outcome) (Suspension, Step) {
			return Timeout{Duration: 5}, func(*Process, Outcome) (Suspension, Step) { return nil, nil }
		}
	})
	var waiterGrant []int64
	s.Spawn("waiter", holdFor(pool, 1, 1, &waiterGrant))

	// WHEN the simulation runs
	require.NoError(t, s.Run())

	// THEN the unit returned to the pool at scope exit and the waiter got it
	assert.Equal(t, []int64{5}, waiterGrant)
	assert.Equal(t, 1, pool.Available())
	assert.Empty(t, s.Abandoned())
}

func TestProcess_ScopeExit_ExplicitReleaseNotRepeated(t *testing.T) {
	s := NewSimulator()
	pool, err := NewPool(s, "bays", 1)
	require.NoError(t, err)
	var released int
	s.sink = LogSinkFunc(func(tr Transition) {
		if tr.Kind == TransitionReleased {
			released++
		}
	})
	s.Spawn("tidy", holdFor(pool, 1, 3, nil))

	require.NoError(t, s.Run())
	assert.Equal(t, 1, released)
	assert.Equal(t, 1, pool.Available())
}

func TestProcess_ScopeExit_CancelsPendingRequest(t *testing.T) {
	// GIVEN a process whose acquire loses a race and who completes without cleanup
	s := NewSimulator()
	pool, err := NewPool(s, "bays", 1)
	require.NoError(t, err)
	s.Spawn("holder", holdFor(pool, 1, 100, nil))
	s.Spawn("impatient", func(p *Process, _ Outcome) (Suspension, Step) {
		return Race{Branches: []Suspension{
			Acquire{Pool: pool, Priority: 1},
			Timeout{Duration: 10},
		}}, func(*Process, Outcome) (Suspension, Step) { return nil, nil }
	})

	require.NoError(t, s.RunUntil(20))

	// THEN its pending request was withdrawn when it completed
	assert.Equal(t, 0, pool.QueueLen())
}

func TestProcess_RepeatedAcquire_KeepsOnlyLiveRequests(t *testing.T) {
	// GIVEN a process that takes and returns a unit 100 times
	s := NewSimulator()
	pool, err := NewPool(s, "bay", 1)
	require.NoError(t, err)
	var tracked []int
	turns := 0
	var acquire Step
	held := func(p *Process, out Outcome) (Suspension, Step) {
		tracked = append(tracked, len(p.requests))
		require.NoError(t, pool.Release(out.Guard))
		turns++
		if turns == 100 {
			return nil, nil
		}
		return Timeout{Duration: 1}, acquire
	}
	acquire = func(p *Process, _ Outcome) (Suspension, Step) {
		return Acquire{Pool: pool, Priority: 1}, held
	}
	p := s.Spawn("regular", acquire)

	require.NoError(t, s.Run())

	// THEN settled requests are dropped instead of piling up
	require.Len(t, tracked, 100)
	for _, n := range tracked {
		assert.Equal(t, 1, n)
	}
	assert.Equal(t, ProcessCompleted, p.State())
	assert.Equal(t, 1, pool.Available())
}

func TestProcess_AbandonedAtHorizon(t *testing.T) {
	// GIVEN a waiter behind a long hold
	s := NewSimulator()
	pool, err := NewPool(s, "bays", 1)
	require.NoError(t, err)
	holder := s.Spawn("holder", holdFor(pool, 1, 100, nil))
	waiter := s.Spawn("waiter", holdFor(pool, 1, 1, nil))

	// WHEN the horizon cuts the run short
	require.NoError(t, s.RunUntil(50))

	// THEN both are abandoned and the clock sits at the horizon
	assert.Equal(t, int64(50), s.Now())
	assert.ElementsMatch(t, []*Process{holder, waiter}, s.Abandoned())
	assert.Equal(t, ProcessSuspended, waiter.State())
	assert.IsType(t, Acquire{}, waiter.Pending())
	assert.Equal(t, 1, pool.QueueLen())
}

func TestProcess_NegativeTimeout_StopsRun(t *testing.T) {
	s := NewSimulator()
	s.Spawn("broken", func(p *Process, _ Outcome) (Suspension, Step) {
		return Timeout{Duration: -1}, func(*Process, Outcome) (Suspension, Step) { return nil, nil }
	})

	err := s.Run()
	var se *SchedulingError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, int64(-1), se.Delay)
	assert.Equal(t, err, s.Err())
}

func TestProcess_MissingContinuation_StopsRun(t *testing.T) {
	s := NewSimulator()
	s.Spawn("broken", func(p *Process, _ Outcome) (Suspension, Step) {
		return Timeout{Duration: 1}, nil
	})

	var ise *InvalidStateError
	assert.True(t, errors.As(s.RunUntil(10), &ise))
}

func TestProcess_AcquireNilPool_StopsRun(t *testing.T) {
	s := NewSimulator()
	s.Spawn("broken", func(p *Process, _ Outcome) (Suspension, Step) {
		return Acquire{}, func(*Process, Outcome) (Suspension, Step) { return nil, nil }
	})

	var ise *InvalidStateError
	assert.True(t, errors.As(s.Run(), &ise))
}

func TestSimulator_RunUntil_PastHorizon(t *testing.T) {
	s := NewSimulator()
	require.NoError(t, s.RunUntil(10))

	var se *SchedulingError
	assert.True(t, errors.As(s.RunUntil(5), &se))
	assert.Equal(t, int64(10), s.Now())
}
