package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// raceStep races an acquire on pool against a patience timeout and records
// the resolving outcome in got.
func raceStep(s *Simulator, pool *Pool, patience int64, got *Outcome, discard bool) Step {
	return func(p *Process, _ Outcome) (Suspension, Step) {
		race := Race{Branches: []Suspension{
			Acquire{Pool: pool, Priority: 1},
			Timeout{Duration: patience},
		}}
		return race, func(p *Process, out Outcome) (Suspension, Step) {
			*got = out
			if discard {
				if err := s.Discard(out); err != nil {
					panic(err)
				}
			}
			if out.Winner == 0 {
				return Timeout{Duration: 1}, func(*Process, Outcome) (Suspension, Step) { return nil, nil }
			}
			return nil, nil
		}
	}
}

func TestRace_FreeUnit_AcquireWinsAtOnce(t *testing.T) {
	// GIVEN a free unit
	s := NewSimulator()
	pool, err := NewPool(s, "bays", 1)
	require.NoError(t, err)
	var got Outcome
	s.Spawn("racer", raceStep(s, pool, 30, &got, true))

	// WHEN racing acquire against timeout
	require.NoError(t, s.Run())

	// THEN acquire wins at t=0 and the discarded timer never fires
	assert.Equal(t, 0, got.Winner)
	assert.Equal(t, int64(0), got.Time)
	assert.True(t, got.Granted())
	require.Len(t, got.Branches, 2)
	assert.True(t, got.Branches[1].Timer.Cancelled())
	assert.Equal(t, int64(1), s.Now(), "clock never reaches the cancelled timeout")
}

func TestRace_TimeoutWins_RequestWithdrawn(t *testing.T) {
	// GIVEN a unit held until t=100 and a racer with patience 30
	s := NewSimulator()
	pool, err := NewPool(s, "bays", 1)
	require.NoError(t, err)
	var holderGrant []int64
	s.Spawn("holder", holdFor(pool, 1, 100, &holderGrant))
	var got Outcome
	racer := s.Spawn("racer", raceStep(s, pool, 30, &got, true))

	// WHEN the run completes
	require.NoError(t, s.Run())

	// THEN the timeout won at t=30, the request left the queue and is never granted
	assert.Equal(t, 1, got.Winner)
	assert.Equal(t, int64(30), got.Time)
	assert.False(t, got.Granted())
	req := got.Branches[0].Request
	assert.Equal(t, StatusCancelled, req.Status())
	assert.Nil(t, req.Guard().Unit())
	assert.Equal(t, ProcessCompleted, racer.State())
	assert.Equal(t, int64(100), s.Now())
	assert.Equal(t, 1, pool.Available())
}

func TestRace_TimeoutWins_NotInWaitingAfterCancel(t *testing.T) {
	s := NewSimulator()
	pool, err := NewPool(s, "bays", 1)
	require.NoError(t, err)
	s.Spawn("holder", holdFor(pool, 1, 100, nil))
	var got Outcome
	s.Spawn("racer", raceStep(s, pool, 30, &got, true))

	require.NoError(t, s.RunUntil(31))
	for _, r := range pool.Waiting() {
		assert.NotSame(t, got.Branches[0].Request, r)
	}
	assert.Equal(t, 0, pool.QueueLen())
}

func TestRace_SameTick_TimeoutWinsGrantDiscarded(t *testing.T) {
	// GIVEN a holder releasing at t=10 and a racer whose patience also ends at t=10.
	// The racer arms its race after the holder's release timer, so at t=10 the
	// release grants the racer first and its timeout fires before the delivery.
	s := NewSimulator()
	pool, err := NewPool(s, "bays", 1)
	require.NoError(t, err)
	s.Spawn("holder", holdFor(pool, 1, 10, nil))
	var got Outcome
	var granted int
	s.sink = LogSinkFunc(func(tr Transition) {
		if tr.Kind == TransitionGranted {
			granted++
		}
	})
	s.Spawn("racer", func(p *Process, _ Outcome) (Suspension, Step) {
		return Timeout{Duration: 0}, raceStep(s, pool, 10, &got, true)
	})

	// WHEN the run completes
	require.NoError(t, s.Run())

	// THEN the timeout wins, the request was granted but never delivered,
	// and discarding the race returned the unit
	assert.Equal(t, 1, got.Winner)
	assert.Equal(t, int64(10), got.Time)
	req := got.Branches[0].Request
	assert.Equal(t, StatusGranted, req.Status())
	assert.True(t, req.Guard().Released())
	assert.Equal(t, 2, granted)
	assert.Equal(t, 1, pool.Available())
}

func TestRace_BranchOrderDecidesSameTick(t *testing.T) {
	// GIVEN a free unit and zero patience
	tests := []struct {
		name     string
		branches func(pool *Pool) []Suspension
		winner   int
	}{
		{
			name: "acquire first",
			branches: func(pool *Pool) []Suspension {
				return []Suspension{Acquire{Pool: pool}, Timeout{Duration: 0}}
			},
			winner: 0,
		},
		{
			name: "timeout first",
			branches: func(pool *Pool) []Suspension {
				return []Suspension{Timeout{Duration: 0}, Acquire{Pool: pool}}
			},
			winner: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSimulator()
			pool, err := NewPool(s, "bays", 1)
			require.NoError(t, err)
			var got Outcome
			s.Spawn("racer", func(p *Process, _ Outcome) (Suspension, Step) {
				return Race{Branches: tt.branches(pool)}, func(p *Process, out Outcome) (Suspension, Step) {
					got = out
					require.NoError(t, s.Discard(out))
					return nil, nil
				}
			})

			require.NoError(t, s.Run())

			// THEN whichever branch was armed first fires first
			assert.Equal(t, tt.winner, got.Winner)
			assert.Equal(t, 1, pool.Available())
		})
	}
}

func TestRace_LosersNotCancelledAutomatically(t *testing.T) {
	// GIVEN a racer whose timeout wins but who does not discard
	s := NewSimulator()
	pool, err := NewPool(s, "bays", 1)
	require.NoError(t, err)
	s.Spawn("holder", holdFor(pool, 1, 100, nil))
	var got Outcome
	s.Spawn("racer", func(p *Process, _ Outcome) (Suspension, Step) {
		race := Race{Branches: []Suspension{
			Acquire{Pool: pool, Priority: 1},
			Timeout{Duration: 30},
		}}
		return race, func(p *Process, out Outcome) (Suspension, Step) {
			got = out
			return Timeout{Duration: 200}, func(*Process, Outcome) (Suspension, Step) { return nil, nil }
		}
	})

	// WHEN the holder releases at t=100
	require.NoError(t, s.RunUntil(150))

	// THEN the losing request was still granted, but the racer never resumed with it
	req := got.Branches[0].Request
	assert.Equal(t, 1, got.Winner)
	assert.Equal(t, StatusGranted, req.Status())
	assert.Equal(t, int64(150), s.Now())
	assert.IsType(t, Timeout{}, s.Processes()[1].Pending())

	// AND renege returns the unit
	require.NoError(t, pool.Renege(req))
	assert.Equal(t, 1, pool.Available())
}

func TestRace_InvalidShapes(t *testing.T) {
	tests := []struct {
		name string
		race Race
	}{
		{name: "empty", race: Race{}},
		{name: "nested", race: Race{Branches: []Suspension{Timeout{Duration: 1}, Race{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSimulator()
			s.Spawn("broken", func(p *Process, _ Outcome) (Suspension, Step) {
				return tt.race, func(*Process, Outcome) (Suspension, Step) { return nil, nil }
			})
			var ise *InvalidStateError
			assert.True(t, errors.As(s.Run(), &ise))
		})
	}
}

func TestSimulator_Discard_SkipsSettledBranches(t *testing.T) {
	s := NewSimulator()
	pool, err := NewPool(s, "bays", 1)
	require.NoError(t, err)
	req := pool.Acquire(1, 1, nil)
	require.NoError(t, pool.Release(req.Guard()))
	timer, err := s.Clock.Schedule(5, func() {})
	require.NoError(t, err)

	out := Outcome{Winner: 1, Branches: []Branch{{Request: req}, {Timer: timer}}}

	assert.NoError(t, s.Discard(out))
	assert.False(t, timer.Cancelled(), "winner untouched")
}
