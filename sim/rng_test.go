package sim

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// === PartitionedRNG Tests ===

func TestPartitionedRNG_DeterministicDerivation(t *testing.T) {
	// GIVEN two RNGs built from the same key
	rng1 := NewPartitionedRNG(NewSimulationKey(42))
	rng2 := NewPartitionedRNG(NewSimulationKey(42))

	// WHEN drawing from the service subsystem of each
	// THEN the sequences are identical
	for i := 0; i < 3; i++ {
		assert.Equal(t, rng1.ForSubsystem(SubsystemService).Float64(), rng2.ForSubsystem(SubsystemService).Float64(), "value %d", i)
	}
}

func TestPartitionedRNG_SubsystemIsolation(t *testing.T) {
	// GIVEN one RNG that has drawn heavily from arrivals
	rngA := NewPartitionedRNG(NewSimulationKey(42))
	for i := 0; i < 10; i++ {
		rngA.ForSubsystem(SubsystemArrivals).Float64()
	}

	// WHEN drawing the first service value
	got := rngA.ForSubsystem(SubsystemService).Float64()

	// THEN it matches a fresh RNG's first service value
	fresh := NewPartitionedRNG(NewSimulationKey(42))
	assert.Equal(t, fresh.ForSubsystem(SubsystemService).Float64(), got, "isolation broken")
}

func TestPartitionedRNG_ArrivalsUseMasterSeed(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(7))
	direct := rand.New(rand.NewSource(7))

	arrivals := rng.ForSubsystem(SubsystemArrivals)
	for i := 0; i < 10; i++ {
		assert.Equal(t, direct.Float64(), arrivals.Float64(), "value %d", i)
	}
}

func TestPartitionedRNG_CachesInstance(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	assert.Same(t, rng.ForSubsystem(SubsystemTriage), rng.ForSubsystem(SubsystemTriage))
}

func TestPartitionedRNG_LazyInitialization(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	require.Empty(t, rng.subsystems)

	rng.ForSubsystem(SubsystemPatience)
	assert.Len(t, rng.subsystems, 1)
}

func TestPartitionedRNG_ExtremeSeeds(t *testing.T) {
	for _, seed := range []int64{0, -1, math.MaxInt64, math.MinInt64} {
		rng := NewPartitionedRNG(NewSimulationKey(seed))
		assert.Equal(t, SimulationKey(seed), rng.Key())
		val := rng.ForSubsystem(SubsystemService).Float64()
		assert.True(t, val >= 0 && val < 1, "Float64() returned %v for seed %d", val, seed)
	}
}

func TestPartitionedRNG_Derive(t *testing.T) {
	// GIVEN one master key
	master := NewPartitionedRNG(NewSimulationKey(42))

	// WHEN deriving keys for two runs
	k0 := master.Derive(SubsystemRun(0))
	k1 := master.Derive(SubsystemRun(1))

	// THEN they differ from each other and are stable
	assert.NotEqual(t, k0, k1)
	assert.Equal(t, k0, NewPartitionedRNG(NewSimulationKey(42)).Derive(SubsystemRun(0)))
}

// === fnv1a64 Tests ===

func TestFnv1a64_Collision(t *testing.T) {
	names := []string{
		SubsystemArrivals,
		SubsystemService,
		SubsystemPatience,
		SubsystemTriage,
		SubsystemRun(0),
		SubsystemRun(1),
		"",
	}

	hashes := make(map[int64]string)
	for _, name := range names {
		h := fnv1a64(name)
		if existing, ok := hashes[h]; ok {
			t.Errorf("Hash collision: %q and %q both hash to %d", name, existing, h)
		}
		hashes[h] = name
	}
}

func TestSubsystemRun(t *testing.T) {
	assert.Equal(t, "run_0", SubsystemRun(0))
	assert.Equal(t, "run_12", SubsystemRun(12))
}

// === Benchmark ===

func BenchmarkPartitionedRNG_ForSubsystem_CacheHit(b *testing.B) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	rng.ForSubsystem(SubsystemService)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rng.ForSubsystem(SubsystemService)
	}
}
