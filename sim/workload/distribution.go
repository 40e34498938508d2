package workload

import (
	"fmt"
	"math"
	"math/rand"
)

// DurationSampler draws non-negative durations (in model time units, e.g.
// minutes). The engine never samples on its own; callers convert samples to
// ticks before suspending on a Timeout.
type DurationSampler interface {
	// Sample returns a finite duration >= 0.
	Sample(rng *rand.Rand) float64
	// Mean returns the configured mean of the distribution.
	Mean() float64
}

// ConstantSampler always returns the same value.
type ConstantSampler struct {
	value float64
}

func (s *ConstantSampler) Sample(_ *rand.Rand) float64 {
	return s.value
}

func (s *ConstantSampler) Mean() float64 { return s.value }

// ExponentialSampler produces exponentially-distributed durations, the usual
// interarrival distribution of a Poisson arrival process.
type ExponentialSampler struct {
	mean float64
}

func (s *ExponentialSampler) Sample(rng *rand.Rand) float64 {
	return rng.ExpFloat64() * s.mean
}

func (s *ExponentialSampler) Mean() float64 { return s.mean }

// LognormalSampler is parameterised by the mean and standard deviation of the
// sampled values themselves, not of their logarithm:
//
//	sigma² = ln(1 + stdDev²/mean²),  mu = ln(mean) - sigma²/2
type LognormalSampler struct {
	mean, stdDev float64
	mu, sigma    float64
}

// NewLognormalSampler converts mean/stdDev into the underlying normal parameters.
func NewLognormalSampler(mean, stdDev float64) *LognormalSampler {
	variance := math.Log(1 + (stdDev*stdDev)/(mean*mean))
	return &LognormalSampler{
		mean:   mean,
		stdDev: stdDev,
		mu:     math.Log(mean) - variance/2,
		sigma:  math.Sqrt(variance),
	}
}

func (s *LognormalSampler) Sample(rng *rand.Rand) float64 {
	val := math.Exp(s.mu + s.sigma*rng.NormFloat64())
	// Guard against +Inf from extreme sigma values
	if math.IsInf(val, 0) || math.IsNaN(val) {
		return s.mean
	}
	return val
}

func (s *LognormalSampler) Mean() float64 { return s.mean }

// UniformSampler draws uniformly from [min, max).
type UniformSampler struct {
	min, max float64
}

func (s *UniformSampler) Sample(rng *rand.Rand) float64 {
	return s.min + rng.Float64()*(s.max-s.min)
}

func (s *UniformSampler) Mean() float64 { return (s.min + s.max) / 2 }

// GaussianSampler produces clamped Gaussian durations.
type GaussianSampler struct {
	mean, stdDev float64
	min, max     float64
}

func (s *GaussianSampler) Sample(rng *rand.Rand) float64 {
	if s.min == s.max {
		return s.min
	}
	val := rng.NormFloat64()*s.stdDev + s.mean
	return math.Min(s.max, math.Max(s.min, val))
}

func (s *GaussianSampler) Mean() float64 { return s.mean }

// requireParam checks that all required keys exist in a params map.
func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return fmt.Errorf("distribution requires parameter %q", k)
		}
	}
	return nil
}

// NewDurationSampler creates a DurationSampler from a DistSpec.
// It validates spec first, so callers may pass unchecked YAML input.
func NewDurationSampler(spec DistSpec) (DurationSampler, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	p := spec.Params
	switch spec.Type {
	case "constant":
		return &ConstantSampler{value: p["value"]}, nil
	case "exponential":
		return &ExponentialSampler{mean: p["mean"]}, nil
	case "lognormal":
		return NewLognormalSampler(p["mean"], p["std_dev"]), nil
	case "uniform":
		return &UniformSampler{min: p["min"], max: p["max"]}, nil
	case "gaussian":
		return &GaussianSampler{mean: p["mean"], stdDev: p["std_dev"], min: p["min"], max: p["max"]}, nil
	default:
		return nil, fmt.Errorf("unknown distribution type %q", spec.Type)
	}
}
