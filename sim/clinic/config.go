package clinic

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/bay-sim/sim/trace"
	"github.com/inference-sim/bay-sim/sim/workload"
)

// Config parameterises a clinic trial. Times are in model units (minutes in
// the bundled examples); TicksPerUnit fixes the engine resolution.
type Config struct {
	Bays         int                `yaml:"bays"`
	Horizon      float64            `yaml:"horizon"`
	Runs         int                `yaml:"runs"`
	Seed         int64              `yaml:"seed"`
	TicksPerUnit int64              `yaml:"ticks_per_unit"`
	Pathway      string             `yaml:"pathway"`
	Trace        string             `yaml:"trace"`
	Arrivals     workload.DistSpec  `yaml:"arrivals"`
	Treatment    workload.DistSpec  `yaml:"treatment"`
	Patience     *workload.DistSpec `yaml:"patience,omitempty"` // nil: patients never renege
	Triage       []TriageClass      `yaml:"triage,omitempty"`
	Hours        *OpeningHours      `yaml:"hours,omitempty"` // nil: always open
}

// TriageClass is one priority band. Arriving patients draw a class with
// probability proportional to Weight; lower Priority is served first.
type TriageClass struct {
	Name     string  `yaml:"name"`
	Priority int     `yaml:"priority"`
	Weight   float64 `yaml:"weight"`
}

// OpeningHours alternates Open units of opening with Closed units of closure,
// starting open at time 0. No patient arrives while closed, and waiting
// patients give up to RenegeWindow units before closing.
type OpeningHours struct {
	Open         float64 `yaml:"open"`
	Closed       float64 `yaml:"closed"`
	RenegeWindow float64 `yaml:"renege_window"`
}

// DefaultConfig mirrors the four-bay minor treatment clinic.
func DefaultConfig() *Config {
	return &Config{
		Bays:         4,
		Horizon:      600,
		Runs:         10,
		Seed:         42,
		TicksPerUnit: 60,
		Pathway:      "Simplest",
		Trace:        string(trace.TraceLevelNone),
		Arrivals:     workload.DistSpec{Type: "exponential", Params: map[string]float64{"mean": 5}},
		Treatment:    workload.DistSpec{Type: "lognormal", Params: map[string]float64{"mean": 40, "std_dev": 5}},
	}
}

// LoadConfig reads a clinic YAML file over DefaultConfig. Unknown keys are
// rejected so typos surface instead of silently falling back to defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading clinic config: %w", err)
	}
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing clinic config: %w", err)
	}
	return cfg, nil
}

// Validate checks that all fields are usable.
func (c *Config) Validate() error {
	if c.Bays <= 0 {
		return fmt.Errorf("bays must be positive, got %d", c.Bays)
	}
	if c.Horizon <= 0 || math.IsNaN(c.Horizon) || math.IsInf(c.Horizon, 0) {
		return fmt.Errorf("horizon must be a positive finite number, got %f", c.Horizon)
	}
	if c.Runs <= 0 {
		return fmt.Errorf("runs must be positive, got %d", c.Runs)
	}
	if c.TicksPerUnit <= 0 {
		return fmt.Errorf("ticks_per_unit must be positive, got %d", c.TicksPerUnit)
	}
	if c.Horizon*float64(c.TicksPerUnit) >= math.MaxInt64/2 {
		return fmt.Errorf("horizon %f overflows at %d ticks per unit", c.Horizon, c.TicksPerUnit)
	}
	if !trace.IsValidTraceLevel(c.Trace) {
		return fmt.Errorf("unknown trace level %q; valid: none, events", c.Trace)
	}
	if err := c.Arrivals.Validate(); err != nil {
		return fmt.Errorf("arrivals: %w", err)
	}
	if upper, ok := arrivalUpperBound(c.Arrivals); ok && upper <= 0 {
		return fmt.Errorf("arrivals: %s inter-arrival time must be able to exceed 0, got upper bound %f", c.Arrivals.Type, upper)
	}
	if err := c.Treatment.Validate(); err != nil {
		return fmt.Errorf("treatment: %w", err)
	}
	if c.Patience != nil {
		if err := c.Patience.Validate(); err != nil {
			return fmt.Errorf("patience: %w", err)
		}
	}
	for i, tc := range c.Triage {
		if tc.Weight <= 0 || math.IsNaN(tc.Weight) || math.IsInf(tc.Weight, 0) {
			return fmt.Errorf("triage[%d]: weight must be a positive finite number, got %f", i, tc.Weight)
		}
	}
	if h := c.Hours; h != nil {
		if h.Open <= 0 {
			return fmt.Errorf("hours.open must be positive, got %f", h.Open)
		}
		if h.Closed < 0 {
			return fmt.Errorf("hours.closed must be non-negative, got %f", h.Closed)
		}
		if h.RenegeWindow < 0 || h.RenegeWindow > h.Open {
			return fmt.Errorf("hours.renege_window must be in [0, open], got %f", h.RenegeWindow)
		}
	}
	return nil
}

// arrivalUpperBound returns the largest gap d can sample, for the bounded
// distribution types.
func arrivalUpperBound(d workload.DistSpec) (float64, bool) {
	switch d.Type {
	case "constant":
		return d.Params["value"], true
	case "uniform", "gaussian":
		return d.Params["max"], true
	}
	return 0, false
}

// ticks converts model units to engine ticks, rounding to the nearest tick.
// Negative durations clamp to zero.
func (c *Config) ticks(units float64) int64 {
	if units <= 0 || math.IsNaN(units) {
		return 0
	}
	return int64(math.Round(units * float64(c.TicksPerUnit)))
}

// units converts engine ticks back to model units.
func (c *Config) units(ticks int64) float64 {
	return float64(ticks) / float64(c.TicksPerUnit)
}
