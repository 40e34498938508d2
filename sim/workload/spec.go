package workload

import (
	"fmt"
	"math"
)

// DistSpec parameterizes a duration distribution in YAML:
//
//	treatment:
//	  type: lognormal
//	  params: {mean: 40, std_dev: 5}
type DistSpec struct {
	Type   string             `yaml:"type"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

// requiredParams lists the params each distribution type needs.
var requiredParams = map[string][]string{
	"constant":    {"value"},
	"exponential": {"mean"},
	"lognormal":   {"mean", "std_dev"},
	"uniform":     {"min", "max"},
	"gaussian":    {"mean", "std_dev", "min", "max"},
}

// IsValidDistType reports whether name is a known distribution type.
func IsValidDistType(name string) bool {
	_, ok := requiredParams[name]
	return ok
}

// Validate checks the type, the presence of required params and their ranges.
func (d DistSpec) Validate() error {
	keys, ok := requiredParams[d.Type]
	if !ok {
		return fmt.Errorf("unknown distribution type %q; valid: constant, exponential, lognormal, uniform, gaussian", d.Type)
	}
	if err := requireParam(d.Params, keys...); err != nil {
		return fmt.Errorf("%s: %w", d.Type, err)
	}
	for name, val := range d.Params {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("%s.params.%s must be a finite number, got %f", d.Type, name, val)
		}
	}
	p := d.Params
	switch d.Type {
	case "constant":
		if p["value"] < 0 {
			return fmt.Errorf("constant value must be non-negative, got %f", p["value"])
		}
	case "exponential":
		if p["mean"] <= 0 {
			return fmt.Errorf("exponential mean must be positive, got %f", p["mean"])
		}
	case "lognormal":
		if p["mean"] <= 0 {
			return fmt.Errorf("lognormal mean must be positive, got %f", p["mean"])
		}
		if p["std_dev"] < 0 {
			return fmt.Errorf("lognormal std_dev must be non-negative, got %f", p["std_dev"])
		}
	case "uniform", "gaussian":
		if p["min"] < 0 || p["max"] < p["min"] {
			return fmt.Errorf("%s needs 0 <= min <= max, got [%f, %f]", d.Type, p["min"], p["max"])
		}
		if d.Type == "gaussian" && p["std_dev"] < 0 {
			return fmt.Errorf("gaussian std_dev must be non-negative, got %f", p["std_dev"])
		}
	}
	return nil
}
