package sim

import "fmt"

// SchedulingError reports an attempt to schedule work in the past: a negative
// delay, a negative timeout, or a horizon earlier than the current clock.
// Only the offending scheduling attempt is aborted.
type SchedulingError struct {
	Now   int64
	Delay int64
	What  string
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("scheduling %s at tick %d: negative delay %d", e.What, e.Now, e.Delay)
}

// CapacityError reports invalid resource pool construction or growth.
type CapacityError struct {
	Pool     string
	Capacity int
	Reason   string
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("pool %q (capacity %d): %s", e.Pool, e.Capacity, e.Reason)
}

// InvalidStateError signals a caller contract violation: cancelling a granted
// request, releasing a guard twice, releasing a unit the caller does not own,
// or an ill-formed suspension. The engine never absorbs these.
type InvalidStateError struct {
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}
