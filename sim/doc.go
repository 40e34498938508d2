// Package sim provides the core discrete-event scheduling engine for bay-sim.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - clock.go: virtual time and the (time, seq) ordered event queue
//   - process.go: processes as explicit continuation chains (Step) parked on a Suspension
//   - pool.go: the priority pool that grants identity-bearing units to waiting requests
//   - race.go: "first of several suspensions" used for reneging
//
// # Architecture
//
// The engine is single threaded. Every piece of work is an event on the
// Clock; a process step runs only from an event and returns the Suspension it
// waits on next (Timeout, Acquire or Race) together with the Step to resume.
// Pool grants are delivered through zero-delay events, never synchronously, so
// a release inside one step cannot re-enter another process's step.
//
// Sub-packages build on the kernel:
//   - sim/workload/: duration samplers (exponential, lognormal, ...) configured from YAML
//   - sim/clinic/: the treatment-bay model, patient processes and multi-run trials
//   - sim/trace/: event log records and CSV / SQLite writers
//
// # Errors
//
// Misuse surfaces as *SchedulingError, *CapacityError or *InvalidStateError.
// A contract violation inside a process step stops the run and is returned
// from Simulator.Run / Simulator.RunUntil. Engine defects panic.
package sim
