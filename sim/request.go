// Defines the Request, Unit and Guard types that model one resource acquisition.
// A Request moves Pending → Granted or Pending → Cancelled, never back.

package sim

import (
	"fmt"
)

// RequestStatus represents the lifecycle state of a request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusGranted   RequestStatus = "granted"
	StatusCancelled RequestStatus = "cancelled"
)

// Unit is one interchangeable, identity-bearing resource (e.g. a treatment bay).
// ID is assigned once when the pool is built and never changes, so observers
// can attribute repeated usage to the same unit.
type Unit struct {
	ID    int
	inUse bool
}

// InUse reports whether the unit is currently granted.
func (u *Unit) InUse() bool {
	return u.inUse
}

// Request is a pending, granted or cancelled demand for one unit of a Pool.
type Request struct {
	Priority    int       // lower value is served first
	ArrivalTime int64     // tick at which Acquire was called
	Seq         uint64    // pool-local submission order, breaks remaining ties
	Owner       ProcessID // requesting process (0 when driven outside a process)

	status RequestStatus
	pool   *Pool
	guard  *Guard
	notify func(*Guard)
	index  int // position in the wait queue heap, -1 when not queued
}

// Status returns the current lifecycle state.
func (r *Request) Status() RequestStatus {
	return r.status
}

// Pool returns the pool the request was submitted to.
func (r *Request) Pool() *Pool {
	return r.pool
}

// Guard returns the scoped acquisition handle of the request. Its unit is nil
// until the request is granted.
func (r *Request) Guard() *Guard {
	return r.guard
}

// This method returns a human-readable string representation of a Request.
func (r Request) String() string {
	return fmt.Sprintf("Request: (Owner: %d, Priority: %d, ArrivalTime: %d, Seq: %d, Status: %s)",
		r.Owner, r.Priority, r.ArrivalTime, r.Seq, r.status)
}

// Guard owns a granted unit until it is released, explicitly via Pool.Release
// or automatically when the owning process completes.
type Guard struct {
	request  *Request
	unit     *Unit
	released bool
}

// Request returns the request this guard belongs to.
func (g *Guard) Request() *Request {
	return g.request
}

// Unit returns the granted unit, or nil if the request was never granted.
func (g *Guard) Unit() *Unit {
	return g.unit
}

// UnitID returns the identity of the granted unit, or 0 if none.
func (g *Guard) UnitID() int {
	if g == nil || g.unit == nil {
		return 0
	}
	return g.unit.ID
}

// Released reports whether the guard has already given its unit back.
func (g *Guard) Released() bool {
	return g.released
}
