// Package trace provides event-log recording for entity timelines.
// It has no dependencies on sim/ and stores pure data types.
package trace

// EventType groups events the way playback tooling expects them.
type EventType string

const (
	EventTypeArrivalDeparture EventType = "arrival_departure"
	EventTypeQueue            EventType = "queue"
	EventTypeResourceUse      EventType = "resource_use"
	EventTypeResourceUseEnd   EventType = "resource_use_end"
)

// Standard event names.
const (
	EventArrival     = "arrival"
	EventDepart      = "depart"
	EventWaitBegins  = "treatment_wait_begins"
	EventTreatBegins = "treatment_begins"
	EventTreatEnds   = "treatment_complete"
	EventRenege      = "renege"
)

// Record captures a single step of one entity's timeline.
type Record struct {
	Run        int
	EntityID   int64
	Pathway    string
	EventType  EventType
	Event      string
	Time       float64 // model time units, not ticks
	ResourceID int     // unit identity; 0 when no unit is involved
}
