package trace

// TraceLevel controls the verbosity of event logging.
type TraceLevel string

const (
	// TraceLevelNone disables logging (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelEvents captures every entity timeline step.
	TraceLevelEvents TraceLevel = "events"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelEvents: true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// EventLog collects timeline records, possibly across several runs.
type EventLog struct {
	Level   TraceLevel
	Records []Record
}

// NewEventLog creates an EventLog ready for recording.
func NewEventLog(level TraceLevel) *EventLog {
	return &EventLog{
		Level:   level,
		Records: make([]Record, 0),
	}
}

// Enabled reports whether records are kept.
func (l *EventLog) Enabled() bool {
	return l != nil && l.Level == TraceLevelEvents
}

// Append adds a record. No-op when logging is disabled.
func (l *EventLog) Append(r Record) {
	if !l.Enabled() {
		return
	}
	l.Records = append(l.Records, r)
}

// Merge appends every record of other, keeping their run numbers.
func (l *EventLog) Merge(other *EventLog) {
	if !l.Enabled() || other == nil {
		return
	}
	l.Records = append(l.Records, other.Records...)
}

// ForEntity returns the records of one entity in one run, in log order.
func (l *EventLog) ForEntity(run int, entity int64) []Record {
	var out []Record
	for _, r := range l.Records {
		if r.Run == run && r.EntityID == entity {
			out = append(out, r)
		}
	}
	return out
}
