package trace

// LogSummary aggregates statistics from an EventLog.
type LogSummary struct {
	TotalRecords   int
	Runs           int
	Entities       int            // distinct (run, entity) pairs
	EventCounts    map[string]int // event name → count
	ResourceStarts map[int]int    // unit identity → resource_use count
}

type runEntity struct {
	run    int
	entity int64
}

// Summarize computes aggregate statistics from an EventLog.
// Safe for nil or empty logs (returns zero-value fields).
func Summarize(l *EventLog) *LogSummary {
	summary := &LogSummary{
		EventCounts:    make(map[string]int),
		ResourceStarts: make(map[int]int),
	}
	if l == nil {
		return summary
	}

	runs := make(map[int]bool)
	entities := make(map[runEntity]bool)
	for _, r := range l.Records {
		summary.EventCounts[r.Event]++
		runs[r.Run] = true
		entities[runEntity{r.Run, r.EntityID}] = true
		if r.EventType == EventTypeResourceUse && r.ResourceID != 0 {
			summary.ResourceStarts[r.ResourceID]++
		}
	}
	summary.TotalRecords = len(l.Records)
	summary.Runs = len(runs)
	summary.Entities = len(entities)
	return summary
}
