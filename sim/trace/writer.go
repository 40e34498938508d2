package trace

import "fmt"

// Writer persists event-log records. Writers buffer; Flush makes buffered
// records durable and Close flushes and releases the backend.
type Writer interface {
	Write(r Record) error
	Flush() error
	Close() error
}

// WriteLog writes every record of l to w and flushes.
func WriteLog(w Writer, l *EventLog) error {
	if l == nil {
		return nil
	}
	for i, r := range l.Records {
		if err := w.Write(r); err != nil {
			return fmt.Errorf("writing record %d: %w", i, err)
		}
	}
	return w.Flush()
}

// columns is the shared column order of every tabular backend.
var columns = []string{"run", "entity_id", "pathway", "event_type", "event", "time", "resource_id"}
