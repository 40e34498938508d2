package sim

// TransitionKind names a resource request transition reported to a LogSink.
type TransitionKind string

const (
	TransitionSubmitted TransitionKind = "submitted"
	TransitionGranted   TransitionKind = "granted"
	TransitionCancelled TransitionKind = "cancelled"
	TransitionReleased  TransitionKind = "released"
)

// Transition is one request lifecycle step observed by a pool.
// Unit is 0 when no unit is involved (submitted, cancelled).
type Transition struct {
	Process  ProcessID
	Pool     string
	Unit     int
	Priority int
	Time     int64
	Kind     TransitionKind
}

// LogSink receives pool transitions. Implementations MUST NOT call back into
// the pool that reported the transition.
type LogSink interface {
	Record(t Transition)
}

// LogSinkFunc adapts a plain function to LogSink.
type LogSinkFunc func(t Transition)

func (f LogSinkFunc) Record(t Transition) {
	f(t)
}

// MultiSink fans a transition out to every sink in order.
type MultiSink []LogSink

func (m MultiSink) Record(t Transition) {
	for _, s := range m {
		if s != nil {
			s.Record(t)
		}
	}
}

type nopSink struct{}

func (nopSink) Record(Transition) {}
