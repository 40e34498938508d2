package clinic

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/bay-sim/sim"
	"github.com/inference-sim/bay-sim/sim/trace"
	"github.com/inference-sim/bay-sim/sim/workload"
)

// Patient is the per-process state record of one patient. Its step methods
// form the patient's pathway through the clinic.
type Patient struct {
	ID       int64
	Priority int
	Triage   string

	ArrivedAt int64
	WaitTicks int64 // -1 until treatment begins or the patient reneges
	Bay       int
	Treated   bool
	Reneged   bool

	model *Model
	guard *sim.Guard
}

// RunResult summarises one run of the model.
type RunResult struct {
	Run            int
	Arrivals       int
	Treated        int
	Reneged        int
	InTreatment    int // holding a bay at the horizon
	StillWaiting   int // queued at the horizon
	MeanWait       float64
	MaxWait        float64
	BayUtilisation map[int]float64 // bay identity → busy fraction of the horizon
	Events         int
}

// Model is one run of the treatment-bay clinic.
type Model struct {
	cfg *Config
	run int

	sim   *sim.Simulator
	bays  *sim.Pool
	usage *bayUsage
	log   *trace.EventLog

	arrivalRNG   *rand.Rand
	treatmentRNG *rand.Rand
	patienceRNG  *rand.Rand
	triageRNG    *rand.Rand

	interArrival workload.DurationSampler
	treatment    workload.DurationSampler
	patience     workload.DurationSampler

	patients []*Patient
}

// NewModel builds run number run of cfg, drawing every random stream from key.
// Records are appended to log, which may be nil.
func NewModel(cfg *Config, run int, key sim.SimulationKey, log *trace.EventLog) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Model{
		cfg:   cfg,
		run:   run,
		usage: newBayUsage(),
		log:   log,
	}
	m.sim = sim.NewSimulator(sim.WithSink(m.usage))

	var err error
	if m.bays, err = sim.NewPool(m.sim, "treatment_bays", cfg.Bays); err != nil {
		return nil, err
	}
	if m.interArrival, err = workload.NewDurationSampler(cfg.Arrivals); err != nil {
		return nil, fmt.Errorf("arrivals: %w", err)
	}
	if m.treatment, err = workload.NewDurationSampler(cfg.Treatment); err != nil {
		return nil, fmt.Errorf("treatment: %w", err)
	}
	if cfg.Patience != nil {
		if m.patience, err = workload.NewDurationSampler(*cfg.Patience); err != nil {
			return nil, fmt.Errorf("patience: %w", err)
		}
	}

	rng := sim.NewPartitionedRNG(key)
	m.arrivalRNG = rng.ForSubsystem(sim.SubsystemArrivals)
	m.treatmentRNG = rng.ForSubsystem(sim.SubsystemService)
	m.patienceRNG = rng.ForSubsystem(sim.SubsystemPatience)
	m.triageRNG = rng.ForSubsystem(sim.SubsystemTriage)
	return m, nil
}

// Simulator exposes the engine driving this run.
func (m *Model) Simulator() *sim.Simulator { return m.sim }

// Bays exposes the treatment bay pool.
func (m *Model) Bays() *sim.Pool { return m.bays }

// Patients returns every patient that arrived, in arrival order.
func (m *Model) Patients() []*Patient { return m.patients }

// Run drives the model to the horizon and summarises it.
func (m *Model) Run() (RunResult, error) {
	m.sim.Spawn("arrivals", m.generateArrivals)
	horizon := m.cfg.ticks(m.cfg.Horizon)
	if err := m.sim.RunUntil(horizon); err != nil {
		return RunResult{}, fmt.Errorf("run %d: %w", m.run, err)
	}
	return m.result(horizon), nil
}

// generateArrivals is the arrival generator process: sample an inter-arrival
// gap, skip over closures, wait, admit a patient, repeat.
// Gaps are at least one tick so the generator always moves the clock.
func (m *Model) generateArrivals(p *sim.Process, _ sim.Outcome) (sim.Suspension, sim.Step) {
	gap := max(m.cfg.ticks(m.interArrival.Sample(m.arrivalRNG)), 1)
	now := p.Now()
	if reopenAt, closed := m.closedAt(now + gap); closed {
		return sim.Timeout{Duration: reopenAt - now}, m.generateArrivals
	}
	return sim.Timeout{Duration: gap}, m.admit
}

func (m *Model) admit(p *sim.Process, _ sim.Outcome) (sim.Suspension, sim.Step) {
	pt := &Patient{
		ID:        int64(len(m.patients) + 1),
		ArrivedAt: p.Now(),
		WaitTicks: -1,
		model:     m,
	}
	pt.Priority, pt.Triage = m.triage()
	m.patients = append(m.patients, pt)
	m.sim.Spawn(fmt.Sprintf("patient_%d", pt.ID), pt.arrive)
	return m.generateArrivals(p, sim.Outcome{})
}

// triage draws the patient's priority band.
func (m *Model) triage() (int, string) {
	classes := m.cfg.Triage
	if len(classes) == 0 {
		return 1, ""
	}
	var total float64
	for _, c := range classes {
		total += c.Weight
	}
	x := m.triageRNG.Float64() * total
	for _, c := range classes {
		if x < c.Weight {
			return c.Priority, c.Name
		}
		x -= c.Weight
	}
	last := classes[len(classes)-1]
	return last.Priority, last.Name
}

// closure returns the next closing time after now and the matching reopening
// time. ok is false when the clinic never closes.
func (m *Model) closure(now int64) (closeAt, reopenAt int64, ok bool) {
	h := m.cfg.Hours
	if h == nil || h.Closed == 0 {
		return 0, 0, false
	}
	open, closed := m.cfg.ticks(h.Open), m.cfg.ticks(h.Closed)
	if open == 0 || closed == 0 {
		return 0, 0, false
	}
	cycle := open + closed
	start := now - now%cycle
	closeAt = start + open
	if now >= closeAt {
		// Already closed: report the closure in progress.
		return closeAt, start + cycle, true
	}
	return closeAt, closeAt + closed, true
}

// closedAt reports whether the clinic is closed at tick t and, if so, when
// that closure ends.
func (m *Model) closedAt(t int64) (reopenAt int64, closed bool) {
	h := m.cfg.Hours
	if h == nil {
		return 0, false
	}
	open, shut := m.cfg.ticks(h.Open), m.cfg.ticks(h.Closed)
	if open == 0 || shut == 0 {
		return 0, false
	}
	cycle := open + shut
	pos := t % cycle
	if pos < open {
		return 0, false
	}
	return t - pos + cycle, true
}

// patienceFor returns how long a patient arriving at now waits for a bay
// before giving up, or -1 to wait indefinitely.
func (m *Model) patienceFor(now int64) int64 {
	limit := int64(-1)
	if m.patience != nil {
		limit = m.cfg.ticks(m.patience.Sample(m.patienceRNG))
	}
	if closeAt, _, ok := m.closure(now); ok {
		window := m.cfg.ticks(m.cfg.Hours.RenegeWindow)
		untilClose := closeAt - now
		giveUp := untilClose
		if window > 0 {
			giveUp -= min(m.patienceRNG.Int63n(window+1), untilClose)
		}
		if giveUp < 0 {
			giveUp = 0
		}
		if limit < 0 || giveUp < limit {
			limit = giveUp
		}
	}
	return limit
}

func (m *Model) record(pt *Patient, typ trace.EventType, event string, bay int) {
	m.log.Append(trace.Record{
		Run:        m.run,
		EntityID:   pt.ID,
		Pathway:    m.cfg.Pathway,
		EventType:  typ,
		Event:      event,
		Time:       m.cfg.units(m.sim.Now()),
		ResourceID: bay,
	})
}

// arrive logs the arrival and queues for a bay, racing the patient's
// patience when it is bounded.
func (pt *Patient) arrive(p *sim.Process, _ sim.Outcome) (sim.Suspension, sim.Step) {
	m := pt.model
	m.record(pt, trace.EventTypeArrivalDeparture, trace.EventArrival, 0)
	m.record(pt, trace.EventTypeQueue, trace.EventWaitBegins, 0)

	acquire := sim.Acquire{Pool: m.bays, Priority: pt.Priority}
	patience := m.patienceFor(p.Now())
	if patience < 0 {
		return acquire, pt.seen
	}
	return sim.Race{Branches: []sim.Suspension{acquire, sim.Timeout{Duration: patience}}}, pt.seen
}

// seen runs once the wait resolves, either with a bay or with the patient
// giving up.
func (pt *Patient) seen(p *sim.Process, out sim.Outcome) (sim.Suspension, sim.Step) {
	m := pt.model
	if out.Branches != nil {
		if err := m.sim.Discard(out); err != nil {
			logrus.Errorf("[tick %07d] patient %d: discarding race: %v", p.Now(), pt.ID, err)
		}
	}
	pt.WaitTicks = p.Now() - pt.ArrivedAt

	if !out.Granted() {
		pt.Reneged = true
		logrus.Debugf("[tick %07d] patient %d reneged after %d ticks", p.Now(), pt.ID, pt.WaitTicks)
		m.record(pt, trace.EventTypeQueue, trace.EventRenege, 0)
		m.record(pt, trace.EventTypeArrivalDeparture, trace.EventDepart, 0)
		return nil, nil
	}

	pt.guard = out.Guard
	pt.Bay = out.Guard.UnitID()
	m.record(pt, trace.EventTypeResourceUse, trace.EventTreatBegins, pt.Bay)
	return sim.Timeout{Duration: m.cfg.ticks(m.treatment.Sample(m.treatmentRNG))}, pt.discharge
}

func (pt *Patient) discharge(p *sim.Process, _ sim.Outcome) (sim.Suspension, sim.Step) {
	m := pt.model
	pt.Treated = true
	m.record(pt, trace.EventTypeResourceUseEnd, trace.EventTreatEnds, pt.Bay)
	if err := m.bays.Release(pt.guard); err != nil {
		logrus.Errorf("[tick %07d] patient %d: releasing bay %d: %v", p.Now(), pt.ID, pt.Bay, err)
	}
	m.record(pt, trace.EventTypeArrivalDeparture, trace.EventDepart, 0)
	return nil, nil
}

func (m *Model) result(horizon int64) RunResult {
	res := RunResult{
		Run:            m.run,
		Arrivals:       len(m.patients),
		BayUtilisation: m.usage.utilisation(horizon, m.cfg.Bays),
		Events:         m.sim.Clock.Executed(),
	}
	var waits []float64
	for _, pt := range m.patients {
		switch {
		case pt.Treated:
			res.Treated++
		case pt.Reneged:
			res.Reneged++
		case pt.guard != nil:
			res.InTreatment++
		default:
			res.StillWaiting++
		}
		if pt.guard != nil {
			waits = append(waits, m.cfg.units(pt.WaitTicks))
		}
	}
	if len(waits) > 0 {
		var sum float64
		for _, w := range waits {
			sum += w
		}
		res.MeanWait = sum / float64(len(waits))
		sort.Float64s(waits)
		res.MaxWait = waits[len(waits)-1]
	}
	return res
}

// bayUsage accumulates per-bay busy ticks from pool transitions.
type bayUsage struct {
	since map[int]int64
	busy  map[int]int64
}

func newBayUsage() *bayUsage {
	return &bayUsage{since: make(map[int]int64), busy: make(map[int]int64)}
}

func (u *bayUsage) Record(t sim.Transition) {
	switch t.Kind {
	case sim.TransitionGranted:
		u.since[t.Unit] = t.Time
	case sim.TransitionReleased:
		u.busy[t.Unit] += t.Time - u.since[t.Unit]
		delete(u.since, t.Unit)
	}
}

// utilisation closes open intervals at horizon and returns busy fractions for
// bays 1..bays.
func (u *bayUsage) utilisation(horizon int64, bays int) map[int]float64 {
	out := make(map[int]float64, bays)
	for id := 1; id <= bays; id++ {
		busy := u.busy[id]
		if start, ok := u.since[id]; ok {
			busy += horizon - start
		}
		if horizon > 0 {
			out[id] = float64(busy) / float64(horizon)
		}
	}
	return out
}
