package clinic

import (
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/bay-sim/sim"
	"github.com/inference-sim/bay-sim/sim/trace"
)

// Trial is a batch of independent runs of the same clinic configuration.
// Each run draws its streams from a key derived from the master seed and the
// run number, so a trial is reproducible and runs can be replayed alone.
type Trial struct {
	cfg     *Config
	Results []RunResult
	Log     *trace.EventLog
}

// NewTrial validates cfg and prepares an empty trial.
func NewTrial(cfg *Config) (*Trial, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Trial{
		cfg: cfg,
		Log: trace.NewEventLog(trace.TraceLevel(cfg.Trace)),
	}, nil
}

// RunKey returns the simulation key used for run number run.
func RunKey(seed int64, run int) sim.SimulationKey {
	return sim.NewPartitionedRNG(sim.NewSimulationKey(seed)).Derive(sim.SubsystemRun(run))
}

// Run executes every run in order and collects the results.
func (t *Trial) Run() error {
	t.Results = t.Results[:0]
	for run := 0; run < t.cfg.Runs; run++ {
		res, err := t.RunOne(run)
		if err != nil {
			return err
		}
		t.Results = append(t.Results, res)
	}
	logrus.Infof("Trial complete: %d runs of %d bays", t.cfg.Runs, t.cfg.Bays)
	return nil
}

// RunOne executes a single run and merges its event log into the trial log.
func (t *Trial) RunOne(run int) (RunResult, error) {
	runLog := trace.NewEventLog(t.Log.Level)
	m, err := NewModel(t.cfg, run, RunKey(t.cfg.Seed, run), runLog)
	if err != nil {
		return RunResult{}, err
	}
	res, err := m.Run()
	if err != nil {
		return RunResult{}, err
	}
	t.Log.Merge(runLog)
	logrus.Debugf("run %d: %d arrivals, %d treated, %d reneged, mean wait %.2f",
		run, res.Arrivals, res.Treated, res.Reneged, res.MeanWait)
	return res, nil
}

// Summary averages results across runs.
type Summary struct {
	Runs           int
	MeanArrivals   float64
	MeanTreated    float64
	MeanReneged    float64
	MeanWait       float64
	MaxWait        float64
	BayUtilisation map[int]float64
}

// Summarize aggregates the collected results.
func (t *Trial) Summarize() Summary {
	s := Summary{Runs: len(t.Results), BayUtilisation: make(map[int]float64)}
	if s.Runs == 0 {
		return s
	}
	n := float64(s.Runs)
	for _, r := range t.Results {
		s.MeanArrivals += float64(r.Arrivals) / n
		s.MeanTreated += float64(r.Treated) / n
		s.MeanReneged += float64(r.Reneged) / n
		s.MeanWait += r.MeanWait / n
		s.MaxWait = max(s.MaxWait, r.MaxWait)
		for bay, u := range r.BayUtilisation {
			s.BayUtilisation[bay] += u / n
		}
	}
	return s
}

// Print writes a human readable report to w.
func (s Summary) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Trial Results ===")
	fmt.Fprintf(w, "Runs                 : %d\n", s.Runs)
	if s.Runs == 0 {
		return
	}
	fmt.Fprintf(w, "Mean Arrivals        : %.2f\n", s.MeanArrivals)
	fmt.Fprintf(w, "Mean Treated         : %.2f\n", s.MeanTreated)
	fmt.Fprintf(w, "Mean Reneged         : %.2f\n", s.MeanReneged)
	fmt.Fprintf(w, "Mean Wait            : %.2f\n", s.MeanWait)
	fmt.Fprintf(w, "Max Wait             : %.2f\n", s.MaxWait)

	bays := make([]int, 0, len(s.BayUtilisation))
	for bay := range s.BayUtilisation {
		bays = append(bays, bay)
	}
	sort.Ints(bays)
	for _, bay := range bays {
		fmt.Fprintf(w, "Bay %-3d Utilisation  : %.1f%%\n", bay, 100*s.BayUtilisation[bay])
	}
}
