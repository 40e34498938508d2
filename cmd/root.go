package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/bay-sim/sim/clinic"
	"github.com/inference-sim/bay-sim/sim/trace"
)

var (
	configPath  string  // Clinic YAML file; empty uses the built-in defaults
	seed        int64   // Master seed for the trial
	runs        int     // Number of independent runs
	horizon     float64 // Run length in model units
	bays        int     // Number of treatment bays
	logLevel    string  // Log verbosity level
	traceLevel  string  // Event log level: none or events
	traceCSV    string  // CSV event log path
	traceSQLite string  // SQLite event log path
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "bay-sim",
	Short: "Discrete-event simulator for treatment bay clinics",
}

// runCmd executes a trial using the clinic config and CLI overrides
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a clinic trial",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg, err := loadConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		writers, err := openWriters(cfg)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		logrus.Infof("Starting trial with %d bays, %d runs, horizon=%.1f, seed=%d",
			cfg.Bays, cfg.Runs, cfg.Horizon, cfg.Seed)
		startTime := time.Now()

		trial, err := clinic.NewTrial(cfg)
		if err != nil {
			logrus.Fatalf("Invalid clinic config: %v", err)
		}
		if err := trial.Run(); err != nil {
			logrus.Fatalf("Trial failed: %v", err)
		}
		trial.Summarize().Print(os.Stdout)

		for _, w := range writers {
			if err := trace.WriteLog(w, trial.Log); err != nil {
				logrus.Fatalf("Writing event log: %v", err)
			}
			if err := w.Close(); err != nil {
				logrus.Fatalf("Closing event log: %v", err)
			}
		}
		logrus.Infof("Trial complete in %s.", time.Since(startTime))
	},
}

// defaultsCmd prints the built-in clinic config as a starting point for --config.
var defaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Print the default clinic config as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(clinic.DefaultConfig()); err != nil {
			return err
		}
		return enc.Close()
	},
}

// loadConfig reads --config (or the defaults) and applies explicitly set flags
// on top, so the CLI always wins over the file.
func loadConfig(cmd *cobra.Command) (*clinic.Config, error) {
	cfg := clinic.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = clinic.LoadConfig(configPath); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("runs") {
		cfg.Runs = runs
	}
	if flags.Changed("horizon") {
		cfg.Horizon = horizon
	}
	if flags.Changed("bays") {
		cfg.Bays = bays
	}
	if flags.Changed("trace") {
		cfg.Trace = traceLevel
	}
	if (traceCSV != "" || traceSQLite != "") && !flags.Changed("trace") {
		cfg.Trace = string(trace.TraceLevelEvents)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clinic config: %w", err)
	}
	return cfg, nil
}

// openWriters opens the requested event log writers before the trial starts
// so a bad path fails fast.
func openWriters(cfg *clinic.Config) ([]trace.Writer, error) {
	var writers []trace.Writer
	if traceCSV != "" {
		w, err := trace.NewCSVWriter(traceCSV)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	if traceSQLite != "" {
		w, err := trace.NewSQLiteWriter(traceSQLite)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	if len(writers) > 0 && cfg.Trace != string(trace.TraceLevelEvents) {
		logrus.Warnf("Event log writers requested with trace level %q; files will only hold headers", cfg.Trace)
	}
	return writers, nil
}

// Execute runs the CLI root command
func Execute() {
	// Fatal logs and command errors both leave through atexit so trace
	// writers get flushed.
	logrus.StandardLogger().ExitFunc = atexit.Exit
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

// registerRunFlags binds the run flags to c, resetting every flag variable to
// its default.
func registerRunFlags(c *cobra.Command) {
	c.Flags().StringVar(&configPath, "config", "", "Clinic config YAML (defaults are used when empty)")
	c.Flags().Int64Var(&seed, "seed", 42, "Master seed for the trial")
	c.Flags().IntVar(&runs, "runs", 10, "Number of independent runs")
	c.Flags().Float64Var(&horizon, "horizon", 600, "Run length in model time units")
	c.Flags().IntVar(&bays, "bays", 4, "Number of treatment bays")
	c.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	c.Flags().StringVar(&traceLevel, "trace", "none", "Event log level (none, events)")
	c.Flags().StringVar(&traceCSV, "trace-csv", "", "Write the event log to this CSV file")
	c.Flags().StringVar(&traceSQLite, "trace-sqlite", "", "Write the event log to this SQLite file (must not exist)")
}

// init sets up CLI flags and subcommands
func init() {
	registerRunFlags(runCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(defaultsCmd)
}
