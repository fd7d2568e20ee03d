// Command scanmatch estimates a LIDAR trajectory by registering consecutive
// keyframes of a recorded dataset.
//
// Usage:
//
//	scanmatch -dataset /data/seq01 -trajectory /data/seq01/robot0/gt.csv \
//	    -method two-plane -out scanmatcher_global.csv -plot trajectory.png
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/banshee-data/scanmatch/internal/config"
	"github.com/banshee-data/scanmatch/internal/dataset"
	"github.com/banshee-data/scanmatch/internal/lidar"
	"github.com/banshee-data/scanmatch/internal/lidar/pose"
	"github.com/banshee-data/scanmatch/internal/lidar/registration"
	"github.com/banshee-data/scanmatch/internal/report"
	"github.com/banshee-data/scanmatch/internal/scanmatch"
	"github.com/banshee-data/scanmatch/internal/storage/sqlite"
	"github.com/banshee-data/scanmatch/internal/timeutil"
	"github.com/banshee-data/scanmatch/internal/version"
)

// Config holds the command line options.
type Config struct {
	Dataset    string
	Trajectory string
	TuningFile string
	Method     string
	Sampling   int
	Workers    int
	Output     string
	DBPath     string
	PlotPath   string
	ReportPath string
	LogDiag    bool
	LogTrace   bool
	Version    bool
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.Dataset, "dataset", "", "Dataset root containing robot0/lidar/data/<timestamp>.pcd")
	flag.StringVar(&cfg.Trajectory, "trajectory", "", "Optional reference trajectory CSV used for initial guesses")
	flag.StringVar(&cfg.TuningFile, "config", "", "Tuning config file (.json, .yaml or .yml); defaults built in")
	flag.StringVar(&cfg.Method, "method", "", "Registration method: simple or two-plane (overrides config)")
	flag.IntVar(&cfg.Sampling, "sampling", 0, "Use every Nth scan as a keyframe (overrides config)")
	flag.IntVar(&cfg.Workers, "workers", 0, "Worker goroutines (overrides config)")
	flag.StringVar(&cfg.Output, "out", "scanmatcher_global.csv", "Output trajectory CSV")
	flag.StringVar(&cfg.DBPath, "db", "", "Optional SQLite database recording the run")
	flag.StringVar(&cfg.PlotPath, "plot", "", "Optional trajectory plot (.png, .svg or .pdf)")
	flag.StringVar(&cfg.ReportPath, "report", "", "Optional HTML report of per-pair metrics")
	flag.BoolVar(&cfg.LogDiag, "log-diag", false, "Enable per-keyframe and per-pair diagnostics")
	flag.BoolVar(&cfg.LogTrace, "log-trace", false, "Enable per-iteration ICP tracing")
	flag.BoolVar(&cfg.Version, "version", false, "Print version and exit")

	flag.Parse()
	return cfg
}

func main() {
	cfg := parseFlags()

	if cfg.Version {
		fmt.Println(version.String())
		return
	}
	if cfg.Dataset == "" {
		log.Fatal("-dataset is required")
	}

	writers := lidar.LogWriters{Ops: os.Stderr}
	if cfg.LogDiag {
		writers.Diag = os.Stderr
	}
	if cfg.LogTrace {
		writers.Trace = os.Stderr
	}
	lidar.SetLogWriters(writers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, timeutil.RealClock{}); err != nil {
		log.Fatalf("scanmatch: %v", err)
	}
}

// run matches the dataset and writes every requested output. Failures of
// the optional outputs are logged and do not fail the run.
func run(ctx context.Context, cfg Config, clock timeutil.Clock) error {
	tuning, err := loadTuning(cfg)
	if err != nil {
		return fmt.Errorf("load tuning config: %w", err)
	}

	dir := dataset.Directory{FS: os.DirFS(cfg.Dataset)}
	timestamps, err := dir.Timestamps()
	if err != nil {
		return fmt.Errorf("list scans: %w", err)
	}
	if len(timestamps) == 0 {
		return fmt.Errorf("no scans found under %s", filepath.Join(cfg.Dataset, dataset.ScanDir))
	}

	var reference []dataset.Stamped
	var initial []pose.Transform
	if cfg.Trajectory != "" {
		reference, err = readTrajectory(cfg.Trajectory)
		if err != nil {
			return fmt.Errorf("read trajectory: %w", err)
		}
		initial = make([]pose.Transform, len(timestamps))
		for i, ts := range timestamps {
			initial[i] = dataset.Nearest(reference, ts).Transform
		}
	}

	matcher := &scanmatch.Matcher{
		Source:     dir,
		Registrar:  registration.NewRegistrar(tuning.Registration()),
		Preprocess: tuning.Preprocess(),
		Config:     tuning.ScanMatch(),
		Clock:      clock,
	}
	out, err := matcher.Run(ctx, timestamps, initial)
	if err != nil {
		return fmt.Errorf("scan matching: %w", err)
	}
	log.Printf("Matched %d keyframes, %d of %d pairs fell back to the initial guess",
		len(out.Keyframes), out.Failures(), len(out.Pairs))

	if err := writeFile(cfg.Output, func(w io.Writer) error {
		return dataset.WriteTrajectory(w, out.Trajectory)
	}); err != nil {
		return fmt.Errorf("write trajectory: %w", err)
	}
	log.Printf("Trajectory written to: %s", cfg.Output)

	if cfg.DBPath != "" {
		runID, err := saveRun(cfg, tuning, out, clock)
		if err != nil {
			log.Printf("Warning: failed to record run: %v", err)
		} else {
			log.Printf("Run %s recorded in %s", runID, cfg.DBPath)
		}
	}

	if cfg.PlotPath != "" {
		trajectories := []report.Trajectory{{Name: "scan matching", Poses: out.Trajectory}}
		if len(reference) > 0 {
			trajectories = append(trajectories, report.Trajectory{Name: "reference", Poses: reference})
		}
		if err := report.PlotTrajectory(cfg.PlotPath, trajectories...); err != nil {
			log.Printf("Warning: failed to plot trajectory: %v", err)
		}
	}

	if cfg.ReportPath != "" {
		if err := writeFile(cfg.ReportPath, func(w io.Writer) error {
			return report.WriteMetricsHTML(w, out.Pairs)
		}); err != nil {
			log.Printf("Warning: failed to write report: %v", err)
		}
	}
	return nil
}

// loadTuning reads the tuning file, if any, and applies flag overrides.
func loadTuning(cfg Config) (*config.TuningConfig, error) {
	tuning := config.DefaultTuningConfig()
	if cfg.TuningFile != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(cfg.TuningFile); err != nil {
			return nil, err
		}
	}
	if cfg.Method != "" {
		tuning.RegistrationMethod = &cfg.Method
	}
	if cfg.Sampling > 0 {
		tuning.KeyframeSampling = &cfg.Sampling
	}
	if cfg.Workers > 0 {
		tuning.Workers = &cfg.Workers
	}
	if err := tuning.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", lidar.ErrInvalidConfig, err)
	}
	return tuning, nil
}

func readTrajectory(path string) ([]dataset.Stamped, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dataset.ReadTrajectory(f)
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func saveRun(cfg Config, tuning *config.TuningConfig, out scanmatch.Output, clock timeutil.Clock) (string, error) {
	store, err := sqlite.Open(cfg.DBPath, clock)
	if err != nil {
		return "", err
	}
	defer store.Close()

	params, err := json.Marshal(tuning)
	if err != nil {
		return "", fmt.Errorf("marshal tuning: %w", err)
	}
	run := &sqlite.Run{
		Dataset:   cfg.Dataset,
		Method:    out.Method.String(),
		Keyframes: len(out.Keyframes),
		Params:    params,
		Version:   version.Version,
	}
	if err := store.InsertRun(run); err != nil {
		return "", err
	}
	if err := store.InsertPairs(scanmatch.StoredPairs(run.RunID, out.Pairs)); err != nil {
		return "", err
	}
	return run.RunID, nil
}
