// Command simulate runs one calibration evaluation: it replays a
// recorded trajectory dataset through the steering engine under a
// given parameter vector, prints the objective breakdown, and writes
// the result document plus optional report artifacts and a run record.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/banshee-data/crowd.report/internal/config"
	"github.com/banshee-data/crowd.report/internal/db"
	"github.com/banshee-data/crowd.report/internal/fsutil"
	"github.com/banshee-data/crowd.report/internal/report"
	"github.com/banshee-data/crowd.report/internal/scoring"
	"github.com/banshee-data/crowd.report/internal/sim"
	sqlite "github.com/banshee-data/crowd.report/internal/storage/sqlite"
	"github.com/banshee-data/crowd.report/internal/trajectory"
	"github.com/banshee-data/crowd.report/internal/units"
)

var (
	trajPath   = flag.String("trajectories", "", "Path to the recorded trajectory CSV (required)")
	scenePath  = flag.String("scene", "", "Path to the scene geometry JSON")
	paramsPath = flag.String("params", "", "Path to a parameter vector JSON (baseline when omitted)")
	configPath = flag.String("config", "", "Path to the simulation config JSON")
	outputDir  = flag.String("output", "", "Output base directory (overrides config)")
	sqlitePath = flag.String("sqlite", "", "SQLite database to record the run in")
	speed      = flag.Float64("speed", -1, "Simulation speed override; 0 = free run, 1 = real time")
	genReport  = flag.Bool("report", true, "Render HTML/PNG report artifacts")
	prefix     = flag.String("prefix", "calib", "Experiment id prefix")
	notes      = flag.String("notes", "", "Notes attached to the stored run record")
)

// loadParams reads a parameter vector JSON file. Fields absent from
// the file keep their baseline values.
func loadParams(path string) (sim.Parameters, error) {
	params := sim.BaselineParameters()
	data, err := os.ReadFile(path)
	if err != nil {
		return params, fmt.Errorf("failed to read params file: %w", err)
	}
	if err := json.Unmarshal(data, &params); err != nil {
		return params, fmt.Errorf("failed to parse params JSON: %w", err)
	}
	return params, nil
}

// meanRecordedSpeed averages the recorded speed across every sample in
// the dataset, in m/s.
func meanRecordedSpeed(store *trajectory.Store) float64 {
	var sum float64
	var n int
	for _, id := range store.IDs() {
		track, _ := store.Track(id)
		for _, s := range track {
			sum += s.Speed
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func main() {
	flag.Parse()

	if *trajPath == "" {
		log.Fatalf("-trajectories is required")
	}

	cfg := config.EmptySimConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadSimConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	store, err := trajectory.Load(*trajPath)
	if err != nil {
		log.Fatalf("load trajectories: %v", err)
	}

	var scene *sim.Scene
	sceneName := ""
	if *scenePath != "" {
		scene, err = sim.LoadScene(*scenePath)
		if err != nil {
			log.Fatalf("load scene: %v", err)
		}
		sceneName = filepath.Base(*scenePath)
	}

	params := sim.BaselineParameters()
	if *paramsPath != "" {
		params, err = loadParams(*paramsPath)
		if err != nil {
			log.Fatalf("load params: %v", err)
		}
	}

	opts := sim.DefaultOptions()
	opts.Params = params
	opts.Scene = scene
	opts.SampleInterval = cfg.GetSampleInterval().Seconds()
	opts.AgentRadius = cfg.GetAgentRadius()
	opts.HeadingRefresh = cfg.GetHeadingRefreshInterval().Seconds()
	opts.ObstacleBuffer = cfg.GetObstacleBuffer()
	opts.GridCellSize = cfg.GetGridCellSize()
	opts.Speed = cfg.GetSimulationSpeed()
	if *speed >= 0 {
		opts.Speed = *speed
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	speedUnits := cfg.GetSpeedUnits()
	log.Printf("dataset %s: %d agents, %d time indexes, mean speed %.2f %s",
		filepath.Base(*trajPath), store.Len(), store.MaxTimeIndex()+1,
		units.ConvertSpeed(meanRecordedSpeed(store), speedUnits), speedUnits)

	run, err := sim.NewEngine(store, opts).Run(ctx)
	if err != nil {
		log.Fatalf("simulation failed: %v", err)
	}

	clamped, _ := params.Clamp()
	res := scoring.BuildResult(scoring.ExperimentID(*prefix, time.Now()), run, store, clamped)
	objective, metrics := scoring.Score(res, scoring.DefaultWeights())

	fmt.Printf("experiment:       %s\n", res.ExperimentID)
	fmt.Printf("agents:           %d/%d completed\n", res.CompletedAgents, res.TotalAgents)
	fmt.Printf("ticks:            %d (%.2fs wall clock)\n", run.Ticks, res.ExecutionTimeSeconds)
	fmt.Printf("mean error:       %.4f m (weighted %.4f)\n", metrics.MeanError, metrics.WeightedMean)
	fmt.Printf("p95 error:        %.4f m (weighted %.4f)\n", metrics.Percentile95, metrics.WeightedP95)
	fmt.Printf("time growth:      %.4f (weighted %.4f)\n", metrics.TimeGrowth, metrics.WeightedGrowth)
	fmt.Printf("objective:        %.6f\n", objective)
	fmt.Printf("velocity clamps:  %d\n", run.ClampEvents)
	if len(run.ClampedParams) > 0 {
		fmt.Printf("clamped params:   %v\n", run.ClampedParams)
	}

	base := cfg.GetOutputDir()
	if *outputDir != "" {
		base = *outputDir
	}

	fsys := fsutil.OSFileSystem{}
	resultPath, err := scoring.WriteResult(fsys, filepath.Join(base, "results"), res)
	if err != nil {
		log.Fatalf("write result: %v", err)
	}
	fmt.Printf("result:           %s\n", resultPath)

	if *genReport {
		dir := report.MakeOutputDir(filepath.Join(base, "reports"), res.ExperimentID, time.Now())
		paths, err := report.WriteAll(dir, res, metrics, cfg.GetWorstAgentCharts())
		if err != nil {
			log.Fatalf("write report: %v", err)
		}
		fmt.Printf("report:           %s\n", paths.HTML)
		fmt.Printf("error plot:       %s\n", paths.PNG)
	}

	if *sqlitePath != "" {
		database, err := db.NewDB(*sqlitePath)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer database.Close()

		rec, err := sqlite.RunFromResult(res, metrics, filepath.Base(*trajPath), sceneName)
		if err != nil {
			log.Fatalf("build run record: %v", err)
		}
		rec.Notes = *notes
		if err := sqlite.NewRunStore(database.DB).Insert(rec); err != nil {
			log.Fatalf("store run: %v", err)
		}
		fmt.Printf("run record:       %s\n", rec.ID)
	}
}
