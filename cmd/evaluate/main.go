// Command evaluate scores a batch of candidate parameter vectors
// against one recorded dataset and prints a ranked summary. Every
// evaluation is appended to the optimization history CSV; runs can
// also be recorded in a SQLite database.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/banshee-data/crowd.report/internal/config"
	"github.com/banshee-data/crowd.report/internal/db"
	"github.com/banshee-data/crowd.report/internal/fsutil"
	"github.com/banshee-data/crowd.report/internal/monitoring"
	"github.com/banshee-data/crowd.report/internal/scoring"
	"github.com/banshee-data/crowd.report/internal/sim"
	sqlite "github.com/banshee-data/crowd.report/internal/storage/sqlite"
	"github.com/banshee-data/crowd.report/internal/trajectory"
)

var (
	vectorsPath = flag.String("vectors", "", "Parameter vectors file, JSON array or CSV (required)")
	trajPath    = flag.String("trajectories", "", "Path to the recorded trajectory CSV (required)")
	scenePath   = flag.String("scene", "", "Path to the scene geometry JSON")
	configPath  = flag.String("config", "", "Path to the simulation config JSON")
	historyPath = flag.String("history", "", "Optimization history CSV (default <output_dir>/optimization_history.csv)")
	sqlitePath  = flag.String("sqlite", "", "SQLite database to record every run in")
	prefix      = flag.String("prefix", "calib", "Experiment id prefix")
)

// loadVectors reads candidate parameter vectors from a JSON array of
// parameter objects or a CSV of rows in canonical column order. JSON
// fields absent from an element keep their baseline values; a CSV
// header row is skipped.
func loadVectors(path string) ([]sim.Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vectors file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return parseVectorsJSON(data)
	case ".csv":
		return parseVectorsCSV(data)
	default:
		return nil, fmt.Errorf("vectors file must be .json or .csv, got %q", filepath.Ext(path))
	}
}

func parseVectorsJSON(data []byte) ([]sim.Parameters, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse vectors JSON: %w", err)
	}

	vectors := make([]sim.Parameters, 0, len(raw))
	for i, elem := range raw {
		params := sim.BaselineParameters()
		if err := json.Unmarshal(elem, &params); err != nil {
			return nil, fmt.Errorf("vector %d: %w", i, err)
		}
		vectors = append(vectors, params)
	}
	return vectors, nil
}

func parseVectorsCSV(data []byte) ([]sim.Parameters, error) {
	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse vectors CSV: %w", err)
	}

	var vectors []sim.Parameters
	for i, record := range records {
		if i == 0 && len(record) > 0 {
			if _, err := strconv.ParseFloat(record[0], 64); err != nil {
				continue // header row
			}
		}
		values := make([]float64, 0, len(record))
		for col, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i, col, err)
			}
			values = append(values, v)
		}
		params, err := sim.ParamsFromSlice(values)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		vectors = append(vectors, params)
	}
	return vectors, nil
}

func main() {
	flag.Parse()

	if *vectorsPath == "" {
		log.Fatalf("-vectors is required")
	}
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

	vectors, err := loadVectors(*vectorsPath)
	if err != nil {
		log.Fatalf("load vectors: %v", err)
	}
	if len(vectors) == 0 {
		log.Fatalf("no parameter vectors in %s", *vectorsPath)
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

	opts := sim.DefaultOptions()
	opts.Scene = scene
	opts.SampleInterval = cfg.GetSampleInterval().Seconds()
	opts.AgentRadius = cfg.GetAgentRadius()
	opts.HeadingRefresh = cfg.GetHeadingRefreshInterval().Seconds()
	opts.ObstacleBuffer = cfg.GetObstacleBuffer()
	opts.GridCellSize = cfg.GetGridCellSize()
	// Batches always free run; pacing only matters for visual playback.

	histPath := *historyPath
	if histPath == "" {
		histPath = filepath.Join(cfg.GetOutputDir(), "optimization_history.csv")
	}
	if err := os.MkdirAll(filepath.Dir(histPath), 0755); err != nil {
		log.Fatalf("create history dir: %v", err)
	}
	history, err := scoring.NewHistory(fsutil.OSFileSystem{}, histPath)
	if err != nil {
		log.Fatalf("open history: %v", err)
	}

	weights := scoring.DefaultWeights()
	eval := scoring.EngineEvaluator(store, opts, *prefix)

	if *sqlitePath != "" {
		database, err := db.NewDB(*sqlitePath)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer database.Close()

		runs := sqlite.NewRunStore(database.DB)
		dataset := filepath.Base(*trajPath)
		logf := monitoring.Prefixed("evaluate")
		inner := eval
		eval = func(ctx context.Context, params sim.Parameters) (*scoring.Result, *sim.RunResult, error) {
			res, run, err := inner(ctx, params)
			if err != nil {
				return res, run, err
			}
			_, metrics := scoring.Score(res, weights)
			rec, recErr := sqlite.RunFromResult(res, metrics, dataset, sceneName)
			if recErr == nil {
				recErr = runs.Insert(rec)
			}
			if recErr != nil {
				logf("WARN: failed to record run %s: %v", res.ExperimentID, recErr)
			}
			return res, run, err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	batch := scoring.NewBatch(eval, weights, history)
	if err := batch.Start(ctx, scoring.BatchRequest{Vectors: vectors}); err != nil {
		log.Fatalf("start batch: %v", err)
	}
	// Wait on the background context so an interrupt still lets the
	// batch settle at an evaluation boundary and report final state.
	if err := batch.Wait(context.Background()); err != nil {
		log.Fatalf("wait for batch: %v", err)
	}

	state := batch.State()
	printSummary(state)
	fmt.Printf("\nhistory: %s\n", history.Path())

	if state.Status == scoring.BatchStatusError {
		fmt.Fprintf(os.Stderr, "batch did not complete: %s\n", state.Error)
		os.Exit(1)
	}
}

func printSummary(state scoring.BatchState) {
	ranked := scoring.Rank(state.Results)
	if len(ranked) == 0 {
		fmt.Println("no vectors evaluated")
		return
	}

	fmt.Printf("\nrank  iter  %-34s  %12s  %8s  %8s  %8s\n",
		"experiment", "objective", "mean", "p95", "growth")
	for i, r := range ranked {
		name := r.ExperimentID
		if name == "" {
			name = "(failed)"
		}
		fmt.Printf("%4d  %4d  %-34s  %12.6f  %8.4f  %8.4f  %8.4f\n",
			i+1, r.Iteration, name, r.Objective,
			r.Metrics.MeanError, r.Metrics.Percentile95, r.Metrics.TimeGrowth)
	}

	best := ranked[0]
	if !math.IsInf(best.Objective, 1) {
		if bestJSON, err := json.Marshal(best.Parameters); err == nil {
			fmt.Printf("\nbest: %s objective=%.6f\n%s\n", best.ExperimentID, best.Objective, bestJSON)
		}
	}
}
