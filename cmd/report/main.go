// Command report renders calibration report artifacts. It reads either
// a result JSON document written by simulate or evaluate, or a run
// recorded in a SQLite database. Stored runs keep per-agent summaries
// only, so the database path renders a reduced page without the
// time-series charts.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/crowd.report/internal/config"
	"github.com/banshee-data/crowd.report/internal/db"
	"github.com/banshee-data/crowd.report/internal/fsutil"
	"github.com/banshee-data/crowd.report/internal/report"
	"github.com/banshee-data/crowd.report/internal/scoring"
	"github.com/banshee-data/crowd.report/internal/sim"
	sqlite "github.com/banshee-data/crowd.report/internal/storage/sqlite"
)

var (
	resultPath = flag.String("result", "", "Path to a result JSON document")
	runID      = flag.String("run", "", "ID of a run recorded in the SQLite database")
	sqlitePath = flag.String("sqlite", "", "SQLite database holding recorded runs (required with -run)")
	configPath = flag.String("config", "", "Path to the simulation config JSON")
	outputDir  = flag.String("output", "", "Output base directory (overrides config)")
	worstN     = flag.Int("worst", -1, "Worst-agent trajectory charts to render (default from config)")
)

// resultFromRun rebuilds a result document from a stored run. The
// per-sample error series is not persisted, so AgentErrors carry
// summaries only.
func resultFromRun(run *sqlite.CalibrationRun) (*scoring.Result, error) {
	params := sim.BaselineParameters()
	if len(run.ParamsJSON) > 0 {
		if err := json.Unmarshal(run.ParamsJSON, &params); err != nil {
			return nil, fmt.Errorf("failed to parse stored parameters: %w", err)
		}
	}

	res := &scoring.Result{
		ExperimentID:         run.ExperimentID,
		ExecutionTimeSeconds: run.DurationSeconds,
		TotalAgents:          run.TotalAgents,
		CompletedAgents:      run.CompletedAgents,
		AverageError:         run.AverageError,
		MaxError:             run.MaxError,
		Parameters:           params,
	}
	for _, a := range run.Agents {
		res.AgentErrors = append(res.AgentErrors, scoring.AgentErrors{
			AgentID:          a.AgentID,
			TrajectoryLength: a.TrajectoryLength,
			MeanError:        a.MeanError,
			MaxError:         a.MaxError,
		})
	}
	return res, nil
}

// metricsFromRun reconstructs the objective breakdown from stored
// columns. The weighted terms are products of the raw terms, so they
// rebuild exactly; the stored objective stays authoritative.
func metricsFromRun(run *sqlite.CalibrationRun, weights scoring.Weights) scoring.Metrics {
	return scoring.Metrics{
		MeanError:      run.AverageError,
		Percentile95:   run.P95Error,
		TimeGrowth:     run.TimeGrowth,
		WeightedMean:   weights.MeanError * run.AverageError,
		WeightedP95:    weights.Percentile95 * run.P95Error,
		WeightedGrowth: weights.TimeGrowth * run.TimeGrowth,
		Objective:      run.Objective,
	}
}

func main() {
	flag.Parse()

	if (*resultPath == "") == (*runID == "") {
		log.Fatalf("exactly one of -result or -run is required")
	}
	if *runID != "" && *sqlitePath == "" {
		log.Fatalf("-run requires -sqlite")
	}

	cfg := config.EmptySimConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadSimConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	base := cfg.GetOutputDir()
	if *outputDir != "" {
		base = *outputDir
	}
	charts := cfg.GetWorstAgentCharts()
	if *worstN >= 0 {
		charts = *worstN
	}

	if *resultPath != "" {
		renderFromResult(filepath.Join(base, "reports"), charts)
		return
	}
	renderFromRun(filepath.Join(base, "reports"))
}

func renderFromResult(base string, charts int) {
	res, err := scoring.ReadResult(fsutil.OSFileSystem{}, *resultPath)
	if err != nil {
		log.Fatalf("read result: %v", err)
	}

	_, metrics := scoring.Score(res, scoring.DefaultWeights())

	dir := report.MakeOutputDir(base, res.ExperimentID, time.Now())
	paths, err := report.WriteAll(dir, res, metrics, charts)
	if err != nil {
		log.Fatalf("write report: %v", err)
	}

	fmt.Printf("report: %s\n", paths.HTML)
	fmt.Printf("plot:   %s\n", paths.PNG)
}

func renderFromRun(base string) {
	database, err := db.NewDB(*sqlitePath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer database.Close()

	run, err := sqlite.NewRunStore(database.DB).Get(*runID)
	if err != nil {
		log.Fatalf("load run: %v", err)
	}

	res, err := resultFromRun(run)
	if err != nil {
		log.Fatalf("rebuild result: %v", err)
	}
	metrics := metricsFromRun(run, scoring.DefaultWeights())

	dir := report.MakeOutputDir(base, run.ExperimentID, time.Now())
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("create report dir: %v", err)
	}

	htmlPath := filepath.Join(dir, "report.html")
	f, err := os.Create(htmlPath)
	if err != nil {
		log.Fatalf("create report file: %v", err)
	}
	if err := report.RenderSummaryHTML(f, res, metrics); err != nil {
		f.Close()
		log.Fatalf("render report: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("close report file: %v", err)
	}

	fmt.Printf("report: %s\n", htmlPath)
	fmt.Println("stored runs keep per-agent summaries only; use -result for the time-series charts")
}
