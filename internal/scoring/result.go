package scoring

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/crowd.report/internal/fsutil"
	"github.com/banshee-data/crowd.report/internal/sim"
	"github.com/banshee-data/crowd.report/internal/trajectory"
)

// Position is a planar ground position in a result document.
type Position struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// ErrorPoint is one scored time index for one agent: the recorded
// (empirical) position, the simulated (validation) position, and their
// separation.
type ErrorPoint struct {
	TimeIndex     int      `json:"timeIndex"`
	Error         float64  `json:"error"`
	EmpiricalPos  Position `json:"empiricalPos"`
	ValidationPos Position `json:"validationPos"`
}

// AgentErrors summarises one paired agent over a run.
type AgentErrors struct {
	AgentID          int          `json:"agentId"`
	TrajectoryLength int          `json:"trajectoryLength"`
	MeanError        float64      `json:"meanError"`
	MaxError         float64      `json:"maxError"`
	Errors           []ErrorPoint `json:"errors"`
}

// Result is the per-evaluation document consumed by the objective, the
// report renderers, and the external calibration harness.
type Result struct {
	ExperimentID         string         `json:"experimentId"`
	ExecutionTimeSeconds float64        `json:"executionTimeSeconds"`
	TotalAgents          int            `json:"totalAgents"`
	CompletedAgents      int            `json:"completedAgents"`
	AverageError         float64        `json:"averageError"`
	MaxError             float64        `json:"maxError"`
	Parameters           sim.Parameters `json:"parameters"`
	AgentErrors          []AgentErrors  `json:"agentErrors"`
}

// ExperimentID builds a unique run identifier:
// prefix_YYYYMMDD_HHMMSS_xxxxxxxx, the suffix being the first eight hex
// characters of a v4 UUID.
func ExperimentID(prefix string, now time.Time) string {
	if prefix == "" {
		prefix = "exp"
	}
	return fmt.Sprintf("%s_%s_%s", prefix, now.Format("20060102_150405"), uuid.New().String()[:8])
}

// BuildResult assembles the result document for one finished run.
// Agents appear sorted by id; each agent's error points keep recording
// order, which is ascending time index.
func BuildResult(experimentID string, run *sim.RunResult, store *trajectory.Store, params sim.Parameters) *Result {
	perAgent := make(map[int][]ErrorPoint)
	for _, s := range run.Samples {
		perAgent[s.AgentID] = append(perAgent[s.AgentID], ErrorPoint{
			TimeIndex:     s.TimeIndex,
			Error:         s.Distance,
			EmpiricalPos:  Position{X: s.Reference.X, Z: s.Reference.Z},
			ValidationPos: Position{X: s.Simulated.X, Z: s.Simulated.Z},
		})
	}

	ids := make([]int, 0, len(perAgent))
	for id := range perAgent {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	res := &Result{
		ExperimentID:         experimentID,
		ExecutionTimeSeconds: run.Elapsed.Seconds(),
		TotalAgents:          run.TotalAgents,
		CompletedAgents:      run.CompletedAgents,
		Parameters:           params,
		AgentErrors:          make([]AgentErrors, 0, len(ids)),
	}

	var all []float64
	for _, id := range ids {
		points := perAgent[id]
		values := errorValues(points)
		all = append(all, values...)

		length := len(points) + 1
		if track, ok := store.Track(id); ok {
			length = len(track)
		}

		res.AgentErrors = append(res.AgentErrors, AgentErrors{
			AgentID:          id,
			TrajectoryLength: length,
			MeanError:        stat.Mean(values, nil),
			MaxError:         maxValue(values),
			Errors:           points,
		})
	}

	if len(all) > 0 {
		res.AverageError = stat.Mean(all, nil)
		res.MaxError = maxValue(all)
	}
	return res
}

func maxValue(xs []float64) float64 {
	var max float64
	for _, v := range xs {
		if v > max {
			max = v
		}
	}
	return max
}

// WriteResult writes the document as indented JSON under dir, named
// result_<experimentId>.json. The write is atomic so a harness polling
// the output directory never reads a partial document.
func WriteResult(fsys fsutil.FileSystem, dir string, res *Result) (string, error) {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(dir, "result_"+res.ExperimentID+".json")
	if err := fsutil.WriteFileAtomic(fsys, path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write result: %w", err)
	}
	return path, nil
}

// ReadResult loads a result document written by WriteResult.
func ReadResult(fsys fsutil.FileSystem, path string) (*Result, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to parse result %s: %w", filepath.Base(path), err)
	}
	return &res, nil
}
