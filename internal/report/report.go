// Package report renders per-run calibration artifacts: an HTML page
// of interactive charts and a PNG error plot for headless use.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/banshee-data/crowd.report/internal/scoring"
)

// DefaultWorstAgents caps how many per-agent trajectory overlays the
// HTML report carries.
const DefaultWorstAgents = 5

// Paths lists the artifact files produced for one run.
type Paths struct {
	HTML string
	PNG  string
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakeOutputDir returns the artifact directory for one experiment:
// <base>/<experiment_id>/<timestamp>, or <base>/run_<timestamp> when
// the experiment id is empty.
func MakeOutputDir(base, experimentID string, now time.Time) string {
	ts := FormatTimestamp(now)
	if experimentID == "" {
		return filepath.Join(base, "run_"+ts)
	}
	return filepath.Join(base, experimentID, ts)
}

// WriteAll renders every artifact for one scored run into dir,
// creating it if needed. worstN <= 0 selects the default overlay
// count.
func WriteAll(dir string, res *scoring.Result, m scoring.Metrics, worstN int) (*Paths, error) {
	if worstN <= 0 {
		worstN = DefaultWorstAgents
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	paths := &Paths{
		HTML: filepath.Join(dir, "report.html"),
		PNG:  filepath.Join(dir, "error_over_time.png"),
	}

	f, err := os.Create(paths.HTML)
	if err != nil {
		return nil, fmt.Errorf("failed to create report page: %w", err)
	}
	if err := RenderHTML(f, res, m, worstN); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close report page: %w", err)
	}

	if err := RenderErrorPlot(paths.PNG, res); err != nil {
		return nil, err
	}
	return paths, nil
}

// timePoint is one aggregated sample on the report time axis.
type timePoint struct {
	TimeIndex int
	Error     float64
}

// meanErrorByTime averages positional error across agents at each
// scored time index. Agents that have already exited a given index do
// not dilute its mean.
func meanErrorByTime(res *scoring.Result) []timePoint {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, agent := range res.AgentErrors {
		for _, pt := range agent.Errors {
			sums[pt.TimeIndex] += pt.Error
			counts[pt.TimeIndex]++
		}
	}

	indexes := make([]int, 0, len(sums))
	for idx := range sums {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	series := make([]timePoint, 0, len(indexes))
	for _, idx := range indexes {
		series = append(series, timePoint{TimeIndex: idx, Error: sums[idx] / float64(counts[idx])})
	}
	return series
}

// worstAgents returns up to n agents ordered by descending mean error.
// The result document's agent order breaks ties.
func worstAgents(res *scoring.Result, n int) []scoring.AgentErrors {
	agents := append([]scoring.AgentErrors(nil), res.AgentErrors...)
	sort.SliceStable(agents, func(i, j int) bool {
		return agents[i].MeanError > agents[j].MeanError
	})
	if n > 0 && len(agents) > n {
		agents = agents[:n]
	}
	return agents
}
