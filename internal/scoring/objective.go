// Package scoring turns a finished simulation run into the artifacts the
// calibration loop consumes: the result document, the scalar objective
// with its metric breakdown, the append-only history CSV, and sequential
// batch evaluation of candidate parameter vectors.
package scoring

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Weights defines the objective's weighted-sum coefficients. The
// objective is minimised, so every term measures badness.
type Weights struct {
	MeanError    float64 `json:"mean_error"`
	Percentile95 float64 `json:"percentile_95"`
	TimeGrowth   float64 `json:"time_growth"`
}

// DefaultWeights returns the calibration weighting: half overall
// accuracy, a third outlier control, the rest temporal stability.
func DefaultWeights() Weights {
	return Weights{
		MeanError:    0.50,
		Percentile95: 0.30,
		TimeGrowth:   0.20,
	}
}

// Metrics carries the raw and weighted objective terms for one result.
type Metrics struct {
	MeanError    float64 `json:"mean_error"`
	Percentile95 float64 `json:"percentile_95"`
	TimeGrowth   float64 `json:"time_growth"`

	WeightedMean   float64 `json:"weighted_mean"`
	WeightedP95    float64 `json:"weighted_p95"`
	WeightedGrowth float64 `json:"weighted_growth"`

	Objective float64 `json:"objective"`
}

// Score computes the scalar objective for a result document. Lower is
// better.
func Score(res *Result, weights Weights) (float64, Metrics) {
	meanError := res.AverageError
	p95 := percentile95(agentMeanErrors(res.AgentErrors))
	growth := timeGrowthPenalty(res.AgentErrors)

	m := Metrics{
		MeanError:      meanError,
		Percentile95:   p95,
		TimeGrowth:     growth,
		WeightedMean:   weights.MeanError * meanError,
		WeightedP95:    weights.Percentile95 * p95,
		WeightedGrowth: weights.TimeGrowth * growth,
	}
	m.Objective = m.WeightedMean + m.WeightedP95 + m.WeightedGrowth
	return m.Objective, m
}

func agentMeanErrors(agents []AgentErrors) []float64 {
	out := make([]float64, len(agents))
	for i, a := range agents {
		out[i] = a.MeanError
	}
	return out
}

// percentile95 returns the 95th percentile of values using linear
// interpolation at the fractional rank (n-1)*0.95 over the sorted
// slice. Stored calibration scores were produced under this exact
// convention, so the empirical quantile variants in gonum/stat are not
// interchangeable here.
func percentile95(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	xs := make([]float64, len(values))
	copy(xs, values)
	sort.Float64s(xs)

	rank := float64(len(xs)-1) * 0.95
	lo := int(math.Floor(rank))
	frac := rank - float64(lo)
	if lo+1 >= len(xs) {
		return xs[len(xs)-1]
	}
	return xs[lo] + frac*(xs[lo+1]-xs[lo])
}

// timeGrowthPenalty measures how much per-agent error grows from the
// first quarter of a trajectory to the last. Only growth is penalised;
// an agent whose error shrinks contributes zero, as does one whose
// early mean is within noise (<= 0.1 m) or whose trajectory is too
// short to quarter.
func timeGrowthPenalty(agents []AgentErrors) float64 {
	var rates []float64
	for _, a := range agents {
		if len(a.Errors) < 4 {
			continue
		}
		quarter := len(a.Errors) / 4
		early := errorValues(a.Errors[:quarter])
		late := errorValues(a.Errors[len(a.Errors)-quarter:])

		earlyMean := stat.Mean(early, nil)
		lateMean := stat.Mean(late, nil)

		growth := 0.0
		if earlyMean > 0.1 {
			growth = (lateMean - earlyMean) / earlyMean
		}
		rates = append(rates, math.Max(0, growth))
	}
	if len(rates) == 0 {
		return 0
	}
	return stat.Mean(rates, nil)
}

func errorValues(points []ErrorPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Error
	}
	return out
}
