package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// agentWithErrors builds an AgentErrors fixture from raw error values,
// with MeanError precomputed the way BuildResult would.
func agentWithErrors(id int, errs ...float64) AgentErrors {
	points := make([]ErrorPoint, len(errs))
	sum := 0.0
	for i, e := range errs {
		points[i] = ErrorPoint{TimeIndex: i + 1, Error: e}
		sum += e
	}
	mean := 0.0
	if len(errs) > 0 {
		mean = sum / float64(len(errs))
	}
	return AgentErrors{
		AgentID:          id,
		TrajectoryLength: len(errs) + 1,
		MeanError:        mean,
		Errors:           points,
	}
}

func TestDefaultWeights(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Weights{MeanError: 0.50, Percentile95: 0.30, TimeGrowth: 0.20}, DefaultWeights())
}

func TestPercentile95(t *testing.T) {
	t.Parallel()

	t.Run("empty input scores zero", func(t *testing.T) {
		t.Parallel()
		assert.Zero(t, percentile95(nil))
	})

	t.Run("single value is its own percentile", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 2.5, percentile95([]float64{2.5}), 1e-12)
	})

	t.Run("interpolates at fractional rank", func(t *testing.T) {
		t.Parallel()
		// rank (4-1)*0.95 = 2.85 lands between the 3rd and 4th value.
		assert.InDelta(t, 3.85, percentile95([]float64{1, 2, 3, 4}), 1e-12)
	})

	t.Run("sorts without mutating the input", func(t *testing.T) {
		t.Parallel()
		values := []float64{4, 1, 3, 2}
		assert.InDelta(t, 3.85, percentile95(values), 1e-12)
		assert.Equal(t, []float64{4, 1, 3, 2}, values)
	})

	t.Run("matches linear interpolation over a longer series", func(t *testing.T) {
		t.Parallel()
		values := make([]float64, 20)
		for i := range values {
			values[i] = float64(i + 1)
		}
		// rank 19*0.95 = 18.05, so 19 + 0.05*(20-19).
		assert.InDelta(t, 19.05, percentile95(values), 1e-12)
	})
}

func TestTimeGrowthPenalty(t *testing.T) {
	t.Parallel()

	t.Run("no agents scores zero", func(t *testing.T) {
		t.Parallel()
		assert.Zero(t, timeGrowthPenalty(nil))
	})

	t.Run("short trajectories are skipped", func(t *testing.T) {
		t.Parallel()
		agents := []AgentErrors{agentWithErrors(1, 0.5, 1.0, 2.0)}
		assert.Zero(t, timeGrowthPenalty(agents))
	})

	t.Run("tiny early error yields no growth", func(t *testing.T) {
		t.Parallel()
		agents := []AgentErrors{agentWithErrors(1, 0.05, 0.05, 0.5, 0.5)}
		assert.Zero(t, timeGrowthPenalty(agents))
	})

	t.Run("shrinking error is clipped at zero", func(t *testing.T) {
		t.Parallel()
		agents := []AgentErrors{agentWithErrors(1, 1.0, 0.8, 0.6, 0.4)}
		assert.Zero(t, timeGrowthPenalty(agents))
	})

	t.Run("doubled error gives unit growth", func(t *testing.T) {
		t.Parallel()
		agents := []AgentErrors{agentWithErrors(1, 0.5, 0.5, 0.5, 0.5, 1.0, 1.0, 1.0, 1.0)}
		assert.InDelta(t, 1.0, timeGrowthPenalty(agents), 1e-12)
	})

	t.Run("skipped agents do not dilute the mean", func(t *testing.T) {
		t.Parallel()
		agents := []AgentErrors{
			agentWithErrors(1, 0.5, 0.5, 0.5, 0.5, 1.0, 1.0, 1.0, 1.0), // growth 1.0
			agentWithErrors(2, 0.5, 1.0),                               // too short, skipped
		}
		assert.InDelta(t, 1.0, timeGrowthPenalty(agents), 1e-12)
	})

	t.Run("averages growth across agents", func(t *testing.T) {
		t.Parallel()
		agents := []AgentErrors{
			agentWithErrors(1, 0.5, 0.5, 0.5, 0.5, 1.0, 1.0, 1.0, 1.0), // growth 1.0
			agentWithErrors(2, 0.5, 0.5, 0.75, 0.9),                    // growth 0.8
		}
		assert.InDelta(t, 0.9, timeGrowthPenalty(agents), 1e-12)
	})
}

func TestScore(t *testing.T) {
	t.Parallel()

	res := &Result{
		AgentErrors: []AgentErrors{
			agentWithErrors(1, 1, 1, 1, 1),
			agentWithErrors(2, 2, 2, 2, 2),
			agentWithErrors(3, 0.5, 0.5, 1.0, 1.5),
		},
	}
	res.AverageError = 15.5 / 12 // mean over all twelve samples
	res.MaxError = 2

	objective, m := Score(res, DefaultWeights())

	// Per-agent means are 1, 2 and 0.875; rank 1.9 interpolates to 1.9.
	assert.InDelta(t, 15.5/12, m.MeanError, 1e-12)
	assert.InDelta(t, 1.9, m.Percentile95, 1e-12)
	// Only agent 3 grows: early 0.5, late 1.5.
	assert.InDelta(t, 2.0/3.0, m.TimeGrowth, 1e-12)

	assert.InDelta(t, 0.50*15.5/12, m.WeightedMean, 1e-12)
	assert.InDelta(t, 0.30*1.9, m.WeightedP95, 1e-12)
	assert.InDelta(t, 0.20*2.0/3.0, m.WeightedGrowth, 1e-12)

	want := 0.50*15.5/12 + 0.30*1.9 + 0.20*2.0/3.0
	assert.InDelta(t, want, objective, 1e-12)
	assert.Equal(t, objective, m.Objective)
}

func TestScore_CustomWeights(t *testing.T) {
	t.Parallel()

	res := &Result{
		AverageError: 0.42,
		AgentErrors:  []AgentErrors{agentWithErrors(1, 0.42, 0.42)},
	}

	objective, m := Score(res, Weights{MeanError: 1})
	assert.InDelta(t, 0.42, objective, 1e-12)
	assert.Zero(t, m.WeightedP95)
	assert.Zero(t, m.WeightedGrowth)
}

func TestScore_EmptyResult(t *testing.T) {
	t.Parallel()

	objective, m := Score(&Result{}, DefaultWeights())
	assert.Zero(t, objective)
	assert.Zero(t, m.Percentile95)
	assert.Zero(t, m.TimeGrowth)
}
