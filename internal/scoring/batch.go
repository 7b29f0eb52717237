package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/crowd.report/internal/monitoring"
	"github.com/banshee-data/crowd.report/internal/sim"
	"github.com/banshee-data/crowd.report/internal/trajectory"
)

// BatchStatus represents the current state of a batch evaluation
type BatchStatus string

const (
	BatchStatusIdle     BatchStatus = "idle"
	BatchStatusRunning  BatchStatus = "running"
	BatchStatusComplete BatchStatus = "complete"
	BatchStatusError    BatchStatus = "error"
)

// BatchRequest defines the vectors for starting a batch evaluation.
// All vectors are scored against the same dataset and scene.
type BatchRequest struct {
	Vectors []sim.Parameters `json:"vectors"`
}

// BatchResult holds the score for one parameter vector.
type BatchResult struct {
	Iteration     int            `json:"iteration"`
	ExperimentID  string         `json:"experiment_id,omitempty"`
	Objective     float64        `json:"objective"`
	Metrics       Metrics        `json:"metrics"`
	ClampedParams []string       `json:"clamped_params,omitempty"`
	Parameters    sim.Parameters `json:"parameters"`
}

// BatchState holds the current state and results of a batch evaluation
type BatchState struct {
	Status      BatchStatus   `json:"status"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Total       int           `json:"total"`
	Completed   int           `json:"completed"`
	Results     []BatchResult `json:"results"`
	Error       string        `json:"error,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
}

// EvalFunc scores one parameter vector. It returns the result document
// and the raw run alongside it so callers can reach tick counts and
// clamp diagnostics.
type EvalFunc func(ctx context.Context, params sim.Parameters) (*Result, *sim.RunResult, error)

// EngineEvaluator returns an EvalFunc that runs a fresh engine per
// vector over the shared dataset. The scene and run configuration ride
// in opts; the vector under test replaces opts.Params on every call.
func EngineEvaluator(store *trajectory.Store, opts sim.Options, prefix string) EvalFunc {
	return func(ctx context.Context, params sim.Parameters) (*Result, *sim.RunResult, error) {
		runOpts := opts
		runOpts.Params = params
		run, err := sim.NewEngine(store, runOpts).Run(ctx)
		if err != nil {
			return nil, nil, err
		}
		clamped, _ := params.Clamp()
		res := BuildResult(ExperimentID(prefix, time.Now()), run, store, clamped)
		return res, run, nil
	}
}

// Batch orchestrates sequential evaluation of parameter vectors
type Batch struct {
	eval    EvalFunc
	weights Weights
	history *History // optional; nil disables the CSV log

	mu     sync.RWMutex
	state  BatchState
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBatch creates a new batch evaluator. history may be nil.
func NewBatch(eval EvalFunc, weights Weights, history *History) *Batch {
	return &Batch{
		eval:    eval,
		weights: weights,
		history: history,
		state:   BatchState{Status: BatchStatusIdle},
	}
}

// addWarning appends a warning message to the batch state.
func (b *Batch) addWarning(msg string) {
	b.mu.Lock()
	b.state.Warnings = append(b.state.Warnings, msg)
	b.mu.Unlock()
}

// State returns a copy of the current batch state.
func (b *Batch) State() BatchState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	// Return a copy to avoid race conditions
	state := b.state
	results := make([]BatchResult, len(b.state.Results))
	copy(results, b.state.Results)
	state.Results = results
	warnings := make([]string, len(b.state.Warnings))
	copy(warnings, b.state.Warnings)
	state.Warnings = warnings
	return state
}

// Start begins a new batch run in the background. Cancellation of ctx
// stops the batch at the next evaluation boundary.
func (b *Batch) Start(ctx context.Context, req BatchRequest) error {
	if len(req.Vectors) == 0 {
		return fmt.Errorf("no parameter vectors to evaluate")
	}

	b.mu.Lock()
	if b.state.Status == BatchStatusRunning {
		b.mu.Unlock()
		return fmt.Errorf("batch already in progress")
	}

	now := time.Now()
	b.state = BatchState{
		Status:    BatchStatusRunning,
		StartedAt: &now,
		Total:     len(req.Vectors),
		Results:   make([]BatchResult, 0, len(req.Vectors)),
	}

	batchCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	done := make(chan struct{})
	b.done = done
	b.mu.Unlock()

	go func() {
		defer close(done)
		b.run(batchCtx, req)
	}()

	return nil
}

// Stop cancels a running batch
func (b *Batch) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

// Wait blocks until the current batch finishes or ctx expires. It
// returns immediately when no batch has been started.
func (b *Batch) Wait(ctx context.Context) error {
	b.mu.RLock()
	done := b.done
	b.mu.RUnlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes the batch in a background goroutine
func (b *Batch) run(ctx context.Context, req BatchRequest) {
	logf := monitoring.Prefixed("batch")

	b.mu.RLock()
	total := b.state.Total
	b.mu.RUnlock()

	for i, params := range req.Vectors {
		// Check for cancellation
		select {
		case <-ctx.Done():
			b.fail(fmt.Sprintf("batch stopped at vector %d/%d: %v", i, total, ctx.Err()))
			return
		default:
		}

		res, run, err := b.eval(ctx, params)
		br := BatchResult{Iteration: i, Parameters: params}
		if err != nil {
			if ctx.Err() != nil {
				b.fail(fmt.Sprintf("batch stopped at vector %d/%d: %v", i+1, total, ctx.Err()))
				return
			}
			// A broken vector must not abort the search: record a
			// penalty score and keep going.
			logf("ERROR: vector %d/%d failed: %v", i+1, total, err)
			b.addWarning(fmt.Sprintf("vector %d: evaluation failed, penalty objective assigned: %v", i+1, err))
			br.Objective = math.Inf(1)
			br.Metrics = Metrics{Objective: math.Inf(1)}
		} else {
			br.ExperimentID = res.ExperimentID
			br.Objective, br.Metrics = Score(res, b.weights)
			br.ClampedParams = run.ClampedParams
			if len(run.ClampedParams) > 0 {
				b.addWarning(fmt.Sprintf("vector %d: parameters clamped into bounds: %s",
					i+1, strings.Join(run.ClampedParams, ", ")))
			}
			logf("vector %d/%d: objective=%.6f mean=%.4f p95=%.4f growth=%.4f velocity_clamps=%d",
				i+1, total, br.Objective, br.Metrics.MeanError, br.Metrics.Percentile95,
				br.Metrics.TimeGrowth, run.ClampEvents)
		}

		if b.history != nil {
			if err := b.history.Append(i, time.Now(), br.Objective, params); err != nil {
				b.addWarning(fmt.Sprintf("vector %d: history append failed: %v", i+1, err))
			}
		}

		b.mu.Lock()
		b.state.Results = append(b.state.Results, br)
		b.state.Completed = i + 1
		b.mu.Unlock()
	}

	b.mu.Lock()
	b.state.Status = BatchStatusComplete
	now := time.Now()
	b.state.CompletedAt = &now
	b.mu.Unlock()
	logf("batch complete: %d vectors evaluated", total)
}

// fail marks the batch errored and stamps completion.
func (b *Batch) fail(msg string) {
	b.mu.Lock()
	b.state.Status = BatchStatusError
	b.state.Error = msg
	now := time.Now()
	b.state.CompletedAt = &now
	b.mu.Unlock()
}

// Rank returns the results ordered by ascending objective, best first.
// Ties keep their evaluation order.
func Rank(results []BatchResult) []BatchResult {
	ranked := make([]BatchResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Objective < ranked[j].Objective
	})
	return ranked
}
