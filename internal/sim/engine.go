package sim

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/banshee-data/crowd.report/internal/monitoring"
	"github.com/banshee-data/crowd.report/internal/timeutil"
	"github.com/banshee-data/crowd.report/internal/trajectory"
)

var logf = monitoring.Prefixed("sim")

// TickDt is the physics timestep in seconds. The playback speed
// multiplier paces wall-clock time but never changes this, so per-tick
// dynamics are identical at any playback speed.
const TickDt = 0.02

// Options configure a run. Zero values fall back to the capture
// defaults, except Speed where zero means free running.
type Options struct {
	Params         Parameters // calibration vector; clamped into bounds by NewEngine
	Scene          *Scene     // static geometry, may be nil
	SampleInterval float64    // recording cadence (s)
	AgentRadius    float64    // body radius (m)
	HeadingRefresh float64    // seconds between visibility evaluations
	ObstacleBuffer float64    // extra standoff in the minimum query radius (m)
	GridCellSize   float64    // spatial index pitch (m)

	// Speed scales how fast simulated time advances against the wall
	// clock. Zero or negative runs unpaced, which is what calibration
	// batches want; 1.0 plays back in real time.
	Speed float64
	Clock timeutil.Clock // pacing clock; nil uses the real clock
}

// DefaultOptions returns a run configuration matching the capture
// setup the model was fitted against.
func DefaultOptions() Options {
	return Options{
		Params:         BaselineParameters(),
		SampleInterval: 0.5,
		AgentRadius:    0.25,
		HeadingRefresh: 0.2,
		ObstacleBuffer: 0.1,
		GridCellSize:   2.0,
	}
}

// RunResult is everything a single evaluation produces.
type RunResult struct {
	Samples         []ErrorSample
	TotalAgents     int
	CompletedAgents int
	Ticks           int
	ClampEvents     int           // velocity-ceiling engagements across all agents
	ClampedParams   []string      // parameters pulled into bounds before the run
	Elapsed         time.Duration // wall-clock run time
}

// agentPair couples one recorded pedestrian with its simulated twin.
type agentPair struct {
	id         int
	track      trajectory.Track
	spawnIndex int // time index of the track's first sample
	ref        *ReferenceAgent
	sim        *SimulatedAgent
	spawned    bool
	done       bool
}

// Engine owns the fixed-timestep loop: it spawns paired agents when
// the clock reaches their track start, advances playback and the force
// model, scores the pairs, and declares completion once elapsed time
// passes the last recorded index. A finished engine is terminal; build
// a fresh one per evaluation.
type Engine struct {
	opts    Options
	cfg     AgentConfig
	world   *World
	sampler ErrorSampler

	pairs []*agentPair // update order: spawn index, then id
	live  []*SimulatedAgent

	tick           int
	ticksPerSample int
	maxTick        int
	clampedParams  []string
	clock          timeutil.Clock
}

// NewEngine builds a run over the given tracks. Out-of-range
// parameters are clamped, never rejected: the calibration search must
// be able to score every vector it proposes.
func NewEngine(store *trajectory.Store, opts Options) *Engine {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 0.5
	}
	if opts.AgentRadius <= 0 {
		opts.AgentRadius = 0.25
	}
	if opts.HeadingRefresh <= 0 {
		opts.HeadingRefresh = 0.2
	}
	if opts.ObstacleBuffer < 0 {
		opts.ObstacleBuffer = 0
	}
	if opts.GridCellSize <= 0 {
		opts.GridCellSize = 2.0
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}

	params, clamped := opts.Params.Clamp()
	if len(clamped) > 0 {
		logf("clamped %d out-of-range parameters: %v", len(clamped), clamped)
	}
	opts.Params = params

	ticksPerSample := int(math.Round(opts.SampleInterval / TickDt))
	if ticksPerSample < 1 {
		ticksPerSample = 1
	}

	e := &Engine{
		opts: opts,
		cfg: AgentConfig{
			Radius:         opts.AgentRadius,
			SampleInterval: opts.SampleInterval,
			HeadingRefresh: opts.HeadingRefresh,
			ObstacleBuffer: opts.ObstacleBuffer,
		},
		world:          NewWorld(opts.Scene, opts.GridCellSize),
		ticksPerSample: ticksPerSample,
		maxTick:        store.MaxTimeIndex() * ticksPerSample,
		clampedParams:  clamped,
		clock:          opts.Clock,
	}

	for _, id := range store.IDs() {
		track, _ := store.Track(id)
		e.pairs = append(e.pairs, &agentPair{
			id:         id,
			track:      track,
			spawnIndex: track.First().TimeIndex,
		})
	}
	sort.Slice(e.pairs, func(i, j int) bool {
		if e.pairs[i].spawnIndex != e.pairs[j].spawnIndex {
			return e.pairs[i].spawnIndex < e.pairs[j].spawnIndex
		}
		return e.pairs[i].id < e.pairs[j].id
	})

	return e
}

// Run drives the loop to completion. Cancellation is honoured at tick
// boundaries only; a cancelled run returns ctx.Err and no result.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	start := e.clock.Now()

	for e.tick <= e.maxTick {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		e.step()
		e.pace()
	}

	result := &RunResult{
		Samples:       e.sampler.Samples(),
		TotalAgents:   len(e.pairs),
		Ticks:         e.tick,
		ClampedParams: e.clampedParams,
		Elapsed:       e.clock.Since(start),
	}
	for _, pair := range e.pairs {
		if pair.done {
			result.CompletedAgents++
		}
		if pair.sim != nil {
			result.ClampEvents += pair.sim.ClampCount()
		}
	}
	logf("run complete: %d/%d agents, %d samples, %d ticks, %d clamp events in %s",
		result.CompletedAgents, result.TotalAgents, len(result.Samples),
		result.Ticks, result.ClampEvents, result.Elapsed)
	return result, nil
}

// step executes one fixed timestep.
func (e *Engine) step() {
	// Spawn phase: every track whose first sample sits at the current
	// discretised time index enters the world, reference and twin at
	// the same recorded position.
	clockIndex := e.tick / e.ticksPerSample
	for _, pair := range e.pairs {
		if !pair.spawned && pair.spawnIndex == clockIndex {
			pair.ref = NewReferenceAgent(pair.id, pair.track, e.opts.SampleInterval)
			pair.sim = NewSimulatedAgent(pair.id, pair.track, e.opts.Params, e.cfg)
			pair.spawned = true
		}
	}

	// Re-index live agents at their current positions.
	e.live = e.live[:0]
	for _, pair := range e.pairs {
		if pair.spawned && !pair.done {
			e.live = append(e.live, pair.sim)
		}
	}
	e.world.Rebuild(e.live)

	// Playback first, then the force model. Simulated agents update
	// sequentially, so later pairs see earlier pairs already moved.
	for _, pair := range e.pairs {
		if pair.spawned && !pair.done {
			pair.ref.Advance(TickDt)
		}
	}
	for _, pair := range e.pairs {
		if pair.spawned && !pair.done {
			pair.sim.Step(TickDt, e.world)
		}
	}

	// Score pairs whose playback just snapped to a recorded sample.
	// The coincident spawn sample never reaches here, so a pair's
	// first score lands one index after its spawn.
	for _, pair := range e.pairs {
		if pair.spawned && !pair.done && pair.ref.Snapped() {
			e.sampler.Record(pair.id, pair.ref.TimeIndex(), pair.ref.Position, pair.sim.Position)
		}
	}

	// Retire exhausted pairs.
	for _, pair := range e.pairs {
		if pair.spawned && !pair.done && pair.ref.Finished() {
			pair.done = true
		}
	}

	e.tick++
}

// pace sleeps off the wall-clock remainder of the tick when a playback
// speed is set. Scoring runs leave Speed at zero and never sleep.
func (e *Engine) pace() {
	if e.opts.Speed <= 0 {
		return
	}
	e.clock.Sleep(time.Duration(TickDt / e.opts.Speed * float64(time.Second)))
}
