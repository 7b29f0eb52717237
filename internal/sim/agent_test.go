package sim

import (
	"testing"

	"github.com/banshee-data/crowd.report/internal/trajectory"
)

func agentTestConfig() AgentConfig {
	return AgentConfig{
		Radius:         0.25,
		SampleInterval: 0.5,
		HeadingRefresh: 0.2,
		ObstacleBuffer: 0.1,
	}
}

// straightTrack builds a constant-speed track along +X starting at
// startIndex, one sample every spacing metres.
func straightTrack(id, startIndex, n int, spacing, speed float64) trajectory.Track {
	track := make(trajectory.Track, n)
	for i := range track {
		track[i] = trajectory.Sample{
			AgentID:   id,
			TimeIndex: startIndex + i,
			X:         spacing * float64(i),
			Speed:     speed,
		}
	}
	return track
}

func TestSpeedFactor(t *testing.T) {
	if got := speedFactor(0.7, 1.4); !almostEqual(got, 0.5, 1e-12) {
		t.Errorf("speedFactor(0.7, 1.4) = %f, want 0.5", got)
	}
	if got := speedFactor(1.0, 0); got != 0 {
		t.Errorf("speedFactor at zero desired = %f, want 0", got)
	}
}

func TestDrivingForce(t *testing.T) {
	a := NewSimulatedAgent(1, straightTrack(1, 0, 3, 0.7, 1.4), BaselineParameters(), agentTestConfig())

	// At rest the pull is desired speed over relaxation time, doubled by
	// the flexible factor.
	f := a.drivingForce(0)
	want := 1.4 / 0.5 * 2
	if !almostEqual(f.X, want, 1e-9) || !almostEqual(f.Z, 0, 1e-12) {
		t.Errorf("rest force = %+v, want {%f 0}", f, want)
	}

	// At desired speed along the heading the net pull vanishes except
	// for the remaining flexible factor times zero difference.
	a.Velocity = Vec2{1.4, 0}
	f = a.drivingForce(1)
	if !almostEqual(f.Length(), 0, 1e-9) {
		t.Errorf("on-target force = %+v, want zero", f)
	}

	// Past twice the desired speed the drive lets go entirely rather
	// than braking backwards.
	a.Velocity = Vec2{4, 0}
	f = a.drivingForce(4 / 1.4)
	if f.Length() != 0 {
		t.Errorf("overspeed force = %+v, want zero", f)
	}
}

func TestAnisotropy(t *testing.T) {
	heading := Vec2{1, 0}
	const lambda = 0.35

	if got := anisotropy(heading, Vec2{1, 0}, lambda); !almostEqual(got, 1, 1e-12) {
		t.Errorf("ahead = %f, want 1", got)
	}
	if got := anisotropy(heading, Vec2{-1, 0}, lambda); !almostEqual(got, lambda, 1e-12) {
		t.Errorf("behind = %f, want lambda", got)
	}
	side := anisotropy(heading, Vec2{0, 1}, lambda)
	if want := lambda + (1-lambda)/2; !almostEqual(side, want, 1e-12) {
		t.Errorf("side = %f, want %f", side, want)
	}
	if got := anisotropy(Vec2{}, Vec2{-1, 0}, lambda); got != 1 {
		t.Errorf("standing still = %f, want full weight 1", got)
	}
}

func TestAgentRepulsion_FallsOffBehind(t *testing.T) {
	cfg := agentTestConfig()
	params := BaselineParameters()

	a := NewSimulatedAgent(1, straightTrack(1, 0, 3, 0.7, 1.4), params, cfg)
	a.Velocity = Vec2{1, 0}
	ahead := &SimulatedAgent{ID: 2, Radius: 0.25, Position: Vec2{1.5, 0}}
	behind := &SimulatedAgent{ID: 3, Radius: 0.25, Position: Vec2{-1.5, 0}}

	a.buf.Agents = []*SimulatedAgent{ahead}
	fromAhead := a.agentRepulsion().Length()

	a.buf.Agents = []*SimulatedAgent{behind}
	fromBehind := a.agentRepulsion().Length()

	if fromAhead <= fromBehind {
		t.Errorf("ahead %f not stronger than behind %f", fromAhead, fromBehind)
	}
	ratio := fromBehind / fromAhead
	if !almostEqual(ratio, params.LambdaAgent, 1e-9) {
		t.Errorf("behind/ahead ratio = %f, want lambda %f", ratio, params.LambdaAgent)
	}
}

func TestAgentRepulsion_ContactRegime(t *testing.T) {
	cfg := agentTestConfig()
	params := BaselineParameters()

	a := NewSimulatedAgent(1, straightTrack(1, 0, 3, 0.7, 1.4), params, cfg)
	// Gap of -0.1: centres 0.6 apart against a 0.7 contact distance.
	n := &SimulatedAgent{ID: 2, Radius: 0.25, Position: Vec2{0.6, 0}}
	a.buf.Agents = []*SimulatedAgent{n}

	f := a.agentRepulsion()
	// Pure body force: K * depth away from the neighbor.
	if want := -params.K * 0.1; !almostEqual(f.X, want, 1e-9) {
		t.Errorf("contact force X = %f, want %f", f.X, want)
	}
	if !almostEqual(f.Z, 0, 1e-9) {
		t.Errorf("contact force Z = %f, want 0", f.Z)
	}

	// A neighbor sliding crossways adds tangential friction.
	n.Velocity = Vec2{0, 1}
	f = a.agentRepulsion()
	if almostEqual(f.Z, 0, 1e-9) {
		t.Error("expected tangential component from sliding neighbor")
	}
}

func TestAgentRepulsion_CutsOffBeyondRange(t *testing.T) {
	cfg := agentTestConfig()
	params := BaselineParameters()

	a := NewSimulatedAgent(1, straightTrack(1, 0, 3, 0.7, 1.4), params, cfg)
	// Gap of 5.3 m exceeds the 5 m repulsion range.
	far := &SimulatedAgent{ID: 2, Radius: 0.25, Position: Vec2{6, 0}}
	a.buf.Agents = []*SimulatedAgent{far}

	if f := a.agentRepulsion(); f.Length() != 0 {
		t.Errorf("force beyond range = %+v, want zero", f)
	}
}

func TestStep_VelocityMatchesDisplacement(t *testing.T) {
	scene := &Scene{Obstacles: []Obstacle{
		Segment{A: Vec2{3, -2}, B: Vec2{3, 2}},
	}}
	w := NewWorld(scene, 2.0)
	a := NewSimulatedAgent(1, straightTrack(1, 0, 10, 0.7, 1.4), BaselineParameters(), agentTestConfig())
	w.Rebuild([]*SimulatedAgent{a})

	for i := 0; i < 50; i++ {
		pre := a.Position
		a.Step(TickDt, w)
		if a.Velocity.Length() > maxSpeed {
			continue
		}
		derived := a.Position.Sub(pre).Scale(1 / TickDt)
		if derived.Sub(a.Velocity).Length() > 1e-9 {
			t.Fatalf("tick %d: velocity %+v disagrees with displacement %+v", i, a.Velocity, derived)
		}
	}
}

func TestStep_ClampsRunawayVelocity(t *testing.T) {
	w := NewWorld(&Scene{}, 2.0)
	a := NewSimulatedAgent(1, straightTrack(1, 0, 10, 0.7, 1.4), BaselineParameters(), agentTestConfig())
	w.Rebuild([]*SimulatedAgent{a})

	a.Velocity = Vec2{5, 0}
	a.Step(TickDt, w)

	if got := a.Velocity.Length(); !almostEqual(got, 1.4, 1e-9) {
		t.Errorf("clamped speed = %f, want desired 1.4", got)
	}
	if a.ClampCount() != 1 {
		t.Errorf("clamp count = %d, want 1", a.ClampCount())
	}
}

func TestStep_WallKeepsBodyOut(t *testing.T) {
	// Waypoint behind the wall: the agent presses against it but its
	// body must never end a tick inside.
	scene := &Scene{Obstacles: []Obstacle{
		Segment{A: Vec2{0, -5}, B: Vec2{0, 5}},
	}}
	track := trajectory.Track{
		{AgentID: 1, TimeIndex: 0, X: 0.5, Z: 0, Speed: 1.4},
		{AgentID: 1, TimeIndex: 1, X: -2, Z: 0, Speed: 1.4},
		{AgentID: 1, TimeIndex: 2, X: -2, Z: 0, Speed: 1.4},
	}
	w := NewWorld(scene, 2.0)
	a := NewSimulatedAgent(1, track, BaselineParameters(), agentTestConfig())
	w.Rebuild([]*SimulatedAgent{a})

	for i := 0; i < 100; i++ {
		a.Step(TickDt, w)
		if a.Position.X < a.Radius-1e-6 {
			t.Fatalf("tick %d: body centre at x=%f inside wall standoff", i, a.Position.X)
		}
	}
}

func TestStep_HeadOnPairPasses(t *testing.T) {
	cfg := agentTestConfig()
	params := BaselineParameters()
	w := NewWorld(&Scene{}, 2.0)

	mk := func(id int, from, to float64) *SimulatedAgent {
		n := 10
		track := make(trajectory.Track, n)
		for i := range track {
			frac := float64(i) / float64(n-1)
			track[i] = trajectory.Sample{
				AgentID:   id,
				TimeIndex: i,
				X:         from + (to-from)*frac,
				Speed:     1.4,
			}
		}
		return NewSimulatedAgent(id, track, params, cfg)
	}
	a := mk(1, 0, 6)
	b := mk(2, 6, 0)
	agents := []*SimulatedAgent{a, b}

	overlapStreak := 0
	for tick := 0; tick < 300; tick++ {
		w.Rebuild(agents)
		for _, s := range agents {
			s.Step(TickDt, w)
		}
		if a.Position.DistanceTo(b.Position) < a.Radius+b.Radius {
			overlapStreak++
			if overlapStreak >= 2 {
				t.Fatalf("tick %d: bodies stayed merged across ticks", tick)
			}
		} else {
			overlapStreak = 0
		}
	}

	// Both agents must have made real progress toward their goals
	// rather than deadlocking at the midpoint.
	if a.Position.X < 4 {
		t.Errorf("agent 1 stalled at x=%f", a.Position.X)
	}
	if b.Position.X > 2 {
		t.Errorf("agent 2 stalled at x=%f", b.Position.X)
	}
}

func TestAdvanceWaypoint(t *testing.T) {
	a := NewSimulatedAgent(1, straightTrack(1, 0, 3, 0.7, 1.4), BaselineParameters(), agentTestConfig())

	if a.targetIndex != 1 {
		t.Fatalf("initial target = %d, want 1", a.targetIndex)
	}
	for i := 0; i < 25; i++ {
		a.advanceWaypoint(TickDt)
	}
	if a.targetIndex != 2 {
		t.Errorf("target after one interval = %d, want 2", a.targetIndex)
	}
	if a.Finished() {
		t.Error("finished with the last waypoint still pending")
	}
	for i := 0; i < 25; i++ {
		a.advanceWaypoint(TickDt)
	}
	if !a.Finished() {
		t.Error("expected finished after the last waypoint interval")
	}
}

func TestQueryVolume(t *testing.T) {
	a := NewSimulatedAgent(1, straightTrack(1, 0, 3, 0.7, 1.4), BaselineParameters(), agentTestConfig())
	p := a.params

	minR := a.Radius + p.MinimalDistance + a.cfg.ObstacleBuffer
	maxR := p.ConsiderationRange + a.Radius + p.MinimalDistance

	// Stopped: centre on the body, floor radius.
	centre, radius := a.queryVolume(0)
	if !vecAlmostEqual(centre, a.Position, 1e-12) {
		t.Errorf("stopped centre = %+v, want body position", centre)
	}
	if !almostEqual(radius, minR, 1e-12) {
		t.Errorf("stopped radius = %f, want floor %f", radius, minR)
	}

	// At desired speed: centre leads by the full consideration range.
	a.Velocity = Vec2{1.4, 0}
	centre, radius = a.queryVolume(1)
	wantCentre := a.Position.Add(Vec2{p.ConsiderationRange, 0})
	if !vecAlmostEqual(centre, wantCentre, 1e-9) {
		t.Errorf("moving centre = %+v, want %+v", centre, wantCentre)
	}
	if !almostEqual(radius, maxR, 1e-12) {
		t.Errorf("moving radius = %f, want cap %f", radius, maxR)
	}

	// Above desired speed the radius caps instead of growing.
	_, radius = a.queryVolume(2)
	if !almostEqual(radius, maxR, 1e-12) {
		t.Errorf("overspeed radius = %f, want cap %f", radius, maxR)
	}
}

func TestErrorSampler(t *testing.T) {
	var s ErrorSampler
	s.Record(4, 7, Vec2{0, 0}, Vec2{3, 4})

	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	got := s.Samples()[0]
	if got.AgentID != 4 || got.TimeIndex != 7 {
		t.Errorf("sample identity = (%d, %d), want (4, 7)", got.AgentID, got.TimeIndex)
	}
	if !almostEqual(got.Distance, 5, 1e-12) {
		t.Errorf("distance = %f, want 5", got.Distance)
	}

	// Samples returns a copy, not the backing array.
	s.Samples()[0].Distance = -1
	if s.Samples()[0].Distance != 5 {
		t.Error("mutating the returned slice leaked into the sampler")
	}
}
