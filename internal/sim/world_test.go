package sim

import (
	"fmt"
	"testing"
)

func TestWorld_Nearby(t *testing.T) {
	scene := &Scene{Obstacles: []Obstacle{
		Segment{A: Vec2{2, -1}, B: Vec2{2, 1}},
		Segment{A: Vec2{50, -1}, B: Vec2{50, 1}},
	}}
	agents := []*SimulatedAgent{
		{ID: 1, Radius: 0.25, Position: Vec2{0, 0}},
		{ID: 2, Radius: 0.25, Position: Vec2{1, 0}},
		{ID: 3, Radius: 0.25, Position: Vec2{2.5, 0}},
		{ID: 4, Radius: 0.25, Position: Vec2{10, 10}},
	}
	w := NewWorld(scene, 2.0)
	w.Rebuild(agents)

	var buf QueryBuffer
	w.Nearby(Vec2{0, 0}, 3, 1, &buf)

	if len(buf.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(buf.Agents))
	}
	if buf.Agents[0].ID != 2 || buf.Agents[1].ID != 3 {
		t.Errorf("agent ids = [%d %d], want [2 3]", buf.Agents[0].ID, buf.Agents[1].ID)
	}
	if len(buf.Obstacles) != 1 {
		t.Fatalf("expected 1 obstacle, got %d", len(buf.Obstacles))
	}
}

func TestWorld_Nearby_ReusesBuffer(t *testing.T) {
	agents := []*SimulatedAgent{
		{ID: 1, Radius: 0.25, Position: Vec2{0, 0}},
		{ID: 2, Radius: 0.25, Position: Vec2{0.5, 0}},
	}
	w := NewWorld(nil, 2.0)
	w.Rebuild(agents)

	var buf QueryBuffer
	w.Nearby(Vec2{0, 0}, 2, 1, &buf)
	if len(buf.Agents) != 1 {
		t.Fatalf("first query: expected 1 agent, got %d", len(buf.Agents))
	}
	// A second query from far away must not retain earlier results.
	w.Nearby(Vec2{100, 100}, 2, 1, &buf)
	if len(buf.Agents) != 0 {
		t.Errorf("second query: expected 0 agents, got %d", len(buf.Agents))
	}
}

func TestWorld_Nearby_CapsResults(t *testing.T) {
	var agents []*SimulatedAgent
	for i := 0; i < MaxQueryNeighbors+8; i++ {
		agents = append(agents, &SimulatedAgent{
			ID:       i + 1,
			Radius:   0.25,
			Position: Vec2{float64(i) * 0.05, 0},
		})
	}
	w := NewWorld(nil, 2.0)
	w.Rebuild(agents)

	var buf QueryBuffer
	w.Nearby(Vec2{0, 0}, 5, 0, &buf)
	if len(buf.Agents) != MaxQueryNeighbors {
		t.Errorf("expected cap at %d agents, got %d", MaxQueryNeighbors, len(buf.Agents))
	}
}

func TestWorld_Nearby_Deterministic(t *testing.T) {
	var agents []*SimulatedAgent
	for i := 0; i < 12; i++ {
		agents = append(agents, &SimulatedAgent{
			ID:       i + 1,
			Radius:   0.25,
			Position: Vec2{float64(i%4) * 1.5, float64(i/4) * 1.5},
		})
	}
	w := NewWorld(nil, 2.0)
	w.Rebuild(agents)

	var first QueryBuffer
	w.Nearby(Vec2{2, 2}, 4, 0, &first)
	want := fmt.Sprint(idsOf(first.Agents))

	for run := 0; run < 5; run++ {
		w.Rebuild(agents)
		var buf QueryBuffer
		w.Nearby(Vec2{2, 2}, 4, 0, &buf)
		if got := fmt.Sprint(idsOf(buf.Agents)); got != want {
			t.Fatalf("run %d: order %s, want %s", run, got, want)
		}
	}
}

func idsOf(agents []*SimulatedAgent) []int {
	ids := make([]int, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	return ids
}

func TestWorld_Raycast(t *testing.T) {
	scene := &Scene{Obstacles: []Obstacle{
		Segment{A: Vec2{3, -1}, B: Vec2{3, 1}},
	}}
	agents := []*SimulatedAgent{
		{ID: 7, Radius: 0.25, Position: Vec2{1.5, 0}},
	}
	w := NewWorld(scene, 2.0)
	w.Rebuild(agents)

	// Nearest blocker is the agent body at x=1.5 minus its radius.
	if got := w.Raycast(Vec2{0, 0}, Vec2{1, 0}, 10, 0); !almostEqual(got, 1.25, 1e-9) {
		t.Errorf("hit agent: got %f, want 1.25", got)
	}
	// Excluding the agent leaves the wall.
	if got := w.Raycast(Vec2{0, 0}, Vec2{1, 0}, 10, 7); !almostEqual(got, 3, 1e-9) {
		t.Errorf("hit wall: got %f, want 3", got)
	}
	if got := w.Raycast(Vec2{0, 0}, Vec2{0, -1}, 10, 0); got != 10 {
		t.Errorf("clear ray: got %f, want 10", got)
	}
}

func TestAgentPenetration(t *testing.T) {
	a := &SimulatedAgent{ID: 1, Radius: 0.25, Position: Vec2{0.3, 0}}
	b := &SimulatedAgent{ID: 2, Radius: 0.25, Position: Vec2{0, 0}}

	normal, depth, ok := AgentPenetration(a, b)
	if !ok {
		t.Fatal("expected overlap")
	}
	if !almostEqual(depth, 0.2, 1e-12) {
		t.Errorf("depth = %f, want 0.2", depth)
	}
	if !vecAlmostEqual(normal, Vec2{1, 0}, 1e-12) {
		t.Errorf("normal = %+v, want {1 0}", normal)
	}

	a.Position = Vec2{1, 0}
	if _, _, ok := AgentPenetration(a, b); ok {
		t.Error("expected no overlap at distance 1")
	}

	// Coincident centres still produce a usable unit push direction.
	a.Position = Vec2{0, 0}
	normal, depth, ok = AgentPenetration(a, b)
	if !ok || !almostEqual(depth, 0.5, 1e-12) {
		t.Errorf("coincident overlap = (%f, %v), want (0.5, true)", depth, ok)
	}
	if !almostEqual(normal.Length(), 1, 1e-12) {
		t.Errorf("coincident normal length = %f, want 1", normal.Length())
	}
}
