package sim

import "math"

// MaxQueryNeighbors bounds how many agents or obstacles one
// neighborhood query can return. Overflow is dropped in grid scan
// order.
const MaxQueryNeighbors = 32

// QueryBuffer is per-agent reusable storage for neighborhood query
// results. Each agent owns one, so queries never share result memory
// and the tick path allocates nothing once warm.
type QueryBuffer struct {
	Agents    []*SimulatedAgent
	Obstacles []Obstacle
}

// World answers the three spatial queries the steering core consumes:
// bounded sphere overlap, pairwise penetration and raycasts. Live
// agents are indexed in a uniform grid rebuilt once per tick; scene
// obstacles are few per scene and checked analytically.
type World struct {
	cellSize  float64
	obstacles []Obstacle
	agents    []*SimulatedAgent
	grid      map[int64][]*SimulatedAgent
}

// NewWorld creates a World over the given scene. cellSize is the grid
// pitch in metres and should sit near the typical query radius.
func NewWorld(scene *Scene, cellSize float64) *World {
	if cellSize <= 0 {
		cellSize = 2.0
	}
	w := &World{
		cellSize: cellSize,
		grid:     make(map[int64][]*SimulatedAgent),
	}
	if scene != nil {
		w.obstacles = scene.Obstacles
	}
	return w
}

// cellKey maps signed grid cell coordinates to a single map key using
// zigzag encoding and Szudzik's pairing function.
func cellKey(cx, cz int64) int64 {
	var a, b int64
	if cx >= 0 {
		a = 2 * cx
	} else {
		a = -2*cx - 1
	}
	if cz >= 0 {
		b = 2 * cz
	} else {
		b = -2*cz - 1
	}
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

func (w *World) cellOf(p Vec2) (int64, int64) {
	return int64(math.Floor(p.X / w.cellSize)), int64(math.Floor(p.Z / w.cellSize))
}

// Rebuild re-indexes the live agents at their current positions. The
// engine calls this once at the start of every tick. An agent moves
// well under one cell per tick, so mid-tick queries against the index
// stay within the one-cell pad used by Nearby.
func (w *World) Rebuild(agents []*SimulatedAgent) {
	w.agents = agents
	w.grid = make(map[int64][]*SimulatedAgent, len(agents))
	for _, a := range agents {
		key := cellKey(w.cellOf(a.Position))
		w.grid[key] = append(w.grid[key], a)
	}
}

// Nearby collects agents and obstacles within radius of centre into
// buf, skipping the agent with excludeID. Distance checks use current
// agent positions, so under the sequential update policy a query sees
// neighbors that already moved this tick. Cell coordinates are scanned
// in fixed order and results are capped at MaxQueryNeighbors, keeping
// query output deterministic.
func (w *World) Nearby(centre Vec2, radius float64, excludeID int, buf *QueryBuffer) {
	buf.Agents = buf.Agents[:0]
	buf.Obstacles = buf.Obstacles[:0]

	r2 := radius * radius
	ccx, ccz := w.cellOf(centre)
	span := int64(math.Ceil(radius/w.cellSize)) + 1

scan:
	for cx := ccx - span; cx <= ccx+span; cx++ {
		for cz := ccz - span; cz <= ccz+span; cz++ {
			for _, a := range w.grid[cellKey(cx, cz)] {
				if a.ID == excludeID {
					continue
				}
				if a.Position.Sub(centre).LengthSquared() > r2 {
					continue
				}
				buf.Agents = append(buf.Agents, a)
				if len(buf.Agents) == MaxQueryNeighbors {
					break scan
				}
			}
		}
	}

	for _, o := range w.obstacles {
		if centre.DistanceTo(o.ClosestPoint(centre)) > radius {
			continue
		}
		buf.Obstacles = append(buf.Obstacles, o)
		if len(buf.Obstacles) == MaxQueryNeighbors {
			break
		}
	}
}

// Raycast returns the distance from origin along the unit direction dir
// to the nearest obstacle or agent body, or maxDist when the path runs
// clear. The agent with excludeID is ignored.
func (w *World) Raycast(origin, dir Vec2, maxDist float64, excludeID int) float64 {
	best := maxDist
	for _, o := range w.obstacles {
		if t := o.RayHit(origin, dir, best); t < best {
			best = t
		}
	}
	for _, a := range w.agents {
		if a.ID == excludeID {
			continue
		}
		if t := rayCircle(origin, dir, a.Position, a.Radius, best); t < best {
			best = t
		}
	}
	return best
}

// AgentPenetration reports the overlap between two agent bodies. The
// normal points from b toward a and has unit length when ok is true.
func AgentPenetration(a, b *SimulatedAgent) (Vec2, float64, bool) {
	delta := a.Position.Sub(b.Position)
	dist := delta.Length()
	overlap := a.Radius + b.Radius - dist
	if overlap <= 0 {
		return Vec2{}, 0, false
	}
	if dist < 1e-9 {
		// Coincident centres; the push direction is arbitrary but
		// fixed so runs stay repeatable.
		return Vec2{X: 1}, overlap, true
	}
	return delta.Scale(1 / dist), overlap, true
}
