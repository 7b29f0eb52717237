package sim

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Obstacle is one piece of static scene geometry. Obstacles never move;
// agents steer around them and are pushed out of them on contact.
type Obstacle interface {
	// ClosestPoint returns the point on the obstacle surface nearest to p.
	ClosestPoint(p Vec2) Vec2
	// Penetration reports how far a body circle at p with radius r
	// overlaps the obstacle. The normal points from the obstacle toward
	// the body and has unit length when ok is true.
	Penetration(p Vec2, r float64) (normal Vec2, depth float64, ok bool)
	// RayHit returns the distance along the ray from origin o in unit
	// direction d to the first obstacle intersection, or max when the
	// ray runs clear.
	RayHit(o, d Vec2, max float64) float64
}

// Segment is a static wall between two ground-plane points. Walls have
// no thickness; the body radius supplies the standoff.
type Segment struct {
	A Vec2
	B Vec2
}

// Circle is a static circular obstacle such as a pillar or bollard.
type Circle struct {
	Center Vec2
	Radius float64
}

// Scene holds the static geometry simulated agents steer around.
type Scene struct {
	Obstacles []Obstacle
}

type sceneSegmentJSON struct {
	X1 float64 `json:"x1"`
	Z1 float64 `json:"z1"`
	X2 float64 `json:"x2"`
	Z2 float64 `json:"z2"`
}

type sceneCircleJSON struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
	R float64 `json:"r"`
}

type sceneJSON struct {
	Segments []sceneSegmentJSON `json:"segments"`
	Circles  []sceneCircleJSON  `json:"circles"`
}

// LoadScene reads static scene geometry from a JSON file holding wall
// segments and circular obstacles.
func LoadScene(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}
	return ParseScene(data)
}

// ParseScene decodes scene geometry from JSON bytes.
func ParseScene(data []byte) (*Scene, error) {
	var raw sceneJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse scene JSON: %w", err)
	}

	scene := &Scene{}
	for i, s := range raw.Segments {
		a := Vec2{s.X1, s.Z1}
		b := Vec2{s.X2, s.Z2}
		if a.DistanceTo(b) < 1e-9 {
			return nil, fmt.Errorf("segment %d is degenerate: both endpoints at (%g, %g)", i, a.X, a.Z)
		}
		scene.Obstacles = append(scene.Obstacles, Segment{A: a, B: b})
	}
	for i, c := range raw.Circles {
		if c.R <= 0 {
			return nil, fmt.Errorf("circle %d has non-positive radius %g", i, c.R)
		}
		scene.Obstacles = append(scene.Obstacles, Circle{Center: Vec2{c.X, c.Z}, Radius: c.R})
	}
	return scene, nil
}

// cross2 returns the scalar cross product of two planar vectors.
func cross2(v, w Vec2) float64 { return v.X*w.Z - v.Z*w.X }

// ClosestPoint returns the nearest point on the wall to p.
func (s Segment) ClosestPoint(p Vec2) Vec2 {
	ab := s.B.Sub(s.A)
	t := p.Sub(s.A).Dot(ab) / ab.LengthSquared()
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return s.A.Add(ab.Scale(t))
}

// Penetration reports the overlap of a body circle with the wall.
func (s Segment) Penetration(p Vec2, r float64) (Vec2, float64, bool) {
	closest := s.ClosestPoint(p)
	delta := p.Sub(closest)
	dist := delta.Length()
	if dist >= r {
		return Vec2{}, 0, false
	}
	if dist < 1e-9 {
		// Body centre sits on the wall. Push out perpendicular to the
		// wall; the side is arbitrary but fixed so runs stay repeatable.
		return s.B.Sub(s.A).Perp().Normalized(), r, true
	}
	return delta.Scale(1 / dist), r - dist, true
}

// RayHit intersects a ray with the wall.
func (s Segment) RayHit(o, d Vec2, max float64) float64 {
	ab := s.B.Sub(s.A)
	denom := cross2(d, ab)
	if math.Abs(denom) < 1e-12 {
		return max
	}
	w := s.A.Sub(o)
	t := cross2(w, ab) / denom
	u := cross2(w, d) / denom
	if t < 0 || u < 0 || u > 1 || t > max {
		return max
	}
	return t
}

// ClosestPoint returns the nearest point on the circle surface to p.
func (c Circle) ClosestPoint(p Vec2) Vec2 {
	delta := p.Sub(c.Center)
	if delta.Length() < 1e-9 {
		return c.Center.Add(Vec2{c.Radius, 0})
	}
	return c.Center.Add(delta.Normalized().Scale(c.Radius))
}

// Penetration reports the overlap of a body circle with the obstacle.
func (c Circle) Penetration(p Vec2, r float64) (Vec2, float64, bool) {
	delta := p.Sub(c.Center)
	dist := delta.Length()
	overlap := c.Radius + r - dist
	if overlap <= 0 {
		return Vec2{}, 0, false
	}
	if dist < 1e-9 {
		return Vec2{1, 0}, overlap, true
	}
	return delta.Scale(1 / dist), overlap, true
}

// RayHit intersects a ray with the circle.
func (c Circle) RayHit(o, d Vec2, max float64) float64 {
	return rayCircle(o, d, c.Center, c.Radius, max)
}

// rayCircle returns the distance along a ray to a circle of radius r at
// centre, or max when the ray misses. An origin inside the circle hits
// at distance zero.
func rayCircle(o, d, centre Vec2, r, max float64) float64 {
	m := o.Sub(centre)
	b := m.Dot(d)
	c := m.LengthSquared() - r*r
	if c <= 0 {
		return 0
	}
	if b > 0 {
		return max
	}
	disc := b*b - c
	if disc < 0 {
		return max
	}
	t := -b - math.Sqrt(disc)
	if t < 0 || t > max {
		return max
	}
	return t
}
