package sim

import "math"

// Vec2 is a position or direction on the ground plane. The world is
// planar: X and Z span the floor and the vertical axis is held fixed,
// so all force and distance math happens in two components.
type Vec2 struct {
	X float64
	Z float64
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Z + o.Z} }

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Z - o.Z} }

// Scale returns v scaled by s.
func (v Vec2) Scale(s float64) Vec2 { return Vec2{v.X * s, v.Z * s} }

// Dot returns the dot product of v and o.
func (v Vec2) Dot(o Vec2) float64 { return v.X*o.X + v.Z*o.Z }

// LengthSquared returns the squared magnitude of v.
func (v Vec2) LengthSquared() float64 { return v.X*v.X + v.Z*v.Z }

// Length returns the magnitude of v.
func (v Vec2) Length() float64 { return math.Sqrt(v.X*v.X + v.Z*v.Z) }

// DistanceTo returns the Euclidean distance between v and o.
func (v Vec2) DistanceTo(o Vec2) float64 {
	dx := v.X - o.X
	dz := v.Z - o.Z
	return math.Sqrt(dx*dx + dz*dz)
}

// Normalized returns v scaled to unit length. The zero vector maps to
// the zero vector rather than NaN so callers can skip the length check.
func (v Vec2) Normalized() Vec2 {
	l := v.Length()
	if l < 1e-12 {
		return Vec2{}
	}
	return Vec2{v.X / l, v.Z / l}
}

// Perp returns v rotated a quarter turn counter-clockwise.
func (v Vec2) Perp() Vec2 { return Vec2{-v.Z, v.X} }

// Rotated returns v rotated by angle radians counter-clockwise.
func (v Vec2) Rotated(angle float64) Vec2 {
	sin, cos := math.Sincos(angle)
	return Vec2{
		X: v.X*cos - v.Z*sin,
		Z: v.X*sin + v.Z*cos,
	}
}

// IsZero reports whether both components are exactly zero.
func (v Vec2) IsZero() bool { return v.X == 0 && v.Z == 0 }
