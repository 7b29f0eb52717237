package sim

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func vecAlmostEqual(a, b Vec2, tol float64) bool {
	return almostEqual(a.X, b.X, tol) && almostEqual(a.Z, b.Z, tol)
}

func TestVec2_Arithmetic(t *testing.T) {
	a := Vec2{3, 4}
	b := Vec2{1, -2}

	if got := a.Add(b); got != (Vec2{4, 2}) {
		t.Errorf("Add = %+v, want {4 2}", got)
	}
	if got := a.Sub(b); got != (Vec2{2, 6}) {
		t.Errorf("Sub = %+v, want {2 6}", got)
	}
	if got := a.Scale(2); got != (Vec2{6, 8}) {
		t.Errorf("Scale = %+v, want {6 8}", got)
	}
	if got := a.Dot(b); got != -5 {
		t.Errorf("Dot = %f, want -5", got)
	}
	if got := a.Length(); got != 5 {
		t.Errorf("Length = %f, want 5", got)
	}
	if got := a.DistanceTo(Vec2{3, 9}); got != 5 {
		t.Errorf("DistanceTo = %f, want 5", got)
	}
}

func TestVec2_Normalized(t *testing.T) {
	n := Vec2{3, 4}.Normalized()
	if !vecAlmostEqual(n, Vec2{0.6, 0.8}, 1e-12) {
		t.Errorf("Normalized = %+v, want {0.6 0.8}", n)
	}
	if got := (Vec2{}).Normalized(); !got.IsZero() {
		t.Errorf("Normalized of zero = %+v, want zero", got)
	}
}

func TestVec2_Perp(t *testing.T) {
	p := Vec2{1, 0}.Perp()
	if p != (Vec2{0, 1}) {
		t.Errorf("Perp = %+v, want {0 1}", p)
	}
	if got := p.Dot(Vec2{1, 0}); got != 0 {
		t.Errorf("Perp not orthogonal: dot = %f", got)
	}
}

func TestVec2_Rotated(t *testing.T) {
	tests := []struct {
		name  string
		v     Vec2
		angle float64
		want  Vec2
	}{
		{"quarter turn", Vec2{1, 0}, math.Pi / 2, Vec2{0, 1}},
		{"half turn", Vec2{1, 0}, math.Pi, Vec2{-1, 0}},
		{"negative quarter", Vec2{0, 1}, -math.Pi / 2, Vec2{1, 0}},
		{"sixty degrees", Vec2{1, 0}, math.Pi / 3, Vec2{0.5, math.Sqrt(3) / 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.v.Rotated(tt.angle)
			if !vecAlmostEqual(got, tt.want, 1e-12) {
				t.Errorf("Rotated(%f) = %+v, want %+v", tt.angle, got, tt.want)
			}
		})
	}
}
