package sim

import (
	"math"

	"github.com/banshee-data/crowd.report/internal/units"
)

// Ray budget hysteresis thresholds, as fractions of the forward view
// distance. The gap between them keeps the budget from oscillating at
// a single clearance value.
const (
	rayGrowBelow   = 0.35
	rayShrinkAbove = 0.70
)

// defaultRayCount is the resting fan size: enough rays to tile the
// default view angle at the configured step, forced odd so the fan
// stays symmetric around the forward ray.
func defaultRayCount(p *Parameters) int {
	return oddRayCount(p.ViewAngle, p.RayStepAngle)
}

// maxRayCount caps the grown fan at the wide view angle.
func maxRayCount(p *Parameters) int {
	return oddRayCount(p.ViewAngleMax, p.RayStepAngle)
}

func oddRayCount(viewAngle, step float64) int {
	n := int(math.Ceil(viewAngle / step))
	if n%2 == 0 {
		n++
	}
	return n
}

// nextRayCount applies the adaptive ray budget rule. Tight spaces,
// where the best clearance is short relative to the view distance, get
// two more rays; open ones give two back. The count stays odd between
// the default and the maximum.
func nextRayCount(current int, bestClear, viewDistance float64, def, max int) int {
	switch {
	case bestClear < rayGrowBelow*viewDistance:
		current += 2
	case bestClear > rayShrinkAbove*viewDistance:
		current -= 2
	}
	if current > max {
		current = max
	}
	if current < def {
		current = def
	}
	return current
}

type fanResult struct {
	dir   Vec2
	clear float64
}

// refreshHeading re-evaluates the visibility fan around the straight
// line to the current waypoint and stores the most open direction,
// then adapts the ray budget to the clearance it found.
func (a *SimulatedAgent) refreshHeading(w *World) {
	base := a.waypoint().Sub(a.Position).Normalized()
	if base.IsZero() {
		// Sitting exactly on the waypoint; hold the previous heading.
		return
	}

	best := a.castFan(w, base)
	a.heading = best.dir
	a.rayCount = nextRayCount(a.rayCount, best.clear, a.params.ViewDistance,
		defaultRayCount(&a.params), maxRayCount(&a.params))
}

// castFan casts the forward ray plus symmetric pairs at increasing
// angular offsets and returns the direction with the greatest
// unobstructed distance. Candidates run centre-out, and a wider one
// must beat the incumbent by clearEps, so ties resolve toward the
// straight line to the waypoint.
func (a *SimulatedAgent) castFan(w *World, base Vec2) fanResult {
	p := &a.params
	step := units.DegToRad(p.RayStepAngle)
	halfMax := units.DegToRad(p.ViewAngleMax) / 2

	best := fanResult{dir: base, clear: -1}
	side := (a.rayCount - 1) / 2
	for k := 0; k <= side; k++ {
		for _, sign := range [2]float64{1, -1} {
			if k == 0 && sign < 0 {
				continue
			}
			angle := sign * float64(k) * step
			dir := base.Rotated(angle)
			rng := a.effectiveRange(math.Abs(angle), halfMax)
			clear := a.castWithShoulders(w, dir, rng)
			if clear > best.clear+clearEps {
				best = fanResult{dir: dir, clear: clear}
			}
		}
	}
	return best
}

// effectiveRange shrinks ray length linearly with angular offset, down
// to VisibleFactor of the forward distance at the widest possible ray.
// A wide turn has to look genuinely clearer than straight ahead to
// win.
func (a *SimulatedAgent) effectiveRange(absAngle, halfMax float64) float64 {
	p := &a.params
	if halfMax < 1e-9 {
		return p.ViewDistance
	}
	frac := absAngle / halfMax
	if frac > 1 {
		frac = 1
	}
	return p.ViewDistance * (1 - (1-p.VisibleFactor)*frac)
}

// castWithShoulders casts the candidate ray plus two shoulder rays per
// side, laterally offset by half and a full body radius. The candidate
// scores the worst of the five, so a gap narrower than the body cannot
// win on its centre line alone.
func (a *SimulatedAgent) castWithShoulders(w *World, dir Vec2, rng float64) float64 {
	lateral := dir.Perp()
	clear := w.Raycast(a.Position, dir, rng, a.ID)
	for _, off := range [4]float64{-1, -0.5, 0.5, 1} {
		origin := a.Position.Add(lateral.Scale(off * a.Radius))
		if c := w.Raycast(origin, dir, rng, a.ID); c < clear {
			clear = c
		}
	}
	return clear
}
