package sim

import (
	"math"

	"github.com/banshee-data/crowd.report/internal/trajectory"
)

// Fixed model constants. These are deliberately not calibration
// parameters, so the search space stays at 18 dimensions.
const (
	// agentMass is the unit body mass; force strengths are tuned per
	// unit mass.
	agentMass = 1.0
	// maxSpeed is the velocity ceiling. A tick that produces more than
	// this is treated as numerically unstable and rescaled to the
	// desired speed. The ceiling is a fixed constant, not a multiple
	// of desired speed, so scenarios faster than it clamp below their
	// own target.
	maxSpeed = 4.0
	// timeEps absorbs float drift when accumulating tick time against
	// the sample interval.
	timeEps = 1e-9
	// clearEps is the clearance margin a wider candidate must win by
	// before it displaces a straighter one.
	clearEps = 1e-9
)

// AgentConfig carries the fixed per-run settings shared by every
// simulated agent, as opposed to the calibrated Parameters.
type AgentConfig struct {
	Radius         float64 // body radius (m)
	SampleInterval float64 // recording cadence (s)
	HeadingRefresh float64 // seconds between visibility evaluations
	ObstacleBuffer float64 // extra standoff in the minimum query radius (m)
}

// SimulatedAgent is the force-model twin of one recorded pedestrian.
// Each tick it steers toward the next recorded waypoint along a
// visibility-selected heading, accumulates social forces, integrates,
// and resolves any residual overlap.
type SimulatedAgent struct {
	ID       int
	Radius   float64
	Position Vec2
	Velocity Vec2

	params Parameters
	cfg    AgentConfig
	track  trajectory.Track

	targetIndex  int     // track index of the current waypoint
	desiredSpeed float64 // recorded speed at the current waypoint
	elapsed      float64 // waypoint accumulator, mirrors reference snapping

	heading    Vec2    // last selected steering direction, unit length
	headingAge float64 // seconds since the heading was evaluated
	rayCount   int     // adaptive visibility ray budget

	buf        QueryBuffer
	clampCount int
	finished   bool
}

// NewSimulatedAgent spawns the force-model twin for track at the
// track's first recorded position. params must already be clamped.
func NewSimulatedAgent(id int, track trajectory.Track, params Parameters, cfg AgentConfig) *SimulatedAgent {
	a := &SimulatedAgent{
		ID:       id,
		Radius:   cfg.Radius,
		Position: Vec2{track[0].X, track[0].Z},
		params:   params,
		cfg:      cfg,
		track:    track,
		rayCount: defaultRayCount(&params),
		// Force a visibility evaluation on the first tick.
		headingAge: cfg.HeadingRefresh,
	}
	if len(track) == 1 {
		a.desiredSpeed = track[0].Speed
		a.finished = true
		return a
	}
	a.targetIndex = 1
	a.desiredSpeed = track[1].Speed
	a.heading = a.waypoint().Sub(a.Position).Normalized()
	return a
}

// waypoint returns the current target position.
func (a *SimulatedAgent) waypoint() Vec2 {
	s := a.track[a.targetIndex]
	return Vec2{s.X, s.Z}
}

// Finished reports whether the track is exhausted.
func (a *SimulatedAgent) Finished() bool { return a.finished }

// Heading returns the current steering direction.
func (a *SimulatedAgent) Heading() Vec2 { return a.heading }

// ClampCount returns how many ticks engaged the velocity ceiling.
func (a *SimulatedAgent) ClampCount() int { return a.clampCount }

// Step advances the agent by one fixed timestep. No error escapes a
// tick: unstable parameter vectors degrade through the velocity clamp
// so a calibration batch can always score them.
func (a *SimulatedAgent) Step(dt float64, w *World) {
	if a.finished {
		return
	}

	prePos := a.Position

	// Step 1: speed-adaptive neighborhood query. Faster agents look
	// farther ahead; a stopped agent checks only its immediate
	// surroundings, which also damps force instability near zero
	// speed.
	sf := speedFactor(a.Velocity.Length(), a.desiredSpeed)
	centre, radius := a.queryVolume(sf)
	w.Nearby(centre, radius, a.ID, &a.buf)

	// Step 2: re-evaluate the steering heading on its own cadence;
	// raycasts are too dear to refresh every tick.
	a.headingAge += dt
	if a.headingAge >= a.cfg.HeadingRefresh-timeEps {
		a.headingAge = 0
		a.refreshHeading(w)
	}

	// Steps 3-5: driving force plus social repulsion.
	force := a.drivingForce(sf)
	force = force.Add(a.agentRepulsion())
	force = force.Add(a.obstacleRepulsion())

	// Step 6: Euler integration. The vertical axis is held fixed.
	a.Velocity = a.Velocity.Add(force.Scale(dt / agentMass))
	a.Position = a.Position.Add(a.Velocity.Scale(dt))

	// Step 7: resolve residual overlap, then fold the correction back
	// into velocity. Without this feedback a blocked agent re-collides
	// with the same obstacle forever because its velocity never learns
	// it was stopped.
	a.resolveOverlaps(w)
	a.Velocity = a.Position.Sub(prePos).Scale(1 / dt)

	// Step 8: velocity ceiling.
	if a.Velocity.Length() > maxSpeed {
		a.Velocity = a.Velocity.Normalized().Scale(a.desiredSpeed)
		a.clampCount++
	}

	// Step 9: advance the waypoint on the reference cadence.
	a.advanceWaypoint(dt)
}

// speedFactor is current speed over desired speed, zero when the
// recorded target speed vanishes.
func speedFactor(speed, desired float64) float64 {
	if desired < 1e-6 {
		return 0
	}
	return speed / desired
}

// queryVolume derives the neighborhood query centre and radius from
// the speed factor. The centre leads the agent along its motion, the
// radius scales with speed between a contact-sized floor and the full
// consideration range.
func (a *SimulatedAgent) queryVolume(sf float64) (Vec2, float64) {
	p := &a.params

	centre := a.Position
	ahead := math.Min(p.ConsiderationRange, p.ConsiderationRange*sf)
	if ahead > 0 {
		if dir := a.Velocity.Normalized(); !dir.IsZero() {
			centre = centre.Add(dir.Scale(ahead))
		}
	}

	minR := a.Radius + p.MinimalDistance + a.cfg.ObstacleBuffer
	maxR := p.ConsiderationRange + a.Radius + p.MinimalDistance
	radius := maxR * sf
	if radius < minR {
		radius = minR
	} else if radius > maxR {
		radius = maxR
	}
	return centre, radius
}

// drivingForce pulls velocity toward the desired speed along the
// selected heading. The flexible factor pushes harder below desired
// speed and fades to nothing at twice it.
func (a *SimulatedAgent) drivingForce(sf float64) Vec2 {
	flexible := 2 - sf
	if flexible < 0 {
		flexible = 0
	}
	desired := a.heading.Scale(a.desiredSpeed)
	return desired.Sub(a.Velocity).Scale(agentMass * flexible / a.params.RelaxationTime)
}

// anisotropy weights repulsion by where the threat sits relative to
// travel: full force dead ahead, lambda of it directly behind.
func anisotropy(heading, toThreat Vec2, lambda float64) float64 {
	if heading.IsZero() {
		return 1
	}
	cos := heading.Dot(toThreat)
	return lambda + (1-lambda)*(1+cos)/2
}

// agentRepulsion sums avoidance forces from the queried neighbors.
// Outside contact the force decays exponentially with the surface gap
// and is weighted down behind the agent; once the gap closes below the
// minimal distance it switches to a linear body force plus sliding
// friction. A purely exponential force diverges at near-zero
// separation, which is why the contact regime is linear.
func (a *SimulatedAgent) agentRepulsion() Vec2 {
	p := &a.params
	heading := a.Velocity.Normalized()

	var total Vec2
	for _, n := range a.buf.Agents {
		delta := a.Position.Sub(n.Position)
		dist := delta.Length()
		if dist < 1e-9 {
			// Coincident centres are left to penetration correction.
			continue
		}
		normal := delta.Scale(1 / dist)
		contact := a.Radius + n.Radius + p.MinimalDistance

		if gap := dist - contact; gap >= 0 {
			if gap > p.RepulsionRangeAgent {
				continue
			}
			weight := anisotropy(heading, normal.Scale(-1), p.LambdaAgent)
			mag := p.RepulsionStrengthAgent * math.Exp(-gap/p.RepulsionRangeAgent)
			total = total.Add(normal.Scale(mag * weight))
			continue
		}

		depth := contact - dist
		total = total.Add(normal.Scale(p.K * depth))
		tangent := normal.Perp()
		slide := n.Velocity.Sub(a.Velocity).Dot(tangent)
		total = total.Add(tangent.Scale(p.Kappa * depth * slide))
	}
	return total
}

// obstacleRepulsion mirrors agentRepulsion against the nearest point
// of each queried obstacle, with the obstacle parameter set. Obstacle
// avoidance is empirically shorter range and less anisotropic than
// agent avoidance, so the two sets stay independent.
func (a *SimulatedAgent) obstacleRepulsion() Vec2 {
	p := &a.params
	heading := a.Velocity.Normalized()
	contact := a.Radius + p.MinimalDistance

	var total Vec2
	for _, o := range a.buf.Obstacles {
		if normal, depth, ok := o.Penetration(a.Position, contact); ok {
			total = total.Add(normal.Scale(p.ObsK * depth))
			tangent := normal.Perp()
			slide := a.Velocity.Scale(-1).Dot(tangent)
			total = total.Add(tangent.Scale(p.ObsKappa * depth * slide))
			continue
		}

		closest := o.ClosestPoint(a.Position)
		delta := a.Position.Sub(closest)
		dist := delta.Length()
		if dist < 1e-9 {
			continue
		}
		gap := dist - contact
		if gap > p.RepulsionRangeObs {
			continue
		}
		normal := delta.Scale(1 / dist)
		weight := anisotropy(heading, normal.Scale(-1), p.LambdaObs)
		mag := p.RepulsionStrengthObs * math.Exp(-gap/p.RepulsionRangeObs)
		total = total.Add(normal.Scale(mag * weight))
	}
	return total
}

// resolveOverlaps separates the agent from anything it still
// interpenetrates after integration. Agent pairs split the correction
// evenly, so the outcome does not depend on which of the two resolves
// first; obstacles are immovable and the agent takes the full push.
func (a *SimulatedAgent) resolveOverlaps(w *World) {
	for _, n := range a.buf.Agents {
		normal, depth, ok := AgentPenetration(a, n)
		if !ok {
			continue
		}
		half := normal.Scale(depth / 2)
		a.Position = a.Position.Add(half)
		n.Position = n.Position.Sub(half)
	}
	for _, o := range a.buf.Obstacles {
		normal, depth, ok := o.Penetration(a.Position, a.Radius)
		if !ok {
			continue
		}
		a.Position = a.Position.Add(normal.Scale(depth))
	}
}

// advanceWaypoint mirrors the reference playback cadence exactly, so
// the pair always steers toward, and is scored against, the same
// recorded sample.
func (a *SimulatedAgent) advanceWaypoint(dt float64) {
	a.elapsed += dt
	if a.elapsed < a.cfg.SampleInterval-timeEps {
		return
	}
	a.elapsed = 0
	if a.targetIndex >= len(a.track)-1 {
		a.finished = true
		return
	}
	a.targetIndex++
	a.desiredSpeed = a.track[a.targetIndex].Speed
}
