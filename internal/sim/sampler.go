package sim

// ErrorSample is one scored disagreement between a recorded pedestrian
// and its simulated twin, taken at a recorded sample time.
type ErrorSample struct {
	AgentID   int
	TimeIndex int
	Distance  float64 // planar separation (m)
	Reference Vec2    // recorded position
	Simulated Vec2    // simulated position at the same simulated time
}

// ErrorSampler accumulates distance samples over a run. The stream is
// append-only and ordered by (update order, time). Samples are taken
// when a pair's playback snaps to a recorded sample; the coincident
// spawn sample never produces one, so a pair's first entry is the
// index after its spawn.
type ErrorSampler struct {
	samples []ErrorSample
}

// Record appends one sample for a pair at the given time index.
func (s *ErrorSampler) Record(agentID, timeIndex int, ref, sim Vec2) {
	s.samples = append(s.samples, ErrorSample{
		AgentID:   agentID,
		TimeIndex: timeIndex,
		Distance:  ref.DistanceTo(sim),
		Reference: ref,
		Simulated: sim,
	})
}

// Samples returns the accumulated stream in recording order.
func (s *ErrorSampler) Samples() []ErrorSample {
	out := make([]ErrorSample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Len returns the number of recorded samples.
func (s *ErrorSampler) Len() int { return len(s.samples) }
