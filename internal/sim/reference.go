package sim

import "github.com/banshee-data/crowd.report/internal/trajectory"

// ReferenceAgent replays one recorded track by interpolation. It is
// pure playback: no forces, no collision, no deviation from the data.
// It doubles as the pacing source for error sampling, which happens on
// the ticks where playback snaps to the next recorded sample.
type ReferenceAgent struct {
	ID       int
	Position Vec2

	track    trajectory.Track
	index    int
	elapsed  float64
	interval float64
	snapped  bool
	finished bool
}

// NewReferenceAgent starts playback of track at its first sample.
// sampleInterval is the recording cadence in seconds.
func NewReferenceAgent(id int, track trajectory.Track, sampleInterval float64) *ReferenceAgent {
	r := &ReferenceAgent{
		ID:       id,
		Position: Vec2{track[0].X, track[0].Z},
		track:    track,
		interval: sampleInterval,
	}
	if len(track) == 1 {
		r.finished = true
	}
	return r
}

// Advance moves playback forward by dt seconds. Once the accumulated
// time reaches the sample interval the agent snaps to the next sample
// and the accumulator resets; between snaps the position interpolates
// linearly between the bracketing samples. Advancing a finished agent
// is a no-op.
func (r *ReferenceAgent) Advance(dt float64) {
	r.snapped = false
	if r.finished {
		return
	}

	r.elapsed += dt
	if r.elapsed >= r.interval-timeEps {
		r.elapsed = 0
		r.index++
		r.snapped = true
		r.Position = Vec2{r.track[r.index].X, r.track[r.index].Z}
		if r.index == len(r.track)-1 {
			r.finished = true
		}
		return
	}

	frac := r.elapsed / r.interval
	cur := Vec2{r.track[r.index].X, r.track[r.index].Z}
	next := Vec2{r.track[r.index+1].X, r.track[r.index+1].Z}
	r.Position = cur.Add(next.Sub(cur).Scale(frac))
}

// Snapped reports whether the last Advance crossed a sample boundary.
func (r *ReferenceAgent) Snapped() bool { return r.snapped }

// Finished reports whether the track is exhausted.
func (r *ReferenceAgent) Finished() bool { return r.finished }

// TimeIndex returns the time index of the current sample.
func (r *ReferenceAgent) TimeIndex() int { return r.track[r.index].TimeIndex }
