// Package sim owns the force-based pedestrian steering core.
//
// Responsibilities: trajectory playback for reference agents, social-force
// integration for simulated agents, the fixed-timestep spawner/clock that
// drives both, and per-sample error measurement between paired agents.
// Key types: Engine, Parameters, SimulatedAgent, ReferenceAgent, World.
//
// Update policy: agents advance sequentially within a tick, in spawn order
// with ties broken by ascending agent id, so later agents observe the
// already-updated positions of earlier ones. The whole tick loop is
// single-threaded; for a given dataset and parameter vector the produced
// error stream is bit-for-bit reproducible.
//
// No SQL/database code is allowed in this package.
package sim
