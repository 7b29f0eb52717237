package sim

import "fmt"

// ParamCount is the length of a calibration vector.
const ParamCount = 18

// Parameters is one candidate calibration vector for the social force
// model. Distances are metres, angles degrees, times seconds; force
// strengths are per unit mass. The set is read-only during a run: the
// caller owns it and every agent shares the same copy.
type Parameters struct {
	MinimalDistance        float64 `json:"minimalDistance"`        // Preferred clearance beyond body radius (m)
	RelaxationTime         float64 `json:"relaxationTime"`         // Driving-force time constant (s)
	RepulsionStrengthAgent float64 `json:"repulsionStrengthAgent"` // Far-field agent repulsion amplitude
	RepulsionRangeAgent    float64 `json:"repulsionRangeAgent"`    // Far-field agent repulsion decay length (m)
	LambdaAgent            float64 `json:"lambdaAgent"`            // Agent repulsion anisotropy (behind-to-front ratio)
	RepulsionStrengthObs   float64 `json:"repulsionStrengthObs"`   // Far-field obstacle repulsion amplitude
	RepulsionRangeObs      float64 `json:"repulsionRangeObs"`      // Far-field obstacle repulsion decay length (m)
	LambdaObs              float64 `json:"lambdaObs"`              // Obstacle repulsion anisotropy
	K                      float64 `json:"k"`                      // Agent contact body-force stiffness
	Kappa                  float64 `json:"kappa"`                  // Agent contact sliding-friction coefficient
	ObsK                   float64 `json:"obsK"`                   // Obstacle contact body-force stiffness
	ObsKappa               float64 `json:"obsKappa"`               // Obstacle contact sliding-friction coefficient
	ConsiderationRange     float64 `json:"considerationRange"`     // Neighborhood query reach (m)
	ViewAngle              float64 `json:"viewAngle"`              // Default visibility fan width (deg)
	ViewAngleMax           float64 `json:"viewAngleMax"`           // Widest visibility fan under the grown ray budget (deg)
	ViewDistance           float64 `json:"viewDistance"`           // Forward ray length (m)
	RayStepAngle           float64 `json:"rayStepAngle"`           // Angular spacing between fan rays (deg)
	VisibleFactor          float64 `json:"visibleFactor"`          // Range floor for the widest rays, as a fraction
}

// Bound is the inclusive valid interval for one parameter. Out-of-range
// values are clamped, never rejected: the calibration search must be
// able to score every vector it proposes.
type Bound struct {
	Min float64
	Max float64
}

// paramField ties one parameter to its canonical name, bounds, baseline
// and struct field. The table order fixes the vector layout used by
// ToSlice, FromSlice and the optimisation history columns.
type paramField struct {
	name     string
	bound    Bound
	baseline float64
	field    func(*Parameters) *float64
}

var paramTable = []paramField{
	{"minimalDistance", Bound{0.15, 0.35}, 0.2, func(p *Parameters) *float64 { return &p.MinimalDistance }},
	{"relaxationTime", Bound{0.3, 0.8}, 0.5, func(p *Parameters) *float64 { return &p.RelaxationTime }},
	{"repulsionStrengthAgent", Bound{0.8, 1.8}, 1.2, func(p *Parameters) *float64 { return &p.RepulsionStrengthAgent }},
	{"repulsionRangeAgent", Bound{3.0, 7.0}, 5.0, func(p *Parameters) *float64 { return &p.RepulsionRangeAgent }},
	{"lambdaAgent", Bound{0.2, 0.5}, 0.35, func(p *Parameters) *float64 { return &p.LambdaAgent }},
	{"repulsionStrengthObs", Bound{0.6, 1.5}, 1.0, func(p *Parameters) *float64 { return &p.RepulsionStrengthObs }},
	{"repulsionRangeObs", Bound{3.0, 7.0}, 5.0, func(p *Parameters) *float64 { return &p.RepulsionRangeObs }},
	{"lambdaObs", Bound{0.2, 0.5}, 0.35, func(p *Parameters) *float64 { return &p.LambdaObs }},
	{"k", Bound{5.0, 12.0}, 8.0, func(p *Parameters) *float64 { return &p.K }},
	{"kappa", Bound{3.0, 7.0}, 5.0, func(p *Parameters) *float64 { return &p.Kappa }},
	{"obsK", Bound{2.0, 4.5}, 3.0, func(p *Parameters) *float64 { return &p.ObsK }},
	{"obsKappa", Bound{0.0, 2.0}, 0.0, func(p *Parameters) *float64 { return &p.ObsKappa }},
	{"considerationRange", Bound{2.0, 4.0}, 2.5, func(p *Parameters) *float64 { return &p.ConsiderationRange }},
	{"viewAngle", Bound{120.0, 180.0}, 150.0, func(p *Parameters) *float64 { return &p.ViewAngle }},
	{"viewAngleMax", Bound{200.0, 270.0}, 240.0, func(p *Parameters) *float64 { return &p.ViewAngleMax }},
	{"viewDistance", Bound{3.0, 10.0}, 5.0, func(p *Parameters) *float64 { return &p.ViewDistance }},
	{"rayStepAngle", Bound{15.0, 45.0}, 30.0, func(p *Parameters) *float64 { return &p.RayStepAngle }},
	{"visibleFactor", Bound{0.5, 0.9}, 0.7, func(p *Parameters) *float64 { return &p.VisibleFactor }},
}

// ParamNames returns the canonical parameter names in vector order.
func ParamNames() []string {
	names := make([]string, len(paramTable))
	for i, f := range paramTable {
		names[i] = f.name
	}
	return names
}

// ParamBounds returns the valid interval for every parameter, keyed by
// canonical name.
func ParamBounds() map[string]Bound {
	bounds := make(map[string]Bound, len(paramTable))
	for _, f := range paramTable {
		bounds[f.name] = f.bound
	}
	return bounds
}

// BaselineParameters returns the hand-tuned defaults the calibration
// search starts from.
func BaselineParameters() Parameters {
	var p Parameters
	for _, f := range paramTable {
		*f.field(&p) = f.baseline
	}
	return p
}

// Clamp returns a copy of p with every out-of-bounds value pulled to
// the nearest bound, along with the names of the parameters that were
// adjusted. An empty second return means p was already valid.
func (p Parameters) Clamp() (Parameters, []string) {
	var clamped []string
	for _, f := range paramTable {
		v := f.field(&p)
		switch {
		case *v < f.bound.Min:
			*v = f.bound.Min
			clamped = append(clamped, f.name)
		case *v > f.bound.Max:
			*v = f.bound.Max
			clamped = append(clamped, f.name)
		}
	}
	return p, clamped
}

// ToSlice returns the parameter values in canonical vector order.
func (p Parameters) ToSlice() []float64 {
	values := make([]float64, len(paramTable))
	for i, f := range paramTable {
		values[i] = *f.field(&p)
	}
	return values
}

// ParamsFromSlice builds a Parameters from a vector in canonical order.
func ParamsFromSlice(values []float64) (Parameters, error) {
	var p Parameters
	if len(values) != ParamCount {
		return p, fmt.Errorf("parameter vector has %d values, want %d", len(values), ParamCount)
	}
	for i, f := range paramTable {
		*f.field(&p) = values[i]
	}
	return p, nil
}
