package marcher

import (
	"github.com/chewxy/math32"

	"github.com/df07/go-terrain-marcher/pkg/core"
	"github.com/df07/go-terrain-marcher/pkg/terrain"
)

const (
	// DefaultMinStep is the step size below which a surface crossing is accepted
	DefaultMinStep float32 = 0.01
	// DefaultRefineSteps is the step budget granted to every refinement level
	DefaultRefineSteps = 32
)

// Hit is the result of a successful march
type Hit struct {
	Point    core.Vec3 // First sampled point found below the surface
	Normal   core.Vec3 // Estimated surface normal at Point
	StepSize float32   // Step size in effect when the crossing was accepted
	Depth    int       // Number of refinement levels taken
}

// Trace records how a march progressed, for diagnostics and tests
type Trace struct {
	StepSizes   []float32 // Step size of each level, starting with the initial step
	Evaluations int       // Number of height field evaluations
}

// Marcher steps rays through a height field
type Marcher struct {
	Field         terrain.HeightField
	MinStep       float32 // Refine while the step size is at least this large
	RefineSteps   int     // Step budget for each refinement level
	NormalEpsilon float32 // Finite-difference offset for hit normals
}

// New creates a marcher over the given field with default refinement settings
func New(field terrain.HeightField) *Marcher {
	return &Marcher{
		Field:         field,
		MinStep:       DefaultMinStep,
		RefineSteps:   DefaultRefineSteps,
		NormalEpsilon: terrain.DefaultNormalEpsilon,
	}
}

// WithoutRefinement makes the marcher report the first sampled point below the
// surface, without narrowing the crossing
func (m *Marcher) WithoutRefinement() *Marcher {
	m.MinStep = math32.Inf(1)
	return m
}

// March advances a point from origin along direction in steps of stepSize for at
// most maxSteps iterations. When the point drops below the surface and the step is
// still coarse, it backs up one step, halves the step size and continues with a
// fresh budget of RefineSteps. Once the step is finer than MinStep the crossing is
// reported. The boolean is false when the budget runs out without a crossing.
func (m *Marcher) March(origin, direction core.Vec3, maxSteps int, stepSize float32) (Hit, bool) {
	return m.march(origin, direction, maxSteps, stepSize, nil)
}

// Trace runs the same march as March and also reports the refinement history
func (m *Marcher) Trace(origin, direction core.Vec3, maxSteps int, stepSize float32) (Hit, bool, Trace) {
	trace := Trace{}
	hit, ok := m.march(origin, direction, maxSteps, stepSize, &trace)
	return hit, ok, trace
}

func (m *Marcher) march(origin, direction core.Vec3, maxSteps int, stepSize float32, trace *Trace) (Hit, bool) {
	dir := direction.Normalize()
	pos := origin
	dt := stepSize
	budget := maxSteps
	depth := 0

	if trace != nil {
		trace.StepSizes = append(trace.StepSizes, dt)
	}

	for i := 0; i < budget; i++ {
		if trace != nil {
			trace.Evaluations++
		}
		if pos.Z < m.Field(pos.X, pos.Y) {
			// dt shrinks geometrically, so a positive MinStep bounds the depth
			if m.MinStep > 0 && dt >= m.MinStep {
				pos = pos.Subtract(dir.Multiply(dt))
				dt /= 2
				budget = m.RefineSteps
				depth++
				i = -1
				if trace != nil {
					trace.StepSizes = append(trace.StepSizes, dt)
				}
				continue
			}
			return Hit{
				Point:    pos,
				Normal:   terrain.Normal(m.Field, pos.X, pos.Y, m.NormalEpsilon),
				StepSize: dt,
				Depth:    depth,
			}, true
		}
		pos = pos.Add(dir.Multiply(dt))
	}

	return Hit{}, false
}
