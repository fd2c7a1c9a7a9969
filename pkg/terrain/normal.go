package terrain

import "github.com/df07/go-terrain-marcher/pkg/core"

// DefaultNormalEpsilon is the finite-difference offset used for surface normals
const DefaultNormalEpsilon float32 = 0.001

// Normal estimates the unit surface normal of the field at (x, y) using forward
// differences along X and Y. Nearly flat regions give a direction sensitive to eps.
func Normal(field HeightField, x, y, eps float32) core.Vec3 {
	root := core.NewVec3(x, y, field(x, y))
	a := core.NewVec3(x+eps, y, field(x+eps, y))
	b := core.NewVec3(x, y+eps, field(x, y+eps))
	return a.Subtract(root).Cross(b.Subtract(root)).Normalize()
}
