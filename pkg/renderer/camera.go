package renderer

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/df07/go-terrain-marcher/pkg/core"
)

// maxPitch keeps interactive turns away from straight up or down, where the
// picture would spin around the view axis
const maxPitch float32 = 0.99

// Camera is the persistent viewer state. Forward is +Y and up is +Z by default.
type Camera struct {
	Position  core.Vec3 `json:"position"`
	Direction core.Vec3 `json:"direction"`
}

// DefaultCamera returns the starting camera: five units above the origin looking along +Y
func DefaultCamera() Camera {
	return Camera{
		Position:  core.NewVec3(0, 0, 5),
		Direction: core.NewVec3(0, 1, 0),
	}
}

// Basis returns the camera's right, forward and up unit vectors. When looking
// straight up or down, +Y takes the place of +Z as the reference axis.
func (c Camera) Basis() (right, forward, up core.Vec3) {
	forward = c.Direction.Normalize()
	right = forward.Cross(core.Up)
	if right.LengthSquared() < 1e-8 {
		right = forward.Cross(core.NewVec3(0, 1, 0))
	}
	right = right.Normalize()
	up = right.Cross(forward)
	return right, forward, up
}

// Ray returns the unit ray direction through normalized device coordinates (x, y).
// x spans roughly [-aspect, aspect] left to right and y spans [-1, 1] bottom to top.
// For the default facing this is exactly normalize(x, 1, y).
func (c Camera) Ray(x, y float32) core.Vec3 {
	right, forward, up := c.Basis()
	return right.Multiply(x).Add(forward).Add(up.Multiply(y)).Normalize()
}

// Input is one frame's worth of viewer controls
type Input struct {
	Forward float32 `json:"forward"` // Units along the facing direction projected on the ground
	Strafe  float32 `json:"strafe"`  // Units to the right
	Lift    float32 `json:"lift"`    // Units along +Z
	Yaw     float32 `json:"yaw"`     // Radians, positive turns left
	Pitch   float32 `json:"pitch"`   // Radians, positive looks up
}

// IsZero reports whether the input would leave the camera unchanged
func (in Input) IsZero() bool {
	return in == Input{}
}

// Move translates the camera in its ground-plane frame. A vertical camera moves
// towards the top of its picture.
func (c *Camera) Move(forward, strafe, lift float32) {
	right, facing, up := c.Basis()
	ground := core.NewVec3(facing.X, facing.Y, 0)
	if ground.LengthSquared() < 1e-8 {
		ground = core.NewVec3(up.X, up.Y, 0)
	}
	ground = ground.Normalize()
	c.Position = c.Position.
		Add(ground.Multiply(forward)).
		Add(right.Multiply(strafe)).
		Add(core.Up.Multiply(lift))
}

// Turn rotates the facing direction by yaw around +Z and pitch around the camera's
// right axis. Pitch stops short of the poles, but a camera already past that
// limit may always pitch back towards the horizon.
func (c *Camera) Turn(yaw, pitch float32) {
	dir := mgl32.Vec3{c.Direction.X, c.Direction.Y, c.Direction.Z}.Normalize()

	if yaw != 0 {
		dir = mgl32.QuatRotate(yaw, mgl32.Vec3{0, 0, 1}).Rotate(dir)
	}
	if pitch != 0 {
		basisRight, _, _ := Camera{Direction: core.NewVec3(dir.X(), dir.Y(), dir.Z())}.Basis()
		right := mgl32.Vec3{basisRight.X, basisRight.Y, basisRight.Z}
		turned := mgl32.QuatRotate(pitch, right).Rotate(dir)
		if math32.Abs(turned.Z()) <= maxPitch || math32.Abs(turned.Z()) < math32.Abs(dir.Z()) {
			dir = turned
		}
	}

	c.Direction = core.NewVec3(dir.X(), dir.Y(), dir.Z()).Normalize()
}

// Apply moves then turns the camera according to the input
func (c *Camera) Apply(in Input) {
	c.Move(in.Forward, in.Strafe, in.Lift)
	c.Turn(in.Yaw, in.Pitch)
}

// PixelRay returns the ray direction through pixel (i, j) of a width x height
// image whose row 0 is the top of the picture
func (c Camera) PixelRay(i, j, width, height int) core.Vec3 {
	aspect := float32(width) / float32(height)
	row := height - 1 - j
	y := core.Remap(float32(row), 0, float32(height), -1, 1)
	x := core.Remap(float32(i), 0, float32(width), -1, 1) * aspect
	return c.Ray(x, y)
}
