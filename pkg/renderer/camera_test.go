package renderer

import (
	"testing"

	"github.com/chewxy/math32"

	"github.com/df07/go-terrain-marcher/pkg/core"
)

func vecClose(a, b core.Vec3, tolerance float32) bool {
	return a.Subtract(b).Length() <= tolerance
}

func TestCameraRay_DefaultFacing(t *testing.T) {
	camera := DefaultCamera()
	tests := []struct {
		x, y float32
	}{
		{0, 0}, {1, 0}, {-1.7, 0.4}, {0.3, -1}, {2.4, 1},
	}

	for _, tt := range tests {
		got := camera.Ray(tt.x, tt.y)
		expected := core.NewVec3(tt.x, 1, tt.y).Normalize()
		if !vecClose(got, expected, 1e-6) {
			t.Errorf("Ray(%f, %f): expected %v, got %v", tt.x, tt.y, expected, got)
		}
	}
}

func TestCameraBasis_Orthonormal(t *testing.T) {
	camera := Camera{Direction: core.NewVec3(0.3, -0.8, 0.2)}
	right, forward, up := camera.Basis()

	for name, v := range map[string]core.Vec3{"right": right, "forward": forward, "up": up} {
		if math32.Abs(v.Length()-1) > 1e-5 {
			t.Errorf("%s not unit length: %f", name, v.Length())
		}
	}
	if math32.Abs(right.Dot(forward)) > 1e-5 || math32.Abs(up.Dot(forward)) > 1e-5 || math32.Abs(right.Dot(up)) > 1e-5 {
		t.Errorf("Basis not orthogonal: %v %v %v", right, forward, up)
	}
	if up.Z <= 0 {
		t.Errorf("Camera up should point towards +Z, got %v", up)
	}
}

func TestCameraBasis_Vertical(t *testing.T) {
	for _, dir := range []core.Vec3{core.NewVec3(0, 0, -1), core.NewVec3(0, 0, 1), core.NewVec3(1e-6, 0, -1)} {
		camera := Camera{Position: core.NewVec3(0, 0, 5), Direction: dir}
		right, forward, up := camera.Basis()

		for name, v := range map[string]core.Vec3{"right": right, "forward": forward, "up": up} {
			if math32.Abs(v.Length()-1) > 1e-5 {
				t.Errorf("direction %v: %s not unit length: %v", dir, name, v)
			}
		}
		if math32.Abs(right.Dot(forward)) > 1e-5 || math32.Abs(up.Dot(forward)) > 1e-5 || math32.Abs(right.Dot(up)) > 1e-5 {
			t.Errorf("direction %v: basis not orthogonal: %v %v %v", dir, right, forward, up)
		}

		// corner rays must differ, otherwise the frame is a single color
		topLeft := camera.PixelRay(0, 0, 64, 64)
		bottomRight := camera.PixelRay(63, 63, 64, 64)
		if vecClose(topLeft, bottomRight, 1e-3) {
			t.Errorf("direction %v: corner rays coincide: %v", dir, topLeft)
		}
		center := camera.Ray(0, 0)
		if !vecClose(center, forward, 1e-5) {
			t.Errorf("direction %v: center ray %v, want %v", dir, center, forward)
		}
	}
}

func TestCameraVertical_TurnAndMove(t *testing.T) {
	t.Run("Pitch back from straight down", func(t *testing.T) {
		camera := Camera{Position: core.NewVec3(0, 0, 5), Direction: core.NewVec3(0, 0, -1)}
		camera.Turn(0, 0.2)
		if camera.Direction.Z <= -1+1e-4 {
			t.Errorf("Expected to pitch away from the pole, got %v", camera.Direction)
		}
		if math32.IsNaN(camera.Direction.X) || math32.IsNaN(camera.Direction.Y) {
			t.Errorf("Expected a finite direction, got %v", camera.Direction)
		}
	})

	t.Run("Move forward while looking down", func(t *testing.T) {
		camera := Camera{Position: core.NewVec3(0, 0, 5), Direction: core.NewVec3(0, 0, -1)}
		camera.Move(2, 0, 0)
		if !vecClose(camera.Position, core.NewVec3(0, 2, 5), 1e-5) {
			t.Errorf("Expected to move along +Y at constant height, got %v", camera.Position)
		}
	})
}

func TestCameraTurn(t *testing.T) {
	t.Run("Yaw left a quarter turn", func(t *testing.T) {
		camera := DefaultCamera()
		camera.Turn(math32.Pi/2, 0)
		if !vecClose(camera.Direction, core.NewVec3(-1, 0, 0), 1e-5) {
			t.Errorf("Expected -X facing, got %v", camera.Direction)
		}
	})

	t.Run("Pitch up", func(t *testing.T) {
		camera := DefaultCamera()
		camera.Turn(0, math32.Pi/4)
		expected := core.NewVec3(0, 1, 1).Normalize()
		if !vecClose(camera.Direction, expected, 1e-5) {
			t.Errorf("Expected %v, got %v", expected, camera.Direction)
		}
	})

	t.Run("Pitch stops before the pole", func(t *testing.T) {
		camera := DefaultCamera()
		camera.Turn(0, math32.Pi/2)
		if camera.Direction != DefaultCamera().Direction {
			t.Errorf("Expected pitch to be rejected, got %v", camera.Direction)
		}
	})
}

func TestCameraMove(t *testing.T) {
	camera := DefaultCamera()
	camera.Turn(0, 0.3) // looking slightly up must not make forward motion climb
	camera.Move(2, 1, 0.5)

	expected := core.NewVec3(1, 2, 5.5)
	if !vecClose(camera.Position, expected, 1e-5) {
		t.Errorf("Expected %v, got %v", expected, camera.Position)
	}
}

func TestCameraApply_ZeroInput(t *testing.T) {
	camera := DefaultCamera()
	in := Input{}
	if !in.IsZero() {
		t.Fatal("Expected empty input to be zero")
	}
	camera.Apply(in)
	if camera != DefaultCamera() {
		t.Errorf("Zero input changed the camera: %+v", camera)
	}
}

func TestCameraPixelRay(t *testing.T) {
	camera := DefaultCamera()
	width, height := 200, 100

	// bottom-left pixel maps to NDC (-aspect, -1)
	got := camera.PixelRay(0, height-1, width, height)
	expected := core.NewVec3(-2, 1, -1).Normalize()
	if !vecClose(got, expected, 1e-6) {
		t.Errorf("Bottom-left: expected %v, got %v", expected, got)
	}

	// top row looks up, bottom row looks down
	top := camera.PixelRay(width/2, 0, width, height)
	bottom := camera.PixelRay(width/2, height-1, width, height)
	if top.Z <= bottom.Z {
		t.Errorf("Expected top row to look higher: top %v bottom %v", top, bottom)
	}
}
