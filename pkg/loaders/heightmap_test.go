package loaders

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	testFile := filepath.Join(t.TempDir(), "height.png")
	f, err := os.Create(testFile)
	if err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	f.Close()
	return testFile
}

// TestLoadHeightMap creates a test PNG and verifies loading
func TestLoadHeightMap(t *testing.T) {
	// 2x2: white, black on top; mid gray, black below
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.SetGray(0, 0, color.Gray{Y: 255})
	img.SetGray(1, 0, color.Gray{Y: 0})
	img.SetGray(0, 1, color.Gray{Y: 128})
	img.SetGray(1, 1, color.Gray{Y: 0})

	hm, err := LoadHeightMap(writePNG(t, img), 0)
	if err != nil {
		t.Fatalf("LoadHeightMap failed: %v", err)
	}
	if hm.Width != 2 || hm.Height != 2 {
		t.Fatalf("Expected 2x2 height map, got %dx%d", hm.Width, hm.Height)
	}

	const tolerance = 0.01
	checks := []struct {
		name     string
		x, y     int
		expected float32
	}{
		{"top-left", 0, 0, 1},
		{"top-right", 1, 0, 0},
		{"bottom-left", 0, 1, 128.0 / 255},
		{"bottom-right", 1, 1, 0},
		{"clamped", 5, -3, 0},
	}
	for _, c := range checks {
		if got := hm.At(c.x, c.y); abs(got-c.expected) > tolerance {
			t.Errorf("%s: expected %v, got %v", c.name, c.expected, got)
		}
	}
}

func TestLoadHeightMap_Downsamples(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 32))
	hm, err := LoadHeightMap(writePNG(t, img), 16)
	if err != nil {
		t.Fatal(err)
	}
	if hm.Width != 16 || hm.Height != 8 {
		t.Errorf("Expected 16x8 after downsampling, got %dx%d", hm.Width, hm.Height)
	}
}

// TestLoadHeightMapNotFound verifies error handling for missing files
func TestLoadHeightMapNotFound(t *testing.T) {
	if _, err := LoadHeightMap("nonexistent.png", 0); err == nil {
		t.Error("Expected error for non-existent file, got nil")
	}
}

func TestHeightMap_Field(t *testing.T) {
	// left column high, right column low
	hm := &HeightMap{Width: 2, Height: 2, Samples: []float32{1, 0, 1, 0}}
	field := hm.Field(4, -1, 9)

	tests := []struct {
		name     string
		x, y     float32
		expected float32
	}{
		{"left pixel center", -1, 1, 9},
		{"right pixel center", 1, -1, -1},
		{"between columns", 0, 0, 4},
		{"outside", 10, 0, -1},
		{"left edge clamps", -2, 0, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := field(tt.x, tt.y); abs(got-tt.expected) > 1e-4 {
				t.Errorf("field(%v, %v) = %v, want %v", tt.x, tt.y, got, tt.expected)
			}
		})
	}
}

func TestHeightMap_FieldTopIsPositiveY(t *testing.T) {
	// top row high, bottom row low
	hm := &HeightMap{Width: 1, Height: 2, Samples: []float32{1, 0}}
	field := hm.Field(2, 0, 1)
	if north, south := field(0, 0.5), field(0, -0.5); north <= south {
		t.Errorf("Expected the top of the image at +Y, got north=%v south=%v", north, south)
	}
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
