package playback

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/meridian-robotics/pointcloud.replay/internal/pcl"
)

// TestColorizeGradient checks the depth gradient endpoints and midpoint:
// shallowest pure blue, deepest pure red, linear in between.
func TestColorizeGradient(t *testing.T) {
	points := []pcl.Point3D{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 5},
		{X: 2, Y: 0, Z: 10},
	}

	colors := Colorize(points)

	want := []RGB{
		{R: 0, G: 0, B: 1},
		{R: 0.5, G: 0, B: 0.5},
		{R: 1, G: 0, B: 0},
	}
	if diff := cmp.Diff(want, colors); diff != "" {
		t.Errorf("Gradient mismatch (-want +got):\n%s", diff)
	}
}

// TestColorizeFlatFrame covers the degenerate range: every point at the same
// depth must come out exactly pure blue.
func TestColorizeFlatFrame(t *testing.T) {
	points := []pcl.Point3D{
		{X: 1, Y: 2, Z: 5.0},
		{X: 3, Y: 4, Z: 5.0},
		{X: 5, Y: 6, Z: 5.0},
	}

	colors := Colorize(points)

	if len(colors) != 3 {
		t.Fatalf("Expected 3 colors, got %d", len(colors))
	}
	for i, c := range colors {
		if c != Blue {
			t.Errorf("Point %d: expected exactly (0,0,1), got %+v", i, c)
		}
	}
}

// TestColorizeSinglePoint expects the one-point frame to take the fallback.
func TestColorizeSinglePoint(t *testing.T) {
	colors := Colorize([]pcl.Point3D{{X: 1, Y: 2, Z: 3}})

	if len(colors) != 1 || colors[0] != Blue {
		t.Errorf("Expected [(0,0,1)], got %+v", colors)
	}
}

// TestColorizeEmptyFrame expects no colors for no points.
func TestColorizeEmptyFrame(t *testing.T) {
	if colors := Colorize(nil); len(colors) != 0 {
		t.Errorf("Expected no colors, got %+v", colors)
	}
	if colors := Colorize([]pcl.Point3D{}); len(colors) != 0 {
		t.Errorf("Expected no colors for empty slice, got %+v", colors)
	}
}

// TestColorizeNonFiniteDepth expects the fallback when the depth bounds are
// poisoned by a non-finite z.
func TestColorizeNonFiniteDepth(t *testing.T) {
	cases := []struct {
		name string
		z    float32
	}{
		{"nan", float32(math.NaN())},
		{"positive inf", float32(math.Inf(1))},
		{"negative inf", float32(math.Inf(-1))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			points := []pcl.Point3D{
				{X: 0, Y: 0, Z: 1},
				{X: 1, Y: 1, Z: tc.z},
				{X: 2, Y: 2, Z: 3},
			}
			colors := Colorize(points)

			if len(colors) != 3 {
				t.Fatalf("Expected 3 colors, got %d", len(colors))
			}
			for i, c := range colors {
				if c != Blue {
					t.Errorf("Point %d: expected fallback (0,0,1), got %+v", i, c)
				}
			}
		})
	}
}

// TestColorizeOrderPreserved checks output index i colors input point i.
func TestColorizeOrderPreserved(t *testing.T) {
	points := []pcl.Point3D{
		{Z: 10}, // deepest first
		{Z: 0},
		{Z: 10},
	}

	colors := Colorize(points)

	if colors[0] != (RGB{R: 1, G: 0, B: 0}) {
		t.Errorf("Point 0: expected (1,0,0), got %+v", colors[0])
	}
	if colors[1] != Blue {
		t.Errorf("Point 1: expected (0,0,1), got %+v", colors[1])
	}
	if colors[2] != (RGB{R: 1, G: 0, B: 0}) {
		t.Errorf("Point 2: expected (1,0,0), got %+v", colors[2])
	}
}

// TestColorizeStateless colorizes the same frame twice with another frame in
// between and expects identical output both times.
func TestColorizeStateless(t *testing.T) {
	frame := []pcl.Point3D{{Z: -4}, {Z: 2}, {Z: 8}}

	first := Colorize(frame)
	Colorize([]pcl.Point3D{{Z: 100}, {Z: 200}})
	second := Colorize(frame)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Colorize is not stateless (-first +second):\n%s", diff)
	}
}

// TestColorizeNegativeRange checks a frame entirely below z=0 still spans
// the full gradient.
func TestColorizeNegativeRange(t *testing.T) {
	points := []pcl.Point3D{{Z: -10}, {Z: -2}}

	colors := Colorize(points)

	want := []RGB{
		{R: 0, G: 0, B: 1},
		{R: 1, G: 0, B: 0},
	}
	if diff := cmp.Diff(want, colors); diff != "" {
		t.Errorf("Negative range mismatch (-want +got):\n%s", diff)
	}
}
