// Package playback drives a Visualizer through the frames of a decoded
// capture: colorize by depth, push geometry, poll, render, pace. The loop
// owns the window thread and runs entirely on the calling goroutine.
package playback

import (
	"math"

	"github.com/meridian-robotics/pointcloud.replay/internal/pcl"
)

// RGB is one point's color. Channels are normalized to [0, 1].
type RGB struct {
	R float32
	G float32
	B float32
}

// Blue is the fallback color for frames with no usable depth range.
var Blue = RGB{R: 0, G: 0, B: 1}

// Colorize maps each point of one frame to a color by relative depth: the
// shallowest point renders pure blue, the deepest pure red, blended linearly
// between. Output length and order match the input. Coloring is a pure
// function of the single frame; nothing carries over between frames.
//
// A frame without a usable depth range (flat z, a single point, or
// non-finite bounds) colors every point pure blue.
func Colorize(points []pcl.Point3D) []RGB {
	if len(points) == 0 {
		return nil
	}

	zMin, zMax := zBounds(points)
	span := zMax - zMin
	colors := make([]RGB, len(points))

	if !finite(zMin) || !finite(zMax) || span <= 0 {
		for i := range colors {
			colors[i] = Blue
		}
		return colors
	}

	for i, p := range points {
		t := (float64(p.Z) - zMin) / span
		if t < 0 {
			t = 0
		}
		if t > 1 {
			t = 1
		}
		colors[i] = RGB{R: float32(t), G: 0, B: float32(1 - t)}
	}
	return colors
}

// zBounds scans one frame for its depth extremes. A NaN depth anywhere
// poisons the whole range so the caller falls back rather than emitting
// NaN colors.
func zBounds(points []pcl.Point3D) (zMin, zMax float64) {
	zMin = math.Inf(1)
	zMax = math.Inf(-1)
	for _, p := range points {
		z := float64(p.Z)
		if math.IsNaN(z) {
			return z, z
		}
		if z < zMin {
			zMin = z
		}
		if z > zMax {
			zMax = z
		}
	}
	return zMin, zMax
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
