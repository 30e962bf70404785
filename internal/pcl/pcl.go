// Package pcl implements the .pcl point-cloud capture container format.
//
// A capture is a flat sequence of self-describing records. Each record is a
// fixed 18-byte header (10-byte ASCII magic token + 8-byte payload length)
// followed by the payload: length/12 consecutive Point3D samples. All
// multi-byte fields are little-endian. The format has no file header, no
// index and no footer; truncating a capture at any record boundary yields a
// shorter but still valid capture.
package pcl

import "math"

// .pcl wire format constants
// These define the fixed record layout written by the capture units
const (
	MAGIC_TOKEN = "POINTCLOUD"             // 10-byte ASCII record preamble (not null-terminated)
	MAGIC_SIZE  = 10                       // Magic token size in bytes
	LENGTH_SIZE = 8                        // Payload length field size (uint64, little-endian)
	HEADER_SIZE = MAGIC_SIZE + LENGTH_SIZE // 18 bytes total, unpadded
	POINT_SIZE  = 12                       // One sample: 3 × 4-byte float32 (x, y, z)
)

// FileExtension is the extension for point-cloud capture files.
const FileExtension = ".pcl"

// Point3D is a single sample: three float32 coordinates, 12 bytes on the
// wire with no padding.
type Point3D struct {
	X float32
	Y float32
	Z float32
}

// Finite reports whether all three coordinates are finite (not NaN, not ±Inf).
func (p Point3D) Finite() bool {
	return finite32(p.X) && finite32(p.Y) && finite32(p.Z)
}

func finite32(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Frame is one temporal snapshot: the points of a single record, in file
// order. Decoding filters non-finite points but never reorders, so a frame
// may be empty if every point in its record was dropped.
type Frame struct {
	Points []Point3D
}

// Container is a decoded capture: frames in file order. Containers are
// produced once per decode and are read-only thereafter.
type Container struct {
	Frames []Frame
}

// PointCount returns the total number of points across all frames.
func (c Container) PointCount() int {
	n := 0
	for _, f := range c.Frames {
		n += len(f.Points)
	}
	return n
}

// ZRange returns the minimum and maximum z coordinate across the whole
// container. ok is false when the container holds no points.
func (c Container) ZRange() (zMin, zMax float64, ok bool) {
	zMin = math.Inf(1)
	zMax = math.Inf(-1)
	for _, f := range c.Frames {
		for _, p := range f.Points {
			z := float64(p.Z)
			if z < zMin {
				zMin = z
			}
			if z > zMax {
				zMax = z
			}
			ok = true
		}
	}
	if !ok {
		return 0, 0, false
	}
	return zMin, zMax, true
}
