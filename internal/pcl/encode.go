package pcl

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// AppendRecord appends one wire record to dst and returns the extended
// slice: an 18-byte header followed by len(points) samples. A nil or empty
// points slice writes a zero-length record, which decodes to no frame.
// Points are written as-is; filtering non-finite values is a decode-side
// concern.
func AppendRecord(dst []byte, points []Point3D) []byte {
	var hdr [HEADER_SIZE]byte
	copy(hdr[:MAGIC_SIZE], MAGIC_TOKEN)
	binary.LittleEndian.PutUint64(hdr[MAGIC_SIZE:], uint64(len(points)*POINT_SIZE))
	dst = append(dst, hdr[:]...)

	var word [4]byte
	for _, p := range points {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(p.X))
		dst = append(dst, word[:]...)
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(p.Y))
		dst = append(dst, word[:]...)
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(p.Z))
		dst = append(dst, word[:]...)
	}
	return dst
}

// Encode renders frames as a complete capture buffer, one record per frame
// in order. Encode is the inverse of Decode for finite points; an empty
// frame becomes a zero-length record and is therefore not reproduced by a
// subsequent decode.
func Encode(frames []Frame) []byte {
	size := 0
	for _, f := range frames {
		size += HEADER_SIZE + len(f.Points)*POINT_SIZE
	}
	out := make([]byte, 0, size)
	for _, f := range frames {
		out = AppendRecord(out, f.Points)
	}
	return out
}

// WriteFile writes frames to path as a capture file.
func WriteFile(path string, frames []Frame) error {
	if err := os.WriteFile(path, Encode(frames), 0644); err != nil {
		return fmt.Errorf("write capture: %w", err)
	}
	return nil
}
