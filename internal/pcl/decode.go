package pcl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
)

// Sentinel errors surfaced by ReadFile. Framing problems inside the buffer
// are never errors; they only bound how much of the capture is recovered.
var (
	// ErrExtension reports a capture path without .pcl in its name.
	ErrExtension = errors.New("not a .pcl capture")

	// ErrNoFrames reports a capture that decoded to zero frames.
	ErrNoFrames = errors.New("capture contains no frames")
)

// StopReason records why a decode walk stopped consuming input.
type StopReason int

const (
	StopEOF         StopReason = iota // buffer consumed exactly
	StopShortHeader                   // fewer than HEADER_SIZE bytes remained
	StopBadMagic                      // magic token mismatch
	StopTruncated                     // declared payload runs past the buffer end
	StopMisaligned                    // payload length not a multiple of POINT_SIZE
)

func (r StopReason) String() string {
	switch r {
	case StopEOF:
		return "eof"
	case StopShortHeader:
		return "short-header"
	case StopBadMagic:
		return "bad-magic"
	case StopTruncated:
		return "truncated-payload"
	case StopMisaligned:
		return "misaligned-length"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Stats describes one decode walk. The container alone says nothing about
// why decoding stopped; tooling that reports on capture health reads these.
type Stats struct {
	Records       int        // accepted records, including zero-length ones
	PointsKept    int        // finite points carried into frames
	PointsDropped int        // non-finite points filtered out
	BytesConsumed int64      // bytes of the buffer covered by accepted records
	Reason        StopReason // why the walk stopped
}

// Decode walks buf and returns every frame it can recover. It never fails:
// malformed input truncates the result at the first invalid record and all
// frames decoded before that point are retained. Decode is a pure function
// of its input.
func Decode(buf []byte) Container {
	c, _ := DecodeStats(buf)
	return c
}

// DecodeStats is Decode plus per-walk diagnostics.
//
// The walk maintains a cursor from offset 0. At each step: stop if fewer
// than HEADER_SIZE bytes remain; stop on a magic mismatch (exact
// byte-for-byte comparison, not a prefix match); stop if the declared
// payload runs past the end of the buffer; stop if the declared length is
// not a multiple of POINT_SIZE. A zero-length record is skipped entirely and
// contributes no frame. Otherwise the payload is copied out, non-finite
// points are filtered in order, and the resulting frame is appended even
// when every point was dropped.
func DecodeStats(buf []byte) (Container, Stats) {
	var c Container
	var s Stats

	cur := 0
	for {
		if len(buf)-cur < HEADER_SIZE {
			if cur == len(buf) {
				s.Reason = StopEOF
			} else {
				s.Reason = StopShortHeader
			}
			return c, s
		}
		if string(buf[cur:cur+MAGIC_SIZE]) != MAGIC_TOKEN {
			s.Reason = StopBadMagic
			return c, s
		}

		length := binary.LittleEndian.Uint64(buf[cur+MAGIC_SIZE : cur+HEADER_SIZE])
		if length > uint64(len(buf)-cur-HEADER_SIZE) {
			s.Reason = StopTruncated
			return c, s
		}
		if length%POINT_SIZE != 0 {
			s.Reason = StopMisaligned
			return c, s
		}

		if length == 0 {
			// An idle capture tick: the record is valid but carries no frame.
			cur += HEADER_SIZE
			s.Records++
			s.BytesConsumed = int64(cur)
			continue
		}

		payload := buf[cur+HEADER_SIZE : cur+HEADER_SIZE+int(length)]
		c.Frames = append(c.Frames, decodePayload(payload, &s))
		cur += HEADER_SIZE + int(length)
		s.Records++
		s.BytesConsumed = int64(cur)
	}
}

// decodePayload copies one record payload into a point slice, dropping
// non-finite points in order. The floats are assembled field by field: the
// payload sits at an arbitrary offset in the source buffer, so it cannot be
// reinterpreted in place.
func decodePayload(payload []byte, s *Stats) Frame {
	n := len(payload) / POINT_SIZE
	points := make([]Point3D, 0, n)
	for i := 0; i < n; i++ {
		off := i * POINT_SIZE
		p := Point3D{
			X: math.Float32frombits(binary.LittleEndian.Uint32(payload[off : off+4])),
			Y: math.Float32frombits(binary.LittleEndian.Uint32(payload[off+4 : off+8])),
			Z: math.Float32frombits(binary.LittleEndian.Uint32(payload[off+8 : off+12])),
		}
		if !p.Finite() {
			s.PointsDropped++
			continue
		}
		points = append(points, p)
		s.PointsKept++
	}
	return Frame{Points: points}
}

// ReadFile loads and decodes a capture. The whole file is read into memory
// before decoding; captures are not streamed from disk. The extension check
// is a literal substring match on ".pcl" anywhere in the path.
func ReadFile(path string) (Container, error) {
	c, _, err := ReadFileStats(path)
	return c, err
}

// ReadFileStats is ReadFile plus the decode diagnostics for the walk.
func ReadFileStats(path string) (Container, Stats, error) {
	if !strings.Contains(path, FileExtension) {
		return Container{}, Stats{}, fmt.Errorf("%q: %w", path, ErrExtension)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Container{}, Stats{}, fmt.Errorf("read capture: %w", err)
	}
	c, s := DecodeStats(data)
	if len(c.Frames) == 0 {
		return Container{}, s, fmt.Errorf("%q: %w", path, ErrNoFrames)
	}
	return c, s, nil
}
