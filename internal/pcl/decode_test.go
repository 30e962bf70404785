package pcl

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// appendRawRecord builds a record by hand so tests can write malformed
// headers that AppendRecord never produces.
func appendRawRecord(dst []byte, magic string, length uint64, payload []byte) []byte {
	dst = append(dst, magic...)
	var lenField [LENGTH_SIZE]byte
	binary.LittleEndian.PutUint64(lenField[:], length)
	dst = append(dst, lenField[:]...)
	return append(dst, payload...)
}

// pointBytes renders one Point3D as its 12-byte wire form.
func pointBytes(x, y, z float32) []byte {
	buf := make([]byte, POINT_SIZE)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(x))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(y))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(z))
	return buf
}

// TestDecodeFiltersNonFinitePoints covers a single record carrying one good
// point and one NaN point: the bad point is dropped, the frame survives.
func TestDecodeFiltersNonFinitePoints(t *testing.T) {
	nan := float32(math.NaN())
	payload := append(pointBytes(1.0, 2.0, 3.0), pointBytes(nan, 5.0, 6.0)...)
	buf := appendRawRecord(nil, MAGIC_TOKEN, uint64(len(payload)), payload)

	c, s := DecodeStats(buf)

	if len(c.Frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(c.Frames))
	}
	want := Frame{Points: []Point3D{{X: 1.0, Y: 2.0, Z: 3.0}}}
	if diff := cmp.Diff(want, c.Frames[0]); diff != "" {
		t.Errorf("Frame mismatch (-want +got):\n%s", diff)
	}
	if s.PointsKept != 1 || s.PointsDropped != 1 {
		t.Errorf("Expected 1 kept / 1 dropped, got %d / %d", s.PointsKept, s.PointsDropped)
	}
	if s.Reason != StopEOF {
		t.Errorf("Expected stop reason %v, got %v", StopEOF, s.Reason)
	}
}

// TestDecodeDropsInfinitePoints checks that ±Inf is filtered the same way
// NaN is, on any axis.
func TestDecodeDropsInfinitePoints(t *testing.T) {
	inf := float32(math.Inf(1))
	ninf := float32(math.Inf(-1))
	payload := pointBytes(0.5, inf, 1.0)
	payload = append(payload, pointBytes(0.5, 1.0, ninf)...)
	payload = append(payload, pointBytes(7.0, 8.0, 9.0)...)
	buf := appendRawRecord(nil, MAGIC_TOKEN, uint64(len(payload)), payload)

	c := Decode(buf)

	if len(c.Frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(c.Frames))
	}
	want := []Point3D{{X: 7.0, Y: 8.0, Z: 9.0}}
	if diff := cmp.Diff(want, c.Frames[0].Points); diff != "" {
		t.Errorf("Points mismatch (-want +got):\n%s", diff)
	}
}

// TestDecodeAllPointsDropped verifies that a record whose every point is
// non-finite still contributes a frame. The frame is empty, not absent.
func TestDecodeAllPointsDropped(t *testing.T) {
	nan := float32(math.NaN())
	payload := append(pointBytes(nan, 0, 0), pointBytes(0, nan, 0)...)
	buf := appendRawRecord(nil, MAGIC_TOKEN, uint64(len(payload)), payload)

	c, s := DecodeStats(buf)

	if len(c.Frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(c.Frames))
	}
	if len(c.Frames[0].Points) != 0 {
		t.Errorf("Expected empty frame, got %d points", len(c.Frames[0].Points))
	}
	if s.PointsDropped != 2 {
		t.Errorf("Expected 2 dropped points, got %d", s.PointsDropped)
	}
}

// TestDecodeZeroLengthRecord covers the idle-tick record: valid header,
// length zero. It is consumed but produces no frame.
func TestDecodeZeroLengthRecord(t *testing.T) {
	buf := appendRawRecord(nil, MAGIC_TOKEN, 0, nil)

	c, s := DecodeStats(buf)

	if len(c.Frames) != 0 {
		t.Fatalf("Expected 0 frames, got %d", len(c.Frames))
	}
	if s.Records != 1 {
		t.Errorf("Expected 1 record consumed, got %d", s.Records)
	}
	if s.Reason != StopEOF {
		t.Errorf("Expected stop reason %v, got %v", StopEOF, s.Reason)
	}
	if s.BytesConsumed != HEADER_SIZE {
		t.Errorf("Expected %d bytes consumed, got %d", HEADER_SIZE, s.BytesConsumed)
	}
}

// TestDecodeZeroLengthBetweenFrames makes sure an idle record in the middle
// of a capture does not disturb the frames around it.
func TestDecodeZeroLengthBetweenFrames(t *testing.T) {
	buf := AppendRecord(nil, []Point3D{{X: 1, Y: 1, Z: 1}})
	buf = appendRawRecord(buf, MAGIC_TOKEN, 0, nil)
	buf = AppendRecord(buf, []Point3D{{X: 2, Y: 2, Z: 2}})

	c, s := DecodeStats(buf)

	if len(c.Frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(c.Frames))
	}
	if c.Frames[0].Points[0].X != 1 || c.Frames[1].Points[0].X != 2 {
		t.Errorf("Frames decoded out of order: %+v", c.Frames)
	}
	if s.Records != 3 {
		t.Errorf("Expected 3 records consumed, got %d", s.Records)
	}
}

// TestDecodeBadMagic feeds a record whose magic token is wrong. Nothing is
// recovered and the walk stops immediately.
func TestDecodeBadMagic(t *testing.T) {
	payload := pointBytes(1, 2, 3)
	buf := appendRawRecord(nil, "XXXXXXXXXX", uint64(len(payload)), payload)

	c, s := DecodeStats(buf)

	if len(c.Frames) != 0 {
		t.Fatalf("Expected 0 frames, got %d", len(c.Frames))
	}
	if s.Reason != StopBadMagic {
		t.Errorf("Expected stop reason %v, got %v", StopBadMagic, s.Reason)
	}
	if s.BytesConsumed != 0 {
		t.Errorf("Expected 0 bytes consumed, got %d", s.BytesConsumed)
	}
}

// TestDecodeBadMagicKeepsPrefix verifies prefix recovery: frames decoded
// before the corrupt record are retained.
func TestDecodeBadMagicKeepsPrefix(t *testing.T) {
	buf := AppendRecord(nil, []Point3D{{X: 1, Y: 2, Z: 3}})
	buf = AppendRecord(buf, []Point3D{{X: 4, Y: 5, Z: 6}})
	good := int64(len(buf))
	buf = appendRawRecord(buf, "POINTCLOUX", 12, pointBytes(7, 8, 9))

	c, s := DecodeStats(buf)

	if len(c.Frames) != 2 {
		t.Fatalf("Expected 2 frames before the corrupt record, got %d", len(c.Frames))
	}
	if s.Reason != StopBadMagic {
		t.Errorf("Expected stop reason %v, got %v", StopBadMagic, s.Reason)
	}
	if s.BytesConsumed != good {
		t.Errorf("Expected %d bytes consumed, got %d", good, s.BytesConsumed)
	}
}

// TestDecodeMagicPrefixNotEnough checks the comparison is exact: a token
// that merely starts like the magic is still a mismatch.
func TestDecodeMagicPrefixNotEnough(t *testing.T) {
	buf := appendRawRecord(nil, "POINTCLOUd", 0, nil)

	_, s := DecodeStats(buf)

	if s.Reason != StopBadMagic {
		t.Errorf("Expected stop reason %v, got %v", StopBadMagic, s.Reason)
	}
}

// TestDecodeTruncatedPayload covers a header that declares more payload than
// the buffer holds: 36 declared, 20 present.
func TestDecodeTruncatedPayload(t *testing.T) {
	partial := append(pointBytes(1, 2, 3), []byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x11, 0x22, 0x33}...)
	if len(partial) != 20 {
		t.Fatalf("Test setup wrong: expected 20 payload bytes, got %d", len(partial))
	}
	buf := appendRawRecord(nil, MAGIC_TOKEN, 36, partial)

	c, s := DecodeStats(buf)

	if len(c.Frames) != 0 {
		t.Fatalf("Expected 0 frames, got %d", len(c.Frames))
	}
	if s.Reason != StopTruncated {
		t.Errorf("Expected stop reason %v, got %v", StopTruncated, s.Reason)
	}
}

// TestDecodeTruncationKeepsPriorFrames runs the truncated record after two
// good ones.
func TestDecodeTruncationKeepsPriorFrames(t *testing.T) {
	buf := AppendRecord(nil, []Point3D{{X: 1, Y: 1, Z: 1}})
	buf = AppendRecord(buf, []Point3D{{X: 2, Y: 2, Z: 2}, {X: 3, Y: 3, Z: 3}})
	buf = appendRawRecord(buf, MAGIC_TOKEN, 48, pointBytes(9, 9, 9))

	c, s := DecodeStats(buf)

	if len(c.Frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(c.Frames))
	}
	if s.Reason != StopTruncated {
		t.Errorf("Expected stop reason %v, got %v", StopTruncated, s.Reason)
	}
	if s.PointsKept != 3 {
		t.Errorf("Expected 3 kept points, got %d", s.PointsKept)
	}
}

// TestDecodeMisalignedLength covers a declared length that is not a multiple
// of the point size.
func TestDecodeMisalignedLength(t *testing.T) {
	buf := appendRawRecord(nil, MAGIC_TOKEN, 10, make([]byte, 10))

	c, s := DecodeStats(buf)

	if len(c.Frames) != 0 {
		t.Fatalf("Expected 0 frames, got %d", len(c.Frames))
	}
	if s.Reason != StopMisaligned {
		t.Errorf("Expected stop reason %v, got %v", StopMisaligned, s.Reason)
	}
}

// TestDecodeShortHeader feeds a good record followed by a few stray bytes,
// too few to hold another header.
func TestDecodeShortHeader(t *testing.T) {
	buf := AppendRecord(nil, []Point3D{{X: 1, Y: 2, Z: 3}})
	good := int64(len(buf))
	buf = append(buf, []byte("POINT")...)

	c, s := DecodeStats(buf)

	if len(c.Frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(c.Frames))
	}
	if s.Reason != StopShortHeader {
		t.Errorf("Expected stop reason %v, got %v", StopShortHeader, s.Reason)
	}
	if s.BytesConsumed != good {
		t.Errorf("Expected %d bytes consumed, got %d", good, s.BytesConsumed)
	}
}

// TestDecodeEmptyBuffer checks the trivial input.
func TestDecodeEmptyBuffer(t *testing.T) {
	c, s := DecodeStats(nil)

	if len(c.Frames) != 0 {
		t.Fatalf("Expected 0 frames, got %d", len(c.Frames))
	}
	if s.Reason != StopEOF {
		t.Errorf("Expected stop reason %v, got %v", StopEOF, s.Reason)
	}
	if s.Records != 0 || s.BytesConsumed != 0 {
		t.Errorf("Expected zero stats, got %+v", s)
	}
}

// TestDecodeDeterministic decodes the same buffer twice and expects
// identical containers and stats.
func TestDecodeDeterministic(t *testing.T) {
	gen := NewGenerator(42)
	gen.NaNRate = 0.1
	var frames []Frame
	for i := 0; i < 5; i++ {
		frames = append(frames, Frame{Points: gen.NextFrame()})
	}
	buf := Encode(frames)

	c1, s1 := DecodeStats(buf)
	c2, s2 := DecodeStats(buf)

	if diff := cmp.Diff(c1, c2); diff != "" {
		t.Errorf("Container mismatch between runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(s1, s2); diff != "" {
		t.Errorf("Stats mismatch between runs (-first +second):\n%s", diff)
	}
}

// TestDecodeDoesNotAliasInput mutates the source buffer after decoding and
// expects the container to be unaffected.
func TestDecodeDoesNotAliasInput(t *testing.T) {
	buf := AppendRecord(nil, []Point3D{{X: 1, Y: 2, Z: 3}})
	c := Decode(buf)

	for i := range buf {
		buf[i] = 0xff
	}

	want := Point3D{X: 1, Y: 2, Z: 3}
	if got := c.Frames[0].Points[0]; got != want {
		t.Errorf("Expected %+v after source mutation, got %+v", want, got)
	}
}

// TestStopReasonStrings pins the diagnostic names used in logs and the
// inspection tool.
func TestStopReasonStrings(t *testing.T) {
	cases := []struct {
		reason StopReason
		want   string
	}{
		{StopEOF, "eof"},
		{StopShortHeader, "short-header"},
		{StopBadMagic, "bad-magic"},
		{StopTruncated, "truncated-payload"},
		{StopMisaligned, "misaligned-length"},
	}
	for _, tc := range cases {
		if got := tc.reason.String(); got != tc.want {
			t.Errorf("StopReason(%d): expected %q, got %q", int(tc.reason), tc.want, got)
		}
	}
}

// TestContainerZRange checks the z bounds helper across frames and the
// empty-container case.
func TestContainerZRange(t *testing.T) {
	c := Container{Frames: []Frame{
		{Points: []Point3D{{Z: 2.0}, {Z: -1.5}}},
		{Points: []Point3D{{Z: 7.25}}},
	}}

	zMin, zMax, ok := c.ZRange()
	if !ok {
		t.Fatal("Expected ok for populated container")
	}
	if zMin != -1.5 || zMax != 7.25 {
		t.Errorf("Expected range [-1.5, 7.25], got [%v, %v]", zMin, zMax)
	}

	if _, _, ok := (Container{}).ZRange(); ok {
		t.Error("Expected ok=false for empty container")
	}
}

func BenchmarkDecode(b *testing.B) {
	gen := NewGenerator(1)
	var frames []Frame
	for i := 0; i < 20; i++ {
		frames = append(frames, Frame{Points: gen.NextFrame()})
	}
	buf := Encode(frames)
	b.SetBytes(int64(len(buf)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c := Decode(buf)
		if len(c.Frames) != 20 {
			b.Fatalf("Expected 20 frames, got %d", len(c.Frames))
		}
	}
}
