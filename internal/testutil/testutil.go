// Package testutil provides shared test helpers and capture fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/meridian-robotics/pointcloud.replay/internal/monitoring"
	"github.com/meridian-robotics/pointcloud.replay/internal/pcl"
)

// QuietLogs silences the package logger for the duration of the test and
// restores it afterwards.
func QuietLogs(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

// WriteCapture writes a small deterministic capture under the test's temp
// directory and returns its path. Every frame holds pointsPerFrame finite
// points.
func WriteCapture(t *testing.T, frames, pointsPerFrame int) string {
	t.Helper()
	gen := pcl.NewGenerator(7)
	gen.PointCount = pointsPerFrame

	fr := make([]pcl.Frame, 0, frames)
	for i := 0; i < frames; i++ {
		fr = append(fr, pcl.Frame{Points: gen.NextFrame()})
	}

	path := filepath.Join(t.TempDir(), "capture.pcl")
	if err := pcl.WriteFile(path, fr); err != nil {
		t.Fatalf("write capture fixture: %v", err)
	}
	return path
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}
