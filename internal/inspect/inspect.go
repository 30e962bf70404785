// Package inspect summarises decoded captures: whole-container decode
// statistics, the distribution of per-frame point counts and an optional
// rendered timeline plot. It backs the pcl-inspect tool.
package inspect

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/meridian-robotics/pointcloud.replay/internal/pcl"
)

// Quantiles summarises a sample of per-frame point counts. The percentiles
// use the empirical CDF, so each is a value that actually occurred.
type Quantiles struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P85  float64 `json:"p85"`
	P95  float64 `json:"p95"`
}

// FrameInfo is one row of the per-frame breakdown. ZMin and ZMax are zero
// for empty frames.
type FrameInfo struct {
	Index  int     `json:"index"`
	Points int     `json:"points"`
	ZMin   float64 `json:"z_min"`
	ZMax   float64 `json:"z_max"`
}

// Report is the analysis of one decoded capture.
type Report struct {
	Path          string      `json:"path,omitempty"`
	FileSizeBytes int64       `json:"file_size_bytes,omitempty"`
	Records       int         `json:"records"`
	BytesConsumed int64       `json:"bytes_consumed"`
	StopReason    string      `json:"stop_reason"`
	Frames        int         `json:"frames"`
	EmptyFrames   int         `json:"empty_frames"`
	PointsKept    int         `json:"points_kept"`
	PointsDropped int         `json:"points_dropped"`
	ZMin          *float64    `json:"z_min"` // nil when the capture holds no points
	ZMax          *float64    `json:"z_max"`
	PointCounts   Quantiles   `json:"point_counts"`
	PerFrame      []FrameInfo `json:"per_frame"`
}

// Analyze builds the report for a decoded capture. Path and file size are
// left for the caller, which knows where the bytes came from.
func Analyze(c pcl.Container, stats pcl.Stats) Report {
	r := Report{
		Records:       stats.Records,
		BytesConsumed: stats.BytesConsumed,
		StopReason:    stats.Reason.String(),
		Frames:        len(c.Frames),
		PointsKept:    stats.PointsKept,
		PointsDropped: stats.PointsDropped,
		PerFrame:      make([]FrameInfo, 0, len(c.Frames)),
	}

	counts := make([]float64, 0, len(c.Frames))
	for i, f := range c.Frames {
		info := FrameInfo{Index: i, Points: len(f.Points)}
		if len(f.Points) == 0 {
			r.EmptyFrames++
		} else {
			info.ZMin, info.ZMax = frameZRange(f)
		}
		r.PerFrame = append(r.PerFrame, info)
		counts = append(counts, float64(len(f.Points)))
	}

	if zMin, zMax, ok := c.ZRange(); ok {
		r.ZMin = &zMin
		r.ZMax = &zMax
	}
	r.PointCounts = summarise(counts)
	return r
}

func frameZRange(f pcl.Frame) (zMin, zMax float64) {
	zMin = math.Inf(1)
	zMax = math.Inf(-1)
	for _, p := range f.Points {
		z := float64(p.Z)
		if z < zMin {
			zMin = z
		}
		if z > zMax {
			zMax = z
		}
	}
	return zMin, zMax
}

// summarise computes the distribution statistics over sample. The caller's
// slice is not modified.
func summarise(sample []float64) Quantiles {
	if len(sample) == 0 {
		return Quantiles{}
	}
	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)

	return Quantiles{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: stat.Mean(sorted, nil),
		P50:  stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P85:  stat.Quantile(0.85, stat.Empirical, sorted, nil),
		P95:  stat.Quantile(0.95, stat.Empirical, sorted, nil),
	}
}

// RenderPlot writes the per-frame point count timeline to path as a PNG.
func RenderPlot(r Report, path string) error {
	p := plot.New()
	title := "points per frame"
	if r.Path != "" {
		title = fmt.Sprintf("%s: points per frame", filepath.Base(r.Path))
	}
	p.Title.Text = title
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Points"

	pts := make(plotter.XYs, 0, len(r.PerFrame))
	for _, f := range r.PerFrame {
		pts = append(pts, plotter.XY{X: float64(f.Index), Y: float64(f.Points)})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("build point series: %w", err)
	}
	line.Color = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("points", line)
	p.Legend.Top = true

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
