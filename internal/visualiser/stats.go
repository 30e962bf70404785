package visualiser

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/meridian-robotics/pointcloud.replay/internal/httputil"
)

// echartsAssetsPrefix points rendered chart pages at the public echarts
// asset bundle.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// SetStatusProvider attaches an extra payload to /api/status, typically
// the playback loop's progress snapshot. The provider must be safe to
// call from the HTTP serving goroutines.
func (s *Server) SetStatusProvider(fn func() interface{}) {
	s.statusMu.Lock()
	s.status = fn
	s.statusMu.Unlock()
}

// handleStatus reports hub counters, the requested window parameters and
// whatever the status provider adds.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.windowMu.Lock()
	window := s.window
	s.windowMu.Unlock()

	payload := map[string]interface{}{
		"visualiser": s.Stats(),
		"window":     window,
	}

	s.statusMu.Lock()
	provider := s.status
	s.statusMu.Unlock()
	if provider != nil {
		payload["playback"] = provider()
	}

	httputil.WriteJSONOK(w, payload)
}

// handleHubChart renders hub throughput counters as a bar chart.
func (s *Server) handleHubChart(w http.ResponseWriter, r *http.Request) {
	st := s.Stats()

	x := []string{"Published", "Dropped (queue)", "Dropped (slow viewer)", "Renders", "Viewers"}
	y := []opts.BarData{
		{Value: st.FramesPublished},
		{Value: st.FramesDropped},
		{Value: st.ClientDrops},
		{Value: st.Renders},
		{Value: st.Viewers},
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Visualiser Hub", Subtitle: time.Now().Format(time.RFC3339)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("hub", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleFrameChart renders the most recently committed frame as a
// top-down scatter colored by depth, without needing a WebSocket viewer.
// Query params:
//   - max_points (optional; default 8000) to reduce payload size
func (s *Server) handleFrameChart(w http.ResponseWriter, r *http.Request) {
	s.stageMu.Lock()
	points := s.lastPoints
	s.stageMu.Unlock()

	if len(points) == 0 {
		httputil.NotFound(w, "no frame committed yet")
		return
	}

	maxPoints := 8000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	// Downsample by stride to stay within maxPoints
	stride := 1
	if len(points) > maxPoints {
		stride = int(math.Ceil(float64(len(points)) / float64(maxPoints)))
	}

	data := make([]opts.ScatterData, 0, len(points)/stride+1)
	maxAbs := 0.0
	minZ, maxZ := math.Inf(1), math.Inf(-1)
	for i := 0; i < len(points); i += stride {
		p := points[i]
		x, y, z := float64(p.X), float64(p.Y), float64(p.Z)
		if math.Abs(x) > maxAbs {
			maxAbs = math.Abs(x)
		}
		if math.Abs(y) > maxAbs {
			maxAbs = math.Abs(y)
		}
		if z < minZ {
			minZ = z
		}
		if z > maxZ {
			maxZ = z
		}
		data = append(data, opts.ScatterData{Value: []interface{}{x, y, z}})
	}

	// Add a small padding so points at the edges are visible
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	if !(maxZ > minZ) {
		minZ, maxZ = 0, 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Committed Frame", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Committed Frame", Subtitle: fmt.Sprintf("points=%d stride=%d", len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minZ),
			Max:        float32(maxZ),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#0000ff", "#7f007f", "#ff0000"}},
		}),
	)
	scatter.AddSeries("frame", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
