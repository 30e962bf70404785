package playback

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/meridian-robotics/pointcloud.replay/internal/monitoring"
	"github.com/meridian-robotics/pointcloud.replay/internal/pcl"
	"github.com/meridian-robotics/pointcloud.replay/internal/timeutil"
)

// ErrWindowFailed reports a Visualizer that declined to create its window.
var ErrWindowFailed = errors.New("visualizer window creation failed")

// Visualizer is the capability set the playback loop drives. It abstracts
// the rendering surface so decode and playback stay testable without a GPU
// context. PollEvents returning false signals the display surface closed.
type Visualizer interface {
	CreateWindow(title string, width, height, x, y int) bool
	AddGeometry(handle string, points []pcl.Point3D, colors []RGB)
	ClearGeometry(handle string)
	SetPointSize(handle string, size float64)
	ResetViewpoint()
	UpdateGeometry(handle string)
	PollEvents() bool
	UpdateRender()
}

// playState is the lifecycle of one playback run. The one-time viewpoint
// reset is enforced by the Uninitialized -> Running transition rather than
// a loose boolean.
type playState int32

const (
	stateUninitialized playState = iota // no frame pushed yet
	stateRunning                        // viewpoint reset done, cycling frames
	stateStopped                        // window closed, terminal
)

func (s playState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateRunning:
		return "running"
	case stateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Config holds the playback parameters. Zero values fall back to the
// canonical defaults, so an empty Config is usable.
type Config struct {
	Handle        string        // geometry handle pushed to the Visualizer
	FrameInterval time.Duration // inter-frame wait
	PointSize     float64       // render size per point
	WindowTitle   string
	WindowWidth   int
	WindowHeight  int
	WindowX       int
	WindowY       int

	// DeadlinePacing sleeps only the remainder to the intended next tick
	// instead of a fixed interval, so cadence does not drift by the cost
	// of colorize + push + poll. Frame content is unaffected.
	DeadlinePacing bool

	StatsPeriod time.Duration // cadence of periodic progress logs

	// Clock abstracts pacing for tests. Nil means the real clock.
	Clock timeutil.Clock
}

func (c Config) withDefaults() Config {
	if c.Handle == "" {
		c.Handle = "capture"
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = 250 * time.Millisecond
	}
	if c.PointSize <= 0 {
		c.PointSize = 2.0
	}
	if c.WindowTitle == "" {
		c.WindowTitle = "Point Cloud Replay"
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1280
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 800
	}
	if c.StatsPeriod <= 0 {
		c.StatsPeriod = 10 * time.Second
	}
	if c.Clock == nil {
		c.Clock = timeutil.RealClock{}
	}
	return c
}

// Stats is a point-in-time snapshot of a playback run. Safe to read from
// other goroutines while the loop runs.
type Stats struct {
	State        string `json:"state"`
	Ticks        uint64 `json:"ticks"`
	Passes       uint64 `json:"passes"`
	FrameIndex   int    `json:"frame_index"`
	FrameCount   int    `json:"frame_count"`
	PointsPushed uint64 `json:"points_pushed"`
}

// Player replays one decoded container on a Visualizer.
type Player struct {
	cfg    Config
	viz    Visualizer
	clock  timeutil.Clock
	frames []pcl.Frame

	state        atomic.Int32
	ticks        atomic.Uint64
	passes       atomic.Uint64
	frameIndex   atomic.Int64
	pointsPushed atomic.Uint64
}

// New builds a Player for the container. The container must already be
// decoded and non-empty; Run rejects an empty one.
func New(c pcl.Container, viz Visualizer, cfg Config) *Player {
	cfg = cfg.withDefaults()
	return &Player{
		cfg:    cfg,
		viz:    viz,
		clock:  cfg.Clock,
		frames: c.Frames,
	}
}

// Stats returns a snapshot of the run counters.
func (p *Player) Stats() Stats {
	return Stats{
		State:        playState(p.state.Load()).String(),
		Ticks:        p.ticks.Load(),
		Passes:       p.passes.Load(),
		FrameIndex:   int(p.frameIndex.Load()),
		FrameCount:   len(p.frames),
		PointsPushed: p.pointsPushed.Load(),
	}
}

// Run cycles through the frames in order, wrapping to the first after the
// last, until the window closes or ctx is cancelled. It owns the calling
// goroutine for the duration; the Visualizer's window and event calls all
// originate here.
//
// Each tick: clear previous geometry, colorize, push points+colors, poll
// events, then render and wait. The close check sits immediately after the
// poll and before the render, and stopping is terminal: one loop, one state,
// no outer pass loop to fall back into.
func (p *Player) Run(ctx context.Context) error {
	if len(p.frames) == 0 {
		return fmt.Errorf("playback: %w", pcl.ErrNoFrames)
	}

	if !p.viz.CreateWindow(p.cfg.WindowTitle, p.cfg.WindowWidth, p.cfg.WindowHeight, p.cfg.WindowX, p.cfg.WindowY) {
		return ErrWindowFailed
	}

	monitoring.Logf("[Playback] starting: %d frames, interval %s, handle %q",
		len(p.frames), p.cfg.FrameInterval, p.cfg.Handle)

	idx := 0
	next := p.clock.Now().Add(p.cfg.FrameInterval)
	lastStats := p.clock.Now()

	for {
		select {
		case <-ctx.Done():
			p.state.Store(int32(stateStopped))
			monitoring.Logf("[Playback] cancelled after %d ticks", p.ticks.Load())
			return ctx.Err()
		default:
		}

		frame := p.frames[idx]
		p.frameIndex.Store(int64(idx))

		// Push this tick's geometry. Empty frames go through the same
		// cycle as populated ones so observed frame timing holds.
		p.viz.ClearGeometry(p.cfg.Handle)
		colors := Colorize(frame.Points)
		p.viz.AddGeometry(p.cfg.Handle, frame.Points, colors)
		p.viz.SetPointSize(p.cfg.Handle, p.cfg.PointSize)
		p.viz.UpdateGeometry(p.cfg.Handle)
		p.pointsPushed.Add(uint64(len(frame.Points)))

		// The first push of the first pass positions the camera, once.
		if playState(p.state.Load()) == stateUninitialized {
			p.viz.ResetViewpoint()
			p.state.Store(int32(stateRunning))
		}

		if !p.viz.PollEvents() {
			p.state.Store(int32(stateStopped))
			monitoring.Logf("[Playback] window closed: %d ticks, %d passes", p.ticks.Load(), p.passes.Load())
			return nil
		}

		p.viz.UpdateRender()
		p.ticks.Add(1)
		monitoring.Debugf("frame %d/%d: %d points", idx, len(p.frames), len(frame.Points))

		if p.clock.Since(lastStats) >= p.cfg.StatsPeriod {
			s := p.Stats()
			monitoring.Logf("[Playback] pass %d frame %d/%d: %d ticks, %d points pushed",
				s.Passes, s.FrameIndex, s.FrameCount, s.Ticks, s.PointsPushed)
			lastStats = p.clock.Now()
		}

		next = p.pace(next)

		idx++
		if idx == len(p.frames) {
			idx = 0
			p.passes.Add(1)
		}
	}
}

// pace waits out the current tick and returns the next deadline. Fixed
// pacing sleeps the whole interval; deadline pacing sleeps only the
// remainder, never a negative duration.
func (p *Player) pace(next time.Time) time.Time {
	if !p.cfg.DeadlinePacing {
		p.clock.Sleep(p.cfg.FrameInterval)
		return p.clock.Now().Add(p.cfg.FrameInterval)
	}
	if d := p.clock.Until(next); d > 0 {
		p.clock.Sleep(d)
	}
	return next.Add(p.cfg.FrameInterval)
}
