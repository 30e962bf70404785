// Command pointcloud-replay decodes a .pcl capture and plays it back in a
// browser point cloud viewer, coloring each frame by depth.
//
// Usage:
//
//	pointcloud-replay [flags] <capture.pcl>
//
// The process exits 0 once the viewer window closes and -1 when the
// capture cannot be decoded into at least one frame.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/meridian-robotics/pointcloud.replay/internal/catalog"
	"github.com/meridian-robotics/pointcloud.replay/internal/config"
	"github.com/meridian-robotics/pointcloud.replay/internal/monitoring"
	"github.com/meridian-robotics/pointcloud.replay/internal/pcl"
	"github.com/meridian-robotics/pointcloud.replay/internal/playback"
	"github.com/meridian-robotics/pointcloud.replay/internal/version"
	"github.com/meridian-robotics/pointcloud.replay/internal/visualiser"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run parses args, decodes the capture and drives playback to completion,
// returning the process exit code. Split from main so tests can call it.
func run(args []string) int {
	fs := flag.NewFlagSet("pointcloud-replay", flag.ContinueOnError)
	var (
		listen      = fs.String("listen", "127.0.0.1:8081", "viewer listen address")
		configPath  = fs.String("config", "", "playback config file (JSON)")
		catalogPath = fs.String("catalog", "", "capture catalog database (optional)")
		interval    = fs.Duration("interval", 0, "inter-frame interval (overrides config)")
		pointSize   = fs.Float64("point-size", 0, "render size per point (overrides config)")
		handle      = fs.String("handle", "capture", "geometry handle pushed to the viewer")
		title       = fs.String("title", "", "window title (overrides config)")
		deadline    = fs.Bool("deadline-pacing", false, "sleep to wall-clock deadlines instead of a fixed interval")
		openViewer  = fs.Bool("open-browser", false, "open the viewer page once the window is up")
		verbose     = fs.Bool("verbose", false, "log every playback tick")
		showVersion = fs.Bool("version", false, "print version and exit")
	)
	if err := fs.Parse(args); err != nil {
		return -1
	}
	if *showVersion {
		fmt.Fprintf(fs.Output(), "pointcloud-replay %s\n", version.String())
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] <capture.pcl>\n", fs.Name())
		fs.PrintDefaults()
		return -1
	}
	capturePath := fs.Arg(0)

	monitoring.SetDebug(*verbose)

	cfg := config.DefaultPlaybackConfig()
	if *configPath != "" {
		loaded, err := config.LoadPlaybackConfig(*configPath)
		if err != nil {
			monitoring.Logf("invalid config %s: %v", *configPath, err)
			return -1
		}
		cfg = loaded
	}

	container, stats, err := pcl.ReadFileStats(capturePath)
	if err != nil {
		monitoring.Logf("cannot replay %s: %v", capturePath, err)
		return -1
	}
	monitoring.Logf("decoded %s: %d frames, %d points (%d dropped), stopped at %s after %d bytes",
		capturePath, len(container.Frames), stats.PointsKept, stats.PointsDropped,
		stats.Reason, stats.BytesConsumed)

	viz := visualiser.New(visualiser.Config{ListenAddr: *listen})

	if *catalogPath != "" {
		cat, err := recordInCatalog(viz, *catalogPath, capturePath, container, stats)
		if err != nil {
			monitoring.Logf("catalog unavailable: %v", err)
		}
		if cat != nil {
			defer cat.Close()
		}
	}

	// flag overrides beat the config file
	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	playCfg := playback.Config{
		Handle:         *handle,
		FrameInterval:  cfg.GetFrameInterval(),
		PointSize:      cfg.GetPointSize(),
		WindowTitle:    cfg.GetWindowTitle(),
		WindowWidth:    cfg.GetWindowWidth(),
		WindowHeight:   cfg.GetWindowHeight(),
		WindowX:        cfg.GetWindowX(),
		WindowY:        cfg.GetWindowY(),
		DeadlinePacing: cfg.GetDeadlinePacing(),
		StatsPeriod:    cfg.GetStatsPeriod(),
	}
	if explicit["interval"] {
		playCfg.FrameInterval = *interval
	}
	if explicit["point-size"] {
		playCfg.PointSize = *pointSize
	}
	if explicit["title"] {
		playCfg.WindowTitle = *title
	}
	if explicit["deadline-pacing"] {
		playCfg.DeadlinePacing = *deadline
	}

	player := playback.New(container, viz, playCfg)
	viz.SetStatusProvider(func() interface{} { return player.Stats() })

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defer viz.Stop()
	go func() {
		<-ctx.Done()
		viz.Stop()
	}()

	if *openViewer {
		go openBrowserWhenReady(viz)
	}

	err = player.Run(ctx)
	switch {
	case err == nil:
		monitoring.Logf("viewer window closed, exiting")
		return 0
	case errors.Is(err, context.Canceled):
		monitoring.Logf("playback interrupted")
		return 0
	default:
		monitoring.Logf("playback failed: %v", err)
		return -1
	}
}

// recordInCatalog stores the scan in the capture catalog and mounts the
// catalog admin routes on the viewer mux. Catalog trouble never blocks
// playback; the caller just logs it.
func recordInCatalog(viz *visualiser.Server, dbPath, capturePath string, c pcl.Container, stats pcl.Stats) (*catalog.Catalog, error) {
	cat, err := catalog.Open(dbPath)
	if err != nil {
		return nil, err
	}

	res := catalog.ScanResult{
		Path:   capturePath,
		Frames: len(c.Frames),
		Stats:  stats,
	}
	if info, err := os.Stat(capturePath); err == nil {
		res.SizeBytes = info.Size()
	}
	if zMin, zMax, ok := c.ZRange(); ok {
		res.ZMin = &zMin
		res.ZMax = &zMax
	}

	id, err := cat.RecordScan(res)
	if err != nil {
		cat.Close()
		return nil, err
	}
	monitoring.Logf("catalogued %s as %s", capturePath, id)

	if err := cat.AttachAdminRoutes(viz.Mux()); err != nil {
		monitoring.Logf("catalog admin routes unavailable: %v", err)
	}
	return cat, nil
}

// openBrowserWhenReady waits for the viewer surface to bind, then opens
// the system browser on it.
func openBrowserWhenReady(viz *visualiser.Server) {
	for i := 0; i < 100; i++ {
		if addr := viz.Addr(); addr != "" {
			openBrowser("http://" + addr)
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func openBrowser(url string) {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "linux":
		cmd = "xdg-open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		monitoring.Logf("no browser launcher for %s, open %s yourself", runtime.GOOS, url)
		return
	}

	if err := exec.Command(cmd, args...).Start(); err != nil {
		monitoring.Logf("failed to open browser: %v", err)
	}
}
