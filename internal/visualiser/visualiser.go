// Package visualiser renders decoded captures in a browser. Server
// implements playback.Visualizer as a WebSocket hub: the playback loop
// stages points, colors and point size, and each UpdateGeometry commits
// the staged state as one binary frame broadcast to every connected
// viewer. Drawing happens client side in static/viewer.html.
package visualiser

import (
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meridian-robotics/pointcloud.replay/internal/monitoring"
	"github.com/meridian-robotics/pointcloud.replay/internal/pcl"
	"github.com/meridian-robotics/pointcloud.replay/internal/playback"
)

//go:embed static/viewer.html
var viewerHTML []byte

// Binary messages pushed to viewers, little-endian throughout.
//
// Frame:     Kind(1) | PointSize(4, float32) | Count(4, uint32) |
//            Count x 12 XYZ float32 | Count x 12 RGB float32
// ResetView: Kind(1)
const (
	msgKindFrame     = 1
	msgKindResetView = 2

	frameHeaderSize = 9
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local debugging surface, any origin may view
	},
}

// Config controls the hub.
type Config struct {
	// ListenAddr is the address the HTTP server binds. Port 0 lets the
	// OS pick one; Addr reports the bound address.
	ListenAddr string

	// FrameQueueSize bounds the queue between the playback loop and the
	// broadcaster. A full queue drops the message rather than stalling
	// playback.
	FrameQueueSize int

	// ClientQueueSize bounds each viewer's send queue. A slow viewer
	// skips frames rather than holding back the others.
	ClientQueueSize int
}

// DefaultConfig returns the canonical visualiser configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      "127.0.0.1:8081",
		FrameQueueSize:  100,
		ClientQueueSize: 16,
	}
}

// Window records the window parameters requested by the playback loop.
// Browsers size themselves, so these are advisory; the viewer page reads
// them from /api/status and applies what it can.
type Window struct {
	Title  string `json:"title"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// Stats is a snapshot of hub counters.
type Stats struct {
	Running         bool   `json:"running"`
	WindowClosed    bool   `json:"window_closed"`
	Viewers         int    `json:"viewers"`
	FramesPublished uint64 `json:"frames_published"`
	FramesDropped   uint64 `json:"frames_dropped"`
	ClientDrops     uint64 `json:"client_drops"`
	Renders         uint64 `json:"renders"`
}

// wsClient is one connected viewer.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writePump serialises writes to the socket. gorilla allows at most one
// concurrent writer per connection.
func (c *wsClient) writePump() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				c.close()
				return
			}
		}
	}
}

// Server is the WebSocket visualiser. One Server backs one playback run:
// CreateWindow may succeed once, and a closed window stays closed. The
// zero value is not usable, construct with New.
type Server struct {
	cfg Config
	mux *http.ServeMux

	httpServer *http.Server

	windowMu sync.Mutex
	window   Window
	listener net.Listener

	// staged geometry for the current tick, committed by UpdateGeometry
	stageMu     sync.Mutex
	stagePoints []pcl.Point3D
	stageColors []playback.RGB
	stageSize   float64
	lastPoints  []pcl.Point3D

	frameChan chan []byte
	stopCh    chan struct{}
	wg        sync.WaitGroup

	clientsMu sync.RWMutex
	clients   map[*wsClient]bool

	started       atomic.Bool
	running       atomic.Bool
	windowClosed  atomic.Bool
	everConnected atomic.Bool
	clientCount   atomic.Int32

	framesPublished atomic.Uint64
	framesDropped   atomic.Uint64
	clientDrops     atomic.Uint64
	renders         atomic.Uint64

	lastStatsMu         sync.Mutex
	lastStatsTime       time.Time
	lastFramesPublished uint64

	statusMu sync.Mutex
	status   func() interface{}
}

// New builds a Server around cfg. Zero cfg fields fall back to defaults.
func New(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.FrameQueueSize <= 0 {
		cfg.FrameQueueSize = def.FrameQueueSize
	}
	if cfg.ClientQueueSize <= 0 {
		cfg.ClientQueueSize = def.ClientQueueSize
	}

	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		frameChan: make(chan []byte, cfg.FrameQueueSize),
		stopCh:    make(chan struct{}),
		clients:   make(map[*wsClient]bool),
		stageSize: 2.0,
	}
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/debug/charts", s.handleHubChart)
	s.mux.HandleFunc("/debug/charts/frame", s.handleFrameChart)
	return s
}

// Mux exposes the route table so callers can attach extra surfaces, such
// as the capture catalog admin routes, before CreateWindow binds.
func (s *Server) Mux() *http.ServeMux { return s.mux }

// Addr reports the bound listen address, empty before CreateWindow.
func (s *Server) Addr() string {
	s.windowMu.Lock()
	defer s.windowMu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stats snapshots the hub counters. Safe to call from any goroutine.
func (s *Server) Stats() Stats {
	return Stats{
		Running:         s.running.Load(),
		WindowClosed:    s.windowClosed.Load(),
		Viewers:         int(s.clientCount.Load()),
		FramesPublished: s.framesPublished.Load(),
		FramesDropped:   s.framesDropped.Load(),
		ClientDrops:     s.clientDrops.Load(),
		Renders:         s.renders.Load(),
	}
}

// CreateWindow binds the listen address and starts the HTTP server and
// the broadcast fanout. The browser is the window: the method reports
// true as soon as the surface is reachable, it does not wait for a
// viewer to connect.
func (s *Server) CreateWindow(title string, width, height, x, y int) bool {
	if !s.started.CompareAndSwap(false, true) {
		monitoring.Logf("[Visualiser] CreateWindow called twice, ignoring")
		return false
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		monitoring.Logf("[Visualiser] listen %s: %v", s.cfg.ListenAddr, err)
		return false
	}

	s.windowMu.Lock()
	s.window = Window{Title: title, Width: width, Height: height, X: x, Y: y}
	s.listener = ln
	s.windowMu.Unlock()

	s.lastStatsMu.Lock()
	s.lastStatsTime = time.Now()
	s.lastStatsMu.Unlock()

	s.httpServer = &http.Server{Handler: s.mux}
	s.running.Store(true)

	s.wg.Add(2)
	go s.serveLoop(ln)
	go s.broadcastLoop()

	monitoring.Logf("[Visualiser] window %q ready: open http://%s", title, ln.Addr())
	return true
}

func (s *Server) serveLoop(ln net.Listener) {
	defer s.wg.Done()
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		monitoring.Logf("[Visualiser] serve: %v", err)
	}
}

// AddGeometry stages a frame under the handle. Nothing reaches viewers
// until UpdateGeometry commits. The slices are read, never written, so
// the caller may keep ownership.
func (s *Server) AddGeometry(handle string, points []pcl.Point3D, colors []playback.RGB) {
	s.stageMu.Lock()
	s.stagePoints = points
	s.stageColors = colors
	s.stageMu.Unlock()
}

// ClearGeometry drops the staged geometry.
func (s *Server) ClearGeometry(handle string) {
	s.stageMu.Lock()
	s.stagePoints = nil
	s.stageColors = nil
	s.stageMu.Unlock()
}

// SetPointSize stages the render size viewers should draw points at.
func (s *Server) SetPointSize(handle string, size float64) {
	s.stageMu.Lock()
	s.stageSize = size
	s.stageMu.Unlock()
}

// ResetViewpoint tells viewers to refit their camera to the next frame.
func (s *Server) ResetViewpoint() {
	s.publish([]byte{msgKindResetView})
}

// UpdateGeometry commits the staged frame as one binary broadcast.
func (s *Server) UpdateGeometry(handle string) {
	s.stageMu.Lock()
	msg := encodeFrame(s.stagePoints, s.stageColors, s.stageSize)
	s.lastPoints = s.stagePoints
	s.stageMu.Unlock()

	s.publish(msg)
}

// publish hands a message to the broadcaster without ever blocking the
// playback loop.
func (s *Server) publish(msg []byte) {
	select {
	case s.frameChan <- msg:
		s.framesPublished.Add(1)
	default:
		if dropped := s.framesDropped.Add(1); dropped%100 == 1 {
			monitoring.Logf("[Visualiser] WARNING: dropped %d messages (queue full)", dropped)
		}
	}

	if depth := len(s.frameChan); depth > s.cfg.FrameQueueSize/2 {
		monitoring.Logf("[Visualiser] WARNING: broadcast queue depth high: %d/%d", depth, s.cfg.FrameQueueSize)
	}
	s.logPeriodicStats()
}

// PollEvents reports whether the window is still open. The window counts
// as closed once Stop ran, a viewer sent a close event, or every viewer
// disconnected after the first one arrived. Before any viewer connects
// the window is open, so playback proceeds and early frames are simply
// not seen by anyone.
func (s *Server) PollEvents() bool {
	if s.windowClosed.Load() {
		return false
	}
	if s.everConnected.Load() && s.clientCount.Load() == 0 {
		s.closeWindow("all viewers disconnected")
		return false
	}
	return true
}

// UpdateRender finishes one tick. Drawing happens in the browser, so
// this only advances the render counter exposed via /api/status.
func (s *Server) UpdateRender() {
	s.renders.Add(1)
}

func (s *Server) closeWindow(reason string) {
	if s.windowClosed.CompareAndSwap(false, true) {
		monitoring.Logf("[Visualiser] window closed: %s", reason)
	}
}

// Stop closes the window, the HTTP server and every viewer connection.
// Safe to call more than once and concurrently with the playback loop.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.closeWindow("stop requested")
	close(s.stopCh)

	if s.httpServer != nil {
		s.httpServer.Close()
	}

	s.clientsMu.Lock()
	for c := range s.clients {
		c.close()
		delete(s.clients, c)
	}
	s.clientsMu.Unlock()
	s.clientCount.Store(0)

	s.wg.Wait()
	monitoring.Logf("[Visualiser] stopped: %d messages published, %d dropped",
		s.framesPublished.Load(), s.framesDropped.Load())
}

// broadcastLoop fans queued messages out to every connected viewer. A
// viewer with a full send queue skips the message so one stalled socket
// cannot hold back the rest.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case msg := <-s.frameChan:
			s.clientsMu.RLock()
			for c := range s.clients {
				select {
				case c.send <- msg:
				default:
					s.clientDrops.Add(1)
				}
			}
			s.clientsMu.RUnlock()
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(viewerHTML)
}

// handleWS upgrades a viewer connection and owns its read side. The read
// loop exists to notice the viewer going away; the only inbound payload
// is the close event sent by the page's close button.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.windowClosed.Load() {
		http.Error(w, "window closed", http.StatusGone)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("[Visualiser] upgrade failed: %v", err)
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, s.cfg.ClientQueueSize),
		done: make(chan struct{}),
	}
	s.registerClient(c)
	go c.writePump()
	s.readLoop(c)
	s.unregisterClient(c)
}

func (s *Server) registerClient(c *wsClient) {
	s.clientsMu.Lock()
	s.clients[c] = true
	n := len(s.clients)
	s.clientsMu.Unlock()

	s.clientCount.Store(int32(n))
	s.everConnected.Store(true)
	monitoring.Logf("[Visualiser] viewer connected from %s (%d total)", c.conn.RemoteAddr(), n)
}

func (s *Server) unregisterClient(c *wsClient) {
	c.close()

	s.clientsMu.Lock()
	delete(s.clients, c)
	n := len(s.clients)
	s.clientsMu.Unlock()

	s.clientCount.Store(int32(n))
	monitoring.Logf("[Visualiser] viewer disconnected (%d left)", n)
}

type viewerEvent struct {
	Type string `json:"type"`
}

func (s *Server) readLoop(c *wsClient) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				monitoring.Logf("[Visualiser] viewer read error: %v", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		var ev viewerEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		if ev.Type == "close" {
			s.closeWindow("viewer requested close")
			return
		}
	}
}

// encodeFrame packs one committed frame into a broadcast message. Colors
// come from playback.Colorize, so len(colors) matches len(points).
func encodeFrame(points []pcl.Point3D, colors []playback.RGB, size float64) []byte {
	if len(colors) > len(points) {
		colors = colors[:len(points)]
	}

	msg := make([]byte, frameHeaderSize+len(points)*24)
	msg[0] = msgKindFrame
	binary.LittleEndian.PutUint32(msg[1:5], math.Float32bits(float32(size)))
	binary.LittleEndian.PutUint32(msg[5:9], uint32(len(points)))

	off := frameHeaderSize
	for _, p := range points {
		binary.LittleEndian.PutUint32(msg[off:], math.Float32bits(p.X))
		binary.LittleEndian.PutUint32(msg[off+4:], math.Float32bits(p.Y))
		binary.LittleEndian.PutUint32(msg[off+8:], math.Float32bits(p.Z))
		off += 12
	}
	for _, c := range colors {
		binary.LittleEndian.PutUint32(msg[off:], math.Float32bits(c.R))
		binary.LittleEndian.PutUint32(msg[off+4:], math.Float32bits(c.G))
		binary.LittleEndian.PutUint32(msg[off+8:], math.Float32bits(c.B))
		off += 12
	}
	return msg
}

// logPeriodicStats logs hub throughput every 5 seconds.
func (s *Server) logPeriodicStats() {
	s.lastStatsMu.Lock()
	defer s.lastStatsMu.Unlock()

	now := time.Now()
	elapsed := now.Sub(s.lastStatsTime)
	if elapsed < 5*time.Second {
		return
	}

	published := s.framesPublished.Load()
	rate := float64(published-s.lastFramesPublished) / elapsed.Seconds()
	monitoring.Logf("[Visualiser] stats: %.1f msg/s, %d viewers, %d dropped, %d renders",
		rate, s.clientCount.Load(), s.framesDropped.Load(), s.renders.Load())

	s.lastStatsTime = now
	s.lastFramesPublished = published
}
