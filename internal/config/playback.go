package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical playback defaults file.
// This is the single source of truth for all default playback values.
const DefaultConfigPath = "config/playback.defaults.json"

// PlaybackConfig represents the root configuration for capture playback.
// The schema matches the /api/status config block so the same JSON can be
// used for startup configuration and for reporting the effective settings.
type PlaybackConfig struct {
	// Pacing params
	FrameInterval  *string `json:"frame_interval,omitempty"` // duration string like "250ms"
	DeadlinePacing *bool   `json:"deadline_pacing,omitempty"`

	// Render params
	PointSize    *float64 `json:"point_size,omitempty"`
	WindowTitle  *string  `json:"window_title,omitempty"`
	WindowWidth  *int     `json:"window_width,omitempty"`
	WindowHeight *int     `json:"window_height,omitempty"`
	WindowX      *int     `json:"window_x,omitempty"`
	WindowY      *int     `json:"window_y,omitempty"`

	// Reporting params
	StatsPeriod *string `json:"stats_period,omitempty"` // duration string like "10s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyPlaybackConfig returns a PlaybackConfig with all fields set to nil.
// Use LoadPlaybackConfig to load actual values from the defaults file.
func EmptyPlaybackConfig() *PlaybackConfig {
	return &PlaybackConfig{}
}

// DefaultPlaybackConfig returns a PlaybackConfig with every field populated
// with its default value. The /api/status endpoint reports effective
// settings through this shape.
func DefaultPlaybackConfig() *PlaybackConfig {
	return &PlaybackConfig{
		FrameInterval:  ptrString("250ms"),
		DeadlinePacing: ptrBool(false),
		PointSize:      ptrFloat64(2.0),
		WindowTitle:    ptrString("Point Cloud Replay"),
		WindowWidth:    ptrInt(1280),
		WindowHeight:   ptrInt(800),
		WindowX:        ptrInt(50),
		WindowY:        ptrInt(50),
		StatsPeriod:    ptrString("10s"),
	}
}

// LoadPlaybackConfig loads a PlaybackConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadPlaybackConfig(path string) (*PlaybackConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyPlaybackConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical playback defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *PlaybackConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/
	}
	for _, path := range candidates {
		if cfg, err := LoadPlaybackConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *PlaybackConfig) Validate() error {
	// Validate FrameInterval can be parsed if set
	if c.FrameInterval != nil && *c.FrameInterval != "" {
		d, err := time.ParseDuration(*c.FrameInterval)
		if err != nil {
			return fmt.Errorf("invalid frame_interval '%s': %w", *c.FrameInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("frame_interval must be positive, got %s", d)
		}
	}

	// Validate StatsPeriod can be parsed if set
	if c.StatsPeriod != nil && *c.StatsPeriod != "" {
		if _, err := time.ParseDuration(*c.StatsPeriod); err != nil {
			return fmt.Errorf("invalid stats_period '%s': %w", *c.StatsPeriod, err)
		}
	}

	// Validate PointSize if set
	if c.PointSize != nil {
		if *c.PointSize <= 0 {
			return fmt.Errorf("point_size must be positive, got %f", *c.PointSize)
		}
	}

	// Validate window dimensions if set
	if c.WindowWidth != nil && *c.WindowWidth <= 0 {
		return fmt.Errorf("window_width must be positive, got %d", *c.WindowWidth)
	}
	if c.WindowHeight != nil && *c.WindowHeight <= 0 {
		return fmt.Errorf("window_height must be positive, got %d", *c.WindowHeight)
	}

	return nil
}

// GetFrameInterval parses and returns the FrameInterval as a time.Duration.
func (c *PlaybackConfig) GetFrameInterval() time.Duration {
	if c.FrameInterval == nil || *c.FrameInterval == "" {
		return 250 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.FrameInterval)
	if err != nil {
		return 250 * time.Millisecond // default on parse error
	}
	return d
}

// GetStatsPeriod parses and returns the StatsPeriod as a time.Duration.
func (c *PlaybackConfig) GetStatsPeriod() time.Duration {
	if c.StatsPeriod == nil || *c.StatsPeriod == "" {
		return 10 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StatsPeriod)
	if err != nil {
		return 10 * time.Second // default on parse error
	}
	return d
}

// GetDeadlinePacing returns the deadline_pacing value or the default.
func (c *PlaybackConfig) GetDeadlinePacing() bool {
	if c.DeadlinePacing == nil {
		return false // default: fixed sleep per tick
	}
	return *c.DeadlinePacing
}

// GetPointSize returns the point_size value or the default.
func (c *PlaybackConfig) GetPointSize() float64 {
	if c.PointSize == nil {
		return 2.0
	}
	return *c.PointSize
}

// GetWindowTitle returns the window_title value or the default.
func (c *PlaybackConfig) GetWindowTitle() string {
	if c.WindowTitle == nil {
		return "Point Cloud Replay"
	}
	return *c.WindowTitle
}

// GetWindowWidth returns the window_width value or the default.
func (c *PlaybackConfig) GetWindowWidth() int {
	if c.WindowWidth == nil {
		return 1280
	}
	return *c.WindowWidth
}

// GetWindowHeight returns the window_height value or the default.
func (c *PlaybackConfig) GetWindowHeight() int {
	if c.WindowHeight == nil {
		return 800
	}
	return *c.WindowHeight
}

// GetWindowX returns the window_x value or the default.
func (c *PlaybackConfig) GetWindowX() int {
	if c.WindowX == nil {
		return 50
	}
	return *c.WindowX
}

// GetWindowY returns the window_y value or the default.
func (c *PlaybackConfig) GetWindowY() int {
	if c.WindowY == nil {
		return 50
	}
	return *c.WindowY
}
