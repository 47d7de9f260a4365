package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Globe variants
const (
	VariantClassic  = "classic"  // drag-only globe, land and graticule
	VariantAirports = "airports" // idle rotation plus airport markers
)

// Tick sources
const (
	TickSourceClient = "client" // ticks arrive from the page's display refresh
	TickSourceServer = "server" // ticks come from a server-side ticker
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server  ServerConfig  `toml:"server"`  // HTTP server settings
	Logging LoggingConfig `toml:"logging"` // Application logging settings
	Storage StorageConfig `toml:"storage"` // Airport catalog settings
	Data    DataConfig    `toml:"data"`    // Land and airport data sources
	Globe   GlobeConfig   `toml:"globe"`   // Renderer settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port                    int    `toml:"port"`                        // HTTP port for the server
	AdditionalPorts         []int  `toml:"additional_ports"`            // Extra ports serving the same router
	Host                    string `toml:"host"`                        // Host address to bind to
	ReadTimeoutSecs         int    `toml:"read_timeout_seconds"`        // Maximum duration for reading the entire request
	WriteTimeoutSecs        int    `toml:"write_timeout_seconds"`       // Maximum duration for writing the response (0 = no timeout)
	IdleTimeoutSecs         int    `toml:"idle_timeout_seconds"`        // Keep-alive idle timeout
	StaticFilesDir          string `toml:"static_files_dir"`            // Directory holding the host page (e.g., "www")
	SnapshotCacheSize       int    `toml:"snapshot_cache_size"`         // Number of cached SVG snapshots
	SnapshotCacheTTLSeconds int    `toml:"snapshot_cache_ttl_seconds"` // Lifetime of a cached SVG snapshot
	SnapshotTemplate        string `toml:"snapshot_template"`          // Optional SVG template file (empty = built-in)
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level      string `toml:"level"`        // Log level: "debug", "info", "warn", or "error"
	Format     string `toml:"format"`       // Log format: "json" or "console"
	File       string `toml:"file"`         // Optional rotating log file
	MaxSizeMB  int    `toml:"max_size_mb"`  // Rotate after this many megabytes
	MaxBackups int    `toml:"max_backups"`  // Rotated files to keep
	MaxAgeDays int    `toml:"max_age_days"` // Days to keep rotated files
}

// StorageConfig contains airport catalog configuration
type StorageConfig struct {
	SQLiteDSN string `toml:"sqlite_dsn"` // Must be an in-memory DSN; nothing is written to disk
}

// DataConfig contains the two data sources loaded at startup
type DataConfig struct {
	LandURL               string   `toml:"land_url"`                // TopoJSON land document (URL or local path)
	LandObject            string   `toml:"land_object"`             // Object name inside the topology
	AirportsURL           string   `toml:"airports_url"`            // Airport list, JSON or OurAirports CSV (URL or local path)
	AirportTypes          []string `toml:"airport_types"`           // OurAirports types to keep (empty = all)
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds"` // HTTP timeout per fetch
	MaxRetries            int      `toml:"max_retries"`             // Extra attempts after a failed fetch (default 0)
}

// GlobeConfig contains renderer settings
type GlobeConfig struct {
	Variant         string      `toml:"variant"`          // "classic" or "airports"
	Width           int         `toml:"width"`            // Drawing surface width in pixels
	Height          int         `toml:"height"`           // Drawing surface height in pixels
	InitialRotation *[2]float64 `toml:"initial_rotation"` // [longitude, latitude] rotation in degrees (default [0, -30])
	ClipAngle       float64     `toml:"clip_angle"`       // Degrees from centre beyond which geometry is hidden
	ScaleDivisor    float64     `toml:"scale_divisor"`    // Projection scale = width / scale_divisor
	Sensitivity     float64     `toml:"sensitivity"`      // Degrees of rotation per dragged pixel
	IdleStepDeg     float64     `toml:"idle_step_deg"`    // Longitude decrement per idle tick
	AutoRotate      *bool       `toml:"auto_rotate"`      // Idle rotation on/off (variant default when unset)
	ShowAirports    *bool       `toml:"show_airports"`    // Airport layer on/off (variant default when unset)
	GraticuleStep   float64     `toml:"graticule_step"`   // Degrees between graticule lines
	Precision       float64     `toml:"precision"`        // Sampling step for graticule lines in degrees
	MarkerRadius    float64     `toml:"marker_radius"`    // Marker circle radius in pixels
	TickSource      string      `toml:"tick_source"`      // "client" or "server"
	MaxFrameRate    int         `toml:"max_frame_rate"`   // Upper bound on applied ticks per second
	EventQueueSize  int         `toml:"event_queue_size"` // Render loop event buffer
	Palette         Palette     `toml:"palette"`          // Colours and stroke widths
}

// Palette holds the colours of every layer
type Palette struct {
	SphereFill      string  `toml:"sphere_fill" json:"sphere_fill"`
	SphereStroke    string  `toml:"sphere_stroke" json:"sphere_stroke"`
	GraticuleStroke string  `toml:"graticule_stroke" json:"graticule_stroke"`
	GraticuleWidth  float64 `toml:"graticule_width" json:"graticule_width"`
	LandFill        string  `toml:"land_fill" json:"land_fill"`
	LandStroke      string  `toml:"land_stroke" json:"land_stroke"`
	LandWidth       float64 `toml:"land_width" json:"land_width"`
	MarkerFill      string  `toml:"marker_fill" json:"marker_fill"`
	MarkerStroke    string  `toml:"marker_stroke" json:"marker_stroke"`
}

// variantPreset is what a variant contributes when a field is left unset
type variantPreset struct {
	autoRotate   bool
	showAirports bool
	palette      Palette
}

var variantPresets = map[string]variantPreset{
	VariantClassic: {
		autoRotate:   false,
		showAirports: false,
		palette: Palette{
			SphereFill:      "#89cfff",
			SphereStroke:    "#000",
			GraticuleStroke: "#ccc",
			GraticuleWidth:  0.5,
			LandFill:        "#d8d8d8",
			LandStroke:      "#444",
			LandWidth:       0.5,
			MarkerFill:      "#e4572e",
			MarkerStroke:    "#fff",
		},
	},
	VariantAirports: {
		autoRotate:   true,
		showAirports: true,
		palette: Palette{
			SphereFill:      "#0b1f3a",
			SphereStroke:    "#1c3d66",
			GraticuleStroke: "#2f4f75",
			GraticuleWidth:  0.5,
			LandFill:        "#3b5b3f",
			LandStroke:      "#1d2e20",
			LandWidth:       0.5,
			MarkerFill:      "#ffb000",
			MarkerStroke:    "#1a1a1a",
		},
	},
}

// DefaultGlobe returns the airports variant with every default applied.
func DefaultGlobe() GlobeConfig {
	g := GlobeConfig{}
	g.applyDefaults()
	return g
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate fills defaults and validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	for _, port := range c.Server.AdditionalPorts {
		if port <= 0 || port > 65535 || port == c.Server.Port {
			return fmt.Errorf("invalid additional port: %d", port)
		}
	}
	if c.Server.StaticFilesDir == "" {
		c.Server.StaticFilesDir = "www"
	}
	if _, err := os.Stat(c.Server.StaticFilesDir); os.IsNotExist(err) {
		return fmt.Errorf("static files directory does not exist: %s", c.Server.StaticFilesDir)
	}
	if c.Server.SnapshotCacheSize <= 0 {
		c.Server.SnapshotCacheSize = 64
	}
	if c.Server.SnapshotCacheTTLSeconds <= 0 {
		c.Server.SnapshotCacheTTLSeconds = 300
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}
	if c.Logging.File != "" {
		if c.Logging.MaxSizeMB <= 0 {
			c.Logging.MaxSizeMB = 32
		}
		if c.Logging.MaxBackups <= 0 {
			c.Logging.MaxBackups = 3
		}
	}

	if err := c.ValidateStorage(); err != nil {
		return err
	}
	if err := c.ValidateData(); err != nil {
		return err
	}
	return c.Globe.Validate()
}

// ValidateStorage validates the catalog configuration
func (c *Config) ValidateStorage() error {
	if c.Storage.SQLiteDSN == "" {
		c.Storage.SQLiteDSN = "file:airports?mode=memory&cache=shared"
	}
	if !strings.Contains(c.Storage.SQLiteDSN, "mode=memory") && c.Storage.SQLiteDSN != ":memory:" {
		return fmt.Errorf("sqlite_dsn must be an in-memory database: %s", c.Storage.SQLiteDSN)
	}
	return nil
}

// ValidateData validates the data source configuration
func (c *Config) ValidateData() error {
	if c.Data.LandURL == "" {
		c.Data.LandURL = "https://cdn.jsdelivr.net/npm/world-atlas@2/land-110m.json"
	}
	if c.Data.LandObject == "" {
		c.Data.LandObject = "land"
	}
	if c.Data.AirportsURL == "" {
		c.Data.AirportsURL = "https://davidmegginson.github.io/ourairports-data/airports.csv"
	}
	if c.Data.RequestTimeoutSeconds <= 0 {
		c.Data.RequestTimeoutSeconds = 30
	}
	if c.Data.MaxRetries < 0 {
		return fmt.Errorf("data max_retries must be 0 or greater: %d", c.Data.MaxRetries)
	}
	return nil
}

// Validate fills renderer defaults from the selected variant and checks ranges
func (g *GlobeConfig) Validate() error {
	if g.Variant != "" {
		if _, ok := variantPresets[g.Variant]; !ok {
			return fmt.Errorf("invalid globe variant: %s (must be '%s' or '%s')", g.Variant, VariantClassic, VariantAirports)
		}
	}
	g.applyDefaults()

	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("invalid globe size: %dx%d", g.Width, g.Height)
	}
	if g.ClipAngle <= 0 || g.ClipAngle > 180 {
		return fmt.Errorf("clip_angle must be in (0, 180]: %f", g.ClipAngle)
	}
	if g.ScaleDivisor <= 0 {
		return fmt.Errorf("scale_divisor must be positive: %f", g.ScaleDivisor)
	}
	if g.Sensitivity <= 0 {
		return fmt.Errorf("sensitivity must be positive: %f", g.Sensitivity)
	}
	if g.IdleStepDeg < 0 {
		return fmt.Errorf("idle_step_deg must be 0 or greater: %f", g.IdleStepDeg)
	}
	if g.GraticuleStep <= 0 || g.GraticuleStep > 90 {
		return fmt.Errorf("graticule_step must be in (0, 90]: %f", g.GraticuleStep)
	}
	if g.Precision <= 0 || g.Precision > g.GraticuleStep {
		return fmt.Errorf("precision must be in (0, graticule_step]: %f", g.Precision)
	}
	switch g.TickSource {
	case TickSourceClient, TickSourceServer:
	default:
		return fmt.Errorf("invalid tick_source: %s (must be '%s' or '%s')", g.TickSource, TickSourceClient, TickSourceServer)
	}
	if g.MaxFrameRate <= 0 || g.MaxFrameRate > 240 {
		return fmt.Errorf("max_frame_rate must be in (0, 240]: %d", g.MaxFrameRate)
	}
	return nil
}

func (g *GlobeConfig) applyDefaults() {
	if g.Variant == "" {
		g.Variant = VariantAirports
	}
	preset := variantPresets[g.Variant]

	if g.Width == 0 {
		g.Width = 800
	}
	if g.Height == 0 {
		g.Height = 800
	}
	if g.InitialRotation == nil {
		g.InitialRotation = &[2]float64{0, -30}
	}
	if g.ClipAngle == 0 {
		g.ClipAngle = 90
	}
	if g.ScaleDivisor == 0 {
		g.ScaleDivisor = 2.2
	}
	if g.Sensitivity == 0 {
		g.Sensitivity = 0.25
	}
	if g.IdleStepDeg == 0 {
		g.IdleStepDeg = 0.25
	}
	if g.AutoRotate == nil {
		v := preset.autoRotate
		g.AutoRotate = &v
	}
	if g.ShowAirports == nil {
		v := preset.showAirports
		g.ShowAirports = &v
	}
	if g.GraticuleStep == 0 {
		g.GraticuleStep = 10
	}
	if g.Precision == 0 {
		g.Precision = 2.5
	}
	if g.MarkerRadius == 0 {
		g.MarkerRadius = 3
	}
	if g.TickSource == "" {
		g.TickSource = TickSourceClient
	}
	if g.MaxFrameRate == 0 {
		g.MaxFrameRate = 60
	}
	if g.EventQueueSize <= 0 {
		g.EventQueueSize = 256
	}
	g.Palette.fill(preset.palette)
}

// fill copies every unset palette entry from the preset
func (p *Palette) fill(preset Palette) {
	if p.SphereFill == "" {
		p.SphereFill = preset.SphereFill
	}
	if p.SphereStroke == "" {
		p.SphereStroke = preset.SphereStroke
	}
	if p.GraticuleStroke == "" {
		p.GraticuleStroke = preset.GraticuleStroke
	}
	if p.GraticuleWidth == 0 {
		p.GraticuleWidth = preset.GraticuleWidth
	}
	if p.LandFill == "" {
		p.LandFill = preset.LandFill
	}
	if p.LandStroke == "" {
		p.LandStroke = preset.LandStroke
	}
	if p.LandWidth == 0 {
		p.LandWidth = preset.LandWidth
	}
	if p.MarkerFill == "" {
		p.MarkerFill = preset.MarkerFill
	}
	if p.MarkerStroke == "" {
		p.MarkerStroke = preset.MarkerStroke
	}
}

// StartRotation returns the configured initial rotation
func (g GlobeConfig) StartRotation() [2]float64 {
	if g.InitialRotation == nil {
		return [2]float64{0, -30}
	}
	return *g.InitialRotation
}

// AutoRotateEnabled reports whether the idle tick rotates the globe
func (g GlobeConfig) AutoRotateEnabled() bool {
	return g.AutoRotate != nil && *g.AutoRotate
}

// AirportsEnabled reports whether the airport layer is drawn
func (g GlobeConfig) AirportsEnabled() bool {
	return g.ShowAirports != nil && *g.ShowAirports
}

// Scale returns the projection scale in pixels
func (g GlobeConfig) Scale() float64 {
	return float64(g.Width) / g.ScaleDivisor
}
